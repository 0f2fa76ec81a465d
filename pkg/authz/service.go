package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/resumekit/authz/pkg/observability"
)

// Authorizer is the query surface of the engine, consumed by HTTP
// middleware and by embedding services.
type Authorizer interface {
	HasPermission(ctx context.Context, userID, resource, action string) (bool, error)
	HasAnyPermission(ctx context.Context, userID string, checks []Check) (bool, error)
	HasAllPermissions(ctx context.Context, userID string, checks []Check) (bool, error)
	GetContext(ctx context.Context, userID string) (*UserAuthContext, error)
	GetResourcePermissions(ctx context.Context, userID, resource string) ([]string, error)
}

// CacheInvalidator drops cached contexts. The management façade calls
// it synchronously inside every mutation.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context, userID string) error
	InvalidateAllCaches(ctx context.Context) error
}

// AuthorizationService answers permission queries from cached user
// contexts, resolving lazily on miss. Concurrent misses for the same
// user collapse into one resolution via singleflight, and a per-user
// generation counter keeps a racing resolve from writing a context that
// an invalidation has already superseded.
type AuthorizationService struct {
	resolver *Resolver
	cache    ContextCache
	metrics  *observability.Metrics

	flight singleflight.Group

	mu       sync.Mutex
	gens     map[string]uint64
	allGen   uint64
	inflight map[string]struct{}
}

var (
	_ Authorizer       = (*AuthorizationService)(nil)
	_ CacheInvalidator = (*AuthorizationService)(nil)
)

// NewAuthorizationService creates the caching query façade. A nil cache
// falls back to NopCache; metrics may be nil.
func NewAuthorizationService(resolver *Resolver, cache ContextCache, metrics *observability.Metrics) *AuthorizationService {
	if cache == nil {
		cache = NopCache{}
	}
	return &AuthorizationService{
		resolver: resolver,
		cache:    cache,
		metrics:  metrics,
		gens:     make(map[string]uint64),
		inflight: make(map[string]struct{}),
	}
}

// GetContext returns the user's resolved context, from cache when
// possible. Cache read failures degrade to a direct resolve; a
// permission decision never depends on cache health.
func (s *AuthorizationService) GetContext(ctx context.Context, userID string) (*UserAuthContext, error) {
	cached, err := s.cache.Get(ctx, userID)
	if err != nil {
		observability.GetLogger(ctx).WithError(err).WithField("user_id", userID).Warn("context cache read failed")
	}
	if cached != nil {
		if s.metrics != nil {
			s.metrics.CacheHits.Inc()
		}
		return cached, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	v, err, _ := s.flight.Do(userID, func() (interface{}, error) {
		s.markInflight(userID)
		defer s.clearInflight(userID)

		version := s.version(userID)
		start := time.Now()
		authCtx, err := s.resolver.ResolveUserContext(ctx, userID)
		if err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.Resolutions.Inc()
			s.metrics.ResolutionDuration.Observe(time.Since(start).Seconds())
		}

		// Write back only if no invalidation raced the resolve, so a
		// stale context never overwrites a newer invalidation.
		if s.version(userID) == version {
			if err := s.cache.Set(ctx, userID, authCtx); err != nil {
				observability.GetLogger(ctx).WithError(err).WithField("user_id", userID).Warn("context cache write failed")
			}
		}
		return authCtx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*UserAuthContext), nil
}

// HasPermission reports whether the user may perform action on resource.
func (s *AuthorizationService) HasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	authCtx, err := s.GetContext(ctx, userID)
	if err != nil {
		return false, err
	}
	allowed := authCtx.HasPermission(resource, action)
	s.recordCheck(allowed)
	return allowed, nil
}

// HasAnyPermission reports whether at least one of the checks passes.
// An empty check list never passes.
func (s *AuthorizationService) HasAnyPermission(ctx context.Context, userID string, checks []Check) (bool, error) {
	if len(checks) == 0 {
		return false, nil
	}
	authCtx, err := s.GetContext(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, c := range checks {
		if authCtx.HasPermission(c.Resource, c.Action) {
			s.recordCheck(true)
			return true, nil
		}
	}
	s.recordCheck(false)
	return false, nil
}

// HasAllPermissions reports whether every check passes. An empty check
// list passes vacuously.
func (s *AuthorizationService) HasAllPermissions(ctx context.Context, userID string, checks []Check) (bool, error) {
	authCtx, err := s.GetContext(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, c := range checks {
		if !authCtx.HasPermission(c.Resource, c.Action) {
			s.recordCheck(false)
			return false, nil
		}
	}
	s.recordCheck(true)
	return true, nil
}

// GetResourcePermissions lists the actions granted on exactly the given
// resource, sorted.
func (s *AuthorizationService) GetResourcePermissions(ctx context.Context, userID, resource string) ([]string, error) {
	authCtx, err := s.GetContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	return authCtx.GrantedActions(resource), nil
}

// InvalidateCache drops the user's cached context and cuts any in-flight
// resolution loose so late writers cannot resurrect stale state.
func (s *AuthorizationService) InvalidateCache(ctx context.Context, userID string) error {
	s.mu.Lock()
	s.gens[userID]++
	s.mu.Unlock()
	s.flight.Forget(userID)
	if s.metrics != nil {
		s.metrics.CacheInvalidations.Inc()
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("failed to invalidate cached context for user %s: %w", userID, err)
	}
	return nil
}

// InvalidateAllCaches drops every cached context.
func (s *AuthorizationService) InvalidateAllCaches(ctx context.Context) error {
	s.mu.Lock()
	s.allGen++
	keys := make([]string, 0, len(s.inflight))
	for k := range s.inflight {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	for _, k := range keys {
		s.flight.Forget(k)
	}
	if s.metrics != nil {
		s.metrics.CacheInvalidations.Inc()
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("failed to invalidate cached contexts: %w", err)
	}
	return nil
}

// version combines the user's generation with the global one; any
// invalidation of either kind changes it.
func (s *AuthorizationService) version(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[userID] + s.allGen
}

func (s *AuthorizationService) markInflight(userID string) {
	s.mu.Lock()
	s.inflight[userID] = struct{}{}
	s.mu.Unlock()
}

func (s *AuthorizationService) clearInflight(userID string) {
	s.mu.Lock()
	delete(s.inflight, userID)
	s.mu.Unlock()
}

func (s *AuthorizationService) recordCheck(allowed bool) {
	if s.metrics == nil {
		return
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	s.metrics.Checks.WithLabelValues(decision).Inc()
}
