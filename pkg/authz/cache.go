package authz

import "context"

// ContextCache stores resolved user contexts keyed by user ID. The
// engine owns correctness through explicit invalidation, so backends
// need no TTL, though they may carry one as a safety net. Get returns
// (nil, nil) on a miss.
type ContextCache interface {
	Get(ctx context.Context, userID string) (*UserAuthContext, error)
	Set(ctx context.Context, userID string, authCtx *UserAuthContext) error
	Invalidate(ctx context.Context, userID string) error
	InvalidateAll(ctx context.Context) error
}

// NopCache satisfies ContextCache without storing anything. Useful for
// tests and for embedding the engine uncached.
type NopCache struct{}

// Get always misses.
func (NopCache) Get(ctx context.Context, userID string) (*UserAuthContext, error) {
	return nil, nil
}

// Set discards the context.
func (NopCache) Set(ctx context.Context, userID string, authCtx *UserAuthContext) error {
	return nil
}

// Invalidate does nothing.
func (NopCache) Invalidate(ctx context.Context, userID string) error { return nil }

// InvalidateAll does nothing.
func (NopCache) InvalidateAll(ctx context.Context) error { return nil }
