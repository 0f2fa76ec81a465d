package authz

import (
	"github.com/gorilla/mux"

	"github.com/resumekit/authz/pkg/audit"
	"github.com/resumekit/authz/pkg/observability"
)

// Options configures the optional collaborators of an Engine. Zero
// values are safe: no cache means every query resolves fresh, events
// and audit default to no-ops, metrics stay unrecorded.
type Options struct {
	Cache   ContextCache
	Events  EventPublisher
	Audit   audit.Logger
	Metrics *observability.Metrics
}

// Engine wires the resolver, the query and mutation façades, HTTP
// handlers and middleware over one set of repositories. Embedding
// services construct it once and hang on to the pieces they need.
type Engine struct {
	Resolver   *Resolver
	Authz      *AuthorizationService
	Management *ManagementService
	Handlers   *Handlers
	Middleware *Middleware
}

// NewEngine assembles a complete engine.
func NewEngine(repos Repositories, opts Options) *Engine {
	resolver := NewResolver(repos)
	authzService := NewAuthorizationService(resolver, opts.Cache, opts.Metrics)
	management := NewManagementService(repos, authzService, opts.Events, opts.Audit)
	return &Engine{
		Resolver:   resolver,
		Authz:      authzService,
		Management: management,
		Handlers:   NewHandlers(authzService, management),
		Middleware: NewMiddleware(authzService),
	}
}

// RegisterRoutes registers the engine's HTTP routes on the router.
func (e *Engine) RegisterRoutes(router *mux.Router) {
	e.Handlers.RegisterRoutes(router)
}
