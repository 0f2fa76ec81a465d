package authz

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/resumekit/authz/pkg/contextkeys"
	"github.com/resumekit/authz/pkg/httputil"
)

// Handlers exposes the engine over HTTP: the query surface, the six
// assignment mutations, and cache administration. Entity CRUD for
// permissions, roles and groups is deliberately absent; those are
// managed elsewhere.
type Handlers struct {
	authz      *AuthorizationService
	management *ManagementService
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(authz *AuthorizationService, management *ManagementService) *Handlers {
	return &Handlers{authz: authz, management: management}
}

// RegisterRoutes registers all engine routes on the router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Permission queries
	router.HandleFunc("/authz/check", h.Check).Methods("POST")
	router.HandleFunc("/authz/check-any", h.CheckAny).Methods("POST")
	router.HandleFunc("/authz/check-all", h.CheckAll).Methods("POST")
	router.HandleFunc("/authz/users/{id}/context", h.GetUserContext).Methods("GET")
	router.HandleFunc("/authz/users/{id}/resources/{resource}/actions", h.GetResourceActions).Methods("GET")

	// Assignment mutations
	router.HandleFunc("/authz/users/{id}/roles", h.AssignRole).Methods("POST")
	router.HandleFunc("/authz/users/{id}/roles/{role_id}", h.RevokeRole).Methods("DELETE")
	router.HandleFunc("/authz/users/{id}/permissions", h.WritePermission).Methods("POST")
	router.HandleFunc("/authz/users/{id}/groups", h.AddToGroup).Methods("POST")
	router.HandleFunc("/authz/users/{id}/groups/{group_id}", h.RemoveFromGroup).Methods("DELETE")

	// Cache administration
	router.HandleFunc("/authz/users/{id}/cache", h.InvalidateUserCache).Methods("DELETE")
	router.HandleFunc("/authz/cache", h.InvalidateAllCaches).Methods("DELETE")
}

type checkRequest struct {
	UserID   string `json:"user_id"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

// Check decides one resource/action request for a user.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") ||
		!httputil.RequireNonEmpty(w, req.Resource, "resource") ||
		!httputil.RequireNonEmpty(w, req.Action, "action") {
		return
	}

	allowed, err := h.authz.HasPermission(r.Context(), req.UserID, req.Resource, req.Action)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, checkResponse{Allowed: allowed})
}

type batchCheckRequest struct {
	UserID string  `json:"user_id"`
	Checks []Check `json:"checks"`
}

// CheckAny decides whether at least one of the submitted checks passes.
func (h *Handlers) CheckAny(w http.ResponseWriter, r *http.Request) {
	h.batchCheck(w, r, h.authz.HasAnyPermission)
}

// CheckAll decides whether every submitted check passes.
func (h *Handlers) CheckAll(w http.ResponseWriter, r *http.Request) {
	h.batchCheck(w, r, h.authz.HasAllPermissions)
}

func (h *Handlers) batchCheck(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, userID string, checks []Check) (bool, error)) {
	var req batchCheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}
	for _, c := range req.Checks {
		if c.Resource == "" || c.Action == "" {
			httputil.WriteValidationError(w, "every check needs a resource and an action")
			return
		}
	}

	allowed, err := decide(r.Context(), req.UserID, req.Checks)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, checkResponse{Allowed: allowed})
}

// GetUserContext returns the user's fully resolved context.
func (h *Handlers) GetUserContext(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	authCtx, err := h.authz.GetContext(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, authCtx)
}

// GetResourceActions lists the actions granted on exactly one resource.
func (h *Handlers) GetResourceActions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, resource := vars["id"], vars["resource"]
	if userID == "" || resource == "" {
		httputil.WriteValidationError(w, "user id and resource are required")
		return
	}
	actions, err := h.authz.GetResourcePermissions(r.Context(), userID, resource)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string][]string{"actions": actions})
}

type assignRoleRequest struct {
	RoleID    string     `json:"role_id"`
	Actor     string     `json:"actor,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AssignRole assigns a role to the user in the path.
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req assignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RoleID, "role_id") {
		return
	}

	opts := AssignOptions{
		Actor:     h.actor(r, req.Actor),
		Reason:    req.Reason,
		ExpiresAt: req.ExpiresAt,
	}
	if err := h.management.AssignRole(r.Context(), userID, req.RoleID, opts); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RevokeRole revokes a role from the user in the path.
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, roleID := vars["id"], vars["role_id"]
	if err := h.management.RevokeRole(r.Context(), userID, roleID, h.actor(r, "")); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

type writePermissionRequest struct {
	PermissionID string     `json:"permission_id"`
	Granted      bool       `json:"granted"`
	Actor        string     `json:"actor,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// WritePermission records a direct grant (granted=true) or an explicit
// denial (granted=false) for the user in the path.
func (h *Handlers) WritePermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req writePermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.PermissionID, "permission_id") {
		return
	}

	opts := AssignOptions{
		Actor:     h.actor(r, req.Actor),
		Reason:    req.Reason,
		ExpiresAt: req.ExpiresAt,
	}
	var err error
	if req.Granted {
		err = h.management.GrantPermission(r.Context(), userID, req.PermissionID, opts)
	} else {
		err = h.management.DenyPermission(r.Context(), userID, req.PermissionID, opts)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

type addToGroupRequest struct {
	GroupID   string     `json:"group_id"`
	Actor     string     `json:"actor,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AddToGroup adds the user in the path to a group.
func (h *Handlers) AddToGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req addToGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.GroupID, "group_id") {
		return
	}

	opts := AssignOptions{
		Actor:     h.actor(r, req.Actor),
		Reason:    req.Reason,
		ExpiresAt: req.ExpiresAt,
	}
	if err := h.management.AddToGroup(r.Context(), userID, req.GroupID, opts); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RemoveFromGroup removes the user in the path from a group.
func (h *Handlers) RemoveFromGroup(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, groupID := vars["id"], vars["group_id"]
	if err := h.management.RemoveFromGroup(r.Context(), userID, groupID, h.actor(r, "")); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// InvalidateUserCache drops one user's cached context.
func (h *Handlers) InvalidateUserCache(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.authz.InvalidateCache(r.Context(), userID); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// InvalidateAllCaches drops every cached context.
func (h *Handlers) InvalidateAllCaches(w http.ResponseWriter, r *http.Request) {
	if err := h.authz.InvalidateAllCaches(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// actor prefers the explicit request field, falling back to the
// authenticated caller when upstream middleware provided one.
func (h *Handlers) actor(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return contextkeys.GetUserID(r.Context())
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case IsValidation(err):
		httputil.WriteValidationError(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
