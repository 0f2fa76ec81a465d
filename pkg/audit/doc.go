// Package audit records authorization decisions and permission-model
// mutations for compliance and forensics.
//
// # Overview
//
// Every mutation of the permission model (role assignments, direct
// grants and denials, group membership changes) and every denied
// authorization check produces an AuditEvent. Events carry the acting
// user, the affected user, the touched resource and the request
// context they happened under.
//
// # Event Types
//
// Mutations: role_assigned, role_revoked, permission_granted,
// permission_denied, group_membership_changed
// Decisions: access_denied
// Request trail: http.request
//
// # Usage Example
//
// Write an event through a configured logger:
//
//	logger, err := audit.NewDBLogger(db)
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//
//	err = logger.Log(ctx, &audit.AuditEvent{
//		EventType:    audit.EventTypeRoleAssigned,
//		Status:       audit.EventStatusSuccess,
//		ActorID:      "admin-7",
//		UserID:       "user-42",
//		ResourceType: audit.ResourceRole,
//		ResourceID:   role.ID,
//	})
//
// Record a denial from request-handling code using the logger carried
// in the context:
//
//	ctx := audit.WithLogger(r.Context(), logger)
//	_ = audit.LogDenied(ctx, userID, "documents", "edit")
//
// In an HTTP server, Middleware does the injection per request and
// keeps a trail of mutations and failures:
//
//	router.Use(audit.NewMiddleware(logger, false).Handler)
//
// Fan events out to more than one destination:
//
//	logger := audit.NewMultiLogger(dbLogger, fileLogger)
//
// # Related Packages
//
//   - pkg/authz: produces mutation and denial events
//   - pkg/config: selects the audit backends at startup
package audit
