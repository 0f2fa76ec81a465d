// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error responses,
// path parameter parsing, validation, and common HTTP middleware patterns.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, result)
//	httputil.WriteNoContent(w)
//
// Error responses:
//
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteNotFoundError(w, "Role not found")
//	httputil.WriteInternalError(w, err)
//
// # Request Parsing
//
// JSON parsing:
//
//	var req GrantPermissionRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Path parameters:
//
//	userID, ok := httputil.ParsePathStringOrError(w, r, "userID")
//	if !ok {
//		return
//	}
//
// # Validation
//
//	if !httputil.RequireNonEmpty(w, req.RoleID, "role_id") {
//		return
//	}
//
// # Middleware
//
//	httputil.Chain(
//		httputil.LoggingMiddleware(),
//		httputil.RecoveryMiddleware(),
//		httputil.RequestIDMiddleware(),
//		httputil.IdentityMiddleware(),
//		httputil.MaxBytesMiddleware(10*1024*1024), // 10MB
//	)
//
// # Related Packages
//
//   - pkg/authz: Permission middleware built on the identity this package extracts
package httputil
