package audit

import (
	"encoding/json"
	"time"
)

// EventType classifies an audit event
type EventType string

const (
	// Permission model mutations
	EventTypeRoleAssigned           EventType = "authz.role_assigned"
	EventTypeRoleRevoked            EventType = "authz.role_revoked"
	EventTypePermissionGranted      EventType = "authz.permission_granted"
	EventTypePermissionDenied       EventType = "authz.permission_denied"
	EventTypeGroupMembershipChanged EventType = "authz.group_membership_changed"

	// Authorization decisions
	EventTypeAccessDenied EventType = "authz.access_denied"

	// Request trail
	EventTypeHTTPRequest EventType = "http.request"
)

// EventStatus represents the outcome of the audited operation
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType identifies the kind of entity an event touched
type ResourceType string

const (
	ResourceRole       ResourceType = "role"
	ResourcePermission ResourceType = "permission"
	ResourceGroup      ResourceType = "group"
	ResourceUser       ResourceType = "user"
)

// AuditEvent is a single audit log entry. ActorID is the user who
// performed the operation; UserID is the user whose permissions were
// affected or checked. For denial events the two are the same.
type AuditEvent struct {
	ID        int64       `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	ActorID string `json:"actor_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
