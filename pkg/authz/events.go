package authz

import (
	"context"
	"time"
)

// EventType names a domain event emitted by the management façade.
type EventType string

const (
	// EventRoleAssigned fires after a role is assigned to a user.
	EventRoleAssigned EventType = "authz.role_assigned"
	// EventRoleRevoked fires after a role is revoked from a user.
	EventRoleRevoked EventType = "authz.role_revoked"
	// EventPermissionGranted fires after a direct permission grant.
	EventPermissionGranted EventType = "authz.permission_granted"
	// EventPermissionDenied fires after a direct permission denial is
	// recorded (the denial assignment itself, not a failed check).
	EventPermissionDenied EventType = "authz.permission_denied"
	// EventGroupMembershipChanged fires after a user is added to or
	// removed from a group; the event's Action field says which.
	EventGroupMembershipChanged EventType = "authz.group_membership_changed"
)

// Membership change actions carried in Event.Action.
const (
	MembershipAdded   = "added"
	MembershipRemoved = "removed"
)

// Event describes one completed authorization mutation. Events are
// notifications: by the time one is published the write has committed
// and the user's cache entry has been invalidated.
type Event struct {
	ID        string     `json:"id"`
	Type      EventType  `json:"type"`
	UserID    string     `json:"user_id"`
	TargetID  string     `json:"target_id"`
	Actor     string     `json:"actor,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Action    string     `json:"action,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// EventPublisher delivers domain events to interested listeners.
// Publishing failures never roll back the mutation that produced the
// event; callers log and continue.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }
