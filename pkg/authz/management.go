package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/resumekit/authz/pkg/audit"
	"github.com/resumekit/authz/pkg/observability"
)

// AssignOptions carries the optional parts of a mutation: the actor who
// performed it, a free-form reason, and an expiry for the assignment.
type AssignOptions struct {
	Actor     string
	Reason    string
	ExpiresAt *time.Time
}

// ManagementService performs assignment mutations. Every mutation
// follows the same contract: validate that the referenced entity
// exists, write the assignment, synchronously invalidate the user's
// cached context, then record an audit entry and publish one domain
// event. Invalidation is part of the write, not a courtesy; a mutation
// that cannot invalidate reports the error.
type ManagementService struct {
	repos       Repositories
	invalidator CacheInvalidator
	events      EventPublisher
	audit       audit.Logger
}

// NewManagementService creates the mutation façade. A nil events
// publisher or audit logger falls back to a no-op.
func NewManagementService(repos Repositories, invalidator CacheInvalidator, events EventPublisher, auditLogger audit.Logger) *ManagementService {
	if events == nil {
		events = NopPublisher{}
	}
	if auditLogger == nil {
		auditLogger = audit.NopLogger()
	}
	return &ManagementService{
		repos:       repos,
		invalidator: invalidator,
		events:      events,
		audit:       auditLogger,
	}
}

// AssignRole gives the user a role, optionally until opts.ExpiresAt.
// Re-assigning a held role refreshes its expiry and assigner.
func (s *ManagementService) AssignRole(ctx context.Context, userID, roleID string, opts AssignOptions) error {
	role, err := s.repos.Roles.FindByID(ctx, roleID)
	if err != nil {
		return err
	}
	a := RoleAssignment{
		UserID:     userID,
		RoleID:     role.ID,
		ExpiresAt:  opts.ExpiresAt,
		AssignedBy: optionalString(opts.Actor),
		AssignedAt: time.Now(),
	}
	if err := s.repos.Assignments.AssignRole(ctx, a); err != nil {
		return fmt.Errorf("failed to assign role %s to user %s: %w", roleID, userID, err)
	}
	if err := s.invalidator.InvalidateCache(ctx, userID); err != nil {
		return err
	}
	s.recordAudit(ctx, audit.EventTypeRoleAssigned, opts.Actor, userID, audit.ResourceRole, roleID,
		fmt.Sprintf("assigned role %s to user %s", role.Name, userID))
	s.publish(ctx, Event{
		Type:      EventRoleAssigned,
		UserID:    userID,
		TargetID:  roleID,
		Actor:     opts.Actor,
		Reason:    opts.Reason,
		ExpiresAt: opts.ExpiresAt,
	})
	return nil
}

// RevokeRole removes a role from the user.
func (s *ManagementService) RevokeRole(ctx context.Context, userID, roleID, actor string) error {
	role, err := s.repos.Roles.FindByID(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.repos.Assignments.RevokeRole(ctx, userID, roleID); err != nil {
		return fmt.Errorf("failed to revoke role %s from user %s: %w", roleID, userID, err)
	}
	if err := s.invalidator.InvalidateCache(ctx, userID); err != nil {
		return err
	}
	s.recordAudit(ctx, audit.EventTypeRoleRevoked, actor, userID, audit.ResourceRole, roleID,
		fmt.Sprintf("revoked role %s from user %s", role.Name, userID))
	s.publish(ctx, Event{
		Type:     EventRoleRevoked,
		UserID:   userID,
		TargetID: roleID,
		Actor:    actor,
	})
	return nil
}

// GrantPermission records a direct permission grant for the user.
func (s *ManagementService) GrantPermission(ctx context.Context, userID, permissionID string, opts AssignOptions) error {
	return s.writePermission(ctx, userID, permissionID, true, opts)
}

// DenyPermission records an explicit permission denial for the user.
// The denial overrides every grant of the same permission from any
// role or group until it is lifted.
func (s *ManagementService) DenyPermission(ctx context.Context, userID, permissionID string, opts AssignOptions) error {
	return s.writePermission(ctx, userID, permissionID, false, opts)
}

// AddToGroup makes the user a direct member of the group.
func (s *ManagementService) AddToGroup(ctx context.Context, userID, groupID string, opts AssignOptions) error {
	group, err := s.repos.Groups.FindByID(ctx, groupID)
	if err != nil {
		return err
	}
	m := GroupMembership{
		UserID:     userID,
		GroupID:    group.ID,
		ExpiresAt:  opts.ExpiresAt,
		AssignedBy: optionalString(opts.Actor),
		AssignedAt: time.Now(),
	}
	if err := s.repos.Assignments.AddToGroup(ctx, m); err != nil {
		return fmt.Errorf("failed to add user %s to group %s: %w", userID, groupID, err)
	}
	if err := s.invalidator.InvalidateCache(ctx, userID); err != nil {
		return err
	}
	s.recordAudit(ctx, audit.EventTypeGroupMembershipChanged, opts.Actor, userID, audit.ResourceGroup, groupID,
		fmt.Sprintf("added user %s to group %s", userID, group.Name))
	s.publish(ctx, Event{
		Type:      EventGroupMembershipChanged,
		UserID:    userID,
		TargetID:  groupID,
		Actor:     opts.Actor,
		Reason:    opts.Reason,
		Action:    MembershipAdded,
		ExpiresAt: opts.ExpiresAt,
	})
	return nil
}

// RemoveFromGroup ends the user's direct membership in the group.
func (s *ManagementService) RemoveFromGroup(ctx context.Context, userID, groupID, actor string) error {
	group, err := s.repos.Groups.FindByID(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.repos.Assignments.RemoveFromGroup(ctx, userID, groupID); err != nil {
		return fmt.Errorf("failed to remove user %s from group %s: %w", userID, groupID, err)
	}
	if err := s.invalidator.InvalidateCache(ctx, userID); err != nil {
		return err
	}
	s.recordAudit(ctx, audit.EventTypeGroupMembershipChanged, actor, userID, audit.ResourceGroup, groupID,
		fmt.Sprintf("removed user %s from group %s", userID, group.Name))
	s.publish(ctx, Event{
		Type:     EventGroupMembershipChanged,
		UserID:   userID,
		TargetID: groupID,
		Actor:    actor,
		Action:   MembershipRemoved,
	})
	return nil
}

func (s *ManagementService) writePermission(ctx context.Context, userID, permissionID string, granted bool, opts AssignOptions) error {
	perm, err := s.repos.Permissions.FindByID(ctx, permissionID)
	if err != nil {
		return err
	}
	a := PermissionAssignment{
		UserID:       userID,
		PermissionID: perm.ID,
		Granted:      granted,
		Reason:       optionalString(opts.Reason),
		ExpiresAt:    opts.ExpiresAt,
		AssignedBy:   optionalString(opts.Actor),
		AssignedAt:   time.Now(),
	}

	verb := "grant"
	eventType := EventPermissionGranted
	auditType := audit.EventTypePermissionGranted
	write := s.repos.Assignments.GrantPermission
	if !granted {
		verb = "deny"
		eventType = EventPermissionDenied
		auditType = audit.EventTypePermissionDenied
		write = s.repos.Assignments.DenyPermission
	}

	if err := write(ctx, a); err != nil {
		return fmt.Errorf("failed to %s permission %s for user %s: %w", verb, permissionID, userID, err)
	}
	if err := s.invalidator.InvalidateCache(ctx, userID); err != nil {
		return err
	}
	s.recordAudit(ctx, auditType, opts.Actor, userID, audit.ResourcePermission, permissionID,
		fmt.Sprintf("%s permission %s for user %s", verb, perm.Key(), userID))
	s.publish(ctx, Event{
		Type:      eventType,
		UserID:    userID,
		TargetID:  permissionID,
		Actor:     opts.Actor,
		Reason:    opts.Reason,
		ExpiresAt: opts.ExpiresAt,
	})
	return nil
}

// publish stamps and sends an event. Failures are logged, never
// propagated: the mutation already committed and invalidated.
func (s *ManagementService) publish(ctx context.Context, ev Event) {
	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now().UTC()
	if err := s.events.Publish(ctx, ev); err != nil {
		observability.GetLogger(ctx).WithError(err).
			WithField("event_type", string(ev.Type)).
			Warn("failed to publish authorization event")
	}
}

func (s *ManagementService) recordAudit(ctx context.Context, eventType audit.EventType, actor, userID string, resourceType audit.ResourceType, resourceID, message string) {
	event := &audit.AuditEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Status:       audit.EventStatusSuccess,
		ActorID:      actor,
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Message:      message,
	}
	if err := s.audit.Log(ctx, event); err != nil {
		observability.GetLogger(ctx).WithError(err).Warn("failed to write audit event")
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
