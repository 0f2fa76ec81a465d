package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumekit/authz/pkg/contextkeys"
)

// recordingLogger captures events for assertions
type recordingLogger struct {
	events []*AuditEvent
	err    error
	closed bool
}

func (l *recordingLogger) Log(ctx context.Context, event *AuditEvent) error {
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, event)
	return nil
}

func (l *recordingLogger) Close() error {
	l.closed = true
	return nil
}

func TestFromContext_Default(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)

	// The fallback logger accepts events without error
	err := logger.Log(context.Background(), &AuditEvent{EventType: EventTypeAccessDenied})
	assert.NoError(t, err)
	assert.NoError(t, logger.Close())
}

func TestWithLogger(t *testing.T) {
	rec := &recordingLogger{}
	ctx := WithLogger(context.Background(), rec)

	logger := FromContext(ctx)
	err := logger.Log(ctx, &AuditEvent{EventType: EventTypeRoleAssigned})
	require.NoError(t, err)
	assert.Len(t, rec.events, 1)
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	assert.NoError(t, logger.Log(context.Background(), &AuditEvent{}))
	assert.NoError(t, logger.Close())
}

func TestLogDenied(t *testing.T) {
	rec := &recordingLogger{}
	ctx := WithLogger(context.Background(), rec)
	ctx = contextkeys.WithRequestID(ctx, "req-123")

	err := LogDenied(ctx, "user-42", "documents", "edit")
	require.NoError(t, err)
	require.Len(t, rec.events, 1)

	event := rec.events[0]
	assert.Equal(t, EventTypeAccessDenied, event.EventType)
	assert.Equal(t, EventStatusDenied, event.Status)
	assert.Equal(t, "user-42", event.UserID)
	assert.Equal(t, ResourcePermission, event.ResourceType)
	assert.Equal(t, "documents:edit", event.ResourceID)
	assert.Equal(t, "access denied: documents:edit", event.Message)
	assert.Equal(t, "req-123", event.RequestID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestLogDenied_NoLoggerInContext(t *testing.T) {
	// Falls back to the no-op logger rather than panicking
	err := LogDenied(context.Background(), "user-1", "reports", "view")
	assert.NoError(t, err)
}

func TestLogSuccess(t *testing.T) {
	rec := &recordingLogger{}
	ctx := WithLogger(context.Background(), rec)
	ctx = contextkeys.WithUserID(ctx, "user-9")

	err := LogSuccess(ctx, EventTypeRoleAssigned, "assigned editor", map[string]interface{}{"role": "editor"})
	require.NoError(t, err)
	require.Len(t, rec.events, 1)

	event := rec.events[0]
	assert.Equal(t, EventStatusSuccess, event.Status)
	assert.Equal(t, "user-9", event.UserID)
	assert.Equal(t, "assigned editor", event.Message)
	assert.Equal(t, "editor", event.Metadata["role"])
}

func TestLogFailure(t *testing.T) {
	rec := &recordingLogger{}
	ctx := WithLogger(context.Background(), rec)

	err := LogFailure(ctx, EventTypePermissionGranted, "grant failed", errors.New("db unavailable"))
	require.NoError(t, err)
	require.Len(t, rec.events, 1)

	event := rec.events[0]
	assert.Equal(t, EventStatusFailure, event.Status)
	assert.Equal(t, "grant failed", event.Message)
	assert.Equal(t, "db unavailable", event.ErrorMessage)
}

func TestQuickLog(t *testing.T) {
	rec := &recordingLogger{}
	ctx := WithLogger(context.Background(), rec)

	err := QuickLog(ctx, EventTypeRoleRevoked, EventStatusSuccess, "revoked")
	require.NoError(t, err)
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventTypeRoleRevoked, rec.events[0].EventType)
	assert.Equal(t, "revoked", rec.events[0].Message)
}

func TestBuildBaseEvent_WithRequest(t *testing.T) {
	ctx := contextkeys.WithRequestID(context.Background(), "req-7")
	ctx = contextkeys.WithUserID(ctx, "user-7")

	r := httptest.NewRequest("POST", "/users/user-7/roles", nil)
	r.Header.Set("User-Agent", "test-agent")
	r.RemoteAddr = "10.0.0.5:1234"

	event := buildBaseEvent(ctx, r, EventTypeRoleAssigned, EventStatusSuccess)

	assert.Equal(t, "user-7", event.UserID)
	assert.Equal(t, "req-7", event.RequestID)
	assert.Equal(t, "POST", event.Method)
	assert.Equal(t, "/users/user-7/roles", event.Path)
	assert.Equal(t, "10.0.0.5:1234", event.IPAddress)
	assert.Equal(t, "test-agent", event.UserAgent)
	assert.NotNil(t, event.Metadata)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		xff      string
		realIP   string
		remote   string
		expected string
	}{
		{name: "x-forwarded-for wins", xff: "203.0.113.9", realIP: "10.0.0.1", remote: "127.0.0.1:80", expected: "203.0.113.9"},
		{name: "x-real-ip next", realIP: "10.0.0.1", remote: "127.0.0.1:80", expected: "10.0.0.1"},
		{name: "remote addr fallback", remote: "127.0.0.1:80", expected: "127.0.0.1:80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.expected, getClientIP(r))
		})
	}
}
