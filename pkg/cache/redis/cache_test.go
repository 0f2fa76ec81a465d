package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/resumekit/authz/pkg/authz"
)

// setupCacheTest creates a miniredis instance and a cache connected to it.
func setupCacheTest(t *testing.T) (*Cache, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	cache, err := NewCache(Config{
		URL: "redis://" + mr.Addr(),
		TTL: time.Minute,
	})
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create cache: %v", err)
	}

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return cache, mr, cleanup
}

func TestNewCache_Success(t *testing.T) {
	cache, _, cleanup := setupCacheTest(t)
	defer cleanup()

	if cache == nil {
		t.Fatal("Expected cache to be non-nil")
	}
	if err := cache.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewCache_InvalidURL(t *testing.T) {
	_, err := NewCache(Config{URL: "not-a-url"})
	if err == nil {
		t.Fatal("Expected error for invalid URL")
	}
}

func TestNewCache_ConnectionFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	_, err = NewCache(Config{URL: "redis://" + addr})
	if err == nil {
		t.Fatal("Expected error connecting to a closed server")
	}
}

func TestCache_MissReturnsNil(t *testing.T) {
	cache, _, cleanup := setupCacheTest(t)
	defer cleanup()

	got, err := cache.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil on miss, got %+v", got)
	}
}

func TestCache_SetGet(t *testing.T) {
	cache, mr, cleanup := setupCacheTest(t)
	defer cleanup()
	ctx := context.Background()

	authCtx := &authz.UserAuthContext{
		UserID:  "u1",
		RoleIDs: []string{"editor"},
		Permissions: []authz.ResolvedPermission{
			{
				Permission: authz.Permission{ID: "p1", Resource: "resume", Action: "read"},
				Sources:    []authz.PermissionSource{{Type: authz.SourceRole, SourceID: "editor", SourceName: "Editor"}},
				Granted:    true,
			},
		},
		ResolvedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := cache.Set(ctx, "u1", authCtx); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if !mr.Exists("authz:ctx:u1") {
		t.Error("Expected entry under the authz:ctx: prefix")
	}

	got, err := cache.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected a cached context")
	}
	if got.UserID != "u1" {
		t.Errorf("Expected user u1, got %s", got.UserID)
	}
	if len(got.RoleIDs) != 1 || got.RoleIDs[0] != "editor" {
		t.Errorf("Expected role editor, got %v", got.RoleIDs)
	}
	if len(got.Permissions) != 1 || got.Permissions[0].Permission.ID != "p1" {
		t.Errorf("Expected permission p1, got %+v", got.Permissions)
	}
	if !got.Permissions[0].Granted {
		t.Error("Expected the grant flag to survive the round trip")
	}
	if len(got.Permissions[0].Sources) != 1 || got.Permissions[0].Sources[0].SourceName != "Editor" {
		t.Errorf("Expected the source to survive the round trip, got %+v", got.Permissions[0].Sources)
	}
}

func TestCache_CorruptEntryDropped(t *testing.T) {
	cache, mr, cleanup := setupCacheTest(t)
	defer cleanup()

	mr.Set("authz:ctx:u1", "invalid json data")

	_, err := cache.Get(context.Background(), "u1")
	if err == nil {
		t.Fatal("Expected error for corrupt entry")
	}
	if mr.Exists("authz:ctx:u1") {
		t.Error("Expected corrupt entry to be deleted")
	}
}

func TestCache_Invalidate(t *testing.T) {
	cache, mr, cleanup := setupCacheTest(t)
	defer cleanup()
	ctx := context.Background()

	cache.Set(ctx, "u1", &authz.UserAuthContext{UserID: "u1"})
	cache.Set(ctx, "u2", &authz.UserAuthContext{UserID: "u2"})

	if err := cache.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	if mr.Exists("authz:ctx:u1") {
		t.Error("Expected u1 entry to be deleted")
	}
	if !mr.Exists("authz:ctx:u2") {
		t.Error("Expected u2 entry to survive")
	}
}

func TestCache_InvalidateMissingIsIdempotent(t *testing.T) {
	cache, _, cleanup := setupCacheTest(t)
	defer cleanup()

	if err := cache.Invalidate(context.Background(), "ghost"); err != nil {
		t.Fatalf("Invalidate of missing entry failed: %v", err)
	}
}

func TestCache_InvalidateAll(t *testing.T) {
	cache, mr, cleanup := setupCacheTest(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		userID := fmt.Sprintf("u%d", i)
		cache.Set(ctx, userID, &authz.UserAuthContext{UserID: userID})
	}
	mr.Set("sessions:u0", "unrelated value")

	if err := cache.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("authz:ctx:u%d", i)
		if mr.Exists(key) {
			t.Errorf("Expected %s to be deleted", key)
		}
	}
	if !mr.Exists("sessions:u0") {
		t.Error("Expected keys outside the prefix to survive")
	}
}

func TestCache_TTLApplied(t *testing.T) {
	cache, mr, cleanup := setupCacheTest(t)
	defer cleanup()
	ctx := context.Background()

	cache.Set(ctx, "u1", &authz.UserAuthContext{UserID: "u1"})

	if ttl := mr.TTL("authz:ctx:u1"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("Expected TTL within a minute, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected entry to expire, got %+v", got)
	}
}

func TestCache_ZeroTTLPersists(t *testing.T) {
	cache, mr, cleanup := setupCacheTest(t)
	defer cleanup()

	persistent := NewCacheWithClient(cache.client, 0)
	persistent.Set(context.Background(), "u1", &authz.UserAuthContext{UserID: "u1"})

	if ttl := mr.TTL("authz:ctx:u1"); ttl != 0 {
		t.Errorf("Expected no TTL, got %v", ttl)
	}
}
