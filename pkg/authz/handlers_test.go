package authz

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumekit/authz/pkg/contextkeys"
)

type handlersFixture struct {
	store     *fakeStore
	cache     *fakeCache
	publisher *recordingPublisher
	engine    *Engine
	router    *mux.Router
}

func newHandlersFixture() *handlersFixture {
	f := &handlersFixture{
		store:     newFakeStore(),
		cache:     newFakeCache(),
		publisher: &recordingPublisher{},
	}
	f.engine = NewEngine(f.store.repositories(), Options{Cache: f.cache, Events: f.publisher})
	f.router = mux.NewRouter()
	f.engine.RegisterRoutes(f.router)
	return f
}

func (f *handlersFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	return f.doAs("", method, path, body)
}

func (f *handlersFixture) doAs(caller, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if caller != "" {
		req = req.WithContext(contextkeys.WithUserID(req.Context(), caller))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// TestCheckEndpoint_Allowed tests a passing permission check
func TestCheckEndpoint_Allowed(t *testing.T) {
	f := newHandlersFixture()
	f.store.addPermission("p1", "resume", "read")
	f.store.userPerms["u1"] = []PermissionAssignment{{UserID: "u1", PermissionID: "p1", Granted: true}}

	w := f.do("POST", "/authz/check", checkRequest{UserID: "u1", Resource: "resume", Action: "read"})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp checkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Allowed)
}

// TestCheckEndpoint_Denied tests a failing permission check
func TestCheckEndpoint_Denied(t *testing.T) {
	f := newHandlersFixture()

	w := f.do("POST", "/authz/check", checkRequest{UserID: "u1", Resource: "resume", Action: "delete"})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp checkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Allowed)
}

// TestCheckEndpoint_Validation tests required-field handling
func TestCheckEndpoint_Validation(t *testing.T) {
	f := newHandlersFixture()

	cases := []checkRequest{
		{Resource: "resume", Action: "read"},
		{UserID: "u1", Action: "read"},
		{UserID: "u1", Resource: "resume"},
	}
	for _, body := range cases {
		w := f.do("POST", "/authz/check", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

// TestCheckEndpoint_InvalidJSON tests malformed request bodies
func TestCheckEndpoint_InvalidJSON(t *testing.T) {
	f := newHandlersFixture()

	req := httptest.NewRequest("POST", "/authz/check", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestCheckAnyEndpoint tests the any-of batch check
func TestCheckAnyEndpoint(t *testing.T) {
	f := newHandlersFixture()
	f.store.addPermission("p1", "resume", "read")
	f.store.userPerms["u1"] = []PermissionAssignment{{UserID: "u1", PermissionID: "p1", Granted: true}}

	w := f.do("POST", "/authz/check-any", batchCheckRequest{
		UserID: "u1",
		Checks: []Check{{Resource: "billing", Action: "manage"}, {Resource: "resume", Action: "read"}},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp checkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Allowed)

	// An empty check list never passes.
	w = f.do("POST", "/authz/check-any", batchCheckRequest{UserID: "u1"})
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Allowed)
}

// TestCheckAllEndpoint tests the all-of batch check
func TestCheckAllEndpoint(t *testing.T) {
	f := newHandlersFixture()
	f.store.addPermission("p1", "resume", "read")
	f.store.userPerms["u1"] = []PermissionAssignment{{UserID: "u1", PermissionID: "p1", Granted: true}}

	w := f.do("POST", "/authz/check-all", batchCheckRequest{
		UserID: "u1",
		Checks: []Check{{Resource: "resume", Action: "read"}, {Resource: "resume", Action: "delete"}},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp checkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Allowed)
}

// TestBatchCheck_InvalidCheck tests rejection of incomplete check entries
func TestBatchCheck_InvalidCheck(t *testing.T) {
	f := newHandlersFixture()

	w := f.do("POST", "/authz/check-any", batchCheckRequest{
		UserID: "u1",
		Checks: []Check{{Resource: "resume"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestGetUserContextEndpoint tests the full context read
func TestGetUserContextEndpoint(t *testing.T) {
	f := newHandlersFixture()
	f.store.addPermission("p1", "resume", "read")
	f.store.addRole("r1", "Editor", "p1")
	f.store.userRoles["u1"] = []RoleAssignment{{UserID: "u1", RoleID: "r1"}}

	w := f.do("GET", "/authz/users/u1/context", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp UserAuthContext
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, []string{"r1"}, resp.RoleIDs)
	require.Len(t, resp.Permissions, 1)
	assert.True(t, resp.Permissions[0].Granted)
	assert.Equal(t, "resume:read", resp.Permissions[0].Permission.Key())
}

// TestGetResourceActionsEndpoint tests the per-resource action listing
func TestGetResourceActionsEndpoint(t *testing.T) {
	f := newHandlersFixture()
	f.store.addPermission("p1", "resume", "update")
	f.store.addPermission("p2", "resume", "read")
	f.store.userPerms["u1"] = []PermissionAssignment{
		{UserID: "u1", PermissionID: "p1", Granted: true},
		{UserID: "u1", PermissionID: "p2", Granted: true},
	}

	w := f.do("GET", "/authz/users/u1/resources/resume/actions", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"read", "update"}, resp["actions"])
}

// TestAssignRoleEndpoint tests the role assignment mutation
func TestAssignRoleEndpoint(t *testing.T) {
	f := newHandlersFixture()
	f.store.addRole("r1", "Editor")

	expiry := time.Now().Add(time.Hour).UTC()
	w := f.do("POST", "/authz/users/u1/roles", assignRoleRequest{RoleID: "r1", Actor: "admin", ExpiresAt: &expiry})

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, f.store.userRoles["u1"], 1)
	assert.Equal(t, "r1", f.store.userRoles["u1"][0].RoleID)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventRoleAssigned, f.publisher.events[0].Type)
}

// TestAssignRoleEndpoint_UnknownRole tests a 404 for a missing role
func TestAssignRoleEndpoint_UnknownRole(t *testing.T) {
	f := newHandlersFixture()

	w := f.do("POST", "/authz/users/u1/roles", assignRoleRequest{RoleID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestAssignRoleEndpoint_MissingRoleID tests a 400 without a role_id
func TestAssignRoleEndpoint_MissingRoleID(t *testing.T) {
	f := newHandlersFixture()

	w := f.do("POST", "/authz/users/u1/roles", assignRoleRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestRevokeRoleEndpoint tests the role revocation mutation
func TestRevokeRoleEndpoint(t *testing.T) {
	f := newHandlersFixture()
	f.store.addRole("r1", "Editor")
	f.store.userRoles["u1"] = []RoleAssignment{{UserID: "u1", RoleID: "r1"}}

	w := f.do("DELETE", "/authz/users/u1/roles/r1", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, f.store.userRoles["u1"])

	// Revoking again reports the missing assignment.
	w = f.do("DELETE", "/authz/users/u1/roles/r1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestWritePermissionEndpoint tests direct grants and denials
func TestWritePermissionEndpoint(t *testing.T) {
	f := newHandlersFixture()
	f.store.addPermission("p1", "resume", "delete")

	w := f.doAs("admin", "POST", "/authz/users/u1/permissions", writePermissionRequest{PermissionID: "p1", Granted: false, Reason: "abuse"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	require.Len(t, f.store.userPerms["u1"], 1)
	a := f.store.userPerms["u1"][0]
	assert.False(t, a.Granted)
	require.NotNil(t, a.AssignedBy)
	assert.Equal(t, "admin", *a.AssignedBy)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventPermissionDenied, f.publisher.events[0].Type)

	w = f.do("POST", "/authz/users/u1/permissions", writePermissionRequest{PermissionID: "p1", Granted: true})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, f.store.userPerms["u1"][0].Granted)
	assert.Equal(t, EventPermissionGranted, f.publisher.events[1].Type)
}

// TestAddToGroupEndpoint tests the group membership mutations
func TestAddToGroupEndpoint(t *testing.T) {
	f := newHandlersFixture()
	f.store.addGroup(Group{ID: "g1", Name: "eng", DisplayName: "Engineering"})

	w := f.do("POST", "/authz/users/u1/groups", addToGroupRequest{GroupID: "g1"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, f.store.userGroups["u1"], 1)

	w = f.do("DELETE", "/authz/users/u1/groups/g1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, f.store.userGroups["u1"])
}

// TestInvalidateCacheEndpoints tests the cache administration routes
func TestInvalidateCacheEndpoints(t *testing.T) {
	f := newHandlersFixture()

	// Prime the cache through a check.
	f.do("POST", "/authz/check", checkRequest{UserID: "u1", Resource: "resume", Action: "read"})
	assert.Len(t, f.cache.entries, 1)

	w := f.do("DELETE", "/authz/users/u1/cache", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, f.cache.entries)

	f.do("POST", "/authz/check", checkRequest{UserID: "u1", Resource: "resume", Action: "read"})
	w = f.do("DELETE", "/authz/cache", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, f.cache.entries)
	assert.Equal(t, 1, f.cache.invalidateAlls)
}

// TestMutationInvalidatesCachedContext tests cache coherence end to end:
// a cached decision flips immediately after a mutation through the API.
func TestMutationInvalidatesCachedContext(t *testing.T) {
	f := newHandlersFixture()
	f.store.addPermission("p1", "resume", "read")
	f.store.addRole("r1", "Viewer", "p1")

	w := f.do("POST", "/authz/check", checkRequest{UserID: "u1", Resource: "resume", Action: "read"})
	var resp checkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Allowed)

	w = f.do("POST", "/authz/users/u1/roles", assignRoleRequest{RoleID: "r1"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do("POST", "/authz/check", checkRequest{UserID: "u1", Resource: "resume", Action: "read"})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Allowed, "Expected the grant to be visible immediately after assignment")
}

// TestActorFallsBackToCaller tests that mutations attribute the
// authenticated caller when no explicit actor is supplied.
func TestActorFallsBackToCaller(t *testing.T) {
	f := newHandlersFixture()
	f.store.addRole("r1", "Editor")

	w := f.doAs("ops-admin", "POST", "/authz/users/u1/roles", assignRoleRequest{RoleID: "r1"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	require.Len(t, f.store.userRoles["u1"], 1)
	a := f.store.userRoles["u1"][0]
	require.NotNil(t, a.AssignedBy)
	assert.Equal(t, "ops-admin", *a.AssignedBy)
}
