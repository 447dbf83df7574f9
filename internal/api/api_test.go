package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mealsync/mealsync/internal/api"
	"github.com/mealsync/mealsync/internal/cache"
	"github.com/mealsync/mealsync/internal/directory"
	"github.com/mealsync/mealsync/internal/domain"
	"github.com/mealsync/mealsync/internal/ledger"
	"github.com/mealsync/mealsync/internal/registry"
	"github.com/mealsync/mealsync/internal/storage/memory"
	syncpkg "github.com/mealsync/mealsync/internal/sync"
)

// testServer creates a test server with in-memory storage and a
// polling transport slow enough to stay silent during tests.
type testServer struct {
	handler http.Handler
	store   *memory.Store
	clock   *time.Time
}

func newTestServer() *testServer {
	store := memory.New()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := &now

	reg := registry.New(store, nil)
	dir := directory.New(store, nil)
	reconciler := ledger.NewReconciler(store, ledger.DefaultPolicy(),
		ledger.WithClock(func() time.Time { return *clock }))

	transport := syncpkg.NewPollTransport(time.Hour, time.Hour)
	syncMgr := syncpkg.NewManager(transport, store, cache.NewMemory(), nil)

	handler := api.NewRouter(api.Deps{
		Registry:      reg,
		Directory:     dir,
		Reconciler:    reconciler,
		SyncManager:   syncMgr,
		JWTSecret:     []byte("test-secret"),
		TokenDuration: time.Hour,
	})

	return &testServer{handler: handler, store: store, clock: clock}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// signIn mints an identity and returns its member id and token.
func (ts *testServer) signIn(t *testing.T) (string, string) {
	t.Helper()
	rr := ts.request("POST", "/api/v1/auth/anonymous", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("sign-in: expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		MemberID string `json:"member_id"`
		Token    string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("sign-in: decoding response: %v", err)
	}
	if resp.MemberID == "" || resp.Token == "" {
		t.Fatalf("sign-in: incomplete response: %s", rr.Body.String())
	}
	return resp.MemberID, resp.Token
}

// createGroup makes a group and returns the parsed group document.
func (ts *testServer) createGroup(t *testing.T, token, name string, settings domain.GroupSettings) domain.FamilyGroup {
	t.Helper()
	rr := ts.request("POST", "/api/v1/groups", domain.CreateGroupRequest{
		Name:        name,
		CreatorName: "Creator",
		Settings:    settings,
	}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create group: expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Group domain.FamilyGroup `json:"group"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("create group: decoding response: %v", err)
	}
	return resp.Group
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer()

	rr := ts.request("GET", "/health", nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %s", resp["status"])
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer()

	rr := ts.request("POST", "/api/v1/groups", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	rr = ts.request("POST", "/api/v1/groups", nil, "not-a-jwt")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
}

func TestAnonymousSignIn(t *testing.T) {
	ts := newTestServer()

	memberID, token := ts.signIn(t)

	// Restoring the same identity reuses the member id.
	rr := ts.request("POST", "/api/v1/auth/anonymous", map[string]string{"member_id": memberID}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var resp struct {
		MemberID string `json:"member_id"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.MemberID != memberID {
		t.Errorf("Expected member id %s, got %s", memberID, resp.MemberID)
	}

	// The token authenticates API calls.
	rr = ts.request("GET", "/api/v1/sync/status", nil, token)
	if rr.Code == http.StatusUnauthorized {
		t.Error("Token rejected")
	}
}

func TestGroupLifecycle(t *testing.T) {
	ts := newTestServer()
	creatorID, token := ts.signIn(t)

	group := ts.createGroup(t, token, "The Smiths", domain.GroupSettings{})
	if group.CreatedBy != creatorID {
		t.Errorf("Expected created_by %s, got %s", creatorID, group.CreatedBy)
	}
	if len(group.JoinCode) != 8 {
		t.Errorf("Expected 8-char join code, got %q", group.JoinCode)
	}
	if group.MemberCount != 1 {
		t.Errorf("Expected member count 1, got %d", group.MemberCount)
	}

	// Lookup by code
	rr := ts.request("GET", "/api/v1/groups/code/"+group.JoinCode, nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Unknown but well-formed code is a plain 404
	rr = ts.request("GET", "/api/v1/groups/code/ZZZZ9999", nil, token)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}

	// Malformed code is a validation failure
	rr = ts.request("GET", "/api/v1/groups/code/bad", nil, token)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}

	// Update settings
	rr = ts.request("PUT", "/api/v1/groups/"+group.ID+"/settings",
		domain.UpdateGroupSettingsRequest{Settings: domain.GroupSettings{RequireApproval: true}}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var updated domain.FamilyGroup
	_ = json.Unmarshal(rr.Body.Bytes(), &updated)
	if !updated.Settings.RequireApproval {
		t.Error("Expected require_approval to be set")
	}
}

func TestJoinByCode(t *testing.T) {
	ts := newTestServer()
	_, creatorToken := ts.signIn(t)
	group := ts.createGroup(t, creatorToken, "The Smiths", domain.GroupSettings{})

	joinerID, joinerToken := ts.signIn(t)
	rr := ts.request("POST", "/api/v1/groups/join", domain.JoinGroupRequest{
		Code: group.JoinCode,
		Name: "Alice",
	}, joinerToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Member domain.FamilyMember `json:"member"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Member.ID != joinerID {
		t.Errorf("Expected member id %s, got %s", joinerID, resp.Member.ID)
	}

	// Roster now has creator and joiner.
	rr = ts.request("GET", "/api/v1/groups/"+group.ID+"/members", nil, joinerToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var members []domain.FamilyMember
	_ = json.Unmarshal(rr.Body.Bytes(), &members)
	if len(members) != 2 {
		t.Errorf("Expected 2 members, got %d", len(members))
	}
}

func TestJoinWithApproval(t *testing.T) {
	ts := newTestServer()
	_, creatorToken := ts.signIn(t)
	group := ts.createGroup(t, creatorToken, "The Smiths", domain.GroupSettings{RequireApproval: true})

	joinerID, joinerToken := ts.signIn(t)
	rr := ts.request("POST", "/api/v1/groups/join", domain.JoinGroupRequest{
		Code: group.JoinCode,
		Name: "Alice",
	}, joinerToken)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var jr domain.JoinRequest
	_ = json.Unmarshal(rr.Body.Bytes(), &jr)
	if jr.Status != domain.JoinRequestPending {
		t.Errorf("Expected pending, got %s", jr.Status)
	}

	// Approve it
	rr = ts.request("POST", "/api/v1/groups/"+group.ID+"/join-requests/"+jr.ID+"/respond",
		domain.RespondJoinRequest{Approved: true}, creatorToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var member domain.FamilyMember
	_ = json.Unmarshal(rr.Body.Bytes(), &member)
	if member.ID != joinerID {
		t.Errorf("Expected member id %s, got %s", joinerID, member.ID)
	}
}

func TestMemberCRUD(t *testing.T) {
	ts := newTestServer()
	_, token := ts.signIn(t)
	group := ts.createGroup(t, token, "The Smiths", domain.GroupSettings{})

	rr := ts.request("POST", "/api/v1/groups/"+group.ID+"/members",
		domain.AddMemberRequest{Name: "Kid", Role: domain.RoleChild}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var kid domain.FamilyMember
	_ = json.Unmarshal(rr.Body.Bytes(), &kid)
	if kid.IsProxy {
		t.Error("New member unexpectedly has proxy permission")
	}

	// Toggle the proxy flag via full-record update
	rr = ts.request("PUT", "/api/v1/groups/"+group.ID+"/members/"+kid.ID,
		domain.UpdateMemberRequest{Name: "Kid", Role: domain.RoleChild, IsProxy: true}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var updated domain.FamilyMember
	_ = json.Unmarshal(rr.Body.Bytes(), &updated)
	if !updated.IsProxy {
		t.Error("Expected proxy flag to be set")
	}

	// Delete
	rr = ts.request("DELETE", "/api/v1/groups/"+group.ID+"/members/"+kid.ID, nil, token)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rr.Code)
	}
	rr = ts.request("GET", "/api/v1/groups/"+group.ID+"/members/"+kid.ID, nil, token)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestAttendanceFlow(t *testing.T) {
	ts := newTestServer()
	creatorID, token := ts.signIn(t)
	group := ts.createGroup(t, token, "The Smiths", domain.GroupSettings{})

	// Self response
	rr := ts.request("POST", "/api/v1/groups/"+group.ID+"/attendance/responses",
		domain.SubmitResponseRequest{Date: "2025-06-01", MealType: domain.MealDinner, WillAttend: true}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var entry struct {
		domain.AttendanceEntry
		State domain.EntryState `json:"state"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &entry)
	if len(entry.Attendees) != 1 || entry.Attendees[0] != creatorID {
		t.Errorf("Expected attendees [%s], got %v", creatorID, entry.Attendees)
	}
	if entry.State != domain.EntryOpen {
		t.Errorf("Expected open state, got %s", entry.State)
	}

	// Read it back by key
	rr = ts.request("GET", "/api/v1/groups/"+group.ID+"/attendance/2025-06-01/dinner", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Listing with the date filter
	rr = ts.request("GET", "/api/v1/groups/"+group.ID+"/attendance?date=2025-06-01", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	// Unregistered key
	rr = ts.request("GET", "/api/v1/groups/"+group.ID+"/attendance/2025-06-02/lunch", nil, token)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}

	// Reset the date
	rr = ts.request("DELETE", "/api/v1/groups/"+group.ID+"/attendance/2025-06-01", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var reset map[string]int
	_ = json.Unmarshal(rr.Body.Bytes(), &reset)
	if reset["removed"] != 1 {
		t.Errorf("Expected 1 removed, got %d", reset["removed"])
	}
}

func TestProxyRequiredForOthers(t *testing.T) {
	ts := newTestServer()
	_, creatorToken := ts.signIn(t)
	group := ts.createGroup(t, creatorToken, "The Smiths", domain.GroupSettings{})

	// A second member without proxy permission
	otherID, otherToken := ts.signIn(t)
	rr := ts.request("POST", "/api/v1/groups/join", domain.JoinGroupRequest{
		Code: group.JoinCode,
		Name: "Alice",
	}, otherToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("join: expected status 201, got %d", rr.Code)
	}

	// Find the creator's member id from the roster
	rr = ts.request("GET", "/api/v1/groups/"+group.ID+"/members", nil, otherToken)
	var members []domain.FamilyMember
	_ = json.Unmarshal(rr.Body.Bytes(), &members)
	if len(members) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(members))
	}
	creatorMemberID := members[0].ID
	if creatorMemberID == otherID {
		creatorMemberID = members[1].ID
	}

	rr = ts.request("POST", "/api/v1/groups/"+group.ID+"/attendance/responses",
		domain.SubmitResponseRequest{
			MemberID: creatorMemberID, Date: "2025-06-01", MealType: domain.MealDinner, WillAttend: true,
		}, otherToken)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestDeadlineLockoutOverHTTP(t *testing.T) {
	ts := newTestServer()
	_, token := ts.signIn(t)
	group := ts.createGroup(t, token, "The Smiths", domain.GroupSettings{})

	rr := ts.request("POST", "/api/v1/groups/"+group.ID+"/attendance/responses",
		domain.SubmitResponseRequest{Date: "2025-06-01", MealType: domain.MealDinner, WillAttend: true}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Move past the 30 minute grace window.
	*ts.clock = ts.clock.Add(time.Hour)

	rr = ts.request("POST", "/api/v1/groups/"+group.ID+"/attendance/responses",
		domain.SubmitResponseRequest{Date: "2025-06-01", MealType: domain.MealDinner, WillAttend: false}, token)
	if rr.Code != http.StatusLocked {
		t.Errorf("Expected status 423, got %d: %s", rr.Code, rr.Body.String())
	}

	// Clearing expired entries removes it.
	rr = ts.request("POST", "/api/v1/groups/"+group.ID+"/attendance/clear-expired", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var cleared map[string]int
	_ = json.Unmarshal(rr.Body.Bytes(), &cleared)
	if cleared["removed"] != 1 {
		t.Errorf("Expected 1 removed, got %d", cleared["removed"])
	}
}

func TestRegisterAttendanceEndpoint(t *testing.T) {
	ts := newTestServer()
	creatorID, token := ts.signIn(t)
	group := ts.createGroup(t, token, "The Smiths", domain.GroupSettings{})

	// Creator has no proxy flag yet; grant it first.
	rr := ts.request("PUT", "/api/v1/groups/"+group.ID+"/members/"+creatorID,
		domain.UpdateMemberRequest{Name: "Creator", Role: domain.RoleParent, IsProxy: true}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("grant proxy: expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = ts.request("POST", "/api/v1/groups/"+group.ID+"/members",
		domain.AddMemberRequest{Name: "Kid", Role: domain.RoleChild}, token)
	var kid domain.FamilyMember
	_ = json.Unmarshal(rr.Body.Bytes(), &kid)

	rr = ts.request("POST", "/api/v1/groups/"+group.ID+"/attendance/register",
		domain.RegisterAttendanceRequest{
			Date: "2025-06-01", MealType: domain.MealDinner, AttendeeIDs: []string{creatorID},
		}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var entry domain.AttendanceEntry
	_ = json.Unmarshal(rr.Body.Bytes(), &entry)
	if len(entry.Attendees) != 1 || entry.Attendees[0] != creatorID {
		t.Errorf("Expected attendees [%s], got %v", creatorID, entry.Attendees)
	}
	if len(entry.Responses) != 2 {
		t.Errorf("Expected responses for the whole roster, got %d", len(entry.Responses))
	}
}

func TestSyncSessionEndpoints(t *testing.T) {
	ts := newTestServer()
	_, token := ts.signIn(t)
	group := ts.createGroup(t, token, "The Smiths", domain.GroupSettings{})

	// No session yet
	rr := ts.request("GET", "/api/v1/sync/status", nil, token)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rr.Code)
	}

	rr = ts.request("POST", "/api/v1/groups/"+group.ID+"/sync/start", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var status struct {
		FamilyID     string     `json:"family_id"`
		Connected    bool       `json:"connected"`
		Transport    string     `json:"transport"`
		LastSyncTime *time.Time `json:"last_sync_time"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &status)
	if status.FamilyID != group.ID || !status.Connected || status.Transport != "poll" {
		t.Errorf("Unexpected status: %+v", status)
	}
	if status.LastSyncTime == nil || status.LastSyncTime.IsZero() {
		t.Error("Expected last_sync_time after the initial snapshot reads")
	}

	rr = ts.request("GET", "/api/v1/sync/status", nil, token)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	// Nothing buffered, replay applies zero
	rr = ts.request("POST", "/api/v1/sync/offline", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var applied map[string]int
	_ = json.Unmarshal(rr.Body.Bytes(), &applied)
	if applied["applied"] != 0 {
		t.Errorf("Expected 0 applied, got %d", applied["applied"])
	}

	rr = ts.request("POST", "/api/v1/sync/stop", nil, token)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
	rr = ts.request("GET", "/api/v1/sync/status", nil, token)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status 409 after stop, got %d", rr.Code)
	}
}
