package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"agendaviva/internal/config"
	"agendaviva/internal/db"
	"agendaviva/internal/domain"
	"agendaviva/internal/engine"
	"agendaviva/internal/engine/authz"
	"agendaviva/internal/migrate"
	"agendaviva/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("agendaviva")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	// Jan 5 2026 is a Monday.
	e.Now = func() time.Time { return time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func bearer(t *testing.T, userID string, roles []string, approved bool) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, userID, roles, approved, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func adminHeaders(t *testing.T) map[string]string {
	return bearer(t, "admin-1", []string{authz.RoleAdmin}, true)
}

func memberHeaders(t *testing.T, userID string) map[string]string {
	return bearer(t, userID, nil, true)
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope %s: %v", string(data), err)
	}
	return envelope.Error.Code
}

func createWeekly(t *testing.T, srv *testServer, capacity int, requiresApproval bool) ActivityResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/activities", map[string]any{
		"title": "Ceramics workshop",
		"kind":  "recurring",
		"recurrence": map[string]any{
			"frequency":    "weekly",
			"days_of_week": []int{1, 3},
			"time_of_day":  "19:00",
			"start_date":   "2026-01-05",
		},
		"capacity":          capacity,
		"requires_approval": requiresApproval,
		"state":             "published",
	}, adminHeaders(t))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create activity status %d: %s", res.StatusCode, string(data))
	}
	var a ActivityResponse
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}
	return a
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/activities", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", res.StatusCode)
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("code %q, want unauthorized", code)
	}
	// Health stays open.
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d, want 200", res.StatusCode)
	}
	// Garbage tokens are rejected.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/activities", nil, map[string]string{
		"Authorization": "Bearer not-a-jwt",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status %d, want 401", res.StatusCode)
	}
	if code := errorCode(t, data); code != "invalid_credentials" {
		t.Fatalf("code %q, want invalid_credentials", code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	rawKey := "agv-test-key-123"
	err := srv.Engine.Repo.InsertAPIKey(context.Background(), domain.APIKey{
		ID:      "key-1",
		UserID:  "svc-1",
		Name:    "integration",
		KeyHash: repo.HashAPIKey(rawKey),
	})
	if err != nil {
		t.Fatalf("insert api key: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"X-Api-Key": rawKey,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatal(err)
	}
	if who.UserID != "svc-1" || !who.Approved || who.Source != "api_key" {
		t.Fatalf("whoami = %+v", who)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"X-Api-Key": "wrong",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key status %d, want 401", res.StatusCode)
	}
}

func TestActivityLifecycleAndVisibility(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	// Non-admins cannot create.
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/activities", map[string]any{
		"title": "Nope",
		"kind":  "single",
		"date":  "2026-01-10",
	}, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member create status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("code %q, want forbidden", code)
	}

	// Admin creates a draft.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/activities", map[string]any{
		"title": "Pottery evening",
		"kind":  "single",
		"date":  "2026-01-10",
	}, adminHeaders(t))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var draft ActivityResponse
	if err := json.Unmarshal(data, &draft); err != nil {
		t.Fatal(err)
	}
	if draft.State != domain.ActivityDraft {
		t.Fatalf("state %q, want draft", draft.State)
	}

	// Drafts are invisible to members.
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/activities/"+draft.ID, nil, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("member get draft status %d, want 404", res.StatusCode)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/activities", nil, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member list status %d", res.StatusCode)
	}
	var listed []ActivityResponse
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 0 {
		t.Fatalf("member should not see drafts: %v", listed)
	}

	// Publish, then the member sees it with its next occurrence.
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/activities/"+draft.ID+"/publish", nil, adminHeaders(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish status %d", res.StatusCode)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/activities/"+draft.ID, nil, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member get status %d: %s", res.StatusCode, string(data))
	}
	var published ActivityResponse
	if err := json.Unmarshal(data, &published); err != nil {
		t.Fatal(err)
	}
	if published.NextOccurrence == nil || published.NextOccurrence.Date != "2026-01-10" {
		t.Fatalf("next occurrence = %+v, want 2026-01-10", published.NextOccurrence)
	}

	// Publishing twice conflicts.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/activities/"+draft.ID+"/publish", nil, adminHeaders(t))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("re-publish status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "conflict" {
		t.Fatalf("code %q, want conflict", code)
	}

	// Soft delete hides it from everyone.
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/activities/"+draft.ID, nil, adminHeaders(t))
	if res.StatusCode >= 300 {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/activities/"+draft.ID, nil, adminHeaders(t))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted status %d, want 404", res.StatusCode)
	}
}

func TestActivityUpdateAndDateFilter(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	weekly := createWeekly(t, srv, 5, false)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/activities", map[string]any{
		"title": "Museum night",
		"kind":  "single",
		"date":  "2026-01-20",
		"time":  "20:00",
		"state": "published",
	}, adminHeaders(t))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create single status %d: %s", res.StatusCode, string(data))
	}
	var single ActivityResponse
	if err := json.Unmarshal(data, &single); err != nil {
		t.Fatal(err)
	}

	// Members cannot update.
	update := map[string]any{
		"title": "Ceramics workshop (new room)",
		"kind":  "recurring",
		"recurrence": map[string]any{
			"frequency":    "weekly",
			"days_of_week": []int{1, 3},
			"time_of_day":  "19:00",
			"start_date":   "2026-01-05",
		},
		"capacity": 5,
	}
	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/activities/"+weekly.ID, update, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member update status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/activities/"+weekly.ID, update, adminHeaders(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var updated ActivityResponse
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Title != "Ceramics workshop (new room)" || updated.State != "published" {
		t.Fatalf("updated = %+v", updated)
	}

	// The date-range filter matches activities by their occurrences.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/activities?from=2026-01-20&to=2026-01-20", nil, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("filtered list status %d: %s", res.StatusCode, string(data))
	}
	var list []ActivityResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != single.ID {
		t.Fatalf("from/to 2026-01-20 = %+v, want only the single activity", list)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/activities?from=2026-01-07&to=2026-01-07", nil, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("filtered list status %d: %s", res.StatusCode, string(data))
	}
	list = nil
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != weekly.ID {
		t.Fatalf("from/to 2026-01-07 = %+v, want only the weekly activity", list)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/activities?from=nope", nil, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad from status %d: %s", res.StatusCode, string(data))
	}
}

func TestEnrollmentFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	a := createWeekly(t, srv, 1, false)

	// First member takes the slot.
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/enrollments", map[string]any{
		"activity_id":     a.ID,
		"occurrence_date": "2026-01-07",
	}, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("enroll u1 status %d: %s", res.StatusCode, string(data))
	}
	var first EnrollmentResponse
	if err := json.Unmarshal(data, &first); err != nil {
		t.Fatal(err)
	}
	if first.State != domain.EnrollmentAccepted || first.Outcome != "accepted" {
		t.Fatalf("u1 = %s/%s, want accepted", first.State, first.Outcome)
	}

	// Second member lands on the waitlist.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/enrollments", map[string]any{
		"activity_id":     a.ID,
		"occurrence_date": "2026-01-07",
	}, memberHeaders(t, "u2"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("enroll u2 status %d: %s", res.StatusCode, string(data))
	}
	var second EnrollmentResponse
	if err := json.Unmarshal(data, &second); err != nil {
		t.Fatal(err)
	}
	if second.State != domain.EnrollmentWaitlisted {
		t.Fatalf("u2 = %s, want waitlisted", second.State)
	}

	// Duplicate live enrollment conflicts.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/enrollments", map[string]any{
		"activity_id":     a.ID,
		"occurrence_date": "2026-01-07",
	}, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "conflict" {
		t.Fatalf("code %q, want conflict", code)
	}

	// The occurrence view reflects the full slot.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/activities/"+a.ID+"/occurrences?from=2026-01-07&to=2026-01-07", nil, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("occurrences status %d: %s", res.StatusCode, string(data))
	}
	var occs []OccurrenceResponse
	if err := json.Unmarshal(data, &occs); err != nil {
		t.Fatal(err)
	}
	if len(occs) != 1 || occs[0].AcceptedCount != 1 || occs[0].HasCapacity {
		t.Fatalf("occurrences = %+v, want one full occurrence", occs)
	}
	if occs[0].CallerState == nil || *occs[0].CallerState != domain.EnrollmentAccepted {
		t.Fatalf("caller state = %v", occs[0].CallerState)
	}

	// A stranger cannot read someone else's enrollment.
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/enrollments/"+first.ID, nil, memberHeaders(t, "u3"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger get status %d, want 403", res.StatusCode)
	}

	// Cancelling the accepted slot promotes the waitlisted member.
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/enrollments/"+first.ID+"/cancel", nil, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/enrollments/"+second.ID, nil, memberHeaders(t, "u2"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get second status %d", res.StatusCode)
	}
	var promoted EnrollmentResponse
	if err := json.Unmarshal(data, &promoted); err != nil {
		t.Fatal(err)
	}
	if promoted.State != domain.EnrollmentAccepted {
		t.Fatalf("u2 after cancel = %s, want accepted", promoted.State)
	}

	// The member sees both their rows.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me/enrollments", nil, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("my enrollments status %d", res.StatusCode)
	}
	var mine []EnrollmentResponse
	if err := json.Unmarshal(data, &mine); err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].State != domain.EnrollmentCancelled {
		t.Fatalf("my enrollments = %+v", mine)
	}
}

func TestApprovalQueueOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	a := createWeekly(t, srv, 1, true)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/enrollments", map[string]any{
		"activity_id":     a.ID,
		"occurrence_date": "2026-01-07",
	}, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("enroll status %d: %s", res.StatusCode, string(data))
	}
	var enr EnrollmentResponse
	if err := json.Unmarshal(data, &enr); err != nil {
		t.Fatal(err)
	}
	if enr.State != domain.EnrollmentPending {
		t.Fatalf("state %s, want pending", enr.State)
	}

	// Members cannot approve.
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/enrollments/"+enr.ID+"/approve", nil, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member approve status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/enrollments/"+enr.ID+"/approve", nil, adminHeaders(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	var approved EnrollmentResponse
	if err := json.Unmarshal(data, &approved); err != nil {
		t.Fatal(err)
	}
	if approved.State != domain.EnrollmentAccepted || approved.Outcome != "accepted" {
		t.Fatalf("approve = %s/%s", approved.State, approved.Outcome)
	}

	// Second pending enrollment hits the capacity conflict outcome.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/enrollments", map[string]any{
		"activity_id":     a.ID,
		"occurrence_date": "2026-01-07",
	}, memberHeaders(t, "u2"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("enroll u2 status %d: %s", res.StatusCode, string(data))
	}
	var pending EnrollmentResponse
	if err := json.Unmarshal(data, &pending); err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/enrollments/"+pending.ID+"/approve", nil, adminHeaders(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve over capacity status %d: %s", res.StatusCode, string(data))
	}
	var conflicted EnrollmentResponse
	if err := json.Unmarshal(data, &conflicted); err != nil {
		t.Fatal(err)
	}
	if conflicted.State != domain.EnrollmentWaitlisted || conflicted.Outcome != "capacity_conflict" {
		t.Fatalf("approve over capacity = %s/%s", conflicted.State, conflicted.Outcome)
	}
}

func TestEnrollmentRequestValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	a := createWeekly(t, srv, 2, false)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/enrollments", map[string]any{
		"occurrence_date": "2026-01-07",
	}, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing activity_id status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "bad_request" {
		t.Fatalf("code %q, want bad_request", code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/enrollments", map[string]any{
		"activity_id":     a.ID,
		"occurrence_date": "2026-01-08",
	}, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("off-schedule date status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/enrollments", map[string]any{
		"activity_id":     "missing",
		"occurrence_date": "2026-01-07",
	}, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown activity status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("code %q, want not_found", code)
	}
}

func TestEventLogIsAdminOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	a := createWeekly(t, srv, 2, false)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/enrollments", map[string]any{
		"activity_id":     a.ID,
		"occurrence_date": "2026-01-07",
	}, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("enroll status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events", nil, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member events status %d, want 403", res.StatusCode)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?limit=2", nil, adminHeaders(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Items) == 0 {
		t.Fatalf("expected events in the log")
	}
	if page.Items[0].Type != "enrollment.created" {
		t.Fatalf("latest event = %s, want enrollment.created", page.Items[0].Type)
	}
}

func TestTagsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tags", map[string]any{"name": "outdoors"}, adminHeaders(t))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create tag status %d: %s", res.StatusCode, string(data))
	}
	var created TagResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatal(err)
	}
	// Creating again returns the same tag.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tags", map[string]any{"name": "outdoors"}, adminHeaders(t))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("re-create tag status %d: %s", res.StatusCode, string(data))
	}
	var again TagResponse
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatal(err)
	}
	if again.ID != created.ID {
		t.Fatalf("tag ids differ: %s vs %s", again.ID, created.ID)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tags", map[string]any{"name": "nope"}, memberHeaders(t, "u1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member create tag status %d, want 403", res.StatusCode)
	}
}
