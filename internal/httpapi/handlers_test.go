package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"auditlog-service/internal/auditlog"
	"auditlog-service/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestRouter() (*gin.Engine, *auditlog.MemoryRepo) {
	gin.SetMode(gin.TestMode)
	repo := auditlog.NewMemoryRepo()
	h := Handlers{
		Logs:    auditlog.NewService(repo, nil),
		Metrics: metrics.New(prometheus.NewRegistry()),
	}
	r := gin.New()
	r.POST("/v1/audit-logs", h.CreateAuditLog)
	r.GET("/v1/audit-logs", h.ListAuditLogs)
	r.GET("/v1/audit-logs/:id/verify", h.VerifyAuditLog)
	return r, repo
}

func doJSON(r *gin.Engine, method, path, requestID, body string) (*httptest.ResponseRecorder, map[string]any) {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("X-Request-Id", requestID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &parsed)
	return w, parsed
}

const (
	requestID = "e1d9a5a2-4f6b-4d3a-9b1c-7e2f8a9d0c41"
	loginBody = `{"action":"user.login","resource_type":"session","resource_id":"s-1","payload":{"ip":"127.0.0.1"}}`
)

func TestCreateAuditLog_EndToEnd(t *testing.T) {
	r, repo := newTestRouter()

	// First submission creates.
	w, res := doJSON(r, http.MethodPost, "/v1/audit-logs", requestID, loginBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	data := res["data"].(map[string]any)
	recordID, _ := data["id"].(string)
	checksum, _ := data["checksum"].(string)
	if recordID == "" || len(checksum) != 64 {
		t.Fatalf("expected id and sha-256 checksum in response, got %v", data)
	}

	// Replay with the same body is a silent 200 returning the same record.
	w, res = doJSON(r, http.MethodPost, "/v1/audit-logs", requestID, loginBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d: %s", w.Code, w.Body.String())
	}
	if got := res["data"].(map[string]any)["id"]; got != recordID {
		t.Fatalf("replay must return the original record, got %v", got)
	}

	// Same key with a different body is a 409 naming request_id.
	conflictBody := strings.Replace(loginBody, "127.0.0.1", "10.0.0.1", 1)
	w, res = doJSON(r, http.MethodPost, "/v1/audit-logs", requestID, conflictBody)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if _, ok := res["errors"].(map[string]any)["request_id"]; !ok {
		t.Fatalf("conflict response must name request_id, got %s", w.Body.String())
	}
	if repo.Len() != 1 {
		t.Fatalf("table must still hold exactly one row, got %d", repo.Len())
	}

	// Fresh record verifies.
	w, res = doJSON(r, http.MethodGet, "/v1/audit-logs/"+recordID+"/verify", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if valid := res["data"].(map[string]any)["valid"]; valid != true {
		t.Fatalf("expected valid=true, got %v", valid)
	}

	// Out-of-band mutation is detected.
	repo.Tamper(recordID, func(rec *auditlog.Record) { rec.Action = "user.logout" })
	w, res = doJSON(r, http.MethodGet, "/v1/audit-logs/"+recordID+"/verify", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if valid := res["data"].(map[string]any)["valid"]; valid != false {
		t.Fatalf("expected valid=false after tampering, got %v", valid)
	}
}

func TestCreateAuditLog_RequiresUUIDRequestID(t *testing.T) {
	r, _ := newTestRouter()

	for _, rid := range []string{"", "not-a-uuid"} {
		w, res := doJSON(r, http.MethodPost, "/v1/audit-logs", rid, loginBody)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("rid %q: expected 422, got %d", rid, w.Code)
		}
		if _, ok := res["errors"].(map[string]any)["request_id"]; !ok {
			t.Fatalf("rid %q: expected request_id field error, got %s", rid, w.Body.String())
		}
	}
}

func TestCreateAuditLog_ValidatesBody(t *testing.T) {
	r, _ := newTestRouter()

	cases := []struct {
		body  string
		field string
	}{
		{`{"resource_type":"session","resource_id":"s-1"}`, "action"},
		{`{"action":"user.login","resource_id":"s-1"}`, "resource_type"},
		{`{"action":"user.login","resource_type":"session"}`, "resource_id"},
		{`{"action":"user.login","resource_type":"session","resource_id":"s-1","actor_id":"nope"}`, "actor_id"},
		{`{"action":"user.login","resource_type":"session","resource_id":"s-1","payload":"scalar"}`, "payload"},
		{`{"action":"` + strings.Repeat("x", 256) + `","resource_type":"session","resource_id":"s-1"}`, "action"},
	}
	for _, tc := range cases {
		w, res := doJSON(r, http.MethodPost, "/v1/audit-logs", requestID, tc.body)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("body %s: expected 422, got %d", tc.body, w.Code)
		}
		if _, ok := res["errors"].(map[string]any)[tc.field]; !ok {
			t.Fatalf("expected %s field error, got %s", tc.field, w.Body.String())
		}
	}
}

func TestVerifyAuditLog_Errors(t *testing.T) {
	r, _ := newTestRouter()

	w, _ := doJSON(r, http.MethodGet, "/v1/audit-logs/not-a-uuid/verify", "", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for malformed id, got %d", w.Code)
	}

	w, _ = doJSON(r, http.MethodGet, "/v1/audit-logs/0b7f3a84-57b2-4a04-9c36-0c6e3f6b8f11/verify", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", w.Code)
	}
}

func TestListAuditLogs_EnvelopeAndPaging(t *testing.T) {
	r, _ := newTestRouter()

	for i := 0; i < 5; i++ {
		rid := fmt.Sprintf("00000000-0000-4000-8000-%012x", i)
		body := fmt.Sprintf(`{"action":"user.login","resource_type":"session","resource_id":"s-%d","payload":{"ip":"127.0.0.1"}}`, i)
		if w, _ := doJSON(r, http.MethodPost, "/v1/audit-logs", rid, body); w.Code != http.StatusCreated {
			t.Fatalf("seed %d failed: %d", i, w.Code)
		}
	}

	seen := map[string]struct{}{}
	cursor := ""
	for {
		path := "/v1/audit-logs?limit=2"
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		w, res := doJSON(r, http.MethodGet, path, "", "")
		if w.Code != http.StatusOK {
			t.Fatalf("list: expected 200, got %d: %s", w.Code, w.Body.String())
		}
		meta := res["meta"].(map[string]any)
		for _, item := range res["data"].([]any) {
			id := item.(map[string]any)["id"].(string)
			if _, dup := seen[id]; dup {
				t.Fatalf("record %s returned twice", id)
			}
			seen[id] = struct{}{}
		}
		if meta["has_more"] != true {
			if meta["next_cursor"] != nil {
				t.Fatalf("final page must carry a null cursor, got %v", meta["next_cursor"])
			}
			break
		}
		cursor = meta["next_cursor"].(string)
	}
	if len(seen) != 5 {
		t.Fatalf("expected all 5 records across pages, got %d", len(seen))
	}
}

func TestListAuditLogs_RejectsInvalidQuery(t *testing.T) {
	r, _ := newTestRouter()

	for _, path := range []string{
		"/v1/audit-logs?limit=0",
		"/v1/audit-logs?limit=101",
		"/v1/audit-logs?limit=abc",
		"/v1/audit-logs?actor_id=nope",
		"/v1/audit-logs?ip=999.999.1.1",
		"/v1/audit-logs?from=yesterday",
	} {
		w, _ := doJSON(r, http.MethodGet, path, "", "")
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", path, w.Code)
		}
	}
}

func TestListAuditLogs_Filters(t *testing.T) {
	r, _ := newTestRouter()

	seed := []struct {
		rid, body string
	}{
		{"00000000-0000-4000-8000-000000000101", `{"action":"user.login","resource_type":"session","resource_id":"s-1","payload":{"ip":"127.0.0.1"}}`},
		{"00000000-0000-4000-8000-000000000102", `{"action":"billing.charge","resource_type":"invoice","resource_id":"i-1","payload":{"ip":"10.0.0.1"}}`},
	}
	for _, s := range seed {
		if w, _ := doJSON(r, http.MethodPost, "/v1/audit-logs", s.rid, s.body); w.Code != http.StatusCreated {
			t.Fatalf("seed failed: %d", w.Code)
		}
	}

	w, res := doJSON(r, http.MethodGet, "/v1/audit-logs?action=USER.&ip=127.0.0.1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	data := res["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected one filtered record, got %d", len(data))
	}
	if action := data[0].(map[string]any)["action"]; action != "user.login" {
		t.Fatalf("unexpected record: %v", action)
	}
}
