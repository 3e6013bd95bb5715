package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hitmeter/internal/audit"
	"hitmeter/internal/config"
	"hitmeter/internal/engine"
	"hitmeter/internal/snapshot"
)

func newTestServer() (*Server, *engine.Engine) {
	cfg := config.NewStaticManager(config.DefaultConfig())
	snaps := snapshot.NewStore(100)
	auditStore := audit.NewStore(100)
	eng := engine.NewEngine(cfg.Get(), nil, snaps, auditStore, nil)
	return NewServer(cfg, eng, snaps, auditStore, nil, "test"), eng
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostHitsAndQuery(t *testing.T) {
	srv, _ := newTestServer()
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/hits",
		`[{"ts":1,"group":"trip","user":"alice"},{"ts":2,"group":"trip","user":"alice"},{"ts":60,"group":"trip","user":"bob"}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("post hits status=%d", rec.Code)
	}
	var post struct {
		Accepted int `json:"accepted"`
		Failed   int `json:"failed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &post); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if post.Accepted != 3 || post.Failed != 0 {
		t.Fatalf("accepted=%d failed=%d", post.Accepted, post.Failed)
	}

	rec = doRequest(t, h, http.MethodGet, "/total?ts=60", "")
	var total struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &total); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if total.Total != 3 {
		t.Fatalf("total=%d, want 3", total.Total)
	}

	rec = doRequest(t, h, http.MethodGet, "/group/trip?ts=61", "")
	var group struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &group); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if group.Total != 2 {
		t.Fatalf("group total=%d, want 2", group.Total)
	}

	rec = doRequest(t, h, http.MethodGet, "/users/trip?ts=61", "")
	var users struct {
		Window string `json:"window"`
		Users  []struct {
			User  string `json:"user"`
			Count int    `json:"count"`
		} `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if users.Window != "last_60_seconds" {
		t.Fatalf("window=%q", users.Window)
	}
	if len(users.Users) != 2 || users.Users[0].User != "alice" || users.Users[1].User != "bob" {
		t.Fatalf("users=%+v", users.Users)
	}
}

func TestPostHitsRejectsBadPayload(t *testing.T) {
	srv, _ := newTestServer()
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/hits", `{"group":"trip"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var post struct {
		Accepted int `json:"accepted"`
		Failed   int `json:"failed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &post); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if post.Accepted != 0 || post.Failed != 1 {
		t.Fatalf("accepted=%d failed=%d", post.Accepted, post.Failed)
	}

	if rec := doRequest(t, h, http.MethodPost, "/hits", "not json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("garbage body status=%d, want 400", rec.Code)
	}
}

func TestBadTimestampParam(t *testing.T) {
	srv, _ := newTestServer()
	h := srv.Handler()
	if rec := doRequest(t, h, http.MethodGet, "/total?ts=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestUnknownGroupQuery(t *testing.T) {
	srv, _ := newTestServer()
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/group/missing?ts=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var group struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &group); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if group.Total != 0 {
		t.Fatalf("unknown group total=%d, want 0", group.Total)
	}

	rec = doRequest(t, h, http.MethodGet, "/users/missing?ts=5", "")
	var users struct {
		Users []any `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(users.Users) != 0 {
		t.Fatalf("unknown group users=%v, want empty", users.Users)
	}
}

func TestWindowResizeEndpoint(t *testing.T) {
	srv, eng := newTestServer()
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/config/window", `{"window_sec":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if eng.WindowSec() != 10 {
		t.Fatalf("window=%d, want 10", eng.WindowSec())
	}
	if rec := doRequest(t, h, http.MethodPost, "/config/window", `{"window_sec":0}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("zero window status=%d, want 400", rec.Code)
	}
}

func TestAdminSnapshotAndReset(t *testing.T) {
	srv, eng := newTestServer()
	h := srv.Handler()

	doRequest(t, h, http.MethodPost, "/hits", `{"ts":5,"group":"trip","user":"alice"}`)
	rec := doRequest(t, h, http.MethodPost, "/admin/snapshot?ts=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status=%d", rec.Code)
	}
	var snap struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Count != 1 {
		t.Fatalf("snapshot count=%d, want 1", snap.Count)
	}

	if rec := doRequest(t, h, http.MethodPost, "/admin/reset", ""); rec.Code != http.StatusOK {
		t.Fatalf("reset status=%d", rec.Code)
	}
	if eng.Total(5) != 0 {
		t.Fatalf("total after reset=%d, want 0", eng.Total(5))
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer()
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var status struct {
		Status    string `json:"status"`
		WindowSec int64  `json:"window_sec"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "ok" || status.WindowSec != 60 {
		t.Fatalf("status=%+v", status)
	}
}
