package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hitmeter/internal/audit"
	"hitmeter/internal/command"
	"hitmeter/internal/config"
	"hitmeter/internal/engine"
	"hitmeter/internal/model"
	"hitmeter/internal/snapshot"
)

type Server struct {
	cfg       *config.Manager
	engine    *engine.Engine
	snapshots *snapshot.Store
	audit     *audit.Store
	logger    *slog.Logger
	version   string
}

type statusResponse struct {
	Status    string       `json:"status"`
	Time      string       `json:"time"`
	Version   string       `json:"version"`
	Started   string       `json:"started"`
	WindowSec int64        `json:"window_sec"`
	LiveHits  int          `json:"live_hits"`
	Ingest    ingestStatus `json:"ingest"`
	API       apiStatus    `json:"api"`
}

type ingestStatus struct {
	TCP        bool `json:"tcp"`
	UDP        bool `json:"udp"`
	Kafka      bool `json:"kafka"`
	FileReplay bool `json:"file_replay"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func Start(ctx context.Context, cfg *config.Manager, eng *engine.Engine, snapshotStore *snapshot.Store, auditStore *audit.Store, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := NewServer(cfg, eng, snapshotStore, auditStore, logger, version)
	httpServer := &http.Server{Addr: current.Addr, Handler: server.Handler()}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/hits", s.handleHits)
	mux.HandleFunc("/hits/recent", s.handleRecent)
	mux.HandleFunc("/total", s.handleTotal)
	mux.HandleFunc("/group/", s.handleGroup)
	mux.HandleFunc("/users/", s.handleUsers)
	mux.HandleFunc("/snapshots", s.handleSnapshots)
	mux.HandleFunc("/config/window", s.handleWindow)
	mux.HandleFunc("/admin/snapshot", s.handleAdminSnapshot)
	mux.HandleFunc("/admin/reset", s.handleReset)
	return mux
}

func NewServer(cfg *config.Manager, eng *engine.Engine, snapshotStore *snapshot.Store, auditStore *audit.Store, logger *slog.Logger, version string) *Server {
	return &Server{
		cfg:       cfg,
		engine:    eng,
		snapshots: snapshotStore,
		audit:     auditStore,
		logger:    logger,
		version:   version,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:    "ok",
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Version:   s.version,
		Started:   s.engine.Started().Format(time.RFC3339Nano),
		WindowSec: s.engine.WindowSec(),
		LiveHits:  s.engine.Len(),
		Ingest: ingestStatus{
			TCP:        cfg.Ingest.TCP.Enabled,
			UDP:        cfg.Ingest.UDP.Enabled,
			Kafka:      cfg.Ingest.Kafka.Enabled,
			FileReplay: cfg.Ingest.FileReplay.Enabled,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHits records a single JSON hit or an array of them.
func (s *Server) handleHits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	trim := bytesTrim(body)
	if len(trim) == 0 || (trim[0] != '{' && trim[0] != '[') {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	accepted := 0
	failed := 0
	if trim[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trim, &list); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, raw := range list {
			if err := s.recordRaw(raw); err != nil {
				failed++
				continue
			}
			accepted++
		}
	} else {
		if err := s.recordRaw(trim); err != nil {
			failed++
		} else {
			accepted++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted": accepted,
		"failed":   failed,
	})
}

func (s *Server) recordRaw(raw []byte) error {
	cmd, err := command.ParseJSONHit(raw)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rejecting hit payload", "err", err)
		}
		return err
	}
	s.engine.Record(model.Hit{
		Timestamp: cmd.TS,
		Group:     cmd.Group,
		User:      cmd.User,
		Source:    "api",
	})
	return nil
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ts, ok := queryTS(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ts":    ts,
		"total": s.engine.Total(ts),
	})
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	group := strings.TrimPrefix(r.URL.Path, "/group/")
	if group == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ts, ok := queryTS(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ts":    ts,
		"group": group,
		"total": s.engine.Group(ts, group),
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	group := strings.TrimPrefix(r.URL.Path, "/users/")
	if group == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ts, ok := queryTS(w, r)
	if !ok {
		return
	}
	breakdown := s.engine.Users(ts, group)
	if breakdown == nil {
		breakdown = []model.UserCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ts":     ts,
		"group":  group,
		"window": fmt.Sprintf("last_%d_seconds", s.engine.WindowSec()),
		"users":  breakdown,
	})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	all := s.snapshots.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshots": all,
		"count":     len(all),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.AuditEntry
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.audit.Since(ts)
	} else {
		list = s.audit.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hits":  list,
		"count": len(list),
	})
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"window_sec": s.engine.WindowSec(),
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req struct {
			WindowSec int64 `json:"window_sec"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.WindowSec <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		current := s.cfg.Get()
		next := *current
		next.Window.Seconds = req.WindowSec
		if err := s.cfg.Update(&next); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.engine.UpdateConfig(&next)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "window_sec": req.WindowSec})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAdminSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ts, ok := queryTS(w, r)
	if !ok {
		return
	}
	snaps := s.engine.Snapshot(ts)
	writeJSON(w, http.StatusOK, map[string]any{
		"ts":        ts,
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.engine.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// queryTS reads the optional ts parameter. When absent the server clock is
// the reference time: the adapter supplies the timestamp, the engine still
// only sees explicit ones.
func queryTS(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v := r.URL.Query().Get("ts")
	if v == "" {
		return time.Now().Unix(), true
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return 0, false
	}
	return ts, true
}

func bytesTrim(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\n' || b[start] == '\r' || b[start] == '\t') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\n' || b[end-1] == '\r' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
