// Package httpapi is the operator HTTP surface: monitor management, check
// triggers and scheduler status.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/check"
	"github.com/hamed0406/uptimemonitor/internal/domain"
	apimw "github.com/hamed0406/uptimemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/uptimemonitor/internal/probe"
	"github.com/hamed0406/uptimemonitor/internal/repo"
	"github.com/hamed0406/uptimemonitor/internal/scheduler"
)

const (
	maxResults   = 100
	maxIncidents = 50
)

// Checks runs checks on demand; *check.Executor satisfies it.
type Checks interface {
	RunCheck(ctx context.Context, m *domain.Monitor) (probe.Outcome, error)
	RunAll(ctx context.Context) ([]check.Summary, error)
}

// Jobs is the scheduler as seen by the API.
type Jobs interface {
	SyncAll(ctx context.Context) (int, error)
	Status() scheduler.Status
}

type Server struct {
	Logger *zap.Logger
	Store  repo.Store
	Checks Checks
	Jobs   Jobs
}

func NewServer(l *zap.Logger, store repo.Store, checks Checks, jobs Jobs) *Server {
	return &Server{Logger: l, Store: store, Checks: checks, Jobs: jobs}
}

// Limits are per-IP request budgets (requests per minute and burst) for the
// public and admin route groups. Zero RPM disables limiting. TrustProxy
// takes the client address from X-Forwarded-For / X-Real-IP; set it only
// when a proxy you control rewrites those headers.
type Limits struct {
	PublicRPM, PublicBurst int
	AdminRPM, AdminBurst   int
	TrustProxy             bool
}

func (s *Server) Router(keys apimw.Keys, origins []string, lim Limits) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if lim.TrustProxy {
		r.Use(chimw.RealIP)
	}
	if len(origins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(lim.PublicRPM, lim.PublicBurst), apimw.RequireAny(keys))
			r.Get("/monitors", s.handleListMonitors)
			r.Get("/monitors/{id}", s.handleGetMonitor)
			r.Get("/monitors/{id}/results", s.handleResults)
			r.Get("/monitors/{id}/incidents", s.handleIncidents)
			r.Get("/groups", s.handleGroups)
			r.Get("/scheduler", s.handleSchedulerStatus)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(lim.AdminRPM, lim.AdminBurst), apimw.RequireAdmin(keys))
			r.Post("/monitors", s.handleCreateMonitor)
			r.Put("/monitors/{id}", s.handleUpdateMonitor)
			r.Delete("/monitors/{id}", s.handleDeleteMonitor)
			r.Post("/monitors/{id}/pause", s.handleSetPaused(true))
			r.Post("/monitors/{id}/resume", s.handleSetPaused(false))
			r.Post("/monitors/{id}/check", s.handleCheckNow)
			r.Post("/checks/run", s.handleRunAll)
			r.Post("/scheduler/sync", s.handleSync)
		})
	})

	return r
}

// monitorInput is the editable part of a monitor. Nil fields keep their
// current value on update.
type monitorInput struct {
	Name     *string           `json:"name"`
	Type     *domain.ProbeType `json:"type"`
	Target   *string           `json:"target"`
	Interval *int              `json:"interval"`
	Timeout  *int              `json:"timeout"`
	Params   *domain.Params    `json:"params"`
	Paused   *bool             `json:"paused"`
	Group    *string           `json:"group"`
	Tags     []string          `json:"tags"`
	Notes    *string           `json:"notes"`
}

func (in monitorInput) apply(m *domain.Monitor) {
	if in.Name != nil {
		m.Name = *in.Name
	}
	if in.Type != nil {
		m.Type = *in.Type
	}
	if in.Target != nil {
		m.Target = *in.Target
	}
	if in.Interval != nil {
		m.Interval = *in.Interval
	}
	if in.Timeout != nil {
		m.Timeout = *in.Timeout
	}
	if in.Params != nil {
		m.Params = *in.Params
	}
	if in.Paused != nil {
		m.Paused = *in.Paused
	}
	if in.Group != nil {
		m.Group = *in.Group
	}
	if in.Tags != nil {
		m.Tags = in.Tags
	}
	if in.Notes != nil {
		m.Notes = *in.Notes
	}
}

func decodeInput(r *http.Request) (monitorInput, error) {
	var in monitorInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(&in)
	return in, err
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	f := repo.MonitorFilter{Group: r.URL.Query().Get("group")}
	f.ActiveOnly, _ = strconv.ParseBool(r.URL.Query().Get("active"))

	ms, err := s.Store.ListMonitors(r.Context(), f)
	if err != nil {
		s.storeError(w, "list_monitors", err)
		return
	}
	if ms == nil {
		ms = []*domain.Monitor{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMonitor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rs, err := s.Store.RecentResults(r.Context(), id, queryLimit(r, maxResults))
	if err != nil {
		s.storeError(w, "recent_results", err)
		return
	}
	if rs == nil {
		rs = []domain.CheckResult{}
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	incs, err := s.Store.RecentIncidents(r.Context(), id, queryLimit(r, maxIncidents))
	if err != nil {
		s.storeError(w, "recent_incidents", err)
		return
	}
	if incs == nil {
		incs = []domain.Incident{}
	}
	writeJSON(w, http.StatusOK, incs)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	gs, err := s.Store.Groups(r.Context())
	if err != nil {
		s.storeError(w, "groups", err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Jobs.Status())
}

type checkResponse struct {
	Monitor *domain.Monitor `json:"monitor"`
	Result  probe.Outcome   `json:"result"`
	Warning string          `json:"warning,omitempty"`
}

func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	m := &domain.Monitor{}
	in.apply(m)
	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if err := s.Store.CreateMonitor(ctx, m); err != nil {
		s.storeError(w, "create_monitor", err)
		return
	}

	// First check runs right away so the operator sees a status.
	resp := checkResponse{Monitor: m}
	if !m.Paused {
		out, err := s.Checks.RunCheck(ctx, m)
		resp.Result = out
		if err != nil {
			resp.Warning = err.Error()
		}
		if fresh, err := s.Store.GetMonitor(ctx, m.ID); err == nil {
			resp.Monitor = fresh
		}
	}
	s.resync(ctx)

	s.Logger.Info("monitor_added",
		zap.String("monitor_id", m.ID),
		zap.String("type", string(m.Type)),
		zap.String("target", m.Target),
		zap.String("status", string(resp.Result.Status)),
	)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleUpdateMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMonitor(w, r)
	if !ok {
		return
	}
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	in.apply(m)
	if err := m.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.saveAndResync(w, r, m, "monitor_updated")
}

func (s *Server) handleSetPaused(paused bool) http.HandlerFunc {
	event := "monitor_resumed"
	if paused {
		event = "monitor_paused"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := s.loadMonitor(w, r)
		if !ok {
			return
		}
		m.Paused = paused
		s.saveAndResync(w, r, m, event)
	}
}

func (s *Server) saveAndResync(w http.ResponseWriter, r *http.Request, m *domain.Monitor, event string) {
	ctx := r.Context()
	if err := s.Store.UpdateMonitor(ctx, m); err != nil {
		s.storeError(w, "update_monitor", err)
		return
	}
	s.resync(ctx)
	s.Logger.Info(event, zap.String("monitor_id", m.ID))

	if fresh, err := s.Store.GetMonitor(ctx, m.ID); err == nil {
		m = fresh
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.DeleteMonitor(r.Context(), id); err != nil {
		s.storeError(w, "delete_monitor", err)
		return
	}
	s.resync(r.Context())
	s.Logger.Info("monitor_deleted", zap.String("monitor_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMonitor(w, r)
	if !ok {
		return
	}
	out, err := s.Checks.RunCheck(r.Context(), m)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	resp := checkResponse{Monitor: m, Result: out}
	if err != nil {
		resp.Warning = err.Error()
	}
	if fresh, err := s.Store.GetMonitor(r.Context(), m.ID); err == nil {
		resp.Monitor = fresh
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sums, err := s.Checks.RunAll(r.Context())
	if err != nil {
		s.storeError(w, "run_all", err)
		return
	}
	type row struct {
		check.Summary
		Error string `json:"error,omitempty"`
	}
	rows := make([]row, len(sums))
	for i, sm := range sums {
		rows[i] = row{Summary: sm}
		if sm.Err != nil {
			rows[i].Error = sm.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checked":     len(rows),
		"results":     rows,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	n, err := s.Jobs.SyncAll(r.Context())
	if err != nil {
		s.Logger.Warn("scheduler_sync_request_error", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"jobs": n})
}

// resync rebuilds the schedule after a monitor change. The change itself is
// already stored, so a failure is only logged.
func (s *Server) resync(ctx context.Context) {
	if _, err := s.Jobs.SyncAll(ctx); err != nil {
		s.Logger.Warn("scheduler_resync_error", zap.Error(err))
	}
}

func (s *Server) loadMonitor(w http.ResponseWriter, r *http.Request) (*domain.Monitor, bool) {
	m, err := s.Store.GetMonitor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, "get_monitor", err)
		return nil, false
	}
	return m, true
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	s.Logger.Error("api_store_error", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "storage error")
}

func queryLimit(r *http.Request, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > ceiling {
		return ceiling
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
