// Package api provides the HTTP surface of the gamification engine.
// Every response uses the {success, data?, message?} envelope.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/learnpath/gamify/internal/app/engagement"
	"github.com/learnpath/gamify/internal/app/league"
	"github.com/learnpath/gamify/internal/domain"
	"github.com/learnpath/gamify/internal/health"
	"github.com/learnpath/gamify/internal/infra/metrics"
)

// UserHeader carries the caller's identity when no userId query parameter
// is present.
const UserHeader = "X-User-ID"

// Server is the gamification HTTP API server.
type Server struct {
	engagement     *engagement.Service
	league         *league.Service
	health         *health.Checker
	logger         *slog.Logger
	version        string
	metricsEnabled bool
	timeout        time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithHealth reports checker results on /health.
func WithHealth(c *health.Checker) Option { return func(s *Server) { s.health = c } }

// WithMetrics mounts the Prometheus /metrics endpoint.
func WithMetrics() Option { return func(s *Server) { s.metricsEnabled = true } }

// WithVersion sets the version reported on /health.
func WithVersion(v string) Option { return func(s *Server) { s.version = v } }

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option { return func(s *Server) { s.timeout = d } }

// NewServer creates a new API server.
func NewServer(eng *engagement.Service, lg *league.Service, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engagement: eng,
		league:     lg,
		logger:     logger.With("component", "api"),
		version:    "dev",
		timeout:    30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/gamification", func(r chi.Router) {
		r.Get("/xp", s.handleXPStatus)
		r.Post("/xp", s.handleAwardXP)
		r.Get("/xp/history", s.handleXPHistory)
		r.Post("/level-check", s.handleLevelCheck)
		r.Post("/daily-login", s.handleDailyLogin)
	})

	r.Route("/streaks", func(r chi.Router) {
		r.Get("/", s.handleStreakStatus)
		r.Post("/activity", s.handleStreakActivity)
		r.Post("/freeze", s.handleStreakFreeze)
		r.Post("/check", s.handleStreakCheck)
		r.Get("/milestones", s.handleStreakMilestones)
	})

	r.Route("/goals", func(r chi.Router) {
		r.Get("/daily", s.handleGoalStatus)
		r.Put("/daily", s.handleSetGoal)
		r.Post("/complete", s.handleCompleteLesson)
		r.Get("/history", s.handleGoalHistory)
		r.Get("/streak", s.handleGoalStreak)
	})

	r.Route("/badges", func(r chi.Router) {
		r.Get("/", s.handleBadgeCatalogue)
		r.Get("/user", s.handleUserBadges)
		r.Post("/unlock", s.handleUnlockBadge)
		r.Get("/stats", s.handleBadgeStats)
		r.Get("/{id}/progress", s.handleBadgeProgress)
	})

	r.Route("/leaderboard", func(r chi.Router) {
		r.Get("/", s.handleLeague)
		r.Get("/user/status", s.handleLeagueUserStatus)
		r.Get("/user/history", s.handleLeagueUserHistory)
		r.Post("/opt-out", s.handleOptOut)
		r.Post("/xp", s.handleLeagueXP)
		r.Get("/admin/summary", s.handleLeagueSummary)
		r.Post("/admin/reset", s.handleRollover)
		r.Get("/admin/export", s.handleExport)
		r.Get("/{league}", s.handleLeague)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// ─── Envelope ───────────────────────────────────────────────────────────────

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// writeError maps err onto the envelope: validation → 400, not found →
// 404, anything else → 500 with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeFailure(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, domain.ErrValidation):
		writeFailure(w, http.StatusBadRequest, trimRoot(err, domain.ErrValidation))
	case errors.Is(err, domain.ErrNotFound):
		writeFailure(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		writeFailure(w, http.StatusInternalServerError, "internal server error")
	}
}

func trimRoot(err, root error) string {
	return strings.TrimPrefix(err.Error(), root.Error()+": ")
}

// ─── Request Helpers ────────────────────────────────────────────────────────

// userID resolves the caller: query parameter, then header, then the
// request body.
func userID(r *http.Request, body string) string {
	if id := strings.TrimSpace(r.URL.Query().Get("userId")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get(UserHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(body)
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return n, nil
}

// ─── Middleware ─────────────────────────────────────────────────────────────

// corsMiddleware adds permissive CORS headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+UserHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request and records route metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		took := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.HTTPLatency.WithLabelValues(route).Observe(took.Seconds())

		s.logger.Debug("request",
			"method", r.Method, "route", route, "status", status,
			"duration", took, "request_id", middleware.GetReqID(r.Context()))
	})
}

// ─── Health ─────────────────────────────────────────────────────────────────

type healthReport struct {
	Status  string          `json:"status"`
	Version string          `json:"version"`
	Checks  []health.Status `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := healthReport{Status: "ok", Version: s.version, Checks: []health.Status{}}
	if s.health != nil {
		rep.Checks = s.health.Statuses()
		if !s.health.IsHealthy() {
			rep.Status = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Data: rep, Message: "one or more health checks failing"})
			return
		}
	}
	writeData(w, rep)
}
