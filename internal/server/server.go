// Package server exposes the health checks and the stored run history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/monero-ecosystem/monerohealth/internal/health"
	"github.com/monero-ecosystem/monerohealth/internal/storage"
)

// Checker runs the health checks. *health.Checker satisfies it.
type Checker interface {
	LastBlock(ctx context.Context, ep health.Endpoint, offset health.Offset) health.LastBlockResult
	RPCStatus(ctx context.Context, ep health.Endpoint) health.RPCResult
	P2PStatus(ctx context.Context, host string, port int) health.P2PResult
	Daemon(ctx context.Context, req health.Request) health.DaemonResult
	Combined(ctx context.Context, req health.Request) health.CombinedResult
}

// Store defines the storage queries the server needs.
type Store interface {
	Latest(ctx context.Context) (*storage.Run, error)
	History(ctx context.Context, limit, offset int) ([]storage.Run, int, error)
	UptimePercent(ctx context.Context, last int) (float64, error)
	Ping(ctx context.Context) error
}

// Server holds the chi router and its dependencies.
type Server struct {
	checker  Checker
	request  health.Request
	store    Store
	gatherer prometheus.Gatherer
	router   chi.Router
	logger   *zap.Logger
}

// New creates a new Server and registers all routes. req holds the defaults
// that query parameters may override. A nil store disables the history
// routes and a nil gatherer disables /metrics.
func New(checker Checker, req health.Request, store Store, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		checker:  checker,
		request:  req,
		store:    store,
		gatherer: gatherer,
		router:   chi.NewRouter(),
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleLiveness)

	r.Route("/api/health", func(r chi.Router) {
		r.Get("/", s.handleCombined)
		r.Get("/last_block", s.handleLastBlock)
		r.Get("/daemon", s.handleDaemon)
		r.Get("/daemon/rpc", s.handleRPC)
		r.Get("/daemon/p2p", s.handleP2P)
	})

	if s.store != nil {
		r.Get("/api/latest", s.handleLatest)
		r.Get("/api/history", s.handleHistory)
		r.Get("/api/uptime", s.handleUptime)
	}

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// --- Response helpers ---

type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// writeResult writes a check result as is, with 200 for OK and 503 otherwise.
func writeResult(w http.ResponseWriter, status health.Status, result any) {
	code := http.StatusOK
	if status != health.StatusOK {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(result)
}

// requestFrom applies the consider_p2p, offset and offset_unit query
// parameters to the configured request.
func (s *Server) requestFrom(r *http.Request) (health.Request, string) {
	req := s.request
	q := r.URL.Query()
	if v := q.Get("consider_p2p"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, "invalid consider_p2p parameter"
		}
		req.ConsiderP2P = b
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, "invalid offset parameter"
		}
		req.Offset.Amount = n
	}
	if v := q.Get("offset_unit"); v != "" {
		req.Offset.Unit = v
	}
	return req, ""
}

// --- Handlers ---

// handleLiveness reports whether the process can serve requests. With a
// store configured, an unreachable database makes it 503.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	code, status := http.StatusOK, "ok"
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Error("Ping", zap.Error(err))
			code, status = http.StatusServiceUnavailable, "database unreachable"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleCombined(w http.ResponseWriter, r *http.Request) {
	req, problem := s.requestFrom(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	res := s.checker.Combined(r.Context(), req)
	writeResult(w, res.Status, res)
}

func (s *Server) handleLastBlock(w http.ResponseWriter, r *http.Request) {
	req, problem := s.requestFrom(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	res := s.checker.LastBlock(r.Context(), req.RPCEndpoint(), req.Offset)
	writeResult(w, res.Status, res)
}

func (s *Server) handleDaemon(w http.ResponseWriter, r *http.Request) {
	req, problem := s.requestFrom(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	res := s.checker.Daemon(r.Context(), req)
	writeResult(w, res.Status, res)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	res := s.checker.RPCStatus(r.Context(), s.request.RPCEndpoint())
	writeResult(w, res.Status, res)
}

func (s *Server) handleP2P(w http.ResponseWriter, r *http.Request) {
	res := s.checker.P2PStatus(r.Context(), s.request.Host, s.request.P2PPort)
	writeResult(w, res.Status, res)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.Latest(r.Context())
	if err != nil {
		s.logger.Error("Latest", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no runs recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type historyResponse struct {
	Runs  []storage.Run `json:"runs"`
	Total int           `json:"total"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	const maxLimit = 1000

	limit := 50
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset parameter")
			return
		}
		offset = n
	}

	runs, total, err := s.store.History(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("History", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Runs:  runs,
		Total: total,
	})
}

type uptimeResponse struct {
	Last          int     `json:"last"`
	UptimePercent float64 `json:"uptime_percent"`
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	last := 100
	if v := r.URL.Query().Get("last"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid last parameter")
			return
		}
		last = n
	}

	pct, err := s.store.UptimePercent(r.Context(), last)
	if err != nil {
		s.logger.Error("UptimePercent", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, uptimeResponse{Last: last, UptimePercent: pct})
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
