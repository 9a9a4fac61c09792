package callwatch

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server is the callwatch HTTP surface: the orchestrator health check plus
// operational introspection.
type Server struct {
	addr    string
	mux     *http.ServeMux
	logger  zerolog.Logger
	monitor *Monitor
	started time.Time
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config, logger zerolog.Logger, monitor *Monitor) *Server {
	s := &Server{
		addr:    cfg.Addr,
		mux:     http.NewServeMux(),
		logger:  logger,
		monitor: monitor,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /internal/metrics", s.handleInternalMetrics)
	s.mux.HandleFunc("GET /internal/status", s.handleInternalStatus)
	s.mux.HandleFunc("/", s.handleCatchAll)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "callwatch"})
}

func (s *Server) handleInternalMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Metrics().Snapshot())
}

func (s *Server) handleInternalStatus(w http.ResponseWriter, r *http.Request) {
	status := s.monitor.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"monitor":        status,
	})
}

func (s *Server) handleCatchAll(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("unhandled request")
	w.WriteHeader(http.StatusNotFound)
}

// ListenAndServe starts the HTTP server (crash-only, no graceful shutdown).
func (s *Server) ListenAndServe() error {
	handler := otelhttp.NewHandler(s.loggingMiddleware(s.mux), "callwatch")

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	host, port, _ := net.SplitHostPort(s.addr)
	if host == "" {
		host = "localhost"
	}
	s.logger.Info().Msgf("callwatch listening on http://%s:%s", host, port)
	return srv.ListenAndServe()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(rw, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("dur", time.Since(start)).
			Msg("request")
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// writeJSON marshals v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
