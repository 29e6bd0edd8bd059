package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/taskpin/taskpin/internal/logging"
)

const (
	// DefaultReadHeaderTimeout bounds header reads on the message server.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds response writes on the message server.
	DefaultWriteTimeout = 60 * time.Second

	// DefaultIdleTimeout closes idle keep-alive connections.
	DefaultIdleTimeout = 120 * time.Second

	// maxMessageBytes caps the size of an incoming message body.
	maxMessageBytes = 1 << 20
)

// callbackPage is rendered to the browser after the OAuth redirect.
var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><title>taskpin</title></head>
<body>
{{if .Success}}
<h1>Authorization complete</h1>
<p>You can close this window and return to taskpin.</p>
{{else}}
<h1>Authorization failed</h1>
<p>{{.Error}}</p>
{{end}}
</body>
</html>
`))

// ServerConfig holds configuration for the message server.
type ServerConfig struct {
	// Addr is the address the message and OAuth callback server binds to.
	Addr string

	// Context provides the wired daemon components.
	Context *ServerContext

	// Health is optional; when set its endpoints are registered on the
	// same listener.
	Health *HealthChecker

	Logger *slog.Logger
}

// Server is the daemon's HTTP surface: the message endpoint the capturing
// surface talks to and the OAuth redirect endpoint the browser lands on.
type Server struct {
	httpServer *http.Server
	sc         *ServerContext
	health     *HealthChecker
	logger     *slog.Logger
	addr       string
}

// NewServer creates the message server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Context == nil {
		return nil, fmt.Errorf("server context is required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sc:     cfg.Context,
		health: cfg.Health,
		logger: logging.WithComponent(logger, "server"),
		addr:   cfg.Addr,
	}, nil
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/message", s.handleMessage)
	mux.HandleFunc("/oauth/callback", s.handleCallback)
	if s.health != nil {
		s.health.RegisterHealthEndpoints(mux)
	}
	return s.withMetrics(mux)
}

// Start runs the server until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	s.logger.Info("starting message server", slog.String("addr", s.addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down message server")
	return s.httpServer.Shutdown(ctx)
}

// handleMessage dispatches one typed message and writes the response
// envelope. The envelope always carries HTTP 200; failures travel in the
// body so the capturing surface only has one decode path.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "request body too large or unreadable", http.StatusBadRequest)
		return
	}

	resp := s.sc.Router().DispatchRaw(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("writing message response", logging.Err(err))
	}
}

// handleCallback completes the pending authorization attempt with the
// code the provider redirected back with, then renders a small page for
// the browser tab.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")
	if errParam := q.Get("error"); errParam != "" {
		s.logger.Warn("authorization callback carried an error",
			slog.String("provider_error", errParam))
		code = ""
	}

	result := s.sc.Auth().HandleCallback(r.Context(), code, state)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if result.Success {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusBadRequest)
	}
	if err := callbackPage.Execute(w, result); err != nil {
		s.logger.Error("rendering callback page", logging.Err(err))
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withMetrics records request counts and latency when instrumentation is
// enabled, and passes through untouched otherwise.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	instr := s.sc.Instrumentation()
	if instr == nil || !instr.Enabled() {
		return next
	}
	metrics := instr.Metrics()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
