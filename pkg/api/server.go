package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pnku766-alt/fusionintel-core/pkg/canonicalize"
	"github.com/pnku766-alt/fusionintel-core/pkg/orchestrator"
	"github.com/pnku766-alt/fusionintel-core/pkg/policyloader"
)

const maxBodyBytes = 1 << 20

// ErrAuditPathOutsideDir rejects a request-supplied audit path that does not
// resolve inside Defaults.AuditDir.
var ErrAuditPathOutsideDir = errors.New("audit_log_path is outside the audit directory")

// Defaults are the process-wide settings a request may override.
//
// AuditDir, when set, confines audit paths taken from the request (options or
// the request's policy document): relative paths are joined to it and paths
// escaping it are rejected. Empty means any path the server can write.
type Defaults struct {
	AuditLogPath   string
	AuditDir       string
	EnforceLayer4  bool
	EnforceLayer5  bool
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server exposes the pipeline over HTTP.
type Server struct {
	pipeline *orchestrator.Pipeline
	defaults Defaults
	registry *prometheus.Registry
	metrics  *Metrics
	limiter  *RateLimiter
	logger   *slog.Logger
	router   chi.Router
}

// NewServer wires the routes. Metrics are registered on a private registry
// served at /metrics.
func NewServer(pipeline *orchestrator.Pipeline, defaults Defaults) *Server {
	if pipeline == nil {
		pipeline = orchestrator.New()
	}
	if defaults.RateLimitRPS <= 0 {
		defaults.RateLimitRPS = 20
	}
	if defaults.RateLimitBurst <= 0 {
		defaults.RateLimitBurst = 40
	}
	if defaults.AuditDir != "" {
		if abs, err := filepath.Abs(defaults.AuditDir); err == nil {
			defaults.AuditDir = abs
		}
	}

	reg := prometheus.NewRegistry()
	s := &Server{
		pipeline: pipeline,
		defaults: defaults,
		registry: reg,
		metrics:  NewMetrics(reg),
		limiter:  NewRateLimiter(defaults.RateLimitRPS, defaults.RateLimitBurst),
		logger:   slog.Default().With("component", "api"),
	}
	s.limiter.onReject = func() { s.metrics.IncrementRejected("rate_limited") }

	r := chi.NewRouter()
	r.Use(RequestID)
	r.NotFound(WriteNotFound)
	r.MethodNotAllowed(WriteMethodNotAllowed)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Post("/v1/process", s.handleProcess)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Close releases background resources.
func (s *Server) Close() { s.limiter.Close() }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 30 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProcessOptions are the per-request overrides of /v1/process.
type ProcessOptions struct {
	AuditLogPath  *string `json:"audit_log_path"`
	EnforceLayer4 bool    `json:"enforce_layer4"`
	EnforceLayer5 bool    `json:"enforce_layer5"`
}

// ProcessRequest is the /v1/process body. Policy and Envelope use the same
// document shapes as the CLI files.
type ProcessRequest struct {
	Policy   json.RawMessage `json:"policy"`
	Envelope json.RawMessage `json:"envelope"`
	Options  ProcessOptions  `json:"options"`
}

// ProcessResponse is the degrade report tagged with the request id.
type ProcessResponse struct {
	orchestrator.Report
	RequestID string `json:"request_id"`
}

func orEmptyObject(raw json.RawMessage) []byte {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return []byte("{}")
	}
	return raw
}

// buildPolicy applies the precedence request path > policy path > env path;
// enforce flags are OR-ed with the process defaults.
func (s *Server) buildPolicy(req ProcessRequest) (orchestrator.Policy, error) {
	policy, err := policyloader.DecodePolicy(orEmptyObject(req.Policy), policyloader.FormatJSON)
	if err != nil {
		return orchestrator.Policy{}, err
	}
	fromRequest := true
	switch {
	case req.Options.AuditLogPath != nil:
		policy.AuditLogPath = *req.Options.AuditLogPath
	case policy.AuditLogPath == "":
		policy.AuditLogPath = s.defaults.AuditLogPath
		fromRequest = false
	}
	if fromRequest && policy.AuditLogPath != "" {
		path, err := confineAuditPath(s.defaults.AuditDir, policy.AuditLogPath)
		if err != nil {
			return orchestrator.Policy{}, err
		}
		policy.AuditLogPath = path
	}
	policy.EnforceLayer4 = req.Options.EnforceLayer4 || s.defaults.EnforceLayer4
	policy.EnforceLayer5 = req.Options.EnforceLayer5 || s.defaults.EnforceLayer5
	return policy, nil
}

// confineAuditPath resolves path against dir. Symlinks are not followed.
func confineAuditPath(dir, path string) (string, error) {
	if dir == "" {
		return path, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	rel, err := filepath.Rel(dir, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrAuditPathOutsideDir, path)
	}
	return filepath.Join(dir, rel), nil
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.metrics.ObserveProcessLatency(time.Since(start)) }()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.IncrementRejected("malformed")
		WriteBadRequest(w, r, "Invalid request body")
		return
	}

	policy, err := s.buildPolicy(req)
	if err != nil {
		s.metrics.IncrementRejected("malformed")
		WriteBadRequest(w, r, err.Error())
		return
	}
	env, err := policyloader.DecodeEnvelope(orEmptyObject(req.Envelope), policyloader.FormatJSON)
	if err != nil {
		s.metrics.IncrementRejected("malformed")
		WriteBadRequest(w, r, err.Error())
		return
	}

	report, err := s.pipeline.RunWithDegrade(r.Context(), env, policy, orchestrator.Overrides{})
	if err != nil {
		s.metrics.IncrementRejected("internal")
		WriteInternal(w, err)
		return
	}
	s.metrics.IncrementDecision(string(report.Layer5.Action), report.EnforcementError)

	body, err := canonicalize.JCS(ProcessResponse{Report: report, RequestID: RequestIDFrom(r.Context())})
	if err != nil {
		WriteInternal(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
