// Package httpserver provides the demo HTTP front-end for urlexec (spec
// §6.1): every path is a pipeline to execute, plus a liveness endpoint.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jgavinray/urlexec/internal/budget"
	"github.com/jgavinray/urlexec/internal/config"
	execerrors "github.com/jgavinray/urlexec/internal/errors"
	"github.com/jgavinray/urlexec/internal/logging"
	"github.com/jgavinray/urlexec/internal/pathparser"
	"github.com/jgavinray/urlexec/internal/runctx"
	"github.com/jgavinray/urlexec/internal/store"
	"github.com/jgavinray/urlexec/internal/value"

	"github.com/google/uuid"
)

// Runner executes a parsed Pipeline and returns the resulting Value. It is
// satisfied by *engine.Engine; the Server depends only on this narrow
// interface so its tests don't need a full engine/registry/store stack.
type Runner interface {
	Run(ec *runctx.ExecutionContext, p pathparser.Pipeline, input value.Value) (value.Value, error)
}

// Server wraps an *http.Server and holds the dependencies request handlers
// need: a Runner to drive pipelines, a Store for the per-request
// ExecutionContext, and the engine config's structural limits.
type Server struct {
	httpSrv   *http.Server
	runner    Runner
	store     store.Store
	cfg       *config.Config
	logger    *slog.Logger
	errLogger *logging.ErrorLogger
}

// New constructs a Server configured from cfg, wired to runner and st. The
// underlying http.Server is created but not started; call ListenAndServe to
// begin accepting connections.
func New(cfg *config.Config, runner Runner, st store.Store, logger *slog.Logger) *Server {
	s := &Server{
		runner: runner,
		store:  st,
		cfg:    cfg,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("/", s.handlePipeline)

	addr := fmt.Sprintf("%s:%d", cfg.HTTPServer.Bind, cfg.HTTPServer.Port)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(logger, mux),
		ReadTimeout:  time.Duration(cfg.HTTPServer.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTPServer.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.HTTPServer.IdleTimeoutSeconds) * time.Second,
	}

	return s
}

// WithErrorLogger attaches el so that every error Value a pipeline
// produces is appended to the daily engine-error log (spec §4.11). Absent
// a call to this, errors still become HTTP responses; they just aren't
// durably logged.
func (s *Server) WithErrorLogger(el *logging.ErrorLogger) *Server {
	s.errLogger = el
	return s
}

// ListenAndServe starts the HTTP server. It blocks until the server is shut
// down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server starting", slog.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpserver: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting up to the configured
// shutdown timeout for in-flight requests to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := time.Duration(s.cfg.HTTPServer.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("HTTP server shutting down")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpserver: shutdown: %w", err)
	}
	return nil
}

// Addr returns the address the server is configured to listen on.
func (s *Server) Addr() string {
	return s.httpSrv.Addr
}

// handlePipeline implements spec §6's "HTTP request in / HTTP response
// out": any path beginning with "/" is parsed into a Pipeline and reduced
// to a Value, which is serialized as status/headers/content-type/body.
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.cfg.Engine.RequestDeadlineSeconds)*time.Second)
	defer cancel()

	body, _ := readBody(r)

	headers := value.NewHeader()
	for name := range r.Header {
		headers.Set(name, r.Header.Get(name))
	}

	reqBudget := budget.New(budget.Limits{
		CostCents: s.cfg.Engine.RequestCostCentsLimit,
		ElapsedMS: int64(s.cfg.Engine.RequestDeadlineSeconds) * 1000,
	})
	req := runctx.NewRequest(r.Method, r.URL.Path, r.URL.RawQuery, headers, body, reqBudget)

	ec := &runctx.ExecutionContext{
		Ctx:        ctx,
		Req:        req,
		Budget:     reqBudget,
		Store:      s.store,
		DepthLimit: s.cfg.Engine.DefaultDepthLimit,
	}

	requestID := uuid.NewString()

	pipeline := pathparser.Parse(r.URL.Path)
	out, err := s.runner.Run(ec, pipeline, value.Value{})
	if err != nil {
		s.logger.Error("pipeline execution returned a Go error", slog.String("request_id", requestID), slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		s.logEngineError(requestID, r.URL.Path, pipeline, execerrors.StatusFor(execerrors.ErrInternal), err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if out.IsError() {
		s.logEngineError(requestID, r.URL.Path, pipeline, out.EffectiveStatus(), fmt.Errorf("%s", out.String()))
	}

	writeValue(w, out)
}

// logEngineError records an engine-level error to the daily error log (spec
// §4.11), deriving its Code from status since by the time a Value has
// crossed the engine boundary it no longer carries the *ExecutorError that
// produced it. failingSegment is the pipeline's last segment, a reasonable
// approximation when the engine doesn't separately report which segment it
// was dispatching when the error occurred. A nil errLogger (the common case
// in tests, and in production when error log config is left unset) is a
// no-op.
func (s *Server) logEngineError(requestID, pipelinePath string, pipeline pathparser.Pipeline, status int, err error) {
	if s.errLogger == nil {
		return
	}
	failingSegment := ""
	if len(pipeline) > 0 {
		failingSegment = string(pipeline[len(pipeline)-1])
	}
	code := execerrors.CodeForStatus(status)
	if logErr := s.errLogger.Log(requestID, pipelinePath, failingSegment, code, err); logErr != nil {
		s.logger.Warn("failed to write engine error log", slog.String("error", logErr.Error()))
	}
}

// handleHealthz implements GET /healthz (spec §6.1).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// writeValue serializes a Value as the HTTP response (spec §6): status
// status_code||200, headers from Headers, content-type from ContentType,
// body from Output.
func writeValue(w http.ResponseWriter, v value.Value) {
	if v.Headers != nil {
		for _, name := range v.Headers.Names() {
			val, _ := v.Headers.Get(name)
			w.Header().Set(name, val)
		}
	}
	ct := v.ContentType
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(v.EffectiveStatus())
	w.Write(v.Output)
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	buf := make([]byte, 0, 512)
	tmp := make([]byte, 512)
	for {
		n, err := r.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}

// loggingMiddleware logs each request's method, path, and latency.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", lrw.statusCode),
			slog.String("remote_addr", remoteAddr(r)),
			slog.Duration("latency", time.Since(start)),
		)
	})
}

// loggingResponseWriter captures the status code written by a handler.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// remoteAddr returns the client IP, preferring X-Forwarded-For when behind a
// proxy. Falls back to r.RemoteAddr.
func remoteAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
