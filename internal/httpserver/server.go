package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Timeouts bounds the server's connection handling. Zero fields take the
// defaults below.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

var DefaultTimeouts = Timeouts{
	Read:     15 * time.Second,
	Write:    15 * time.Second,
	Idle:     60 * time.Second,
	Shutdown: 5 * time.Second,
}

// Server wraps http.Server with validation, tracing and graceful shutdown.
type Server struct {
	server   *http.Server
	shutdown time.Duration
}

// New creates a new HTTP server with the given address and handler.
// The address is validated before creating the server. Every request runs
// inside an otel server span named after the operation.
func New(addr string, handler http.Handler, timeouts Timeouts) (*Server, error) {
	if err := validateHost(addr); err != nil {
		return nil, err
	}

	t := timeouts.withDefaults()
	srv := &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      otelhttp.NewHandler(handler, "fetch-orchestrator"),
			ReadTimeout:  t.Read,
			WriteTimeout: t.Write,
			IdleTimeout:  t.Idle,
		},
		shutdown: t.Shutdown,
	}

	return srv, nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start begins listening for HTTP requests.
// Returns an error unless the server is shut down cleanly.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the server within the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdown)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Read <= 0 {
		t.Read = DefaultTimeouts.Read
	}
	if t.Write <= 0 {
		t.Write = DefaultTimeouts.Write
	}
	if t.Idle <= 0 {
		t.Idle = DefaultTimeouts.Idle
	}
	if t.Shutdown <= 0 {
		t.Shutdown = DefaultTimeouts.Shutdown
	}
	return t
}

func validateHost(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cant be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}
