package callback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

var errCompletePanicked = errors.New("authorization handler panicked")

// CompleteFunc finishes authorization given the full redirect URL.
type CompleteFunc func(ctx context.Context, redirectURL string) error

// Server is a single-fire HTTP listener for the OAuth2 redirect.
type Server struct {
	redirect *url.URL
	complete CompleteFunc

	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener

	fired  atomic.Bool
	result chan error
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a callback server for the given redirect URI. Only its path is
// served; the query of the incoming request is grafted onto redirectURI before
// calling complete.
func New(redirectURI string, complete CompleteFunc) (*Server, error) {
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", err)
	}
	if complete == nil {
		return nil, fmt.Errorf("missing completion function")
	}

	s := &Server{
		redirect: redirect,
		complete: complete,
		result:   make(chan error, 1),
	}

	path := redirect.Path
	if path == "" {
		path = "/"
	}

	s.mux = http.NewServeMux()
	s.mux.Handle("GET "+path, applyMiddlewares(http.HandlerFunc(s.handleRedirect),
		RedactQuery,
		Logging(slog.Default()),
		Recovery,
	))

	return s, nil
}

// LoopbackAddress returns the host:port to listen on for redirectURI, and false
// if the redirect does not point at a plain-HTTP loopback address.
func LoopbackAddress(redirectURI string) (string, bool) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme != "http" {
		return "", false
	}

	host := u.Hostname()
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return "", false
		}
	}

	port := u.Port()
	if port == "" {
		port = "80"
	}
	return net.JoinHostPort(host, port), true
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !s.fired.CompareAndSwap(false, true) {
		writeJSONError(ctx, w, "authorization already handled", http.StatusGone)
		return
	}

	redirect := *s.redirect
	redirect.RawQuery = rawQuery(r)

	// A panicking complete still publishes a result.
	err := errCompletePanicked
	defer func() {
		s.result <- err
		close(s.result)
	}()

	// The exchange must finish even if the browser drops the connection.
	err = s.complete(context.WithoutCancel(ctx), redirect.String())
	if err != nil {
		writeJSONError(ctx, w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Authorization complete. You can close this window.\n")
}

// Result delivers the outcome of the single handled redirect.
func (s *Server) Result() <-chan error {
	return s.result
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	// Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Minute, // covers the token exchange performed inside the handler
		IdleTimeout:       30 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
