package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/changekit/internal/callback"
	"github.com/florianilch/changekit/internal/changetip"
	"github.com/florianilch/changekit/internal/oauthflow"
	"github.com/florianilch/changekit/internal/tokenstore"
)

// App wires the token store, the authenticator and the API client.
type App struct {
	cfg        *Config
	store      tokenstore.TokenStore
	closeStore func() error
	auth       *oauthflow.Authenticator
	client     *changetip.Client
}

// New creates a new App instance from a validated configuration.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, closeStore, err := cfg.Auth.NewTokenStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	auth, err := oauthflow.New(oauthflow.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Scopes:       cfg.OAuth.Scopes,
		RedirectURI:  cfg.OAuth.RedirectURI,
		BaseURL:      cfg.API.BaseURL,
	}, store, oauthflow.WithTimeout(cfg.API.Timeout))
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	client, err := changetip.New(store,
		changetip.WithBaseURL(cfg.API.BaseURL),
		changetip.WithTimeout(cfg.API.Timeout),
	)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &App{
		cfg:        cfg,
		store:      store,
		closeStore: closeStore,
		auth:       auth,
		client:     client,
	}, nil
}

// Close releases the token store.
func (a *App) Close() error {
	return a.closeStore()
}

// Login runs the authorization-code flow. The authorization URL is written to out.
// When listen is set and the redirect URI points at a loopback address, Login
// serves the redirect itself and blocks until it arrives, the callback timeout
// elapses or ctx is canceled. Otherwise the user is told to pass the redirect URL
// to the authorize command.
func (a *App) Login(ctx context.Context, out io.Writer, listen bool) error {
	authURL := a.auth.BeginAuthorization()
	_, _ = fmt.Fprintf(out, "Open this URL in your browser to authorize access:\n\n  %s\n\n", authURL)

	address, loopback := callback.LoopbackAddress(a.cfg.OAuth.RedirectURI)
	if !listen || !loopback {
		_, _ = fmt.Fprintln(out, "Then run `changekit authorize '<redirect-url>'` with the URL the browser was sent to.")
		return nil
	}

	server, err := callback.New(a.cfg.OAuth.RedirectURI, a.auth.CompleteAuthorization)
	if err != nil {
		return fmt.Errorf("failed to create callback server: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.Callback.Timeout)
	defer cancel()
	g, gCtx := errgroup.WithContext(waitCtx)

	slog.InfoContext(gCtx, "waiting for authorization redirect", "address", address)
	serverErrCh, err := server.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("callback server startup failed: %w", err)
	}

	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				return fmt.Errorf("callback server: %w", err)
			}
			return errors.New("callback server stopped unexpectedly")
		case err := <-server.Result():
			return err
		case <-gCtx.Done():
			if errors.Is(gCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("no redirect received within %s", a.cfg.Callback.Timeout)
			}
			return gCtx.Err()
		}
	})

	waitErr := g.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Callback.ShutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if waitErr != nil {
		errs = append(errs, waitErr)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "callback server shutdown failed", "error", err)
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	_, _ = fmt.Fprintln(out, "Authorization complete.")
	return nil
}

// Authorize completes authorization from a redirect URL obtained out of band.
func (a *App) Authorize(ctx context.Context, redirectURL string) error {
	return a.auth.CompleteAuthorization(ctx, redirectURL)
}

// Refresh obtains a new token pair from the stored refresh token.
func (a *App) Refresh(ctx context.Context) error {
	return a.auth.Refresh(ctx)
}

// Logout discards stored credentials.
func (a *App) Logout(ctx context.Context) error {
	return a.auth.Logout(ctx)
}

// Status reports the authentication state.
func (a *App) Status(ctx context.Context) (oauthflow.State, error) {
	return a.auth.State(ctx)
}

// Call performs a raw authenticated API call.
func (a *App) Call(ctx context.Context, req changetip.Request) (map[string]any, error) {
	return a.timed(ctx, req.Method+" "+req.Endpoint, func() (map[string]any, error) {
		return a.client.Call(ctx, req)
	})
}

// Invoke runs a named operation from the operations table.
func (a *App) Invoke(ctx context.Context, name string, params map[string]string) (map[string]any, error) {
	return a.timed(ctx, name, func() (map[string]any, error) {
		return a.client.Invoke(ctx, name, params)
	})
}

func (a *App) timed(ctx context.Context, op string, fn func() (map[string]any, error)) (map[string]any, error) {
	start := time.Now()
	object, err := fn()
	if err != nil {
		slog.DebugContext(ctx, "api call failed", "op", op, "duration", time.Since(start), "error", err)
		return nil, err
	}
	slog.DebugContext(ctx, "api call succeeded", "op", op, "duration", time.Since(start))
	return object, nil
}
