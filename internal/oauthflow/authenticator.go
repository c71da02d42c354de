package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/florianilch/changekit/internal/changetip"
	"github.com/florianilch/changekit/internal/tokenstore"
)

var (
	// ErrMissingCode reports a redirect URL without an authorization code.
	ErrMissingCode = errors.New("redirect URL carries no authorization code")

	// ErrStateMismatch reports a redirect whose state differs from the one issued.
	ErrStateMismatch = errors.New("redirect state does not match the pending authorization")

	// ErrNoRefreshToken reports a refresh attempted without a stored refresh token.
	ErrNoRefreshToken = errors.New("no refresh token stored")
)

// State is the authentication state of an Authenticator.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config identifies the OAuth2 client registered with the provider.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	RedirectURI  string
	// BaseURL is the API base URL the OAuth2 endpoints live under.
	// Defaults to changetip.DefaultBaseURL.
	BaseURL string
}

// Option configures an Authenticator.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient sets the HTTP client used for token endpoint requests.
// If not provided, a client with changetip.DefaultTimeout is used.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithTimeout bounds token endpoint requests using a client with the given timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.httpClient = &http.Client{Timeout: timeout}
	}
}

// Authenticator runs the authorization-code grant and refresh against the
// provider's token endpoint and persists the resulting pair.
type Authenticator struct {
	oauth2Config *oauth2.Config
	store        tokenstore.TokenStore
	httpClient   *http.Client

	// mu serializes exchange and refresh so token writes never interleave.
	mu sync.Mutex

	stateMu      sync.Mutex
	pendingState string
}

// New creates an Authenticator persisting tokens in store.
// No I/O is performed until an authorization or refresh is requested.
func New(cfg Config, store tokenstore.TokenStore, opts ...Option) (*Authenticator, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("missing client ID")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("missing redirect URI")
	}
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = changetip.DefaultBaseURL
	}
	endpoint, err := Endpoint(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: changetip.DefaultTimeout}
	}

	return &Authenticator{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
		},
		store:      store,
		httpClient: o.httpClient,
	}, nil
}

// BeginAuthorization returns the provider URL the user must open to grant access.
// The URL carries scope, redirect_uri, client_id, response_type=code and a fresh
// random state. Issuing a new URL supersedes any previous pending authorization.
func (a *Authenticator) BeginAuthorization() string {
	state := uuid.NewString()

	a.stateMu.Lock()
	a.pendingState = state
	a.stateMu.Unlock()

	return a.oauth2Config.AuthCodeURL(state)
}

// CompleteAuthorization extracts the authorization code from the provider's
// redirect URL, exchanges it for a token pair and persists the pair.
//
// While a state issued by BeginAuthorization is pending, the redirect must carry
// the same state. Without a pending authorization, as when another process began
// it, the state is not checked. On failure a pending authorization stays pending so the caller may
// retry with another redirect.
func (a *Authenticator) CompleteAuthorization(ctx context.Context, redirectURL string) error {
	const op = "complete authorization"

	u, err := url.Parse(redirectURL)
	if err != nil {
		return &changetip.AuthError{Op: op, Err: fmt.Errorf("malformed redirect URL: %w", err)}
	}
	if u.RawQuery == "" {
		return &changetip.AuthError{Op: op, Err: ErrMissingCode}
	}

	params := ParseQuery(u.RawQuery)
	if providerErr := params["error"]; providerErr != "" {
		if desc := params["error_description"]; desc != "" {
			providerErr += ": " + desc
		}
		return &changetip.AuthError{Op: op, Err: fmt.Errorf("provider denied authorization: %s", providerErr)}
	}

	code := params["code"]
	if code == "" {
		return &changetip.AuthError{Op: op, Err: ErrMissingCode}
	}

	a.stateMu.Lock()
	pending := a.pendingState
	a.stateMu.Unlock()
	if pending != "" && params["state"] != pending {
		return &changetip.AuthError{Op: op, Err: ErrStateMismatch}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	token, err := a.oauth2Config.Exchange(a.withHTTPClient(ctx), code)
	if err != nil {
		return classify(op, err)
	}

	if err := a.persist(ctx, token); err != nil {
		return err
	}

	a.stateMu.Lock()
	if a.pendingState == pending {
		a.pendingState = ""
	}
	a.stateMu.Unlock()

	slog.InfoContext(ctx, "authorization completed")
	return nil
}

// Refresh exchanges the stored refresh token for a new pair and overwrites the
// store. If the provider returns no new refresh token the previous one is kept.
func (a *Authenticator) Refresh(ctx context.Context) error {
	const op = "refresh"

	a.mu.Lock()
	defer a.mu.Unlock()

	creds, err := a.store.Read(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) || (err == nil && creds.RefreshToken == "") {
		return &changetip.AuthError{Op: op, Err: ErrNoRefreshToken}
	}
	if err != nil {
		return &changetip.AuthError{Op: op, Err: fmt.Errorf("reading credentials: %w", err)}
	}

	// An empty access token forces the token source to refresh immediately.
	ts := a.oauth2Config.TokenSource(a.withHTTPClient(ctx), &oauth2.Token{RefreshToken: creds.RefreshToken})
	token, err := ts.Token()
	if err != nil {
		return classify(op, err)
	}

	if err := a.persist(ctx, token); err != nil {
		return err
	}

	slog.InfoContext(ctx, "access token refreshed", "refresh_token_rotated", token.RefreshToken != creds.RefreshToken)
	return nil
}

// State reports the current authentication state. A pending authorization takes
// precedence over stored credentials.
func (a *Authenticator) State(ctx context.Context) (State, error) {
	a.stateMu.Lock()
	pending := a.pendingState != ""
	a.stateMu.Unlock()
	if pending {
		return StateAuthenticating, nil
	}

	_, err := a.store.Read(ctx)
	switch {
	case err == nil:
		return StateAuthenticated, nil
	case errors.Is(err, tokenstore.ErrNotFound):
		return StateUnauthenticated, nil
	default:
		return StateUnauthenticated, fmt.Errorf("reading credentials: %w", err)
	}
}

// Logout discards stored credentials and any pending authorization.
func (a *Authenticator) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stateMu.Lock()
	a.pendingState = ""
	a.stateMu.Unlock()

	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	return nil
}

// withHTTPClient injects the token endpoint client; the oauth2 package picks up
// custom HTTP clients via the oauth2.HTTPClient context key.
func (a *Authenticator) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

func (a *Authenticator) persist(ctx context.Context, token *oauth2.Token) error {
	creds := tokenstore.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if err := a.store.Write(ctx, creds); err != nil {
		return fmt.Errorf("persisting credentials: %w", err)
	}
	return nil
}

// classify maps token endpoint failures to the client error kinds: provider
// rejections are AuthErrors, transport failures and 5xx responses NetworkErrors.
func classify(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			return &changetip.NetworkError{Op: op, StatusCode: retrieveErr.Response.StatusCode, Err: err}
		}
		return &changetip.AuthError{Op: op, Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &changetip.NetworkError{Op: op, Err: err}
	}

	return &changetip.AuthError{Op: op, Err: err}
}
