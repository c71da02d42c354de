package oauthflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/florianilch/changekit/internal/changetip"
	"github.com/florianilch/changekit/internal/tokenstore"
)

const (
	testClientID     = "client-id"
	testClientSecret = "client-secret"
	testRedirectURI  = "http://127.0.0.1:4180/callback"
)

// provider is a fake ChangeTip token endpoint issuing numbered token pairs.
// Each refresh token is valid exactly once, like a rotating provider.
type provider struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	serial       int
	validRefresh string
	requests     atomic.Int32
	lastForm     url.Values

	// status overrides the response status when non-zero.
	status int
}

func newProvider(t *testing.T) *provider {
	t.Helper()
	p := &provider{t: t}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.server.Close)
	return p
}

func (p *provider) handle(w http.ResponseWriter, r *http.Request) {
	p.requests.Add(1)
	if r.Method != http.MethodPost || r.URL.Path != "/o/token/" {
		p.t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if _, _, ok := r.BasicAuth(); ok {
		p.t.Errorf("client credentials sent via HTTP Basic")
	}
	if err := r.ParseForm(); err != nil {
		p.t.Errorf("ParseForm: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastForm = r.PostForm

	if p.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.status)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}

	if r.PostForm.Get("client_id") != testClientID || r.PostForm.Get("client_secret") != testClientSecret {
		p.t.Errorf("unexpected client credentials: %v", r.PostForm)
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != "ABC123" || r.PostForm.Get("redirect_uri") != testRedirectURI {
			p.reject(w)
			return
		}
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != p.validRefresh {
			p.reject(w)
			return
		}
	default:
		p.reject(w)
		return
	}

	p.serial++
	p.validRefresh = fmt.Sprintf("refresh-%d", p.serial)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  fmt.Sprintf("access-%d", p.serial),
		"refresh_token": p.validRefresh,
		"token_type":    "Bearer",
		"expires_in":    36000,
	})
}

func (p *provider) reject(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
}

func newTestAuthenticator(t *testing.T, p *provider, store tokenstore.TokenStore) *Authenticator {
	t.Helper()
	auth, err := New(Config{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Scopes:       []string{"read", "tip"},
		RedirectURI:  testRedirectURI,
		BaseURL:      p.server.URL + "/",
	}, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return auth
}

func newFileStore(t *testing.T) *tokenstore.FileStore {
	t.Helper()
	store, err := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func TestBeginAuthorization(t *testing.T) {
	p := newProvider(t)
	auth := newTestAuthenticator(t, p, newFileStore(t))
	ctx := context.Background()

	if state, _ := auth.State(ctx); state != StateUnauthenticated {
		t.Fatalf("initial state = %v", state)
	}

	authURL := auth.BeginAuthorization()

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("invalid authorization URL %q: %v", authURL, err)
	}
	if u.Path != "/o/authorize/" {
		t.Errorf("path = %q, want /o/authorize/", u.Path)
	}

	q := u.Query()
	expected := map[string]string{
		"client_id":     testClientID,
		"redirect_uri":  testRedirectURI,
		"response_type": "code",
		"scope":         "read tip",
	}
	for key, want := range expected {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if q.Get("state") == "" {
		t.Error("state parameter missing")
	}

	if state, _ := auth.State(ctx); state != StateAuthenticating {
		t.Errorf("state after begin = %v, want authenticating", state)
	}
	if p.requests.Load() != 0 {
		t.Error("BeginAuthorization contacted the token endpoint")
	}
}

// begin starts an authorization and returns the state carried by its URL.
func begin(t *testing.T, auth *Authenticator) string {
	t.Helper()
	authURL, err := url.Parse(auth.BeginAuthorization())
	if err != nil {
		t.Fatalf("parsing authorization URL: %v", err)
	}
	return authURL.Query().Get("state")
}

func TestCompleteAuthorization(t *testing.T) {
	p := newProvider(t)
	store := newFileStore(t)
	auth := newTestAuthenticator(t, p, store)
	ctx := context.Background()

	state := begin(t, auth)
	if err := auth.CompleteAuthorization(ctx, "scheme://callback?code=ABC123&state="+state); err != nil {
		t.Fatalf("CompleteAuthorization: %v", err)
	}

	if got := p.lastForm.Get("grant_type"); got != "authorization_code" {
		t.Errorf("grant_type = %q", got)
	}
	if got := p.lastForm.Get("code"); got != "ABC123" {
		t.Errorf("code = %q, want ABC123", got)
	}

	creds, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if creds.AccessToken != "access-1" || creds.RefreshToken != "refresh-1" {
		t.Errorf("stored credentials = %+v", creds)
	}

	if state, _ := auth.State(ctx); state != StateAuthenticated {
		t.Errorf("state = %v, want authenticated", state)
	}
}

func TestCompleteAuthorizationRedirectErrors(t *testing.T) {
	tests := []struct {
		name        string
		redirectURL string
		wantErr     error
	}{
		{name: "no query component", redirectURL: "scheme://callback", wantErr: ErrMissingCode},
		{name: "empty query", redirectURL: "scheme://callback?", wantErr: ErrMissingCode},
		{name: "no code", redirectURL: "scheme://callback?foo=bar", wantErr: ErrMissingCode},
		{name: "empty code", redirectURL: "scheme://callback?code=", wantErr: ErrMissingCode},
		{name: "malformed URL", redirectURL: "://callback?code=ABC123"},
		{name: "provider error", redirectURL: "scheme://callback?error=access_denied&error_description=user%20declined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(t)
			store := newFileStore(t)
			auth := newTestAuthenticator(t, p, store)
			ctx := context.Background()
			auth.BeginAuthorization()

			err := auth.CompleteAuthorization(ctx, tt.redirectURL)

			var authErr *changetip.AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected AuthError, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if p.requests.Load() != 0 {
				t.Error("token endpoint contacted for an invalid redirect")
			}
			if state, _ := auth.State(ctx); state != StateAuthenticating {
				t.Errorf("state = %v, want authenticating", state)
			}
		})
	}
}

func TestCompleteAuthorizationStateMismatch(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "forged state", query: "?code=ABC123&state=forged"},
		{name: "missing state", query: "?code=ABC123"},
		{name: "empty state", query: "?code=ABC123&state="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(t)
			auth := newTestAuthenticator(t, p, newFileStore(t))
			ctx := context.Background()

			begin(t, auth)
			err := auth.CompleteAuthorization(ctx, testRedirectURI+tt.query)

			var authErr *changetip.AuthError
			if !errors.As(err, &authErr) || !errors.Is(err, ErrStateMismatch) {
				t.Fatalf("expected AuthError wrapping ErrStateMismatch, got %v", err)
			}
			if p.requests.Load() != 0 {
				t.Error("token endpoint contacted despite state mismatch")
			}
			if state, _ := auth.State(ctx); state != StateAuthenticating {
				t.Errorf("state = %v, want authenticating", state)
			}
		})
	}
}

func TestCompleteAuthorizationWithoutPendingState(t *testing.T) {
	p := newProvider(t)
	auth := newTestAuthenticator(t, p, newFileStore(t))

	// The authorization URL was issued by another process.
	if err := auth.CompleteAuthorization(context.Background(), testRedirectURI+"?code=ABC123&state=elsewhere"); err != nil {
		t.Fatalf("CompleteAuthorization: %v", err)
	}
}

func TestCompleteAuthorizationMatchingState(t *testing.T) {
	p := newProvider(t)
	auth := newTestAuthenticator(t, p, newFileStore(t))

	state := begin(t, auth)
	if err := auth.CompleteAuthorization(context.Background(), testRedirectURI+"?code=ABC123&state="+state); err != nil {
		t.Fatalf("CompleteAuthorization: %v", err)
	}
}

func TestCompleteAuthorizationRejected(t *testing.T) {
	p := newProvider(t)
	store := newFileStore(t)
	auth := newTestAuthenticator(t, p, store)
	ctx := context.Background()

	state := begin(t, auth)
	err := auth.CompleteAuthorization(ctx, "scheme://callback?code=WRONG&state="+state)

	var authErr *changetip.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if _, err := store.Read(ctx); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Errorf("store written after rejected exchange: %v", err)
	}
	if state, _ := auth.State(ctx); state != StateAuthenticating {
		t.Errorf("state = %v, want authenticating", state)
	}

	// A retry with a valid code succeeds
	if err := auth.CompleteAuthorization(ctx, "scheme://callback?code=ABC123&state="+state); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestCompleteAuthorizationProviderUnavailable(t *testing.T) {
	p := newProvider(t)
	p.status = http.StatusServiceUnavailable
	auth := newTestAuthenticator(t, p, newFileStore(t))

	err := auth.CompleteAuthorization(context.Background(), "scheme://callback?code=ABC123")

	var netErr *changetip.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if netErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", netErr.StatusCode)
	}
}

func TestCompleteAuthorizationTransportFailure(t *testing.T) {
	p := newProvider(t)
	auth := newTestAuthenticator(t, p, newFileStore(t))
	p.server.Close()

	err := auth.CompleteAuthorization(context.Background(), "scheme://callback?code=ABC123")

	var netErr *changetip.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	p := newProvider(t)
	store := newFileStore(t)
	auth := newTestAuthenticator(t, p, store)
	ctx := context.Background()

	if err := auth.CompleteAuthorization(ctx, "scheme://callback?code=ABC123"); err != nil {
		t.Fatalf("CompleteAuthorization: %v", err)
	}
	if err := auth.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if got := p.lastForm.Get("grant_type"); got != "refresh_token" {
		t.Errorf("grant_type = %q", got)
	}
	if got := p.lastForm.Get("refresh_token"); got != "refresh-1" {
		t.Errorf("refresh_token = %q, want refresh-1", got)
	}

	creds, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if creds.AccessToken != "access-2" || creds.RefreshToken != "refresh-2" {
		t.Errorf("stored credentials = %+v", creds)
	}
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	store := newFileStore(t)
	ctx := context.Background()
	if err := store.Write(ctx, tokenstore.Credentials{AccessToken: "stale", RefreshToken: "long-lived"}); err != nil {
		t.Fatal(err)
	}

	auth, err := New(Config{ClientID: testClientID, RedirectURI: testRedirectURI, BaseURL: server.URL}, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := auth.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	creds, _ := store.Read(ctx)
	if creds.AccessToken != "fresh" || creds.RefreshToken != "long-lived" {
		t.Errorf("stored credentials = %+v", creds)
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	p := newProvider(t)
	store := newFileStore(t)
	auth := newTestAuthenticator(t, p, store)
	ctx := context.Background()

	err := auth.Refresh(ctx)
	var authErr *changetip.AuthError
	if !errors.As(err, &authErr) || !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected AuthError(ErrNoRefreshToken), got %v", err)
	}

	if err := store.Write(ctx, tokenstore.Credentials{AccessToken: "only-access"}); err != nil {
		t.Fatal(err)
	}
	if err := auth.Refresh(ctx); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
	if p.requests.Load() != 0 {
		t.Error("token endpoint contacted without a refresh token")
	}
}

// With a rotating provider every refresh consumes the previous refresh token, so
// any interleaving of exchange and refresh would be rejected. Concurrent readers
// must never see an access token paired with another grant's refresh token.
func TestExchangeAndRefreshSerialize(t *testing.T) {
	p := newProvider(t)
	store := newFileStore(t)
	auth := newTestAuthenticator(t, p, store)
	ctx := context.Background()

	if err := auth.CompleteAuthorization(ctx, "scheme://callback?code=ABC123"); err != nil {
		t.Fatalf("CompleteAuthorization: %v", err)
	}

	const refreshes = 20
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			creds, err := store.Read(ctx)
			if err != nil {
				t.Errorf("Read: %v", err)
				return
			}
			if strings.TrimPrefix(creds.AccessToken, "access-") != strings.TrimPrefix(creds.RefreshToken, "refresh-") {
				t.Errorf("torn pair: %+v", creds)
				return
			}
		}
	}()

	var refreshWG sync.WaitGroup
	for range refreshes {
		refreshWG.Add(1)
		go func() {
			defer refreshWG.Done()
			if err := auth.Refresh(ctx); err != nil {
				t.Errorf("Refresh: %v", err)
			}
		}()
	}
	refreshWG.Wait()
	close(done)
	wg.Wait()

	creds, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := fmt.Sprintf("access-%d", refreshes+1)
	if creds.AccessToken != want {
		t.Errorf("AccessToken = %q, want %q", creds.AccessToken, want)
	}
}

func TestLogout(t *testing.T) {
	p := newProvider(t)
	store := newFileStore(t)
	auth := newTestAuthenticator(t, p, store)
	ctx := context.Background()

	if err := auth.CompleteAuthorization(ctx, "scheme://callback?code=ABC123"); err != nil {
		t.Fatalf("CompleteAuthorization: %v", err)
	}
	if err := auth.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if state, _ := auth.State(ctx); state != StateUnauthenticated {
		t.Errorf("state = %v, want unauthenticated", state)
	}
}

func TestNewValidation(t *testing.T) {
	store := newFileStore(t)
	if _, err := New(Config{RedirectURI: testRedirectURI}, store); err == nil {
		t.Error("expected error for missing client ID")
	}
	if _, err := New(Config{ClientID: testClientID}, store); err == nil {
		t.Error("expected error for missing redirect URI")
	}
	if _, err := New(Config{ClientID: testClientID, RedirectURI: testRedirectURI}, nil); err == nil {
		t.Error("expected error for missing store")
	}
}
