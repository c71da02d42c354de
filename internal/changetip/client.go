package changetip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/florianilch/changekit/internal/tokenstore"
)

// Default client settings.
const (
	DefaultBaseURL = "https://www.changetip.com/"
	DefaultTimeout = 30 * time.Second
)

// maxErrorBody bounds the response excerpt kept in a NetworkError.
const maxErrorBody = 512

// Request describes a single API call. Endpoint is relative to the base URL,
// e.g. "v2/me".
type Request struct {
	Endpoint string
	Method   string
	Params   map[string]string
}

// Result is the outcome of an asynchronous call.
type Result struct {
	Object map[string]any
	Err    error
}

// Option configures a Client.
type Option func(*config)

type config struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// WithBaseURL sets the API base URL. Defaults to DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithTimeout bounds each call, including reading the response body.
// Defaults to DefaultTimeout; ignored when WithHTTPClient is used.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.httpClient = client
	}
}

// Client issues authenticated calls against the ChangeTip API.
type Client struct {
	baseURL    *url.URL
	store      tokenstore.TokenStore
	httpClient *http.Client
}

// New creates a Client reading bearer tokens from store.
// No I/O is performed until the first call.
func New(store tokenstore.TokenStore, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	cfg := &config{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	base, err := url.Parse(cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", cfg.baseURL)
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.timeout}
	}

	return &Client{
		baseURL:    base,
		store:      store,
		httpClient: httpClient,
	}, nil
}

// Call performs req with the stored access token and decodes the JSON object
// response. It fails with an AuthError, without touching the network, when no
// access token is stored.
func (c *Client) Call(ctx context.Context, req Request) (map[string]any, error) {
	op := req.Method + " " + req.Endpoint

	creds, err := c.store.Read(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) || (err == nil && creds.AccessToken == "") {
		return nil, &AuthError{Op: op, Err: ErrNotAuthenticated}
	}
	if err != nil {
		return nil, &AuthError{Op: op, Err: fmt.Errorf("reading credentials: %w", err)}
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	slog.DebugContext(ctx, "api call", "method", req.Method, "endpoint", req.Endpoint,
		"status", resp.StatusCode, "duration", time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		excerpt := strings.TrimSpace(string(body))
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody]
		}
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Body: excerpt}
	}

	var object map[string]any
	if err := json.Unmarshal(body, &object); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	// A literal null decodes without error into a nil map.
	if object == nil {
		return nil, &DecodeError{Op: op, Err: errors.New("response is not a JSON object")}
	}

	return object, nil
}

// CallAsync runs Call in a new goroutine. The returned channel receives exactly
// one Result and is then closed.
func (c *Client) CallAsync(ctx context.Context, req Request) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		object, err := c.Call(ctx, req)
		ch <- Result{Object: object, Err: err}
	}()
	return ch
}

// newRequest builds the HTTP request without credentials.
func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	target := c.baseURL.JoinPath(req.Endpoint)
	encoded := EncodeParams(req.Params)

	var body io.Reader
	switch req.Method {
	case http.MethodGet:
		target.RawQuery = encoded
	case http.MethodPost:
		body = strings.NewReader(encoded)
	default:
		return nil, fmt.Errorf("unsupported method %q", req.Method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Method == http.MethodPost {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return httpReq, nil
}
