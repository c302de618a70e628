package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds client configuration.
type Config struct {
	// ProjectURL is the backend project URL (https://xxx.supabase.co).
	ProjectURL string
	// AnonKey authenticates anonymous and token-scoped requests.
	AnonKey string
	// ServiceKey authenticates admin requests that bypass row-level
	// security. Optional.
	ServiceKey string
	// Timeout for each HTTP request. Defaults to 30s.
	Timeout time.Duration
	// HTTPClient overrides the transport. Mostly for tests.
	HTTPClient *http.Client
	// Retry configures the resilient transport. Zero value disables retry.
	Retry RetryConfig
	// Breaker configures the circuit breaker. Zero value disables it.
	Breaker CircuitBreakerConfig
	// OnRetry is invoked once per retried request.
	OnRetry func()
	// OnCircuitStateChange is invoked on breaker transitions.
	OnCircuitStateChange func(from, to CircuitState)
}

// Client is the hosted backend client. Sub-clients cover auth, database and
// storage.
type Client struct {
	cfg Config

	baseURL    string
	restURL    string
	authURL    string
	storageURL string

	httpClient *http.Client

	auth     *AuthClient
	database *DatabaseClient
	storage  *StorageClient
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("project URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("anon key is required")
	}

	baseURL := strings.TrimRight(cfg.ProjectURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid project URL: %w", err)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if cfg.Retry.MaxRetries > 0 || cfg.Breaker.FailureThreshold > 0 {
		httpClient = &http.Client{
			Timeout: httpClient.Timeout,
			Transport: &resilientTransport{
				base:    httpClient.Transport,
				retry:   cfg.Retry,
				breaker: newCircuitBreaker(cfg.Breaker, cfg.OnCircuitStateChange),
				onRetry: cfg.OnRetry,
			},
		}
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		restURL:    baseURL + "/rest/v1",
		authURL:    baseURL + "/auth/v1",
		storageURL: baseURL + "/storage/v1",
		httpClient: httpClient,
	}
	c.auth = &AuthClient{client: c}
	c.database = &DatabaseClient{client: c}
	c.storage = &StorageClient{client: c}
	return c, nil
}

// Auth returns the auth client.
func (c *Client) Auth() *AuthClient { return c.auth }

// Database returns the database client.
func (c *Client) Database() *DatabaseClient { return c.database }

// Storage returns the storage client.
func (c *Client) Storage() *StorageClient { return c.storage }

// From is shorthand for Database().From.
func (c *Client) From(table string) *QueryBuilder { return c.database.From(table) }

// apiResponse is a raw backend response.
type apiResponse struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// request performs a request authenticated with the anon key.
func (c *Client) request(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) (*apiResponse, error) {
	return c.do(ctx, method, urlStr, body, headers, c.cfg.AnonKey)
}

// requestWithServiceKey performs an admin request with the service role key.
func (c *Client) requestWithServiceKey(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) (*apiResponse, error) {
	if c.cfg.ServiceKey == "" {
		return nil, fmt.Errorf("service key not configured")
	}
	return c.do(ctx, method, urlStr, body, headers, c.cfg.ServiceKey)
}

// requestWithToken performs a request on behalf of a user so row-level
// security applies to their identity.
func (c *Client) requestWithToken(ctx context.Context, method, urlStr string, body []byte, headers map[string]string, accessToken string) (*apiResponse, error) {
	if headers == nil {
		headers = make(map[string]string)
	}
	headers["Authorization"] = "Bearer " + accessToken
	return c.do(ctx, method, urlStr, body, headers, c.cfg.AnonKey)
}

func (c *Client) do(ctx context.Context, method, urlStr string, body []byte, headers map[string]string, apiKey string) (*apiResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	req.Header.Set("apikey", apiKey)
	if req.Header.Get("Authorization") == "" && headers["Authorization"] == "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if body != nil && headers["Content-Type"] == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &apiResponse{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Header:     resp.Header,
	}, nil
}

// parseError turns an error response body into a typed Error.
func parseError(body []byte, statusCode int) error {
	var errResp struct {
		Code             string `json:"code"`
		Message          string `json:"message"`
		Details          string `json:"details"`
		Hint             string `json:"hint"`
		Err              string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return &Error{
			Code:       "unknown",
			Message:    strings.TrimSpace(string(body)),
			StatusCode: statusCode,
		}
	}

	msg := errResp.Message
	if msg == "" {
		msg = errResp.Msg
	}
	if msg == "" {
		msg = errResp.Err
	}
	if msg == "" {
		msg = errResp.ErrorDescription
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	return &Error{
		Code:       errResp.Code,
		Message:    msg,
		Details:    errResp.Details,
		Hint:       errResp.Hint,
		StatusCode: statusCode,
	}
}
