package databricks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultMaxAttempts    = 4

	// Databricks enforces roughly 30 requests/second per workspace; stay
	// comfortably below that so a run never trips the server-side limit.
	defaultRateLimit = rate.Limit(10)
	defaultRateBurst = 5
)

// Error codes returned in Databricks API error bodies.
const (
	ErrorCodeResourceDoesNotExist = "RESOURCE_DOES_NOT_EXIST"
	ErrorCodePermissionDenied     = "PERMISSION_DENIED"
)

// Client is a minimal Databricks workspace REST client. It covers only the
// operations the backup job needs: Genie space reads and secret lookups.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	token      string
	limiter    *rate.Limiter

	// MaxAttempts bounds request attempts for throttled or transient
	// failures. Defaults to 4 when zero.
	MaxAttempts int
}

// NewClient constructs a workspace client for the given host and personal
// access token (or service principal token).
func NewClient(host, token string) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, fmt.Errorf("databricks host is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("databricks token is required")
	}

	if !strings.Contains(host, "://") {
		host = "https://" + host
	}

	parsed, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse databricks host: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("databricks host %q must include scheme and host", host)
	}

	return &Client{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		baseURL:    parsed,
		token:      token,
		limiter:    rate.NewLimiter(defaultRateLimit, defaultRateBurst),
	}, nil
}

// NewClientFromEnv constructs a client from the DATABRICKS_HOST and
// DATABRICKS_TOKEN environment variables, the configuration a Databricks Job
// provides to the task process.
func NewClientFromEnv() (*Client, error) {
	host := os.Getenv("DATABRICKS_HOST")
	token := os.Getenv("DATABRICKS_TOKEN")
	if strings.TrimSpace(host) == "" || strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("DATABRICKS_HOST and DATABRICKS_TOKEN must be set")
	}
	return NewClient(host, token)
}

// Host returns the workspace base URL the client targets.
func (c *Client) Host() string {
	return c.baseURL.String()
}

// HTTPStatusError describes a non-2xx Databricks API response, including the
// error_code/message pair Databricks embeds in error bodies.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	ErrorCode  string
	Message    string
}

func (e *HTTPStatusError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("databricks api: %s (%s): %s", e.Status, e.ErrorCode, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("databricks api: %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("databricks api: %s", e.Status)
}

// IsNotFound reports whether err represents a missing resource (HTTP 404 or
// the RESOURCE_DOES_NOT_EXIST error code).
func IsNotFound(err error) bool {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusNotFound ||
		statusErr.ErrorCode == ErrorCodeResourceDoesNotExist
}

// IsPermissionDenied reports whether err represents an authentication or
// authorization failure against the workspace API.
func IsPermissionDenied(err error) bool {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusUnauthorized ||
		statusErr.StatusCode == http.StatusForbidden ||
		statusErr.ErrorCode == ErrorCodePermissionDenied
}

func (c *Client) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return c.MaxAttempts
}

// do issues a single API call, retrying throttled and transient failures with
// exponential backoff, and decodes a 2xx response body into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, apiPath string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = encoded
	}

	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, apiPath)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	retry := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts(); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retry.Duration()):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		respBody, err := c.doOnce(ctx, method, endpoint.String(), payload)
		if err == nil {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode %s %s response: %w", method, apiPath, err)
			}
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}

	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("databricks api request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    strings.TrimSpace(string(respBody)),
		}

		var apiErr struct {
			ErrorCode string `json:"error_code"`
			Message   string `json:"message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.ErrorCode != "" {
			statusErr.ErrorCode = apiErr.ErrorCode
			statusErr.Message = apiErr.Message
		}

		return nil, statusErr
	}

	return respBody, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests ||
			(statusErr.StatusCode >= 500 && statusErr.StatusCode <= 599)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
