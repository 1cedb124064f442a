package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envAPIKey = "REPOSCOUT_API_KEY"
	envAPIURL = "REPOSCOUT_API_URL"

	defaultAPIURL = "http://localhost:8080"
)

type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewAPIClientWithCmd resolves the endpoint from the command's flags, the
// environment (including a .env file) and the user profile. A missing key
// is allowed: a daemon started without REPOSCOUT_API_KEY runs open.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	_ = godotenv.Load()

	var flagKey, flagURL string
	if cmd != nil {
		flagKey, _ = cmd.Flags().GetString("api-key")
		flagURL, _ = cmd.Flags().GetString("api-url")
	}

	p, err := LoadProfile()
	if err != nil {
		return nil, err
	}
	e := ResolveEndpoint(flagKey, flagURL, p)
	return NewAPIClientWithConfig(e.APIKey, e.APIURL)
}

// NewAPIClientWithConfig creates an APIClient with explicit config.
func NewAPIClientWithConfig(apiKey, baseURL string) (*APIClient, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL %q: %w", baseURL, err)
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: websocket.DefaultDialer,
	}, nil
}

// APIResponse is the daemon's envelope: data on success, error and code on
// failure.
type APIResponse struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// Decode unmarshals the data envelope into v.
func (r *APIResponse) Decode(v any) error {
	if len(r.Data) == 0 {
		return errors.New("response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}

// APIError is a non-2xx answer. Code is the daemon's domain error code and
// is empty for masked server errors and for proxies that answer in its place.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// statusOf returns the HTTP status behind err, or 0 when err did not come
// from an answered request.
func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func (c *APIClient) Get(path string) (*APIResponse, error) {
	return c.do(http.MethodGet, path, nil)
}

func (c *APIClient) Post(path string, body any) (*APIResponse, error) {
	return c.do(http.MethodPost, path, body)
}

func (c *APIClient) Put(path string, body any) (*APIResponse, error) {
	return c.do(http.MethodPut, path, body)
}

func (c *APIClient) Delete(path string) (*APIResponse, error) {
	return c.do(http.MethodDelete, path, nil)
}

func (c *APIClient) do(method, path string, body any) (*APIResponse, error) {
	req, err := c.newRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return readEnvelope(resp)
}

func (c *APIClient) newRequest(method, path string, body any) (*http.Request, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func readEnvelope(resp *http.Response) (*APIResponse, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	failed := resp.StatusCode >= http.StatusBadRequest

	var env APIResponse
	switch {
	case len(raw) == 0 && !failed:
		// 204
		return &env, nil
	case json.Unmarshal(raw, &env) != nil:
		if failed {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return nil, fmt.Errorf("unexpected response from %s", resp.Request.URL.Host)
	case failed:
		return nil, &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Error}
	}
	return &env, nil
}

// websocketURL maps the HTTP base URL onto ws/wss and passes the key as a
// query parameter, since browsers and most dialers cannot set headers.
func (c *APIClient) websocketURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("invalid websocket url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("access_token", c.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// DialWebsocket opens a websocket to path on the API.
func (c *APIClient) DialWebsocket(path string) (*websocket.Conn, error) {
	wsURL, err := c.websocketURL(path)
	if err != nil {
		return nil, err
	}
	conn, resp, err := c.dialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "websocket upgrade rejected"}
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// DownloadTo fetches an absolute URL (a presigned report link, which
// carries its own credentials) into path. The file only appears once the
// download has completed.
func (c *APIClient) DownloadTo(rawURL, path string) error {
	resp, err := c.httpClient.Get(rawURL)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "download failed"}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".reposcout-download-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}
