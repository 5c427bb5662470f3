package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// ErrUnexpectedStatus is returned for any non-2xx response.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Client talks to a running LightTrace host.
type Client struct {
	baseURL  *url.URL
	basePath string
	http     *http.Client
}

// NewClient returns a client for the host at rawURL with the dashboard
// mounted at basePath.
func NewClient(rawURL, basePath string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url %q: scheme must be http or https", rawURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	basePath = "/" + strings.Trim(strings.TrimSpace(basePath), "/")
	return &Client{baseURL: u, basePath: basePath, http: &http.Client{Timeout: timeout}}, nil
}

// Report fetches the Markdown trace report.
func (c *Client) Report(ctx context.Context) (string, error) {
	body, _, err := c.get(ctx, c.apiPath("/traces"))
	return string(body), err
}

// Download fetches the report as an attachment and returns it with the
// server-suggested filename.
func (c *Client) Download(ctx context.Context) ([]byte, string, error) {
	body, header, err := c.get(ctx, c.apiPath("/traces/download"))
	if err != nil {
		return nil, "", err
	}
	name := "LightTrace_Report.md"
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return body, name, nil
}

// Configuration fetches the effective dashboard options as raw JSON.
func (c *Client) Configuration(ctx context.Context) (json.RawMessage, error) {
	body, _, err := c.get(ctx, c.apiPath("/configuration"))
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errors.New("configuration: invalid JSON response")
	}
	return body, nil
}

// Reset clears the trace store and returns the server's confirmation.
func (c *Client) Reset(ctx context.Context) (string, error) {
	body, _, err := c.get(ctx, c.apiPath("/reset"))
	return strings.TrimSpace(string(body)), err
}

// Event is the payload accepted by the host's POST /events.
type Event struct {
	Category   string            `json:"category"`
	Operation  string            `json:"operation"`
	Status     string            `json:"status,omitempty"`
	DurationMS float64           `json:"duration_ms,omitempty"`
	Message    string            `json:"message,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Record submits an event and returns the ID the host assigned.
func (c *Client) Record(ctx context.Context, e Event) (string, error) { //nolint:gocritic // hugeParam: request value
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/events"), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, _, err := c.do(req)
	if err != nil {
		return "", err
	}
	var ack struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &ack); err != nil {
		return "", fmt.Errorf("decode ack: %w", err)
	}
	return ack.ID, nil
}

func (c *Client) apiPath(rel string) string {
	return c.url(c.basePath + "/api" + rel)
}

func (c *Client) url(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

func (c *Client) get(ctx context.Context, target string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, http.Header, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, nil, fmt.Errorf("%s %s: %w %d: %s",
			req.Method, req.URL.Path, ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	return body, resp.Header, nil
}
