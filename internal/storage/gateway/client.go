package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"docdash/internal/config"
	"docdash/internal/port"
	"docdash/internal/resilience"
)

// maxResponseBytes caps how much of a gateway answer is read into memory.
const maxResponseBytes = 16 << 20

// Client implements port.Gateway against the API gateway that fronts the
// OCR bucket: PUT {base}/{bucketPrefix}/{key} and GET {base}/{resultsPath}/{key}.
type Client struct {
	baseURL      string
	bucketPrefix string
	resultsPath  string
	client       *http.Client
	guard        *resilience.Guard
}

// NewClient creates a gateway client from config. guard may be nil.
func NewClient(cfg *config.GatewayConfig, guard *resilience.Guard) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return NewClientWithHTTPClient(cfg, guard, &http.Client{Timeout: timeout})
}

// NewClientWithHTTPClient creates a gateway client using hc (for testing).
func NewClientWithHTTPClient(cfg *config.GatewayConfig, guard *resilience.Guard, hc *http.Client) *Client {
	resultsPath := strings.Trim(cfg.ResultsPath, "/")
	if resultsPath == "" {
		resultsPath = "results"
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		bucketPrefix: strings.Trim(cfg.BucketPrefix, "/"),
		resultsPath:  resultsPath,
		client:       hc,
		guard:        guard,
	}
}

// UploadURL returns the PUT target for key.
func (c *Client) UploadURL(key string) string {
	return joinURL(c.baseURL, c.bucketPrefix, key)
}

// ResultURL returns the GET target for key.
func (c *Client) ResultURL(key string) string {
	return joinURL(c.baseURL, c.resultsPath, key)
}

// Ping reports whether the client has a usable base URL. The gateway exposes
// no health route, so nothing is sent over the network.
func (c *Client) Ping(_ context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parsing gateway base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("gateway base url %q is not absolute", c.baseURL)
	}
	return nil
}

func (c *Client) PutObject(ctx context.Context, input port.PutInput) (*port.GatewayResponse, error) {
	target := c.UploadURL(input.Key)
	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return c.do(ctx, "gateway.put", func(ctx context.Context) (*port.GatewayResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(input.Body))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		return c.send(req)
	})
}

func (c *Client) GetResult(ctx context.Context, key string) (*port.GatewayResponse, error) {
	target := c.ResultURL(key)

	return c.do(ctx, "gateway.get_result", func(ctx context.Context) (*port.GatewayResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		return c.send(req)
	})
}

func (c *Client) do(
	ctx context.Context,
	operation string,
	fn func(context.Context) (*port.GatewayResponse, error),
) (*port.GatewayResponse, error) {
	if c.guard == nil {
		return fn(ctx)
	}
	return c.guard.Do(ctx, operation, fn)
}

func (c *Client) send(req *http.Request) (*port.GatewayResponse, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling gateway %s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}

	return &port.GatewayResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
		URL:        req.URL.String(),
	}, nil
}

// joinURL joins base, an optional prefix and an object key, escaping each
// key segment but keeping the separators.
func joinURL(base, prefix, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	escaped := strings.Join(segments, "/")
	if prefix == "" {
		return base + "/" + escaped
	}
	return base + "/" + prefix + "/" + escaped
}
