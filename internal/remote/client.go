// Package remote is the device's HTTP client for the reconciliation server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
)

// DefaultTimeout bounds one request.
const DefaultTimeout = 15 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// Request is one call to the server. Body is sent as is (it is already
// canonical JSON).
type Request struct {
	Method         string
	Path           string
	Body           []byte
	IdempotencyKey string
}

// Response is a 2xx reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client talks to one server.
type Client struct {
	baseURL  string
	http     *http.Client
	token    string
	timeout  time.Duration
	deviceID string
}

// Option configures a Client.
type Option func(*Client)

// WithToken authenticates every request with a bearer token.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithHTTPClient replaces the underlying client. A configured token wraps
// its transport.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithDeviceID sets the X-Device-ID header.
func WithDeviceID(id string) Option { return func(c *Client) { c.deviceID = id } }

// New creates a client for baseURL (for example "http://hq:8090").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.http
	if base == nil {
		base = &http.Client{}
	}
	hc := *base
	if hc.Timeout == 0 {
		hc.Timeout = c.timeout
	}
	if c.token != "" {
		hc.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token, TokenType: "Bearer"}),
			Base:   base.Transport,
		}
	}
	c.http = &hc
	return c
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// Send performs req. Non-2xx replies are returned as *StatusError; transport
// failures are wrapped.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", req.Method, req.Path, err)
	}
	hreq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if req.IdempotencyKey != "" {
		hreq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	if c.deviceID != "" {
		hreq.Header.Set("X-Device-ID", c.deviceID)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: req.Method, Path: req.Path, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Send(ctx, Request{Method: http.MethodGet, Path: "/health"})
	return err
}

// Snapshot fetches the server's authoritative state.
func (c *Client) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	resp, err := c.Send(ctx, Request{Method: http.MethodGet, Path: "/api/snapshot"})
	if err != nil {
		return nil, err
	}
	var snap model.Snapshot
	if err := resp.Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
