package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout applies to every request except uploads and downloads.
	DefaultTimeout = 30 * time.Second

	// TokenHeader carries the session token on privileged requests.
	TokenHeader = "X-Token"

	defaultUserAgent = "storageportal"
	maxErrorBody     = 64 << 10
)

// TokenSource supplies the session token attached to requests. An empty
// token means the request is sent unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Client represents the portal API client. It is safe for concurrent use
// and holds no per-call state.
type Client struct {
	baseURL      string
	userAgent    string
	httpClient   *http.Client
	streamClient *http.Client
	tokens       TokenSource
	logger       *logrus.Logger

	// timeout is applied to a copy of httpClient when set.
	timeout    time.Duration
	hasTimeout bool
}

var _ ClientAPI = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the http.Client used for regular requests. The client is
// copied, never modified. Uploads and downloads use a copy without a timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
		c.hasTimeout = true
	}
}

// WithTokenSource sets the token accessor for privileged requests.
func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a new portal client for the API rooted at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	regular := *c.httpClient
	if c.hasTimeout {
		regular.Timeout = c.timeout
	}
	c.httpClient = &regular

	stream := regular
	stream.Timeout = 0
	c.streamClient = &stream

	return c
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one API call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	// contentLength is the exact body size, or -1 when unknown.
	contentLength int64
	// stream selects the client without a timeout.
	stream bool
}

func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, error) {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return nil, err
	}
	if r.body != nil && r.contentLength >= 0 {
		req.ContentLength = r.contentLength
	}

	req.Header.Set("User-Agent", c.userAgent)
	if !r.stream || r.body != nil {
		req.Header.Set("Accept", "application/json")
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve session token: %w", err)
		}
		if token != "" {
			req.Header.Set(TokenHeader, token)
		}
	}

	return req, nil
}

// send executes r and returns the response of a 2xx reply. Any other outcome
// is reported as a TransportError or an HTTPError.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	httpClient := c.httpClient
	if r.stream {
		httpClient = c.streamClient
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	fields := logrus.Fields{
		"method":   r.method,
		"path":     r.path,
		"duration": time.Since(start).Round(time.Millisecond),
	}
	if err != nil {
		c.logger.WithFields(fields).WithError(err).Debug("request failed")
		return nil, &TransportError{Method: r.method, URL: req.URL.Redacted(), Err: err}
	}
	fields["status"] = resp.StatusCode
	c.logger.WithFields(fields).Debug("request done")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newHTTPError(resp)
	}

	return resp, nil
}

func newHTTPError(resp *http.Response) *HTTPError {
	httpErr := &HTTPError{
		Status:     resp.StatusCode,
		RetryAfter: resp.Header.Get("Retry-After"),
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env Envelope[json.RawMessage]
	if json.Unmarshal(data, &env) == nil {
		httpErr.Code = env.Code
		httpErr.Message = env.Message
	}

	return httpErr
}

// do executes r and decodes the whole envelope into out.
func (c *Client) do(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: r.method, URL: resp.Request.URL.Redacted(), Err: err}
	}

	var head struct {
		Code    *int   `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return &DecodeError{Status: resp.StatusCode, Err: err}
	}
	if head.Code == nil {
		return &DecodeError{Status: resp.StatusCode, Err: errors.New("missing envelope code")}
	}
	if *head.Code != CodeOK {
		return &ApplicationError{Code: *head.Code, Message: head.Message}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Status: resp.StatusCode, Err: err}
	}
	return nil
}

// doRaw executes r and hands the raw body to the caller, who must close it.
func (c *Client) doRaw(ctx context.Context, r request) (io.ReadCloser, error) {
	resp, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}
	return &rawBody{ReadCloser: resp.Body, method: r.method, url: resp.Request.URL.Redacted()}, nil
}

// rawBody reports body read failures as transport errors.
type rawBody struct {
	io.ReadCloser
	method string
	url    string
}

func (b *rawBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		return n, &TransportError{Method: b.method, URL: b.url, Err: err}
	}
	return n, err
}

// fetch runs an envelope request and returns the envelope untouched.
func fetch[T any](ctx context.Context, c *Client, r request) (*Envelope[T], error) {
	var result Envelope[T]
	if err := c.do(ctx, r, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func jsonBody(v any) (io.Reader, int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}
