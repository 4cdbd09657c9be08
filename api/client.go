// Package api is the typed REST client for the task backend.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"taskdesk/domain"
)

const (
	tracerName      = "taskdesk/api"
	maxResponseSize = 4 << 20
	defaultTimeout  = 15 * time.Second
)

// TokenSource is where the client reads the bearer token on every request
// and writes the token returned by register and login.
type TokenSource interface {
	Current() string
	Save(ctx context.Context, token string) error
}

// Client performs REST calls against a fixed base URL.
type Client struct {
	baseURL  string
	http     *http.Client
	tokens   TokenSource
	log      *log.Logger
	tracer   trace.Tracer
	validate *validator.Validate
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// New creates a client. tokens may be nil, in which case no request is
// authenticated and register/login do not persist anything.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		tokens:   tokens,
		log:      log.StandardLogger(),
		tracer:   otel.Tracer(tracerName),
		validate: domain.NewValidator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = log.StandardLogger()
	}
	return c
}

// BaseURL returns the endpoint every request is issued against.
func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	method string
	// route is the path template used for metrics, e.g. /tasks/:id
	route string
	path  string
	body  any
	auth  bool
}

func (c *Client) do(ctx context.Context, r request) (data []byte, err error) {
	ctx, span := c.tracer.Start(ctx, r.method+" "+r.route, trace.WithSpanKind(trace.SpanKindClient))
	metrics := newRequestMetrics(c.log, r.method, r.route)
	status := 0
	defer func() {
		metrics.finish(span, status, err)
		span.End()
	}()

	var body io.Reader
	if r.body != nil {
		payload, mErr := sonic.ConfigStd.Marshal(r.body)
		if mErr != nil {
			return nil, fmt.Errorf("encode %s %s: %w", r.method, r.route, mErr)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if r.auth && c.tokens != nil {
		if tok := c.tokens.Current(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: r.method + " " + r.route, Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	data, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &NetworkError{Op: r.method + " " + r.route, Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newHTTPError(resp.StatusCode, data)
	}
	return data, nil
}

// decodeOne decodes a single resource that may arrive bare or wrapped as
// {"<key>": {...}}.
func decodeOne[T any](data []byte, key string) (T, error) {
	var out T
	var env map[string]sonic.NoCopyRawMessage
	if err := sonic.ConfigStd.Unmarshal(data, &env); err == nil {
		if inner, ok := env[key]; ok && len(inner) > 0 && inner[0] == '{' {
			data = inner
		}
	}
	if err := sonic.ConfigStd.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// decodeList decodes {"<key>": [...]} or a bare array. A missing list is
// empty.
func decodeList[T any](data []byte, key string) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []T
		if err := sonic.ConfigStd.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return out, nil
	}
	var env map[string]sonic.NoCopyRawMessage
	if err := sonic.ConfigStd.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	out := []T{}
	inner, ok := env[key]
	if !ok || string(inner) == "null" {
		return out, nil
	}
	if err := sonic.ConfigStd.Unmarshal(inner, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}
