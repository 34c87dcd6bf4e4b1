// Package transport is the request pipeline. Every call is validated against
// the security policy, authenticated with the stored bearer token, passed
// through the interceptor chain, run under a deadline and classified into a
// Result. The pipeline never retries and never panics.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/common"
	"github.com/dmitrijs2005/pantryclient/internal/logging"
)

const (
	DefaultTimeout = 60 * time.Second
	// LongTimeout is meant for generation endpoints.
	LongTimeout = 90 * time.Second
)

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validator is the security gate consulted for every call.
type Validator interface {
	Validate(ctx context.Context, rawURL string) error
	Decorate(req *http.Request)
	CheckResponse(ctx context.Context, resp *http.Response, bodyLen int, expectJSON bool) []string
}

// TokenSource supplies the current bearer token, if any.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// UnauthorizedHandler is invoked on every 401 before the result is returned.
type UnauthorizedHandler interface {
	HandleUnauthorized(ctx context.Context)
}

type Options struct {
	Doer           Doer
	Validator      Validator
	Tokens         TokenSource
	Unauthorized   UnauthorizedHandler
	Interceptors   []Interceptor
	Observers      []Observer
	DefaultTimeout time.Duration
	Logger         logging.Logger
	Now            func() time.Time
}

// Request describes one API call. Path is resolved against the base URL
// unless it is absolute.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is JSON-encoded. Ignored when RawBody is set.
	Body any
	// RawBody is sent as is with ContentType.
	RawBody     io.Reader
	ContentType string
	// Timeout overrides the client default for this call.
	Timeout time.Duration
}

type Client struct {
	base         *url.URL
	doer         Doer
	validator    Validator
	tokens       TokenSource
	unauthorized UnauthorizedHandler
	interceptors []Interceptor
	observers    []Observer
	timeout      time.Duration
	logger       logging.Logger
	now          func() time.Time
}

// New builds a client for baseURL. A Validator is mandatory.
func New(baseURL string, opts Options) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if opts.Validator == nil {
		return nil, errors.New("transport: a validator is required")
	}

	c := &Client{
		base:         base,
		doer:         opts.Doer,
		validator:    opts.Validator,
		tokens:       opts.Tokens,
		unauthorized: opts.Unauthorized,
		interceptors: opts.Interceptors,
		observers:    opts.Observers,
		timeout:      opts.DefaultTimeout,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if c.doer == nil {
		c.doer = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Use appends interceptors to the chain.
func (c *Client) Use(ics ...Interceptor) {
	c.interceptors = append(c.interceptors, ics...)
}

// Observe appends observers.
func (c *Client) Observe(obs ...Observer) {
	c.observers = append(c.observers, obs...)
}

// SetUnauthorizedHandler replaces the 401 hook.
func (c *Client) SetUnauthorizedHandler(h UnauthorizedHandler) {
	c.unauthorized = h
}

// Do runs one call through the pipeline.
func (c *Client) Do(ctx context.Context, r Request) (res Result[json.RawMessage]) {
	start := c.now()
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.resolve(r)
	obsCtx := ctx

	defer func() {
		if p := recover(); p != nil {
			c.logger.Error(ctx, "request pipeline panicked", "url", target, "panic", p)
			res = failure[json.RawMessage](KindNetwork, 0, fmt.Sprintf("internal error: %v", p))
		}
		c.notify(obsCtx, CallInfo{
			Method:   method,
			URL:      target,
			Success:  res.Success,
			Kind:     res.Kind,
			Status:   res.Status,
			Message:  res.Message,
			Duration: c.now().Sub(start),
		})
	}()

	if err := c.validator.Validate(ctx, target); err != nil {
		res = failure[json.RawMessage](KindNetwork, 0, err.Error())
		res.Rejected = true
		return res
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.build(callCtx, method, target, r)
	if err != nil {
		return failure[json.RawMessage](KindNetwork, 0, err.Error())
	}

	for _, ic := range c.interceptors {
		if req, err = runBefore(callCtx, ic, req); err != nil {
			return failure[json.RawMessage](KindNetwork, 0, err.Error())
		}
		obsCtx = req.Context()
	}
	// Interceptors may rewrite the destination; the gate applies to where the
	// call actually goes.
	if dest := req.URL.String(); dest != target {
		if err := c.validator.Validate(ctx, dest); err != nil {
			res = failure[json.RawMessage](KindNetwork, 0, err.Error())
			res.Rejected = true
			return res
		}
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return c.transportFailure(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return c.transportFailure(ctx, callCtx, err)
	}
	if len(raw) > MaxBodySize {
		return failure[json.RawMessage](KindParseFailed, resp.StatusCode, "response body too large")
	}

	c.validator.CheckResponse(ctx, resp, len(bytes.TrimSpace(raw)), true)
	return c.classify(ctx, req, resp, raw)
}

func (c *Client) classify(ctx context.Context, req *http.Request, resp *http.Response, raw []byte) Result[json.RawMessage] {
	status := resp.StatusCode
	body, parseErr := parseBody(raw)

	if status == http.StatusUnauthorized {
		if c.unauthorized != nil {
			c.unauthorized.HandleUnauthorized(context.WithoutCancel(ctx))
		}
		msg := "HTTP 401"
		if parseErr == nil {
			msg = errorMessage(body, status)
		}
		return failure[json.RawMessage](KindUnauthorized, status, msg)
	}

	ok := status >= 200 && status < 300
	if parseErr != nil {
		// Gateway error pages land here too, whatever their status.
		res := failure[json.RawMessage](KindParseFailed, status, parseErr.Error())
		if !ok {
			res.RetryAfter = retryAfter(resp.Header, c.now())
		}
		return res
	}

	out := &Response{Request: req, Status: status, Header: resp.Header, Body: body}
	for _, ic := range c.interceptors {
		var err error
		if out, err = runAfter(req.Context(), ic, out); err != nil {
			return failure[json.RawMessage](KindNetwork, status, err.Error())
		}
	}

	if !ok {
		res := failure[json.RawMessage](KindHTTP, status, errorMessage(out.Body, status))
		res.RetryAfter = retryAfter(resp.Header, c.now())
		return res
	}
	return Result[json.RawMessage]{Success: true, Data: unwrapData(out.Body), Status: status}
}

// transportFailure classifies a dispatch or read error. An expired deadline is
// a timeout; cancellation by the caller is a network error.
func (c *Client) transportFailure(parent, callCtx context.Context, err error) Result[json.RawMessage] {
	switch {
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return failure[json.RawMessage](KindTimedOut, 0, "request timed out")
	case errors.Is(parent.Err(), context.Canceled):
		return failure[json.RawMessage](KindNetwork, 0, "request canceled")
	}
	return failure[json.RawMessage](KindNetwork, 0, err.Error())
}

func (c *Client) resolve(r Request) string {
	ref, err := url.Parse(r.Path)
	if err != nil {
		return r.Path
	}

	var u *url.URL
	if ref.IsAbs() {
		u = ref
	} else {
		u = c.base.JoinPath(ref.Path)
		u.RawQuery = ref.RawQuery
	}

	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) build(ctx context.Context, method, target string, r Request) (*http.Request, error) {
	var (
		body        io.Reader
		contentType = r.ContentType
	)
	switch {
	case r.RawBody != nil:
		body = r.RawBody
	case r.Body != nil:
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = common.ContentTypeJSON
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", common.ContentTypeJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.validator.Decorate(req)
	if c.tokens != nil {
		if tok, ok := c.tokens.Token(ctx); ok {
			req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+tok)
		}
	}
	return req, nil
}

func (c *Client) notify(ctx context.Context, info CallInfo) {
	for _, o := range c.observers {
		func() {
			defer func() {
				if p := recover(); p != nil {
					c.logger.Error(ctx, "result observer panicked", "panic", p)
				}
			}()
			o.ObserveResult(ctx, info)
		}()
	}
}
