package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/common"
	"github.com/dmitrijs2005/pantryclient/internal/logging"
	"github.com/google/uuid"
)

// Response is what response interceptors see: the status, headers and the
// parsed JSON body of a completed exchange.
type Response struct {
	Request *http.Request
	Status  int
	Header  http.Header
	Body    json.RawMessage
}

// Interceptor transforms or vets requests and responses. Returning an error
// aborts the call with a network error.
type Interceptor interface {
	BeforeRequest(ctx context.Context, req *http.Request) (*http.Request, error)
	AfterResponse(ctx context.Context, resp *Response) (*Response, error)
}

// InterceptorFuncs adapts plain functions to Interceptor. Nil members pass
// through.
type InterceptorFuncs struct {
	Before func(ctx context.Context, req *http.Request) (*http.Request, error)
	After  func(ctx context.Context, resp *Response) (*Response, error)
}

func (f InterceptorFuncs) BeforeRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	if f.Before == nil {
		return req, nil
	}
	return f.Before(ctx, req)
}

func (f InterceptorFuncs) AfterResponse(ctx context.Context, resp *Response) (*Response, error) {
	if f.After == nil {
		return resp, nil
	}
	return f.After(ctx, resp)
}

// CallInfo describes a finished call to observers.
type CallInfo struct {
	Method   string
	URL      string
	Success  bool
	Kind     ErrorKind
	Status   int
	Message  string
	Duration time.Duration
}

// Observer is notified of every terminal outcome. ctx is the request context
// as left by the request interceptors, so values they attached are visible.
type Observer interface {
	ObserveResult(ctx context.Context, info CallInfo)
}

// RequestIDInterceptor tags each request with a fresh X-Request-ID unless the
// caller already set one.
func RequestIDInterceptor() Interceptor {
	return InterceptorFuncs{
		Before: func(_ context.Context, req *http.Request) (*http.Request, error) {
			if req.Header.Get(common.RequestIDHeaderName) == "" {
				req.Header.Set(common.RequestIDHeaderName, uuid.NewString())
			}
			return req, nil
		},
	}
}

// LoggingInterceptor logs requests and responses at debug level.
func LoggingInterceptor(logger logging.Logger) Interceptor {
	return InterceptorFuncs{
		Before: func(ctx context.Context, req *http.Request) (*http.Request, error) {
			logger.Debug(ctx, "api request",
				"method", req.Method,
				"url", req.URL.Redacted(),
				"request_id", req.Header.Get(common.RequestIDHeaderName))
			return req, nil
		},
		After: func(ctx context.Context, resp *Response) (*Response, error) {
			logger.Debug(ctx, "api response",
				"method", resp.Request.Method,
				"url", resp.Request.URL.Redacted(),
				"status", resp.Status,
				"bytes", len(resp.Body))
			return resp, nil
		},
	}
}

func runBefore(ctx context.Context, ic Interceptor, req *http.Request) (out *http.Request, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("request interceptor panicked: %v", p)
		}
	}()
	out, err = ic.BeforeRequest(ctx, req)
	if err == nil && out == nil {
		err = errors.New("request interceptor returned no request")
	}
	return out, err
}

func runAfter(ctx context.Context, ic Interceptor, resp *Response) (out *Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("response interceptor panicked: %v", p)
		}
	}()
	out, err = ic.AfterResponse(ctx, resp)
	if err == nil && out == nil {
		err = errors.New("response interceptor returned no response")
	}
	return out, err
}
