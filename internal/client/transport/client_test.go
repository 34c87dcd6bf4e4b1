package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/client/security"
	"github.com/dmitrijs2005/pantryclient/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDoer returns a canned response and remembers every request.
type recordingDoer struct {
	mu       sync.Mutex
	requests []*http.Request
	status   int
	body     string
	header   http.Header
	err      error
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	h := d.header
	if h == nil {
		h = http.Header{"Content-Type": {"application/json"}}
	}
	return &http.Response{
		StatusCode: d.status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(d.body)),
		Request:    req,
	}, nil
}

func (d *recordingDoer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

type staticTokens string

func (s staticTokens) Token(context.Context) (string, bool) {
	return string(s), s != ""
}

type countingHandler struct{ n atomic.Int32 }

func (h *countingHandler) HandleUnauthorized(context.Context) { h.n.Add(1) }

func validatorFor(t *testing.T, baseURL string) *security.Validator {
	t.Helper()
	p, err := security.NewPolicy(baseURL, nil, false)
	require.NoError(t, err)
	return security.NewValidator(p, security.ValidatorOptions{ClientVersion: "test"})
}

func newClient(t *testing.T, baseURL string, opts Options) *Client {
	t.Helper()
	if opts.Validator == nil {
		opts.Validator = validatorFor(t, baseURL)
	}
	c, err := New(baseURL, opts)
	require.NoError(t, err)
	return c
}

func stubClient(t *testing.T, d *recordingDoer, opts Options) *Client {
	opts.Doer = d
	return newClient(t, "https://api.example.com", opts)
}

func TestNew_RequiresValidator(t *testing.T) {
	_, err := New("https://api.example.com", Options{})
	require.Error(t, err)
}

func TestDo_SuccessWithEnvelope(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"r1"},{"id":"r2"}],"error":null}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL+"/v1", Options{
		Doer:         srv.Client(),
		Tokens:       staticTokens("abc"),
		Interceptors: []Interceptor{RequestIDInterceptor()},
	})

	res := Get[[]map[string]string](context.Background(), c, "/recipes", WithQuery(map[string][]string{"limit": {"2"}}))
	require.True(t, res.Success, res.Message)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, []map[string]string{{"id": "r1"}, {"id": "r2"}}, res.Data)
	require.NoError(t, res.Err())

	require.NotNil(t, got)
	assert.Equal(t, "/v1/recipes", got.URL.Path)
	assert.Equal(t, "2", got.URL.Query().Get("limit"))
	assert.Equal(t, "Bearer abc", got.Header.Get(common.AuthorizationHeaderName))
	assert.Equal(t, common.ClientName, got.Header.Get(security.HeaderClientName))
	assert.Equal(t, "test", got.Header.Get(security.HeaderClientVersion))
	assert.NotEmpty(t, got.Header.Get(security.HeaderRequestTimestamp))
	assert.Len(t, got.Header.Get(common.RequestIDHeaderName), 36)
}

func TestDo_NoTokenIsLegal(t *testing.T) {
	d := &recordingDoer{status: 200, body: `{}`}
	res := Get[json.RawMessage](context.Background(), stubClient(t, d, Options{Tokens: staticTokens("")}), "/public")

	require.True(t, res.Success)
	assert.Empty(t, d.requests[0].Header.Get(common.AuthorizationHeaderName))
}

func TestDo_BodyRules(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantOK   bool
		wantKind ErrorKind
		wantData string
	}{
		{"empty body", "", true, "", `{}`},
		{"whitespace body", " \n\t", true, "", `{}`},
		{"bare object", `{"id":"x"}`, true, "", `{"id":"x"}`},
		{"envelope", `{"data":{"id":"x"}}`, true, "", `{"id":"x"}`},
		{"null data", `{"data":null}`, true, "", `null`},
		{"array", `[1,2]`, true, "", `[1,2]`},
		{"html", "<html>Error</html>", false, KindParseFailed, ""},
		{"html after whitespace", "  <!doctype html>", false, KindParseFailed, ""},
		{"broken json", `{"data":`, false, KindParseFailed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDoer{status: 200, body: tt.body}
			res := stubClient(t, d, Options{}).Do(context.Background(), Request{Path: "/x"})

			assert.Equal(t, tt.wantOK, res.Success)
			assert.Equal(t, tt.wantKind, res.Kind)
			if tt.wantOK {
				assert.JSONEq(t, tt.wantData, string(res.Data))
			} else {
				require.ErrorIs(t, res.Err(), ErrParseFailed)
			}
		})
	}
}

func TestDo_HTTPErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"error string", 400, `{"error":"email already used"}`, "email already used"},
		{"error object", 422, `{"error":{"message":"bad code","code":"E1"}}`, "bad code"},
		{"message member", 404, `{"message":"no such recipe"}`, "no such recipe"},
		{"no message", 500, `{}`, "HTTP 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDoer{status: tt.status, body: tt.body}
			res := stubClient(t, d, Options{}).Do(context.Background(), Request{Path: "/x"})

			require.False(t, res.Success)
			assert.Equal(t, KindHTTP, res.Kind)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.wantMsg, res.Message)
			assert.Equal(t, tt.wantMsg, res.UserMessage())
			assert.False(t, res.Retryable())
			require.ErrorIs(t, res.Err(), ErrHTTP)
		})
	}
}

func TestDo_NonJSONErrorBodyIsParseFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"gateway html page", 502, `<html>Bad gateway</html>`},
		{"timeout html page", 504, "  <!doctype html><title>Gateway Timeout</title>"},
		{"broken json", 500, `{"error":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDoer{status: tt.status, body: tt.body}
			res := stubClient(t, d, Options{}).Do(context.Background(), Request{Path: "/x"})

			require.False(t, res.Success)
			assert.Equal(t, KindParseFailed, res.Kind)
			assert.Equal(t, tt.status, res.Status)
			require.ErrorIs(t, res.Err(), ErrParseFailed)
		})
	}

	d := &recordingDoer{status: 503, body: "<html>down</html>", header: http.Header{"Retry-After": {"4"}}}
	res := stubClient(t, d, Options{}).Do(context.Background(), Request{Path: "/x"})
	assert.Equal(t, KindParseFailed, res.Kind)
	assert.Equal(t, 4*time.Second, res.RetryAfter)
}

func TestDo_RetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	d := &recordingDoer{status: 429, body: `{}`, header: http.Header{"Retry-After": {"7"}}}
	res := stubClient(t, d, Options{}).Do(context.Background(), Request{Path: "/x"})
	assert.Equal(t, 7*time.Second, res.RetryAfter)

	d = &recordingDoer{status: 503, body: `{}`, header: http.Header{
		"Retry-After": {now.Add(30 * time.Second).Format(http.TimeFormat)},
	}}
	res = stubClient(t, d, Options{Now: func() time.Time { return now }}).Do(context.Background(), Request{Path: "/x"})
	assert.Equal(t, 30*time.Second, res.RetryAfter)
}

func TestDo_UnauthorizedCallsHandlerFirst(t *testing.T) {
	h := &countingHandler{}
	d := &recordingDoer{status: 401, body: `{"error":"token expired"}`}

	res := stubClient(t, d, Options{Unauthorized: h}).Do(context.Background(), Request{Path: "/users/me"})

	require.False(t, res.Success)
	assert.Equal(t, KindUnauthorized, res.Kind)
	assert.Equal(t, "token expired", res.Message)
	assert.Equal(t, int32(1), h.n.Load(), "handler ran before Do returned")
	require.ErrorIs(t, res.Err(), ErrUnauthorized)
}

func TestDo_SecurityGateBlocksDispatch(t *testing.T) {
	d := &recordingDoer{status: 200, body: `{}`}
	c := stubClient(t, d, Options{})

	res := c.Do(context.Background(), Request{Path: "https://evil.example.com/x"})

	require.False(t, res.Success)
	assert.Equal(t, KindNetwork, res.Kind)
	assert.True(t, res.Rejected)
	assert.Contains(t, res.UserMessage(), "unauthorized host")
	assert.Zero(t, d.calls(), "doer must never be reached")

	res = c.Do(context.Background(), Request{Path: "http://api.example.com/x"})
	assert.Equal(t, KindNetwork, res.Kind)
	assert.Contains(t, res.Message, "insecure scheme")
	assert.Zero(t, d.calls())
}

func TestDo_SecurityGateCoversRewrittenDestination(t *testing.T) {
	d := &recordingDoer{status: 200, body: `{}`}
	c := stubClient(t, d, Options{})
	c.Use(InterceptorFuncs{Before: func(_ context.Context, req *http.Request) (*http.Request, error) {
		req.URL.Host = "evil.example.com"
		return req, nil
	}})

	res := c.Do(context.Background(), Request{Path: "/x"})

	require.False(t, res.Success)
	assert.Equal(t, KindNetwork, res.Kind)
	assert.True(t, res.Rejected)
	assert.Contains(t, res.Message, "unauthorized host")
	assert.Zero(t, d.calls(), "doer must never be reached")
}

func TestDo_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, Options{Doer: srv.Client()})
	res := c.Do(context.Background(), Request{Path: "/slow", Timeout: 50 * time.Millisecond})

	require.False(t, res.Success)
	assert.Equal(t, KindTimedOut, res.Kind)
	assert.True(t, res.Retryable())
	assert.Empty(t, res.UserMessage())
	require.ErrorIs(t, res.Err(), ErrTimedOut)
}

func TestDo_CallerCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	res := newClient(t, srv.URL, Options{Doer: srv.Client()}).Do(ctx, Request{Path: "/slow"})
	assert.Equal(t, KindNetwork, res.Kind)
	assert.Equal(t, "request canceled", res.Message)
}

func TestDo_DoerError(t *testing.T) {
	d := &recordingDoer{err: errors.New("connection refused")}
	res := stubClient(t, d, Options{}).Do(context.Background(), Request{Path: "/x"})

	assert.Equal(t, KindNetwork, res.Kind)
	assert.Contains(t, res.Message, "connection refused")
	require.ErrorIs(t, res.Err(), ErrNetwork)
}

func TestDo_BodyTooLarge(t *testing.T) {
	d := &recordingDoer{status: 200, body: `"` + strings.Repeat("a", MaxBodySize) + `"`}
	res := stubClient(t, d, Options{}).Do(context.Background(), Request{Path: "/x"})

	assert.Equal(t, KindParseFailed, res.Kind)
}

func TestInterceptors(t *testing.T) {
	var order []string
	mk := func(name string) Interceptor {
		return InterceptorFuncs{
			Before: func(_ context.Context, req *http.Request) (*http.Request, error) {
				order = append(order, "before:"+name)
				assert.NotEmpty(t, req.Header.Get(security.HeaderClientName), "integrity headers come first")
				return req, nil
			},
			After: func(_ context.Context, resp *Response) (*Response, error) {
				order = append(order, "after:"+name)
				return resp, nil
			},
		}
	}

	d := &recordingDoer{status: 200, body: `{"data":1}`}
	res := stubClient(t, d, Options{Interceptors: []Interceptor{mk("a"), mk("b")}}).Do(context.Background(), Request{Path: "/x"})

	require.True(t, res.Success)
	assert.Equal(t, []string{"before:a", "before:b", "after:a", "after:b"}, order)
}

func TestInterceptors_RewriteBody(t *testing.T) {
	d := &recordingDoer{status: 200, body: `{"data":{"n":1}}`}
	c := stubClient(t, d, Options{})
	c.Use(InterceptorFuncs{After: func(_ context.Context, resp *Response) (*Response, error) {
		resp.Body = json.RawMessage(`{"data":{"n":2}}`)
		return resp, nil
	}})

	res := Get[struct{ N int }](context.Background(), c, "/x")
	require.True(t, res.Success)
	assert.Equal(t, 2, res.Data.N)
}

func TestInterceptors_FailuresBecomeNetworkErrors(t *testing.T) {
	tests := []struct {
		name string
		ic   Interceptor
		sent int
	}{
		{"before error", InterceptorFuncs{Before: func(context.Context, *http.Request) (*http.Request, error) {
			return nil, errors.New("no network")
		}}, 0},
		{"before panic", InterceptorFuncs{Before: func(context.Context, *http.Request) (*http.Request, error) {
			panic("boom")
		}}, 0},
		{"before nil request", InterceptorFuncs{Before: func(context.Context, *http.Request) (*http.Request, error) {
			return nil, nil
		}}, 0},
		{"after error", InterceptorFuncs{After: func(context.Context, *Response) (*Response, error) {
			return nil, errors.New("tampered")
		}}, 1},
		{"after panic", InterceptorFuncs{After: func(context.Context, *Response) (*Response, error) {
			panic("boom")
		}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDoer{status: 200, body: `{}`}
			res := stubClient(t, d, Options{Interceptors: []Interceptor{tt.ic}}).Do(context.Background(), Request{Path: "/x"})

			require.False(t, res.Success)
			assert.Equal(t, KindNetwork, res.Kind)
			assert.Equal(t, tt.sent, d.calls())
		})
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	infos []CallInfo
}

func (o *recordingObserver) ObserveResult(_ context.Context, info CallInfo) {
	o.mu.Lock()
	o.infos = append(o.infos, info)
	o.mu.Unlock()
}

func TestObserversSeeEveryOutcome(t *testing.T) {
	obs := &recordingObserver{}
	d := &recordingDoer{status: 200, body: `{}`}
	c := stubClient(t, d, Options{Observers: []Observer{obs}})

	c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/ok", Body: map[string]int{"a": 1}})
	c.Do(context.Background(), Request{Path: "https://evil.example.com/"})

	require.Len(t, obs.infos, 2)
	assert.True(t, obs.infos[0].Success)
	assert.Equal(t, http.MethodPost, obs.infos[0].Method)
	assert.Equal(t, "https://api.example.com/ok", obs.infos[0].URL)
	assert.False(t, obs.infos[1].Success)
	assert.Equal(t, KindNetwork, obs.infos[1].Kind)
}

func TestPostSendsJSON(t *testing.T) {
	d := &recordingDoer{status: 201, body: `{"data":{"ok":true}}`}
	res := Post[map[string]bool](context.Background(), stubClient(t, d, Options{}), "/recipes/generate",
		map[string]any{"ingredients": []string{"egg"}}, WithTimeout(LongTimeout), WithHeader("X-Trace", "1"))

	require.True(t, res.Success)
	assert.Equal(t, map[string]bool{"ok": true}, res.Data)

	req := d.requests[0]
	assert.Equal(t, common.ContentTypeJSON, req.Header.Get("Content-Type"))
	assert.Equal(t, "1", req.Header.Get("X-Trace"))
	b, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ingredients":["egg"]}`, string(b))
	deadline, ok := req.Context().Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(LongTimeout), deadline, 5*time.Second)
}

func TestSend_TypeMismatchIsParseFailure(t *testing.T) {
	d := &recordingDoer{status: 200, body: `{"data":"not a number"}`}
	res := Get[int](context.Background(), stubClient(t, d, Options{}), "/x")

	assert.False(t, res.Success)
	assert.Equal(t, KindParseFailed, res.Kind)
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("avatar")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"name":  hdr.Filename,
			"type":  hdr.Header.Get("Content-Type"),
			"size":  len(b),
			"label": r.FormValue("label"),
		}})
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, Options{Doer: srv.Client()})
	res := Upload[map[string]any](context.Background(), c, "/users/me/avatar", []Part{
		{Field: "avatar", FileName: "me.png", ContentType: "image/png", Reader: bytes.NewReader([]byte("png!"))},
		{Field: "label", Value: "profile"},
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "me.png", res.Data["name"])
	assert.Equal(t, "image/png", res.Data["type"])
	assert.EqualValues(t, 4, res.Data["size"])
	assert.Equal(t, "profile", res.Data["label"])
}

func TestRetryAfterParsing(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h := func(v string) http.Header { return http.Header{"Retry-After": {v}} }

	assert.Zero(t, retryAfter(http.Header{}, now))
	assert.Zero(t, retryAfter(h("-3"), now))
	assert.Zero(t, retryAfter(h("soon"), now))
	assert.Zero(t, retryAfter(h(now.Add(-time.Minute).Format(http.TimeFormat)), now))
	assert.Equal(t, 120*time.Second, retryAfter(h("120"), now))
}
