package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// RequestOption tweaks a Request built by the typed helpers.
type RequestOption func(*Request)

func WithTimeout(d time.Duration) RequestOption {
	return func(r *Request) { r.Timeout = d }
}

func WithQuery(q url.Values) RequestOption {
	return func(r *Request) { r.Query = q }
}

func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = http.Header{}
		}
		r.Header.Set(key, value)
	}
}

// Send runs r and decodes the payload into T. A payload that does not decode
// into T is a parse failure.
func Send[T any](ctx context.Context, c *Client, r Request, opts ...RequestOption) Result[T] {
	for _, opt := range opts {
		opt(&r)
	}

	res := c.Do(ctx, r)
	if !res.Success {
		return convert[T](res)
	}

	out := Result[T]{Success: true, Status: res.Status}
	if raw, ok := any(&out.Data).(*json.RawMessage); ok {
		*raw = res.Data
		return out
	}
	if err := json.Unmarshal(res.Data, &out.Data); err != nil {
		return failure[T](KindParseFailed, res.Status, fmt.Sprintf("unexpected payload: %v", err))
	}
	return out
}

func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) Result[T] {
	return Send[T](ctx, c, Request{Method: http.MethodGet, Path: path}, opts...)
}

func Post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) Result[T] {
	return Send[T](ctx, c, Request{Method: http.MethodPost, Path: path, Body: body}, opts...)
}

func Put[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) Result[T] {
	return Send[T](ctx, c, Request{Method: http.MethodPut, Path: path, Body: body}, opts...)
}

func Delete[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) Result[T] {
	return Send[T](ctx, c, Request{Method: http.MethodDelete, Path: path}, opts...)
}

// Part is one multipart form member: a file when FileName is set (read from
// Reader), a plain field otherwise.
type Part struct {
	Field       string
	FileName    string
	ContentType string
	Reader      io.Reader
	Value       string
}

// Upload posts parts as multipart/form-data. Readers are consumed, so a
// retried upload needs fresh parts.
func Upload[T any](ctx context.Context, c *Client, path string, parts []Part, opts ...RequestOption) Result[T] {
	body, contentType, err := encodeMultipart(parts)
	if err != nil {
		return failure[T](KindNetwork, 0, err.Error())
	}
	return Send[T](ctx, c, Request{
		Method:      http.MethodPost,
		Path:        path,
		RawBody:     body,
		ContentType: contentType,
	}, opts...)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(parts []Part) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range parts {
		if p.FileName == "" {
			if err := w.WriteField(p.Field, p.Value); err != nil {
				return nil, "", fmt.Errorf("failed to write field %s: %w", p.Field, err)
			}
			continue
		}

		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(p.Field), quoteEscaper.Replace(p.FileName)))
		ct := p.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create part %s: %w", p.Field, err)
		}
		if p.Reader != nil {
			if _, err := io.Copy(pw, p.Reader); err != nil {
				return nil, "", fmt.Errorf("failed to read %s: %w", p.FileName, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
