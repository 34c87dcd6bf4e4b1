package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxBodySize caps how much of a response body is read.
const MaxBodySize = 8 << 20

var emptyObject = json.RawMessage(`{}`)

// parseBody applies the body rules: blank is an empty object, markup or
// anything else that is not JSON is a parse failure.
func parseBody(b []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return emptyObject, nil
	}
	if trimmed[0] == '<' {
		return nil, errors.New("received markup instead of JSON")
	}
	if !json.Valid(trimmed) {
		return nil, errors.New("invalid JSON body")
	}
	return json.RawMessage(trimmed), nil
}

// unwrapData returns the "data" member of an envelope object, or body itself
// when it is not an envelope.
func unwrapData(body json.RawMessage) json.RawMessage {
	var env map[string]json.RawMessage
	if json.Unmarshal(body, &env) != nil {
		return body
	}
	if data, ok := env["data"]; ok {
		return data
	}
	return body
}

// errorMessage extracts a server error message from "error" (a string or an
// object with "message") or "message", falling back to "HTTP <status>".
func errorMessage(body json.RawMessage, status int) string {
	var env struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &env) == nil {
		var s string
		if json.Unmarshal(env.Error, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return "HTTP " + strconv.Itoa(status)
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
