package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// avatarFields are the member names that may hold the avatar URL.
var avatarFields = map[string]bool{"avatarUrl": true, "avatar_url": true, "avatar": true}

// BustAvatar sets a v=<unix seconds> marker on the avatar URL of a profile
// document so image caches fetch the new picture. Only that value is
// rewritten; every other byte of raw is kept. It reports whether a field was
// found.
func BustAvatar(raw json.RawMessage, now time.Time) (json.RawMessage, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read profile: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return raw, false, nil
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false, fmt.Errorf("failed to read profile: %w", err)
		}
		key, _ := tok.(string)
		afterKey := int(dec.InputOffset())

		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, false, fmt.Errorf("failed to read profile member %q: %w", key, err)
		}
		end := int(dec.InputOffset())

		if !avatarFields[key] {
			continue
		}
		var current string
		if json.Unmarshal(v, &current) != nil || current == "" {
			continue
		}

		busted, err := withVersion(current, now)
		if err != nil {
			return nil, false, err
		}

		start := valueStart(raw, afterKey)
		out := make([]byte, 0, len(raw)+16)
		out = append(out, raw[:start]...)
		out = append(out, busted...)
		out = append(out, raw[end:]...)
		return out, true, nil
	}
	return raw, false, nil
}

// valueStart skips the colon and whitespace that follow an object key.
func valueStart(raw []byte, i int) int {
	for i < len(raw) && raw[i] != ':' {
		i++
	}
	i++
	for i < len(raw) && (raw[i] == ' ' || raw[i] == '\t' || raw[i] == '\n' || raw[i] == '\r') {
		i++
	}
	return i
}

func withVersion(rawURL string, now time.Time) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid avatar url: %w", err)
	}
	q := u.Query()
	q.Set("v", strconv.FormatInt(now.Unix(), 10))
	u.RawQuery = q.Encode()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(u.String()); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
