// Package security gates every outbound request: the destination host must be
// on the allow-list and the scheme must be HTTPS, except in development mode
// against a local backend.
package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

var (
	ErrUnauthorizedHost = errors.New("unauthorized host")
	ErrInsecureScheme   = errors.New("insecure scheme")
)

// RejectionError explains why a destination was refused. It unwraps to
// ErrUnauthorizedHost or ErrInsecureScheme.
type RejectionError struct {
	URL    string
	Reason error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("request to %q rejected: %v", e.URL, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

// Policy is computed once from the backend base URL and never changes.
type Policy struct {
	Hostname     string
	EnforceHTTPS bool
	// DevMode downgrades violations to warnings. It is only ever set for a
	// plain-HTTP base URL on a local host.
	DevMode bool

	allowed []string
}

// NewPolicy builds the policy for baseURL. extraHosts are added to the
// allow-list next to the base URL's own host. strict disables dev mode.
func NewPolicy(baseURL string, extraHosts []string, strict bool) (Policy, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid base url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Policy{}, fmt.Errorf("invalid base url %q: missing host", baseURL)
	}

	p := Policy{
		Hostname:     host,
		EnforceHTTPS: true,
		DevMode:      !strict && u.Scheme == "http" && isLocalHost(host),
		allowed:      []string{host},
	}
	for _, h := range extraHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" && !slices.Contains(p.allowed, h) {
			p.allowed = append(p.allowed, h)
		}
	}
	slices.Sort(p.allowed)
	return p, nil
}

// AllowedHosts returns a copy of the allow-list.
func (p Policy) AllowedHosts() []string {
	return slices.Clone(p.allowed)
}

func (p Policy) Allows(host string) bool {
	_, found := slices.BinarySearch(p.allowed, strings.ToLower(host))
	return found
}

func isLocalHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}
