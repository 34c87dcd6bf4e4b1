package security

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/buildinfo"
	"github.com/dmitrijs2005/pantryclient/internal/common"
	"github.com/dmitrijs2005/pantryclient/internal/logging"
)

// Integrity headers added to every request.
const (
	HeaderRequestedWith    = "X-Requested-With"
	HeaderClientName       = "X-Client-Name"
	HeaderClientVersion    = "X-Client-Version"
	HeaderRequestTimestamp = "X-Request-Timestamp"
)

type ValidatorOptions struct {
	// ClientVersion defaults to buildinfo.Version.
	ClientVersion string
	Logger        logging.Logger
	Now           func() time.Time
}

// Validator applies a Policy to outbound requests and inspects responses.
type Validator struct {
	policy  Policy
	version string
	logger  logging.Logger
	now     func() time.Time
}

func NewValidator(p Policy, opts ValidatorOptions) *Validator {
	v := &Validator{policy: p, version: opts.ClientVersion, logger: opts.Logger, now: opts.Now}
	if v.version == "" {
		v.version = buildinfo.Version
	}
	if v.logger == nil {
		v.logger = logging.Nop()
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

func (v *Validator) Policy() Policy {
	return v.policy
}

// Validate approves rawURL or returns a *RejectionError. In dev mode the same
// checks run but a violation is only logged.
func (v *Validator) Validate(ctx context.Context, rawURL string) error {
	err := v.check(rawURL)
	if err == nil {
		return nil
	}
	if v.policy.DevMode {
		v.logger.Warn(ctx, "security check bypassed in dev mode", "url", rawURL, "reason", err)
		return nil
	}
	return err
}

func (v *Validator) check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return &RejectionError{URL: rawURL, Reason: ErrUnauthorizedHost}
	}
	if !v.policy.Allows(u.Hostname()) {
		return &RejectionError{URL: rawURL, Reason: ErrUnauthorizedHost}
	}
	if v.policy.EnforceHTTPS && u.Scheme != "https" {
		return &RejectionError{URL: rawURL, Reason: ErrInsecureScheme}
	}
	return nil
}

// Decorate sets the integrity headers on req.
func (v *Validator) Decorate(req *http.Request) {
	req.Header.Set(HeaderRequestedWith, "XMLHttpRequest")
	req.Header.Set(HeaderClientName, common.ClientName)
	req.Header.Set(HeaderClientVersion, v.version)
	req.Header.Set(HeaderRequestTimestamp, strconv.FormatInt(v.now().UnixMilli(), 10))
}

// CheckResponse returns soft warnings about missing protective headers and an
// unexpected content type. Warnings are also logged; they never fail a call.
func (v *Validator) CheckResponse(ctx context.Context, resp *http.Response, bodyLen int, expectJSON bool) []string {
	var warnings []string

	if resp.Request != nil && resp.Request.URL != nil && resp.Request.URL.Scheme == "https" &&
		resp.Header.Get("Strict-Transport-Security") == "" {
		warnings = append(warnings, "missing Strict-Transport-Security header")
	}
	if resp.Header.Get("X-Content-Type-Options") == "" {
		warnings = append(warnings, "missing X-Content-Type-Options header")
	}
	if resp.Header.Get("X-Frame-Options") == "" {
		warnings = append(warnings, "missing X-Frame-Options header")
	}
	if expectJSON && bodyLen > 0 && !isJSON(resp.Header.Get("Content-Type")) {
		warnings = append(warnings, "unexpected content type "+strconv.Quote(resp.Header.Get("Content-Type")))
	}

	for _, w := range warnings {
		v.logger.Warn(ctx, "response security warning", "warning", w)
	}
	return warnings
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == common.ContentTypeJSON || strings.HasSuffix(mt, "+json")
}
