// Package common contains shared constants and sentinel errors used across
// the pantry client components.
package common

// Header names attached to every outbound API request.
const (
	AuthorizationHeaderName = "Authorization"
	BearerPrefix            = "Bearer "
	RequestIDHeaderName     = "X-Request-ID"
	ContentTypeJSON         = "application/json"
)

// ClientName identifies the client in integrity headers and telemetry.
const ClientName = "pantry-client"
