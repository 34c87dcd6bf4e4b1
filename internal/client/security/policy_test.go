package security

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy("https://API.example.com/v1", []string{"cdn.example.com", " ", "api.example.com"}, false)
	require.NoError(t, err)

	assert.Equal(t, "api.example.com", p.Hostname)
	assert.True(t, p.EnforceHTTPS)
	assert.False(t, p.DevMode)
	assert.Equal(t, []string{"api.example.com", "cdn.example.com"}, p.AllowedHosts())
	assert.True(t, p.Allows("CDN.example.com"))
	assert.False(t, p.Allows("evil.example.com"))
}

func TestNewPolicy_AllowedHostsIsACopy(t *testing.T) {
	p, err := NewPolicy("https://api.example.com", nil, false)
	require.NoError(t, err)

	hosts := p.AllowedHosts()
	hosts[0] = "evil.example.com"
	assert.False(t, p.Allows("evil.example.com"))
}

func TestNewPolicy_DevMode(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		strict  bool
		want    bool
	}{
		{"localhost http", "http://localhost:8080", false, true},
		{"loopback ip", "http://127.0.0.1:8080", false, true},
		{"private ip", "http://192.168.1.20", false, true},
		{"mdns name", "http://pantry.local", false, true},
		{"strict disables", "http://localhost:8080", true, false},
		{"https local", "https://localhost", false, false},
		{"http public", "http://api.example.com", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPolicy(tt.baseURL, nil, tt.strict)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.DevMode)
		})
	}
}

func TestNewPolicy_Invalid(t *testing.T) {
	_, err := NewPolicy("::not a url", nil, false)
	require.Error(t, err)

	_, err = NewPolicy("/relative/only", nil, false)
	require.ErrorContains(t, err, "missing host")
}

func TestRejectionError(t *testing.T) {
	err := error(&RejectionError{URL: "http://x", Reason: ErrInsecureScheme})

	assert.True(t, errors.Is(err, ErrInsecureScheme))
	assert.False(t, errors.Is(err, ErrUnauthorizedHost))
	assert.Contains(t, err.Error(), "insecure scheme")

	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "http://x", rej.URL)
}
