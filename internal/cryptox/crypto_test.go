package cryptox

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	secret := []byte("device-secret")

	k1 := DeriveKey(secret, []byte("salt-1"))
	k2 := DeriveKey(secret, []byte("salt-1"))
	k3 := DeriveKey(secret, []byte("salt-2"))

	require.Len(t, k1, KeySize)
	assert.True(t, bytes.Equal(k1, k2), "same inputs must give same key")
	assert.False(t, bytes.Equal(k1, k3), "different salts must give different keys")
}

func TestSealer_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, KeySize)
	s, err := NewSealer(key)
	require.NoError(t, err)

	type record struct {
		Token string `json:"token"`
	}

	sealed, err := s.Seal(record{Token: "abc"})
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "abc")

	var got record
	require.NoError(t, s.Open(sealed, &got))
	assert.Equal(t, "abc", got.Token)

	// two seals of the same value differ (random nonce)
	again, err := s.Seal(record{Token: "abc"})
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestSealer_OpenFailures(t *testing.T) {
	s1, err := NewSealer(bytes.Repeat([]byte{1}, KeySize))
	require.NoError(t, err)
	s2, err := NewSealer(bytes.Repeat([]byte{2}, KeySize))
	require.NoError(t, err)

	sealed, err := s1.Seal("x")
	require.NoError(t, err)

	var v string
	require.Error(t, s2.Open(sealed, &v), "wrong key")
	require.Error(t, s1.Open([]byte{1, 2}, &v), "too short")

	sealed[len(sealed)-1] ^= 0xff
	require.Error(t, s1.Open(sealed, &v), "tampered")

	_, err = NewSealer([]byte("short"))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "pantry.key")

	k1, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	require.Len(t, k1, KeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	k2, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	require.NoError(t, os.WriteFile(path, []byte("bad"), 0o600))
	_, err = LoadOrCreateKey(path)
	require.ErrorIs(t, err, ErrInvalidKey)
}
