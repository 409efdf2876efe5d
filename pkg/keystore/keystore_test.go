package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	s := New(NewMemoryBackend())

	_, err := s.Key("https://example.com/exec")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save("https://Example.com/exec/", "Secr3t!key"))
	key, err := s.Key("https://example.com/exec")
	require.NoError(t, err)
	assert.Equal(t, "Secr3t!key", key)

	require.NoError(t, s.Forget("HTTPS://example.com/exec"))
	_, err = s.Key("https://example.com/exec")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Forget("https://never.example"))
}

func TestStore_Validation(t *testing.T) {
	s := New(NewMemoryBackend())
	require.Error(t, s.Save("", "k"))
	require.Error(t, s.Save("https://example.com", ""))
	_, err := s.Key("")
	require.Error(t, err)
}

func TestEndpointID(t *testing.T) {
	tests := map[string]string{
		"https://Script.Google.com/macros/s/AbC/exec/": "https://script.google.com/macros/s/AbC/exec",
		"http://localhost:8080":                        "http://localhost:8080",
		" localhost:8080/ ":                            "localhost:8080",
	}
	for in, want := range tests {
		assert.Equal(t, want, endpointID(in), in)
	}
}
