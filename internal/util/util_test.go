package util

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "secret")
	require.NoError(t, err)

	userID, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, 42, userID)
}

func TestParseJWTWrongSecret(t *testing.T) {
	token, err := GenerateJWT(42, "secret")
	require.NoError(t, err)

	_, err = ParseJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestParseJWTGarbage(t *testing.T) {
	_, err := ParseJWT("not-a-token", "secret")
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "bearer token", header: "Bearer abc123", want: "abc123"},
		{name: "lowercase scheme", header: "bearer abc123", want: "abc123"},
		{name: "missing header", header: "", want: ""},
		{name: "wrong scheme", header: "Basic abc123", want: ""},
		{name: "no token part", header: "Bearer", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, ExtractToken(r))
		})
	}
}

func TestPasswordHashAndCheck(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.True(t, CheckPassword("hunter2", hash))
	assert.False(t, CheckPassword("wrong", hash))
}
