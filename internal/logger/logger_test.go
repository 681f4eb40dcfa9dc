package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	got := redact([]interface{}{"path", "/api/plants", "refreshToken", "abc", "user_password", "p", "dangling"})

	assert.Equal(t, []interface{}{
		"path", "/api/plants",
		"refreshToken", "[REDACTED]",
		"user_password", "[REDACTED]",
		"dangling",
	}, got)
}

func TestNew(t *testing.T) {
	for _, env := range []string{"production", "development", ""} {
		l, err := New(env)
		assert.NoError(t, err)
		assert.NotNil(t, l)
	}
	Nop().Info("discarded", "k", "v")
}
