package models

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainSecretRedactsEverywhereButReveal(t *testing.T) {
	secret := NewPlainSecret("super-secret-value")

	assert.Equal(t, "super-secret-value", secret.Reveal())
	assert.Equal(t, "[REDACTED]", secret.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", secret))
	assert.NotContains(t, fmt.Sprintf("%#v", secret), "super-secret-value")

	data, err := json.Marshal(secret)
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(data))

	// Embedded in a struct the default path stays redacted too
	wrapped, err := json.Marshal(struct {
		Secret PlainSecret `json:"secret"`
	}{Secret: secret})
	require.NoError(t, err)
	assert.NotContains(t, string(wrapped), "super-secret-value")
}
