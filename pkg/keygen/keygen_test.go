package keygen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCredentials(t *testing.T) {
	creds, err := GenerateCredentials()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(creds.APIKey, apiKeyPrefix))
	assert.Len(t, creds.APIKey, len(apiKeyPrefix)+apiKeyLength)
	assert.Len(t, creds.APISecret, secretLength)

	for _, r := range creds.APISecret {
		assert.Contains(t, alphaNumeric, string(r))
	}
}

func TestGenerateCredentialsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		creds, err := GenerateCredentials()
		require.NoError(t, err)
		assert.False(t, seen[creds.APIKey])
		seen[creds.APIKey] = true
	}
}
