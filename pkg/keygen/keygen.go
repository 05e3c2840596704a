package keygen

import (
	"crypto/rand"
	"math/big"
)

const (
	alphaNumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	apiKeyPrefix = "exk_"
	apiKeyLength = 32
	secretLength = 64
)

// CredentialSet contains a generated executor credential pair. The
// secret is plaintext here and must be hashed before persistence.
type CredentialSet struct {
	APIKey    string
	APISecret string
}

// GenerateCredentials generates an executor API key and a
// high-entropy secret.
func GenerateCredentials() (*CredentialSet, error) {
	apiKey, err := randomString(apiKeyLength, alphaNumeric)
	if err != nil {
		return nil, err
	}

	apiSecret, err := randomString(secretLength, alphaNumeric)
	if err != nil {
		return nil, err
	}

	return &CredentialSet{
		APIKey:    apiKeyPrefix + apiKey,
		APISecret: apiSecret,
	}, nil
}

// randomString generates a random string of given length from the given charset
func randomString(length int, charset string) (string, error) {
	result := make([]byte, length)
	charsetLen := big.NewInt(int64(len(charset)))

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		result[i] = charset[num.Int64()]
	}

	return string(result), nil
}
