package crypto

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password with bcrypt at the default cost
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies a password against its bcrypt hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashSecret hashes an API secret with bcrypt. Only the hash is ever
// persisted; the plaintext secret is shown once and not re-derivable.
func HashSecret(secret string) (string, error) {
	return HashPassword(secret)
}

// CheckSecret verifies an API secret against its stored hash
func CheckSecret(secret, hash string) bool {
	return CheckPassword(secret, hash)
}
