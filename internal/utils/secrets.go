package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret returns n random bytes hex encoded.
func GenerateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateSessionSecret returns a 256-bit secret suitable for JWT_SECRET.
func GenerateSessionSecret() (string, error) {
	return GenerateSecret(32)
}

// RandomSuffix returns a short random hex string for file names.
func RandomSuffix() (string, error) {
	return GenerateSecret(4)
}
