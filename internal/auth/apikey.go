package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// API keys look like rk_<40 hex chars>. Only the SHA-256 of a key is
// stored; lookups hash the presented key and match on the digest.
const (
	apiKeyPrefix    = "rk_"
	apiKeyRandBytes = 20
)

// GenerateAPIKey creates a new random API key.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyRandBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

// HashAPIKey returns the hex SHA-256 digest of a key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// LooksLikeAPIKey reports whether a credential has the API key shape,
// distinguishing keys from JWTs in a shared Authorization header.
func LooksLikeAPIKey(credential string) bool {
	return strings.HasPrefix(credential, apiKeyPrefix)
}
