// Package auth holds the shared-secret check used between the orchestrator
// and the simulation runtime.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashKey returns a SHA-256 hash of the key.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// SecretMatches reports whether presented equals secret. Both sides are hashed
// first so the comparison time does not depend on the secret's length.
// An empty secret never matches.
func SecretMatches(presented, secret string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashKey(presented)), []byte(HashKey(secret))) == 1
}
