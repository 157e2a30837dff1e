// Package auth generates and verifies the API keys that protect the portsweep
// HTTP API. Only bcrypt hashes are stored in configuration; the plain key is
// shown once, when it is generated.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyLength is the length of the random part of an API key.
	KeyLength = 32
	// KeyPrefix starts every generated key.
	KeyPrefix = "psw"
	// DefaultCost is the bcrypt cost used for stored hashes.
	DefaultCost = 12

	bcryptMaxInputLength = 72
	displayChars         = 8
	minKeyLength         = 16
	maxKeyLength         = 64
)

// GeneratedKey is a new API key and the hash to put in configuration.
type GeneratedKey struct {
	Key     string `json:"key"`
	Hash    string `json:"hash"`
	Display string `json:"display"`
}

// Generate creates a random key and hashes it with cost.
func Generate(cost int) (*GeneratedKey, error) {
	random := make([]byte, KeyLength)
	if _, err := rand.Read(random); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	encoded := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(random))
	key := KeyPrefix + "_" + encoded[:KeyLength]

	hash, err := Hash(key, cost)
	if err != nil {
		return nil, err
	}
	return &GeneratedKey{Key: key, Hash: hash, Display: DisplayPrefix(key)}, nil
}

// Hash returns the bcrypt hash of key.
func Hash(key string, cost int) (string, error) {
	if key == "" {
		return "", fmt.Errorf("API key cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword(prepare(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// Validate reports whether key matches hash.
func Validate(key, hash string) bool {
	if key == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), prepare(key)) == nil
}

// MatchesAny reports whether key matches at least one of hashes.
func MatchesAny(hashes []string, key string) bool {
	for _, hash := range hashes {
		if Validate(key, hash) {
			return true
		}
	}
	return false
}

// prepare pre-hashes keys longer than bcrypt's 72-byte input limit.
func prepare(key string) []byte {
	b := []byte(key)
	if len(b) > bcryptMaxInputLength {
		sum := sha256.Sum256(b)
		return sum[:]
	}
	return b
}

// ValidFormat reports whether key looks like a generated key.
func ValidFormat(key string) bool {
	if !strings.HasPrefix(key, KeyPrefix+"_") {
		return false
	}
	if len(key) < minKeyLength || len(key) > maxKeyLength {
		return false
	}
	for _, c := range key {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}

// DisplayPrefix returns a log-safe prefix such as "psw_abcdefgh...".
func DisplayPrefix(key string) string {
	if !ValidFormat(key) {
		return "invalid_key"
	}
	_, random, _ := strings.Cut(key, "_")
	if len(random) < displayChars {
		return KeyPrefix + "_..."
	}
	return KeyPrefix + "_" + random[:displayChars] + "..."
}
