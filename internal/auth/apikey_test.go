package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerate(t *testing.T) {
	generated, err := Generate(bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(generated.Key, KeyPrefix+"_"))
	assert.Len(t, generated.Key, len(KeyPrefix)+1+KeyLength)
	assert.True(t, ValidFormat(generated.Key))
	assert.True(t, Validate(generated.Key, generated.Hash))
	assert.Equal(t, generated.Key[:len(KeyPrefix)+1+displayChars]+"...", generated.Display)
}

func TestGenerate_Uniqueness(t *testing.T) {
	keys := make(map[string]bool)
	for i := 0; i < 50; i++ {
		generated, err := Generate(bcrypt.MinCost)
		require.NoError(t, err)
		assert.False(t, keys[generated.Key], "duplicate key %s", generated.Key)
		keys[generated.Key] = true
	}
}

func TestHash(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		expectError bool
	}{
		{name: "valid_key", key: "psw_abc123def456ghi789"},
		{name: "empty_key", key: "", expectError: true},
		{name: "long_key", key: strings.Repeat("a", 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := Hash(tt.key, bcrypt.MinCost)
			if tt.expectError {
				assert.Error(t, err)
				assert.Empty(t, hash)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(hash, "$2a$04$"))
			assert.True(t, Validate(tt.key, hash))
		})
	}
}

func TestHash_BadCost(t *testing.T) {
	_, err := Hash("psw_key", bcrypt.MaxCost+1)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	validKey := "psw_test_key_123"
	validHash, err := Hash(validKey, bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		key      string
		hash     string
		expected bool
	}{
		{"valid_key_and_hash", validKey, validHash, true},
		{"invalid_key_valid_hash", "psw_wrong_key_123", validHash, false},
		{"valid_key_invalid_hash", validKey, "invalid_hash", false},
		{"empty_key", "", validHash, false},
		{"empty_hash", validKey, "", false},
		{"both_empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Validate(tt.key, tt.hash))
		})
	}
}

func TestValidate_LongKeysArePrehashed(t *testing.T) {
	long := strings.Repeat("k", 100)
	hash, err := Hash(long, bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, Validate(long, hash))
	// Differs only after byte 72, which plain bcrypt would ignore.
	assert.False(t, Validate(strings.Repeat("k", 99)+"x", hash))
}

func TestMatchesAny(t *testing.T) {
	hash, err := Hash("psw_first", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, MatchesAny([]string{"not-a-hash", hash}, "psw_first"))
	assert.False(t, MatchesAny([]string{hash}, "psw_second"))
	assert.False(t, MatchesAny(nil, "psw_first"))
}

func TestValidFormat(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected bool
	}{
		{"valid_format", "psw_abc123def456ghi789jkl012mno345", true},
		{"valid_short_format", "psw_abc123def456", true},
		{"empty_key", "", false},
		{"missing_prefix", "abc123def456ghi789", false},
		{"wrong_prefix", "sk_abc123def456ghi789", false},
		{"too_short", "psw_abc", false},
		{"too_long", "psw_" + strings.Repeat("a", 100), false},
		{"invalid_characters", "psw_abc123@def456#ghi789", false},
		{"spaces_in_key", "psw_abc123 def456 ghi789", false},
		{"uppercase_letters", "psw_ABC123DEF456GHI789", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidFormat(tt.key), "key: %s", tt.key)
		})
	}
}

func TestDisplayPrefix(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"valid_key", "psw_abcdefghijklmnopqrstuvwxyz123456", "psw_abcdefgh..."},
		{"short_key", "psw_abc123", "invalid_key"},
		{"invalid_format", "invalid_key_format", "invalid_key"},
		{"empty_key", "", "invalid_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DisplayPrefix(tt.key))
		})
	}
}
