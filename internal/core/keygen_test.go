package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		require.Len(t, key, 32)
		for _, r := range key {
			require.Contains(t, keyAlphabet, string(r))
		}
		require.False(t, seen[key], "generated keys should not repeat")
		seen[key] = true
	}
}

func TestKeyPreview(t *testing.T) {
	cred := &Credential{Key: "abcdefghijklmnop"}
	require.Equal(t, "abcdefgh...", cred.KeyPreview())

	short := &Credential{Key: "abc"}
	require.Equal(t, "abc", short.KeyPreview())
}
