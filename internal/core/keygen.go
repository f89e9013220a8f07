package core

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateKey returns a new 32-character alphanumeric API key secret.
func GenerateKey() (string, error) {
	var b strings.Builder
	b.Grow(32)
	max := big.NewInt(int64(len(keyAlphabet)))
	for i := 0; i < 32; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate api key: %w", err)
		}
		b.WriteByte(keyAlphabet[n.Int64()])
	}
	return b.String(), nil
}
