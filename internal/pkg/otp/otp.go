package otp

import (
	"crypto/rand"
	"fmt"
)

// alphabet is the 62-character code alphabet: upper, lower, digits.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultLength is the code length used by all auth flows.
const DefaultLength = 6

// Generate draws length cryptographically random bytes and maps each onto the
// alphanumeric alphabet.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b), nil
}
