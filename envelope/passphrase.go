package envelope

import (
	"crypto/rand"
	"fmt"
)

// DefaultPassphraseLength matches the length used when sharing proofs.
const DefaultPassphraseLength = 32

// passphraseCharset gives just under 6 bits of entropy per character.
const passphraseCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*"

// GeneratePassphrase returns a random passphrase of the given length drawn
// from a CSPRNG. Rejection sampling keeps the charset distribution uniform.
func GeneratePassphrase(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("envelope: passphrase length must be positive")
	}

	// Largest multiple of len(charset) below 256; bytes at or above it are
	// discarded to avoid modulo bias.
	limit := byte(256 - 256%len(passphraseCharset))

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("envelope: read random: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, passphraseCharset[int(b)%len(passphraseCharset)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
