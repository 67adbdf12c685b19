// Package wallet models the external wallet provider's encryption
// capability. In production the capability is the browser wallet's
// eth_getEncryptionPublicKey / eth_decrypt pair; LocalKeyring provides the
// same surface in-process for development and tests.
package wallet

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/box"

	"escrowflow/envelope"
)

var (
	// ErrNoKey is returned when the address holds no encryption key.
	ErrNoKey = errors.New("wallet: no encryption key for address")
	// ErrRefused mirrors a user declining the wallet prompt.
	ErrRefused = errors.New("wallet: request refused")
)

type keyPair struct {
	pub  [32]byte
	priv [32]byte
}

// LocalKeyring holds x25519 key pairs per address and answers the same
// capability calls a wallet provider would.
type LocalKeyring struct {
	mu   sync.RWMutex
	keys map[string]keyPair
}

func NewLocalKeyring() *LocalKeyring {
	return &LocalKeyring{keys: make(map[string]keyPair)}
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Generate creates a fresh key pair for the address and returns the base64
// public encryption key. Generating again rotates the key, which is exactly
// the situation the envelope key-mismatch guard exists for.
func (k *LocalKeyring) Generate(address string) (string, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("wallet: generate key: %w", err)
	}

	k.mu.Lock()
	k.keys[normalize(address)] = keyPair{pub: *pub, priv: *priv}
	k.mu.Unlock()

	return base64.StdEncoding.EncodeToString(pub[:]), nil
}

// GetPublicEncryptionKey returns the address's current base64 public key.
func (k *LocalKeyring) GetPublicEncryptionKey(ctx context.Context, address string) (string, error) {
	k.mu.RLock()
	kp, ok := k.keys[normalize(address)]
	k.mu.RUnlock()
	if !ok {
		return "", ErrNoKey
	}
	return base64.StdEncoding.EncodeToString(kp.pub[:]), nil
}

// Decrypt opens a sealed passphrase entry with the address's private key.
// The key never leaves the keyring.
func (k *LocalKeyring) Decrypt(ctx context.Context, address string, entry envelope.RecipientEntry) (string, error) {
	k.mu.RLock()
	kp, ok := k.keys[normalize(address)]
	k.mu.RUnlock()
	if !ok {
		return "", ErrNoKey
	}
	priv := kp.priv
	return envelope.OpenPassphrase(entry, &priv)
}
