// Package envelope implements the hybrid encryption scheme used to share
// proof-of-work documents: the file is encrypted once under a random
// passphrase, and the passphrase is sealed separately for each recipient
// with the x25519-xsalsa20-poly1305 box their wallet can open. Only the
// small per-recipient box is duplicated; the file ciphertext is shared.
package envelope

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotRecipient signals an address the envelope was never sealed for.
	ErrNotRecipient = errors.New("envelope: address is not a recipient")
	// ErrAuthentication signals a failed authentication tag: tampered
	// ciphertext, wrong passphrase, or wrong key. Decryption fails closed
	// and never returns partial plaintext.
	ErrAuthentication = errors.New("envelope: authentication failed")
	// ErrMalformed signals an envelope or metadata structure that cannot be
	// interpreted at all.
	ErrMalformed = errors.New("envelope: malformed envelope")
	// ErrKeyMismatch signals that the recipient's current encryption key no
	// longer matches the key the passphrase was sealed under. The wallet
	// rotated its key since sharing; decryption is refused, not attempted.
	ErrKeyMismatch = errors.New("envelope: recipient key mismatch")
)

// Metadata carries everything needed to reverse the symmetric encryption
// except the passphrase itself. It is safe to publish next to the
// ciphertext.
type Metadata struct {
	Cipher     string `json:"cipher"`
	KDF        string `json:"kdf"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Iterations int    `json:"iterations"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
}

// RecipientEntry is one recipient's sealed copy of the envelope passphrase.
// The field layout matches the EthEncryptedData structure wallet providers
// produce and accept, plus the recipient key recorded at sealing time so a
// later key rotation is detectable.
type RecipientEntry struct {
	Version            string `json:"version"`
	Nonce              string `json:"nonce"`
	EphemeralPublicKey string `json:"ephemPublicKey"`
	Ciphertext         string `json:"ciphertext"`
	RecipientPublicKey string `json:"recipientPublicKey"`
}

// Envelope is an encrypted file plus its per-recipient passphrase entries.
// Immutable once produced.
type Envelope struct {
	ID         string
	CreatedAt  time.Time
	Payload    []byte
	Meta       Metadata
	Recipients map[string]RecipientEntry
}

// Keyring is the wallet capability this package needs to open envelopes.
// The private key never leaves the wallet; Decrypt hands the sealed entry
// to the key holder and gets the passphrase back.
type Keyring interface {
	GetPublicEncryptionKey(ctx context.Context, address string) (string, error)
	Decrypt(ctx context.Context, address string, entry RecipientEntry) (string, error)
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Seal encrypts plaintext for the given recipients (address -> base64
// public encryption key). Exactly one passphrase is generated; it exists
// only for the duration of the call.
func Seal(plaintext []byte, filename, mimeType string, recipients map[string]string) (Envelope, error) {
	if len(recipients) == 0 {
		return Envelope{}, fmt.Errorf("envelope: seal: no recipients")
	}

	passphrase, err := GeneratePassphrase(DefaultPassphraseLength)
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope: seal: generate passphrase: %w", err)
	}

	ciphertext, meta, err := EncryptFile(plaintext, passphrase, filename, mimeType)
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope: seal: encrypt file: %w", err)
	}

	entries := make(map[string]RecipientEntry, len(recipients))
	for addr, pubKey := range recipients {
		entry, err := SealPassphrase(pubKey, passphrase)
		if err != nil {
			return Envelope{}, fmt.Errorf("envelope: seal for %s: %w", addr, err)
		}
		entries[normalize(addr)] = entry
	}

	return Envelope{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Payload:    ciphertext,
		Meta:       meta,
		Recipients: entries,
	}, nil
}

// Open recovers the original file for one recipient. It refuses with
// ErrNotRecipient when the address has no entry, and with ErrKeyMismatch
// when the wallet's current encryption key differs from the key recorded at
// sealing time.
func Open(ctx context.Context, env Envelope, address string, keyring Keyring) ([]byte, error) {
	entry, ok := env.Recipients[normalize(address)]
	if !ok {
		return nil, ErrNotRecipient
	}

	currentKey, err := keyring.GetPublicEncryptionKey(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("envelope: open: fetch recipient key: %w", err)
	}
	if currentKey != entry.RecipientPublicKey {
		return nil, ErrKeyMismatch
	}

	passphrase, err := keyring.Decrypt(ctx, address, entry)
	if err != nil {
		return nil, fmt.Errorf("envelope: open: unseal passphrase: %w", err)
	}

	plaintext, err := DecryptFile(env.Payload, env.Meta, passphrase)
	if err != nil {
		return nil, fmt.Errorf("envelope: open: decrypt file: %w", err)
	}
	return plaintext, nil
}
