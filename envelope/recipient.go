package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// SchemeVersion identifies the asymmetric scheme wallet providers expose
// for eth_decrypt. Entries carrying any other version are malformed.
const SchemeVersion = "x25519-xsalsa20-poly1305"

const boxKeySize = 32

// SealPassphrase encrypts the passphrase for one recipient using an
// ephemeral key pair against the recipient's base64-encoded public
// encryption key. The result is safe to publish alongside the file.
func SealPassphrase(recipientPublicKey, passphrase string) (RecipientEntry, error) {
	pub, err := decodeBoxKey(recipientPublicKey)
	if err != nil {
		return RecipientEntry{}, err
	}

	ephemeralPub, ephemeralPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return RecipientEntry{}, fmt.Errorf("envelope: generate ephemeral key: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return RecipientEntry{}, fmt.Errorf("envelope: read nonce: %w", err)
	}

	sealed := box.Seal(nil, []byte(passphrase), &nonce, pub, ephemeralPriv)

	return RecipientEntry{
		Version:            SchemeVersion,
		Nonce:              base64.StdEncoding.EncodeToString(nonce[:]),
		EphemeralPublicKey: base64.StdEncoding.EncodeToString(ephemeralPub[:]),
		Ciphertext:         base64.StdEncoding.EncodeToString(sealed),
		RecipientPublicKey: recipientPublicKey,
	}, nil
}

// OpenPassphrase recovers the passphrase from a sealed entry given the
// recipient's raw private key. Wallet implementations call this behind
// their Decrypt capability; application code never holds the private key.
func OpenPassphrase(entry RecipientEntry, recipientPrivateKey *[boxKeySize]byte) (string, error) {
	if entry.Version != SchemeVersion {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrMalformed, entry.Version)
	}

	nonceRaw, err := base64.StdEncoding.DecodeString(entry.Nonce)
	if err != nil || len(nonceRaw) != 24 {
		return "", fmt.Errorf("%w: bad nonce", ErrMalformed)
	}
	ephemeralPub, err := decodeBoxKey(entry.EphemeralPublicKey)
	if err != nil {
		return "", err
	}
	sealed, err := base64.StdEncoding.DecodeString(entry.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", ErrMalformed)
	}

	var nonce [24]byte
	copy(nonce[:], nonceRaw)

	passphrase, ok := box.Open(nil, sealed, &nonce, ephemeralPub, recipientPrivateKey)
	if !ok {
		return "", ErrAuthentication
	}
	return string(passphrase), nil
}

func decodeBoxKey(b64 string) (*[boxKeySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad key encoding", ErrMalformed)
	}
	if len(raw) != boxKeySize {
		return nil, fmt.Errorf("%w: bad key length %d", ErrMalformed, len(raw))
	}
	var key [boxKeySize]byte
	copy(key[:], raw)
	return &key, nil
}
