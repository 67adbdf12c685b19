package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	cipherAES256GCM = "aes-256-gcm"
	kdfPBKDF2SHA256 = "pbkdf2-sha256"

	saltSize      = 16
	gcmNonceSize  = 12
	keySize       = 32
	kdfIterations = 100_000
)

// EncryptFile encrypts plaintext under a passphrase-derived key and returns
// the ciphertext plus the metadata required to reverse it. The passphrase is
// never part of the metadata.
func EncryptFile(plaintext []byte, passphrase, filename, mimeType string) ([]byte, Metadata, error) {
	if passphrase == "" {
		return nil, Metadata{}, fmt.Errorf("envelope: empty passphrase")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, Metadata{}, fmt.Errorf("envelope: read salt: %w", err)
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, Metadata{}, fmt.Errorf("envelope: read nonce: %w", err)
	}

	aead, err := newAEAD(passphrase, salt, kdfIterations)
	if err != nil {
		return nil, Metadata{}, err
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	meta := Metadata{
		Cipher:     cipherAES256GCM,
		KDF:        kdfPBKDF2SHA256,
		Salt:       salt,
		Nonce:      nonce,
		Iterations: kdfIterations,
		Filename:   filename,
		MimeType:   mimeType,
	}
	return ciphertext, meta, nil
}

// DecryptFile reverses EncryptFile. It fails closed: a bad passphrase, a
// flipped bit anywhere in ciphertext or metadata, or an unrecognized cipher
// produces an error and never partial plaintext.
func DecryptFile(ciphertext []byte, meta Metadata, passphrase string) ([]byte, error) {
	if err := validateMetadata(meta); err != nil {
		return nil, err
	}
	if passphrase == "" {
		return nil, ErrAuthentication
	}

	aead, err := newAEAD(passphrase, meta.Salt, meta.Iterations)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, meta.Nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func validateMetadata(meta Metadata) error {
	if meta.Cipher != cipherAES256GCM {
		return fmt.Errorf("%w: unsupported cipher %q", ErrMalformed, meta.Cipher)
	}
	if meta.KDF != kdfPBKDF2SHA256 {
		return fmt.Errorf("%w: unsupported kdf %q", ErrMalformed, meta.KDF)
	}
	if len(meta.Salt) != saltSize {
		return fmt.Errorf("%w: bad salt length %d", ErrMalformed, len(meta.Salt))
	}
	if len(meta.Nonce) != gcmNonceSize {
		return fmt.Errorf("%w: bad nonce length %d", ErrMalformed, len(meta.Nonce))
	}
	if meta.Iterations <= 0 {
		return fmt.Errorf("%w: bad iteration count %d", ErrMalformed, meta.Iterations)
	}
	return nil
}

func newAEAD(passphrase string, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("envelope: new gcm: %w", err)
	}
	return aead, nil
}
