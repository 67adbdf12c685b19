package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"escrowflow/envelope"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("proof bytes")
	cid, err := store.Upload(ctx, data)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if cid == "" {
		t.Fatal("empty cid")
	}

	got, err := store.Fetch(ctx, cid)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round trip mismatch")
	}

	// Content addressing: same bytes, same cid.
	cid2, err := store.Upload(ctx, []byte("proof bytes"))
	if err != nil {
		t.Fatalf("upload again: %v", err)
	}
	if cid2 != cid {
		t.Fatalf("cid changed for identical content: %s vs %s", cid2, cid)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Fetch(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreCopiesBlobs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("original")
	cid, err := store.Upload(ctx, data)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	data[0] = 'X'

	got, err := store.Fetch(ctx, cid)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(got) != "original" {
		t.Fatal("stored blob mutated through caller's slice")
	}
	got[0] = 'Y'

	again, err := store.Fetch(ctx, cid)
	if err != nil {
		t.Fatalf("fetch again: %v", err)
	}
	if string(again) != "original" {
		t.Fatal("stored blob mutated through fetched slice")
	}
}

func TestProofDocumentCodec(t *testing.T) {
	doc := ProofDocument{
		EncryptedFileURL: "bafy-ciphertext",
		Encryption: envelope.Metadata{
			Cipher:     "aes-256-gcm",
			KDF:        "pbkdf2-sha256",
			Salt:       []byte("0123456789abcdef"),
			Nonce:      []byte("0123456789ab"),
			Iterations: 100_000,
			Filename:   "report.pdf",
			MimeType:   "application/pdf",
		},
		EncryptedPassphrase: envelope.RecipientEntry{
			Version:            envelope.SchemeVersion,
			Nonce:              "bm9uY2U=",
			EphemeralPublicKey: "a2V5",
			Ciphertext:         "Y2lwaGVy",
			RecipientPublicKey: "cHVi",
		},
		EncryptionRecipient: "0xaa00000000000000000000000000000000000001",
		EncryptionPublicKey: "cHVi",
	}

	data, err := EncodeProofDocument(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Wire keys are fixed; dashboards parse them by name.
	for _, key := range []string{
		`"type":"encrypted-proof"`,
		`"encryptedFileUrl"`,
		`"encryption"`,
		`"encryptedPassphrase"`,
		`"encryptionRecipient"`,
		`"encryptionPublicKey"`,
		`"ephemPublicKey"`,
		`"mimeType"`,
	} {
		if !strings.Contains(string(data), key) {
			t.Errorf("encoded document missing %s: %s", key, data)
		}
	}

	got, err := DecodeProofDocument(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EncryptedFileURL != doc.EncryptedFileURL || got.EncryptionRecipient != doc.EncryptionRecipient {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.EncryptedPassphrase.Version != envelope.SchemeVersion {
		t.Fatalf("entry version = %q", got.EncryptedPassphrase.Version)
	}
}

func TestDecodeProofDocumentRejects(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"wrong type":    `{"type":"plain-proof","encryptedFileUrl":"x","encryptedPassphrase":{"version":"v"}}`,
		"missing url":   `{"type":"encrypted-proof","encryptedPassphrase":{"version":"v"}}`,
		"missing entry": `{"type":"encrypted-proof","encryptedFileUrl":"x"}`,
	}
	for name, raw := range cases {
		if _, err := DecodeProofDocument([]byte(raw)); !errors.Is(err, ErrMalformedProof) {
			t.Errorf("%s: expected ErrMalformedProof, got %v", name, err)
		}
	}
}
