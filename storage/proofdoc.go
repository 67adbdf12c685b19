package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"escrowflow/envelope"
)

// ProofDocType tags the JSON document an encrypted proof submission uploads.
const ProofDocType = "encrypted-proof"

// ErrMalformedProof signals a document that is not a valid encrypted-proof
// descriptor.
var ErrMalformedProof = errors.New("storage: malformed proof document")

// ProofDocument is the JSON descriptor published to the content store for
// one recipient of an encrypted proof. The field names are part of the wire
// format shared with the dashboard and must not change.
type ProofDocument struct {
	Type                string                  `json:"type"`
	EncryptedFileURL    string                  `json:"encryptedFileUrl"`
	Encryption          envelope.Metadata       `json:"encryption"`
	EncryptedPassphrase envelope.RecipientEntry `json:"encryptedPassphrase"`
	EncryptionRecipient string                  `json:"encryptionRecipient"`
	EncryptionPublicKey string                  `json:"encryptionPublicKey"`
}

// EncodeProofDocument serializes the descriptor for upload.
func EncodeProofDocument(doc ProofDocument) ([]byte, error) {
	doc.Type = ProofDocType
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("storage: encode proof document: %w", err)
	}
	return data, nil
}

// DecodeProofDocument parses and validates a fetched descriptor.
func DecodeProofDocument(data []byte) (ProofDocument, error) {
	var doc ProofDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return ProofDocument{}, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	if doc.Type != ProofDocType {
		return ProofDocument{}, fmt.Errorf("%w: unexpected type %q", ErrMalformedProof, doc.Type)
	}
	if doc.EncryptedFileURL == "" {
		return ProofDocument{}, fmt.Errorf("%w: missing encrypted file url", ErrMalformedProof)
	}
	if doc.EncryptedPassphrase.Version == "" {
		return ProofDocument{}, fmt.Errorf("%w: missing passphrase entry", ErrMalformedProof)
	}
	return doc, nil
}
