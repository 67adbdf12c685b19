package agreement

import (
	"context"
	"fmt"
	"time"

	"escrowflow/envelope"
	"escrowflow/ledger"
	"escrowflow/storage"
)

// Snapshotter is the slice of the mirror the service needs. A nil
// Snapshotter disables mirroring, which the unit tests use.
type Snapshotter interface {
	ApplySnapshot(ctx context.Context, rec Record) error
	RecordProofs(ctx context.Context, idempotencyKey string, proofs []ProofRecord) error
}

// Service drives agreement lifecycle actions: it validates locally, issues
// the contract verb, and keeps the mirror in step. Ledger failures are
// surfaced with the failing step named but otherwise verbatim; this layer
// never retries.
type Service struct {
	chain  ledger.Ledger
	files  storage.Store
	mirror Snapshotter
	now    func() time.Time
}

func NewService(chain ledger.Ledger, files storage.Store, mirror Snapshotter) *Service {
	return &Service{
		chain:  chain,
		files:  files,
		mirror: mirror,
		now:    time.Now,
	}
}

// Create validates the form and issues the contract's create call. A
// non-nil FieldErrors return means nothing was sent to the chain.
func (s *Service) Create(ctx context.Context, p CreateParams) (uint64, error) {
	now := s.now()
	if fe := p.Validate(now); fe != nil {
		return 0, fe
	}

	params, err := ToChainCreate(p, now)
	if err != nil {
		return 0, fmt.Errorf("agreement: create: %w", err)
	}

	id, err := s.chain.CreateAgreement(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("agreement: create: ledger: %w", err)
	}

	if err := s.refresh(ctx, id); err != nil {
		return id, err
	}
	return id, nil
}

// Get fetches the live chain state, mirrors it, and derives display fields.
func (s *Service) Get(ctx context.Context, id uint64) (Record, Derived, error) {
	rec, err := s.fetch(ctx, id)
	if err != nil {
		return Record{}, Derived{}, err
	}
	if err := s.applySnapshot(ctx, rec); err != nil {
		return Record{}, Derived{}, err
	}
	return rec, Derive(rec, s.now()), nil
}

// Deposit funds the escrow.
func (s *Service) Deposit(ctx context.Context, id uint64) error {
	return s.transition(ctx, id, VerbDeposit, TransitionInput{}, func(ctx context.Context) error {
		return s.chain.Deposit(ctx, id)
	})
}

// Approve accepts the submitted proof of work.
func (s *Service) Approve(ctx context.Context, id uint64) error {
	return s.transition(ctx, id, VerbApprove, TransitionInput{}, func(ctx context.Context) error {
		return s.chain.AcceptWork(ctx, id)
	})
}

// Reject sends the proof back with a reason; the agreement returns to
// funded and the proof pointer is cleared on chain.
func (s *Service) Reject(ctx context.Context, id uint64, reason string) error {
	return s.transition(ctx, id, VerbReject, TransitionInput{Reason: reason}, func(ctx context.Context) error {
		return s.chain.RejectWork(ctx, id, reason)
	})
}

// Claim releases the currently eligible payment to the freelancer.
func (s *Service) Claim(ctx context.Context, id uint64) error {
	return s.transition(ctx, id, VerbClaim, TransitionInput{}, func(ctx context.Context) error {
		return s.chain.ReleasePayment(ctx, id)
	})
}

// Cancel aborts an agreement that was never funded.
func (s *Service) Cancel(ctx context.Context, id uint64) error {
	return s.transition(ctx, id, VerbCancel, TransitionInput{}, func(ctx context.Context) error {
		return s.chain.CancelAgreement(ctx, id)
	})
}

// RaiseDispute escalates to the arbitrator.
func (s *Service) RaiseDispute(ctx context.Context, id uint64, reason string) error {
	return s.transition(ctx, id, VerbRaiseDispute, TransitionInput{Reason: reason}, func(ctx context.Context) error {
		return s.chain.RaiseDispute(ctx, id, reason)
	})
}

// ProofSubmission is the freelancer's proof-of-work upload.
type ProofSubmission struct {
	File     []byte
	Filename string
	MimeType string

	// Encrypt wraps the file in a per-recipient envelope before upload.
	Encrypt bool
	// Recipients maps wallet address to base64 public encryption key.
	// Required when Encrypt is set.
	Recipients map[string]string
	// PrimaryRecipient selects whose proof document URI is submitted on
	// chain (normally the approving company). Defaults to the sole
	// recipient when only one is given.
	PrimaryRecipient string
}

// SubmitProof uploads the (optionally encrypted) proof and submits its URI
// on chain. The blob uploads are content-addressed and unreferenced until
// the chain write succeeds, so an abandoned submission leaves only orphaned
// blobs behind.
func (s *Service) SubmitProof(ctx context.Context, id uint64, sub ProofSubmission) (string, error) {
	rec, err := s.fetch(ctx, id)
	if err != nil {
		return "", err
	}
	if _, err := Apply(rec, VerbSubmitProof, TransitionInput{ProofURI: "pending"}, s.now()); err != nil {
		return "", err
	}

	var (
		proofURI string
		proofs   []ProofRecord
	)

	if sub.Encrypt {
		proofURI, proofs, err = s.uploadEncrypted(ctx, id, sub)
	} else {
		proofURI, proofs, err = s.uploadPlain(ctx, id, sub)
	}
	if err != nil {
		return "", err
	}

	if err := s.chain.SubmitWork(ctx, id, proofURI); err != nil {
		return "", fmt.Errorf("agreement: submit proof: ledger: %w", err)
	}

	if s.mirror != nil {
		key := fmt.Sprintf("proof-%d-%s", id, proofURI)
		if err := s.mirror.RecordProofs(ctx, key, proofs); err != nil {
			return "", err
		}
	}

	if err := s.refresh(ctx, id); err != nil {
		return "", err
	}
	return proofURI, nil
}

func (s *Service) uploadPlain(ctx context.Context, id uint64, sub ProofSubmission) (string, []ProofRecord, error) {
	cid, err := s.files.Upload(ctx, sub.File)
	if err != nil {
		return "", nil, fmt.Errorf("agreement: submit proof: upload file: %w", err)
	}
	return cid, []ProofRecord{{
		AgreementID: id,
		CID:         cid,
		Filename:    sub.Filename,
		Encrypted:   false,
	}}, nil
}

func (s *Service) uploadEncrypted(ctx context.Context, id uint64, sub ProofSubmission) (string, []ProofRecord, error) {
	if len(sub.Recipients) == 0 {
		return "", nil, fmt.Errorf("agreement: submit proof: encryption requested without recipients")
	}
	primary := NormalizeAddress(sub.PrimaryRecipient)
	if primary == "" {
		if len(sub.Recipients) != 1 {
			return "", nil, fmt.Errorf("agreement: submit proof: primary recipient required with %d recipients", len(sub.Recipients))
		}
		for addr := range sub.Recipients {
			primary = NormalizeAddress(addr)
		}
	}

	env, err := envelope.Seal(sub.File, sub.Filename, sub.MimeType, sub.Recipients)
	if err != nil {
		return "", nil, fmt.Errorf("agreement: submit proof: %w", err)
	}

	fileCID, err := s.files.Upload(ctx, env.Payload)
	if err != nil {
		return "", nil, fmt.Errorf("agreement: submit proof: upload ciphertext: %w", err)
	}

	var (
		primaryURI string
		proofs     []ProofRecord
	)
	for addr, entry := range env.Recipients {
		doc := storage.ProofDocument{
			Type:                storage.ProofDocType,
			EncryptedFileURL:    fileCID,
			Encryption:          env.Meta,
			EncryptedPassphrase: entry,
			EncryptionRecipient: addr,
			EncryptionPublicKey: entry.RecipientPublicKey,
		}
		data, err := storage.EncodeProofDocument(doc)
		if err != nil {
			return "", nil, fmt.Errorf("agreement: submit proof: %w", err)
		}
		docCID, err := s.files.Upload(ctx, data)
		if err != nil {
			return "", nil, fmt.Errorf("agreement: submit proof: upload document for %s: %w", addr, err)
		}
		if addr == primary {
			primaryURI = docCID
		}
		proofs = append(proofs, ProofRecord{
			AgreementID: id,
			CID:         docCID,
			Recipient:   addr,
			Filename:    sub.Filename,
			Encrypted:   true,
		})
	}
	if primaryURI == "" {
		return "", nil, fmt.Errorf("agreement: submit proof: primary recipient %s is not among recipients", primary)
	}
	return primaryURI, proofs, nil
}

// transition preflights the verb against live chain state with the pure
// state machine, then issues the contract call. The preflight turns a
// would-be revert into a specific, actionable error before any wallet
// prompt fires.
func (s *Service) transition(ctx context.Context, id uint64, v Verb, in TransitionInput, call func(context.Context) error) error {
	rec, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if _, err := Apply(rec, v, in, s.now()); err != nil {
		return err
	}

	if err := call(ctx); err != nil {
		return fmt.Errorf("agreement: %s: ledger: %w", v, err)
	}

	return s.refresh(ctx, id)
}

func (s *Service) fetch(ctx context.Context, id uint64) (Record, error) {
	raw, err := s.chain.GetAgreement(ctx, id)
	if err != nil {
		return Record{}, fmt.Errorf("agreement: fetch %d: %w", id, err)
	}
	return FromChain(raw)
}

func (s *Service) refresh(ctx context.Context, id uint64) error {
	rec, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	return s.applySnapshot(ctx, rec)
}

func (s *Service) applySnapshot(ctx context.Context, rec Record) error {
	if s.mirror == nil {
		return nil
	}
	if err := s.mirror.ApplySnapshot(ctx, rec); err != nil {
		return fmt.Errorf("agreement: mirror snapshot %d: %w", rec.ID, err)
	}
	return nil
}
