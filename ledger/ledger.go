// Package ledger defines the boundary to the escrow smart contract. The
// contract itself is external; this layer only issues its verbs and reads
// back agreement tuples.
package ledger

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the contract holds no agreement for the id.
var ErrNotFound = errors.New("ledger: agreement not found")

// Agreement is the raw tuple the contract returns. Enum fields stay as the
// chain's uint8 values; package agreement owns the typed mapping. Amounts
// are in the token's smallest unit (6 decimals for the supported
// stablecoins) and times are Unix seconds.
type Agreement struct {
	ID                 uint64
	Company            string
	Freelancer         string
	Arbitrator         string
	Token              string
	TotalBudget        int64
	AmountReleased     int64
	LastPaymentTime    int64
	MonthlyRate        int64
	MilestoneDeadlines []int64
	Status             uint8
	PaymentType        uint8
	CurrentProofURI    string
	CurrentMilestone   uint32
	TotalMilestones    uint32
	ProjectName        string
	Description        string
}

// CreateParams is the argument tuple for the contract's create call.
type CreateParams struct {
	Company            string
	Freelancer         string
	Arbitrator         string
	Token              string
	TotalBudget        int64
	PaymentType        uint8
	MonthlyRate        int64
	MilestoneDeadlines []int64
	TotalMilestones    uint32
	ProjectName        string
	Description        string
}

// Reader is the read model over the contract.
type Reader interface {
	GetAgreement(ctx context.Context, id uint64) (Agreement, error)
	// ListAgreements returns the ids of agreements the address participates
	// in, in any role.
	ListAgreements(ctx context.Context, address string) ([]uint64, error)
}

// Writer issues the contract's mutation verbs. Each call is an opaque
// external transaction; failures (wallet rejection, revert) are surfaced
// verbatim and never retried here.
type Writer interface {
	CreateAgreement(ctx context.Context, params CreateParams) (uint64, error)
	Deposit(ctx context.Context, id uint64) error
	SubmitWork(ctx context.Context, id uint64, proofURI string) error
	AcceptWork(ctx context.Context, id uint64) error
	RejectWork(ctx context.Context, id uint64, reason string) error
	ReleasePayment(ctx context.Context, id uint64) error
	CancelAgreement(ctx context.Context, id uint64) error
	RaiseDispute(ctx context.Context, id uint64, reason string) error
	SetEncryptionPublicKey(ctx context.Context, address, key string) error
	SetProfileCID(ctx context.Context, address, cid string) error
}

// Ledger combines both sides of the contract boundary.
type Ledger interface {
	Reader
	Writer
}
