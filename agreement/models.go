package agreement

import (
	"fmt"
	"strings"
	"time"

	"escrowflow/money"
)

// Status is the on-chain lifecycle state of an agreement. The contract
// stores it as a uint8; every switch over Status must be exhaustive so an
// unknown chain value can never slip through as a zero state.
type Status uint8

const (
	StatusCreated Status = iota
	StatusFunded
	StatusProposed
	StatusAccepted
	StatusCompleted
	StatusCancelled
	StatusDisputed
)

// ParseStatus maps the raw chain enum to a Status, rejecting values the
// contract never emits.
func ParseStatus(v uint8) (Status, error) {
	s := Status(v)
	switch s {
	case StatusCreated, StatusFunded, StatusProposed, StatusAccepted,
		StatusCompleted, StatusCancelled, StatusDisputed:
		return s, nil
	default:
		return 0, fmt.Errorf("agreement: unknown status value %d", v)
	}
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusFunded:
		return "funded"
	case StatusProposed:
		return "proposed"
	case StatusAccepted:
		return "accepted"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusDisputed:
		return "disputed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Terminal reports whether the agreement can never change state again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PaymentType describes how the escrowed budget is paid out.
type PaymentType uint8

const (
	PayOneTime PaymentType = iota
	PayMilestone
	PayMonthly
)

// ParsePaymentType maps the raw chain enum to a PaymentType.
func ParsePaymentType(v uint8) (PaymentType, error) {
	p := PaymentType(v)
	switch p {
	case PayOneTime, PayMilestone, PayMonthly:
		return p, nil
	default:
		return 0, fmt.Errorf("agreement: unknown payment type value %d", v)
	}
}

// ParsePaymentTypeLabel maps the dashboard's string label to a PaymentType.
func ParsePaymentTypeLabel(label string) (PaymentType, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "one_time", "one-time":
		return PayOneTime, nil
	case "milestone":
		return PayMilestone, nil
	case "monthly":
		return PayMonthly, nil
	default:
		return 0, fmt.Errorf("agreement: unknown payment type %q", label)
	}
}

func (p PaymentType) String() string {
	switch p {
	case PayOneTime:
		return "one_time"
	case PayMilestone:
		return "milestone"
	case PayMonthly:
		return "monthly"
	default:
		return fmt.Sprintf("payment_type(%d)", uint8(p))
	}
}

// Record is the client-side mirror of an on-chain agreement. The chain owns
// every field; this layer only reads them and derives display state.
type Record struct {
	ID                 uint64
	Company            string
	Freelancer         string
	Arbitrator         string
	Token              string
	TotalBudget        money.Amount
	AmountReleased     money.Amount
	LastPaymentTime    time.Time
	MonthlyRate        money.Amount
	MilestoneDeadlines []time.Time
	Status             Status
	PaymentType        PaymentType
	CurrentProofURI    string
	CurrentMilestone   uint32
	TotalMilestones    uint32
	ProjectName        string
	Description        string
}

// NormalizeAddress lower-cases a wallet address so map lookups and SQL joins
// never miss on checksum casing.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ValidAddress reports whether addr looks like a 20-byte hex address.
func ValidAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return false
	}
	for _, c := range addr[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
