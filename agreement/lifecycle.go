package agreement

import (
	"errors"
	"fmt"
	"time"

	"escrowflow/money"
)

// MonthlyCycle is the fixed payroll cycle. The contract gates monthly claims
// on elapsed seconds, not calendar months, so 30 days exactly.
const MonthlyCycle = 30 * 24 * time.Hour

// Verb is a lifecycle action mirroring one of the contract's mutation calls.
type Verb uint8

const (
	VerbDeposit Verb = iota
	VerbSubmitProof
	VerbApprove
	VerbReject
	VerbClaim
	VerbCancel
	VerbRaiseDispute
)

func (v Verb) String() string {
	switch v {
	case VerbDeposit:
		return "deposit"
	case VerbSubmitProof:
		return "submit_proof"
	case VerbApprove:
		return "approve"
	case VerbReject:
		return "reject"
	case VerbClaim:
		return "claim"
	case VerbCancel:
		return "cancel"
	case VerbRaiseDispute:
		return "raise_dispute"
	default:
		return fmt.Sprintf("verb(%d)", uint8(v))
	}
}

var (
	// ErrInvalidTransition signals a verb applied in a state that does not
	// permit it.
	ErrInvalidTransition = errors.New("agreement: invalid transition")
	// ErrClaimNotEligible signals a monthly claim attempted before the cycle
	// elapsed, without a proof on file, or with nothing left to pay.
	ErrClaimNotEligible = errors.New("agreement: claim not eligible")
)

// TransitionInput carries the verb-specific data a transition needs.
type TransitionInput struct {
	ProofURI string // VerbSubmitProof
	Reason   string // VerbReject, VerbRaiseDispute; recorded externally
}

// Apply simulates a lifecycle verb against a mirrored record, returning the
// record as the chain would leave it. It is pure: the receiver is copied and
// the chain remains the source of truth. Transitions only move forward along
// the lifecycle graph; the single backward edge is reject (proposed back to
// funded).
func Apply(r Record, v Verb, in TransitionInput, now time.Time) (Record, error) {
	switch v {
	case VerbDeposit:
		if r.Status != StatusCreated {
			return r, transitionErr(v, r.Status)
		}
		r.Status = StatusFunded
		return r, nil

	case VerbSubmitProof:
		if r.Status != StatusFunded {
			return r, transitionErr(v, r.Status)
		}
		if in.ProofURI == "" {
			return r, fmt.Errorf("agreement: submit proof: empty proof uri")
		}
		r.Status = StatusProposed
		r.CurrentProofURI = in.ProofURI
		return r, nil

	case VerbApprove:
		if r.Status != StatusProposed {
			return r, transitionErr(v, r.Status)
		}
		r.Status = StatusAccepted
		return r, nil

	case VerbReject:
		if r.Status != StatusProposed {
			return r, transitionErr(v, r.Status)
		}
		r.Status = StatusFunded
		r.CurrentProofURI = ""
		return r, nil

	case VerbClaim:
		return applyClaim(r, now)

	case VerbCancel:
		if r.Status != StatusCreated {
			return r, transitionErr(v, r.Status)
		}
		r.Status = StatusCancelled
		return r, nil

	case VerbRaiseDispute:
		switch r.Status {
		case StatusFunded, StatusProposed, StatusAccepted:
			r.Status = StatusDisputed
			return r, nil
		case StatusCreated, StatusCompleted, StatusCancelled, StatusDisputed:
			return r, transitionErr(v, r.Status)
		default:
			return r, transitionErr(v, r.Status)
		}

	default:
		return r, fmt.Errorf("agreement: unknown verb %d", uint8(v))
	}
}

func applyClaim(r Record, now time.Time) (Record, error) {
	switch r.PaymentType {
	case PayOneTime:
		if r.Status != StatusAccepted {
			return r, transitionErr(VerbClaim, r.Status)
		}
		r.AmountReleased = r.TotalBudget
		r.LastPaymentTime = now
		r.Status = StatusCompleted
		return r, nil

	case PayMilestone:
		if r.Status != StatusAccepted {
			return r, transitionErr(VerbClaim, r.Status)
		}
		if r.CurrentMilestone >= r.TotalMilestones {
			return r, fmt.Errorf("agreement: claim: no milestones remain")
		}
		final := r.CurrentMilestone == r.TotalMilestones-1
		if final {
			r.AmountReleased = r.TotalBudget
			r.Status = StatusCompleted
		} else {
			r.AmountReleased += milestoneShare(r)
			if r.AmountReleased > r.TotalBudget {
				r.AmountReleased = r.TotalBudget
			}
			r.Status = StatusFunded
			r.CurrentProofURI = ""
		}
		r.CurrentMilestone++
		r.LastPaymentTime = now
		return r, nil

	case PayMonthly:
		if r.Status != StatusFunded && r.Status != StatusAccepted {
			return r, transitionErr(VerbClaim, r.Status)
		}
		if !monthlyEligible(r, now) {
			return r, ErrClaimNotEligible
		}
		r.AmountReleased += money.Min(r.MonthlyRate, r.TotalBudget-r.AmountReleased)
		r.LastPaymentTime = now
		r.Status = StatusFunded
		r.CurrentProofURI = ""
		return r, nil

	default:
		return r, fmt.Errorf("agreement: unknown payment type %d", uint8(r.PaymentType))
	}
}

func monthlyEligible(r Record, now time.Time) bool {
	if r.PaymentType != PayMonthly {
		return false
	}
	if r.Status != StatusFunded && r.Status != StatusAccepted {
		return false
	}
	if r.CurrentProofURI == "" {
		return false
	}
	if r.AmountReleased >= r.TotalBudget {
		return false
	}
	return !now.Before(r.LastPaymentTime.Add(MonthlyCycle))
}

func milestoneShare(r Record) money.Amount {
	if r.TotalMilestones == 0 {
		return 0
	}
	return r.TotalBudget / money.Amount(r.TotalMilestones)
}

func transitionErr(v Verb, s Status) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, v, s)
}

// Derived bundles the read-only fields the dashboard renders for an
// agreement. All values are computed from the mirrored record; nothing here
// is stored.
type Derived struct {
	StatusLabel       string
	EscrowAmount      money.Amount
	NextPayment       money.Amount
	MilestoneProgress float64
	MonthlyClaimable  bool
	DisputeAllowed    bool
}

// Derive computes the display state for a record at the given instant.
func Derive(r Record, now time.Time) Derived {
	return Derived{
		StatusLabel:       r.Status.String(),
		EscrowAmount:      escrowAmount(r),
		NextPayment:       nextPayment(r),
		MilestoneProgress: milestoneProgress(r),
		MonthlyClaimable:  monthlyEligible(r, now),
		DisputeAllowed:    disputeAllowed(r.Status),
	}
}

func escrowAmount(r Record) money.Amount {
	switch r.Status {
	case StatusFunded, StatusProposed, StatusAccepted, StatusDisputed:
		return r.TotalBudget
	case StatusCreated, StatusCancelled, StatusCompleted:
		return 0
	default:
		return 0
	}
}

func nextPayment(r Record) money.Amount {
	if r.Status.Terminal() {
		return 0
	}
	switch r.PaymentType {
	case PayOneTime:
		return r.TotalBudget - r.AmountReleased
	case PayMilestone:
		if r.TotalMilestones == 0 || r.CurrentMilestone >= r.TotalMilestones {
			return 0
		}
		// The final milestone pays whatever remains so the floored equal
		// split still sums to the full budget.
		if r.CurrentMilestone == r.TotalMilestones-1 {
			return r.TotalBudget - r.AmountReleased
		}
		return milestoneShare(r)
	case PayMonthly:
		return money.Min(r.MonthlyRate, r.TotalBudget-r.AmountReleased)
	default:
		return 0
	}
}

func milestoneProgress(r Record) float64 {
	if r.TotalMilestones == 0 {
		return 0
	}
	return float64(r.CurrentMilestone) / float64(r.TotalMilestones) * 100
}

func disputeAllowed(s Status) bool {
	switch s {
	case StatusFunded, StatusProposed, StatusAccepted:
		return true
	case StatusCreated, StatusCompleted, StatusCancelled, StatusDisputed:
		return false
	default:
		return false
	}
}
