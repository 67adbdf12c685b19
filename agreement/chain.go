package agreement

import (
	"fmt"
	"time"

	"escrowflow/ledger"
	"escrowflow/money"
)

// FromChain converts the raw contract tuple into a typed Record, rejecting
// enum values the contract never emits.
func FromChain(a ledger.Agreement) (Record, error) {
	status, err := ParseStatus(a.Status)
	if err != nil {
		return Record{}, fmt.Errorf("agreement %d: %w", a.ID, err)
	}
	payType, err := ParsePaymentType(a.PaymentType)
	if err != nil {
		return Record{}, fmt.Errorf("agreement %d: %w", a.ID, err)
	}
	if a.TotalBudget < 0 || a.AmountReleased < 0 || a.AmountReleased > a.TotalBudget {
		return Record{}, fmt.Errorf("agreement %d: released %d outside [0, %d]", a.ID, a.AmountReleased, a.TotalBudget)
	}

	deadlines := make([]time.Time, len(a.MilestoneDeadlines))
	for i, ts := range a.MilestoneDeadlines {
		deadlines[i] = time.Unix(ts, 0).UTC()
	}

	var lastPayment time.Time
	if a.LastPaymentTime > 0 {
		lastPayment = time.Unix(a.LastPaymentTime, 0).UTC()
	}

	return Record{
		ID:                 a.ID,
		Company:            NormalizeAddress(a.Company),
		Freelancer:         NormalizeAddress(a.Freelancer),
		Arbitrator:         NormalizeAddress(a.Arbitrator),
		Token:              NormalizeAddress(a.Token),
		TotalBudget:        money.Amount(a.TotalBudget),
		AmountReleased:     money.Amount(a.AmountReleased),
		LastPaymentTime:    lastPayment,
		MonthlyRate:        money.Amount(a.MonthlyRate),
		MilestoneDeadlines: deadlines,
		Status:             status,
		PaymentType:        payType,
		CurrentProofURI:    a.CurrentProofURI,
		CurrentMilestone:   a.CurrentMilestone,
		TotalMilestones:    a.TotalMilestones,
		ProjectName:        a.ProjectName,
		Description:        a.Description,
	}, nil
}

// ToChainCreate maps validated create params onto the contract's argument
// tuple. Deadlines must already have passed Validate.
func ToChainCreate(p CreateParams, now time.Time) (ledger.CreateParams, error) {
	deadlines := make([]int64, 0, len(p.Deadlines))
	for _, d := range p.Deadlines {
		ts, err := ParseDeadline(d, now)
		if err != nil {
			return ledger.CreateParams{}, err
		}
		deadlines = append(deadlines, ts.Unix())
	}

	var monthlyRate money.Amount
	if p.PaymentType == PayMonthly {
		monthlyRate = MonthlyRateFor(p.TotalBudget, p.DurationMonths)
	}

	return ledger.CreateParams{
		Company:            NormalizeAddress(p.Company),
		Freelancer:         NormalizeAddress(p.Freelancer),
		Arbitrator:         NormalizeAddress(p.Arbitrator),
		Token:              NormalizeAddress(p.Token),
		TotalBudget:        p.TotalBudget.Micros(),
		PaymentType:        uint8(p.PaymentType),
		MonthlyRate:        monthlyRate.Micros(),
		MilestoneDeadlines: deadlines,
		TotalMilestones:    p.TotalMilestones,
		ProjectName:        p.ProjectName,
		Description:        p.Description,
	}, nil
}
