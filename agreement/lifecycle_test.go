package agreement

import (
	"errors"
	"testing"
	"time"

	"escrowflow/money"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func oneTimeRecord(status Status) Record {
	return Record{
		ID:          1,
		Company:     "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Freelancer:  "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Arbitrator:  "0xcccccccccccccccccccccccccccccccccccccccc",
		TotalBudget: money.FromUnits(1000, 0),
		Status:      status,
		PaymentType: PayOneTime,
	}
}

func TestLifecycleHappyPathOneTime(t *testing.T) {
	rec := oneTimeRecord(StatusCreated)

	steps := []struct {
		verb Verb
		in   TransitionInput
		want Status
	}{
		{VerbDeposit, TransitionInput{}, StatusFunded},
		{VerbSubmitProof, TransitionInput{ProofURI: "cid-1"}, StatusProposed},
		{VerbApprove, TransitionInput{}, StatusAccepted},
		{VerbClaim, TransitionInput{}, StatusCompleted},
	}

	for _, step := range steps {
		next, err := Apply(rec, step.verb, step.in, testNow)
		if err != nil {
			t.Fatalf("%s from %s: %v", step.verb, rec.Status, err)
		}
		if next.Status != step.want {
			t.Fatalf("%s: status = %s, want %s", step.verb, next.Status, step.want)
		}
		if next.AmountReleased < rec.AmountReleased {
			t.Fatalf("%s: amount released went backwards", step.verb)
		}
		if next.AmountReleased > next.TotalBudget {
			t.Fatalf("%s: released %s exceeds budget %s", step.verb, next.AmountReleased, next.TotalBudget)
		}
		rec = next
	}

	if rec.AmountReleased != rec.TotalBudget {
		t.Fatalf("final claim should release full budget, got %s", rec.AmountReleased)
	}
	if got := nextPayment(rec); got != 0 {
		t.Fatalf("completed agreement next payment = %s, want 0", got)
	}
}

func TestOneTimeNextPaymentExample(t *testing.T) {
	rec := oneTimeRecord(StatusAccepted)

	d := Derive(rec, testNow)
	if d.NextPayment != money.FromUnits(1000, 0) {
		t.Fatalf("next payment = %s, want 1000", d.NextPayment)
	}

	rec, err := Apply(rec, VerbClaim, TransitionInput{}, testNow)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if rec.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", rec.Status)
	}
	if rec.AmountReleased != money.FromUnits(1000, 0) {
		t.Fatalf("released = %s, want 1000", rec.AmountReleased)
	}
	if d := Derive(rec, testNow); d.NextPayment != 0 {
		t.Fatalf("next payment after completion = %s, want 0", d.NextPayment)
	}
}

func TestRejectReturnsToFundedAndClearsProof(t *testing.T) {
	rec := oneTimeRecord(StatusProposed)
	rec.CurrentProofURI = "cid-1"

	next, err := Apply(rec, VerbReject, TransitionInput{Reason: "incomplete"}, testNow)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if next.Status != StatusFunded {
		t.Fatalf("status = %s, want funded", next.Status)
	}
	if next.CurrentProofURI != "" {
		t.Fatalf("proof pointer should be cleared, got %q", next.CurrentProofURI)
	}
}

func TestInvalidTransitions(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
		verb Verb
	}{
		{"deposit while funded", oneTimeRecord(StatusFunded), VerbDeposit},
		{"cancel after funding", oneTimeRecord(StatusFunded), VerbCancel},
		{"approve without proposal", oneTimeRecord(StatusFunded), VerbApprove},
		{"claim before approval", oneTimeRecord(StatusProposed), VerbClaim},
		{"dispute while created", oneTimeRecord(StatusCreated), VerbRaiseDispute},
		{"dispute after completion", oneTimeRecord(StatusCompleted), VerbRaiseDispute},
		{"dispute after cancel", oneTimeRecord(StatusCancelled), VerbRaiseDispute},
		{"dispute twice", oneTimeRecord(StatusDisputed), VerbRaiseDispute},
		{"submit proof while created", oneTimeRecord(StatusCreated), VerbSubmitProof},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Apply(tc.rec, tc.verb, TransitionInput{ProofURI: "cid"}, testNow)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestMilestoneProgression(t *testing.T) {
	rec := Record{
		ID:              2,
		TotalBudget:     money.FromUnits(1000, 0),
		Status:          StatusAccepted,
		PaymentType:     PayMilestone,
		TotalMilestones: 3,
	}

	// First milestone: floored equal share, back to funded.
	next, err := Apply(rec, VerbClaim, TransitionInput{}, testNow)
	if err != nil {
		t.Fatalf("claim milestone 1: %v", err)
	}
	if next.Status != StatusFunded {
		t.Fatalf("status = %s, want funded", next.Status)
	}
	if next.CurrentMilestone != 1 {
		t.Fatalf("current milestone = %d, want 1", next.CurrentMilestone)
	}
	wantShare := money.FromUnits(1000, 0) / 3
	if next.AmountReleased != wantShare {
		t.Fatalf("released = %d, want %d", next.AmountReleased, wantShare)
	}

	// Second milestone.
	next.Status = StatusAccepted
	next, err = Apply(next, VerbClaim, TransitionInput{}, testNow)
	if err != nil {
		t.Fatalf("claim milestone 2: %v", err)
	}
	if next.Status != StatusFunded || next.CurrentMilestone != 2 {
		t.Fatalf("after milestone 2: status=%s milestone=%d", next.Status, next.CurrentMilestone)
	}

	// Final milestone pays the remainder and completes.
	next.Status = StatusAccepted
	next, err = Apply(next, VerbClaim, TransitionInput{}, testNow)
	if err != nil {
		t.Fatalf("claim milestone 3: %v", err)
	}
	if next.Status != StatusCompleted {
		t.Fatalf("final status = %s, want completed", next.Status)
	}
	if next.AmountReleased != next.TotalBudget {
		t.Fatalf("final released = %d, want full budget %d", next.AmountReleased, next.TotalBudget)
	}
}

func TestMilestoneProgressPercentage(t *testing.T) {
	rec := Record{TotalMilestones: 4, CurrentMilestone: 1}
	if got := milestoneProgress(rec); got != 25 {
		t.Fatalf("progress = %v, want 25", got)
	}
	if got := milestoneProgress(Record{}); got != 0 {
		t.Fatalf("progress with zero milestones = %v, want 0", got)
	}
}

func monthlyRecord(lastPayment time.Time) Record {
	return Record{
		ID:              3,
		TotalBudget:     money.FromUnits(1200, 0),
		MonthlyRate:     money.FromUnits(100, 0),
		Status:          StatusFunded,
		PaymentType:     PayMonthly,
		CurrentProofURI: "cid-proof",
		LastPaymentTime: lastPayment,
	}
}

func TestMonthlyEligibilityBoundary(t *testing.T) {
	last := testNow.Add(-29 * 24 * time.Hour)
	rec := monthlyRecord(last)

	if d := Derive(rec, testNow); d.MonthlyClaimable {
		t.Fatal("claim should be ineligible at 29 days")
	}
	if _, err := Apply(rec, VerbClaim, TransitionInput{}, testNow); !errors.Is(err, ErrClaimNotEligible) {
		t.Fatalf("expected ErrClaimNotEligible, got %v", err)
	}

	rec = monthlyRecord(testNow.Add(-MonthlyCycle))
	if d := Derive(rec, testNow); !d.MonthlyClaimable {
		t.Fatal("claim should be eligible at exactly 30 days")
	}

	next, err := Apply(rec, VerbClaim, TransitionInput{}, testNow)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if next.Status != StatusFunded {
		t.Fatalf("monthly claim should stay funded, got %s", next.Status)
	}
	if next.AmountReleased != money.FromUnits(100, 0) {
		t.Fatalf("released = %s, want 100", next.AmountReleased)
	}
	if !next.LastPaymentTime.Equal(testNow) {
		t.Fatal("last payment time should reset to claim time")
	}
	if next.CurrentProofURI != "" {
		t.Fatal("proof pointer should reset for the next cycle")
	}
}

func TestMonthlyRequiresProof(t *testing.T) {
	rec := monthlyRecord(testNow.Add(-MonthlyCycle))
	rec.CurrentProofURI = ""

	if d := Derive(rec, testNow); d.MonthlyClaimable {
		t.Fatal("claim should require a proof on file")
	}
}

func TestMonthlyCapAtBudget(t *testing.T) {
	rec := monthlyRecord(testNow.Add(-MonthlyCycle))
	rec.AmountReleased = money.FromUnits(1150, 0) // 50 left, rate is 100

	next, err := Apply(rec, VerbClaim, TransitionInput{}, testNow)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if next.AmountReleased != next.TotalBudget {
		t.Fatalf("released = %s, want capped at budget %s", next.AmountReleased, next.TotalBudget)
	}

	// Fully paid: no longer claimable.
	next.CurrentProofURI = "cid-proof"
	next.LastPaymentTime = testNow.Add(-2 * MonthlyCycle)
	if d := Derive(next, testNow); d.MonthlyClaimable {
		t.Fatal("exhausted budget should not be claimable")
	}
	if d := Derive(next, testNow); d.NextPayment != 0 {
		t.Fatalf("next payment = %s, want 0", d.NextPayment)
	}
}

func TestEscrowAmount(t *testing.T) {
	budget := money.FromUnits(1000, 0)
	for _, s := range []Status{StatusFunded, StatusProposed, StatusAccepted, StatusDisputed} {
		rec := oneTimeRecord(s)
		if got := escrowAmount(rec); got != budget {
			t.Errorf("escrow while %s = %s, want %s", s, got, budget)
		}
	}
	for _, s := range []Status{StatusCreated, StatusCancelled, StatusCompleted} {
		rec := oneTimeRecord(s)
		if got := escrowAmount(rec); got != 0 {
			t.Errorf("escrow while %s = %s, want 0", s, got)
		}
	}
}

func TestDisputeEligibility(t *testing.T) {
	want := map[Status]bool{
		StatusCreated:   false,
		StatusFunded:    true,
		StatusProposed:  true,
		StatusAccepted:  true,
		StatusCompleted: false,
		StatusCancelled: false,
		StatusDisputed:  false,
	}
	for s, allowed := range want {
		if got := disputeAllowed(s); got != allowed {
			t.Errorf("dispute while %s = %v, want %v", s, got, allowed)
		}
	}
}

func TestParseStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseStatus(7); err == nil {
		t.Fatal("expected error for unknown status value")
	}
	if _, err := ParsePaymentType(3); err == nil {
		t.Fatal("expected error for unknown payment type value")
	}
}
