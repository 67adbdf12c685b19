package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestLedger(now *time.Time) *MemoryLedger {
	m := NewMemoryLedger()
	if now != nil {
		m.now = func() time.Time { return *now }
	}
	return m
}

func mustCreate(t *testing.T, m *MemoryLedger, params CreateParams) uint64 {
	t.Helper()
	id, err := m.CreateAgreement(context.Background(), params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

// advance walks a funded agreement through proof submission and acceptance.
func advance(t *testing.T, m *MemoryLedger, id uint64, proofURI string) {
	t.Helper()
	ctx := context.Background()
	if err := m.SubmitWork(ctx, id, proofURI); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := m.AcceptWork(ctx, id); err != nil {
		t.Fatalf("accept: %v", err)
	}
}

func TestMemoryLedgerOneTimeFlow(t *testing.T) {
	ctx := context.Background()
	m := newTestLedger(nil)

	id := mustCreate(t, m, CreateParams{
		Company:     "0xAAA",
		Freelancer:  "0xbbb",
		TotalBudget: 5_000_000,
		PaymentType: payOneTime,
	})

	// Release before the work is accepted reverts.
	if err := m.ReleasePayment(ctx, id); !errors.Is(err, ErrReverted) {
		t.Fatalf("expected ErrReverted, got %v", err)
	}

	if err := m.Deposit(ctx, id); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	advance(t, m, id, "ipfs://proof-1")

	if err := m.ReleasePayment(ctx, id); err != nil {
		t.Fatalf("release: %v", err)
	}

	a, err := m.GetAgreement(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Status != statusCompleted {
		t.Fatalf("status = %d, want completed", a.Status)
	}
	if a.AmountReleased != a.TotalBudget {
		t.Fatalf("released %d of %d", a.AmountReleased, a.TotalBudget)
	}

	if err := m.ReleasePayment(ctx, id); !errors.Is(err, ErrReverted) {
		t.Fatalf("double release: expected ErrReverted, got %v", err)
	}
	if err := m.RaiseDispute(ctx, id, "too late"); !errors.Is(err, ErrReverted) {
		t.Fatalf("dispute after completion: expected ErrReverted, got %v", err)
	}
}

func TestMemoryLedgerMilestoneShares(t *testing.T) {
	ctx := context.Background()
	m := newTestLedger(nil)

	id := mustCreate(t, m, CreateParams{
		Company:         "0xaaa",
		Freelancer:      "0xbbb",
		TotalBudget:     100,
		PaymentType:     payMilestone,
		TotalMilestones: 3,
	})
	if err := m.Deposit(ctx, id); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	wantReleased := []int64{33, 66, 100}
	for i, want := range wantReleased {
		advance(t, m, id, "ipfs://milestone")
		if err := m.ReleasePayment(ctx, id); err != nil {
			t.Fatalf("release milestone %d: %v", i, err)
		}
		a, _ := m.GetAgreement(ctx, id)
		if a.AmountReleased != want {
			t.Fatalf("milestone %d: released %d, want %d", i, a.AmountReleased, want)
		}
		if i < len(wantReleased)-1 {
			if a.Status != statusFunded {
				t.Fatalf("milestone %d: status = %d, want funded", i, a.Status)
			}
			if a.CurrentProofURI != "" {
				t.Fatalf("milestone %d: proof not cleared", i)
			}
		}
	}

	// The final claim pays the floor-division remainder and completes.
	a, _ := m.GetAgreement(ctx, id)
	if a.Status != statusCompleted {
		t.Fatalf("status = %d, want completed", a.Status)
	}
	if a.CurrentMilestone != 3 {
		t.Fatalf("current milestone = %d, want 3", a.CurrentMilestone)
	}
}

func TestMemoryLedgerMonthlyCycle(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := newTestLedger(&now)

	id := mustCreate(t, m, CreateParams{
		Company:     "0xaaa",
		Freelancer:  "0xbbb",
		TotalBudget: 250,
		MonthlyRate: 100,
		PaymentType: payMonthly,
	})
	if err := m.Deposit(ctx, id); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// No proof on file yet.
	if err := m.ReleasePayment(ctx, id); !errors.Is(err, ErrReverted) {
		t.Fatalf("expected ErrReverted without proof, got %v", err)
	}

	if err := m.SubmitWork(ctx, id, "ipfs://month-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := m.AcceptWork(ctx, id); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := m.ReleasePayment(ctx, id); err != nil {
		t.Fatalf("first release: %v", err)
	}

	a, _ := m.GetAgreement(ctx, id)
	if a.AmountReleased != 100 || a.Status != statusFunded || a.CurrentProofURI != "" {
		t.Fatalf("after first claim: released=%d status=%d proof=%q", a.AmountReleased, a.Status, a.CurrentProofURI)
	}

	// A second claim inside the cycle reverts even with fresh accepted work.
	advance(t, m, id, "ipfs://month-2")
	if err := m.ReleasePayment(ctx, id); !errors.Is(err, ErrReverted) {
		t.Fatalf("expected cycle revert, got %v", err)
	}

	now = now.Add(31 * 24 * time.Hour)
	if err := m.ReleasePayment(ctx, id); err != nil {
		t.Fatalf("second release: %v", err)
	}

	// Third payment caps at the remaining 50.
	now = now.Add(31 * 24 * time.Hour)
	advance(t, m, id, "ipfs://month-3")
	if err := m.ReleasePayment(ctx, id); err != nil {
		t.Fatalf("third release: %v", err)
	}
	a, _ = m.GetAgreement(ctx, id)
	if a.AmountReleased != 250 {
		t.Fatalf("released %d, want 250", a.AmountReleased)
	}
	if a.Status != statusFunded {
		t.Fatalf("monthly agreements stay funded, got status %d", a.Status)
	}

	// Budget exhausted.
	now = now.Add(31 * 24 * time.Hour)
	advance(t, m, id, "ipfs://month-4")
	if err := m.ReleasePayment(ctx, id); !errors.Is(err, ErrReverted) {
		t.Fatalf("expected exhausted revert, got %v", err)
	}
}

func TestMemoryLedgerCancelOnlyBeforeDeposit(t *testing.T) {
	ctx := context.Background()
	m := newTestLedger(nil)

	id := mustCreate(t, m, CreateParams{Company: "0xaaa", Freelancer: "0xbbb", TotalBudget: 10, PaymentType: payOneTime})
	if err := m.CancelAgreement(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	a, _ := m.GetAgreement(ctx, id)
	if a.Status != statusCancelled {
		t.Fatalf("status = %d, want cancelled", a.Status)
	}

	id2 := mustCreate(t, m, CreateParams{Company: "0xaaa", Freelancer: "0xbbb", TotalBudget: 10, PaymentType: payOneTime})
	if err := m.Deposit(ctx, id2); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := m.CancelAgreement(ctx, id2); !errors.Is(err, ErrReverted) {
		t.Fatalf("cancel after deposit: expected ErrReverted, got %v", err)
	}
}

func TestMemoryLedgerRejectClearsProof(t *testing.T) {
	ctx := context.Background()
	m := newTestLedger(nil)

	id := mustCreate(t, m, CreateParams{Company: "0xaaa", Freelancer: "0xbbb", TotalBudget: 10, PaymentType: payOneTime})
	if err := m.Deposit(ctx, id); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := m.SubmitWork(ctx, id, "ipfs://v1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := m.RejectWork(ctx, id, "not good enough"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	a, _ := m.GetAgreement(ctx, id)
	if a.Status != statusFunded || a.CurrentProofURI != "" {
		t.Fatalf("after reject: status=%d proof=%q", a.Status, a.CurrentProofURI)
	}

	// Resubmission works.
	if err := m.SubmitWork(ctx, id, "ipfs://v2"); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
}

func TestMemoryLedgerValidation(t *testing.T) {
	ctx := context.Background()
	m := newTestLedger(nil)

	if _, err := m.CreateAgreement(ctx, CreateParams{TotalBudget: 0}); !errors.Is(err, ErrReverted) {
		t.Fatalf("zero budget: expected ErrReverted, got %v", err)
	}
	if err := m.Deposit(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id: expected ErrNotFound, got %v", err)
	}

	id := mustCreate(t, m, CreateParams{Company: "0xaaa", Freelancer: "0xbbb", TotalBudget: 10, PaymentType: payOneTime})
	if err := m.Deposit(ctx, id); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := m.SubmitWork(ctx, id, ""); !errors.Is(err, ErrReverted) {
		t.Fatalf("empty proof uri: expected ErrReverted, got %v", err)
	}
}

func TestMemoryLedgerParticipantsAndKeys(t *testing.T) {
	ctx := context.Background()
	m := newTestLedger(nil)

	id := mustCreate(t, m, CreateParams{
		Company:     "0xAAAA00000000000000000000000000000000AAAA",
		Freelancer:  "0xbbbb00000000000000000000000000000000bbbb",
		TotalBudget: 10,
		PaymentType: payOneTime,
	})

	// Lookup is checksum-casing insensitive.
	ids, err := m.ListAgreements(ctx, "0xaaaa00000000000000000000000000000000aaaa")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("ids = %v", ids)
	}

	if err := m.SetEncryptionPublicKey(ctx, "0xBBBB00000000000000000000000000000000BBBB", "pubkey"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	if got := m.EncryptionPublicKey("0xbbbb00000000000000000000000000000000bbbb"); got != "pubkey" {
		t.Fatalf("key = %q", got)
	}
}
