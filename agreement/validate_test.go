package agreement

import (
	"errors"
	"testing"
	"time"

	"escrowflow/money"
)

func validParams() CreateParams {
	return CreateParams{
		Company:     "0xAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa",
		Freelancer:  "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Arbitrator:  "0xcccccccccccccccccccccccccccccccccccccccc",
		Token:       "0xdddddddddddddddddddddddddddddddddddddddd",
		ProjectName: "Marketing site",
		TotalBudget: money.FromUnits(1000, 0),
		PaymentType: PayOneTime,
	}
}

func TestValidateAccepts(t *testing.T) {
	if fe := validParams().Validate(testNow); fe != nil {
		t.Fatalf("expected no field errors, got %v", fe)
	}
}

func TestValidateFieldErrors(t *testing.T) {
	p := validParams()
	p.Company = "not-an-address"
	p.TotalBudget = 0
	p.ProjectName = "  "

	fe := p.Validate(testNow)
	if fe == nil {
		t.Fatal("expected field errors")
	}
	for _, field := range []string{"company", "total_budget", "project_name"} {
		if _, ok := fe[field]; !ok {
			t.Errorf("expected error for field %q, got %v", field, fe)
		}
	}
	// Untouched fields stay clean.
	if _, ok := fe["freelancer"]; ok {
		t.Errorf("unexpected error for freelancer: %v", fe)
	}
}

func TestValidateMilestoneCounts(t *testing.T) {
	p := validParams()
	p.PaymentType = PayMilestone
	p.TotalMilestones = 3
	p.Deadlines = []string{"01-06-2025", "01-07-2025"}

	fe := p.Validate(testNow)
	if fe == nil {
		t.Fatal("expected count mismatch error")
	}
	if _, ok := fe["deadlines"]; !ok {
		t.Fatalf("expected deadlines error, got %v", fe)
	}

	p.Deadlines = []string{"01-06-2025", "01-07-2025", "01-08-2025"}
	if fe := p.Validate(testNow); fe != nil {
		t.Fatalf("expected 3 deadlines for 3 milestones to validate, got %v", fe)
	}
}

func TestValidateMonthly(t *testing.T) {
	p := validParams()
	p.PaymentType = PayMonthly
	p.DurationMonths = 0

	fe := p.Validate(testNow)
	if _, ok := fe["duration_months"]; !ok {
		t.Fatalf("expected duration error, got %v", fe)
	}

	p.DurationMonths = 12
	if fe := p.Validate(testNow); fe != nil {
		t.Fatalf("expected monthly params to validate, got %v", fe)
	}
}

func TestParseDeadline(t *testing.T) {
	now := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	ts, err := ParseDeadline("31-12-2025", now)
	if err != nil {
		t.Fatalf("31-12-2025: %v", err)
	}
	if !ts.After(now) {
		t.Fatal("parsed deadline should be in the future")
	}
	if ts.Day() != 31 || ts.Month() != time.December || ts.Year() != 2025 {
		t.Fatalf("parsed wrong date: %v", ts)
	}

	rejects := []string{
		"31-13-2025", // month out of range
		"00-01-2025", // day out of range
		"01-01-1999", // year before 2000
		"1-1-2025",   // not DD-MM-YYYY
		"2025-12-31", // wrong order
		"31/12/2025", // wrong separator
	}
	for _, s := range rejects {
		if _, err := ParseDeadline(s, now); err == nil {
			t.Errorf("ParseDeadline(%q): expected rejection", s)
		}
	}

	if _, err := ParseDeadline("01-01-2020", now); !errors.Is(err, ErrPastDeadline) {
		t.Fatalf("past date: expected ErrPastDeadline, got %v", err)
	}
}

func TestSplitDeadlines(t *testing.T) {
	got := SplitDeadlines(" 01-06-2025, 01-07-2025 ,,01-08-2025")
	want := []string{"01-06-2025", "01-07-2025", "01-08-2025"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestMonthlyRateFor(t *testing.T) {
	if got := MonthlyRateFor(money.FromUnits(1200, 0), 12); got != money.FromUnits(100, 0) {
		t.Fatalf("rate = %s, want 100", got)
	}
	// Floor division.
	if got := MonthlyRateFor(money.FromUnits(1000, 0), 3); got != money.Amount(333_333_333) {
		t.Fatalf("rate = %d, want 333333333", got)
	}
	if got := MonthlyRateFor(money.FromUnits(1000, 0), 0); got != 0 {
		t.Fatalf("rate with zero months = %s, want 0", got)
	}
}

func TestValidAddress(t *testing.T) {
	if !ValidAddress("0xAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa") {
		t.Fatal("checksummed address should be valid")
	}
	for _, a := range []string{"", "0x123", "AAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa", "0xZZZZaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa"} {
		if ValidAddress(a) {
			t.Errorf("ValidAddress(%q) should be false", a)
		}
	}
}
