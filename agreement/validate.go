package agreement

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"escrowflow/money"
)

// FieldErrors maps form field names to human-readable reasons. A non-empty
// map means the create action must not be issued; there is no partial
// creation.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	if len(fe) == 0 {
		return "agreement: no field errors"
	}
	parts := make([]string, 0, len(fe))
	for field, reason := range fe {
		parts = append(parts, field+": "+reason)
	}
	return "agreement: invalid fields: " + strings.Join(parts, "; ")
}

// CreateParams is everything the create-agreement form submits.
type CreateParams struct {
	Company        string
	Freelancer     string
	Arbitrator     string
	Token          string
	ProjectName    string
	Description    string
	TotalBudget    money.Amount
	PaymentType    PaymentType
	DurationMonths uint32   // monthly only
	TotalMilestones uint32  // milestone only
	Deadlines      []string // milestone only, DD-MM-YYYY each
}

// ErrPastDeadline signals a deadline that is not strictly in the future.
var ErrPastDeadline = errors.New("agreement: deadline must be in the future")

// ParseDeadline parses the user-facing DD-MM-YYYY format strictly: two-digit
// day, two-digit month, four-digit year, day 1..31, month 1..12, year 2000
// or later, and the resulting instant strictly after now. The timestamp is
// midnight UTC of the given date.
func ParseDeadline(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "-")
	if len(parts) != 3 || len(parts[0]) != 2 || len(parts[1]) != 2 || len(parts[2]) != 4 {
		return time.Time{}, fmt.Errorf("agreement: deadline %q: want DD-MM-YYYY", s)
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("agreement: deadline %q: bad day", s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("agreement: deadline %q: bad month", s)
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("agreement: deadline %q: bad year", s)
	}

	if day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("agreement: deadline %q: day out of range", s)
	}
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("agreement: deadline %q: month out of range", s)
	}
	if year < 2000 {
		return time.Time{}, fmt.Errorf("agreement: deadline %q: year before 2000", s)
	}

	ts := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if !ts.After(now) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrPastDeadline, s)
	}
	return ts, nil
}

// SplitDeadlines splits the comma-separated multi-milestone input into
// individual deadline strings, trimming whitespace and dropping empties.
func SplitDeadlines(s string) []string {
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, d := range raw {
		d = strings.TrimSpace(d)
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Validate checks every field and returns the full error map so the form can
// surface all problems at once. A nil map means the params are safe to send
// to the ledger.
func (p CreateParams) Validate(now time.Time) FieldErrors {
	fe := FieldErrors{}

	checkAddr := func(field, addr string) {
		if addr == "" {
			fe[field] = "address is required"
		} else if !ValidAddress(addr) {
			fe[field] = "malformed address"
		}
	}
	checkAddr("company", p.Company)
	checkAddr("freelancer", p.Freelancer)
	checkAddr("arbitrator", p.Arbitrator)
	checkAddr("token", p.Token)

	if NormalizeAddress(p.Company) == NormalizeAddress(p.Freelancer) && p.Company != "" {
		fe["freelancer"] = "freelancer must differ from company"
	}

	if strings.TrimSpace(p.ProjectName) == "" {
		fe["project_name"] = "project name is required"
	}

	if p.TotalBudget <= 0 {
		fe["total_budget"] = "budget must be positive"
	}

	switch p.PaymentType {
	case PayOneTime:
		// no extra schedule fields

	case PayMilestone:
		if p.TotalMilestones == 0 {
			fe["total_milestones"] = "at least one milestone is required"
		}
		if len(p.Deadlines) != int(p.TotalMilestones) {
			fe["deadlines"] = fmt.Sprintf("expected %d deadlines, got %d", p.TotalMilestones, len(p.Deadlines))
		} else {
			for i, d := range p.Deadlines {
				if _, err := ParseDeadline(d, now); err != nil {
					fe[fmt.Sprintf("deadlines[%d]", i)] = deadlineReason(err)
				}
			}
		}

	case PayMonthly:
		if p.DurationMonths == 0 {
			fe["duration_months"] = "duration must be at least one month"
		} else if p.TotalBudget > 0 && p.TotalBudget/money.Amount(p.DurationMonths) == 0 {
			fe["duration_months"] = "budget too small for the given duration"
		}

	default:
		fe["payment_type"] = "unknown payment type"
	}

	if len(fe) == 0 {
		return nil
	}
	return fe
}

func deadlineReason(err error) string {
	if errors.Is(err, ErrPastDeadline) {
		return "deadline must be in the future"
	}
	return strings.TrimPrefix(err.Error(), "agreement: ")
}

// MonthlyRateFor derives the immutable per-cycle payout the contract fixes
// at creation: floor(totalBudget / durationMonths).
func MonthlyRateFor(totalBudget money.Amount, durationMonths uint32) money.Amount {
	if durationMonths == 0 {
		return 0
	}
	return totalBudget / money.Amount(durationMonths)
}
