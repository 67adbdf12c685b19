package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrReverted is the base error for contract rule violations raised by the
// in-memory ledger.
var ErrReverted = errors.New("ledger: reverted")

// Raw chain enum values. These mirror the deployed contract's order and must
// not be rearranged.
const (
	statusCreated uint8 = iota
	statusFunded
	statusProposed
	statusAccepted
	statusCompleted
	statusCancelled
	statusDisputed
)

const (
	payOneTime uint8 = iota
	payMilestone
	payMonthly
)

const monthlyCycleSeconds = 30 * 24 * 60 * 60

// MemoryLedger is an in-process Ledger used for development and tests. It
// enforces the same transition rules the contract does, so a verb the
// contract would revert fails here too.
type MemoryLedger struct {
	mu         sync.Mutex
	nextID     uint64
	agreements map[uint64]Agreement
	keys       map[string]string
	profiles   map[string]string
	now        func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		nextID:     1,
		agreements: make(map[uint64]Agreement),
		keys:       make(map[string]string),
		profiles:   make(map[string]string),
		now:        time.Now,
	}
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func (m *MemoryLedger) GetAgreement(ctx context.Context, id uint64) (Agreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agreements[id]
	if !ok {
		return Agreement{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryLedger) ListAgreements(ctx context.Context, address string) ([]uint64, error) {
	addr := normalize(address)
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uint64
	for id, a := range m.agreements {
		if a.Company == addr || a.Freelancer == addr || a.Arbitrator == addr {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MemoryLedger) CreateAgreement(ctx context.Context, params CreateParams) (uint64, error) {
	if params.TotalBudget <= 0 {
		return 0, fmt.Errorf("%w: budget must be positive", ErrReverted)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.agreements[id] = Agreement{
		ID:                 id,
		Company:            normalize(params.Company),
		Freelancer:         normalize(params.Freelancer),
		Arbitrator:         normalize(params.Arbitrator),
		Token:              normalize(params.Token),
		TotalBudget:        params.TotalBudget,
		MonthlyRate:        params.MonthlyRate,
		MilestoneDeadlines: append([]int64(nil), params.MilestoneDeadlines...),
		Status:             statusCreated,
		PaymentType:        params.PaymentType,
		TotalMilestones:    params.TotalMilestones,
		ProjectName:        params.ProjectName,
		Description:        params.Description,
	}
	return id, nil
}

// mutate applies fn to the stored agreement under the lock.
func (m *MemoryLedger) mutate(id uint64, fn func(*Agreement) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agreements[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&a); err != nil {
		return err
	}
	m.agreements[id] = a
	return nil
}

func (m *MemoryLedger) Deposit(ctx context.Context, id uint64) error {
	return m.mutate(id, func(a *Agreement) error {
		if a.Status != statusCreated {
			return fmt.Errorf("%w: deposit in status %d", ErrReverted, a.Status)
		}
		a.Status = statusFunded
		return nil
	})
}

func (m *MemoryLedger) SubmitWork(ctx context.Context, id uint64, proofURI string) error {
	return m.mutate(id, func(a *Agreement) error {
		if a.Status != statusFunded {
			return fmt.Errorf("%w: submit in status %d", ErrReverted, a.Status)
		}
		if proofURI == "" {
			return fmt.Errorf("%w: empty proof uri", ErrReverted)
		}
		a.Status = statusProposed
		a.CurrentProofURI = proofURI
		return nil
	})
}

func (m *MemoryLedger) AcceptWork(ctx context.Context, id uint64) error {
	return m.mutate(id, func(a *Agreement) error {
		if a.Status != statusProposed {
			return fmt.Errorf("%w: accept in status %d", ErrReverted, a.Status)
		}
		a.Status = statusAccepted
		return nil
	})
}

func (m *MemoryLedger) RejectWork(ctx context.Context, id uint64, reason string) error {
	return m.mutate(id, func(a *Agreement) error {
		if a.Status != statusProposed {
			return fmt.Errorf("%w: reject in status %d", ErrReverted, a.Status)
		}
		a.Status = statusFunded
		a.CurrentProofURI = ""
		return nil
	})
}

func (m *MemoryLedger) ReleasePayment(ctx context.Context, id uint64) error {
	now := m.now().Unix()
	return m.mutate(id, func(a *Agreement) error {
		switch a.PaymentType {
		case payOneTime:
			if a.Status != statusAccepted {
				return fmt.Errorf("%w: release in status %d", ErrReverted, a.Status)
			}
			a.AmountReleased = a.TotalBudget
			a.LastPaymentTime = now
			a.Status = statusCompleted
			return nil

		case payMilestone:
			if a.Status != statusAccepted {
				return fmt.Errorf("%w: release in status %d", ErrReverted, a.Status)
			}
			if a.CurrentMilestone >= a.TotalMilestones {
				return fmt.Errorf("%w: no milestones remain", ErrReverted)
			}
			if a.CurrentMilestone == a.TotalMilestones-1 {
				a.AmountReleased = a.TotalBudget
				a.Status = statusCompleted
			} else {
				a.AmountReleased += a.TotalBudget / int64(a.TotalMilestones)
				if a.AmountReleased > a.TotalBudget {
					a.AmountReleased = a.TotalBudget
				}
				a.Status = statusFunded
				a.CurrentProofURI = ""
			}
			a.CurrentMilestone++
			a.LastPaymentTime = now
			return nil

		case payMonthly:
			if a.Status != statusFunded && a.Status != statusAccepted {
				return fmt.Errorf("%w: release in status %d", ErrReverted, a.Status)
			}
			if a.CurrentProofURI == "" {
				return fmt.Errorf("%w: no proof on file", ErrReverted)
			}
			if a.AmountReleased >= a.TotalBudget {
				return fmt.Errorf("%w: budget exhausted", ErrReverted)
			}
			if now < a.LastPaymentTime+monthlyCycleSeconds {
				return fmt.Errorf("%w: payment cycle not elapsed", ErrReverted)
			}
			pay := a.MonthlyRate
			if remaining := a.TotalBudget - a.AmountReleased; pay > remaining {
				pay = remaining
			}
			a.AmountReleased += pay
			a.LastPaymentTime = now
			a.Status = statusFunded
			a.CurrentProofURI = ""
			return nil

		default:
			return fmt.Errorf("%w: unknown payment type %d", ErrReverted, a.PaymentType)
		}
	})
}

func (m *MemoryLedger) CancelAgreement(ctx context.Context, id uint64) error {
	return m.mutate(id, func(a *Agreement) error {
		if a.Status != statusCreated {
			return fmt.Errorf("%w: cancel in status %d", ErrReverted, a.Status)
		}
		a.Status = statusCancelled
		return nil
	})
}

func (m *MemoryLedger) RaiseDispute(ctx context.Context, id uint64, reason string) error {
	return m.mutate(id, func(a *Agreement) error {
		switch a.Status {
		case statusFunded, statusProposed, statusAccepted:
			a.Status = statusDisputed
			return nil
		default:
			return fmt.Errorf("%w: dispute in status %d", ErrReverted, a.Status)
		}
	})
}

func (m *MemoryLedger) SetEncryptionPublicKey(ctx context.Context, address, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[normalize(address)] = key
	return nil
}

func (m *MemoryLedger) SetProfileCID(ctx context.Context, address, cid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[normalize(address)] = cid
	return nil
}

// EncryptionPublicKey reads back a registered key, empty when absent.
func (m *MemoryLedger) EncryptionPublicKey(address string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[normalize(address)]
}
