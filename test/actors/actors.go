package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"escrowflow/agreement"
	"escrowflow/dispute"
	"escrowflow/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Wallets used by every actor. mustSeed in the stress test registers the
// same three addresses.
const (
	Company    = "0x00000000000000000000000000000000000000c0"
	Freelancer = "0x00000000000000000000000000000000000000f1"
	Arbitrator = "0x00000000000000000000000000000000000000a2"
)

// statusCycle is the path a long-lived agreement keeps walking so snapshot
// appliers contend on the same rows and keep producing timeline events.
var statusCycle = []agreement.Status{
	agreement.StatusFunded,
	agreement.StatusProposed,
	agreement.StatusAccepted,
	agreement.StatusFunded,
}

// SeedRecord builds a deterministic mirrored agreement for an id.
func SeedRecord(id uint64) agreement.Record {
	return agreement.Record{
		ID:              id,
		Company:         Company,
		Freelancer:      Freelancer,
		Arbitrator:      Arbitrator,
		Token:           "0x0000000000000000000000000000000000000000",
		TotalBudget:     money.Amount(1_000_000_000),
		Status:          agreement.StatusFunded,
		PaymentType:     agreement.PayMilestone,
		TotalMilestones: 4,
		ProjectName:     fmt.Sprintf("stress project %d", id),
	}
}

// RunSnapshotApplier keeps re-mirroring one agreement through the status
// cycle, bumping amount_released while staying inside the budget.
func RunSnapshotApplier(ctx context.Context, stop <-chan struct{}, mirror *agreement.Mirror, id uint64, rng *rand.Rand) error {
	rec := SeedRecord(id)
	step := 0
	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		rec.Status = statusCycle[step%len(statusCycle)]
		step++
		if rec.AmountReleased+1000 <= rec.TotalBudget {
			rec.AmountReleased += 1000
		}
		rec.CurrentProofURI = fmt.Sprintf("ipfs://bafy-stress-%d-%d", id, step)

		if err := mirror.ApplySnapshot(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("snapshot applier %d: %w", id, err)
		}

		time.Sleep(time.Duration(rng.Intn(20)) * time.Millisecond)
	}
}

// RunProofIndexer repeatedly records proofs for one agreement, reusing a
// small pool of idempotency keys so retried submissions hit the dedupe path.
func RunProofIndexer(ctx context.Context, stop <-chan struct{}, mirror *agreement.Mirror, id uint64, rng *rand.Rand) error {
	keys := make([]string, 8)
	for i := range keys {
		keys[i] = fmt.Sprintf("stress-%d-%s", id, uuid.NewString())
	}

	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		key := keys[rng.Intn(len(keys))]
		proofs := []agreement.ProofRecord{{
			AgreementID: id,
			CID:         "bafy-" + key,
			Recipient:   Company,
			Filename:    "deliverable.pdf",
			Encrypted:   true,
		}}
		if err := mirror.RecordProofs(ctx, key, proofs); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("proof indexer %d: %w", id, err)
		}

		time.Sleep(time.Duration(rng.Intn(30)) * time.Millisecond)
	}
}

// RunLister pages agreements and reads timelines the way the dashboard does.
func RunLister(ctx context.Context, stop <-chan struct{}, mirror *agreement.Mirror, rng *rand.Rand) error {
	wallets := []string{Company, Freelancer, Arbitrator}
	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		wallet := wallets[rng.Intn(len(wallets))]
		records, _, err := mirror.ListByParticipant(ctx, wallet, 1+rng.Intn(3), 10)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("lister: %w", err)
		}
		for _, rec := range records {
			if _, err := mirror.ListTimeline(ctx, rec.ID); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("lister timeline %d: %w", rec.ID, err)
			}
		}

		time.Sleep(time.Duration(rng.Intn(40)) * time.Millisecond)
	}
}

// RunOutboxWorker drains pending outbox messages with SKIP LOCKED, randomly
// leaving some for a retry so the attempts counter moves too.
func RunOutboxWorker(ctx context.Context, stop <-chan struct{}, pool *pgxpool.Pool, rng *rand.Rand) error {
	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status = 'pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rng.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = $1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status = 'sent', attempts = attempts + 1 WHERE id = $1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}

// RunDisputant opens disputes as the freelancer and resolves them as the
// arbitrator. Authorization races surface as ErrForbidden or ErrBadStatus
// and are expected under concurrency.
func RunDisputant(ctx context.Context, stop <-chan struct{}, disputes *dispute.Service, ids []uint64, rng *rand.Rand) error {
	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		id := ids[rng.Intn(len(ids))]
		rec, err := disputes.Open(ctx, Freelancer, id, "stress: deliverable contested")
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, dispute.ErrForbidden) {
				continue
			}
			return fmt.Errorf("disputant open %d: %w", id, err)
		}

		if _, err := disputes.Resolve(ctx, Arbitrator, rec.ID, "stress: settled"); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, dispute.ErrForbidden) || errors.Is(err, dispute.ErrBadStatus) {
				continue
			}
			return fmt.Errorf("disputant resolve %s: %w", rec.ID, err)
		}

		time.Sleep(time.Duration(rng.Intn(50)) * time.Millisecond)
	}
}
