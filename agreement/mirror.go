package agreement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxTopicStatusChanged is published whenever the mirror observes a new
// on-chain status for an agreement.
const OutboxTopicStatusChanged = "agreement.status_changed"

// Mirror is the postgres-backed read model of on-chain agreements. The
// chain stays authoritative; the mirror exists so the dashboard can list,
// page, and join without a chain round-trip per row.
type Mirror struct {
	pool *pgxpool.Pool
	repo *Repository
}

func NewMirror(pool *pgxpool.Pool) *Mirror {
	return &Mirror{pool: pool, repo: NewRepository()}
}

// ApplySnapshot upserts a freshly fetched chain record. When the stored
// status differs, a timeline event and an outbox message are written in the
// same transaction as the snapshot.
func (m *Mirror) ApplySnapshot(ctx context.Context, rec Record) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("agreement: begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	prev, err := m.repo.UpsertSnapshot(ctx, tx, rec)
	if err != nil {
		return err
	}

	if prev == nil || *prev != rec.Status {
		payload := map[string]any{
			"agreement_id": rec.ID,
			"next_status":  rec.Status.String(),
		}
		if prev != nil {
			payload["previous_status"] = prev.String()
		}
		if err := m.repo.AppendTimelineEvent(ctx, tx, rec.ID, "AGREEMENT_STATUS_CHANGED", payload); err != nil {
			return err
		}
		if err := m.repo.EnqueueOutbox(ctx, tx, OutboxTopicStatusChanged, payload); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("agreement: commit snapshot: %w", err)
	}
	return nil
}

// Get returns the mirrored record for an id.
func (m *Mirror) Get(ctx context.Context, id uint64) (Record, error) {
	row := m.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM agreements WHERE id = $1`, int64(id))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotMirrored
		}
		return Record{}, fmt.Errorf("agreement: get snapshot: %w", err)
	}
	return rec, nil
}

// ListByParticipant pages through agreements the address takes part in, in
// any of the three roles, newest first.
func (m *Mirror) ListByParticipant(ctx context.Context, address string, page, pageSize int) ([]Record, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	addr := NormalizeAddress(address)

	const listSQL = `
SELECT ` + recordColumns + `
FROM agreements
WHERE company = $1 OR freelancer = $1 OR arbitrator = $1
ORDER BY id DESC
LIMIT $2 OFFSET $3
`
	rows, err := m.pool.Query(ctx, listSQL, addr, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("agreement: list snapshots: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("agreement: scan snapshot: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("agreement: list snapshots: %w", err)
	}

	var total int
	const countSQL = `SELECT COUNT(*) FROM agreements WHERE company = $1 OR freelancer = $1 OR arbitrator = $1`
	if err := m.pool.QueryRow(ctx, countSQL, addr).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("agreement: count snapshots: %w", err)
	}

	return records, total, nil
}

// RecordProofs indexes the uploaded proof documents for one submission in a
// single transaction, guarded by an idempotency key so a retried submission
// never double-indexes.
func (m *Mirror) RecordProofs(ctx context.Context, idempotencyKey string, proofs []ProofRecord) error {
	if len(proofs) == 0 {
		return nil
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("agreement: begin proof tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := m.repo.InsertIdempotencyKey(ctx, tx, idempotencyKey); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return nil
		}
		return err
	}

	for _, p := range proofs {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if err := m.repo.RecordProof(ctx, tx, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("agreement: commit proofs: %w", err)
	}
	return nil
}

// TimelineEvent is one row of an agreement's activity feed.
type TimelineEvent struct {
	ID          int64
	AgreementID uint64
	Seq         int
	Type        string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// ListTimeline returns the activity feed for an agreement in event order.
func (m *Mirror) ListTimeline(ctx context.Context, agreementID uint64) ([]TimelineEvent, error) {
	const listSQL = `
SELECT id, agreement_id, seq, type, payload, created_at
FROM timeline_events
WHERE agreement_id = $1
ORDER BY seq
`
	rows, err := m.pool.Query(ctx, listSQL, int64(agreementID))
	if err != nil {
		return nil, fmt.Errorf("agreement: list timeline: %w", err)
	}
	defer rows.Close()

	events := []TimelineEvent{}
	for rows.Next() {
		var (
			ev TimelineEvent
			id int64
			ts time.Time
		)
		if err := rows.Scan(&ev.ID, &id, &ev.Seq, &ev.Type, &ev.Payload, &ts); err != nil {
			return nil, fmt.Errorf("agreement: scan timeline event: %w", err)
		}
		ev.AgreementID = uint64(id)
		ev.CreatedAt = ts.UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListProofs returns the proof history for an agreement, newest first.
func (m *Mirror) ListProofs(ctx context.Context, agreementID uint64) ([]ProofRecord, error) {
	const listSQL = `
SELECT id, agreement_id, cid, recipient, filename, encrypted, created_at
FROM proofs
WHERE agreement_id = $1
ORDER BY created_at DESC
`
	rows, err := m.pool.Query(ctx, listSQL, int64(agreementID))
	if err != nil {
		return nil, fmt.Errorf("agreement: list proofs: %w", err)
	}
	defer rows.Close()

	proofs := []ProofRecord{}
	for rows.Next() {
		var (
			p  ProofRecord
			id int64
			ts time.Time
		)
		if err := rows.Scan(&p.ID, &id, &p.CID, &p.Recipient, &p.Filename, &p.Encrypted, &ts); err != nil {
			return nil, fmt.Errorf("agreement: scan proof: %w", err)
		}
		p.AgreementID = uint64(id)
		p.CreatedAt = ts.UTC()
		proofs = append(proofs, p)
	}
	return proofs, rows.Err()
}
