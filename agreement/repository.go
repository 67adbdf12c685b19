package agreement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"escrowflow/money"
)

var (
	// ErrDuplicateIdempotencyKey signals the idempotency insert hit an
	// existing key.
	ErrDuplicateIdempotencyKey = errors.New("agreement: duplicate idempotency key")
	// ErrNotMirrored is returned when no snapshot exists for the id.
	ErrNotMirrored = errors.New("agreement: not mirrored")
)

// ProofRecord indexes one uploaded proof document for the dashboard's
// history view.
type ProofRecord struct {
	ID          string
	AgreementID uint64
	CID         string
	Recipient   string
	Filename    string
	Encrypted   bool
	CreatedAt   time.Time
}

// Repository holds the SQL for the agreement read model. All writes run
// inside a caller-supplied transaction so a snapshot change, its timeline
// event, and its outbox message commit or roll back together.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// InsertIdempotencyKey reserves the key inside the active transaction.
func (r *Repository) InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	if key == "" {
		return fmt.Errorf("agreement: empty idempotency key")
	}

	_, err := tx.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1)`, key)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("agreement: insert idempotency key: %w", err)
	}

	return nil
}

// UpsertSnapshot writes the mirrored record and returns the previous status
// when a row already existed. The caller decides whether the change warrants
// a timeline event.
func (r *Repository) UpsertSnapshot(ctx context.Context, tx pgx.Tx, rec Record) (prev *Status, err error) {
	var existing *int16
	err = tx.QueryRow(ctx, `SELECT status FROM agreements WHERE id = $1 FOR UPDATE`, int64(rec.ID)).Scan(&existing)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("agreement: load snapshot status: %w", err)
	}

	const upsertSQL = `
INSERT INTO agreements (
    id, company, freelancer, arbitrator, token,
    total_budget, amount_released, last_payment_time, monthly_rate,
    milestone_deadlines, status, payment_type, current_proof_uri,
    current_milestone, total_milestones, project_name, description, synced_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now())
ON CONFLICT (id) DO UPDATE SET
    amount_released = EXCLUDED.amount_released,
    last_payment_time = EXCLUDED.last_payment_time,
    status = EXCLUDED.status,
    current_proof_uri = EXCLUDED.current_proof_uri,
    current_milestone = EXCLUDED.current_milestone,
    synced_at = now()
`
	var lastPayment *time.Time
	if !rec.LastPaymentTime.IsZero() {
		t := rec.LastPaymentTime
		lastPayment = &t
	}

	if _, err := tx.Exec(ctx, upsertSQL,
		int64(rec.ID), rec.Company, rec.Freelancer, rec.Arbitrator, rec.Token,
		rec.TotalBudget.Micros(), rec.AmountReleased.Micros(), lastPayment, rec.MonthlyRate.Micros(),
		rec.MilestoneDeadlines, int16(rec.Status), int16(rec.PaymentType), rec.CurrentProofURI,
		int32(rec.CurrentMilestone), int32(rec.TotalMilestones), rec.ProjectName, rec.Description,
	); err != nil {
		return nil, fmt.Errorf("agreement: upsert snapshot: %w", err)
	}

	if existing != nil {
		s := Status(*existing)
		return &s, nil
	}
	return nil, nil
}

// AppendTimelineEvent appends an immutable event with the next per-agreement
// sequence number.
func (r *Repository) AppendTimelineEvent(ctx context.Context, tx pgx.Tx, agreementID uint64, eventType string, payload map[string]any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("agreement: marshal timeline payload: %w", err)
	}

	const insertSQL = `
INSERT INTO timeline_events (agreement_id, seq, type, payload)
VALUES ($1, COALESCE((SELECT MAX(seq) FROM timeline_events WHERE agreement_id = $1), 0) + 1, $2, $3)
`
	if _, err := tx.Exec(ctx, insertSQL, int64(agreementID), eventType, payloadBytes); err != nil {
		return fmt.Errorf("agreement: insert timeline event: %w", err)
	}
	return nil
}

// EnqueueOutbox writes a transactional outbox message.
func (r *Repository) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("agreement: marshal outbox payload: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2)`, topic, payloadBytes); err != nil {
		return fmt.Errorf("agreement: insert outbox message: %w", err)
	}
	return nil
}

// RecordProof indexes an uploaded proof document.
func (r *Repository) RecordProof(ctx context.Context, tx pgx.Tx, p ProofRecord) error {
	const insertSQL = `
INSERT INTO proofs (id, agreement_id, cid, recipient, filename, encrypted)
VALUES ($1,$2,$3,$4,$5,$6)
`
	if _, err := tx.Exec(ctx, insertSQL, p.ID, int64(p.AgreementID), p.CID, p.Recipient, p.Filename, p.Encrypted); err != nil {
		return fmt.Errorf("agreement: insert proof: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec         Record
		id          int64
		budget      int64
		released    int64
		rate        int64
		status      int16
		payType     int16
		milestone   int32
		total       int32
		lastPayment *time.Time
	)
	err := row.Scan(&id, &rec.Company, &rec.Freelancer, &rec.Arbitrator, &rec.Token,
		&budget, &released, &lastPayment, &rate, &rec.MilestoneDeadlines,
		&status, &payType, &rec.CurrentProofURI, &milestone, &total,
		&rec.ProjectName, &rec.Description)
	if err != nil {
		return Record{}, err
	}

	rec.ID = uint64(id)
	rec.TotalBudget = money.Amount(budget)
	rec.AmountReleased = money.Amount(released)
	rec.MonthlyRate = money.Amount(rate)
	if lastPayment != nil {
		rec.LastPaymentTime = lastPayment.UTC()
	}
	rec.CurrentMilestone = uint32(milestone)
	rec.TotalMilestones = uint32(total)

	var perr error
	if rec.Status, perr = ParseStatus(uint8(status)); perr != nil {
		return Record{}, perr
	}
	if rec.PaymentType, perr = ParsePaymentType(uint8(payType)); perr != nil {
		return Record{}, perr
	}
	return rec, nil
}

const recordColumns = `id, company, freelancer, arbitrator, token,
total_budget, amount_released, last_payment_time, monthly_rate,
milestone_deadlines, status, payment_type, current_proof_uri,
current_milestone, total_milestones, project_name, description`
