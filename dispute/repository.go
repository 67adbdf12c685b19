package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("dispute: not found")
	ErrForbidden = errors.New("dispute: forbidden")
	ErrBadStatus = errors.New("dispute: invalid status transition")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `d.id, d.agreement_id, d.raised_by, d.reason, d.status::text, d.resolution_note, d.created_at, d.resolved_at`

// List returns the dispute cases the wallet can see: any case on an
// agreement it participates in, newest first.
func (r *Repository) List(ctx context.Context, wallet string, agreementID uint64) ([]Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM disputes d
		JOIN agreements a ON a.id = d.agreement_id
		WHERE (a.company = $1 OR a.freelancer = $1 OR a.arbitrator = $1)
	`
	args := []any{wallet}
	if agreementID != 0 {
		query += " AND d.agreement_id = $2"
		args = append(args, int64(agreementID))
	}
	query += " ORDER BY d.created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

// Create opens a case on an agreement the wallet participates in as company
// or freelancer. The arbitrator cannot open cases.
func (r *Repository) Create(ctx context.Context, wallet string, agreementID uint64, reason string) (Record, error) {
	const query = `
		INSERT INTO disputes (agreement_id, raised_by, reason, status)
		SELECT a.id, $2, $3, 'under_review'
		FROM agreements a
		WHERE a.id = $1 AND (a.company = $2 OR a.freelancer = $2)
		RETURNING id, agreement_id, raised_by, reason, status::text, resolution_note, created_at, resolved_at
	`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, int64(agreementID), wallet, reason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrForbidden
		}
		return Record{}, fmt.Errorf("dispute: create: %w", err)
	}
	return rec, nil
}

// Resolve closes a case. Only the agreement's arbitrator may resolve, and
// only once.
func (r *Repository) Resolve(ctx context.Context, wallet, disputeID, note string) (Record, error) {
	const query = `
		UPDATE disputes d
		SET status = 'resolved', resolution_note = $3, resolved_at = now()
		FROM agreements a
		WHERE d.id = $1
		  AND d.agreement_id = a.id
		  AND a.arbitrator = $2
		  AND d.status <> 'resolved'
		RETURNING ` + recordColumns

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, disputeID, wallet, note))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("dispute: resolve: %w", err)
	}

	// Distinguish "already resolved" from "not yours" for the caller.
	const check = `
		SELECT d.status::text
		FROM disputes d
		JOIN agreements a ON a.id = d.agreement_id
		WHERE d.id = $1 AND a.arbitrator = $2
	`
	var status Status
	if err := r.pool.QueryRow(ctx, check, disputeID, wallet).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrForbidden
		}
		return Record{}, fmt.Errorf("dispute: resolve fetch: %w", err)
	}
	if status == StatusResolved {
		return Record{}, ErrBadStatus
	}
	return Record{}, ErrForbidden
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec Record
		id  int64
	)
	err := row.Scan(&rec.ID, &id, &rec.RaisedBy, &rec.Reason, &rec.Status, &rec.ResolutionNote, &rec.CreatedAt, &rec.ResolvedAt)
	if err != nil {
		return Record{}, err
	}
	rec.AgreementID = uint64(id)
	return rec, nil
}
