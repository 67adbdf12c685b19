package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is an invariant expressed as SQL. The query must return the number
// of violating rows; any non-zero count fails the run.
type Oracle struct {
	Name string
	SQL  string
}

var All = []Oracle{
	{
		Name: "released_within_budget",
		SQL: `SELECT COUNT(*) FROM agreements
WHERE amount_released < 0 OR amount_released > total_budget`,
	},
	{
		Name: "status_in_range",
		SQL:  `SELECT COUNT(*) FROM agreements WHERE status < 0 OR status > 6`,
	},
	{
		Name: "payment_type_in_range",
		SQL:  `SELECT COUNT(*) FROM agreements WHERE payment_type < 0 OR payment_type > 2`,
	},
	{
		Name: "timeline_seq_dense",
		SQL: `SELECT COUNT(*) FROM (
    SELECT seq, LAG(seq) OVER (PARTITION BY agreement_id ORDER BY seq) AS prev
    FROM timeline_events
) t WHERE t.prev IS NOT NULL AND t.seq <> t.prev + 1`,
	},
	{
		Name: "timeline_starts_at_one",
		SQL: `SELECT COUNT(*) FROM (
    SELECT MIN(seq) AS first FROM timeline_events GROUP BY agreement_id
) t WHERE t.first <> 1`,
	},
	{
		Name: "proofs_reference_agreements",
		SQL: `SELECT COUNT(*) FROM proofs p
LEFT JOIN agreements a ON a.id = p.agreement_id
WHERE a.id IS NULL`,
	},
	{
		Name: "resolved_disputes_have_timestamp",
		SQL: `SELECT COUNT(*) FROM disputes
WHERE (status = 'resolved') <> (resolved_at IS NOT NULL)`,
	},
	{
		Name: "disputes_raised_by_participant",
		SQL: `SELECT COUNT(*) FROM disputes d
JOIN agreements a ON a.id = d.agreement_id
WHERE d.raised_by <> a.company AND d.raised_by <> a.freelancer`,
	},
	{
		Name: "dispute_status_known",
		SQL:  `SELECT COUNT(*) FROM disputes WHERE status NOT IN ('under_review', 'resolved')`,
	},
	{
		Name: "no_stale_pending_outbox",
		SQL: `SELECT COUNT(*) FROM outbox
WHERE status = 'pending' AND created_at < now() - interval '10 minutes'`,
	},
}

// Run evaluates every oracle and returns an error describing the first
// violated one.
func Run(ctx context.Context, pool *pgxpool.Pool) error {
	for _, o := range All {
		var count int
		if err := pool.QueryRow(ctx, o.SQL).Scan(&count); err != nil {
			return fmt.Errorf("oracle %s query failed: %w", o.Name, err)
		}
		if count != 0 {
			return fmt.Errorf("oracle %s violated: %d offending rows", o.Name, count)
		}
	}
	return nil
}
