package agreement

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"escrowflow/ledger"
)

// DefaultSyncConcurrency bounds parallel chain reads during a refresh.
const DefaultSyncConcurrency = 8

// Refresher re-reads agreements from the chain and applies them to the
// mirror. Each agreement is fetched and applied independently; there is no
// shared mutable state between refreshes, so the only coordination is the
// errgroup's failure propagation.
type Refresher struct {
	chain       ledger.Reader
	mirror      Snapshotter
	concurrency int
}

func NewRefresher(chain ledger.Reader, mirror Snapshotter) *Refresher {
	return &Refresher{
		chain:       chain,
		mirror:      mirror,
		concurrency: DefaultSyncConcurrency,
	}
}

// RefreshIDs fetches and mirrors the given agreements concurrently. The
// first failure cancels the remaining fetches.
func (r *Refresher) RefreshIDs(ctx context.Context, ids []uint64) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			raw, err := r.chain.GetAgreement(ctx, id)
			if err != nil {
				return fmt.Errorf("agreement: refresh %d: %w", id, err)
			}
			rec, err := FromChain(raw)
			if err != nil {
				return err
			}
			if err := r.mirror.ApplySnapshot(ctx, rec); err != nil {
				return fmt.Errorf("agreement: refresh %d: %w", id, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// RefreshParticipant mirrors every agreement the address takes part in.
func (r *Refresher) RefreshParticipant(ctx context.Context, address string) error {
	ids, err := r.chain.ListAgreements(ctx, NormalizeAddress(address))
	if err != nil {
		return fmt.Errorf("agreement: list for %s: %w", address, err)
	}
	return r.RefreshIDs(ctx, ids)
}
