// Package fee estimates the platform fee charged on escrow deposits. All
// arithmetic is integer over micro-unit amounts so the client-side estimate
// can never drift from the contract's own fee computation.
package fee

import (
	"errors"

	"escrowflow/money"
)

// BpsDenominator converts basis points to a fraction (1 bps = 0.01%).
const BpsDenominator = 10_000

// ErrNegativeInput signals a negative deposit or fee rate.
var ErrNegativeInput = errors.New("fee: deposit and rate must not be negative")

// Bounds are the min/max fee clamps fetched from the contract. Either side
// may still be unknown while chain data loads; a nil bound is not applied.
type Bounds struct {
	Min *money.Amount
	Max *money.Amount
}

// Complete reports whether both clamps are known.
func (b Bounds) Complete() bool { return b.Min != nil && b.Max != nil }

// Quote is the outcome of a fee estimate. While Pending is true the clamp
// bounds have not finished loading and Total must be displayed as pending
// rather than computed with a placeholder.
type Quote struct {
	Fee     money.Amount
	Total   money.Amount
	Pending bool
}

// Estimate computes the fee on a deposit at the given basis-point rate,
// clamped into the known bounds. Deterministic, no side effects.
func Estimate(deposit money.Amount, feeBps int64, bounds Bounds) (Quote, error) {
	if deposit < 0 || feeBps < 0 {
		return Quote{}, ErrNegativeInput
	}

	// Split the multiplication so deposit*bps cannot overflow int64 for
	// deposits the contract's wider integers would still accept. For
	// deposit = q*D + r this equals floor(deposit*bps/D) exactly.
	bps := money.Amount(feeBps)
	raw := deposit/BpsDenominator*bps + deposit%BpsDenominator*bps/BpsDenominator
	fee := money.Clamp(raw, bounds.Min, bounds.Max)

	q := Quote{Fee: fee, Pending: !bounds.Complete()}
	if !q.Pending {
		q.Total = deposit + fee
	}
	return q, nil
}
