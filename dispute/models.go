package dispute

import "time"

// Status represents the lifecycle of a dispute case record. The on-chain
// agreement carries its own disputed flag; this record is the off-chain
// case file the arbitrator works.
type Status string

const (
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
)

// Record mirrors the disputes table.
type Record struct {
	ID             string
	AgreementID    uint64
	RaisedBy       string
	Reason         string
	Status         Status
	ResolutionNote *string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}
