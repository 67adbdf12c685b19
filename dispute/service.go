package dispute

import (
	"context"
	"fmt"
	"strings"
)

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, wallet string, agreementID uint64) ([]Record, error) {
	return s.repo.List(ctx, normalize(wallet), agreementID)
}

func (s *Service) Open(ctx context.Context, wallet string, agreementID uint64, reason string) (Record, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Record{}, fmt.Errorf("dispute: reason is required")
	}
	return s.repo.Create(ctx, normalize(wallet), agreementID, reason)
}

func (s *Service) Resolve(ctx context.Context, wallet, disputeID, note string) (Record, error) {
	return s.repo.Resolve(ctx, normalize(wallet), disputeID, strings.TrimSpace(note))
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
