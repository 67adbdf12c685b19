// Package httpapi is the HTTP surface the dashboard calls. It is transport
// only: request decoding, auth, and response shaping. All decisions live in
// the domain packages.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"escrowflow/agreement"
	"escrowflow/auth"
	"escrowflow/dispute"
	"escrowflow/fee"
	"escrowflow/money"
)

// AgreementService is the slice of the agreement service the API uses.
type AgreementService interface {
	Create(ctx context.Context, p agreement.CreateParams) (uint64, error)
	Get(ctx context.Context, id uint64) (agreement.Record, agreement.Derived, error)
	Deposit(ctx context.Context, id uint64) error
	Approve(ctx context.Context, id uint64) error
	Reject(ctx context.Context, id uint64, reason string) error
	Claim(ctx context.Context, id uint64) error
	Cancel(ctx context.Context, id uint64) error
	RaiseDispute(ctx context.Context, id uint64, reason string) error
	SubmitProof(ctx context.Context, id uint64, sub agreement.ProofSubmission) (string, error)
}

// AgreementLister reads the mirrored read model.
type AgreementLister interface {
	ListByParticipant(ctx context.Context, address string, page, pageSize int) ([]agreement.Record, int, error)
	ListProofs(ctx context.Context, agreementID uint64) ([]agreement.ProofRecord, error)
	ListTimeline(ctx context.Context, agreementID uint64) ([]agreement.TimelineEvent, error)
}

// AuthService handles accounts and tokens.
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
	LinkWallet(ctx context.Context, userID, walletAddress string) (*auth.User, error)
	RegisterEncryptionKey(ctx context.Context, userID, publicKey string) (*auth.User, error)
	PublishProfile(ctx context.Context, userID, cid string) (*auth.User, error)
	VerifyToken(token string) (string, auth.Role, error)
}

// DisputeService manages the off-chain dispute case records.
type DisputeService interface {
	List(ctx context.Context, wallet string, agreementID uint64) ([]dispute.Record, error)
	Open(ctx context.Context, wallet string, agreementID uint64, reason string) (dispute.Record, error)
	Resolve(ctx context.Context, wallet, disputeID, note string) (dispute.Record, error)
}

// FeeParams are the contract's fee terms as currently known. Nil bounds mean
// the chain values have not loaded and quotes stay pending.
type FeeParams struct {
	Bps    int64
	Bounds fee.Bounds
}

// Server wires the domain services behind a chi router.
type Server struct {
	logger     *slog.Logger
	agreements AgreementService
	mirror     AgreementLister
	accounts   AuthService
	disputes   DisputeService
	feeParams  func() FeeParams
}

func NewServer(logger *slog.Logger, agreements AgreementService, mirror AgreementLister, accounts AuthService, disputes DisputeService, feeParams func() FeeParams) *Server {
	if feeParams == nil {
		feeParams = func() FeeParams { return FeeParams{} }
	}
	return &Server{
		logger:     logger,
		agreements: agreements,
		mirror:     mirror,
		accounts:   accounts,
		disputes:   disputes,
		feeParams:  feeParams,
	}
}

// Router builds the route tree. Auth endpoints are open; everything else
// sits behind the JWT middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.logger))

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)
	r.Get("/api/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/api/me", s.handleMe)
		r.Post("/api/me/wallet", s.handleLinkWallet)
		r.Post("/api/me/encryption-key", s.handleRegisterEncryptionKey)
		r.Post("/api/me/profile", s.handlePublishProfile)

		r.Get("/api/fee/quote", s.handleFeeQuote)

		r.Post("/api/agreements", s.handleCreateAgreement)
		r.Get("/api/agreements", s.handleListAgreements)
		r.Get("/api/agreements/{id}", s.handleGetAgreement)
		r.Post("/api/agreements/{id}/deposit", s.verbHandler(func(ctx context.Context, id uint64, _ verbRequest) error {
			return s.agreements.Deposit(ctx, id)
		}))
		r.Post("/api/agreements/{id}/approve", s.verbHandler(func(ctx context.Context, id uint64, _ verbRequest) error {
			return s.agreements.Approve(ctx, id)
		}))
		r.Post("/api/agreements/{id}/reject", s.verbHandler(func(ctx context.Context, id uint64, req verbRequest) error {
			return s.agreements.Reject(ctx, id, req.Reason)
		}))
		r.Post("/api/agreements/{id}/claim", s.verbHandler(func(ctx context.Context, id uint64, _ verbRequest) error {
			return s.agreements.Claim(ctx, id)
		}))
		r.Post("/api/agreements/{id}/cancel", s.verbHandler(func(ctx context.Context, id uint64, _ verbRequest) error {
			return s.agreements.Cancel(ctx, id)
		}))
		r.Post("/api/agreements/{id}/dispute", s.handleRaiseDispute)
		r.Post("/api/agreements/{id}/proofs", s.handleSubmitProof)
		r.Get("/api/agreements/{id}/proofs", s.handleListProofs)
		r.Get("/api/agreements/{id}/timeline", s.handleTimeline)

		r.Get("/api/disputes", s.handleListDisputes)
		r.Patch("/api/disputes/{id}", s.handleResolveDispute)
	})

	return r
}

// Run serves until SIGINT/SIGTERM, then drains within shutdownTimeout.
func (s *Server) Run(addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("httpapi: serve: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFeeQuote(w http.ResponseWriter, r *http.Request) {
	deposit, err := money.Parse(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	params := s.feeParams()
	quote, err := fee.Estimate(deposit, params.Bps, params.Bounds)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	resp := feeQuoteResponse{
		Deposit: deposit.String(),
		Fee:     quote.Fee.String(),
		Pending: quote.Pending,
	}
	if !quote.Pending {
		total := quote.Total.String()
		resp.Total = &total
	}
	writeJSON(w, http.StatusOK, resp)
}
