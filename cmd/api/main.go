package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"escrowflow/agreement"
	"escrowflow/auth"
	"escrowflow/config"
	"escrowflow/db"
	"escrowflow/dispute"
	"escrowflow/fee"
	"escrowflow/httpapi"
	"escrowflow/ledger"
	"escrowflow/money"
	"escrowflow/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var handler slog.Handler
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	logger := slog.New(handler)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("bootstrap database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// MemoryLedger stands in for the contract until the deployment
	// endpoint ships a JSON-RPC client.
	chain := ledger.NewMemoryLedger()
	files := storage.NewMemoryStore()

	mirror := agreement.NewMirror(pool)
	agreements := agreement.NewService(chain, files, mirror)
	refresher := agreement.NewRefresher(chain, mirror)

	authRepo := auth.NewRepository(pool)
	accounts := auth.NewService(authRepo, chain, cfg.JWTSecret)

	disputes := dispute.NewService(dispute.NewRepository(pool))

	feeParams := buildFeeParams(cfg, logger)

	go runSync(ctx, logger, refresher, authRepo, cfg.SyncInterval)

	server := httpapi.NewServer(logger, agreements, mirror, accounts, disputes, feeParams)
	if err := server.Run(cfg.ListenAddr, cfg.ShutdownTimeout); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// buildFeeParams parses the configured fee clamps once. Empty values leave
// the corresponding bound unknown so quotes stay pending.
func buildFeeParams(cfg config.Config, logger *slog.Logger) func() httpapi.FeeParams {
	var bounds fee.Bounds
	if cfg.FeeMinUSD != "" {
		min, err := money.Parse(cfg.FeeMinUSD)
		if err != nil {
			logger.Warn("invalid fee minimum, leaving unbounded", slog.String("value", cfg.FeeMinUSD))
		} else {
			bounds.Min = &min
		}
	}
	if cfg.FeeMaxUSD != "" {
		max, err := money.Parse(cfg.FeeMaxUSD)
		if err != nil {
			logger.Warn("invalid fee maximum, leaving unbounded", slog.String("value", cfg.FeeMaxUSD))
		} else {
			bounds.Max = &max
		}
	}
	params := httpapi.FeeParams{Bps: cfg.FeeBps, Bounds: bounds}
	return func() httpapi.FeeParams { return params }
}

// runSync periodically re-mirrors every linked wallet's agreements.
func runSync(ctx context.Context, logger *slog.Logger, refresher *agreement.Refresher, repo *auth.PGRepository, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		wallets, err := repo.ListWalletAddresses(ctx)
		if err != nil {
			logger.Error("list wallets for sync", slog.String("error", err.Error()))
			continue
		}
		for _, wallet := range wallets {
			if err := refresher.RefreshParticipant(ctx, wallet); err != nil {
				logger.Error("refresh participant",
					slog.String("wallet", wallet),
					slog.String("error", err.Error()))
			}
		}
	}
}
