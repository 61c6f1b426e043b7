// taghive-reindex is the offline reconciliation job. It rebuilds
// searchable rows (all of them in full mode, absent or stale ones in
// missing mode) and sweeps expired sessions and stale rate-limit rows.
//
// Usage:
//
//	./taghive-reindex -mode missing        # default
//	./taghive-reindex -mode full -config /etc/taghive.json
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/clock"
	"github.com/taghive/taghive/internal/config"
	"github.com/taghive/taghive/internal/database"
	"github.com/taghive/taghive/internal/search"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	mode := flag.String("mode", search.ModeMissing, "reconcile mode: full or missing")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck // flush on exit

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.Open(ctx, cfg.ConnString())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	clk := clock.System{}

	rec := search.NewReconciler(db.Pool, clk, logger, cfg.Auxillary.EnableSearchablesUpdates)
	rebuilt, err := rec.Run(ctx, *mode)
	if err != nil {
		logger.Fatal("reconcile failed", zap.Error(err))
	}

	sessions, err := auth.NewService(db.Pool, clk, cfg.TokenLifetime()).DeleteExpired(ctx)
	if err != nil {
		logger.Fatal("session sweep failed", zap.Error(err))
	}
	ledger, err := auth.NewLedger(db.Pool, clk).PurgeStale(ctx)
	if err != nil {
		logger.Fatal("rate-limit sweep failed", zap.Error(err))
	}

	logger.Info("done",
		zap.Int("searchables_rebuilt", rebuilt),
		zap.Int64("sessions_removed", sessions),
		zap.Int64("rate_limits_removed", ledger))
}
