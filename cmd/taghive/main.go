// taghive is a personal knowledge base backend: tagged, hierarchically
// composable content objects behind an authenticated JSON API.
//
// It reads configuration from a JSON file, connects to PostgreSQL,
// bootstraps the schema, ensures the built-in admin account, starts the
// async search indexer, and serves HTTP until SIGINT or SIGTERM.
//
// Usage:
//
//	./taghive                    # reads ./config.json, starts server
//	./taghive -config /etc/taghive.json
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
	"github.com/taghive/taghive/internal/server"
	"github.com/taghive/taghive/internal/user"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
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
	logger.Info("starting",
		zap.String("listen", cfg.ListenAddr),
		zap.String("db", cfg.DB.Host+"/"+cfg.DB.Name))

	// Root context cancelled on SIGINT or SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	db, err := database.Open(ctx, cfg.ConnString())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("database connected, schema bootstrapped")

	clk := clock.System{}

	hash, err := auth.HashPassword(cfg.App.DefaultUser.Password)
	if err != nil {
		logger.Fatal("failed to hash default admin password", zap.Error(err))
	}
	if err := user.NewStore(db.Pool, clk).EnsureDefaultAdmin(ctx, cfg.App.DefaultUser.Login, hash); err != nil {
		logger.Fatal("failed to ensure default admin", zap.Error(err))
	}

	indexer := search.NewIndexer(db.Pool, clk, logger, cfg.Auxillary.EnableSearchablesUpdates)
	go indexer.Start(ctx)

	srv := server.New(cfg, db, clk, logger, indexer)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}

	// Let the indexer drain its queue before the pool closes.
	indexer.Wait()
	logger.Info("stopped")
}
