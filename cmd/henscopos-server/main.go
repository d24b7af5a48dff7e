// Command henscopos-server runs the reconciliation server devices sync with.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/catalog"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/config"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/logger"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/server"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "henscopos-server",
		Short:         "HenscoPOS reconciliation server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (yaml)")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	var ledgerOpts []server.LedgerOption
	if cfg.Serve.TaxRate.IsPositive() {
		ledgerOpts = append(ledgerOpts, server.WithTaxRate(cfg.Serve.TaxRate))
	}
	ledger := server.NewLedger(ledgerOpts...)
	ledger.Seed(cat)

	opts := []server.Option{
		server.WithLogger(log),
		server.WithJWTSecret(cfg.Serve.JWTSecret),
		server.WithAllowedOrigins(cfg.Serve.AllowedOrigins),
	}
	if cfg.Serve.RedisURL != "" {
		rdb, err := server.OpenRedis(ctx, cfg.Serve.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts = append(opts, server.WithCache(server.NewRedisCache(rdb, server.DefaultCacheTTL)))
		log.Info("idempotency cache on redis")
	}
	if cfg.Serve.JWTSecret == "" {
		log.Warn("serve.jwt_secret is empty, /api is unauthenticated")
	}

	srv := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           server.New(ledger, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", cfg.Serve.Addr),
			zap.Int("stores", len(cat.Stores)), zap.Int("products", len(cat.Products)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen %s: %w", cfg.Serve.Addr, err)
		}
		return nil
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exiting")
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
