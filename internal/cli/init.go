// Package cli provides common initialization shared by cmd/tally and
// cmd/tallyctl.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tally/internal/backend"
	"tally/internal/config"
	"tally/internal/ledger"
	tallylog "tally/internal/log"
	"tally/internal/services"
)

// SetupLogger initializes structured logging at the given level and sets it
// as the default logger. Unknown levels fall back to info.
func SetupLogger(level string, out io.Writer) *tallylog.Logger {
	cfg := tallylog.DefaultConfig()
	if out != nil {
		cfg.Output = out
	}
	if lvl, err := config.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger := tallylog.New(cfg)
	tallylog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadConfig is LoadAndValidateConfig that exits the process on failure.
func MustLoadConfig(logger *tallylog.Logger) *config.Config {
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		logger.Error("Configuration validation failed", tallylog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenBackend opens the configured store and optional AMQP client.
// withAMQP false skips the broker even when a URL is configured.
func OpenBackend(ctx context.Context, logger *tallylog.Logger, cfg *config.Config, withAMQP bool) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !withAMQP {
		bcfg.AMQPURL = ""
	}
	result, err := backend.NewFactory(logger.WithComponent(tallylog.ComponentStore).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	return result, nil
}

// NewLedgerService builds the ledger with the configured policies on top of
// an opened backend.
func NewLedgerService(cfg *config.Config, b *backend.BackendResult) *services.LedgerService {
	l := ledger.New(b.Repository,
		ledger.WithOverdraftGuard(cfg.ForbidOverdraft),
		ledger.WithTolerance(cfg.AuditTolerance),
		ledger.WithCurrency(cfg.Currency),
	)

	var publisher services.Publisher
	if b.AMQP != nil {
		publisher = b.AMQP
	}
	return services.NewLedgerService(l, b.Repository, publisher, cfg.Cycle)
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. When
// the signal arrives, cleanup runs with a context bounded by timeout.
func GracefulShutdown(logger *tallylog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
