package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/cli"
	apphttp "tally/internal/http"
	tallylog "tally/internal/log"
	"tally/internal/services"
	"tally/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger("info", os.Stdout)
	cfg := cli.MustLoadConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, os.Stdout)

	b, err := cli.OpenBackend(context.Background(), logger, cfg, true)
	if err != nil {
		logger.Error("Failed to open backend", tallylog.FieldError, err, "backend", cfg.StoreBackend)
		os.Exit(1)
	}
	svc := cli.NewLedgerService(cfg, b)

	var processor *services.AuditProcessor
	if cfg.AuditInterval > 0 {
		processor = services.NewAuditProcessor(svc, services.AuditProcessorConfig{
			Interval:   cfg.AuditInterval,
			RunOnStart: true,
		})
	}

	opts := []apphttp.Option{apphttp.WithLogger(logger.WithComponent(tallylog.ComponentHTTP))}
	if processor != nil {
		opts = append(opts, apphttp.WithAuditProcessor(processor))
	}
	srv := apphttp.NewServer(":"+cfg.Port, svc, opts...)

	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", tallylog.FieldError, err)
		}
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Error("Audit processor stop error", tallylog.FieldError, err)
			}
		}
		if err := b.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", tallylog.FieldError, err)
		}
	})

	if processor != nil {
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start audit processor", tallylog.FieldError, err)
			os.Exit(1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting tally server",
			"port", cfg.Port,
			"backend", cfg.StoreBackend,
			"amqp", b.AMQP != nil,
			"audit_interval", cfg.AuditInterval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if b.AMQP != nil {
		commands := worker.NewCommandWorker(svc, cfg.Currency)
		g.Go(func() error {
			err := b.AMQP.ConsumeCommands(gctx, commands.HandleCommand)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", tallylog.FieldError, err, "port", cfg.Port)
		_ = b.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
