package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tally/internal/amqp"
	"tally/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend opens the configured store and, when an AMQP URL is set,
// connects to the broker. A broker that cannot be reached is logged and
// skipped; the ledger works without events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	kv, closeKV, err := f.openStore(ctx, config)
	if err != nil {
		return nil, err
	}

	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			amqpClient = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	cleanup := func() error {
		var errs []error
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("amqp: %w", err))
			}
		}
		if closeKV != nil {
			if err := closeKV(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
		}
		return errors.Join(errs...)
	}

	f.logger.Info("Initialized store backend",
		"backend", config.Type,
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Repository: storage.NewRepository(kv),
		AMQP:       amqpClient,
		Cleanup:    cleanup,
	}, nil
}

func (f *DefaultFactory) openStore(ctx context.Context, config Config) (storage.KV, CleanupFunc, error) {
	switch config.Type {
	case SQLiteBackend:
		store, err := storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Opened SQLite store", "db_path", config.SQLiteDBPath)
		return store, store.Close, nil
	case PostgresBackend:
		store, err := storage.NewPostgresStore(ctx, config.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
		}
		f.logger.Info("Opened PostgreSQL store")
		return store, store.Close, nil
	case MemoryBackend:
		f.logger.Warn("Using in-memory store, data is lost on exit")
		return storage.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
