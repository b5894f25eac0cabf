package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"tally/internal/config"
)

func TestBackendType_IsValid(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		if !bt.IsValid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	if BackendType("sheets").IsValid() {
		t.Error("sheets should not be a valid backend")
	}
	if got := strings.Join(GetBackendTypeStrings(), ","); got != "memory,sqlite,postgres" {
		t.Errorf("GetBackendTypeStrings() = %s", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost/", AMQPExchange: "tally"}, true},
		{"unknown type", Config{Type: "sheets"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	cfg, err := FromAppConfig(&config.Config{StoreBackend: "postgres", PostgresURL: "postgres://db/tally", AMQPQueue: "q"})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != PostgresBackend || cfg.PostgresURL != "postgres://db/tally" || cfg.AMQPQueue != "q" {
		t.Errorf("unexpected backend config %+v", cfg)
	}

	if _, err := FromAppConfig(&config.Config{StoreBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	factory := NewFactory(nil)

	t.Run("memory", func(t *testing.T) {
		result, err := factory.CreateBackend(ctx, Config{Type: MemoryBackend})
		if err != nil {
			t.Fatalf("CreateBackend: %v", err)
		}
		defer result.Cleanup()
		if result.AMQP != nil {
			t.Error("AMQP client should be nil without a URL")
		}
		accounts, err := result.Repository.Accounts(ctx)
		if err != nil || len(accounts) != 0 {
			t.Fatalf("fresh store: %v, %v", accounts, err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "tally.db")
		result, err := factory.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
		if err != nil {
			t.Fatalf("CreateBackend: %v", err)
		}
		if err := result.Repository.Ping(ctx); err != nil {
			t.Errorf("Ping: %v", err)
		}
		if err := result.Cleanup(); err != nil {
			t.Errorf("Cleanup: %v", err)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		if _, err := factory.CreateBackend(ctx, Config{Type: SQLiteBackend}); err == nil {
			t.Error("expected error for missing sqlite path")
		}
	})
}
