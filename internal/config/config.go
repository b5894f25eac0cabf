package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/spf13/viper"

	"tally/internal/cycle"
)

type Config struct {
	// HTTP Server
	Port string

	// Storage
	StoreBackend string
	SQLiteDBPath string
	PostgresURL  string

	// AMQP; an empty URL disables messaging
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ledger
	AuditInterval   time.Duration
	AuditTolerance  int64
	ForbidOverdraft bool
	Currency        string

	// Cycle is the default accounting cycle until one is saved in the store.
	Cycle cycle.Setting

	LogLevel string
}

// Load reads configuration from the environment and, when TALLY_CONFIG
// names one, a config file. Environment variables win over the file.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "8081")
	v.SetDefault("store_backend", "sqlite")
	v.SetDefault("sqlite_db_path", "./data/tally.db")
	v.SetDefault("postgres_url", "")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "tally")
	v.SetDefault("amqp_queue", "ledger_commands")
	v.SetDefault("audit_interval", time.Hour)
	v.SetDefault("ledger_audit_tolerance", 0)
	v.SetDefault("ledger_forbid_overdraft", false)
	v.SetDefault("currency", "CNY")
	v.SetDefault("cycle_type", string(cycle.Natural))
	v.SetDefault("cycle_start_day", 1)
	v.SetDefault("cycle_start_month", 1)
	v.SetDefault("cycle_end_month", 12)
	v.SetDefault("cycle_end_day", 31)
	v.SetDefault("log_level", "info")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path := os.Getenv("TALLY_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:         v.GetString("port"),
		StoreBackend: strings.ToLower(v.GetString("store_backend")),
		SQLiteDBPath: v.GetString("sqlite_db_path"),
		PostgresURL:  v.GetString("postgres_url"),

		AMQPURL:      v.GetString("amqp_url"),
		AMQPExchange: v.GetString("amqp_exchange"),
		AMQPQueue:    v.GetString("amqp_queue"),

		AuditInterval:   v.GetDuration("audit_interval"),
		AuditTolerance:  v.GetInt64("ledger_audit_tolerance"),
		ForbidOverdraft: v.GetBool("ledger_forbid_overdraft"),
		Currency:        strings.ToUpper(v.GetString("currency")),

		LogLevel: v.GetString("log_level"),
	}

	cfg.Cycle = cycle.Setting{Type: cycle.Type(strings.ToLower(v.GetString("cycle_type")))}
	switch cfg.Cycle.Type {
	case cycle.Salary:
		cfg.Cycle.StartDay = v.GetInt("cycle_start_day")
	case cycle.Custom:
		cfg.Cycle.StartDay = v.GetInt("cycle_start_day")
		cfg.Cycle.StartMonth = v.GetInt("cycle_start_month")
		cfg.Cycle.EndMonth = v.GetInt("cycle_end_month")
		cfg.Cycle.EndDay = v.GetInt("cycle_end_day")
	}

	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.StoreBackend {
	case "memory":
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "postgres":
		if c.PostgresURL == "" {
			errs = append(errs, "PostgreSQL URL cannot be empty when using postgres backend")
		} else if u, err := url.Parse(c.PostgresURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid PostgreSQL URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errs = append(errs, fmt.Sprintf("invalid PostgreSQL URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid store backend '%s': must be one of [memory sqlite postgres]", c.StoreBackend))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// zero disables the periodic audit
	if c.AuditInterval != 0 {
		if c.AuditInterval < time.Second {
			errs = append(errs, fmt.Sprintf("invalid audit interval %v: must be at least 1 second", c.AuditInterval))
		} else if c.AuditInterval > 24*time.Hour {
			errs = append(errs, fmt.Sprintf("invalid audit interval %v: must be at most 24 hours", c.AuditInterval))
		}
	}

	if c.AuditTolerance < 0 {
		errs = append(errs, fmt.Sprintf("invalid audit tolerance %d: must not be negative", c.AuditTolerance))
	}

	if money.GetCurrency(c.Currency) == nil {
		errs = append(errs, fmt.Sprintf("unknown currency code '%s'", c.Currency))
	}

	if err := c.Cycle.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, errors.New("invalid log level '" + s + "': must be debug, info, warn or error")
	}
	return level, nil
}
