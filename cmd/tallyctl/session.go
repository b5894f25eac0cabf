package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"tally/internal/backend"
	"tally/internal/cli"
	"tally/internal/config"
	"tally/internal/core"
	tallylog "tally/internal/log"
	"tally/internal/services"
)

// session is an opened store plus the service built on it.
type session struct {
	cfg     *config.Config
	backend *backend.BackendResult
	svc     *services.LedgerService
}

// openSession loads configuration and opens the store. Logs go to stderr
// so command output stays clean.
func openSession(ctx context.Context, withAMQP bool) (*session, error) {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	logger := cli.SetupLogger(cfg.LogLevel, os.Stderr).WithComponent(tallylog.ComponentApp)

	b, err := cli.OpenBackend(ctx, logger, cfg, withAMQP)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, backend: b, svc: cli.NewLedgerService(cfg, b)}, nil
}

func (s *session) Close() {
	if err := s.backend.Cleanup(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

func (s *session) money(amount int64) string {
	return core.FormatMinor(amount, s.cfg.Currency)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
