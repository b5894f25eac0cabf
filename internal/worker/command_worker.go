package worker

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/ledger"
)

// Ledger is the part of the ledger service the worker drives.
type Ledger interface {
	Audit(ctx context.Context) (ledger.Report, error)
	Repair(ctx context.Context) (ledger.RepairReport, error)
}

// CommandWorker executes audit and repair commands received over AMQP.
type CommandWorker struct {
	ledger   Ledger
	currency string
}

func NewCommandWorker(l Ledger, currency string) *CommandWorker {
	return &CommandWorker{ledger: l, currency: currency}
}

// HandleCommand dispatches one command message. It matches amqp.CommandHandler.
func (w *CommandWorker) HandleCommand(ctx context.Context, msg *amqp.CommandMessage) error {
	switch msg.Command {
	case amqp.CommandAudit:
		return w.audit(ctx, msg)
	case amqp.CommandRepair:
		return w.repair(ctx, msg)
	default:
		// Unknown commands are not retried.
		slog.WarnContext(ctx, "Ignoring unknown command",
			"message_id", msg.MessageID,
			"command", msg.Command)
		return nil
	}
}

func (w *CommandWorker) audit(ctx context.Context, msg *amqp.CommandMessage) error {
	report, err := w.ledger.Audit(ctx)
	if err != nil {
		return fmt.Errorf("audit ledger: %w", err)
	}

	slog.InfoContext(ctx, "Audit command completed",
		"message_id", msg.MessageID,
		"requested_by", msg.RequestedBy,
		"consistent", report.Consistent,
		"mismatches", len(report.Mismatches),
		"orphans", len(report.Orphans))
	return nil
}

func (w *CommandWorker) repair(ctx context.Context, msg *amqp.CommandMessage) error {
	report, err := w.ledger.Repair(ctx)
	if err != nil {
		return fmt.Errorf("repair ledger: %w", err)
	}

	for _, m := range report.Repaired {
		slog.InfoContext(ctx, "Account repaired",
			"message_id", msg.MessageID,
			"account_id", m.AccountID,
			"from", core.FormatMinor(m.Stored, w.currency),
			"to", core.FormatMinor(m.Theoretical, w.currency))
	}

	slog.InfoContext(ctx, "Repair command completed",
		"message_id", msg.MessageID,
		"requested_by", msg.RequestedBy,
		"repaired", len(report.Repaired),
		"failed", len(report.Failed))
	return nil
}
