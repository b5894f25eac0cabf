package services

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/budget"
	"tally/internal/core"
	"tally/internal/cycle"
	"tally/internal/ledger"
	"tally/internal/storage"
)

// Operation names carried by balance change events.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// Publisher announces committed ledger changes. *amqp.Client implements it.
type Publisher interface {
	PublishBalanceChanged(ctx context.Context, operation string, result ledger.Result) error
	PublishDriftDetected(ctx context.Context, report ledger.Report) error
}

// LedgerService orchestrates ledger operations, cycle settings and event
// publishing. Publishing failures never fail a committed operation.
type LedgerService struct {
	ledger       *ledger.Ledger
	repo         *storage.Repository
	publisher    Publisher
	defaultCycle cycle.Setting
}

// NewLedgerService wires the service. publisher may be nil to disable events.
func NewLedgerService(l *ledger.Ledger, repo *storage.Repository, publisher Publisher, defaultCycle cycle.Setting) *LedgerService {
	return &LedgerService{
		ledger:       l,
		repo:         repo,
		publisher:    publisher,
		defaultCycle: defaultCycle,
	}
}

func (s *LedgerService) Accounts(ctx context.Context) ([]core.Account, error) {
	return s.ledger.Accounts(ctx)
}

func (s *LedgerService) Transactions(ctx context.Context) ([]core.Transaction, error) {
	return s.ledger.Transactions(ctx)
}

func (s *LedgerService) BalanceLogs(ctx context.Context, accountID string) ([]core.BalanceLogEntry, error) {
	return s.ledger.BalanceLogs(ctx, accountID)
}

// ImportAccounts adds new accounts and renames existing ones. Stored
// balances are never overwritten.
func (s *LedgerService) ImportAccounts(ctx context.Context, accounts []core.Account) (ledger.ImportResult, error) {
	res, err := s.ledger.ImportAccounts(ctx, accounts)
	if err != nil {
		return ledger.ImportResult{}, fmt.Errorf("import accounts: %w", err)
	}
	return res, nil
}

func (s *LedgerService) CreateTransaction(ctx context.Context, tx core.Transaction) (ledger.Result, error) {
	res, err := s.ledger.ApplyCreate(ctx, tx)
	if err != nil {
		return ledger.Result{}, err
	}
	s.publishBalanceChanged(ctx, OperationCreate, res)
	return res, nil
}

// UpdateTransaction applies updated in place of old. old must match the
// logged version.
func (s *LedgerService) UpdateTransaction(ctx context.Context, old, updated core.Transaction) (ledger.Result, error) {
	res, err := s.ledger.ApplyUpdate(ctx, old, updated)
	if err != nil {
		return ledger.Result{}, err
	}
	s.publishBalanceChanged(ctx, OperationUpdate, res)
	return res, nil
}

// ReplaceTransaction updates the logged transaction with the same ID as
// updated, using the logged version as the old one.
func (s *LedgerService) ReplaceTransaction(ctx context.Context, updated core.Transaction) (ledger.Result, error) {
	old, err := s.transaction(ctx, updated.ID)
	if err != nil {
		return ledger.Result{}, err
	}
	return s.UpdateTransaction(ctx, old, updated)
}

// DeleteTransaction removes tx after checking it matches the logged version.
func (s *LedgerService) DeleteTransaction(ctx context.Context, tx core.Transaction) (ledger.Result, error) {
	res, err := s.ledger.ApplyDelete(ctx, tx)
	if err != nil {
		return ledger.Result{}, err
	}
	s.publishBalanceChanged(ctx, OperationDelete, res)
	return res, nil
}

func (s *LedgerService) DeleteTransactionByID(ctx context.Context, id string) (ledger.Result, error) {
	res, err := s.ledger.Delete(ctx, id)
	if err != nil {
		return ledger.Result{}, err
	}
	s.publishBalanceChanged(ctx, OperationDelete, res)
	return res, nil
}

// Audit runs a read-only consistency check and publishes drift if found.
func (s *LedgerService) Audit(ctx context.Context) (ledger.Report, error) {
	report, err := s.ledger.Audit(ctx)
	if err != nil {
		return ledger.Report{}, err
	}
	if !report.Consistent {
		s.publishDrift(ctx, report)
	}
	return report, nil
}

// Repair resets drifted balances to their theoretical values.
func (s *LedgerService) Repair(ctx context.Context) (ledger.RepairReport, error) {
	return s.ledger.Repair(ctx)
}

// CycleSetting returns the stored setting, falling back to the configured
// default when none has been saved.
func (s *LedgerService) CycleSetting(ctx context.Context) (cycle.Setting, error) {
	setting, ok, err := s.repo.CycleSetting(ctx)
	if err != nil {
		return cycle.Setting{}, fmt.Errorf("load cycle setting: %w", err)
	}
	if !ok {
		return s.defaultCycle, nil
	}
	return setting, nil
}

func (s *LedgerService) SaveCycleSetting(ctx context.Context, setting cycle.Setting) error {
	if err := s.repo.SaveCycleSetting(ctx, setting); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Cycle setting saved", "cycle", setting.Describe())
	return nil
}

// CurrentCycle resolves the window containing ref under the active setting.
func (s *LedgerService) CurrentCycle(ctx context.Context, ref core.Date) (cycle.Setting, cycle.Window, error) {
	setting, err := s.CycleSetting(ctx)
	if err != nil {
		return cycle.Setting{}, cycle.Window{}, err
	}
	w, err := cycle.Resolve(setting, ref)
	if err != nil {
		return cycle.Setting{}, cycle.Window{}, err
	}
	return setting, w, nil
}

// BudgetProgress evaluates defs against the logged transactions.
func (s *LedgerService) BudgetProgress(ctx context.Context, defs []budget.Definition, ref core.Date) ([]budget.Snapshot, budget.Summary, error) {
	setting, err := s.CycleSetting(ctx)
	if err != nil {
		return nil, budget.Summary{}, err
	}
	txs, err := s.ledger.Transactions(ctx)
	if err != nil {
		return nil, budget.Summary{}, err
	}
	snapshots, err := budget.ComputeAll(defs, setting, ref, txs)
	if err != nil {
		return nil, budget.Summary{}, err
	}
	return snapshots, budget.Summarize(snapshots), nil
}

func (s *LedgerService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *LedgerService) transaction(ctx context.Context, id string) (core.Transaction, error) {
	txs, err := s.ledger.Transactions(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	for _, tx := range txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %q: %w", id, core.ErrTransactionNotFound)
}

func (s *LedgerService) publishBalanceChanged(ctx context.Context, operation string, res ledger.Result) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping balance change event")
		return
	}
	if err := s.publisher.PublishBalanceChanged(ctx, operation, res); err != nil {
		slog.ErrorContext(ctx, "Failed to publish balance change",
			"operation", operation,
			"transaction_id", res.Transaction.ID,
			"error", err)
	}
}

func (s *LedgerService) publishDrift(ctx context.Context, report ledger.Report) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping drift event",
			"mismatches", len(report.Mismatches))
		return
	}
	if err := s.publisher.PublishDriftDetected(ctx, report); err != nil {
		slog.ErrorContext(ctx, "Failed to publish drift report", "error", err)
	}
}

// Close releases the store.
func (s *LedgerService) Close() error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Close(); err != nil {
		return fmt.Errorf("close ledger service: %w", err)
	}
	return nil
}
