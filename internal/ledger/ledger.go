// Package ledger keeps account balances consistent with the transaction log.
//
// Every mutation validates its input, projects the resulting balances on an
// in-memory copy, and persists accounts, balance log entries and the
// transaction log as one unit. A failed call leaves the store untouched.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/storage"
)

type Ledger struct {
	repo *storage.Repository

	// All accounts live under one store key, so a single lock is the
	// only way to rule out lost updates.
	mu sync.RWMutex

	forbidOverdraft bool
	tolerance       int64
	currency        string
	now             func() time.Time
	newID           func() string
}

type Option func(*Ledger)

// WithOverdraftGuard rejects operations that would leave a non-credit
// account below zero.
func WithOverdraftGuard(enabled bool) Option {
	return func(l *Ledger) { l.forbidOverdraft = enabled }
}

// WithTolerance sets the absolute drift the auditor accepts. Zero means
// balances must match exactly.
func WithTolerance(minorUnits int64) Option {
	return func(l *Ledger) {
		if minorUnits < 0 {
			minorUnits = -minorUnits
		}
		l.tolerance = minorUnits
	}
}

// WithCurrency sets the currency used when amounts are logged.
func WithCurrency(code string) Option {
	return func(l *Ledger) { l.currency = code }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

func New(repo *storage.Repository, opts ...Option) *Ledger {
	l := &Ledger{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result lists the balance log entries written by one operation.
type Result struct {
	Transaction core.Transaction       `json:"transaction"`
	Entries     []core.BalanceLogEntry `json:"entries"`
}

func (l *Ledger) Accounts(ctx context.Context) ([]core.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.repo.Accounts(ctx)
}

func (l *Ledger) Transactions(ctx context.Context) ([]core.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.repo.Transactions(ctx)
}

// BalanceLogs returns the audit trail, optionally filtered by account.
func (l *Ledger) BalanceLogs(ctx context.Context, accountID string) ([]core.BalanceLogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries, err := l.repo.BalanceLogs(ctx)
	if err != nil || accountID == "" {
		return entries, err
	}
	filtered := entries[:0]
	for _, e := range entries {
		if e.AccountID == accountID {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// state is an in-memory projection of the store.
type state struct {
	accounts []core.Account
	index    map[string]int
	original map[string]int64
	txs      []core.Transaction
	entries  []core.BalanceLogEntry
}

func (l *Ledger) load(ctx context.Context) (*state, error) {
	accounts, err := l.repo.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	txs, err := l.repo.Transactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	st := &state{
		accounts: accounts,
		index:    make(map[string]int, len(accounts)),
		original: make(map[string]int64, len(accounts)),
		txs:      txs,
	}
	for i, a := range accounts {
		st.index[a.ID] = i
		st.original[a.ID] = a.Balance
	}
	return st, nil
}

func (st *state) findTransaction(id string) int {
	for i, tx := range st.txs {
		if tx.ID == id {
			return i
		}
	}
	return -1
}

// checkReferences fails with UnknownAccountError before anything is projected.
func (st *state) checkReferences(effects []Effect) error {
	for _, e := range effects {
		if _, ok := st.index[e.AccountID]; !ok {
			return &core.UnknownAccountError{AccountID: e.AccountID}
		}
	}
	return nil
}

// project applies effects to the in-memory accounts. A delta that would
// overflow a balance fails before anything is committed.
func (l *Ledger) project(st *state, txID string, effects []Effect) error {
	ts := l.now().UTC()
	for _, e := range effects {
		a := &st.accounts[st.index[e.AccountID]]
		balance, ok := addBalance(a.Balance, e.Delta)
		if !ok {
			return &core.ValidationError{
				Field:  "amount",
				Reason: fmt.Sprintf("would overflow the balance of account %s", e.AccountID),
			}
		}
		a.Balance = balance
		st.entries = append(st.entries, core.BalanceLogEntry{
			ID:                   l.newID(),
			AccountID:            e.AccountID,
			Delta:                e.Delta,
			RelatedTransactionID: txID,
			ResultingBalance:     a.Balance,
			Reason:               e.Reason,
			Timestamp:            ts,
		})
	}
	return nil
}

// addBalance adds delta to balance, reporting false on int64 overflow.
func addBalance(balance, delta int64) (int64, bool) {
	sum := balance + delta
	if (delta > 0 && sum < balance) || (delta < 0 && sum > balance) {
		return 0, false
	}
	return sum, true
}

// checkOverdraft compares projected balances with the loaded ones, so an
// update whose reversal dips below zero only to recover is accepted.
func (l *Ledger) checkOverdraft(st *state) error {
	if !l.forbidOverdraft {
		return nil
	}
	for _, a := range st.accounts {
		before := st.original[a.ID]
		if a.Type == core.Credit || a.Balance >= 0 || a.Balance >= before {
			continue
		}
		return &core.InsufficientFundsError{AccountID: a.ID, Balance: before, Delta: a.Balance - before}
	}
	return nil
}

func (l *Ledger) commit(ctx context.Context, st *state) error {
	err := l.repo.Commit(ctx, storage.Commit{
		Accounts:     st.accounts,
		Transactions: st.txs,
		NewLogs:      st.entries,
	})
	if err != nil {
		return fmt.Errorf("commit ledger changes: %w", err)
	}
	return nil
}
