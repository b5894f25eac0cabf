package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/cycle"
)

var ErrMalformedRecord = errors.New("malformed record")

// Repository maps the KV collections to canonical core types. Records
// written by older clients may carry "_id" instead of "id" and numeric
// fields as strings or floats; they are normalized on read and always
// written back in canonical shape.
type Repository struct {
	kv KV
}

func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

// Commit is a set of collection values written as one unit.
type Commit struct {
	Accounts     []core.Account
	Transactions []core.Transaction
	// NewLogs are appended to the existing balance log.
	NewLogs []core.BalanceLogEntry
}

func (r *Repository) Accounts(ctx context.Context) ([]core.Account, error) {
	raws, err := r.list(ctx, KeyAccounts)
	if err != nil {
		return nil, err
	}
	accounts := make([]core.Account, 0, len(raws))
	for i, raw := range raws {
		var rec struct {
			core.Account
			LegacyID       string      `json:"_id"`
			Balance        json.Number `json:"balance"`
			InitialBalance json.Number `json:"initialBalance"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: account %d: %v", ErrMalformedRecord, i, err)
		}
		a := rec.Account
		if a.ID, err = canonicalID(rec.ID, rec.LegacyID); err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		if a.Balance, err = minorUnits(rec.Balance); err != nil {
			return nil, fmt.Errorf("account %s balance: %w", a.ID, err)
		}
		if a.InitialBalance, err = minorUnits(rec.InitialBalance); err != nil {
			return nil, fmt.Errorf("account %s initial balance: %w", a.ID, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (r *Repository) Transactions(ctx context.Context) ([]core.Transaction, error) {
	raws, err := r.list(ctx, KeyTransactions)
	if err != nil {
		return nil, err
	}
	txs := make([]core.Transaction, 0, len(raws))
	for i, raw := range raws {
		var rec struct {
			core.Transaction
			LegacyID string      `json:"_id"`
			Amount   json.Number `json:"amount"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: transaction %d: %v", ErrMalformedRecord, i, err)
		}
		tx := rec.Transaction
		if tx.ID, err = canonicalID(rec.ID, rec.LegacyID); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		if tx.Amount, err = minorUnits(rec.Amount); err != nil {
			return nil, fmt.Errorf("transaction %s amount: %w", tx.ID, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (r *Repository) BalanceLogs(ctx context.Context) ([]core.BalanceLogEntry, error) {
	raws, err := r.list(ctx, KeyBalanceLogs)
	if err != nil {
		return nil, err
	}
	entries := make([]core.BalanceLogEntry, 0, len(raws))
	for i, raw := range raws {
		var rec struct {
			core.BalanceLogEntry
			LegacyID string `json:"_id"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: balance log %d: %v", ErrMalformedRecord, i, err)
		}
		e := rec.BalanceLogEntry
		if e.ID, err = canonicalID(rec.ID, rec.LegacyID); err != nil {
			return nil, fmt.Errorf("balance log %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SaveAccounts replaces the account collection. Accounts are created by
// callers outside the ledger, so this is the only path that writes them
// without a balance log entry.
func (r *Repository) SaveAccounts(ctx context.Context, accounts []core.Account) error {
	seen := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		if err := a.Validate(); err != nil {
			return err
		}
		if seen[a.ID] {
			return &core.ValidationError{Field: "id", Reason: fmt.Sprintf("duplicate account %q", a.ID)}
		}
		seen[a.ID] = true
	}
	b, err := encodeList(accounts)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, KeyAccounts, b)
}

// Commit writes accounts and transactions and appends NewLogs in one unit.
func (r *Repository) Commit(ctx context.Context, c Commit) error {
	logs, err := r.BalanceLogs(ctx)
	if err != nil {
		return fmt.Errorf("load balance logs: %w", err)
	}
	logs = append(logs, c.NewLogs...)

	accounts, err := encodeList(c.Accounts)
	if err != nil {
		return err
	}
	txs, err := encodeList(c.Transactions)
	if err != nil {
		return err
	}
	entries, err := encodeList(logs)
	if err != nil {
		return err
	}

	return SetAll(ctx, r.kv, []Entry{
		{Key: KeyAccounts, Value: accounts},
		{Key: KeyBalanceLogs, Value: entries},
		{Key: KeyTransactions, Value: txs},
	})
}

// CycleSetting returns the stored cycle setting; ok is false when none
// has been saved yet.
func (r *Repository) CycleSetting(ctx context.Context) (s cycle.Setting, ok bool, err error) {
	raw, err := r.kv.Get(ctx, KeyCycleSetting)
	if errors.Is(err, ErrNotFound) || (err == nil && len(raw) == 0) {
		return cycle.Setting{}, false, nil
	}
	if err != nil {
		return cycle.Setting{}, false, fmt.Errorf("get cycle setting: %w", err)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return cycle.Setting{}, false, fmt.Errorf("%w: cycle setting: %v", ErrMalformedRecord, err)
	}
	return s, true, nil
}

func (r *Repository) SaveCycleSetting(ctx context.Context, s cycle.Setting) error {
	if err := s.Validate(); err != nil {
		return &core.ValidationError{Field: "cycle", Reason: err.Error()}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode cycle setting: %w", err)
	}
	return r.kv.Set(ctx, KeyCycleSetting, b)
}

// Ping checks the backing store when it supports it.
func (r *Repository) Ping(ctx context.Context) error {
	if p, ok := r.kv.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (r *Repository) Close() error {
	if c, ok := r.kv.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Repository) list(ctx context.Context, key string) ([]json.RawMessage, error) {
	raw, err := r.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, fmt.Errorf("%w: %s is not a list: %v", ErrMalformedRecord, key, err)
	}
	return raws, nil
}

func encodeList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return b, nil
}

func canonicalID(id, legacy string) (string, error) {
	if id = strings.TrimSpace(id); id != "" {
		return id, nil
	}
	if legacy = strings.TrimSpace(legacy); legacy != "" {
		return legacy, nil
	}
	return "", fmt.Errorf("%w: missing id", ErrMalformedRecord)
}

var (
	maxMinor = decimal.NewFromInt(1<<63 - 1)
	minMinor = decimal.NewFromInt(-1 << 63)
)

// minorUnits accepts any JSON number or numeric string that is a whole
// number of minor units. Missing values are zero.
func minorUnits(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrMalformedRecord, n)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: %s is not a whole number of minor units", ErrMalformedRecord, n)
	}
	if d.GreaterThan(maxMinor) || d.LessThan(minMinor) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrMalformedRecord, n)
	}
	return d.IntPart(), nil
}
