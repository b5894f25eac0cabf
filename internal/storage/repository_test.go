package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tally/internal/core"
	"tally/internal/cycle"
)

func TestRepositoryNormalizesLegacyRecords(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	_ = kv.Set(ctx, KeyAccounts, []byte(`[
		{"_id":"a","name":"Wallet","type":"cash","balance":4000,"initialBalance":"5000"},
		{"id":"b","_id":"ignored","name":"Bank","balance":3000.0}
	]`))
	_ = kv.Set(ctx, KeyTransactions, []byte(`[
		{"_id":"t1","type":"expense","amount":"1000","accountId":"a","date":"2024-02-15T08:00:00Z","category":"Food"}
	]`))

	repo := NewRepository(kv)
	accounts, err := repo.Accounts(ctx)
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].ID != "a" || accounts[0].Balance != 4000 || accounts[0].InitialBalance != 5000 {
		t.Fatalf("unexpected first account %+v", accounts[0])
	}
	if accounts[1].ID != "b" || accounts[1].Balance != 3000 || accounts[1].InitialBalance != 0 {
		t.Fatalf("unexpected second account %+v", accounts[1])
	}

	txs, err := repo.Transactions(ctx)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "t1" || txs[0].Amount != 1000 || txs[0].Date.String() != "2024-02-15" {
		t.Fatalf("unexpected transactions %+v", txs)
	}
}

func TestRepositoryRejectsMalformedRecords(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"fractional balance": `[{"id":"a","balance":10.5}]`,
		"missing id":         `[{"name":"x","balance":1}]`,
		"not a list":         `{"id":"a"}`,
		"non numeric":        `[{"id":"a","balance":"lots"}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			kv := NewMemoryStore()
			_ = kv.Set(ctx, KeyAccounts, []byte(raw))
			_, err := NewRepository(kv).Accounts(ctx)
			if !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}
}

func TestRepositoryEmptyCollections(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStore())
	accounts, err := repo.Accounts(ctx)
	if err != nil || len(accounts) != 0 {
		t.Fatalf("expected no accounts, got %v, %v", accounts, err)
	}
	if _, ok, err := repo.CycleSetting(ctx); ok || err != nil {
		t.Fatalf("expected no cycle setting, got ok=%v err=%v", ok, err)
	}
}

func TestRepositoryCommitAppendsLogs(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	repo := NewRepository(kv)

	first := Commit{
		Accounts: []core.Account{{ID: "a", Balance: 10}},
		NewLogs:  []core.BalanceLogEntry{{ID: "l1", AccountID: "a", Delta: 10}},
	}
	if err := repo.Commit(ctx, first); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	second := Commit{
		Accounts:     []core.Account{{ID: "a", Balance: 5}},
		Transactions: []core.Transaction{{ID: "t", Type: core.Expense, Amount: 5, AccountID: "a"}},
		NewLogs:      []core.BalanceLogEntry{{ID: "l2", AccountID: "a", Delta: -5}},
	}
	if err := repo.Commit(ctx, second); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	logs, _ := repo.BalanceLogs(ctx)
	if len(logs) != 2 || logs[0].ID != "l1" || logs[1].ID != "l2" {
		t.Fatalf("unexpected logs %+v", logs)
	}
	raw, _ := kv.Get(ctx, KeyTransactions)
	if string(raw) == "null" {
		t.Fatalf("collections must encode as lists")
	}
}

func TestRepositorySaveAccountsValidates(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStore())
	err := repo.SaveAccounts(ctx, []core.Account{{ID: "a"}, {ID: "a"}})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for duplicate, got %v", err)
	}
	if err := repo.SaveAccounts(ctx, []core.Account{{ID: "a", Type: core.Bank, Balance: 1}}); err != nil {
		t.Fatalf("SaveAccounts: %v", err)
	}
}

func TestRepositoryCycleSetting(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStore())
	if err := repo.SaveCycleSetting(ctx, cycle.SalaryFrom(40)); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := repo.SaveCycleSetting(ctx, cycle.SalaryFrom(15)); err != nil {
		t.Fatalf("SaveCycleSetting: %v", err)
	}
	s, ok, err := repo.CycleSetting(ctx)
	if err != nil || !ok || s != cycle.SalaryFrom(15) {
		t.Fatalf("unexpected setting %+v ok=%v err=%v", s, ok, err)
	}
}

type flakyKV struct {
	*MemoryStore
	failKey string
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func TestSetAllRestoresOnFailure(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{MemoryStore: NewMemoryStore(), failKey: "c"}
	_ = kv.MemoryStore.Set(ctx, "a", []byte("old-a"))

	err := SetAll(ctx, noBatch{kv}, []Entry{
		{Key: "a", Value: []byte("new-a")},
		{Key: "b", Value: []byte("new-b")},
		{Key: "c", Value: []byte("new-c")},
	})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if v, _ := kv.Get(ctx, "a"); string(v) != "old-a" {
		t.Fatalf("a not restored: %q", v)
	}
	if v, _ := kv.Get(ctx, "b"); len(v) != 0 {
		t.Fatalf("b should be back to empty, got %q", v)
	}
}

// noBatch exposes only the KV methods.
type noBatch struct{ KV }

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "tally.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.SetMany(ctx, []Entry{{Key: "k", Value: []byte("v2")}, {Key: "j", Value: []byte("w")}}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	if v, _ := store.Get(ctx, "k"); string(v) != "v2" {
		t.Fatalf("expected upsert, got %q", v)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	repo := NewRepository(store)
	if err := repo.SaveAccounts(ctx, []core.Account{{ID: "a", Balance: 7}}); err != nil {
		t.Fatalf("SaveAccounts: %v", err)
	}
	accounts, err := repo.Accounts(ctx)
	if err != nil || len(accounts) != 1 || accounts[0].Balance != 7 {
		t.Fatalf("unexpected accounts %+v (%v)", accounts, err)
	}
}

func TestPgx5URL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@h/db":  "pgx5://u:p@h/db",
		"postgresql://h/db":    "pgx5://h/db",
		"pgx5://already/there": "pgx5://already/there",
	}
	for in, want := range cases {
		if got := pgx5URL(in); got != want {
			t.Errorf("pgx5URL(%q) = %q, want %q", in, got, want)
		}
	}
}
