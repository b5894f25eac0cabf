package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/core"
)

// ImportResult counts what an import changed.
type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// ImportAccounts merges accounts into the store. New accounts are added;
// existing ones may change name or type but never balance or
// initialBalance. A new account's balance must equal its initialBalance
// plus whatever the log already attributes to it, so an import never
// introduces drift. Accounts missing from the payload are kept.
func (l *Ledger) ImportAccounts(ctx context.Context, accounts []core.Account) (ImportResult, error) {
	seen := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		if err := a.Validate(); err != nil {
			return ImportResult{}, err
		}
		if seen[a.ID] {
			return ImportResult{}, &core.ValidationError{Field: "id", Reason: fmt.Sprintf("duplicate account %q", a.ID)}
		}
		seen[a.ID] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st, err := l.load(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	sums := Contributions(st.txs)

	var res ImportResult
	merged := append([]core.Account(nil), st.accounts...)
	for _, a := range accounts {
		if i, ok := st.index[a.ID]; ok {
			current := merged[i]
			if a.Balance != current.Balance || a.InitialBalance != current.InitialBalance {
				return ImportResult{}, fmt.Errorf("%w: account %s holds %d (initial %d)",
					core.ErrBalanceOverwrite, a.ID, current.Balance, current.InitialBalance)
			}
			if a.Name != current.Name || a.Type != current.Type {
				merged[i].Name, merged[i].Type = a.Name, a.Type
				res.Updated++
			}
			continue
		}
		if want := a.InitialBalance + sums[a.ID]; a.Balance != want {
			return ImportResult{}, &core.ValidationError{
				Field:  "balance",
				Reason: fmt.Sprintf("account %s must start at %d", a.ID, want),
			}
		}
		merged = append(merged, a)
		res.Added++
	}

	if res.Added == 0 && res.Updated == 0 {
		return res, nil
	}
	if err := l.repo.SaveAccounts(ctx, merged); err != nil {
		return ImportResult{}, fmt.Errorf("save accounts: %w", err)
	}

	slog.InfoContext(ctx, "Accounts imported",
		"added", res.Added,
		"updated", res.Updated)
	return res, nil
}
