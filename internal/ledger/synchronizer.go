package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/core"
)

// ApplyCreate applies tx's effect and appends it to the transaction log.
func (l *Ledger) ApplyCreate(ctx context.Context, tx core.Transaction) (Result, error) {
	if err := tx.Validate(); err != nil {
		return Result{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st, err := l.load(ctx)
	if err != nil {
		return Result{}, err
	}
	if st.findTransaction(tx.ID) >= 0 {
		return Result{}, fmt.Errorf("%w: %s", core.ErrDuplicateTransaction, tx.ID)
	}

	effects := Effects(tx)
	if err := st.checkReferences(effects); err != nil {
		return Result{}, err
	}
	if err := l.project(st, tx.ID, effects); err != nil {
		return Result{}, err
	}
	if err := l.checkOverdraft(st); err != nil {
		return Result{}, err
	}
	st.txs = append(st.txs, tx)

	if err := l.commit(ctx, st); err != nil {
		return Result{}, err
	}

	slog.InfoContext(ctx, "Transaction applied",
		"transaction_id", tx.ID,
		"type", tx.Type,
		"amount", tx.Amount)
	return Result{Transaction: tx, Entries: st.entries}, nil
}

// ApplyUpdate replaces old with updated. old must match the logged version
// on every balance-relevant field. Metadata-only edits leave balances
// untouched; otherwise old is reversed and updated applied as one unit.
func (l *Ledger) ApplyUpdate(ctx context.Context, old, updated core.Transaction) (Result, error) {
	if err := updated.Validate(); err != nil {
		return Result{}, err
	}
	if old.ID != updated.ID {
		return Result{}, &core.ValidationError{Field: "id", Reason: "cannot change on update"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st, err := l.load(ctx)
	if err != nil {
		return Result{}, err
	}
	i := st.findTransaction(old.ID)
	if i < 0 {
		return Result{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, old.ID)
	}
	if !st.txs[i].SameEffect(old) {
		return Result{}, fmt.Errorf("%w: %s", core.ErrTransactionConflict, old.ID)
	}

	if !old.SameEffect(updated) {
		reversal, forward := Reversal(st.txs[i]), Effects(updated)
		if err := st.checkReferences(append(reversal, forward...)); err != nil {
			return Result{}, err
		}
		if err := l.project(st, updated.ID, reversal); err != nil {
			return Result{}, err
		}
		if err := l.project(st, updated.ID, forward); err != nil {
			return Result{}, err
		}
		if err := l.checkOverdraft(st); err != nil {
			return Result{}, err
		}
	}
	st.txs[i] = updated

	if err := l.commit(ctx, st); err != nil {
		return Result{}, err
	}

	slog.InfoContext(ctx, "Transaction updated",
		"transaction_id", updated.ID,
		"balance_entries", len(st.entries))
	return Result{Transaction: updated, Entries: st.entries}, nil
}

// ApplyDelete reverses tx's effect and removes it from the log. tx must
// match the logged version on every balance-relevant field.
func (l *Ledger) ApplyDelete(ctx context.Context, tx core.Transaction) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delete(ctx, tx.ID, func(logged core.Transaction) error {
		if !logged.SameEffect(tx) {
			return fmt.Errorf("%w: %s", core.ErrTransactionConflict, tx.ID)
		}
		return nil
	})
}

// Delete removes the logged transaction with the given ID.
func (l *Ledger) Delete(ctx context.Context, id string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delete(ctx, id, func(core.Transaction) error { return nil })
}

func (l *Ledger) delete(ctx context.Context, id string, check func(logged core.Transaction) error) (Result, error) {
	st, err := l.load(ctx)
	if err != nil {
		return Result{}, err
	}
	i := st.findTransaction(id)
	if i < 0 {
		return Result{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
	}
	logged := st.txs[i]
	if err := check(logged); err != nil {
		return Result{}, err
	}

	reversal := Reversal(logged)
	if err := st.checkReferences(reversal); err != nil {
		return Result{}, err
	}
	if err := l.project(st, logged.ID, reversal); err != nil {
		return Result{}, err
	}
	if err := l.checkOverdraft(st); err != nil {
		return Result{}, err
	}
	st.txs = append(st.txs[:i:i], st.txs[i+1:]...)

	if err := l.commit(ctx, st); err != nil {
		return Result{}, err
	}

	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", logged.ID)
	return Result{Transaction: logged, Entries: st.entries}, nil
}
