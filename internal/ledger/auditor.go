package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/core"
)

// Mismatch is one account whose stored balance disagrees with the log.
// Diff is Stored minus Theoretical.
type Mismatch struct {
	AccountID   string `json:"accountId"`
	Name        string `json:"name"`
	Stored      int64  `json:"stored"`
	Theoretical int64  `json:"theoretical"`
	Diff        int64  `json:"diff"`
}

type Report struct {
	// Consistent is true when no account drifts beyond the tolerance.
	Consistent bool       `json:"consistent"`
	Mismatches []Mismatch `json:"mismatches"`
	// Orphans are transactions that reference an unknown account. Their
	// effects on known accounts still count.
	Orphans          []string  `json:"orphans,omitempty"`
	StoredTotal      int64     `json:"storedTotal"`
	TheoreticalTotal int64     `json:"theoreticalTotal"`
	Tolerance        int64     `json:"tolerance"`
	CheckedAt        time.Time `json:"checkedAt"`
}

type RepairFailure struct {
	Mismatch
	Error string `json:"error"`
}

type RepairReport struct {
	Repaired []Mismatch      `json:"repaired"`
	Failed   []RepairFailure `json:"failed"`
}

// Audit replays the transaction log and compares every account's stored
// balance with initialBalance plus the sum of its effects. It never
// writes.
func (l *Ledger) Audit(ctx context.Context) (Report, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var (
		accounts []core.Account
		txs      []core.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = l.repo.Accounts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = l.repo.Transactions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("load ledger snapshot: %w", err)
	}

	report := l.audit(accounts, txs)
	if !report.Consistent {
		slog.WarnContext(ctx, "Balance drift detected",
			"mismatches", len(report.Mismatches),
			"stored_total", report.StoredTotal,
			"theoretical_total", report.TheoreticalTotal)
	}
	return report, nil
}

func (l *Ledger) audit(accounts []core.Account, txs []core.Transaction) Report {
	known := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		known[a.ID] = true
	}

	report := Report{Mismatches: []Mismatch{}, Tolerance: l.tolerance, CheckedAt: l.now().UTC()}
	for _, tx := range txs {
		for _, id := range tx.Accounts() {
			if !known[id] {
				report.Orphans = append(report.Orphans, tx.ID)
				break
			}
		}
	}

	sums := Contributions(txs)
	for _, a := range accounts {
		theoretical := a.InitialBalance + sums[a.ID]
		report.StoredTotal += a.Balance
		report.TheoreticalTotal += theoretical

		diff := a.Balance - theoretical
		if abs(diff) > l.tolerance {
			report.Mismatches = append(report.Mismatches, Mismatch{
				AccountID:   a.ID,
				Name:        a.Name,
				Stored:      a.Balance,
				Theoretical: theoretical,
				Diff:        diff,
			})
		}
	}
	sort.Slice(report.Mismatches, func(i, j int) bool {
		return report.Mismatches[i].AccountID < report.Mismatches[j].AccountID
	})
	report.Consistent = len(report.Mismatches) == 0
	return report
}

// Repair overwrites every drifting balance with its theoretical value and
// records a repair entry per account. All patches are written in one
// unit: on failure every flagged account is reported as failed.
func (l *Ledger) Repair(ctx context.Context) (RepairReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, err := l.load(ctx)
	if err != nil {
		return RepairReport{}, err
	}
	report := l.audit(st.accounts, st.txs)
	result := RepairReport{Repaired: []Mismatch{}, Failed: []RepairFailure{}}
	if report.Consistent {
		return result, nil
	}

	effects := make([]Effect, 0, len(report.Mismatches))
	for _, m := range report.Mismatches {
		effects = append(effects, Effect{AccountID: m.AccountID, Delta: -m.Diff, Reason: ReasonRepair})
	}
	err = l.project(st, "", effects)
	if err == nil {
		err = l.commit(ctx, st)
	}
	if err != nil {
		for _, m := range report.Mismatches {
			result.Failed = append(result.Failed, RepairFailure{Mismatch: m, Error: err.Error()})
		}
		slog.ErrorContext(ctx, "Balance repair failed", "accounts", len(report.Mismatches), "error", err)
		return result, err
	}

	result.Repaired = report.Mismatches
	for _, m := range report.Mismatches {
		slog.InfoContext(ctx, "Balance repaired",
			"account_id", m.AccountID,
			"stored", core.FormatMinor(m.Stored, l.currency),
			"theoretical", core.FormatMinor(m.Theoretical, l.currency))
	}
	return result, nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
