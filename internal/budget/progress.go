// Package budget derives spending and income progress for budget
// definitions. Nothing is cached: every snapshot is recomputed from the
// transaction log.
package budget

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/cycle"
)

const (
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

type Period string

type Definition struct {
	CategoryID   string               `json:"categoryId"`
	CategoryName string               `json:"categoryName"`
	TargetAmount int64                `json:"targetAmount"`
	Period       Period               `json:"period"`
	Type         core.TransactionType `json:"type"`
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.CategoryName) == "" {
		return &core.ValidationError{Field: "categoryName", Reason: "is required"}
	}
	if d.TargetAmount < 0 {
		return &core.ValidationError{Field: "targetAmount", Reason: "must not be negative"}
	}
	if d.Period != Monthly && d.Period != Yearly {
		return &core.ValidationError{Field: "period", Reason: fmt.Sprintf("unknown period %q", d.Period)}
	}
	if d.Type != core.Expense && d.Type != core.Income {
		return &core.ValidationError{Field: "type", Reason: "budgets track expense or income"}
	}
	return nil
}

type Snapshot struct {
	Definition
	Window cycle.Window `json:"window"`
	Actual int64        `json:"actual"`
	// Remaining is negative once an expense budget is exceeded or an
	// income expectation is surpassed.
	Remaining        int64   `json:"remaining"`
	Progress         float64 `json:"progress"`
	IsOverBudget     bool    `json:"isOverBudget"`
	IsUnderExpected  bool    `json:"isUnderExpected"`
	TransactionCount int     `json:"transactionCount"`
}

var hundred = decimal.NewFromInt(100)

// Compute sums the transactions inside window that match the budget's
// type and category.
func Compute(def Definition, window cycle.Window, txs []core.Transaction) (Snapshot, error) {
	if err := def.Validate(); err != nil {
		return Snapshot{}, err
	}

	s := Snapshot{Definition: def, Window: window}
	for _, tx := range txs {
		if tx.Type != def.Type || tx.Category != def.CategoryName || !cycle.Contains(window, tx.Date) {
			continue
		}
		s.Actual += tx.Amount
		s.TransactionCount++
	}

	s.Remaining = def.TargetAmount - s.Actual
	s.Progress = progress(s.Actual, def.TargetAmount)
	switch def.Type {
	case core.Expense:
		s.IsOverBudget = s.Actual > def.TargetAmount
	case core.Income:
		s.IsUnderExpected = s.Actual < def.TargetAmount
	}
	return s, nil
}

// progress is actual/target as a percentage clamped to [0, 100] with one
// decimal place. A zero target has no progress.
func progress(actual, target int64) float64 {
	if target <= 0 {
		return 0
	}
	p := decimal.NewFromInt(actual).Mul(hundred).Div(decimal.NewFromInt(target))
	if p.IsNegative() {
		p = decimal.Zero
	}
	if p.GreaterThan(hundred) {
		p = hundred
	}
	return p.Round(1).InexactFloat64()
}

// WindowFor returns the period a budget is measured over at ref: the
// configured accounting cycle for monthly budgets, the calendar year for
// yearly ones.
func WindowFor(def Definition, setting cycle.Setting, ref core.Date) (cycle.Window, error) {
	switch def.Period {
	case Monthly:
		return cycle.Resolve(setting, ref)
	case Yearly:
		return cycle.Window{
			Start: core.NewDate(ref.Year(), 1, 1),
			End:   core.NewDate(ref.Year(), 12, 31),
		}, nil
	}
	return cycle.Window{}, &core.ValidationError{Field: "period", Reason: fmt.Sprintf("unknown period %q", def.Period)}
}

// ComputeAll resolves each budget's window at ref and computes its snapshot.
func ComputeAll(defs []Definition, setting cycle.Setting, ref core.Date, txs []core.Transaction) ([]Snapshot, error) {
	snapshots := make([]Snapshot, 0, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("budget %s: %w", def.CategoryName, err)
		}
		window, err := WindowFor(def, setting, ref)
		if err != nil {
			return nil, fmt.Errorf("budget %s: %w", def.CategoryName, err)
		}
		s, err := Compute(def, window, txs)
		if err != nil {
			return nil, fmt.Errorf("budget %s: %w", def.CategoryName, err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}
