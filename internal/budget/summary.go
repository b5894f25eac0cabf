package budget

import "tally/internal/core"

// Totals aggregates snapshots of one transaction type.
type Totals struct {
	Budgets   int     `json:"budgets"`
	Target    int64   `json:"target"`
	Actual    int64   `json:"actual"`
	Remaining int64   `json:"remaining"`
	Progress  float64 `json:"progress"`
	// Flagged counts over-budget expenses or under-expected income.
	Flagged int `json:"flagged"`
}

type Summary struct {
	Expense Totals `json:"expense"`
	Income  Totals `json:"income"`
}

func Summarize(snapshots []Snapshot) Summary {
	var sum Summary
	for _, s := range snapshots {
		t := &sum.Expense
		flagged := s.IsOverBudget
		if s.Type == core.Income {
			t = &sum.Income
			flagged = s.IsUnderExpected
		}
		t.Budgets++
		t.Target += s.TargetAmount
		t.Actual += s.Actual
		if flagged {
			t.Flagged++
		}
	}
	for _, t := range []*Totals{&sum.Expense, &sum.Income} {
		t.Remaining = t.Target - t.Actual
		t.Progress = progress(t.Actual, t.Target)
	}
	return sum
}
