package budget

import (
	"errors"
	"testing"

	"tally/internal/core"
	"tally/internal/cycle"
)

var feb = cycle.Window{Start: core.NewDate(2024, 2, 1), End: core.NewDate(2024, 2, 29)}

func tx(id string, typ core.TransactionType, category string, amount int64, date core.Date) core.Transaction {
	return core.Transaction{ID: id, Type: typ, Amount: amount, AccountID: "A", Category: category, Date: date}
}

func TestCompute(t *testing.T) {
	txs := []core.Transaction{
		tx("1", core.Expense, "Food", 1000, core.NewDate(2024, 2, 1)),
		tx("2", core.Expense, "Food", 2333, core.NewDate(2024, 2, 29)),
		tx("3", core.Expense, "Food", 5000, core.NewDate(2024, 3, 1)),  // outside window
		tx("4", core.Expense, "Rent", 9000, core.NewDate(2024, 2, 10)), // other category
		tx("5", core.Income, "Food", 7000, core.NewDate(2024, 2, 10)),  // other type
	}
	def := Definition{CategoryID: "c1", CategoryName: "Food", TargetAmount: 10000, Period: Monthly, Type: core.Expense}

	s, err := Compute(def, feb, txs)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if s.Actual != 3333 || s.TransactionCount != 2 {
		t.Fatalf("actual = %d over %d transactions", s.Actual, s.TransactionCount)
	}
	if s.Remaining != 6667 || s.IsOverBudget {
		t.Fatalf("remaining = %d over = %v", s.Remaining, s.IsOverBudget)
	}
	if s.Progress != 33.3 {
		t.Fatalf("progress = %v, want 33.3", s.Progress)
	}
}

func TestComputeClampsAndFlags(t *testing.T) {
	tests := []struct {
		name      string
		def       Definition
		amount    int64
		progress  float64
		remaining int64
		over      bool
		under     bool
	}{
		{"over budget", Definition{CategoryName: "Food", TargetAmount: 1000, Period: Monthly, Type: core.Expense}, 1500, 100, -500, true, false},
		{"exactly on budget", Definition{CategoryName: "Food", TargetAmount: 1000, Period: Monthly, Type: core.Expense}, 1000, 100, 0, false, false},
		{"zero target", Definition{CategoryName: "Food", TargetAmount: 0, Period: Monthly, Type: core.Expense}, 50, 0, -50, true, false},
		{"income short", Definition{CategoryName: "Food", TargetAmount: 3000, Period: Monthly, Type: core.Income}, 1000, 33.3, 2000, false, true},
		{"income met", Definition{CategoryName: "Food", TargetAmount: 3000, Period: Monthly, Type: core.Income}, 4000, 100, -1000, false, false},
		{"two thirds rounds up", Definition{CategoryName: "Food", TargetAmount: 3, Period: Monthly, Type: core.Expense}, 2, 66.7, 1, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Compute(tt.def, feb, []core.Transaction{tx("1", tt.def.Type, "Food", tt.amount, core.NewDate(2024, 2, 5))})
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if s.Progress != tt.progress || s.Remaining != tt.remaining || s.IsOverBudget != tt.over || s.IsUnderExpected != tt.under {
				t.Fatalf("got progress=%v remaining=%d over=%v under=%v", s.Progress, s.Remaining, s.IsOverBudget, s.IsUnderExpected)
			}
		})
	}
}

func TestDefinitionValidate(t *testing.T) {
	bad := []Definition{
		{CategoryName: "", TargetAmount: 1, Period: Monthly, Type: core.Expense},
		{CategoryName: "Food", TargetAmount: -1, Period: Monthly, Type: core.Expense},
		{CategoryName: "Food", TargetAmount: 1, Period: "weekly", Type: core.Expense},
		{CategoryName: "Food", TargetAmount: 1, Period: Monthly, Type: core.Transfer},
	}
	for _, def := range bad {
		if _, err := Compute(def, feb, nil); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", def, err)
		}
	}
}

func TestWindowFor(t *testing.T) {
	ref := core.NewDate(2024, 2, 10)
	monthly := Definition{CategoryName: "Food", Period: Monthly, Type: core.Expense}
	w, err := WindowFor(monthly, cycle.SalaryFrom(15), ref)
	if err != nil {
		t.Fatal(err)
	}
	if w.Start != core.NewDate(2024, 1, 15) || w.End != core.NewDate(2024, 2, 14) {
		t.Fatalf("monthly window %s", w)
	}

	yearly := monthly
	yearly.Period = Yearly
	w, _ = WindowFor(yearly, cycle.SalaryFrom(15), ref)
	if w.Start != core.NewDate(2024, 1, 1) || w.End != core.NewDate(2024, 12, 31) {
		t.Fatalf("yearly window %s", w)
	}
}

func TestComputeAllAndSummarize(t *testing.T) {
	ref := core.NewDate(2024, 2, 10)
	txs := []core.Transaction{
		tx("1", core.Expense, "Food", 600, core.NewDate(2024, 2, 3)),
		tx("2", core.Expense, "Fun", 300, core.NewDate(2024, 2, 3)),
		tx("3", core.Income, "Salary", 5000, core.NewDate(2024, 2, 1)),
	}
	defs := []Definition{
		{CategoryName: "Food", TargetAmount: 500, Period: Monthly, Type: core.Expense},
		{CategoryName: "Fun", TargetAmount: 1500, Period: Yearly, Type: core.Expense},
		{CategoryName: "Salary", TargetAmount: 6000, Period: Monthly, Type: core.Income},
	}
	snapshots, err := ComputeAll(defs, cycle.NaturalMonth(), ref, txs)
	if err != nil {
		t.Fatalf("ComputeAll: %v", err)
	}
	if len(snapshots) != 3 || !snapshots[0].IsOverBudget || !snapshots[2].IsUnderExpected {
		t.Fatalf("unexpected snapshots %+v", snapshots)
	}

	sum := Summarize(snapshots)
	if sum.Expense.Budgets != 2 || sum.Expense.Target != 2000 || sum.Expense.Actual != 900 || sum.Expense.Remaining != 1100 {
		t.Fatalf("expense totals %+v", sum.Expense)
	}
	if sum.Expense.Progress != 45 || sum.Expense.Flagged != 1 {
		t.Fatalf("expense progress %+v", sum.Expense)
	}
	if sum.Income.Budgets != 1 || sum.Income.Actual != 5000 || sum.Income.Progress != 83.3 || sum.Income.Flagged != 1 {
		t.Fatalf("income totals %+v", sum.Income)
	}
}
