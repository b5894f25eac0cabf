package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"tally/internal/budget"
	"tally/internal/core"
)

type progressCmd struct {
	date   string
	asJSON bool
}

func (*progressCmd) Name() string     { return "progress" }
func (*progressCmd) Synopsis() string { return "report budget progress for the current cycle" }
func (*progressCmd) Usage() string {
	return `tallyctl progress [-d <date>] [-json] <budgets.json>

  Evaluates the budget definitions in the file against the transaction log.
  Monthly budgets use the cycle window containing the date; yearly budgets
  use its calendar year.
`
}

func (c *progressCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Reference date (YYYY-MM-DD). Defaults to today.")
	f.BoolVar(&c.asJSON, "json", false, "Print snapshots and summary as JSON.")
}

func (c *progressCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: progress takes exactly one budgets file.")
		return subcommands.ExitUsageError
	}

	ref := core.DateOf(time.Now())
	if c.date != "" {
		var err error
		if ref, err = core.ParseDate(c.date); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	data, err := os.ReadFile(f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	var defs []budget.Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding %s: %v\n", f.Arg(0), err)
		return subcommands.ExitFailure
	}

	s, err := openSession(ctx, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	snapshots, summary, err := s.svc.BudgetProgress(ctx, defs, ref)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if c.asJSON {
		out := struct {
			Budgets []budget.Snapshot `json:"budgets"`
			Summary budget.Summary    `json:"summary"`
		}{snapshots, summary}
		if err := writeJSON(os.Stdout, out); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Category\tType\tWindow\tActual\tTarget\tProgress\t")
	for _, sn := range snapshots {
		mark := ""
		if sn.IsOverBudget {
			mark = " over"
		} else if sn.IsUnderExpected {
			mark = " under"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f%%%s\t\n",
			sn.CategoryName, sn.Type, sn.Window, s.money(sn.Actual), s.money(sn.TargetAmount), sn.Progress, mark)
	}
	w.Flush()
	fmt.Printf("Expenses: %s of %s (%.1f%%), %d over budget\n",
		s.money(summary.Expense.Actual), s.money(summary.Expense.Target), summary.Expense.Progress, summary.Expense.Flagged)
	fmt.Printf("Income:   %s of %s (%.1f%%), %d under expectation\n",
		s.money(summary.Income.Actual), s.money(summary.Income.Target), summary.Income.Progress, summary.Income.Flagged)
	return subcommands.ExitSuccess
}
