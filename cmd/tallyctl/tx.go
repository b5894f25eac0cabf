package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/ledger"
)

type txCmd struct {
	id          string
	txType      string
	amount      string
	account     string
	target      string
	date        string
	category    string
	description string
	tags        string
	remove      string
	list        bool
}

func (*txCmd) Name() string     { return "tx" }
func (*txCmd) Synopsis() string { return "record, delete or list transactions" }
func (*txCmd) Usage() string {
	return `tallyctl tx -type <expense|income|transfer> -a <amount> -acct <account> [-to <account>] [-d <date>] [-c <category>] [-desc <text>] [-tags a,b]
tallyctl tx -rm <transaction_id>
tallyctl tx -list

  Records a transaction and applies its balance effects, deletes a logged
  transaction and reverses its effects, or lists the transaction log.
  Amounts are decimal strings such as 12.50.
  Writes the store directly; do not run it while a tally server uses
  the same store.
`
}

func (c *txCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Transaction ID. Generated when empty.")
	f.StringVar(&c.txType, "type", string(core.Expense), "Transaction type (expense, income, transfer).")
	f.StringVar(&c.amount, "a", "", "Amount as a decimal, e.g. 12.50.")
	f.StringVar(&c.account, "acct", "", "Source account ID.")
	f.StringVar(&c.target, "to", "", "Target account ID for transfers.")
	f.StringVar(&c.date, "d", "", "Transaction date (YYYY-MM-DD). Defaults to today.")
	f.StringVar(&c.category, "c", "", "Category.")
	f.StringVar(&c.description, "desc", "", "Description.")
	f.StringVar(&c.tags, "tags", "", "Comma separated tags.")
	f.StringVar(&c.remove, "rm", "", "Delete the transaction with this ID.")
	f.BoolVar(&c.list, "list", false, "List logged transactions.")
}

func (c *txCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.list && c.remove != "" {
		fmt.Fprintln(os.Stderr, "Error: -list and -rm cannot be used together.")
		return subcommands.ExitUsageError
	}

	var tx core.Transaction
	if !c.list && c.remove == "" {
		var err error
		if tx, err = c.transaction(time.Now()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
	}

	s, err := openSession(ctx, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	switch {
	case c.list:
		return c.printLog(ctx, s)
	case c.remove != "":
		res, err := s.svc.DeleteTransactionByID(ctx, c.remove)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("Deleted %s.\n", c.remove)
		printEntries(s, res)
	default:
		res, err := s.svc.CreateTransaction(ctx, tx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("Recorded %s %s of %s.\n", tx.Type, tx.ID, s.money(tx.Amount))
		printEntries(s, res)
	}
	return subcommands.ExitSuccess
}

// transaction builds the transaction described by the flags.
func (c *txCmd) transaction(now time.Time) (core.Transaction, error) {
	if c.amount == "" {
		return core.Transaction{}, errors.New("amount is required (-a)")
	}
	amount, err := core.ParseDecimalToCents(c.amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount: %w", err)
	}

	date := core.DateOf(now)
	if c.date != "" {
		if date, err = core.ParseDate(c.date); err != nil {
			return core.Transaction{}, fmt.Errorf("parse date: %w", err)
		}
	}

	id := c.id
	if id == "" {
		id = uuid.NewString()
	}

	var tags []string
	for _, t := range strings.Split(c.tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	tx := core.Transaction{
		ID:              id,
		Type:            core.TransactionType(c.txType),
		Amount:          amount,
		AccountID:       c.account,
		TargetAccountID: c.target,
		Date:            date,
		Category:        c.category,
		Description:     c.description,
		Tags:            tags,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func (c *txCmd) printLog(ctx context.Context, s *session) subcommands.ExitStatus {
	txs, err := s.svc.Transactions(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Date\tID\tType\tAccount\tAmount\tCategory")
	for _, tx := range txs {
		acct := tx.AccountID
		if tx.Type == core.Transfer {
			acct += " -> " + tx.TargetAccountID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", tx.Date, tx.ID, tx.Type, acct, s.money(tx.Amount), tx.Category)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

func printEntries(s *session, res ledger.Result) {
	for _, e := range res.Entries {
		fmt.Printf("  %-12s %10s -> %s (%s)\n", e.AccountID, s.money(e.Delta), s.money(e.ResultingBalance), e.Reason)
	}
}
