package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"tally/internal/core"
)

type accountsCmd struct {
	asJSON bool
}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list accounts and their stored balances" }
func (*accountsCmd) Usage() string {
	return `tallyctl accounts [-json]

  Lists every account with its stored balance.
`
}

func (c *accountsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.asJSON, "json", false, "Print accounts as JSON.")
}

func (c *accountsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession(ctx, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	accounts, err := s.svc.Accounts(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if c.asJSON {
		if err := writeJSON(os.Stdout, accounts); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "ID\tName\tType\tBalance\tInitial\t")
	var total int64
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", a.ID, a.Name, a.Type, s.money(a.Balance), s.money(a.InitialBalance))
		total += a.Balance
	}
	fmt.Fprintf(w, "\t\t\t%s\t\t\n", s.money(total))
	w.Flush()
	return subcommands.ExitSuccess
}

type importCmd struct{}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "seed accounts from a JSON file" }
func (*importCmd) Usage() string {
	return `tallyctl import <accounts.json>

  Merges the accounts in the file into the store. The file holds a JSON
  array of accounts with balances in minor units. New accounts are added
  when their balance matches their initial balance; existing accounts may
  be renamed but their balances are never changed.
  Writes the store directly; do not run it while a tally server uses
  the same store.
`
}

func (*importCmd) SetFlags(*flag.FlagSet) {}

func (*importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: import takes exactly one file argument.")
		return subcommands.ExitUsageError
	}

	data, err := os.ReadFile(f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	var accounts []core.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding %s: %v\n", f.Arg(0), err)
		return subcommands.ExitFailure
	}

	s, err := openSession(ctx, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	res, err := s.svc.ImportAccounts(ctx, accounts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Added %d accounts, updated %d.\n", res.Added, res.Updated)
	return subcommands.ExitSuccess
}
