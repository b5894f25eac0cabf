package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"tally/internal/amqp"
	"tally/internal/ledger"
)

type auditCmd struct {
	queue  bool
	asJSON bool
}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "compare stored balances with the transaction log" }
func (*auditCmd) Usage() string {
	return `tallyctl audit [-queue] [-json]

  Recomputes every account balance from its initial balance and the logged
  transactions and reports accounts whose stored balance drifted. With
  -queue the audit is requested from the running server over AMQP instead.
  Exits with status 1 when drift is found.
`
}

func (c *auditCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.queue, "queue", false, "Send an audit command to the server instead of auditing locally.")
	f.BoolVar(&c.asJSON, "json", false, "Print the report as JSON.")
}

func (c *auditCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession(ctx, c.queue)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	if c.queue {
		return sendCommand(ctx, s, amqp.CommandAudit)
	}

	report, err := s.svc.Audit(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if c.asJSON {
		if err := writeJSON(os.Stdout, report); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
	} else {
		printReport(s, report)
	}
	if !report.Consistent {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type repairCmd struct {
	queue bool
}

func (*repairCmd) Name() string     { return "repair" }
func (*repairCmd) Synopsis() string { return "reset drifted balances to their recomputed values" }
func (*repairCmd) Usage() string {
	return `tallyctl repair [-queue]

  Audits the ledger and overwrites each drifted stored balance with the
  balance recomputed from the transaction log, recording a repair entry in
  the balance log. With -queue the repair is requested from the running
  server over AMQP instead. Without -queue it writes the store directly;
  do not run it that way while a tally server uses the same store.
`
}

func (c *repairCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.queue, "queue", false, "Send a repair command to the server instead of repairing locally.")
}

func (c *repairCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession(ctx, c.queue)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	if c.queue {
		return sendCommand(ctx, s, amqp.CommandRepair)
	}

	report, err := s.svc.Repair(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if len(report.Repaired) == 0 && len(report.Failed) == 0 {
		fmt.Println("Nothing to repair.")
		return subcommands.ExitSuccess
	}
	for _, m := range report.Repaired {
		fmt.Printf("Repaired %s: %s -> %s\n", m.AccountID, s.money(m.Stored), s.money(m.Theoretical))
	}
	for _, f := range report.Failed {
		fmt.Fprintf(os.Stderr, "Failed %s: %s\n", f.AccountID, f.Error)
	}
	if len(report.Failed) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func sendCommand(ctx context.Context, s *session, cmd amqp.Command) subcommands.ExitStatus {
	if s.backend.AMQP == nil {
		fmt.Fprintln(os.Stderr, "Error: -queue needs a reachable broker; set AMQP_URL.")
		return subcommands.ExitFailure
	}
	msg, err := s.backend.AMQP.PublishCommand(ctx, cmd, "tallyctl")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Queued %s command %s.\n", cmd, msg.MessageID)
	return subcommands.ExitSuccess
}

func printReport(s *session, report ledger.Report) {
	if report.Consistent {
		fmt.Printf("Consistent: stored total %s matches the log.\n", s.money(report.StoredTotal))
	} else {
		fmt.Printf("Drift found in %d accounts.\n", len(report.Mismatches))
	}
	for _, m := range report.Mismatches {
		fmt.Printf("  %-12s stored %s, expected %s, diff %s\n", m.AccountID, s.money(m.Stored), s.money(m.Theoretical), s.money(m.Diff))
	}
	for _, id := range report.Orphans {
		fmt.Printf("  orphan transaction %s references an unknown account\n", id)
	}
	fmt.Printf("Stored %s, theoretical %s.\n", s.money(report.StoredTotal), s.money(report.TheoreticalTotal))
}
