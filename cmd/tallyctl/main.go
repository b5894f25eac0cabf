// Command tallyctl operates a tally store directly: it imports accounts,
// records transactions and runs audits without going through the server.
//
// The ledger lock lives inside one process. Commands that write (import,
// tx, repair, cycle -set) must not run against a store that a live tally
// server is using, or one side's update can be lost. Against a live server
// use audit -queue and repair -queue, or the HTTP API.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"tally/internal/cli"
)

var commands = []subcommands.Command{
	&accountsCmd{},
	&importCmd{},
	&txCmd{},
	&auditCmd{},
	&repairCmd{},
	&cycleCmd{},
	&progressCmd{},
}

func main() {
	cli.LoadEnvFile()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
