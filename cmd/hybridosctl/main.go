// Command hybridosctl demonstrates the hybridos.dev/kernel scheduler
// through a handful of runnable scenarios, the Go-native equivalents
// of the xv6 userland test binaries (mlfqtest.c, stridetest.c,
// uthread.c, test_prw.c) this module's spec was distilled from.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&mlfqCommand{}, "scenarios")
	subcommands.Register(&strideCommand{}, "scenarios")
	subcommands.Register(&threadsCommand{}, "scenarios")
	subcommands.Register(&rwCommand{}, "scenarios")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
