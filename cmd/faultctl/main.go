// Command faultctl validates, edits, exports and reports on fault-tree models.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"faultcore/internal/cli"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cli.Version = version
	code := cli.Execute(ctx, cli.NewRootCommand(os.Stdout, os.Stderr))
	stop()
	os.Exit(code)
}
