// Command confinity is the parent command line: it calls targets in child
// processes and inspects the invocation journal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jdziat/confinity/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
