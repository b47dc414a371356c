// Command foreman plans designs into stacked stages, builds them with
// detached agent sessions and drives the resulting pull requests to green.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/foreman/internal/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()

	if code := cmd.Report(os.Stderr, err); code != 0 {
		os.Exit(code)
	}
}
