package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/C0sCube/selenium-scrape/cmd"
)

// main is the entry point for the siteextract CLI.
func main() {
	// Interrupts cancel the running command; partial runs are still saved.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
