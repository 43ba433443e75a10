// Package main is the entry point for the dockhand editor tool server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dockhand-sh/dockhand/cmd/dockhand/app"
	"github.com/dockhand-sh/dockhand/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("Error executing command: %v", err)
		os.Exit(1)
	}
}
