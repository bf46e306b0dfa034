package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yndnr/peerscout-go/internal/cli/command"
)

func main() {
	// Ctrl+C cancels a running sweep or peer wait instead of killing it
	// mid-write.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := command.App().RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "peerscout-cli: %v\n", err)
		os.Exit(1)
	}
}
