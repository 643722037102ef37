package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/brandpilot/cmd"
	"github.com/xkilldash9x/brandpilot/internal/observability"
)

var (
	// Allows mocking os.Exit in tests.
	osExit = os.Exit
	// Where panic details are written.
	stderr io.Writer = os.Stderr
)

func main() {
	defer handlePanic()

	// Set up a context that listens for interrupt signals (SIGINT, SIGTERM) for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(cmd.ExitCodeOf(cmd.Execute(ctx)))
}

// handlePanic flushes logs and reports a crash with a non-zero status.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()
		fmt.Fprintf(stderr, "panic: %v\n\n%s\n", r, debug.Stack())
		osExit(1)
	}
}
