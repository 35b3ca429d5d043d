// ./main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/vulncorr/cmd"
	"github.com/xkilldash9x/vulncorr/internal/observability"
)

const panicLogFile = "vulncorr-panic.log"

// Function variables for mocking in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

// main is the entry point for the vulncorr CLI.
func main() {
	defer handlePanic()

	// SIGINT and SIGTERM cancel the context; the pipeline aborts between stages.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cmd.Execute(ctx)
	stop()
	osExit(code)
}

// handlePanic records an unexpected crash and exits with the fatal status so
// that CI never mistakes a crash for a clean run.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
	} else {
		fmt.Fprintf(os.Stderr, "vulncorr crashed. Details logged to %s\n", panicLogFile)
	}
	osExit(cmd.ExitFatal)
}
