// Command supermqtt publishes to and subscribes on an MQTT broker through the
// pubsub facade, journaling faults and exporting client telemetry.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one CLI invocation, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - args: Command line without the program name
//   - stdout: Command output (messages, journal listings)
//   - stderr: Log output
//
// Returns:
//   - error: nil on success or clean interruption
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
