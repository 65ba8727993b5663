// Package spindle is the root of the build-daemon supervisor: see
// internal/build for the daemon itself and cmd/spindle for the CLI.
package spindle

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// InterruptibleContext returns a context canceled on SIGINT/SIGTERM, for
// callers that want to abort an in-flight hook (spec.md §5
// Cancellation: "a caller may abandon an in-flight hook... the BD is
// left in Awaiting and must be closed, not reused"). Cancellation here
// only unblocks callers waiting on ctx.Done(); it does not itself
// interrupt the blocking read in internal/build.Daemon, which is why
// every caller that uses this must still route its Daemon through
// internal/oninterrupt.Register so the child process is closed.
func InterruptibleContext() (context.Context, context.CancelFunc) {
	ctx, canc := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		// A second signal terminates immediately, in case cleanup hangs.
		signal.Stop(sig)
		canc()
	}()
	return ctx, canc
}
