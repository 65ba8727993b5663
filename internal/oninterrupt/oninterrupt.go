// Package oninterrupt lets callers register cleanup handlers that run
// before the process exits on SIGINT/SIGTERM — in particular, closing
// any build.Daemon instances still alive so their child processes don't
// outlive the parent (spec.md §4.1.4 Drop-guard, §9).
package oninterrupt

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	onInterruptMu sync.Mutex
	onInterrupt   []func()
)

func init() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		signal := <-c
		onInterruptMu.Lock()
		for _, f := range onInterrupt {
			f()
		}
		onInterruptMu.Unlock()
		// TODO: replace by cancelling a context:
		// https://medium.com/@matryer/make-ctrl-c-cancel-the-context-context-bd006a8ad6ff
		if sig, ok := signal.(*syscall.Signal); ok {
			os.Exit(128 + int(*sig))
		}
		os.Exit(1) // generic EXIT_FAILURE
	}()
}

// Register adds cb to the set of cleanup handlers run on interrupt.
func Register(cb func()) {
	onInterruptMu.Lock()
	defer onInterruptMu.Unlock()
	onInterrupt = append(onInterrupt, cb)
}
