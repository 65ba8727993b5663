// Package daemonpool fans work out across multiple Build Daemon
// instances. Spec.md §5 is explicit that a single Daemon serializes
// hooks one-at-a-time; concurrency is obtained only by holding several
// Daemon instances, one per execution environment. Pool provides that
// fan-out using a bounded errgroup, the same pattern the teacher uses
// for concurrent package installation (internal/install).
package daemonpool

import (
	"context"

	"github.com/distr1/spindle/internal/build"
	"github.com/distr1/spindle/internal/oninterrupt"
	"github.com/distr1/spindle/internal/venv"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// Unit is one build unit to process: an execution environment paired
// with the source tree whose build backend should run inside it.
type Unit struct {
	Env        *venv.Environment
	SourceTree string
}

// Pool owns one build.Daemon per Unit submitted to Run, and guarantees
// every one of them is closed before Run returns — including on error,
// panic-free cancellation, or interrupt (spec §4.1.4 Drop-guard, §5
// "Callers obtain parallelism by holding multiple BD instances").
type Pool struct {
	// Concurrency bounds how many daemons run hooks simultaneously. Zero
	// means unbounded (one goroutine per unit).
	Concurrency int
}

// Run spawns one Daemon per unit and calls fn with it, running up to
// p.Concurrency of them concurrently. It returns the first error
// encountered (if any), after every spawned Daemon has been closed.
func Run(ctx context.Context, p Pool, units []Unit, fn func(ctx context.Context, d *build.Daemon, u Unit) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}

	for _, u := range units {
		u := u
		g.Go(func() error {
			d, err := build.New(u.Env, u.SourceTree)
			if err != nil {
				return xerrors.Errorf("daemonpool: %s: %w", u.SourceTree, err)
			}

			closeOnce := make(chan struct{})
			cleanup := func() {
				select {
				case <-closeOnce:
					return
				default:
					close(closeOnce)
				}
				d.Close()
			}
			oninterrupt.Register(cleanup)
			defer cleanup()

			if err := fn(ctx, d, u); err != nil {
				return xerrors.Errorf("daemonpool: %s: %w", u.SourceTree, err)
			}
			return nil
		})
	}

	return g.Wait()
}
