// Package reconcile implements the optimistic patch / remote write /
// unconditional reload cycle every client command runs through. The UI must
// feel immediate while the store stays the only source of truth, so the local
// patch lands first, the write follows, and a reload corrects any drift — on
// success as well as failure, because a successful write says nothing about
// concurrent writers that landed in between.
package reconcile

import (
	"context"

	"go.uber.org/multierr"

	"farmdeal/logging"
)

// Op is one client command expressed as the three reconciliation steps. Patch
// and Reload may be nil; Write is mandatory.
type Op struct {
	// Name tags log lines for this operation.
	Name string
	// Patch applies the optimistic local mutation.
	Patch func()
	// Write issues the authoritative remote write.
	Write func(ctx context.Context) error
	// Reload re-pulls the authoritative record set. Runs unconditionally.
	Reload func(ctx context.Context) error
}

// Runner executes Ops. It is shared by every command of a session so the
// pipeline exists once, not per command.
type Runner struct {
	log logging.Logger
}

func NewRunner(log logging.Logger) *Runner {
	if log == nil {
		log = logging.Nop()
	}
	return &Runner{log: log}
}

// Do runs the pipeline. The write error is surfaced to the caller together
// with any reload error; the reload still runs when the write fails, which is
// what reverts a stale optimistic patch.
func (r *Runner) Do(ctx context.Context, op Op) error {
	if op.Patch != nil {
		op.Patch()
	}

	werr := op.Write(ctx)
	if werr != nil {
		r.log.Warn(ctx, "remote write failed", "op", op.Name, "err", werr)
	}

	var rerr error
	if op.Reload != nil {
		if rerr = op.Reload(ctx); rerr != nil {
			r.log.Warn(ctx, "reload after write failed", "op", op.Name, "err", rerr)
		}
	}

	return multierr.Append(werr, rerr)
}
