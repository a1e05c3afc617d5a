// Package freezer implements freeze/unfreeze for the freezer subsystem
// (spec.md §4.1): writing FROZEN/THAWED to freezer.state under a
// cgroup's path and polling for convergence, in the style of
// docker/docker/pkg/libcontainer/cgroups/systemd's Freeze (write then
// read back freezer.state in a sleep loop until it matches).
package freezer

import (
	"context"
	"time"

	"github.com/ctlcore/supervisor/cgroups"
	"github.com/ctlcore/supervisor/internal/ctlerr"
)

const (
	StateFrozen = "FROZEN"
	StateThawed = "THAWED"

	knobState = "freezer.state"
)

// PollInterval is the sleep between freezer.state readback attempts.
var PollInterval = 10 * time.Millisecond

// Freeze writes FROZEN to cg's freezer.state and blocks until the
// kernel reports convergence or ctx is done.
func Freeze(ctx context.Context, cg *cgroups.Node) error {
	return setAndConverge(ctx, cg, StateFrozen)
}

// Unfreeze writes THAWED to cg's freezer.state and blocks until the
// kernel reports convergence or ctx is done.
func Unfreeze(ctx context.Context, cg *cgroups.Node) error {
	return setAndConverge(ctx, cg, StateThawed)
}

func setAndConverge(ctx context.Context, cg *cgroups.Node, state string) error {
	// freezer.state must already exist: the write below would otherwise
	// create it as a plain file and report a convergence that never ran.
	if _, err := cg.GetKnobValue(knobState); err != nil {
		return err
	}
	if err := cg.SetKnobValue(knobState, state, false); err != nil {
		return err
	}
	for {
		current, err := cg.GetKnobValue(knobState)
		if err != nil {
			return err
		}
		if current == state {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctlerr.New(ctlerr.Timeout, "freezer convergence to %s timed out on %s", state, cg.Path())
		case <-time.After(PollInterval):
		}
	}
}
