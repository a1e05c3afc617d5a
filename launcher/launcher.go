// Package launcher implements the Task Launcher Boundary of spec.md
// §4.1/§4.5/§9: the glue between a freshly cloned task process and the
// cgroup/volume subsystems, responsible for attaching leaf cgroups
// after clone and binding required volume links before resume.
//
// Grounded on docker/docker/pkg/libcontainer's split between container
// creation (Configure) and the post-clone Init step that actually
// enters cgroups/namespaces — this module plays the same "after clone,
// before resume" role, generalized to the spec's leaf-cgroup-per-
// subsystem and required-link-abort semantics.
package launcher

import (
	"context"
	"fmt"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"

	"github.com/ctlcore/supervisor/cgroups"
	"github.com/ctlcore/supervisor/cgroups/freezer"
	"github.com/ctlcore/supervisor/internal/ctlerr"
	"github.com/ctlcore/supervisor/volume"
)

var log = logrus.WithField("component", "launcher")

// Task is the minimal shape the launcher needs from whatever owns
// process lifecycle: a pid once cloned, and the leaf cgroups/links that
// belong to it.
type Task struct {
	Name string
	Pid  int

	// LeafCgroups maps each subsystem the host cares about to the leaf
	// node the task's pid should be attached to (spec.md §4.1).
	LeafCgroups map[*cgroups.Subsystem]*cgroups.Node

	// Links are the volume links that must be bound into the task's
	// mount namespace before it resumes past clone (spec.md §2.9).
	Links []*volume.Link

	// Resources is the OCI-shaped resource limit set applied to every
	// leaf cgroup right after attach. Reusing runtime-spec's struct here
	// is a naming convenience, not a bundle-format commitment: this
	// module neither reads nor writes an OCI config.json.
	Resources *specs.LinuxResources

	// NetnsHandle is reserved for a future network-policy launcher step
	// (explicitly out of scope per spec.md's Non-goals); it is held here
	// so a namespace handle obtained during clone isn't dropped before
	// that step exists, but nothing in this module dials or configures
	// it.
	NetnsHandle *netlink.Handle
}

// PrepareAfterClone attaches pid to every configured leaf cgroup and
// applies t.Resources to each. It must run after clone(2)/fork(2)
// returns in the parent, before the child is allowed to resume past its
// synchronization barrier — cgroup membership and limits have to be
// established before the task can allocate resources that those limits
// should have governed from the first instruction.
func PrepareAfterClone(t *Task) error {
	for sub, node := range t.LeafCgroups {
		if err := node.Attach(t.Pid); err != nil {
			return ctlerr.Op("attach-cgroup", fmt.Sprintf("%s/%s", t.Name, sub.Name()), err)
		}
		if err := cgroups.ApplyResources(node, t.Resources); err != nil {
			return ctlerr.Op("apply-resources", fmt.Sprintf("%s/%s", t.Name, sub.Name()), err)
		}
	}
	return nil
}

// BindLinksBeforeResume binds every volume link needed by t into the
// task's mount namespace. A required link that fails to bind aborts the
// whole launch (the caller must kill pid and unwind); a non-required
// link failure only logs, per spec.md §2.9's "if target is non-empty
// and the container is running, immediately performs the bind mount."
func BindLinksBeforeResume(mgr *volume.Manager, t *Task) error {
	var bound []*volume.Link
	for _, l := range t.Links {
		_, err := mgr.Link(l.Volume, t.Name, l.Target, l.ReadOnly, l.Required)
		if err != nil {
			if l.Required {
				for _, b := range bound {
					_ = mgr.Unlink(b.Volume, t.Name, b.Target, false)
				}
				return ctlerr.Op("bind-link", t.Name, err)
			}
			log.WithError(err).WithField("task", t.Name).Warn("non-required link failed to bind before resume")
			continue
		}
		bound = append(bound, l)
	}
	return nil
}

// SyncTaskCgroups is the single operation resolving SPEC_FULL.md's Open
// Question #2 ("should cgroup attach and the freeze/thaw convergence
// wait be one operation or two"): it attaches pid to every leaf cgroup
// and, when freeze is true, additionally freezes the freezer leaf,
// verifies every pid the kernel reports as frozen there is attached to
// every other intended leaf cgroup, and thaws before returning (spec.md
// §4.6: "after start the launcher freezes, verifies every pid under the
// freezer is attached to every intended leaf cgroup, and thaws").
// Thawing always runs once freeze succeeds, even if verification fails,
// so a failed sync never leaves the task stuck frozen.
func SyncTaskCgroups(ctx context.Context, t *Task, freezerSub *cgroups.Subsystem, freeze bool) error {
	if err := PrepareAfterClone(t); err != nil {
		return err
	}
	if !freeze {
		return nil
	}
	node, ok := t.LeafCgroups[freezerSub]
	if !ok {
		return ctlerr.New(ctlerr.InvalidValue, "task %s has no freezer leaf configured", t.Name)
	}

	if err := freezer.Freeze(ctx, node); err != nil {
		return ctlerr.Op("freeze", t.Name, err)
	}

	verifyErr := verifyLeafAttachment(node, t.LeafCgroups)

	if err := freezer.Unfreeze(ctx, node); err != nil {
		if verifyErr != nil {
			return ctlerr.Op("verify-attachment", t.Name, verifyErr)
		}
		return ctlerr.Op("unfreeze", t.Name, err)
	}
	if verifyErr != nil {
		return ctlerr.Op("verify-attachment", t.Name, verifyErr)
	}
	return nil
}

// verifyLeafAttachment checks that every pid the kernel reports under
// freezerLeaf also appears under every other leaf cgroup in leaves —
// the freezer leaf is the reference point because freeze(2) convergence
// already proved those pids are quiesced.
func verifyLeafAttachment(freezerLeaf *cgroups.Node, leaves map[*cgroups.Subsystem]*cgroups.Node) error {
	frozenPids, err := freezerLeaf.GetProcesses()
	if err != nil {
		return err
	}
	for sub, leaf := range leaves {
		if leaf == freezerLeaf {
			continue
		}
		present, err := leaf.GetProcesses()
		if err != nil {
			return err
		}
		attached := make(map[int]bool, len(present))
		for _, pid := range present {
			attached[pid] = true
		}
		for _, pid := range frozenPids {
			if !attached[pid] {
				return ctlerr.New(ctlerr.Unknown, "pid %d frozen but not attached to %s leaf", pid, sub.Name())
			}
		}
	}
	return nil
}

// TeardownTask reverses PrepareAfterClone/BindLinksBeforeResume: it
// unlinks every volume link owned by t and removes its leaf cgroups,
// draining them first (spec.md §4.1's "remove tears down a non-root
// cgroup by relaxing reclaim knobs, then signaling and draining tasks").
func TeardownTask(mgr *volume.Manager, t *Task) {
	for _, l := range t.Links {
		if err := mgr.Unlink(l.Volume, t.Name, l.Target, false); err != nil {
			log.WithError(err).WithField("task", t.Name).Warn("failed to unlink volume during teardown")
		}
	}
	for sub, node := range t.LeafCgroups {
		if err := node.Remove(); err != nil {
			log.WithError(err).WithField("task", t.Name).WithField("subsystem", sub.Name()).
				Warn("failed to remove leaf cgroup during teardown")
		}
	}
}
