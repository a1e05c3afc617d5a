package cgroups

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ctlcore/supervisor/internal/ctlerr"
	"github.com/ctlcore/supervisor/internal/kernfile"
	imount "github.com/ctlcore/supervisor/internal/mount"
)

var log = logrus.WithField("component", "cgroups")

// Node is the Cgroup Node of spec.md §3: a tree node identified by
// (parent, name) for non-roots and by subsystem-set for roots. It owns
// no kernel state directly; every operation mediates the kernel
// directory under Path() via internal/kernfile.
type Node struct {
	name       string
	parent     *Node
	depth      int
	mode       os.FileMode
	registry   *Registry
	mountDesc  *imount.Descriptor // present only on roots
	subsystems []*Subsystem       // present only on roots

	childMu  sync.Mutex
	children map[string]*Node
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool { return n.parent == nil }

// Name returns the node's path segment ("/" for the root).
func (n *Node) Name() string { return n.name }

// Parent returns the node's parent, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Depth is 0 for a root, 1 for its immediate children, and so on.
func (n *Node) Depth() int { return n.depth }

// Subsystems returns the ordered subsystem set of a root node; nil for
// non-roots.
func (n *Node) Subsystems() []*Subsystem { return n.subsystems }

// Path is the recursive path composition of spec.md §3: a root returns
// its mount point, a child returns parent.Path() + "/" + name.
func (n *Node) Path() string {
	if n.IsRoot() {
		return n.mountDesc.Mountpoint
	}
	return n.parent.Path() + "/" + n.name
}

func (n *Node) knobPath(knob string) kernfile.Path {
	return kernfile.Path(n.Path()).Join(knob)
}

// Create is idempotent. For a root: mount the shared tmpfs anchor if
// absent, then mount this subsystem-set mount unless a structurally
// equal mount already exists. For a non-root: recursively create the
// parent, then mkdir-if-missing with mode.
func (n *Node) Create() error {
	if n.IsRoot() {
		return n.createRoot()
	}
	if err := n.parent.Create(); err != nil {
		return err
	}
	return kernfile.Path(n.Path()).MkdirIfMissing(n.mode)
}

func (n *Node) createRoot() error {
	table, err := imount.Snapshot()
	if err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "snapshot mount table")
	}

	anchor := n.registry.tmpfsRoot
	if !table.Contains(imount.NewDescriptor("cgroup_root", anchor, "tmpfs", 0, "")) {
		if err := kernfile.Path(anchor).MkdirIfMissing(0o755); err != nil {
			return err
		}
		anchorDesc := imount.NewDescriptor("cgroup_root", anchor, "tmpfs", 0, "mode=755")
		if err := imount.Mount(anchorDesc); err != nil {
			return ctlerr.Wrap(ctlerr.Unknown, err, "mount cgroup tmpfs anchor at %s", anchor)
		}
	}

	if table.Contains(*n.mountDesc) {
		return nil
	}
	if err := kernfile.Path(n.mountDesc.Mountpoint).MkdirIfMissing(n.mode); err != nil {
		return err
	}
	if err := imount.Mount(*n.mountDesc); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "mount cgroup root %s", n.mountDesc.Mountpoint)
	}
	return nil
}

// DrainConfig bounds the remove() drain loop, since an unbounded SIGINT
// loop is fragile against a task that ignores it (spec.md §9 Open
// Question). After softAttempts poll iterations remove() escalates from
// SIGTERM to SIGKILL; Deadline bounds the whole operation.
type DrainConfig struct {
	PollInterval time.Duration
	SoftAttempts int
	Deadline     time.Duration
}

// DefaultDrainConfig mirrors the polling cadence used throughout the
// corpus's freezer/drain loops (short sleep, bounded retries).
var DefaultDrainConfig = DrainConfig{
	PollInterval: 50 * time.Millisecond,
	SoftAttempts: 20,
	Deadline:     10 * time.Second,
}

// Remove tears down the cgroup's kernel directory. For a root, it
// unmounts. For a non-root, it relaxes reclaim knobs, then loops
// signaling every pid in tasks until the cgroup is empty, escalating
// SIGTERM→SIGKILL, before rmdir. Both paths are idempotent against an
// already-absent directory.
func (n *Node) Remove() error {
	return n.RemoveWithDrain(DefaultDrainConfig)
}

func (n *Node) RemoveWithDrain(cfg DrainConfig) error {
	if n.IsRoot() {
		return imount.UnmountIfMounted(n.Path())
	}

	if !kernfile.Path(n.Path()).Exists() {
		return nil
	}

	n.relax()

	deadline := time.Now().Add(cfg.Deadline)
	attempt := 0
	for {
		empty, err := n.IsEmpty()
		if err != nil {
			return err
		}
		if empty {
			break
		}
		if time.Now().After(deadline) {
			return ctlerr.New(ctlerr.Timeout, "drain cgroup %s timed out", n.Path())
		}

		sig := unix.SIGTERM
		if attempt >= cfg.SoftAttempts {
			sig = unix.SIGKILL
		}
		pids, err := n.GetTasks()
		if err != nil {
			return err
		}
		for _, pid := range pids {
			if err := unix.Kill(pid, sig); err != nil && err != unix.ESRCH {
				log.WithField("cgroup", n.Path()).WithError(err).Warn("failed to signal task during drain")
			}
		}
		attempt++
		time.Sleep(cfg.PollInterval)
	}

	return kernfile.Path(n.Path()).Remove()
}

// relax resets reclaim/notify knobs that can otherwise wedge rmdir,
// mirroring Porto's cgroup.cpp Relax() behavior (SPEC_FULL.md
// "Supplemented features"). Best-effort: failures are swallowed since
// not every controller exposes these knobs.
func (n *Node) relax() {
	_ = n.knobPath("memory.force_empty").Write("1")
	_ = n.knobPath("notify_on_release").Write("0")
}

// GetProcesses reads cgroup.procs as a list of pids.
func (n *Node) GetProcesses() ([]int, error) {
	return n.knobPath("cgroup.procs").ReadInts()
}

// GetTasks reads tasks as a list of pids.
func (n *Node) GetTasks() ([]int, error) {
	return n.knobPath("tasks").ReadInts()
}

// IsEmpty reports whether tasks is empty.
func (n *Node) IsEmpty() (bool, error) {
	tasks, err := n.GetTasks()
	if err != nil {
		if ctlerr.IsNotFound(err) {
			return true, nil
		}
		return false, err
	}
	return len(tasks) == 0, nil
}

// Attach appends pid to cgroup.procs for a non-root node; a no-op for
// roots.
func (n *Node) Attach(pid int) error {
	if n.IsRoot() {
		return nil
	}
	return n.knobPath("cgroup.procs").Write(fmt.Sprintf("%d\n", pid))
}

// Reattach validates that n's kernel directory already exists without
// creating it — the discovery-time counterpart to Create() used when a
// restarted supervisor rediscovers a cgroup via Snapshot rather than
// building it fresh.
func (n *Node) Reattach() error {
	if !kernfile.Path(n.Path()).Exists() {
		return ctlerr.New(ctlerr.NotFound, "cgroup %s does not exist", n.Path())
	}
	return nil
}

// GetKnobValue reads a single knob's text value.
func (n *Node) GetKnobValue(knob string) (string, error) {
	return n.knobPath(knob).Read()
}

// GetKnobValueAsLines reads a knob as multiple lines.
func (n *Node) GetKnobValueAsLines(knob string) ([]string, error) {
	return n.knobPath(knob).ReadLines()
}

// SetKnobValue writes value to knob, appending instead of truncating
// when append is true.
func (n *Node) SetKnobValue(knob, value string, append bool) error {
	return n.knobPath(knob).WriteOrAppend(value, append)
}

// FindChildren lists the subdirectories of Path(), registers each as a
// child Node of n, and recurses. It returns a flat list of the subtree
// including n itself. Child links are weak in the sense that the
// registry, not n, is what keeps grandchildren alive across calls — see
// DESIGN.md for why this module uses a flat owning registry instead of
// the arena/weak-ref scheme spec.md §9 sketches for a GC-less host
// language.
func (n *Node) FindChildren() ([]*Node, error) {
	out := []*Node{n}

	if !kernfile.Path(n.Path()).Exists() {
		return out, nil
	}

	names, err := kernfile.Path(n.Path()).ListDirs()
	if err != nil {
		if ctlerr.IsNotFound(err) {
			return out, nil
		}
		return nil, err
	}

	for _, name := range names {
		child := n.registry.getChild(n, name)
		sub, err := child.FindChildren()
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}
