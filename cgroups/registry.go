package cgroups

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	delegatedsystemd "github.com/ctlcore/supervisor/cgroups/systemd"
	imount "github.com/ctlcore/supervisor/internal/mount"
)

// Registry is the process-wide intern table for Cgroup Nodes. Per
// spec.md §9, it holds the single owning strong handle for every live
// node; parent/child relations are plain pointers rather than weak
// references, since Go's GC makes the C++-style cycle concern moot — the
// registry map is what anchors lifetime, not reference cycles. A node
// persists for the life of the process (or until ForgetSubtree is used
// to prune a torn-down root), matching spec.md's "until the registry
// drops its last strong reference."
//
// A registry-level lock is held only during lookup/insertion; per-node
// kernel I/O (Create/Remove/knob access) runs lock-free once a handle is
// returned, per spec.md §5.
type Registry struct {
	tmpfsRoot string
	mode      os.FileMode

	// systemdUnit, when set via UseSystemdUnit, is this process's own
	// unit name; GetRootForSubsystems resolves the "name=systemd" root
	// through systemd's delegation bookkeeping instead of a raw tmpfs
	// mount path. Set once at startup, before concurrent use.
	systemdUnit string

	mu       sync.Mutex
	roots    map[string]*Node
	children map[*Node]map[string]*Node
}

// NewRegistry constructs a registry whose root cgroups are mounted
// under tmpfsRoot (e.g. "/sys/fs/cgroup"), the fixed anchor of spec.md
// §6.
func NewRegistry(tmpfsRoot string) *Registry {
	return &Registry{
		tmpfsRoot: tmpfsRoot,
		mode:      0o755,
		roots:     make(map[string]*Node),
		children:  make(map[*Node]map[string]*Node),
	}
}

// Get returns the interned non-root node for (parent, name); a second
// call with an equal (parent, name) returns the same handle.
func (r *Registry) Get(name string, parent *Node) *Node {
	if parent == nil {
		panic("cgroups: Get requires a non-nil parent; use GetRoot for roots")
	}
	return r.getChild(parent, name)
}

func (r *Registry) getChild(parent *Node, name string) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.children[parent]
	if !ok {
		byName = make(map[string]*Node)
		r.children[parent] = byName
	}
	if n, ok := byName[name]; ok {
		return n
	}
	n := &Node{
		name:     name,
		parent:   parent,
		depth:    parent.depth + 1,
		mode:     r.mode,
		registry: r,
	}
	byName[name] = n
	return n
}

// GetRoot returns the interned root node for an explicit mount
// descriptor and subsystem set.
func (r *Registry) GetRoot(desc imount.Descriptor, subs []*Subsystem) *Node {
	key := SetKey(subs)
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.roots[key]; ok {
		return n
	}
	d := desc
	n := &Node{
		name:       "/",
		mode:       r.mode,
		registry:   r,
		mountDesc:  &d,
		subsystems: subs,
	}
	r.roots[key] = n
	return n
}

// GetRootForSubsystem synthesizes a root for a single subsystem,
// mounted at "<tmpfsRoot>/<name>" with that name as the sole option
// flag — the single-subsystem convenience form of spec.md §4.2.
func (r *Registry) GetRootForSubsystem(sub *Subsystem) *Node {
	return r.GetRootForSubsystems([]*Subsystem{sub})
}

// GetRootForSubsystems synthesizes a root for a comma-joined
// subsystem-set mount at "<tmpfsRoot>/<csv>", unless subs is exactly the
// delegated "name=systemd" controller and UseSystemdUnit has configured
// a unit name, in which case the mountpoint is resolved through
// systemd's own bookkeeping for that unit instead.
func (r *Registry) GetRootForSubsystems(subs []*Subsystem) *Node {
	csv := SetKey(subs)
	if mountpoint, ok := r.delegatedSystemdRoot(subs); ok {
		desc := imount.NewDescriptor("systemd", mountpoint, "cgroup", 0, csv)
		return r.GetRoot(desc, subs)
	}
	mountpoint := filepath.Join(r.tmpfsRoot, csv)
	desc := imount.NewDescriptor("cgroup", mountpoint, "cgroup", 0, csv)
	return r.GetRoot(desc, subs)
}

// UseSystemdUnit configures the registry to resolve the delegated
// "name=systemd" controller root via systemd's own bookkeeping for
// unitName rather than a raw tmpfs mount path, for hosts where that
// controller is mounted by systemd itself. Call before any concurrent
// lookup; the field is read lock-free by GetRootForSubsystems.
func (r *Registry) UseSystemdUnit(unitName string) {
	r.systemdUnit = unitName
}

// delegatedSystemdRoot resolves the control group path systemd assigned
// to r.systemdUnit, when subs is exactly the "name=systemd" controller.
// Grounded on the teacher's apply_systemd.go, which queries
// GetUnitTypeProperties for "ControlGroup" rather than joining the
// tmpfs anchor directly.
func (r *Registry) delegatedSystemdRoot(subs []*Subsystem) (string, bool) {
	if r.systemdUnit == "" || len(subs) != 1 || subs[0].Name() != NameSystemd {
		return "", false
	}
	if !delegatedsystemd.Available() {
		return "", false
	}
	cg, err := delegatedsystemd.UnitControlGroup(r.systemdUnit)
	if err != nil || cg == "" {
		return "", false
	}
	return filepath.Join(r.tmpfsRoot, "systemd", cg), true
}

// ForgetSubtree evicts n and its previously-discovered children from
// the registry, used after a root is permanently torn down so a future
// GetRoot for a reused subsystem-set doesn't resurrect a stale handle.
func (r *Registry) ForgetSubtree(n *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, child := range r.children[n] {
		r.forgetLocked(child)
	}
	delete(r.children, n)
	if n.IsRoot() {
		delete(r.roots, SetKey(n.subsystems))
	} else if n.parent != nil {
		if byName, ok := r.children[n.parent]; ok {
			delete(byName, n.name)
		}
	}
}

func (r *Registry) forgetLocked(n *Node) {
	for _, child := range r.children[n] {
		r.forgetLocked(child)
	}
	delete(r.children, n)
}

// nodeString renders a node for diagnostics.
func nodeString(n *Node) string {
	if n.IsRoot() {
		return fmt.Sprintf("root[%s]", strings.Join(subsystemNames(n.subsystems), ","))
	}
	return n.Path()
}

func subsystemNames(subs []*Subsystem) []string {
	names := make([]string, len(subs))
	for i, s := range subs {
		names[i] = s.Name()
	}
	return names
}
