// Package cgroups implements the cgroup hierarchy manager: the
// Subsystem value object, the Cgroup Node tree, its process-wide
// registry, and the Cgroup Snapshot discovery operation.
//
// Grounded on docker/docker/pkg/cgroups and
// docker/docker/pkg/libcontainer/cgroups (raw fs-based controller
// management, pre-dating docker's move to delegating this to
// containerd/cgroups) — this module re-implements that layer rather
// than importing containerd/cgroups, since implementing it is the
// point of the spec this module satisfies.
package cgroups

import (
	"sort"
	"strings"
	"sync"
)

// Subsystem names recognized by the host, fixed at snapshot time
// (spec.md §3).
const (
	NameCpuset    = "cpuset"
	NameCpu       = "cpu"
	NameCpuacct   = "cpuacct"
	NameMemory    = "memory"
	NameDevices   = "devices"
	NameFreezer   = "freezer"
	NameNetCls    = "net_cls"
	NameNetPrio   = "net_prio"
	NameBlkio     = "blkio"
	NamePerfEvent = "perf_event"
	NameHugetlb   = "hugetlb"
	NameSystemd   = "name=systemd"
)

// knownOrder is the canonical ordering used when deriving a comma-joined
// subsystem-set name (spec.md §4.3's "sorted by the subsystem registry's
// canonical order").
var knownOrder = []string{
	NameCpuset, NameCpu, NameCpuacct, NameMemory, NameDevices, NameFreezer,
	NameNetCls, NameNetPrio, NameBlkio, NamePerfEvent, NameHugetlb, NameSystemd,
}

var knownSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(knownOrder))
	for _, n := range knownOrder {
		m[n] = struct{}{}
	}
	return m
}()

// IsKnown reports whether name is one of the fixed recognized
// subsystems.
func IsKnown(name string) bool {
	_, ok := knownSet[strings.ToLower(name)]
	return ok
}

// Subsystem names one cgroup controller. Two handles with equal name are
// equal; the registry guarantees pointer-equality iff name-equality by
// interning.
type Subsystem struct {
	name string
}

func (s *Subsystem) Name() string { return s.name }

func (s *Subsystem) String() string { return s.name }

// SubsystemRegistry interns Subsystems by lowercase name.
type SubsystemRegistry struct {
	mu   sync.Mutex
	subs map[string]*Subsystem
}

// NewSubsystemRegistry constructs an empty registry.
func NewSubsystemRegistry() *SubsystemRegistry {
	return &SubsystemRegistry{subs: make(map[string]*Subsystem)}
}

// Get interns and returns the Subsystem named name.
func (r *SubsystemRegistry) Get(name string) *Subsystem {
	name = strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[name]; ok {
		return s
	}
	s := &Subsystem{name: name}
	r.subs[name] = s
	return s
}

// Memory, Freezer, and Cpu are the three named accessors the task
// launcher special-cases (spec.md §4.1).
func (r *SubsystemRegistry) Memory() *Subsystem  { return r.Get(NameMemory) }
func (r *SubsystemRegistry) Freezer() *Subsystem { return r.Get(NameFreezer) }
func (r *SubsystemRegistry) Cpu() *Subsystem      { return r.Get(NameCpu) }

// SetKey canonicalizes a slice of Subsystems into a deterministic,
// comma-joined key using the registry's canonical order. Two mounts
// naming the same set of controllers, in any order, produce the same
// key — this is the tie-break basis for CgroupNode root equality.
func SetKey(subs []*Subsystem) string {
	names := make([]string, len(subs))
	for i, s := range subs {
		names[i] = s.name
	}
	sort.Slice(names, func(i, j int) bool {
		return canonicalIndex(names[i]) < canonicalIndex(names[j])
	})
	return strings.Join(names, ",")
}

func canonicalIndex(name string) int {
	for i, n := range knownOrder {
		if n == name {
			return i
		}
	}
	return len(knownOrder)
}
