// Package mount implements the Mount Registry: a snapshot reader of the
// process's mount table and an imperative mount/unmount operator.
//
// Grounded on docker/docker/pkg/mount (deprecated.go / deprecated_linux.go),
// which is itself a thin wrapper over github.com/moby/sys/mount and
// github.com/moby/sys/mountinfo. We keep that split: mountinfo supplies
// the read side, moby/sys/mount supplies the imperative side.
package mount

import (
	"github.com/moby/sys/mount"
	"github.com/moby/sys/mountinfo"
)

// Descriptor is the Mount Descriptor of spec.md §3. Equality is
// structural across all five fields — flags and option-flag sets are
// never normalized, since the kernel rejects duplicate mounts
// differently across versions (spec.md §9).
type Descriptor struct {
	Source      string
	Mountpoint  string
	Fstype      string
	MountFlags  uintptr
	OptionFlags map[string]struct{}
}

// NewDescriptor builds a Descriptor from a comma-separated option string.
func NewDescriptor(source, mountpoint, fstype string, flags uintptr, options string) Descriptor {
	return Descriptor{
		Source:      source,
		Mountpoint:  mountpoint,
		Fstype:      fstype,
		MountFlags:  flags,
		OptionFlags: splitOptions(options),
	}
}

// Equal implements the structural equality predicate of spec.md §3 and
// §9 ("Mount-table equality"): same source, mountpoint, fstype, flag
// bitset, and option-flag set.
func (d Descriptor) Equal(other Descriptor) bool {
	if d.Source != other.Source || d.Mountpoint != other.Mountpoint ||
		d.Fstype != other.Fstype || d.MountFlags != other.MountFlags {
		return false
	}
	if len(d.OptionFlags) != len(other.OptionFlags) {
		return false
	}
	for k := range d.OptionFlags {
		if _, ok := other.OptionFlags[k]; !ok {
			return false
		}
	}
	return true
}

func splitOptions(options string) map[string]struct{} {
	set := make(map[string]struct{})
	start := 0
	for i := 0; i <= len(options); i++ {
		if i == len(options) || options[i] == ',' {
			if i > start {
				set[options[start:i]] = struct{}{}
			}
			start = i + 1
		}
	}
	return set
}

// Table is a snapshot of the live mount table, read once via
// mountinfo.GetMounts and cached for the lifetime of the snapshot.
type Table struct {
	infos []*mountinfo.Info
}

// Snapshot reads the current process mount table.
func Snapshot() (*Table, error) {
	infos, err := mountinfo.GetMounts(nil)
	if err != nil {
		return nil, err
	}
	return &Table{infos: infos}, nil
}

// Infos returns the raw mountinfo entries, for callers (e.g. the cgroup
// Snapshot discovery walk) that need fstype/option inspection beyond
// Descriptor equality.
func (t *Table) Infos() []*mountinfo.Info { return t.infos }

// Contains reports whether a mount structurally equal to d is already
// present in the table — the predicate CgroupNode.create() uses to
// decide whether a root mount is already there.
func (t *Table) Contains(d Descriptor) bool {
	for _, info := range t.infos {
		if toDescriptor(info).Equal(d) {
			return true
		}
	}
	return false
}

func toDescriptor(info *mountinfo.Info) Descriptor {
	return Descriptor{
		Source:      info.Source,
		Mountpoint:  info.Mountpoint,
		Fstype:      info.FSType,
		MountFlags:  0,
		OptionFlags: splitOptions(info.VFSOptions),
	}
}

// Mount performs the mount(2) syscall for d. Callers are expected to have
// already checked Table.Contains when idempotence matters (spec.md
// §4.2's create()); Mount itself is not idempotent.
func Mount(d Descriptor) error {
	var opts string
	first := true
	for opt := range d.OptionFlags {
		if !first {
			opts += ","
		}
		opts += opt
		first = false
	}
	return mount.Mount(d.Source, d.Mountpoint, d.Fstype, mountOptsString(d.MountFlags, opts))
}

func mountOptsString(flags uintptr, data string) string {
	// moby/sys/mount's Mount signature takes flags baked into the data
	// string for named flags (ro, bind, ...); numeric MS_* flags beyond
	// those aren't re-derived here since every backend in this module
	// sets Descriptor.MountFlags to 0 and encodes everything through
	// OptionFlags/fstype-specific data, matching how tmpfs/overlay mounts
	// are actually issued in practice.
	return data
}

// Unmount performs umount2(2) on target. Absence of the mountpoint is
// not treated as success here; callers that need idempotent unmount call
// UnmountIfMounted.
func Unmount(target string) error {
	return mount.Unmount(target)
}

// UnmountIfMounted unmounts target only if mountinfo.Mounted reports it mounted,
// making teardown paths idempotent against an already-unmounted target.
func UnmountIfMounted(target string) error {
	mounted, err := mountinfo.Mounted(target)
	if err != nil {
		return err
	}
	if !mounted {
		return nil
	}
	return Unmount(target)
}
