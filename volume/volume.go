// Package volume implements the Volume Manager: pluggable storage
// backends, a link graph binding volumes into container mount
// namespaces, quotas/guarantees, and crash-recoverable persistence
// (spec.md §2.6-2.8, §4.4-4.5).
//
// Grounded on docker/docker/volume (Volume/Driver interfaces),
// docker/docker/volume/local (the plain-directory backend shape), and
// docker/docker/volume/service (restore-on-start, typed errors).
package volume

import (
	"sync"
)

// BackendType names one of the nine pluggable storage backends of
// spec.md §2.6.
type BackendType string

const (
	BackendPlain     BackendType = "plain"
	BackendBind      BackendType = "bind"
	BackendRBD       BackendType = "rbd"
	BackendLoop      BackendType = "loop"
	BackendOverlay   BackendType = "overlay"
	BackendTmpfs     BackendType = "tmpfs"
	BackendHugetmpfs BackendType = "hugetmpfs"
	BackendQuota     BackendType = "quota"
	BackendLVM       BackendType = "lvm"
)

// Credentials names the unix (uid, gid) pair an object is owned by.
type Credentials struct {
	UID int
	GID int
}

// Volume is the managed entity combining a backend, a storage location,
// layers, quotas/guarantees, ownership and a set of active links into
// containers (spec.md §3).
type Volume struct {
	mu sync.Mutex

	ID           string
	Path         string
	InternalPath string
	IsAutoPath   bool
	Place        string
	Storage      string
	StoragePath  string
	BackendType  BackendType

	state State

	ReadOnly bool
	Layers   []string

	SpaceLimit      int64
	InodeLimit      int64
	SpaceGuarantee  int64
	InodeGuarantee  int64
	ClaimedSpace    int64

	OwnerContainer string
	OwnerCred      Credentials
	VolumeCred     Credentials
	Permissions    uint32
	Creator        string

	PrivateBlob string
	Labels      map[string]string

	Links  []*Link
	Nested map[string]*Volume

	KeepStorage bool
	DeviceName  string
	DeviceIndex int

	backend Backend
}

// State returns the volume's current lifecycle state under lock.
func (v *Volume) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// setState is the single mutation point for v.state. It does not
// validate the transition. Manager.transition calls it with v.mu held,
// after a CanTransition check that only logs a warning on a move outside
// the partial order; RestoreAll calls it directly, without v.mu and
// without that check.
func (v *Volume) setState(s State) {
	v.state = s
}

// HasRequiredLink reports whether any link in Links is Required and
// still owned by a live (non-empty Container) reference — the
// destroyability guard of spec.md §3.
func (v *Volume) HasRequiredLink() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, l := range v.Links {
		if l.Required && l.Container != "" {
			return true
		}
	}
	return false
}

// LinkCount returns len(Links) under lock.
func (v *Volume) LinkCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.Links)
}

// Backend exposes the volume's backend implementation, for callers
// (e.g. Manager) that already hold the volumes lock and need to invoke
// backend operations directly.
func (v *Volume) Backend() Backend { return v.backend }
