package volume

import "github.com/ctlcore/supervisor/internal/ctlerr"

// StatFS reports used/available space and inodes, the shape backends
// fill in for Backend.StatFS (spec.md §4.4).
type StatFS struct {
	UsedSpace   int64
	AvailSpace  int64
	UsedInodes  int64
	AvailInodes int64
}

// Backend is the closed operation set every storage backend
// implements (spec.md §4.4, §9 "Polymorphic backends" — modeled here as
// an interface rather than a tagged variant, since Go's interfaces are
// the idiomatic analogue and every backend is in this module so there's
// no need for an external-plugin indirection like docker/docker/volume's
// Driver/proxy split).
type Backend interface {
	// Configure validates v's spec and resolves defaults. Must not touch
	// disk.
	Configure(v *Volume) error

	// Restore re-attaches to state persisted in the journal. Must be
	// idempotent against a crashed prior Build.
	Restore(v *Volume) error

	// Build materializes the backing store at v.StoragePath and mounts
	// it at v.Path. On error it must clean up any partial state before
	// returning.
	Build(v *Volume) error

	// Delete unmounts, releases the backing store, and releases any
	// loop/lvm/rbd/quota resource. Idempotent.
	Delete(v *Volume) error

	// StatFS reports used/available space and inodes into out.
	StatFS(v *Volume, out *StatFS) error

	// Resize changes v's space/inode limits in place. Backends that
	// cannot resize in place return ctlerr.NotSupported.
	Resize(v *Volume, spaceLimit, inodeLimit int64) error

	// ClaimPlace returns the key space is accounted against; defaults to
	// v.Place.
	ClaimPlace(v *Volume) string
}

// baseBackend provides the default ClaimPlace and Resize used by
// backends that don't override them, mirroring how
// docker/docker/volume/local's Root embeds common behavior rather than
// repeating it per backend.
type baseBackend struct{}

func (baseBackend) ClaimPlace(v *Volume) string {
	if v.Place != "" {
		return v.Place
	}
	return "default"
}

func (baseBackend) Resize(v *Volume, spaceLimit, inodeLimit int64) error {
	return ctlerr.New(ctlerr.NotSupported, "backend %s does not support resize", v.BackendType)
}
