package volume

import (
	"fmt"
	"strings"

	"github.com/ctlcore/supervisor/internal/ctlerr"
	"github.com/ctlcore/supervisor/internal/kernfile"
	imount "github.com/ctlcore/supervisor/internal/mount"
)

// OverlayBackend stacks v.Layers (lower directories, furthest-first)
// beneath a writable upper/work pair under v.StoragePath, and mounts
// the result at v.Path. Grounded on
// docker/docker/daemon/graphdriver/overlayutils's lowerdir-string
// construction, without the graphdriver's image-layer bookkeeping.
type OverlayBackend struct {
	baseBackend
}

func (OverlayBackend) Configure(v *Volume) error {
	if len(v.Layers) == 0 {
		return ctlerr.New(ctlerr.InvalidValue, "overlay backend requires at least one layer")
	}
	return nil
}

func (b OverlayBackend) upperDir(v *Volume) string { return v.StoragePath + "/upper" }
func (b OverlayBackend) workDir(v *Volume) string  { return v.StoragePath + "/work" }

func (b OverlayBackend) Restore(v *Volume) error {
	if v.ReadOnly {
		return nil
	}
	if !kernfile.Path(b.upperDir(v)).Exists() {
		return ctlerr.New(ctlerr.NotFound, "overlay upperdir missing at %s", b.upperDir(v))
	}
	return nil
}

// Build mounts v.Layers as lowerdir, bottom-to-top. A read-only overlay
// (spec.md §4.5's "if read_only is true and no upper layer is
// requested, the resulting mount omits upperdir/workdir") never
// allocates an upper/work pair at all, since nothing will ever write
// through it.
func (b OverlayBackend) Build(v *Volume) error {
	dirs := []string{v.Path}
	if !v.ReadOnly {
		dirs = append(dirs, b.upperDir(v), b.workDir(v))
	}
	for _, dir := range dirs {
		if err := kernfile.Path(dir).MkdirIfMissing(v.permMode()); err != nil {
			return err
		}
	}

	// lowerdir is listed highest-priority-first by the kernel, while
	// v.Layers is given furthest-from-top-first, so reverse it here
	// (spec.md §2.6's layer ordering).
	lowers := make([]string, len(v.Layers))
	for i, l := range v.Layers {
		lowers[len(v.Layers)-1-i] = l
	}

	var opts string
	if v.ReadOnly {
		opts = fmt.Sprintf("lowerdir=%s", strings.Join(lowers, ":"))
	} else {
		opts = fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
			strings.Join(lowers, ":"), b.upperDir(v), b.workDir(v))
	}

	desc := imount.NewDescriptor("overlay", v.Path, "overlay", 0, opts)
	if err := imount.Mount(desc); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "mount overlay at %s", v.Path)
	}
	return nil
}

func (b OverlayBackend) Delete(v *Volume) error {
	if err := imount.UnmountIfMounted(v.Path); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "unmount overlay volume %s", v.Path)
	}
	if err := kernfile.Path(v.Path).Remove(); err != nil {
		return err
	}
	if v.KeepStorage {
		return nil
	}
	return kernfile.Path(v.StoragePath).RemoveAll()
}

func (b OverlayBackend) StatFS(v *Volume, out *StatFS) error {
	if v.ReadOnly {
		return statfsPath(v.Path, out)
	}
	return statfsPath(b.upperDir(v), out)
}
