package volume

import (
	"github.com/ctlcore/supervisor/internal/ctlerr"
	"github.com/ctlcore/supervisor/internal/kernfile"
)

// PlainBackend is the simplest backend: a plain directory under the
// place, with no mount of its own (spec.md §2.6). Grounded on
// docker/docker/volume/local's Root/localVolume, minus the driver-proxy
// indirection docker needs for out-of-tree plugins. When a volume sets
// space_limit or inode_limit, spec.md §4.4 ("plain: ... quota via the
// quota backend if space limits are set") has this backend delegate
// every operation to an embedded QuotaBackend instead of doing its own
// unenforced mkdir.
type PlainBackend struct {
	baseBackend
	quota *QuotaBackend
}

func NewPlainBackend() PlainBackend { return PlainBackend{quota: &QuotaBackend{}} }

func (b PlainBackend) quotaEnforced(v *Volume) bool {
	return v.SpaceLimit != 0 || v.InodeLimit != 0
}

func (b PlainBackend) Configure(v *Volume) error {
	if v.Layers != nil {
		return ctlerr.New(ctlerr.InvalidValue, "plain backend does not support layers")
	}
	if b.quotaEnforced(v) {
		return b.quota.Configure(v)
	}
	return nil
}

func (b PlainBackend) Restore(v *Volume) error {
	if b.quotaEnforced(v) {
		return b.quota.Restore(v)
	}
	if !kernfile.Path(v.StoragePath).Exists() {
		return ctlerr.New(ctlerr.NotFound, "plain volume storage missing at %s", v.StoragePath)
	}
	return nil
}

func (b PlainBackend) Build(v *Volume) error {
	if b.quotaEnforced(v) {
		return b.quota.Build(v)
	}
	if err := kernfile.Path(v.StoragePath).MkdirIfMissing(v.permMode()); err != nil {
		return err
	}
	return kernfile.Path(v.Path).MkdirIfMissing(v.permMode())
}

func (b PlainBackend) Delete(v *Volume) error {
	if b.quotaEnforced(v) {
		return b.quota.Delete(v)
	}
	if v.KeepStorage {
		return kernfile.Path(v.Path).RemoveAll()
	}
	if err := kernfile.Path(v.Path).RemoveAll(); err != nil {
		return err
	}
	return kernfile.Path(v.StoragePath).RemoveAll()
}

func (b PlainBackend) StatFS(v *Volume, out *StatFS) error {
	if b.quotaEnforced(v) {
		return b.quota.StatFS(v, out)
	}
	return statfsPath(v.StoragePath, out)
}

func (b PlainBackend) Resize(v *Volume, spaceLimit, inodeLimit int64) error {
	if v.DeviceIndex != 0 {
		return b.quota.Resize(v, spaceLimit, inodeLimit)
	}
	return ctlerr.New(ctlerr.NotSupported, "plain backend without quota limits does not support resize")
}
