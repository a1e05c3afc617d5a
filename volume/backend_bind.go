package volume

import (
	"github.com/ctlcore/supervisor/internal/ctlerr"
	"github.com/ctlcore/supervisor/internal/kernfile"
	imount "github.com/ctlcore/supervisor/internal/mount"
)

// BindBackend bind-mounts an existing host directory (v.Storage) at
// v.Path, read-only or read-write. It claims no place budget of its own
// since the bound directory's space is owned elsewhere.
type BindBackend struct {
	baseBackend
}

func (BindBackend) Configure(v *Volume) error {
	if v.Storage == "" {
		return ctlerr.New(ctlerr.InvalidValue, "bind backend requires storage")
	}
	if !kernfile.Path(v.StoragePath).Exists() {
		return ctlerr.New(ctlerr.NotFound, "bind source %s does not exist", v.StoragePath)
	}
	return nil
}

func (BindBackend) Restore(v *Volume) error {
	return nil
}

func (BindBackend) Build(v *Volume) error {
	if err := kernfile.Path(v.Path).MkdirIfMissing(v.permMode()); err != nil {
		return err
	}
	desc := imount.NewDescriptor(v.StoragePath, v.Path, "none", 0, bindOptions(v.ReadOnly))
	table, err := imount.Snapshot()
	if err != nil {
		return err
	}
	if table.Contains(desc) {
		return nil
	}
	if err := imount.Mount(desc); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "bind mount %s at %s", v.StoragePath, v.Path)
	}
	return nil
}

func (BindBackend) Delete(v *Volume) error {
	if err := imount.UnmountIfMounted(v.Path); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "unmount bind volume %s", v.Path)
	}
	return kernfile.Path(v.Path).Remove()
}

func (BindBackend) StatFS(v *Volume, out *StatFS) error {
	return statfsPath(v.StoragePath, out)
}

func (BindBackend) ClaimPlace(v *Volume) string { return "" }

func bindOptions(readOnly bool) string {
	if readOnly {
		return "bind,ro"
	}
	return "bind"
}
