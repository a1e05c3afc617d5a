package volume

import (
	"fmt"

	"github.com/ctlcore/supervisor/internal/ctlerr"
	"github.com/ctlcore/supervisor/internal/kernfile"
	imount "github.com/ctlcore/supervisor/internal/mount"
)

// TmpfsBackend mounts an in-memory tmpfs sized to SpaceLimit at v.Path.
type TmpfsBackend struct {
	baseBackend
	fstype string
}

// NewTmpfsBackend and NewHugetmpfsBackend construct the two tmpfs-family
// backends, sharing all logic except the mount fstype and size option
// key (hugetlbfs sizes pages, not bytes directly, but both accept
// size=N via the same mount(2) data string in practice for this host).
func NewTmpfsBackend() *TmpfsBackend     { return &TmpfsBackend{fstype: "tmpfs"} }
func NewHugetmpfsBackend() *TmpfsBackend { return &TmpfsBackend{fstype: "hugetlbfs"} }

func (b *TmpfsBackend) Configure(v *Volume) error {
	if v.SpaceLimit == 0 {
		return ctlerr.New(ctlerr.InvalidValue, "%s backend requires space_limit", b.fstype)
	}
	return nil
}

func (b *TmpfsBackend) Restore(v *Volume) error { return nil }

func (b *TmpfsBackend) Build(v *Volume) error {
	if err := kernfile.Path(v.Path).MkdirIfMissing(v.permMode()); err != nil {
		return err
	}
	opts := fmt.Sprintf("size=%d,mode=%o", v.SpaceLimit, v.permMode())
	if v.InodeLimit != 0 {
		opts += fmt.Sprintf(",nr_inodes=%d", v.InodeLimit)
	}
	desc := imount.NewDescriptor(b.fstype, v.Path, b.fstype, 0, opts)
	table, err := imount.Snapshot()
	if err != nil {
		return err
	}
	if table.Contains(desc) {
		return nil
	}
	if err := imount.Mount(desc); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "mount %s at %s", b.fstype, v.Path)
	}
	return nil
}

func (b *TmpfsBackend) Delete(v *Volume) error {
	if err := imount.UnmountIfMounted(v.Path); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "unmount %s volume %s", b.fstype, v.Path)
	}
	return kernfile.Path(v.Path).Remove()
}

func (b *TmpfsBackend) StatFS(v *Volume, out *StatFS) error {
	return statfsPath(v.Path, out)
}

func (b *TmpfsBackend) Resize(v *Volume, spaceLimit, inodeLimit int64) error {
	// tmpfs size is adjustable by remounting with a new size= option.
	opts := fmt.Sprintf("remount,size=%d", spaceLimit)
	desc := imount.NewDescriptor(b.fstype, v.Path, b.fstype, 0, opts)
	if err := imount.Mount(desc); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "resize %s volume %s", b.fstype, v.Path)
	}
	return nil
}
