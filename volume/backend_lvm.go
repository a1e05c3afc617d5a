package volume

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ctlcore/supervisor/internal/ctlerr"
	"github.com/ctlcore/supervisor/internal/kernfile"
	imount "github.com/ctlcore/supervisor/internal/mount"
)

// LVMBackend carves a logical volume out of v.Storage (a volume group
// name) sized to SpaceLimit, formats it, and mounts it at v.Path. Like
// RBDBackend, it drives the standard `lvm2` CLI rather than binding
// libdevmapper via cgo, keeping failure modes (missing binary, VG out
// of space) in the same place operators already look.
type LVMBackend struct {
	baseBackend
	fstype string
}

func NewLVMBackend() *LVMBackend { return &LVMBackend{fstype: "ext4"} }

func (b *LVMBackend) Configure(v *Volume) error {
	if v.Storage == "" {
		return ctlerr.New(ctlerr.InvalidValue, "lvm backend requires storage=<volume-group>")
	}
	if v.SpaceLimit == 0 {
		return ctlerr.New(ctlerr.InvalidValue, "lvm backend requires space_limit")
	}
	return nil
}

func (b *LVMBackend) lvName(v *Volume) string { return "ctl-" + v.ID }

func (b *LVMBackend) devicePath(v *Volume) string {
	return fmt.Sprintf("/dev/%s/%s", v.Storage, b.lvName(v))
}

func (b *LVMBackend) Restore(v *Volume) error {
	if !kernfile.Path(b.devicePath(v)).Exists() {
		return ctlerr.New(ctlerr.NotFound, "logical volume %s missing", b.devicePath(v))
	}
	v.DeviceName = b.devicePath(v)
	return nil
}

func (b *LVMBackend) Build(v *Volume) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !kernfile.Path(b.devicePath(v)).Exists() {
		sizeArg := fmt.Sprintf("%dB", v.SpaceLimit)
		if _, err := runLVM(ctx, "lvcreate", "-L", sizeArg, "-n", b.lvName(v), v.Storage); err != nil {
			return ctlerr.Wrap(ctlerr.Unknown, err, "lvcreate %s/%s", v.Storage, b.lvName(v))
		}
		if _, err := runLVM(ctx, "mkfs."+b.fstype, b.devicePath(v)); err != nil {
			return ctlerr.Wrap(ctlerr.Unknown, err, "mkfs.%s %s", b.fstype, b.devicePath(v))
		}
	}
	v.DeviceName = b.devicePath(v)

	if err := kernfile.Path(v.Path).MkdirIfMissing(v.permMode()); err != nil {
		return err
	}
	desc := imount.NewDescriptor(v.DeviceName, v.Path, b.fstype, 0, "")
	if err := imount.Mount(desc); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "mount logical volume %s at %s", v.DeviceName, v.Path)
	}
	return nil
}

func (b *LVMBackend) Delete(v *Volume) error {
	if err := imount.UnmountIfMounted(v.Path); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "unmount lvm volume %s", v.Path)
	}
	if err := kernfile.Path(v.Path).Remove(); err != nil {
		return err
	}
	if v.KeepStorage {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := runLVM(ctx, "lvremove", "-f", b.devicePath(v)); err != nil {
		log.WithError(err).WithField("volume", v.ID).Warn("lvremove failed")
	}
	return nil
}

func (b *LVMBackend) StatFS(v *Volume, out *StatFS) error {
	return statfsPath(v.Path, out)
}

func (b *LVMBackend) Resize(v *Volume, spaceLimit, inodeLimit int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sizeArg := fmt.Sprintf("%dB", spaceLimit)
	if _, err := runLVM(ctx, "lvresize", "-L", sizeArg, b.devicePath(v)); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "lvresize %s", b.devicePath(v))
	}
	_, err := runLVM(ctx, "resize2fs", b.devicePath(v))
	return err
}

func runLVM(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}
