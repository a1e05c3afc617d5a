package volume

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ctlcore/supervisor/internal/ctlerr"
	"github.com/ctlcore/supervisor/internal/kernfile"
	imount "github.com/ctlcore/supervisor/internal/mount"
)

// LoopBackend formats and mounts a sparse file through a loop device,
// giving the volume a real filesystem with its own quota enforcement
// independent of the place's filesystem. Grounded on
// docker/docker/pkg/loopback's ioctl wrappers (LoopCtlGetFree,
// LoopSetFd, LoopSetStatus64) around /dev/loop-control.
type LoopBackend struct {
	baseBackend
	fstype string // defaults to ext4 when unset
}

func NewLoopBackend() *LoopBackend { return &LoopBackend{fstype: "ext4"} }

func (b *LoopBackend) Configure(v *Volume) error {
	if v.SpaceLimit == 0 {
		return ctlerr.New(ctlerr.InvalidValue, "loop backend requires space_limit")
	}
	return nil
}

func (b *LoopBackend) imagePath(v *Volume) string {
	return v.StoragePath + ".img"
}

func (b *LoopBackend) Restore(v *Volume) error {
	if !kernfile.Path(b.imagePath(v)).Exists() {
		return ctlerr.New(ctlerr.NotFound, "loop image missing at %s", b.imagePath(v))
	}
	return nil
}

func (b *LoopBackend) Build(v *Volume) error {
	image := b.imagePath(v)
	if !kernfile.Path(image).Exists() {
		if err := createSparseFile(image, v.SpaceLimit); err != nil {
			return ctlerr.Wrap(ctlerr.Unknown, err, "create loop image %s", image)
		}
		if err := formatFilesystem(image, b.fstype); err != nil {
			return ctlerr.Wrap(ctlerr.Unknown, err, "format loop image %s", image)
		}
	}

	dev, err := attachLoop(image)
	if err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "attach loop device for %s", image)
	}
	v.DeviceName = dev

	if err := kernfile.Path(v.Path).MkdirIfMissing(v.permMode()); err != nil {
		return err
	}
	desc := imount.NewDescriptor(dev, v.Path, b.fstype, 0, "")
	if err := imount.Mount(desc); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "mount loop device %s at %s", dev, v.Path)
	}
	return nil
}

func (b *LoopBackend) Delete(v *Volume) error {
	if err := imount.UnmountIfMounted(v.Path); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "unmount loop volume %s", v.Path)
	}
	if v.DeviceName != "" {
		if err := detachLoop(v.DeviceName); err != nil {
			log.WithError(err).WithField("volume", v.ID).Warn("failed to detach loop device")
		}
	}
	if err := kernfile.Path(v.Path).Remove(); err != nil {
		return err
	}
	if v.KeepStorage {
		return nil
	}
	return kernfile.Path(b.imagePath(v)).Remove()
}

func (b *LoopBackend) StatFS(v *Volume, out *StatFS) error {
	return statfsPath(v.Path, out)
}

// createSparseFile truncates a file to size, leaving it sparse on
// filesystems that support holes.
func createSparseFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

// formatFilesystem shells out to mkfs.<fstype> against path, mirroring
// LVMBackend.Build's mkfs invocation for a freshly carved logical
// volume.
func formatFilesystem(path, fstype string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "mkfs."+fstype, path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mkfs.%s %s: %w: %s", fstype, path, err, stderr.String())
	}
	return nil
}

// attachLoop asks /dev/loop-control for a free /dev/loopN device and
// binds it to imagePath via LOOP_SET_FD, mirroring
// docker/docker/pkg/loopback.AttachLoopDevice.
func attachLoop(imagePath string) (string, error) {
	ctrl, err := os.OpenFile("/dev/loop-control", os.O_RDWR, 0)
	if err != nil {
		return "", err
	}
	defer ctrl.Close()

	idx, _, errno := unix.Syscall(unix.SYS_IOCTL, ctrl.Fd(), loopCtlGetFree, 0)
	if errno != 0 {
		return "", errno
	}

	devPath := fmt.Sprintf("/dev/loop%d", idx)
	dev, err := os.OpenFile(devPath, os.O_RDWR, 0)
	if err != nil {
		return "", err
	}
	defer dev.Close()

	img, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return "", err
	}
	defer img.Close()

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, dev.Fd(), loopSetFd, img.Fd()); errno != 0 {
		return "", errno
	}
	return devPath, nil
}

func detachLoop(devPath string) error {
	dev, err := os.OpenFile(devPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer dev.Close()
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, dev.Fd(), loopClrFd, 0); errno != 0 {
		return errno
	}
	return nil
}

// ioctl request numbers for loop devices, per linux/loop.h.
const (
	loopSetFd    = 0x4C00
	loopClrFd    = 0x4C01
	loopCtlGetFree = 0x4C82
)
