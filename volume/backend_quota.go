package volume

/*
#include <sys/quota.h>
#include <linux/dqblk_xfs.h>
#include <linux/quota.h>
#include <stdlib.h>

#ifndef PRJQUOTA
#define PRJQUOTA 2
#endif
#ifndef Q_XSETPQLIM
#define Q_XSETPQLIM QCMD(Q_XSETQLIM, PRJQUOTA)
#endif
#ifndef Q_XGETPQUOTA
#define Q_XGETPQUOTA QCMD(Q_XGETQUOTA, PRJQUOTA)
#endif
*/
import "C"

import (
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ctlcore/supervisor/internal/ctlerr"
	"github.com/ctlcore/supervisor/internal/kernfile"
	imount "github.com/ctlcore/supervisor/internal/mount"
)

// QuotaBackend is a plain directory whose space/inode limits are
// enforced by the host filesystem's XFS project quota mechanism instead
// of a separate loop-mounted filesystem, so many volumes can share one
// underlying XFS filesystem while still getting hard limits. Grounded
// on docker/docker/daemon/graphdriver/quota/projectquota.go's
// Q_XSETPQLIM/Q_XGETPQUOTA control calls.
type QuotaBackend struct {
	baseBackend

	nextProjectID uint32
}

func (b *QuotaBackend) Configure(v *Volume) error {
	if v.SpaceLimit == 0 && v.InodeLimit == 0 {
		return ctlerr.New(ctlerr.InvalidValue, "quota backend requires space_limit or inode_limit")
	}
	return nil
}

// Restore re-reads the on-disk XFS project id rather than trusting the
// journaled one outright, so a volume survives being restored onto a
// different filesystem instance than the one that created it: if the
// directory's xattr disagrees with the journaled v.DeviceIndex, the
// xattr wins and the journaled value is corrected to match.
func (b *QuotaBackend) Restore(v *Volume) error {
	if !kernfile.Path(v.StoragePath).Exists() {
		return ctlerr.New(ctlerr.NotFound, "quota volume storage missing at %s", v.StoragePath)
	}

	onDisk, err := getProjectID(v.StoragePath)
	if err != nil {
		return ctlerr.Wrap(ctlerr.Quota, err, "read project id from %s", v.StoragePath)
	}
	if onDisk != 0 && int(onDisk) != v.DeviceIndex {
		log.WithField("volume", v.ID).
			WithField("journaled_project_id", v.DeviceIndex).
			WithField("ondisk_project_id", onDisk).
			Warn("reconciling quota project id from on-disk xattr")
		v.DeviceIndex = int(onDisk)
	}
	if onDisk > b.nextProjectID {
		b.nextProjectID = onDisk
	}
	return nil
}

func (b *QuotaBackend) Build(v *Volume) error {
	if err := kernfile.Path(v.StoragePath).MkdirIfMissing(v.permMode()); err != nil {
		return err
	}

	b.nextProjectID++
	projectID := b.nextProjectID
	v.DeviceIndex = int(projectID)

	if err := setProjectID(v.StoragePath, projectID); err != nil {
		return ctlerr.Wrap(ctlerr.Quota, err, "set project id on %s", v.StoragePath)
	}
	if err := setProjectQuota(v.StoragePath, projectID, v.SpaceLimit, v.InodeLimit); err != nil {
		return ctlerr.Wrap(ctlerr.Quota, err, "set project quota for %s", v.StoragePath)
	}

	desc := imount.NewDescriptor(v.StoragePath, v.Path, "none", 0, "bind")
	if err := kernfile.Path(v.Path).MkdirIfMissing(v.permMode()); err != nil {
		return err
	}
	if err := imount.Mount(desc); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "bind quota dir %s at %s", v.StoragePath, v.Path)
	}
	return nil
}

func (b *QuotaBackend) Delete(v *Volume) error {
	if err := imount.UnmountIfMounted(v.Path); err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "unmount quota volume %s", v.Path)
	}
	if err := kernfile.Path(v.Path).Remove(); err != nil {
		return err
	}
	if v.KeepStorage {
		return nil
	}
	if v.DeviceIndex != 0 {
		_ = setProjectQuota(v.StoragePath, uint32(v.DeviceIndex), 0, 0)
	}
	return kernfile.Path(v.StoragePath).RemoveAll()
}

func (b *QuotaBackend) StatFS(v *Volume, out *StatFS) error {
	if v.DeviceIndex == 0 {
		return statfsPath(v.StoragePath, out)
	}
	used, avail, usedInodes, availInodes, err := getProjectQuotaUsage(v.StoragePath, uint32(v.DeviceIndex))
	if err != nil {
		return ctlerr.Wrap(ctlerr.Quota, err, "get project quota usage for %s", v.StoragePath)
	}
	out.UsedSpace, out.AvailSpace = used, avail
	out.UsedInodes, out.AvailInodes = usedInodes, availInodes
	return nil
}

func (b *QuotaBackend) Resize(v *Volume, spaceLimit, inodeLimit int64) error {
	if v.DeviceIndex == 0 {
		return ctlerr.New(ctlerr.NotSupported, "volume has no project id assigned")
	}
	return setProjectQuota(v.StoragePath, uint32(v.DeviceIndex), spaceLimit, inodeLimit)
}

type fsxattr struct {
	Flags     uint32
	Version   uint32
	ProjectID uint32
	_         [12]byte
}

const fsIocFsgetxattr = 0x801c581f
const fsIocFssetxattr = 0x401c5820

func getFSXattr(path string) (fsxattr, error) {
	var attr fsxattr
	f, err := os.Open(path)
	if err != nil {
		return attr, err
	}
	defer f.Close()
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), fsIocFsgetxattr, uintptr(unsafe.Pointer(&attr))); errno != 0 {
		return attr, errno
	}
	return attr, nil
}

// setProjectID assigns an XFS project id to path via FS_IOC_FSSETXATTR,
// the prerequisite for per-directory project quota enforcement.
func setProjectID(path string, projectID uint32) error {
	attr, err := getFSXattr(path)
	if err != nil {
		return err
	}
	attr.ProjectID = projectID

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), fsIocFssetxattr, uintptr(unsafe.Pointer(&attr))); errno != 0 {
		return errno
	}
	return nil
}

// getProjectID reads back the XFS project id already assigned to path,
// used by Restore to reconcile against the journaled value.
func getProjectID(path string) (uint32, error) {
	attr, err := getFSXattr(path)
	if err != nil {
		return 0, err
	}
	return attr.ProjectID, nil
}

// setProjectQuota issues Q_XSETPQLIM for the XFS device backing path.
func setProjectQuota(path string, projectID uint32, spaceLimit, inodeLimit int64) error {
	device, err := backingDevice(path)
	if err != nil {
		return err
	}

	var d C.struct_fs_disk_quota
	d.d_version = C.FS_DQUOT_VERSION
	d.d_id = C.__u32(projectID)
	d.d_flags = C.FS_PROJ_QUOTA
	if spaceLimit > 0 {
		blocks := C.__u64(spaceLimit / 512)
		d.d_blk_hardlimit = blocks
		d.d_blk_softlimit = blocks
		d.d_fieldmask |= C.FS_DQ_BHARD | C.FS_DQ_BSOFT
	}
	if inodeLimit > 0 {
		d.d_ino_hardlimit = C.__u64(inodeLimit)
		d.d_ino_softlimit = C.__u64(inodeLimit)
		d.d_fieldmask |= C.FS_DQ_IHARD | C.FS_DQ_ISOFT
	}

	cDevice := C.CString(device)
	defer C.free(unsafe.Pointer(cDevice))
	ret := C.quotactl(C.Q_XSETPQLIM, cDevice, C.int(projectID), (*C.char)(unsafe.Pointer(&d)))
	if ret != 0 {
		return unix.Errno(ret)
	}
	return nil
}

func getProjectQuotaUsage(path string, projectID uint32) (used, avail, usedInodes, availInodes int64, err error) {
	device, derr := backingDevice(path)
	if derr != nil {
		return 0, 0, 0, 0, derr
	}

	var d C.struct_fs_disk_quota
	cDevice := C.CString(device)
	defer C.free(unsafe.Pointer(cDevice))
	ret := C.quotactl(C.Q_XGETPQUOTA, cDevice, C.int(projectID), (*C.char)(unsafe.Pointer(&d)))
	if ret != 0 {
		return 0, 0, 0, 0, unix.Errno(ret)
	}

	used = int64(d.d_bcount) * 512
	if d.d_blk_hardlimit > 0 {
		avail = int64(d.d_blk_hardlimit)*512 - used
	}
	usedInodes = int64(d.d_icount)
	if d.d_ino_hardlimit > 0 {
		availInodes = int64(d.d_ino_hardlimit) - usedInodes
	}
	return used, avail, usedInodes, availInodes, nil
}

// backingDevice resolves the block device backing the filesystem
// mounted at or above path, by taking the longest-prefix mountpoint
// match from the live mount table.
func backingDevice(path string) (string, error) {
	table, err := imount.Snapshot()
	if err != nil {
		return "", err
	}
	var best string
	var bestSource string
	for _, info := range table.Infos() {
		if strings.HasPrefix(path, info.Mountpoint) && len(info.Mountpoint) > len(best) {
			best = info.Mountpoint
			bestSource = info.Source
		}
	}
	if bestSource == "" {
		return "", ctlerr.New(ctlerr.NotFound, "no mount found backing %s", path)
	}
	return bestSource, nil
}
