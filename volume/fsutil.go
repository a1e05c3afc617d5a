package volume

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/ctlcore/supervisor/internal/ctlerr"
)

// permMode returns v.Permissions as an os.FileMode, defaulting to 0755
// when unset.
func (v *Volume) permMode() os.FileMode {
	if v.Permissions == 0 {
		return 0o755
	}
	return os.FileMode(v.Permissions)
}

// statfsPath fills out with statfs(2) results for path, the shared
// implementation every backend without its own quota accounting uses
// for Backend.StatFS.
func statfsPath(path string, out *StatFS) error {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return ctlerr.WithErrno(ctlerr.Unknown, err, "statfs %s", path)
	}
	bsize := int64(st.Bsize)
	out.AvailSpace = int64(st.Bavail) * bsize
	out.UsedSpace = (int64(st.Blocks) - int64(st.Bfree)) * bsize
	out.AvailInodes = int64(st.Ffree)
	out.UsedInodes = int64(st.Files) - int64(st.Ffree)
	return nil
}
