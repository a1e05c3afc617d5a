// Package kernfile implements the Path/File Primitive: a typed path with
// read/write/append/list/stat/remove operations returning the taxonomy
// errors in internal/ctlerr. Every higher component (cgroup knob I/O,
// /proc reads, volume metadata) goes through this instead of touching
// os directly, mirroring how docker/docker/pkg/system centralizes raw
// filesystem access behind a small typed surface.
package kernfile

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/ctlcore/supervisor/internal/ctlerr"
)

// Path is a typed filesystem path used for kernel-interface I/O.
type Path string

// Join returns a new Path with elem appended.
func (p Path) Join(elem ...string) Path {
	return Path(filepath.Join(append([]string{string(p)}, elem...)...))
}

func (p Path) String() string { return string(p) }

// Exists reports whether the path currently exists.
func (p Path) Exists() bool {
	_, err := os.Lstat(string(p))
	return err == nil
}

// Stat reports file metadata, translating ENOENT into ctlerr.NotFound.
func (p Path) Stat() (os.FileInfo, error) {
	fi, err := os.Stat(string(p))
	if err != nil {
		return nil, translate("stat", p, err)
	}
	return fi, nil
}

// Read returns the full contents of the file, trimmed of one trailing
// newline (kernel knob files are newline-terminated text).
func (p Path) Read() (string, error) {
	b, err := os.ReadFile(string(p))
	if err != nil {
		return "", translate("read", p, err)
	}
	return strings.TrimSuffix(string(b), "\n"), nil
}

// ReadLines reads the file and splits it into non-empty lines.
func (p Path) ReadLines() ([]string, error) {
	f, err := os.Open(string(p))
	if err != nil {
		return nil, translate("read", p, err)
	}
	defer f.Close()

	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := s.Err(); err != nil {
		return nil, translate("read", p, err)
	}
	return lines, nil
}

// ReadInts reads the file as a list of newline-separated integers, as
// used by cgroup.procs and tasks.
func (p Path) ReadInts() ([]int, error) {
	lines, err := p.ReadLines()
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(lines))
	for _, line := range lines {
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			return nil, ctlerr.Wrap(ctlerr.Unknown, err, "parse int in %s", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// Write overwrites the file with value, creating it with mode 0644 if
// absent.
func (p Path) Write(value string) error {
	if err := os.WriteFile(string(p), []byte(value), 0o644); err != nil {
		return translate("write", p, err)
	}
	return nil
}

// Append opens the file for append and writes value, used for knob
// writes where the kernel distinguishes append-vs-truncate semantics
// (e.g. devices.allow).
func (p Path) Append(value string) error {
	f, err := os.OpenFile(string(p), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return translate("append", p, err)
	}
	defer f.Close()
	if _, err := f.WriteString(value); err != nil {
		return translate("append", p, err)
	}
	return nil
}

// WriteOrAppend dispatches to Write or Append based on append.
func (p Path) WriteOrAppend(value string, append bool) error {
	if append {
		return p.Append(value)
	}
	return p.Write(value)
}

// List returns the base names of directory entries directly under p.
func (p Path) List() ([]string, error) {
	entries, err := os.ReadDir(string(p))
	if err != nil {
		return nil, translate("list", p, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// ListDirs returns the base names of subdirectories directly under p.
func (p Path) ListDirs() ([]string, error) {
	entries, err := os.ReadDir(string(p))
	if err != nil {
		return nil, translate("list", p, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// MkdirIfMissing creates the directory (and parents) with mode, treating
// an already-existing directory as success, matching the idempotence
// required of CgroupNode.create().
func (p Path) MkdirIfMissing(mode os.FileMode) error {
	if err := os.MkdirAll(string(p), mode); err != nil && !os.IsExist(err) {
		return translate("mkdir", p, err)
	}
	return nil
}

// Remove removes the path if present; absence is success.
func (p Path) Remove() error {
	if err := os.Remove(string(p)); err != nil && !os.IsNotExist(err) {
		return translate("remove", p, err)
	}
	return nil
}

// RemoveAll recursively removes the path; absence is success.
func (p Path) RemoveAll() error {
	if err := os.RemoveAll(string(p)); err != nil {
		return translate("remove", p, err)
	}
	return nil
}

func translate(op string, p Path, err error) error {
	if errno, ok := asErrno(err); ok {
		switch errno {
		case unix.ENOENT:
			return ctlerr.WithErrno(ctlerr.NotFound, errno, "%s %s", op, p)
		case unix.EACCES, unix.EPERM:
			return ctlerr.WithErrno(ctlerr.Permission, errno, "%s %s", op, p)
		case unix.EBUSY:
			return ctlerr.WithErrno(ctlerr.Busy, errno, "%s %s", op, p)
		case unix.ENOSPC:
			return ctlerr.WithErrno(ctlerr.NoSpace, errno, "%s %s", op, p)
		}
	}
	if os.IsNotExist(err) {
		return ctlerr.Wrap(ctlerr.NotFound, err, "%s %s", op, p)
	}
	if os.IsPermission(err) {
		return ctlerr.Wrap(ctlerr.Permission, err, "%s %s", op, p)
	}
	return errors.Wrapf(err, "%s %s", op, p)
}

func asErrno(err error) (unix.Errno, bool) {
	for err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return errno, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}
