// Package ctlerr defines the stable error taxonomy shared by the cgroup
// and volume subsystems, in the style of docker/docker/volume/service's
// typed sentinel errors and OpErr wrapper.
package ctlerr

import (
	"fmt"
	"strings"
)

// Code is one of the stable taxonomy values every public operation
// reduces its failure to.
type Code int

const (
	Unknown Code = iota
	InvalidValue
	NotSupported
	Busy
	NoSpace
	Permission
	NotFound
	VolumeAlreadyExists
	VolumeNotReady
	LayerNotFound
	Quota
	Timeout
)

func (c Code) String() string {
	switch c {
	case InvalidValue:
		return "InvalidValue"
	case NotSupported:
		return "NotSupported"
	case Busy:
		return "Busy"
	case NoSpace:
		return "NoSpace"
	case Permission:
		return "Permission"
	case NotFound:
		return "NotFound"
	case VolumeAlreadyExists:
		return "VolumeAlreadyExists"
	case VolumeNotReady:
		return "VolumeNotReady"
	case LayerNotFound:
		return "LayerNotFound"
	case Quota:
		return "Quota"
	case Timeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// codedError is the concrete error type carrying a taxonomy Code, a
// diagnostic message, and optionally the errno that triggered it.
type codedError struct {
	code   Code
	msg    string
	errno  error
	wraps  error
}

func (e *codedError) Error() string {
	var b strings.Builder
	b.WriteString(e.code.String())
	if e.msg != "" {
		b.WriteString(": ")
		b.WriteString(e.msg)
	}
	if e.errno != nil {
		fmt.Fprintf(&b, " (errno: %v)", e.errno)
	}
	return b.String()
}

func (e *codedError) Unwrap() error { return e.wraps }

// Code marker interfaces, mirroring volume/service/errors.go's
// NotFound()/Conflict() tagging so callers can use errors.As against the
// behavior they care about instead of comparing codes directly.
func (e *codedError) NotFound() bool         { return e.code == NotFound }
func (e *codedError) Conflict() bool         { return e.code == Busy || e.code == VolumeAlreadyExists }
func (e *codedError) InvalidParameter() bool { return e.code == InvalidValue }

// New builds a codedError with the given code and formatted message.
func New(code Code, format string, args ...interface{}) error {
	return &codedError{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a taxonomy code to an underlying error, preserving it for
// errors.Unwrap/errors.Is chains.
func Wrap(code Code, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, msg: fmt.Sprintf(format, args...), wraps: err}
}

// WithErrno attaches the raw errno value that triggered a kernel-facing
// failure, per spec.md §7 ("every kernel interaction carries the
// underlying errno as an auxiliary field").
func WithErrno(code Code, errno error, format string, args ...interface{}) error {
	return &codedError{code: code, msg: fmt.Sprintf(format, args...), errno: errno}
}

// CodeOf extracts the taxonomy code from err, walking Unwrap chains.
// Errors with no attached code are reported as Unknown.
func CodeOf(err error) Code {
	for err != nil {
		if ce, ok := err.(*codedError); ok {
			return ce.code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return Unknown
}

func Is(err error, code Code) bool { return CodeOf(err) == code }

func IsNotFound(err error) bool            { return Is(err, NotFound) }
func IsBusy(err error) bool                { return Is(err, Busy) }
func IsNoSpace(err error) bool             { return Is(err, NoSpace) }
func IsInvalidValue(err error) bool        { return Is(err, InvalidValue) }
func IsTimeout(err error) bool             { return Is(err, Timeout) }
func IsVolumeAlreadyExists(err error) bool { return Is(err, VolumeAlreadyExists) }
func IsVolumeNotReady(err error) bool      { return Is(err, VolumeNotReady) }

// OpErr describes the operation, resource name, and underlying error for
// a failed call, in the style of docker/docker/volume/service.OpErr.
type OpErr struct {
	Op   string
	Name string
	Err  error
}

func (e *OpErr) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := e.Op
	if e.Name != "" {
		s += " " + e.Name
	}
	return s + ": " + e.Err.Error()
}

func (e *OpErr) Unwrap() error { return e.Err }

func Op(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &OpErr{Op: op, Name: name, Err: err}
}
