package ctlerr

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

func TestCodeOfWalksUnwrapChain(t *testing.T) {
	base := New(NotFound, "volume %s missing", "v1")
	wrapped := Op("delete", "v1", base)

	assert.Equal(t, CodeOf(wrapped), NotFound)
	assert.Equal(t, IsNotFound(wrapped), true)
}

func TestCodeOfDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, CodeOf(errors.New("plain error")), Unknown)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Equal(t, Wrap(NotFound, nil, "x") == nil, true)
}

func TestOpErrUnwrap(t *testing.T) {
	inner := New(Busy, "cgroup busy")
	err := Op("remove", "cg1", inner)

	assert.ErrorContains(t, err, "remove cg1")
	assert.Equal(t, errors.Unwrap(err), inner)
	assert.Equal(t, IsBusy(err), true)
}

func TestWithErrnoPreservesCode(t *testing.T) {
	err := WithErrno(Permission, errors.New("EPERM"), "write %s", "knob")
	assert.Equal(t, CodeOf(err), Permission)
	assert.ErrorContains(t, err, "errno")
}
