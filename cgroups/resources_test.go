package cgroups

import (
	"os"
	"path/filepath"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"gotest.tools/v3/assert"
)

func fakeResourceLeaf(t *testing.T) *Node {
	t.Helper()
	reg := NewRegistry(t.TempDir())
	subs := NewSubsystemRegistry()
	root := reg.GetRootForSubsystem(subs.Memory())
	leaf := reg.Get("ct1", root)
	assert.NilError(t, os.MkdirAll(leaf.Path(), 0o755))
	return leaf
}

func TestApplyResourcesWritesMemoryAndCpuKnobs(t *testing.T) {
	leaf := fakeResourceLeaf(t)

	limit := int64(256 << 20)
	shares := uint64(512)
	r := &specs.LinuxResources{
		Memory: &specs.LinuxMemory{Limit: &limit},
		CPU:    &specs.LinuxCPU{Shares: &shares, Cpus: "0-1"},
	}
	assert.NilError(t, ApplyResources(leaf, r))

	got, err := leaf.GetKnobValue("memory.limit_in_bytes")
	assert.NilError(t, err)
	assert.Equal(t, got, "268435456")

	got, err = leaf.GetKnobValue("cpu.shares")
	assert.NilError(t, err)
	assert.Equal(t, got, "512")

	got, err = leaf.GetKnobValue("cpuset.cpus")
	assert.NilError(t, err)
	assert.Equal(t, got, "0-1")
}

func TestApplyResourcesNilIsNoop(t *testing.T) {
	leaf := fakeResourceLeaf(t)
	assert.NilError(t, ApplyResources(leaf, nil))

	_, err := os.Stat(filepath.Join(leaf.Path(), "memory.limit_in_bytes"))
	assert.Equal(t, os.IsNotExist(err), true)
}
