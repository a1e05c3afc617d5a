package cgroups

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestRegistryGetInternsByParentAndName(t *testing.T) {
	reg := NewRegistry("/sys/fs/cgroup")
	subs := NewSubsystemRegistry()
	root := reg.GetRootForSubsystem(subs.Memory())

	a := reg.Get("container-1", root)
	b := reg.Get("container-1", root)
	assert.Equal(t, a, b)

	c := reg.Get("container-2", root)
	assert.Equal(t, a == c, false)
}

func TestRegistryGetRootInternsBySubsystemSet(t *testing.T) {
	reg := NewRegistry("/sys/fs/cgroup")
	subs := NewSubsystemRegistry()

	a := reg.GetRootForSubsystems([]*Subsystem{subs.Cpu(), subs.Memory()})
	b := reg.GetRootForSubsystems([]*Subsystem{subs.Memory(), subs.Cpu()})
	assert.Equal(t, a, b)
}

func TestNodePathComposition(t *testing.T) {
	reg := NewRegistry("/sys/fs/cgroup")
	subs := NewSubsystemRegistry()
	root := reg.GetRootForSubsystem(subs.Memory())
	assert.Equal(t, root.Path(), "/sys/fs/cgroup/memory")

	child := reg.Get("ct1", root)
	assert.Equal(t, child.Path(), "/sys/fs/cgroup/memory/ct1")

	grandchild := reg.Get("leaf", child)
	assert.Equal(t, grandchild.Path(), "/sys/fs/cgroup/memory/ct1/leaf")
	assert.Equal(t, grandchild.Depth(), 2)
}

func TestUseSystemdUnitFallsBackWithoutDBus(t *testing.T) {
	reg := NewRegistry("/sys/fs/cgroup")
	subs := NewSubsystemRegistry()
	reg.UseSystemdUnit("supervisord.service")

	root := reg.GetRootForSubsystem(subs.Get(NameSystemd))
	assert.Equal(t, root.Path(), "/sys/fs/cgroup/name=systemd")
}

func TestForgetSubtreeEvictsChildren(t *testing.T) {
	reg := NewRegistry("/sys/fs/cgroup")
	subs := NewSubsystemRegistry()
	root := reg.GetRootForSubsystem(subs.Memory())
	child := reg.Get("ct1", root)

	reg.ForgetSubtree(root)

	freshChild := reg.Get("ct1", root)
	assert.Equal(t, child == freshChild, false)
}
