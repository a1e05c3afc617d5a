package cgroups

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestSubsystemRegistryInterns(t *testing.T) {
	r := NewSubsystemRegistry()
	a := r.Get("Memory")
	b := r.Get("memory")
	assert.Equal(t, a, b)
	assert.Equal(t, a.Name(), "memory")
}

func TestSetKeyIsOrderIndependentAndCanonical(t *testing.T) {
	r := NewSubsystemRegistry()
	cpu := r.Get(NameCpu)
	mem := r.Get(NameMemory)

	k1 := SetKey([]*Subsystem{cpu, mem})
	k2 := SetKey([]*Subsystem{mem, cpu})
	assert.Equal(t, k1, k2)
	assert.Equal(t, k1, "cpu,memory")
}

func TestIsKnownRecognizesFixedSet(t *testing.T) {
	assert.Equal(t, IsKnown("memory"), true)
	assert.Equal(t, IsKnown("MEMORY"), true)
	assert.Equal(t, IsKnown("bogus"), false)
}
