package launcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ctlcore/supervisor/cgroups"
	"github.com/ctlcore/supervisor/cgroups/freezer"
)

func fakeLeaf(t *testing.T, subName string) (*cgroups.Registry, *cgroups.SubsystemRegistry, *cgroups.Node) {
	t.Helper()
	reg := cgroups.NewRegistry(t.TempDir())
	subs := cgroups.NewSubsystemRegistry()
	root := reg.GetRootForSubsystem(subs.Get(subName))
	leaf := reg.Get("ct1", root)
	assert.NilError(t, os.MkdirAll(leaf.Path(), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(leaf.Path(), "cgroup.procs"), []byte(""), 0o644))
	return reg, subs, leaf
}

func TestPrepareAfterCloneAttachesPid(t *testing.T) {
	_, subs, leaf := fakeLeaf(t, cgroups.NameMemory)
	task := &Task{
		Name: "ct1",
		Pid:  12345,
		LeafCgroups: map[*cgroups.Subsystem]*cgroups.Node{
			subs.Memory(): leaf,
		},
	}
	assert.NilError(t, PrepareAfterClone(task))

	procs, err := leaf.GetProcesses()
	assert.NilError(t, err)
	assert.Equal(t, len(procs), 1)
	assert.Equal(t, procs[0], 12345)
}

func TestSyncTaskCgroupsFreezesVerifiesAndThaws(t *testing.T) {
	reg, subs, memLeaf := fakeLeaf(t, cgroups.NameMemory)

	freezerRoot := reg.GetRootForSubsystem(subs.Freezer())
	freezerLeaf := reg.Get("ct1", freezerRoot)
	assert.NilError(t, os.MkdirAll(freezerLeaf.Path(), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(freezerLeaf.Path(), "cgroup.procs"), []byte(""), 0o644))
	assert.NilError(t, os.WriteFile(filepath.Join(freezerLeaf.Path(), "freezer.state"), []byte(freezer.StateThawed), 0o644))

	freezerSub := subs.Freezer()
	task := &Task{
		Name: "ct1",
		Pid:  4242,
		LeafCgroups: map[*cgroups.Subsystem]*cgroups.Node{
			subs.Memory(): memLeaf,
			freezerSub:    freezerLeaf,
		},
	}

	assert.NilError(t, SyncTaskCgroups(context.Background(), task, freezerSub, true))

	state, err := freezerLeaf.GetKnobValue("freezer.state")
	assert.NilError(t, err)
	assert.Equal(t, state, freezer.StateThawed)

	procs, err := memLeaf.GetProcesses()
	assert.NilError(t, err)
	assert.Equal(t, len(procs), 1)
	assert.Equal(t, procs[0], 4242)
}

func TestVerifyLeafAttachmentDetectsMissingPid(t *testing.T) {
	reg, subs, memLeaf := fakeLeaf(t, cgroups.NameMemory)

	freezerRoot := reg.GetRootForSubsystem(subs.Freezer())
	freezerLeaf := reg.Get("ct1", freezerRoot)
	assert.NilError(t, os.MkdirAll(freezerLeaf.Path(), 0o755))
	// freezer reports two frozen pids but the memory leaf only saw one
	// of them get attached, the partial-attach case verification exists
	// to catch.
	assert.NilError(t, os.WriteFile(filepath.Join(freezerLeaf.Path(), "cgroup.procs"), []byte("4242\n9999\n"), 0o644))
	assert.NilError(t, os.WriteFile(filepath.Join(memLeaf.Path(), "cgroup.procs"), []byte("4242\n"), 0o644))

	err := verifyLeafAttachment(freezerLeaf, map[*cgroups.Subsystem]*cgroups.Node{
		subs.Memory(): memLeaf,
	})
	assert.ErrorContains(t, err, "not attached")
}
