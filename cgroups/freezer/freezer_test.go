package freezer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/ctlcore/supervisor/cgroups"
)

// fakeLeaf builds a cgroups.Node rooted at a temp directory, bypassing
// any real mount/cgroup kernel interaction, so freezer.state is just a
// regular file this test controls directly.
func fakeLeaf(t *testing.T) *cgroups.Node {
	t.Helper()
	reg := cgroups.NewRegistry(t.TempDir())
	subs := cgroups.NewSubsystemRegistry()
	root := reg.GetRootForSubsystem(subs.Freezer())
	leaf := reg.Get("ct1", root)
	assert.NilError(t, os.MkdirAll(leaf.Path(), 0o755))
	return leaf
}

func TestFreezeWritesAndConvergesImmediately(t *testing.T) {
	leaf := fakeLeaf(t)
	statePath := filepath.Join(leaf.Path(), "freezer.state")
	assert.NilError(t, os.WriteFile(statePath, []byte("THAWED"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NilError(t, Freeze(ctx, leaf))

	got, err := os.ReadFile(statePath)
	assert.NilError(t, err)
	assert.Equal(t, string(got), StateFrozen)
}

func TestUnfreezeWritesThawedState(t *testing.T) {
	leaf := fakeLeaf(t)
	statePath := filepath.Join(leaf.Path(), "freezer.state")
	assert.NilError(t, os.WriteFile(statePath, []byte(StateFrozen), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NilError(t, Unfreeze(ctx, leaf))

	got, err := os.ReadFile(statePath)
	assert.NilError(t, err)
	assert.Equal(t, string(got), StateThawed)
}

func TestFreezeOnMissingKnobReturnsNotFound(t *testing.T) {
	leaf := fakeLeaf(t)
	// freezer.state was never created.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := Freeze(ctx, leaf)
	assert.ErrorContains(t, err, "freezer.state")
}
