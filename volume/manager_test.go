package volume

import (
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ctlcore/supervisor/volume/journal"
)

type fakeResolver struct {
	running map[string]string
}

func newFakeResolver() *fakeResolver { return &fakeResolver{running: map[string]string{}} }

func (f *fakeResolver) IsRunning(container string) bool {
	_, ok := f.running[container]
	return ok
}

func (f *fakeResolver) ResolveTarget(container, target string) (string, error) {
	return filepath.Join(f.running[container], target), nil
}

func newTestManager(t *testing.T) (*Manager, *fakeResolver) {
	t.Helper()
	dir := t.TempDir()
	j, err := journal.Open(filepath.Join(dir, "volumes.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { j.Close() })

	resolver := newFakeResolver()
	mgr := NewManager(Config{
		Journal:      j,
		Resolver:     resolver,
		Backends:     map[BackendType]Backend{BackendPlain: PlainBackend{}, BackendOverlay: OverlayBackend{}},
		DefaultPlace: dir,
	})
	mgr.SeedPlaceFree(dir, 1<<30)
	return mgr, resolver
}

func TestCreateDrivesVolumeToReady(t *testing.T) {
	mgr, _ := newTestManager(t)
	v, err := mgr.Create(&CreateSpec{Backend: BackendPlain, Labels: map[string]string{}})
	assert.NilError(t, err)
	assert.Equal(t, v.State(), StateReady)
	assert.Equal(t, v.IsAutoPath, true)
}

func TestCreateRejectsDuplicatePath(t *testing.T) {
	mgr, _ := newTestManager(t)
	path := filepath.Join(t.TempDir(), "vol")
	_, err := mgr.Create(&CreateSpec{Backend: BackendPlain, Path: path, Labels: map[string]string{}})
	assert.NilError(t, err)

	_, err = mgr.Create(&CreateSpec{Backend: BackendPlain, Path: path, Labels: map[string]string{}})
	assert.ErrorContains(t, err, "already exists")
}

func TestLinkWithoutRunningContainerDoesNotBind(t *testing.T) {
	mgr, _ := newTestManager(t)
	v, err := mgr.Create(&CreateSpec{Backend: BackendPlain, Labels: map[string]string{}})
	assert.NilError(t, err)

	l, err := mgr.Link(v, "ct1", "/data", false, false)
	assert.NilError(t, err)
	assert.Equal(t, l.HostTarget, "")
	assert.Equal(t, v.LinkCount(), 1)
}

func TestUnlinkDropsToToDestroyWhenLastLinkRemoved(t *testing.T) {
	mgr, _ := newTestManager(t)
	v, err := mgr.Create(&CreateSpec{Backend: BackendPlain, Labels: map[string]string{}})
	assert.NilError(t, err)

	_, err = mgr.Link(v, "ct1", "", false, false)
	assert.NilError(t, err)

	assert.NilError(t, mgr.Unlink(v, "ct1", "", false))
	assert.Equal(t, v.State(), StateToDestroy)
}

func TestDeleteOneRefusesWhileRequiredLinkHeld(t *testing.T) {
	mgr, _ := newTestManager(t)
	v, err := mgr.Create(&CreateSpec{Backend: BackendPlain, Labels: map[string]string{}})
	assert.NilError(t, err)

	_, err = mgr.Link(v, "ct1", "", false, true)
	assert.NilError(t, err)

	err = mgr.DeleteOne(v)
	assert.ErrorContains(t, err, "required link")
}

func TestDeleteOneRefusesWhileNestedChildRegistered(t *testing.T) {
	mgr, _ := newTestManager(t)
	parent, err := mgr.Create(&CreateSpec{Backend: BackendPlain, Labels: map[string]string{}})
	assert.NilError(t, err)

	childPath := filepath.Join(parent.Path, "child")
	_, err = mgr.Create(&CreateSpec{Backend: BackendPlain, Path: childPath, Labels: map[string]string{}})
	assert.NilError(t, err)

	err = mgr.DeleteOne(parent)
	assert.ErrorContains(t, err, "nested")
}

func TestCreateRejectsDuplicateLayerDependency(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Create(&CreateSpec{
		Backend: BackendOverlay,
		Layers:  []string{"/layer/a", "/layer/a"},
		Labels:  map[string]string{},
	})
	assert.ErrorContains(t, err, "duplicate layer")
}

func TestDeleteOneSucceedsAfterUnlink(t *testing.T) {
	mgr, _ := newTestManager(t)
	v, err := mgr.Create(&CreateSpec{Backend: BackendPlain, Labels: map[string]string{}})
	assert.NilError(t, err)

	_, err = mgr.Link(v, "ct1", "", false, false)
	assert.NilError(t, err)
	assert.NilError(t, mgr.Unlink(v, "ct1", "", false))
	assert.NilError(t, mgr.DeleteOne(v))
	assert.Equal(t, v.State(), StateDestroyed)

	_, found, err := mgr.journal.Get(v.ID)
	assert.NilError(t, err)
	assert.Equal(t, found, false)
}

func TestRestoreAllReconstructsReadyVolumes(t *testing.T) {
	mgr, _ := newTestManager(t)
	v, err := mgr.Create(&CreateSpec{Backend: BackendPlain, Labels: map[string]string{}})
	assert.NilError(t, err)
	originalPath := v.Path

	mgr2 := NewManager(Config{
		Journal:      mgr.journal,
		Resolver:     newFakeResolver(),
		Backends:     map[BackendType]Backend{BackendPlain: PlainBackend{}},
		DefaultPlace: mgr.defaultPlace,
	})
	mgr2.RestoreAll()

	restored, ok := mgr2.byID[v.ID]
	assert.Equal(t, ok, true)
	assert.Equal(t, restored.Path, originalPath)
	assert.Equal(t, restored.State(), StateReady)
}

func TestRestoreAllDropsOrphanedNonRequiredLinkAndDestroysVolume(t *testing.T) {
	mgr, _ := newTestManager(t)
	v, err := mgr.Create(&CreateSpec{Backend: BackendPlain, Labels: map[string]string{}})
	assert.NilError(t, err)

	_, err = mgr.Link(v, "ct1", "", false, false)
	assert.NilError(t, err)

	mgr2 := NewManager(Config{
		Journal:      mgr.journal,
		Resolver:     newFakeResolver(),
		Backends:     map[BackendType]Backend{BackendPlain: PlainBackend{}},
		DefaultPlace: mgr.defaultPlace,
	})
	mgr2.RestoreAll()

	_, ok := mgr2.byID[v.ID]
	assert.Equal(t, ok, false)

	_, found, err := mgr2.journal.Get(v.ID)
	assert.NilError(t, err)
	assert.Equal(t, found, false)
}

func TestRestoreAllKeepsOrphanedRequiredLink(t *testing.T) {
	mgr, _ := newTestManager(t)
	v, err := mgr.Create(&CreateSpec{Backend: BackendPlain, Labels: map[string]string{}})
	assert.NilError(t, err)

	_, err = mgr.Link(v, "ct1", "", false, true)
	assert.NilError(t, err)

	mgr2 := NewManager(Config{
		Journal:      mgr.journal,
		Resolver:     newFakeResolver(),
		Backends:     map[BackendType]Backend{BackendPlain: PlainBackend{}},
		DefaultPlace: mgr.defaultPlace,
	})
	mgr2.RestoreAll()

	restored, ok := mgr2.byID[v.ID]
	assert.Equal(t, ok, true)
	assert.Equal(t, restored.LinkCount(), 1)
}
