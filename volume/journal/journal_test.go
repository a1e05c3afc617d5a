package journal

import (
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "volumes.db")
	j, err := Open(path)
	assert.NilError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestPutGetRoundTrip(t *testing.T) {
	j := openTestJournal(t)

	rec := Record{"path": "/place/volumes/abc", "backend": "plain", "state": "READY"}
	assert.NilError(t, j.Put("abc", rec))

	got, found, err := j.Get("abc")
	assert.NilError(t, err)
	assert.Equal(t, found, true)
	assert.DeepEqual(t, got, rec)
}

func TestGetMissing(t *testing.T) {
	j := openTestJournal(t)
	_, found, err := j.Get("missing")
	assert.NilError(t, err)
	assert.Equal(t, found, false)
}

func TestDeleteIsIdempotent(t *testing.T) {
	j := openTestJournal(t)
	assert.NilError(t, j.Put("abc", Record{"path": "/x"}))
	assert.NilError(t, j.Delete("abc"))
	assert.NilError(t, j.Delete("abc"))

	_, found, err := j.Get("abc")
	assert.NilError(t, err)
	assert.Equal(t, found, false)
}

func TestListReturnsAllRecords(t *testing.T) {
	j := openTestJournal(t)
	assert.NilError(t, j.Put("a", Record{"path": "/a"}))
	assert.NilError(t, j.Put("b", Record{"path": "/b"}))

	all, err := j.List()
	assert.NilError(t, err)
	assert.Equal(t, len(all), 2)
	assert.Equal(t, all["a"]["path"], "/a")
	assert.Equal(t, all["b"]["path"], "/b")
}

func TestPutOverwritesExistingRecord(t *testing.T) {
	j := openTestJournal(t)
	assert.NilError(t, j.Put("abc", Record{"state": "BUILDING"}))
	assert.NilError(t, j.Put("abc", Record{"state": "READY"}))

	got, found, err := j.Get("abc")
	assert.NilError(t, err)
	assert.Equal(t, found, true)
	assert.Equal(t, got["state"], "READY")
}
