package volume

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParseCreateSpecDefaults(t *testing.T) {
	spec, err := ParseCreateSpec(map[string]string{})
	assert.NilError(t, err)
	assert.Equal(t, spec.Backend, BackendPlain)
	assert.Equal(t, spec.Permissions, uint32(0o755))
}

func TestParseCreateSpecUnknownKeyRejected(t *testing.T) {
	_, err := ParseCreateSpec(map[string]string{"bogus": "1"})
	assert.ErrorContains(t, err, "unknown volume.create key")
}

func TestParseCreateSpecUnknownBackendRejected(t *testing.T) {
	_, err := ParseCreateSpec(map[string]string{"backend": "zfs"})
	assert.ErrorContains(t, err, "unknown backend")
}

func TestParseCreateSpecGuaranteeExceedsLimitRejected(t *testing.T) {
	_, err := ParseCreateSpec(map[string]string{
		"space_limit":     "10M",
		"space_guarantee": "20M",
	})
	assert.ErrorContains(t, err, "space_guarantee exceeds space_limit")
}

func TestParseCreateSpecSizesParsed(t *testing.T) {
	spec, err := ParseCreateSpec(map[string]string{
		"space_limit": "64M",
		"inode_limit": "1000",
	})
	assert.NilError(t, err)
	assert.Equal(t, spec.SpaceLimit, int64(64*1024*1024))
	assert.Equal(t, spec.InodeLimit, int64(1000))
}

func TestParseCreateSpecContainersLinkGrammar(t *testing.T) {
	spec, err := ParseCreateSpec(map[string]string{
		"containers": "web:/data:ro:rq;worker:/cache",
	})
	assert.NilError(t, err)
	assert.Equal(t, len(spec.Containers), 2)

	assert.Equal(t, spec.Containers[0].Container, "web")
	assert.Equal(t, spec.Containers[0].Target, "/data")
	assert.Equal(t, spec.Containers[0].ReadOnly, true)
	assert.Equal(t, spec.Containers[0].Required, true)

	assert.Equal(t, spec.Containers[1].Container, "worker")
	assert.Equal(t, spec.Containers[1].Target, "/cache")
	assert.Equal(t, spec.Containers[1].ReadOnly, false)
	assert.Equal(t, spec.Containers[1].Required, false)
}

func TestParseCreateSpecEmptyContainerNameRejected(t *testing.T) {
	_, err := ParseCreateSpec(map[string]string{"containers": ":/data"})
	assert.ErrorContains(t, err, "empty container name")
}

func TestParseCreateSpecLabels(t *testing.T) {
	spec, err := ParseCreateSpec(map[string]string{"labels": "owner=alice;tier=gold"})
	assert.NilError(t, err)
	assert.Equal(t, spec.Labels["owner"], "alice")
	assert.Equal(t, spec.Labels["tier"], "gold")
}

func TestParseCreateSpecMalformedLabelsRejected(t *testing.T) {
	_, err := ParseCreateSpec(map[string]string{"labels": "owner"})
	assert.ErrorContains(t, err, "malformed labels entry")
}
