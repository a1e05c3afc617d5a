package volume

import (
	"testing"

	"gotest.tools/v3/assert"
)

func newTestVolume() *Volume {
	return &Volume{
		ID:          "v1",
		Path:        "/place/volumes/v1",
		Place:       "/place",
		BackendType: BackendPlain,
		state:       StateReady,
		SpaceLimit:  1024,
		Labels:      map[string]string{"owner": "alice"},
		PrivateBlob: "secret-token",
		Links: []*Link{
			{Container: "web", Target: "/data", HostTarget: "/ns/web/data", ReadOnly: true, Required: true},
		},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	v := newTestVolume()
	rec := toRecord(v)
	back := fromRecord(rec)

	assert.Equal(t, back.ID, v.ID)
	assert.Equal(t, back.Path, v.Path)
	assert.Equal(t, back.SpaceLimit, v.SpaceLimit)
	assert.Equal(t, back.state, v.state)
	assert.Equal(t, back.Labels["owner"], "alice")
	assert.Equal(t, back.PrivateBlob, "secret-token")
	assert.Equal(t, len(back.Links), 1)
	assert.Equal(t, back.Links[0].Container, "web")
	assert.Equal(t, back.Links[0].Target, "/data")
	assert.Equal(t, back.Links[0].HostTarget, "/ns/web/data")
	assert.Equal(t, back.Links[0].ReadOnly, true)
	assert.Equal(t, back.Links[0].Required, true)
}

func TestDescribeOmitsPrivateBlob(t *testing.T) {
	v := newTestVolume()
	desc := v.Describe()
	_, ok := desc["_private"]
	assert.Equal(t, ok, false)
	assert.Equal(t, desc["label.owner"], "alice")
}

func TestEncodeDecodeLink(t *testing.T) {
	l := &Link{Container: "db", Target: "/var/lib", HostTarget: "/ns/db/lib", ReadOnly: false, Required: false}
	s := encodeLink(l)
	back := decodeLink(nil, s)

	assert.Equal(t, back.Container, l.Container)
	assert.Equal(t, back.Target, l.Target)
	assert.Equal(t, back.HostTarget, l.HostTarget)
	assert.Equal(t, back.ReadOnly, l.ReadOnly)
	assert.Equal(t, back.Required, l.Required)
}
