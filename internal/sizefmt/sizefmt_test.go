package sizefmt

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParseBytesSuffixes(t *testing.T) {
	cases := map[string]int64{
		"":     0,
		"0":    0,
		"1024": 1024,
		"1K":   1024,
		"1M":   1024 * 1024,
		"2G":   2 * 1024 * 1024 * 1024,
	}
	for input, want := range cases {
		got, err := ParseBytes(input)
		assert.NilError(t, err)
		assert.Equal(t, got, want)
	}
}

func TestParseBytesRejectsGarbage(t *testing.T) {
	_, err := ParseBytes("not-a-size")
	assert.ErrorContains(t, err, "")
}

func TestParseCountDelegatesToParseBytes(t *testing.T) {
	got, err := ParseCount("1000")
	assert.NilError(t, err)
	assert.Equal(t, got, int64(1000))
}
