// Package sizefmt parses the K/M/G-suffixed size strings accepted by
// volume.create (spec.md §6) for space_limit, inode_limit,
// space_guarantee and inode_guarantee.
package sizefmt

import "github.com/docker/go-units"

// ParseBytes parses a size string such as "64M" or "1.5G" into bytes.
// An empty string parses as zero, matching an unset limit.
func ParseBytes(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return units.RAMInBytes(s)
}

// ParseCount parses a plain or suffixed count string (inode limits use
// the same K/M/G suffix grammar as byte sizes).
func ParseCount(s string) (int64, error) {
	return ParseBytes(s)
}

// FormatBytes renders n using the same humanized suffix style
// go-units uses elsewhere in the corpus, for diagnostics and Describe.
func FormatBytes(n int64) string {
	return units.BytesSize(float64(n))
}
