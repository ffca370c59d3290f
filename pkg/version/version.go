// Package version parses and orders topio release versions.
package version

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/coreos/go-semver/semver"
)

// ErrInvalidVersion is returned when no major.minor.patch triple can be found
var ErrInvalidVersion = errors.New("invalid version")

var triple = regexp.MustCompile(`\d+\.\d+\.\d+`)

// SemVersion is a major.minor.patch release version
type SemVersion struct {
	Major uint64
	Minor uint64
	Patch uint64
}

// New builds a SemVersion from its parts
func New(major, minor, patch uint64) SemVersion {
	return SemVersion{Major: major, Minor: minor, Patch: patch}
}

// Parse extracts the first major.minor.patch triple from free-form text such
// as "topio version 1.7.1 (build abc)" or a tag like "v1.8.0".
func Parse(s string) (SemVersion, error) {
	m := triple.FindString(s)
	if m == "" {
		return SemVersion{}, fmt.Errorf("%w: no version in %q", ErrInvalidVersion, s)
	}
	v, err := semver.NewVersion(m)
	if err != nil {
		return SemVersion{}, fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	if v.Major < 0 || v.Minor < 0 || v.Patch < 0 {
		return SemVersion{}, fmt.Errorf("%w: negative component in %q", ErrInvalidVersion, m)
	}
	return SemVersion{Major: uint64(v.Major), Minor: uint64(v.Minor), Patch: uint64(v.Patch)}, nil
}

// Compare returns -1, 0 or 1. Ordering is lexicographic over major, minor, patch.
func (v SemVersion) Compare(o SemVersion) int {
	switch {
	case v.Major != o.Major:
		return cmp(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmp(v.Minor, o.Minor)
	default:
		return cmp(v.Patch, o.Patch)
	}
}

func cmp(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// LessThan reports v < o
func (v SemVersion) LessThan(o SemVersion) bool {
	return v.Compare(o) < 0
}

// GreaterThan reports v > o
func (v SemVersion) GreaterThan(o SemVersion) bool {
	return v.Compare(o) > 0
}

// String returns the canonical "1.8.0" form, also used in release directory names
func (v SemVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// DefaultTagPrefix is prepended to the version in GitHub release tags
const DefaultTagPrefix = "v"

// TagName returns the release tag with the default prefix, e.g. "v1.8.0"
func (v SemVersion) TagName() string {
	return v.Tag(DefaultTagPrefix)
}

// Tag returns the release tag with an explicit prefix; "" gives "1.8.0"
func (v SemVersion) Tag(prefix string) string {
	return prefix + v.String()
}
