package gatekeep

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a semantic (major, minor, patch) triple. Versions are ordered
// by major, then minor, then patch.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses a "major.minor.patch" string. Minor and patch may be
// omitted and default to zero, so "2" and "2.0.0" are the same version.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 3 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}

	numbers := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q", s)
		}
		numbers[i] = n
	}

	return Version{Major: numbers[0], Minor: numbers[1], Patch: numbers[2]}, nil
}

// MustParseVersion is ParseVersion that panics on invalid input. Intended
// for static flag declarations.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0, or 1 when v is less than, equal to, or greater
// than other.
func (v Version) Compare(other Version) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	return compareInt(v.Patch, other.Patch)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// VersionRange constrains an app version. A nil bound is unbounded on that
// side; the lower bound is inclusive and the upper bound exclusive.
type VersionRange struct {
	Min *Version
	Max *Version
}

// Bounded reports whether the range has at least one bound.
func (r VersionRange) Bounded() bool {
	return r.Min != nil || r.Max != nil
}

// Contains reports whether v satisfies min <= v < max, treating absent
// bounds as always satisfied.
func (r VersionRange) Contains(v Version) bool {
	if r.Min != nil && v.Compare(*r.Min) < 0 {
		return false
	}
	if r.Max != nil && v.Compare(*r.Max) >= 0 {
		return false
	}
	return true
}
