// Package semver provides the major/minor/patch version triple used for
// compatibility checks between nonebot2 and the Python interpreter.
package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// Ordering is the result of comparing two versions.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// Version is an ordered (major, minor, patch) triple.
// Pre-release and build metadata are not represented.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// New returns the version major.minor.patch.
func New(major, minor, patch int) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// Known nonebot2 thresholds.
var (
	// PluginMetadataSince is the first nonebot2 release whose plugin manager
	// exposes enough metadata to tell where a duplicated plugin came from.
	PluginMetadataSince = New(2, 0, 0)

	// Python311SupportSince is the first nonebot2 release that runs on Python 3.11.
	Python311SupportSince = New(2, 0, 1)

	// Python37DroppedSince is the first nonebot2 release that no longer runs on Python 3.7.
	Python37DroppedSince = New(2, 1, 0)

	// StateParamSince is the first nonebot2 release providing nonebot.params.State.
	StateParamSince = New(2, 0, 0)

	// ExportRemovedIn is the nonebot2 release that removed nonebot.export.
	ExportRemovedIn = New(2, 0, 0)
)

// Known Python interpreter thresholds.
var (
	ModernInterpreter     = New(3, 11, 0)
	OldInterpreterFloor   = New(3, 8, 0)
	GenericSubscriptSince = New(3, 9, 0)
)

// Compare orders a and b lexicographically on (major, minor, patch).
func Compare(a, b Version) Ordering {
	switch {
	case a.Major != b.Major:
		return sign(a.Major - b.Major)
	case a.Minor != b.Minor:
		return sign(a.Minor - b.Minor)
	default:
		return sign(a.Patch - b.Patch)
	}
}

func sign(d int) Ordering {
	switch {
	case d < 0:
		return Less
	case d > 0:
		return Greater
	default:
		return Equal
	}
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool {
	return Compare(v, other) == Less
}

// AtLeast reports whether v is equal to or newer than other.
func (v Version) AtLeast(other Version) bool {
	return Compare(v, other) != Less
}

// String returns the dotted form of v.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Parse reads a version string such as "2.1.3", "v3.11", "2.0.0rc3" or
// "2.1.0.post1". Missing minor/patch components default to zero and any
// non-numeric suffix of a component ends the parse.
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "v"), "V")
	if raw == "" {
		return Version{}, fmt.Errorf("empty version string")
	}

	var parts [3]int
	fields := strings.SplitN(raw, ".", 4)
	for i := 0; i < len(fields) && i < 3; i++ {
		digits := leadingDigits(fields[i])
		if digits == "" {
			if i == 0 {
				return Version{}, fmt.Errorf("invalid version %q: no numeric major component", s)
			}
			break
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		parts[i] = n
		// "0rc3" ends the numeric part of the version
		if len(digits) != len(fields[i]) {
			break
		}
	}

	return Version{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

// MustParse is like Parse but panics on malformed input. Intended for constants and tests.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}
