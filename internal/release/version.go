// Package release resolves daemon releases published on the distribution
// server's directory listing and streams their archives.
package release

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Version is a release token split into numeric components and a free-form
// suffix. Parsing is lenient: missing or unparseable components are zero.
type Version struct {
	Major  int
	Minor  int
	Patch  int
	Suffix string // e.g. "a5" in "9.0a5"
	Raw    string // original token
}

// versionRegex matches any string; every group is optional.
var versionRegex = regexp.MustCompile(`^(\d+)?(?:\.(\d+))?(?:\.(\d+))?(.*)$`)

// ParseVersion parses a release token such as "12.5.1", "9.0a5" or "3.12a".
// It never fails.
func ParseVersion(token string) Version {
	token = strings.TrimSpace(token)
	v := Version{Raw: token}

	m := versionRegex.FindStringSubmatch(token)
	if m == nil {
		v.Suffix = token
		return v
	}
	v.Major = atoiOrZero(m[1])
	v.Minor = atoiOrZero(m[2])
	v.Patch = atoiOrZero(m[3])
	v.Suffix = m[4]
	return v
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// String returns the original token, or a rendering of the components when the
// version was not parsed from a token.
func (v Version) String() string {
	if v.Raw != "" {
		return v.Raw
	}
	return fmt.Sprintf("%d.%d.%d%s", v.Major, v.Minor, v.Patch, v.Suffix)
}

// IsZero reports whether v carries no information at all.
func (v Version) IsZero() bool {
	return v == Version{}
}

// Compare orders versions by (Major, Minor, Patch) and then by the byte-wise
// ordering of Suffix. An empty suffix sorts before any non-empty one, so
// "9.0" < "9.0a5".
//
// Returns:
//
//	-1 if v < other
//	 0 if v == other
//	 1 if v > other
func (v Version) Compare(other Version) int {
	if c := cmp.Compare(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Patch, other.Patch); c != 0 {
		return c
	}
	return strings.Compare(v.Suffix, other.Suffix)
}

// SortDescending parses tokens and orders them newest first. Equal versions
// keep their listing order.
func SortDescending(tokens []string) []Version {
	versions := make([]Version, 0, len(tokens))
	for _, t := range tokens {
		versions = append(versions, ParseVersion(t))
	}
	slices.SortStableFunc(versions, func(a, b Version) int {
		return b.Compare(a)
	})
	return versions
}
