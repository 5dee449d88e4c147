// Package version parses and compares package versions and evaluates
// version constraints.
//
// Versions are dotted-decimal component sequences (separated by '.' or '-')
// with an optional trailing "dev" tail, e.g. "1.4.2", "2.0.0-9000",
// "1.0.0.dev3". Components are compared left to right, numerically; a
// shorter version is zero-padded for comparison purposes. A release version
// (no dev tail) always outranks a dev-tagged version with an identical
// component head; between two dev-tagged versions of the same head, the
// dev numbers are compared.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// versionRegex splits a version string into its dotted-numeric head and an
// optional dev tail. The head and the dev keyword may each be separated
// from their neighbor by '.' or '-'. Group 2 captures the literal "dev"
// tail (e.g. "dev3" or bare "dev") so its presence, not just its digits,
// can be detected.
var versionRegex = regexp.MustCompile(`(?i)^(\d+(?:[.-]\d+)*)(?:[.-](dev\d*))?$`)

// Version is a parsed package version.
type Version struct {
	// Components are the numeric parts of the version's head, in order.
	Components []int

	// Dev is non-nil when the version has a trailing dev/nightly tail; its
	// value is the dev tail's own number (0 if the tail carried no digits,
	// e.g. ".dev").
	Dev *int
}

// Parse parses a version string.
//
// Supported forms:
//   - "1"          -> Components: [1]
//   - "1.4.2"      -> Components: [1,4,2]
//   - "1-4-2"      -> Components: [1,4,2] (hyphen separators are equivalent to dots)
//   - "1.4.2.dev3" -> Components: [1,4,2], Dev: 3
//   - "1.4.2-9000" -> Components: [1,4,2], Dev: nil (a plain trailing numeric
//     component is just another component, not a dev tail; only a literal
//     "dev" keyword introduces a dev tail)
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("version string cannot be empty")
	}

	m := versionRegex.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("invalid version format: %q", s)
	}

	head := strings.FieldsFunc(m[1], func(r rune) bool { return r == '.' || r == '-' })
	components := make([]int, len(head))
	for i, part := range head {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version component %q in %q", part, s)
		}
		components[i] = n
	}

	v := Version{Components: components}
	if m[2] != "" {
		digits := m[2][3:] // strip the "dev"/"DEV" prefix
		dev := 0
		if digits != "" {
			n, err := strconv.Atoi(digits)
			if err != nil {
				return Version{}, fmt.Errorf("invalid dev component %q in %q", m[2], s)
			}
			dev = n
		}
		v.Dev = &dev
	}

	return v, nil
}

// MustParse parses s and panics on error. Intended for tests and static
// version literals, never for untrusted input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version in canonical form.
func (v Version) String() string {
	parts := make([]string, len(v.Components))
	for i, c := range v.Components {
		parts[i] = strconv.Itoa(c)
	}
	s := strings.Join(parts, ".")
	if v.Dev != nil {
		s += ".dev" + strconv.Itoa(*v.Dev)
	}
	return s
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// other.
func (v Version) Compare(other Version) int {
	maxLen := len(v.Components)
	if len(other.Components) > maxLen {
		maxLen = len(other.Components)
	}
	for i := 0; i < maxLen; i++ {
		a, b := componentAt(v.Components, i), componentAt(other.Components, i)
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}

	switch {
	case v.Dev == nil && other.Dev == nil:
		return 0
	case v.Dev == nil && other.Dev != nil:
		return 1
	case v.Dev != nil && other.Dev == nil:
		return -1
	case *v.Dev < *other.Dev:
		return -1
	case *v.Dev > *other.Dev:
		return 1
	default:
		return 0
	}
}

func componentAt(components []int, i int) int {
	if i >= len(components) {
		return 0
	}
	return components[i]
}

// LessThan reports whether v < other.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// GreaterThan reports whether v > other.
func (v Version) GreaterThan(other Version) bool { return v.Compare(other) > 0 }

// Equal reports whether v == other.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }
