package version

import (
	"fmt"
	"strings"
)

// constraintOps lists recognized comparators, longest first so that ">="
// is tried before ">" when stripping a prefix.
var constraintOps = []string{">=", "<=", "==", ">", "<"}

// check is a single comparator applied to a version.
type check struct {
	op      string
	version Version
}

// Constraint is a conjunction (AND only) of comparator checks. A version
// satisfies a Constraint only if it satisfies every check.
type Constraint struct {
	Original string
	checks   []check
}

// ParseConstraint parses a constraint expression: a comma-separated
// conjunction of clauses, each of the form "<comparator><version>" with
// comparator one of ">=", ">", "<=", "<", "==", or a bare version (sugar
// for "=="). An empty string means "any version".
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Constraint{Original: s}, nil
	}

	clauses := strings.Split(s, ",")
	checks := make([]check, 0, len(clauses))
	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			return Constraint{}, fmt.Errorf("empty clause in constraint %q", s)
		}

		op, versionStr := "==", clause
		for _, candidate := range constraintOps {
			if strings.HasPrefix(clause, candidate) {
				op = candidate
				versionStr = strings.TrimSpace(clause[len(candidate):])
				break
			}
		}

		v, err := Parse(versionStr)
		if err != nil {
			return Constraint{}, fmt.Errorf("invalid version in constraint %q: %w", s, err)
		}
		checks = append(checks, check{op: op, version: v})
	}

	return Constraint{Original: s, checks: checks}, nil
}

// MustParseConstraint is like ParseConstraint but panics on error. For
// tests and static constraint literals only.
func MustParseConstraint(s string) Constraint {
	c, err := ParseConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Satisfies reports whether v satisfies every clause of c. An empty (no
// clauses) Constraint is satisfied by any version.
func (c Constraint) Satisfies(v Version) bool {
	for _, chk := range c.checks {
		if !chk.match(v) {
			return false
		}
	}
	return true
}

// IsAny reports whether the constraint carries no clauses at all.
func (c Constraint) IsAny() bool { return len(c.checks) == 0 }

func (chk check) match(v Version) bool {
	switch chk.op {
	case "==":
		return v.Equal(chk.version)
	case ">":
		return v.GreaterThan(chk.version)
	case "<":
		return v.LessThan(chk.version)
	case ">=":
		return v.GreaterThan(chk.version) || v.Equal(chk.version)
	case "<=":
		return v.LessThan(chk.version) || v.Equal(chk.version)
	default:
		return false
	}
}

func (c Constraint) String() string {
	if c.Original == "" {
		return "*"
	}
	return c.Original
}

// Best returns the highest version among versions that satisfies c, and
// true if at least one candidate matched.
func (c Constraint) Best(versions []Version) (Version, bool) {
	var best Version
	found := false
	for _, v := range versions {
		if !c.Satisfies(v) {
			continue
		}
		if !found || v.GreaterThan(best) {
			best = v
			found = true
		}
	}
	return best, found
}

// Latest returns the highest version in versions, and false if versions is
// empty.
func Latest(versions []Version) (Version, bool) {
	if len(versions) == 0 {
		return Version{}, false
	}
	best := versions[0]
	for _, v := range versions[1:] {
		if v.GreaterThan(best) {
			best = v
		}
	}
	return best, true
}
