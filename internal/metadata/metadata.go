// Package metadata parses package description records: the RFC-822-like
// format used both for repository index entries and for an installed
// package's own metadata file.
//
// A record is a sequence of "Key: value" fields. A value may continue onto
// following lines as long as each continuation line is indented with
// whitespace; continuation lines are joined with a single space. Keys are
// matched case-insensitively. A blank line terminates a record. A line
// starting with '#' is a comment only when it appears before any field of
// the record has been read; '#' inside a folded value is not special.
package metadata

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	rverrors "github.com/rv-tools/rv/internal/errors"
	"github.com/rv-tools/rv/pkg/version"
)

// Dependency is one entry in a Depends/Imports/LinkingTo/Suggests list:
// a package name with an optional version constraint (empty constraint
// means "any version").
type Dependency struct {
	Name       string
	Constraint version.Constraint
}

// RemoteDeclaration is one entry of a Remote field: Name is the pinned
// dependency (matched against Depends/Imports/LinkingTo), Spec is the
// remainder of the entry in "Kind::target@ref" form, left for the
// resolver to parse.
type RemoteDeclaration struct {
	Name string
	Spec string
}

// Record is one parsed package description.
type Record struct {
	Package string
	Version version.Version

	Depends   []Dependency
	Imports   []Dependency
	LinkingTo []Dependency
	Suggests  []Dependency

	// Remotes lists this package's declared remote overrides: each entry
	// pins one of this package's own dependency names to a non-repository
	// source, the way a DESCRIPTION's Remotes field pins individual
	// Imports/Depends entries to version control. Parsing the Spec into
	// a pkgsource.Source is the resolver's job, since that requires
	// knowing the VCS ref grammar.
	Remotes []RemoteDeclaration

	// Extra holds every recognized-but-unstructured field, keyed by its
	// canonical (titlecased) name.
	Extra map[string]string
}

// dependencyFields is the set of canonical field names of the four
// dependency-class fields.
var dependencyFields = map[string]bool{
	"Depends": true, "Imports": true, "LinkingTo": true, "Suggests": true,
}

// ParseRecord parses exactly one record from r. It is an error for the
// input to contain a second record (use ParseIndex for that).
func ParseRecord(r io.Reader) (Record, error) {
	fields, err := readFields(r)
	if err != nil {
		return Record{}, err
	}
	return buildRecord(fields)
}

// ParseIndex parses a repository index file: a sequence of records
// separated by one or more blank lines.
func ParseIndex(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []Record
	var block []string
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		fields, err := parseFields(block)
		if err != nil {
			return err
		}
		rec, err := buildRecord(fields)
		if err != nil {
			return err
		}
		records = append(records, rec)
		block = nil
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return records, nil
}

// readFields reads a single record's raw lines from r and folds
// continuations.
func readFields(r io.Reader) (map[string]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			return nil, fmt.Errorf("unexpected second record in input (use ParseIndex)")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return parseFields(lines)
}

// parseFields folds a block of raw lines (no blank lines) into a
// case-insensitively-keyed field map, joining continuation lines with a
// single space.
func parseFields(lines []string) (map[string]string, error) {
	fields := make(map[string]string)
	var currentKey string

	for i, raw := range lines {
		if strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t") {
			if currentKey == "" {
				return nil, fmt.Errorf("line %d: continuation line with no preceding field", i+1)
			}
			fields[currentKey] = strings.TrimSpace(fields[currentKey] + " " + strings.TrimSpace(raw))
			continue
		}

		if currentKey == "" && strings.HasPrefix(strings.TrimSpace(raw), "#") {
			continue // comment, only recognized before any field starts
		}

		idx := strings.Index(raw, ":")
		if idx < 0 {
			return nil, fmt.Errorf("line %d: expected \"Key: value\", got %q", i+1, raw)
		}
		key := canonicalKey(strings.TrimSpace(raw[:idx]))
		value := strings.TrimSpace(raw[idx+1:])
		fields[key] = value
		currentKey = key
	}

	return fields, nil
}

// canonicalKey titlecases a field name so lookups are case-insensitive
// ("depends", "Depends", "DEPENDS" all fold to "Depends").
func canonicalKey(key string) string {
	for canon := range knownFieldNames() {
		if strings.EqualFold(canon, key) {
			return canon
		}
	}
	// Unknown field: title-case the first letter only, preserve the rest.
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}

func knownFieldNames() map[string]bool {
	return map[string]bool{
		"Package": true, "Version": true, "Depends": true, "Imports": true,
		"LinkingTo": true, "Suggests": true, "Remote": true,
	}
}

func buildRecord(fields map[string]string) (Record, error) {
	pkg, ok := fields["Package"]
	if !ok || pkg == "" {
		return Record{}, rverrors.NewValidationError("record", "Package", "required field missing")
	}
	versionStr, ok := fields["Version"]
	if !ok || versionStr == "" {
		return Record{}, rverrors.NewValidationError(pkg, "Version", "required field missing")
	}
	v, err := version.Parse(versionStr)
	if err != nil {
		return Record{}, rverrors.NewValidationError(pkg, "Version", err.Error())
	}

	rec := Record{Package: pkg, Version: v, Extra: make(map[string]string)}

	for key, value := range fields {
		switch key {
		case "Package", "Version":
			continue
		case "Depends":
			deps, err := parseDependencyList(value)
			if err != nil {
				return Record{}, rverrors.NewValidationError(pkg, "Depends", err.Error())
			}
			rec.Depends = deps
		case "Imports":
			deps, err := parseDependencyList(value)
			if err != nil {
				return Record{}, rverrors.NewValidationError(pkg, "Imports", err.Error())
			}
			rec.Imports = deps
		case "LinkingTo":
			deps, err := parseDependencyList(value)
			if err != nil {
				return Record{}, rverrors.NewValidationError(pkg, "LinkingTo", err.Error())
			}
			rec.LinkingTo = deps
		case "Suggests":
			deps, err := parseDependencyList(value)
			if err != nil {
				return Record{}, rverrors.NewValidationError(pkg, "Suggests", err.Error())
			}
			rec.Suggests = deps
		case "Remote":
			decls, err := parseRemoteField(value)
			if err != nil {
				return Record{}, rverrors.NewValidationError(pkg, "Remote", err.Error())
			}
			rec.Remotes = decls
		default:
			rec.Extra[key] = value
		}
	}

	return rec, nil
}

// parseDependencyList parses a comma-separated list of "name (constraint)"
// or bare "name" entries.
func parseDependencyList(s string) ([]Dependency, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	deps := make([]Dependency, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := part
		constraintStr := ""
		if open := strings.Index(part, "("); open >= 0 {
			shut := strings.Index(part, ")")
			if shut < open {
				return nil, fmt.Errorf("malformed constraint in dependency %q", part)
			}
			name = strings.TrimSpace(part[:open])
			constraintStr = strings.TrimSpace(part[open+1 : shut])
		}
		c, err := version.ParseConstraint(constraintStr)
		if err != nil {
			return nil, fmt.Errorf("dependency %q: %w", part, err)
		}
		deps = append(deps, Dependency{Name: name, Constraint: c})
	}
	return deps, nil
}

// parseRemoteField splits a Remote field into one declaration per
// comma-separated entry. Each entry has the form "name::spec", where
// name is the dependency being pinned and spec is handed to the
// resolver's VCS-ref parser unexamined.
func parseRemoteField(s string) ([]RemoteDeclaration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	decls := make([]RemoteDeclaration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, spec, ok := strings.Cut(part, "::")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("remote entry %q: expected \"name::kind::target\"", part)
		}
		decls = append(decls, RemoteDeclaration{Name: strings.TrimSpace(name), Spec: spec})
	}
	return decls, nil
}

// RemoteFor returns this record's declared remote override for dep, if
// any.
func (r Record) RemoteFor(dep string) (RemoteDeclaration, bool) {
	for _, d := range r.Remotes {
		if d.Name == dep {
			return d, true
		}
	}
	return RemoteDeclaration{}, false
}

// AllDependencyNames returns the union of Depends, Imports, and LinkingTo
// names in sorted order, deduplicated. Suggests is intentionally excluded
// (it is never auto-followed, see resolver priority/closure rules).
func (r Record) AllDependencyNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, list := range [][]Dependency{r.Depends, r.Imports, r.LinkingTo} {
		for _, d := range list {
			if !seen[d.Name] {
				seen[d.Name] = true
				names = append(names, d.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}
