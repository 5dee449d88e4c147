// Package errors provides the typed error families used across this
// module's components. All error types that wrap an underlying cause
// implement Unwrap, for use with errors.Is and errors.As from the
// standard library.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError represents an error in project-configuration parsing. It
// includes file location information to help users identify the exact
// location of the problem.
type ConfigError struct {
	File    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	var location string
	switch {
	case e.Line > 0 && e.Column > 0:
		location = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
	case e.Line > 0:
		location = fmt.Sprintf("%s:%d", e.File, e.Line)
	default:
		location = e.File
	}
	if e.Err != nil {
		return fmt.Sprintf("config error at %s: %s: %v", location, e.Message, e.Err)
	}
	return fmt.Sprintf("config error at %s: %s", location, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RegistryError represents a failure in a repository database operation.
type RegistryError struct {
	Alias string // repository alias
	Op    string // "fetch", "parse", "lookup", "connect"
	Err   error
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registry error: %s failed for repository %q: %v", e.Op, e.Alias, e.Err)
	}
	return fmt.Sprintf("registry error: %s failed for repository %q", e.Op, e.Alias)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// FetchError represents a failure obtaining a package tarball from a
// resolved source.
type FetchError struct {
	Package string
	Source  string // human-readable source description
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch error for %s from %s: %v", e.Package, e.Source, e.Err)
	}
	return fmt.Sprintf("fetch error for %s from %s", e.Package, e.Source)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Conflict describes one participant in an unresolvable constraint
// conflict discovered by the resolver.
type Conflict struct {
	Package       string
	RequestedBy   string
	Constraint    string
	ChosenVersion string
}

// ResolveError aggregates every conflicting request discovered while
// closing the dependency graph.
type ResolveError struct {
	Message   string
	Conflicts []Conflict
}

func (e *ResolveError) Error() string {
	var sb strings.Builder
	sb.WriteString("resolve error")
	if e.Message != "" {
		sb.WriteString(": " + e.Message)
	}
	for _, c := range e.Conflicts {
		sb.WriteString(fmt.Sprintf("\n  %s requested by %s with constraint %q (chosen: %s)",
			c.Package, c.RequestedBy, c.Constraint, c.ChosenVersion))
	}
	return sb.String()
}

// SyncError represents a failure during plan execution.
type SyncError struct {
	Package string
	Phase   string // "fetch", "install", "link", "remove"
	Err     error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sync error for %s during %s: %v", e.Package, e.Phase, e.Err)
	}
	return fmt.Sprintf("sync error for %s during %s", e.Package, e.Phase)
}

func (e *SyncError) Unwrap() error { return e.Err }

// ValidationError represents a validation failure for a parsed subject
// (a package record, a config block, ...).
type ValidationError struct {
	Subject string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for %s: field %q: %s", e.Subject, e.Field, e.Message)
	}
	return fmt.Sprintf("validation error for %s: %s", e.Subject, e.Message)
}

// NotFoundError represents a not-found error for a named resource.
type NotFoundError struct {
	What string // "package", "repository", "version", "lockfile entry"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.Name)
}

// VersionError represents a version-constraint-resolution failure.
type VersionError struct {
	Package    string
	Constraint string
	Available  []string
	Message    string
}

func (e *VersionError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("version error for %s: ", e.Package))
	if e.Message != "" {
		sb.WriteString(e.Message)
	} else {
		sb.WriteString(fmt.Sprintf("constraint %q cannot be satisfied", e.Constraint))
	}
	if len(e.Available) > 0 {
		sb.WriteString(fmt.Sprintf(" (available: %s)", strings.Join(e.Available, ", ")))
	}
	return sb.String()
}

// Constructors.

func NewConfigError(file string, line, col int, msg string, err error) *ConfigError {
	return &ConfigError{File: file, Line: line, Column: col, Message: msg, Err: err}
}

func NewRegistryError(alias, op string, err error) *RegistryError {
	return &RegistryError{Alias: alias, Op: op, Err: err}
}

func NewFetchError(pkg, source string, err error) *FetchError {
	return &FetchError{Package: pkg, Source: source, Err: err}
}

func NewResolveError(msg string, conflicts []Conflict) *ResolveError {
	return &ResolveError{Message: msg, Conflicts: conflicts}
}

func NewSyncError(pkg, phase string, err error) *SyncError {
	return &SyncError{Package: pkg, Phase: phase, Err: err}
}

func NewValidationError(subject, field, message string) *ValidationError {
	return &ValidationError{Subject: subject, Field: field, Message: message}
}

func NewNotFoundError(what, name string) *NotFoundError {
	return &NotFoundError{What: what, Name: name}
}

func NewVersionError(pkg, constraint string, available []string, msg string) *VersionError {
	return &VersionError{Package: pkg, Constraint: constraint, Available: available, Message: msg}
}

// Re-export standard library error functions for convenience, so callers
// don't need to import both this package and errors.
var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// Wrap wraps err with an additional context message. Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
