// Package pkgsource defines the package-identity and source types shared
// across the resolver, repository database, fetchers, lockfile, and sync
// engine.
package pkgsource

import "fmt"

// Kind discriminates the five source variants a package may resolve to.
type Kind int

const (
	// Repository is a package hosted in a configured repository, either
	// as source or as a platform-specific binary.
	Repository Kind = iota
	// VersionControl is a package fetched from a version-control
	// reference (branch, tag, or commit).
	VersionControl
	// LocalPath is a package read directly from a local directory or
	// tarball.
	LocalPath
	// RemoteArchive is a package fetched from a plain URL tarball.
	RemoteArchive
	// Builtin is a package bundled with the platform itself.
	Builtin
)

func (k Kind) String() string {
	switch k {
	case Repository:
		return "repository"
	case VersionControl:
		return "version-control"
	case LocalPath:
		return "local-path"
	case RemoteArchive:
		return "remote-archive"
	case Builtin:
		return "builtin"
	default:
		return "unknown"
	}
}

// RepoKind distinguishes a repository's source vs. binary index entries.
type RepoKind string

const (
	RepoKindSource RepoKind = "source"
	RepoKindBinary RepoKind = "binary"
)

// VCSRefKind distinguishes the three ways a version-control source may
// pin a revision.
type VCSRefKind string

const (
	VCSRefBranch VCSRefKind = "branch"
	VCSRefTag    VCSRefKind = "tag"
	VCSRefCommit VCSRefKind = "commit"
)

// Source is a discriminated union over the five ways a package may be
// obtained. Exactly the fields relevant to Kind are populated; it is part
// of package identity, so two sources with different Kind or fields are
// never considered "the same" resolution even if Name is identical.
type Source struct {
	Kind Kind

	// Repository fields.
	Alias    string
	RepoKind RepoKind
	URL      string
	SHA      string

	// VersionControl fields.
	VCSURL       string
	VCSRefKind   VCSRefKind
	VCSRef       string
	Subdirectory string
	CommitSHA    string

	// LocalPath fields.
	Path string

	// RemoteArchive reuses URL and SHA above.

	// Builtin fields.
	BuiltinVersion string
}

// Key returns a canonical string uniquely identifying this source for use
// as a map key / identity component. Two sources compare equal as
// identities iff their Key() values are equal.
func (s Source) Key() string {
	switch s.Kind {
	case Repository:
		return fmt.Sprintf("repository:%s:%s:%s", s.Alias, s.RepoKind, s.URL)
	case VersionControl:
		ref := string(s.VCSRefKind) + "=" + s.VCSRef
		if s.CommitSHA != "" {
			ref = "commit=" + s.CommitSHA
		}
		return fmt.Sprintf("vcs:%s:%s:%s", s.VCSURL, ref, s.Subdirectory)
	case LocalPath:
		return fmt.Sprintf("local:%s", s.Path)
	case RemoteArchive:
		return fmt.Sprintf("archive:%s:%s", s.URL, s.SHA)
	case Builtin:
		return fmt.Sprintf("builtin:%s", s.BuiltinVersion)
	default:
		return "unknown"
	}
}

// String renders a human-readable description of the source, used in
// error messages and plan/status output.
func (s Source) String() string {
	switch s.Kind {
	case Repository:
		return fmt.Sprintf("%s repository %q (%s)", s.RepoKind, s.Alias, s.URL)
	case VersionControl:
		if s.CommitSHA != "" {
			return fmt.Sprintf("git %s@%s", s.VCSURL, s.CommitSHA)
		}
		return fmt.Sprintf("git %s#%s=%s", s.VCSURL, s.VCSRefKind, s.VCSRef)
	case LocalPath:
		return fmt.Sprintf("local path %q", s.Path)
	case RemoteArchive:
		return fmt.Sprintf("archive %q", s.URL)
	case Builtin:
		return fmt.Sprintf("builtin %s", s.BuiltinVersion)
	default:
		return "unknown source"
	}
}

// Identity is a package name plus its resolved source: the full identity
// used for reproducibility (two installed copies of the "same" name from
// different sources are distinct resolutions).
type Identity struct {
	Name   string
	Source Source
}

func (id Identity) Key() string { return id.Name + "@" + id.Source.Key() }
