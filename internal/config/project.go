package config

import (
	"fmt"
	"os"
	"path/filepath"

	rverrors "github.com/rv-tools/rv/internal/errors"
)

// ProjectFileName is the name of the project configuration file within a
// project root.
const ProjectFileName = "rproject.hcl"

// ProjectConfig represents a parsed rproject.hcl file.
type ProjectConfig struct {
	// Project contains project-wide settings.
	Project ProjectBlock `hcl:"project,block"`

	// Repositories lists the package repositories to resolve against, in
	// declared order (resolution-significant, see resolver priority).
	Repositories []RepositoryBlock `hcl:"repository,block"`

	// Dependencies lists the project's direct dependencies.
	Dependencies []DependencyBlock `hcl:"dependency,block"`

	// Variables holds the project's var.NAME declarations. Populated by
	// the first parsing pass, not decoded directly from HCL.
	Variables []ProjectVariableBlock

	// ResolvedVars holds the resolved value of each variable, keyed by
	// name. Populated by the first parsing pass.
	ResolvedVars map[string]string
}

// ProjectBlock contains the project { } block: platform targeting and
// layout overrides.
type ProjectBlock struct {
	// PlatformVersion pins the target platform version this project's
	// dependency closure is resolved against (affects built-in lookups
	// and platform-tagged binary repository paths).
	PlatformVersion string `hcl:"platform_version,attr"`

	// LibraryPath overrides the default rlibrary/ location, relative to
	// the project root unless absolute.
	LibraryPath string `hcl:"library_path,optional"`

	// PreferRepositoriesFor lists dependency names that must always be
	// resolved against configured repositories, even when some resolved
	// package's metadata declares a remote override for them.
	PreferRepositoriesFor []string `hcl:"prefer_repositories_for,optional"`
}

// RepositoryBlock defines one repository { } block.
type RepositoryBlock struct {
	// Alias is the repository's unique identifier (from the block label).
	Alias string `hcl:"alias,label"`

	// URL is the repository's base URL. Source and binary index paths
	// are derived from it (see the repository database).
	URL string `hcl:"url,attr"`

	// Kind restricts this repository to "source" or "binary-capable"
	// entries; empty means both index flavors are consulted.
	Kind string `hcl:"kind,optional"`
}

// DependencyBlock defines one dependency { } block: a name plus an
// optional version constraint and source-override attributes.
type DependencyBlock struct {
	// Name is the dependency's package name (from the block label).
	Name string `hcl:"name,label"`

	// Version is a version constraint string (">=1.2.0", ">=2.0,<3.0", ...).
	// Empty means "latest satisfying the repository priority order".
	Version string `hcl:"version,optional"`

	// Repository pins this name to a single configured repository alias,
	// skipping the declared-order priority across the rest.
	Repository string `hcl:"repository,optional"`

	// Git, Branch, Tag, and Commit pin this dependency to a
	// version-control source instead of a repository lookup. At most
	// one of Branch/Tag/Commit should be set alongside Git.
	Git    string `hcl:"git,optional"`
	Branch string `hcl:"branch,optional"`
	Tag    string `hcl:"tag,optional"`
	Commit string `hcl:"commit,optional"`

	// Subdirectory selects a subdirectory within a Git checkout.
	Subdirectory string `hcl:"subdirectory,optional"`

	// Path pins this dependency to a local filesystem path.
	Path string `hcl:"path,optional"`

	// URL pins this dependency to a plain remote archive, optionally
	// verified against SHA (an SRI-style "sha256-..." digest).
	URL string `hcl:"url,optional"`
	SHA string `hcl:"sha,optional"`

	// ForceSource requires a source-index match even when a
	// binary-capable repository or platform built-in could satisfy this
	// name (see resolver priority order, step 3).
	ForceSource bool `hcl:"force_source,optional"`

	// IncludeSuggests pulls this dependency's own Suggests entries into
	// the closure as if they were Depends/Imports entries.
	IncludeSuggests bool `hcl:"include_suggests,optional"`

	// DependenciesOnly installs this name's dependency closure without
	// installing the package itself.
	DependenciesOnly bool `hcl:"dependencies_only,optional"`

	// ConfigureArgs is passed through to the installer for this package.
	ConfigureArgs []string `hcl:"configure_args,optional"`

	// Env sets extra environment variables for this package's install
	// step, merged over the ambient environment.
	Env map[string]string `hcl:"env,optional"`
}

// ProjectVariableBlock defines a variable { } block available to the rest
// of the document as var.NAME.
type ProjectVariableBlock struct {
	Name        string `hcl:"name,label"`
	Description string `hcl:"description,optional"`
	Default     string `hcl:"default,optional"`
	Env         string `hcl:"env,optional"`
	Required    bool   `hcl:"required,optional"`
}

// LoadProject loads rproject.hcl from the given project root, resolving
// variables and evaluating env()/file() expressions along the way.
func LoadProject(dir string) (*ProjectConfig, error) {
	filename := filepath.Join(dir, ProjectFileName)

	parser := NewParser()
	file, diags := parser.ParseFile(filename)
	if diags.HasErrors() {
		return nil, rverrors.NewConfigError(filename, 0, 0, "parse failed", fmtDiagErr(diags))
	}

	variables, resolvedVars, remain, err := extractAndResolveProjectVariables(file.Body)
	if err != nil {
		return nil, rverrors.NewConfigError(filename, 0, 0, "variable resolution failed", err)
	}

	ctx := NewProjectEvalContext(dir, resolvedVars)
	var cfg ProjectConfig
	diags = DecodeBody(remain, ctx, &cfg)
	if diags.HasErrors() {
		return nil, rverrors.NewConfigError(filename, 0, 0, "decode failed", fmtDiagErr(diags))
	}

	cfg.Variables = variables
	cfg.ResolvedVars = resolvedVars

	return &cfg, nil
}

// LibraryDir returns the resolved library directory for this project,
// applying ProjectBlock.LibraryPath relative to root if it's not absolute.
func (p *ProjectConfig) LibraryDir(root string) string {
	if p.Project.LibraryPath == "" {
		return filepath.Join(root, "rlibrary")
	}
	if filepath.IsAbs(p.Project.LibraryPath) {
		return p.Project.LibraryPath
	}
	return filepath.Join(root, p.Project.LibraryPath)
}

// Validate checks the project config for structural errors not already
// caught by HCL decoding.
func (p *ProjectConfig) Validate() error {
	if p.Project.PlatformVersion == "" {
		return rverrors.NewValidationError("project", "platform_version", "required field missing")
	}

	seenRepo := make(map[string]bool)
	for _, repo := range p.Repositories {
		if repo.Alias == "" {
			return rverrors.NewValidationError("repository", "alias", "required field missing")
		}
		if seenRepo[repo.Alias] {
			return rverrors.NewValidationError("repository", "alias", fmt.Sprintf("duplicate alias %q", repo.Alias))
		}
		seenRepo[repo.Alias] = true
		if repo.URL == "" {
			return rverrors.NewValidationError("repository "+repo.Alias, "url", "required field missing")
		}
		if repo.Kind != "" && repo.Kind != "source" && repo.Kind != "binary-capable" {
			return rverrors.NewValidationError("repository "+repo.Alias, "kind", fmt.Sprintf("must be \"source\" or \"binary-capable\", got %q", repo.Kind))
		}
	}

	seenDep := make(map[string]bool)
	for _, dep := range p.Dependencies {
		if dep.Name == "" {
			return rverrors.NewValidationError("dependency", "name", "required field missing")
		}
		if seenDep[dep.Name] {
			return rverrors.NewValidationError("dependency", "name", fmt.Sprintf("duplicate name %q", dep.Name))
		}
		seenDep[dep.Name] = true

		overrides := 0
		if dep.Git != "" {
			overrides++
		}
		if dep.Path != "" {
			overrides++
		}
		if dep.URL != "" {
			overrides++
		}
		if dep.Repository != "" {
			overrides++
		}
		if overrides > 1 {
			return rverrors.NewValidationError("dependency "+dep.Name, "source", "at most one of git, path, url, repository may be set")
		}
		if dep.Repository != "" && !seenRepo[dep.Repository] {
			return rverrors.NewValidationError("dependency "+dep.Name, "repository", fmt.Sprintf("unknown repository alias %q", dep.Repository))
		}
		if dep.Git != "" {
			refs := 0
			for _, r := range []string{dep.Branch, dep.Tag, dep.Commit} {
				if r != "" {
					refs++
				}
			}
			if refs > 1 {
				return rverrors.NewValidationError("dependency "+dep.Name, "git", "at most one of branch, tag, commit may be set")
			}
		}
	}

	varNames := make(map[string]bool)
	for _, v := range p.Variables {
		if varNames[v.Name] {
			return rverrors.NewValidationError("variable", "name", fmt.Sprintf("duplicate name %q", v.Name))
		}
		varNames[v.Name] = true
		if v.Required && v.Default != "" {
			return rverrors.NewValidationError("variable "+v.Name, "required", "marked required but has a default value")
		}
	}

	return nil
}

// AddDependency appends a dependency block to rproject.hcl, skipping the
// write if a dependency with this name already exists.
func AddDependency(dir, name, version string) error {
	filename := filepath.Join(dir, ProjectFileName)

	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	if existing, err := LoadProject(dir); err == nil {
		for _, d := range existing.Dependencies {
			if d.Name == name {
				return nil
			}
		}
	}

	var block string
	if version != "" {
		block = fmt.Sprintf("\ndependency %q {\n  version = %q\n}\n", name, version)
	} else {
		block = fmt.Sprintf("\ndependency %q {\n}\n", name)
	}

	newContent := string(content) + block
	if err := os.WriteFile(filename, []byte(newContent), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}
