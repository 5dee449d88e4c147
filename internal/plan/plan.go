// Package plan computes the build plan: the difference between a
// resolved dependency closure and the packages currently materialized
// in the library, categorized into the actions a sync would take. It
// is pure and read-only — producing a Plan never touches the
// filesystem beyond the manifest state already loaded by the caller.
package plan

import (
	"fmt"
	"sort"

	"github.com/rv-tools/rv/internal/manifest"
	"github.com/rv-tools/rv/internal/resolver"
)

// Action classifies what a sync would do for one package.
type Action string

const (
	// ActionPresent means the installed package already matches the
	// resolved version and source; sync would leave it untouched.
	ActionPresent Action = "present"
	// ActionUpdate means a package is installed but at a different
	// version or from a different source than resolution chose.
	ActionUpdate Action = "update"
	// ActionInstall means a package is in the resolution but not yet
	// installed.
	ActionInstall Action = "install"
	// ActionRemove means a package is installed but no longer appears
	// in the resolution (no longer depended on).
	ActionRemove Action = "remove"
)

// Entry is one package's planned action.
type Entry struct {
	Name       string
	Action     Action
	OldVersion string // empty unless Action is present, update, or remove
	NewVersion string // empty unless Action is present, update, or install
}

// Plan is the full set of actions a sync would take to bring the
// library in line with a resolution. Installs, updates, and present
// entries follow the resolution's install order, so a package's
// dependencies always come before it; removals follow them, sorted by
// name.
type Plan struct {
	Entries []Entry
}

// Build diffs a resolution against the currently installed library
// state and produces a Plan.
func Build(res *resolver.Resolution, state *manifest.State) *Plan {
	p := &Plan{}

	for _, name := range res.InstallOrder {
		node := res.Resolved[name]
		installed := state.Get(name)
		newVersion := node.Version.String()

		switch {
		case installed == nil:
			p.Entries = append(p.Entries, Entry{
				Name:       name,
				Action:     ActionInstall,
				NewVersion: newVersion,
			})
		case installed.Version != newVersion || !installed.SourceEqual(node.Source):
			p.Entries = append(p.Entries, Entry{
				Name:       name,
				Action:     ActionUpdate,
				OldVersion: installed.Version,
				NewVersion: newVersion,
			})
		default:
			p.Entries = append(p.Entries, Entry{
				Name:       name,
				Action:     ActionPresent,
				OldVersion: installed.Version,
				NewVersion: newVersion,
			})
		}
	}

	var removals []Entry
	for _, name := range state.PackageNames() {
		if _, ok := res.Resolved[name]; ok {
			continue
		}
		removals = append(removals, Entry{
			Name:       name,
			Action:     ActionRemove,
			OldVersion: state.Get(name).Version,
		})
	}
	sort.Slice(removals, func(i, j int) bool {
		return removals[i].Name < removals[j].Name
	})
	p.Entries = append(p.Entries, removals...)

	return p
}

// IsEmpty reports whether the plan has no installs, updates, or
// removals pending (every resolved package is already present).
func (p *Plan) IsEmpty() bool {
	for _, e := range p.Entries {
		if e.Action != ActionPresent {
			return false
		}
	}
	return true
}

// Summary returns the count of entries per action.
func (p *Plan) Summary() map[Action]int {
	counts := make(map[Action]int)
	for _, e := range p.Entries {
		counts[e.Action]++
	}
	return counts
}

// String renders a one-line human-readable summary, e.g.
// "2 to install, 1 to update, 1 up to date, 1 to remove".
func (p *Plan) String() string {
	counts := p.Summary()
	return fmt.Sprintf(
		"%d to install, %d to update, %d up to date, %d to remove",
		counts[ActionInstall], counts[ActionUpdate], counts[ActionPresent], counts[ActionRemove],
	)
}
