// Package ui provides the terminal-rendering helpers the CLI shell
// uses: plan-diff coloring and byte/version formatting. The core
// (resolver, plan, syncengine) never imports this package directly —
// it only depends on the syncengine.Reporter interface, which this
// package's Reporter implements, so the core stays renderer-agnostic.
package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/rv-tools/rv/internal/plan"
)

// SetNoColor disables (or re-enables) color output globally, mirroring
// the RV_NO_COLOR environment variable.
func SetNoColor(disabled bool) {
	color.NoColor = disabled
}

// PrintPlan renders a plan to w, one line per entry, colored by action:
// green for install, cyan for update, gray for present, yellow for
// remove.
func PrintPlan(w io.Writer, p *plan.Plan) {
	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, e := range p.Entries {
		switch e.Action {
		case plan.ActionInstall:
			fmt.Fprintf(w, "  %s %s (%s)\n", green("+"), e.Name, e.NewVersion)
		case plan.ActionUpdate:
			fmt.Fprintf(w, "  %s %s (%s -> %s)\n", cyan("~"), e.Name, e.OldVersion, e.NewVersion)
		case plan.ActionPresent:
			fmt.Fprintf(w, "  %s %s (%s)\n", gray("="), e.Name, e.NewVersion)
		case plan.ActionRemove:
			fmt.Fprintf(w, "  %s %s (%s)\n", yellow("-"), e.Name, e.OldVersion)
		}
	}
	fmt.Fprintln(w, p.String())
}

// FormatBytes renders a byte count the way pack/publish-style size
// summaries do elsewhere in this ecosystem.
func FormatBytes(n uint64) string {
	return humanize.Bytes(n)
}

// StatusGlyph colors a one-word status label (as used by the status
// command) consistently with PrintPlan's action coloring.
func StatusGlyph(status string) string {
	switch status {
	case "ok":
		return color.New(color.FgGreen).Sprint("ok")
	case "stale":
		return color.New(color.FgCyan).Sprint("~~")
	case "missing":
		return color.New(color.FgYellow).Sprint("!!")
	case "untracked":
		return color.New(color.FgHiBlack).Sprint("??")
	default:
		return status
	}
}

// Reporter is a syncengine.Reporter implementation that prints
// start/progress/done lines to an io.Writer, colored by outcome. Safe
// for concurrent use: the sync engine calls it from multiple
// goroutines, one per in-flight package.
type Reporter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewReporter creates a Reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

func (r *Reporter) OnStart(name string) {
	cyan := color.New(color.FgCyan).SprintFunc()
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s %s\n", cyan("->"), name)
}

func (r *Reporter) OnProgress(name, message string) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "   %s %s\n", gray(name), message)
}

func (r *Reporter) OnDone(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(r.w, "%s %s: %v\n", red("x"), name, err)
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.w, "%s %s\n", green("ok"), name)
}
