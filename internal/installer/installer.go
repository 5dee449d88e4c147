// Package installer defines the narrow boundary between the core (which
// resolves, plans, and stages packages) and the external tool that
// actually compiles and installs a package from its staged source. The
// core never invokes a platform's native build machinery directly; it
// only ever calls through this interface.
package installer

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/rv-tools/rv/internal/errors"
)

// Installer installs one staged package source into a target directory.
// Implementations are free to shell out, call a library, or (in tests)
// simulate the operation; the core only depends on this signature.
type Installer interface {
	// Install builds and installs the package rooted at stagedSourceDir
	// into targetDir, with env applied on top of the process
	// environment and configureArgs passed through to the build
	// tooling. Implementations must not modify stagedSourceDir or
	// write outside targetDir.
	Install(ctx context.Context, name, stagedSourceDir, targetDir string, env map[string]string, configureArgs []string) error
}

// CommandInstaller is the default Installer: it shells out to a
// configurable command template, substituting {{source}} and
// {{target}} placeholders with the staged source and target
// directories. It never hard-codes a path to any platform's own
// package-build tooling — the template is supplied by configuration.
type CommandInstaller struct {
	// Template is the command to run, split into argv form, e.g.
	// []string{"R", "CMD", "INSTALL", "--library={{target}}", "{{source}}"}.
	Template []string
}

// NewCommandInstaller creates a CommandInstaller for a given argv
// template.
func NewCommandInstaller(template []string) *CommandInstaller {
	return &CommandInstaller{Template: template}
}

// Install runs the configured command template with {{source}} and
// {{target}} substituted, inheriting the current process environment
// plus the extra entries in env. A template element that is exactly
// "{{args}}" is replaced in place by every element of configureArgs
// (zero or more), rather than a single substituted string.
func (c *CommandInstaller) Install(ctx context.Context, name, stagedSourceDir, targetDir string, env map[string]string, configureArgs []string) error {
	if len(c.Template) == 0 {
		return errors.NewSyncError(name, "install", errors.New("no installer command configured"))
	}

	var args []string
	for _, a := range c.Template {
		if a == "{{args}}" {
			args = append(args, configureArgs...)
			continue
		}
		a = strings.ReplaceAll(a, "{{source}}", stagedSourceDir)
		a = strings.ReplaceAll(a, "{{target}}", targetDir)
		args = append(args, a)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = errors.Wrap(err, msg)
		}
		return errors.NewSyncError(name, "install", err)
	}
	return nil
}
