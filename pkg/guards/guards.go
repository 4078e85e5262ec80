// Package guards provides the built-in stage guard predicates
package guards

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/poltergeist/conductor/pkg/deploy"
	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/pipeline"
	"github.com/poltergeist/conductor/pkg/types"
)

// FileExists passes when file exists. Relative paths resolve against WORKSPACE.
func FileExists(file string) pipeline.Guard {
	return func(vars env.Snapshot) bool {
		p := vars.Expand(file)
		if !filepath.IsAbs(p) {
			p = filepath.Join(vars.Get(env.Workspace), p)
		}
		_, err := os.Stat(p)
		return err == nil
	}
}

// BranchMatches passes when BRANCH_NAME matches any of the glob patterns
func BranchMatches(patterns ...string) pipeline.Guard {
	return func(vars env.Snapshot) bool {
		branch := deploy.NormalizeBranch(vars.Get(env.BranchName))
		for _, pattern := range patterns {
			if ok, _ := path.Match(pattern, branch); ok {
				return true
			}
		}
		return false
	}
}

// All passes when every guard passes. Nil guards are ignored.
func All(guards ...pipeline.Guard) pipeline.Guard {
	return func(vars env.Snapshot) bool {
		for _, g := range guards {
			if g != nil && !g(vars) {
				return false
			}
		}
		return true
	}
}

// FromConfig builds the guard for a stage's `when` block. It returns nil when
// no condition is configured, and an error when an expression or branch
// pattern is malformed.
func FromConfig(when *types.WhenConfig) (pipeline.Guard, error) {
	if when == nil || when.IsEmpty() {
		return nil, nil
	}

	var guards []pipeline.Guard
	if when.FileExists != "" {
		guards = append(guards, FileExists(when.FileExists))
	}
	if len(when.Branch) > 0 {
		for _, pattern := range when.Branch {
			if _, err := path.Match(pattern, ""); err != nil {
				return nil, fmt.Errorf("invalid branch pattern %q: %w", pattern, err)
			}
		}
		guards = append(guards, BranchMatches(when.Branch...))
	}
	if when.Expression != "" {
		e, err := CompileExpression(when.Expression)
		if err != nil {
			return nil, err
		}
		guards = append(guards, e.Guard())
	}

	if len(guards) == 1 {
		return guards[0], nil
	}
	return All(guards...), nil
}
