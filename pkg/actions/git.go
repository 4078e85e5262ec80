package actions

import (
	"context"
	"os/exec"
	"strings"

	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/logger"
)

// GitRunner runs git with args in dir and returns trimmed stdout
type GitRunner func(ctx context.Context, dir string, args ...string) (string, error)

// ExecGit is the default GitRunner
func ExecGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// GitInfo resolves commit, branch and author metadata into the context.
// Anything git cannot answer is recorded as "unknown"; it never fails.
type GitInfo struct {
	Git    GitRunner
	Logger logger.Logger
}

type gitQuery struct {
	key  string
	args []string
}

var gitQueries = []gitQuery{
	{env.GitCommit, []string{"rev-parse", "HEAD"}},
	{env.GitCommitShort, []string{"rev-parse", "--short", "HEAD"}},
	{env.BranchName, []string{"rev-parse", "--abbrev-ref", "HEAD"}},
	{env.GitAuthor, []string{"log", "-1", "--pretty=format:%an <%ae>"}},
}

// Run implements pipeline.Action
func (g *GitInfo) Run(ctx context.Context, vars *env.Context) error {
	log := logger.OrNop(g.Logger)
	run := g.Git
	if run == nil {
		run = ExecGit
	}
	dir := vars.Get(env.Workspace)

	for _, q := range gitQueries {
		// an explicit --branch or CI-provided value wins over detection
		if v, ok := vars.Lookup(q.key); ok && v != "" && v != env.Unknown {
			continue
		}

		value, err := run(ctx, dir, q.args...)
		if err != nil || value == "" || (q.key == env.BranchName && value == "HEAD") {
			log.Debug("Git metadata unavailable", logger.WithField("key", q.key), logger.WithError(err))
			value = env.Unknown
		}
		vars.Set(q.key, value)
	}

	log.Info("Resolved git metadata",
		logger.WithField("commit", vars.Get(env.GitCommitShort)),
		logger.WithField("branch", vars.Get(env.BranchName)))
	return nil
}
