package actions_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poltergeist/conductor/pkg/actions"
	"github.com/poltergeist/conductor/pkg/env"
)

func workspace(t *testing.T) *env.Context {
	t.Helper()
	vars := env.New()
	vars.Set(env.Workspace, t.TempDir())
	return vars
}

func TestShell_CaptureStdout(t *testing.T) {
	vars := workspace(t)
	vars.Set(env.GitCommitShort, "abc1234")

	sh := &actions.Shell{
		Stage:   "tag",
		Command: `echo "app:${GIT_COMMIT_SHORT}"; echo noise >&2`,
		Capture: "IMAGE_TAG",
	}
	if err := sh.Run(context.Background(), vars); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := vars.Get("IMAGE_TAG"); got != "app:abc1234" {
		t.Errorf("IMAGE_TAG = %q", got)
	}
}

func TestShell_StageEnvironmentIsExpanded(t *testing.T) {
	vars := workspace(t)
	vars.Set(env.JobName, "web")

	sh := &actions.Shell{
		Command:     "printf %s \"$TARGET\"",
		Environment: map[string]string{"TARGET": "${JOB_NAME}-${DEPLOY_TARGET:-preview}"},
		Capture:     "OUT",
	}
	if err := sh.Run(context.Background(), vars); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := vars.Get("OUT"); got != "web-preview" {
		t.Errorf("OUT = %q", got)
	}
}

func TestShell_RunsInWorkspaceDir(t *testing.T) {
	vars := workspace(t)
	sub := filepath.Join(vars.Get(env.Workspace), "web")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	sh := &actions.Shell{Command: "pwd", Dir: "web", Capture: "PWD_OUT"}
	if err := sh.Run(context.Background(), vars); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, _ := filepath.EvalSymlinks(vars.Get("PWD_OUT"))
	want, _ := filepath.EvalSymlinks(sub)
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

func TestShell_NonZeroExitFails(t *testing.T) {
	vars := workspace(t)
	sh := &actions.Shell{Command: "exit 3", Capture: "OUT"}

	err := sh.Run(context.Background(), vars)
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "exit status 3") {
		t.Errorf("error = %v", err)
	}
	if _, ok := vars.Lookup("OUT"); ok {
		t.Error("capture must not be written on failure")
	}
}

func TestShell_Timeout(t *testing.T) {
	sh := &actions.Shell{Command: "sleep 5", Timeout: 50 * time.Millisecond}

	err := sh.Run(context.Background(), workspace(t))
	if err == nil || !strings.Contains(err.Error(), "timed out after 50ms") {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestShell_EmptyCommand(t *testing.T) {
	if err := (&actions.Shell{Command: "  "}).Run(context.Background(), env.New()); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestShell_WritesLogFile(t *testing.T) {
	vars := workspace(t)
	logDir := filepath.Join(t.TempDir(), "logs")

	sh := &actions.Shell{Stage: "unit tests", Command: "echo hello", LogDir: logDir}
	if err := sh.Run(context.Background(), vars); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(logDir, "unit-tests.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	for _, want := range []string{"$ echo hello", "hello", "SUCCEEDED"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log missing %q:\n%s", want, data)
		}
	}
}

func fakeGit(answers map[string]string) actions.GitRunner {
	return func(ctx context.Context, dir string, args ...string) (string, error) {
		if v, ok := answers[strings.Join(args, " ")]; ok {
			return v, nil
		}
		return "", errors.New("fatal: not a git repository")
	}
}

func TestGitInfo_Resolves(t *testing.T) {
	vars := env.New()
	g := &actions.GitInfo{Git: fakeGit(map[string]string{
		"rev-parse HEAD":                   "0123456789abcdef",
		"rev-parse --short HEAD":           "0123456",
		"rev-parse --abbrev-ref HEAD":      "develop",
		"log -1 --pretty=format:%an <%ae>": "Dana <dana@example.com>",
	})}

	if err := g.Run(context.Background(), vars); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := map[string]string{
		env.GitCommit:      "0123456789abcdef",
		env.GitCommitShort: "0123456",
		env.BranchName:     "develop",
		env.GitAuthor:      "Dana <dana@example.com>",
	}
	for k, v := range want {
		if got := vars.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestGitInfo_FallsBackToUnknown(t *testing.T) {
	vars := env.New()
	g := &actions.GitInfo{Git: fakeGit(map[string]string{
		"rev-parse --abbrev-ref HEAD": "HEAD",
	})}

	if err := g.Run(context.Background(), vars); err != nil {
		t.Fatalf("git-info must never fail, got %v", err)
	}

	for _, k := range []string{env.GitCommit, env.GitCommitShort, env.BranchName, env.GitAuthor} {
		if got := vars.Get(k); got != env.Unknown {
			t.Errorf("%s = %q, want %q", k, got, env.Unknown)
		}
	}
}

func TestGitInfo_KeepsProvidedBranch(t *testing.T) {
	vars := env.FromMap(map[string]string{env.BranchName: "release/1.2"})
	g := &actions.GitInfo{Git: fakeGit(map[string]string{
		"rev-parse --abbrev-ref HEAD": "detached",
	})}

	g.Run(context.Background(), vars)

	if got := vars.Get(env.BranchName); got != "release/1.2" {
		t.Errorf("BRANCH_NAME = %q", got)
	}
}

func TestDeploySimulate(t *testing.T) {
	tests := []struct {
		branch  string
		profile string
		target  string
	}{
		{"main", "production", "prod"},
		{"develop", "staging", "staging"},
		{"feature/x", "feature-branch", "preview"},
		{"", "feature-branch", "preview"},
	}

	for _, tt := range tests {
		t.Run(tt.branch, func(t *testing.T) {
			vars := env.New()
			if tt.branch != "" {
				vars.Set(env.BranchName, tt.branch)
			}

			if err := (&actions.DeploySimulate{}).Run(context.Background(), vars); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := vars.Get(env.DeployProfile); got != tt.profile {
				t.Errorf("DEPLOY_PROFILE = %q, want %q", got, tt.profile)
			}
			if got := vars.Get(env.DeployTarget); got != tt.target {
				t.Errorf("DEPLOY_TARGET = %q, want %q", got, tt.target)
			}
		})
	}
}

func TestBuildInfo_WritesMetadata(t *testing.T) {
	vars := workspace(t)
	vars.Set(env.JobName, "web")
	vars.Set(env.BuildNumber, "12")
	vars.Set(env.GitCommit, "0123456789abcdef")

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := &actions.BuildInfo{OutputDir: "dist", Clock: func() time.Time { return fixed }}
	if err := b.Run(context.Background(), vars); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(vars.Get(env.Workspace), "dist", actions.BuildInfoFile))
	if err != nil {
		t.Fatalf("build info not written: %v", err)
	}
	var meta actions.BuildMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if meta.Job != "web" || meta.BuildNumber != "12" || meta.Commit != "0123456789abcdef" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.Branch != env.Unknown {
		t.Errorf("missing branch should be %q, got %q", env.Unknown, meta.Branch)
	}
	if !meta.Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v", meta.Timestamp)
	}
}
