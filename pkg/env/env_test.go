package env_test

import (
	"reflect"
	"testing"

	"github.com/poltergeist/conductor/pkg/env"
)

func TestContext_GetMissingKey(t *testing.T) {
	c := env.New()

	if got := c.Get(env.GitCommit); got != "" {
		t.Errorf("expected empty value for missing key, got %q", got)
	}
	if got := c.GetOr(env.GitCommit, env.Unknown); got != env.Unknown {
		t.Errorf("expected %q, got %q", env.Unknown, got)
	}
	if _, ok := c.Lookup(env.GitCommit); ok {
		t.Error("expected lookup of missing key to report not found")
	}
}

func TestContext_LastWriteWins(t *testing.T) {
	c := env.New()
	c.Set(env.BranchName, "develop")
	c.Set(env.BranchName, "main")

	if got := c.Get(env.BranchName); got != "main" {
		t.Errorf("expected last write to win, got %q", got)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 key, got %d", c.Len())
	}
}

func TestContext_SetDefault(t *testing.T) {
	c := env.FromMap(map[string]string{env.BranchName: "feature/x"})
	c.SetDefault(env.BranchName, "main")
	c.SetDefault(env.JobName, "web")

	if got := c.Get(env.BranchName); got != "feature/x" {
		t.Errorf("SetDefault overwrote existing value: %q", got)
	}
	if got := c.Get(env.JobName); got != "web" {
		t.Errorf("expected default to be set, got %q", got)
	}
}

func TestContext_SnapshotIsImmutable(t *testing.T) {
	c := env.New()
	c.Set(env.JobName, "web")

	snap := c.Snapshot()
	c.Set(env.JobName, "api")
	c.Set(env.BuildNumber, "7")

	if got := snap.Get(env.JobName); got != "web" {
		t.Errorf("snapshot changed after write: %q", got)
	}
	if _, ok := snap.Lookup(env.BuildNumber); ok {
		t.Error("snapshot should not see keys added later")
	}

	m := snap.Map()
	m[env.JobName] = "mutated"
	if got := snap.Get(env.JobName); got != "web" {
		t.Errorf("Map() leaked internal state: %q", got)
	}
}

func TestContext_KeysAndEnviron(t *testing.T) {
	c := env.FromMap(map[string]string{"B": "2", "A": "1"})

	if got := c.Keys(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("unexpected keys: %v", got)
	}
	if got := c.Environ(); !reflect.DeepEqual(got, []string{"A=1", "B=2"}) {
		t.Errorf("unexpected environ: %v", got)
	}
}

func TestExpand(t *testing.T) {
	c := env.FromMap(map[string]string{
		env.JobName:     "web",
		env.BuildNumber: "42",
		"EMPTY":         "",
	})

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"braces", "${JOB_NAME}#${BUILD_NUMBER}", "web#42"},
		{"bare", "$JOB_NAME", "web"},
		{"undefined renders empty", "commit=${GIT_COMMIT}", "commit="},
		{"default for undefined", "${GIT_COMMIT:-unknown}", "unknown"},
		{"default for empty", "${EMPTY:-none}", "none"},
		{"defined ignores default", "${JOB_NAME:-other}", "web"},
		{"no references", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Expand(tt.template); got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
			}
			if got := c.Snapshot().Expand(tt.template); got != tt.want {
				t.Errorf("Snapshot.Expand(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}
