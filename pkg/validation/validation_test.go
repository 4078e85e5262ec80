package validation_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poltergeist/conductor/pkg/types"
	"github.com/poltergeist/conductor/pkg/validation"
)

func hasFinding(r *validation.ValidationResult, field string, level validation.ValidationLevel) bool {
	for _, e := range r.Errors {
		if e.Field == field && e.Level == level {
			return true
		}
	}
	return false
}

func TestPipelineValidator_Validate(t *testing.T) {
	workspace := t.TempDir()
	os.MkdirAll(filepath.Join(workspace, "web"), 0755)

	valid := types.PipelineConfig{
		Version: "1.0",
		Name:    "web",
		Stages: []types.StageConfig{
			{Name: "info", Uses: "git-info"},
			{Name: "build", Run: "npm run build", Dir: "web"},
		},
		Post: map[string][]types.HookConfig{"always": {{Summary: &types.SummaryConfig{}}}},
	}

	tests := []struct {
		name        string
		mutate      func(c *types.PipelineConfig)
		expectValid bool
		field       string
		level       validation.ValidationLevel
	}{
		{
			name:        "valid",
			mutate:      func(c *types.PipelineConfig) {},
			expectValid: true,
		},
		{
			name:   "bad version",
			mutate: func(c *types.PipelineConfig) { c.Version = "0.9" },
			field:  "version",
			level:  validation.ValidationLevelError,
		},
		{
			name:   "no stages",
			mutate: func(c *types.PipelineConfig) { c.Stages = nil },
			field:  "stages",
			level:  validation.ValidationLevelError,
		},
		{
			name: "duplicate stage",
			mutate: func(c *types.PipelineConfig) {
				c.Stages = append(c.Stages, types.StageConfig{Name: "build", Run: "make"})
			},
			field: "name",
			level: validation.ValidationLevelError,
		},
		{
			name:   "unknown action",
			mutate: func(c *types.PipelineConfig) { c.Stages[0].Uses = "kubectl-apply" },
			field:  "uses",
			level:  validation.ValidationLevelError,
		},
		{
			name:        "capture on builtin",
			mutate:      func(c *types.PipelineConfig) { c.Stages[0].Capture = "X" },
			expectValid: true,
			field:       "capture",
			level:       validation.ValidationLevelWarning,
		},
		{
			name:        "missing dir",
			mutate:      func(c *types.PipelineConfig) { c.Stages[1].Dir = "api" },
			expectValid: true,
			field:       "dir",
			level:       validation.ValidationLevelWarning,
		},
		{
			name:   "bad timeout",
			mutate: func(c *types.PipelineConfig) { c.Stages[1].Timeout = "forever" },
			field:  "timeout",
			level:  validation.ValidationLevelError,
		},
		{
			name: "bad guard",
			mutate: func(c *types.PipelineConfig) {
				c.Stages[1].When = &types.WhenConfig{Expression: "BRANCH_NAME =="}
			},
			field: "when",
			level: validation.ValidationLevelError,
		},
		{
			name: "unknown hook key",
			mutate: func(c *types.PipelineConfig) {
				c.Post["finally"] = []types.HookConfig{{Run: "echo"}}
			},
			field: "post",
			level: validation.ValidationLevelError,
		},
		{
			name: "hook with two kinds",
			mutate: func(c *types.PipelineConfig) {
				c.Stages[1].Post = []types.HookConfig{{Run: "echo", Notify: &types.NotifyConfig{}}}
			},
			field: "post[0]",
			level: validation.ValidationLevelError,
		},
		{
			name: "summary on a stage",
			mutate: func(c *types.PipelineConfig) {
				c.Stages[1].Post = []types.HookConfig{{Summary: &types.SummaryConfig{}}}
			},
			field: "post[0]",
			level: validation.ValidationLevelError,
		},
		{
			name:        "no summary hooks",
			mutate:      func(c *types.PipelineConfig) { c.Post = nil },
			expectValid: true,
			field:       "post",
			level:       validation.ValidationLevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			cfg.Stages = append([]types.StageConfig(nil), valid.Stages...)
			cfg.Post = map[string][]types.HookConfig{}
			for k, v := range valid.Post {
				cfg.Post[k] = v
			}
			tt.mutate(&cfg)

			result := validation.NewPipelineValidator(workspace).Validate(&cfg)

			if result.Valid != tt.expectValid {
				t.Errorf("Valid = %v, want %v (findings: %v)", result.Valid, tt.expectValid, result.Errors)
			}
			if tt.field != "" && !hasFinding(result, tt.field, tt.level) {
				t.Errorf("expected %s finding on %q, got %v", tt.level, tt.field, result.Errors)
			}
		})
	}
}

func TestValidationResult_Count(t *testing.T) {
	r := &validation.ValidationResult{Valid: true}
	r.AddError("a", "run", "x", validation.ValidationLevelWarning)
	r.AddError("a", "uses", "y", validation.ValidationLevelWarning)

	other := &validation.ValidationResult{Valid: true}
	other.AddError("", "version", "z", validation.ValidationLevelError)
	r.Merge(other)

	if r.Valid {
		t.Error("merged error must invalidate the result")
	}
	if r.Count(validation.ValidationLevelWarning) != 2 || r.Count(validation.ValidationLevelError) != 1 {
		t.Errorf("counts wrong: %v", r.Errors)
	}
	if got := r.Errors[0].Error(); got != "[warning] a.run: x" {
		t.Errorf("Error() = %q", got)
	}
}

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		valid  bool
		expect string
	}{
		{
			name:  "valid yaml",
			doc:   "version: 1.0\nstages:\n  - name: build\n    run: make\n    timeout: 5m\n",
			valid: true,
		},
		{
			name:  "valid json",
			doc:   `{"version": "1.0", "stages": [{"name": "info", "uses": "git-info"}]}`,
			valid: true,
		},
		{
			name:   "missing stages",
			doc:    "version: \"1.0\"\n",
			expect: "stages",
		},
		{
			name:   "unknown top-level field",
			doc:    "version: \"1.0\"\nstages: [{name: a, run: x}]\ntriggers: [push]\n",
			expect: "triggers",
		},
		{
			name:   "unknown builtin",
			doc:    "version: \"1.0\"\nstages: [{name: a, uses: helm}]\n",
			expect: "uses",
		},
		{
			name:   "bad timeout",
			doc:    "version: \"1.0\"\nstages: [{name: a, run: x, timeout: ten}]\n",
			expect: "timeout",
		},
		{
			name:   "bad hook key",
			doc:    "version: \"1.0\"\nstages: [{name: a, run: x}]\npost: {finally: [{run: y}]}\n",
			expect: "finally",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := validation.ValidateSchema([]byte(tt.doc))
			if err != nil {
				t.Fatalf("ValidateSchema() error = %v", err)
			}
			if result.Valid != tt.valid {
				t.Fatalf("Valid = %v, want %v (%v)", result.Valid, tt.valid, result.Errors)
			}
			if tt.expect == "" {
				return
			}
			found := false
			for _, e := range result.Errors {
				if strings.Contains(e.Error(), tt.expect) {
					found = true
				}
			}
			if !found {
				t.Errorf("no finding mentions %q: %v", tt.expect, result.Errors)
			}
		})
	}
}

func TestValidateSchema_Unparseable(t *testing.T) {
	if _, err := validation.ValidateSchema([]byte("stages: [oops")); err == nil {
		t.Error("expected parse error")
	}
}
