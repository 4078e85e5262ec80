// Package validation reports every problem in a pipeline definition, with
// severity levels, for `conductor validate`
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poltergeist/conductor/pkg/config"
	"github.com/poltergeist/conductor/pkg/guards"
	"github.com/poltergeist/conductor/pkg/types"
)

// ValidationLevel represents error severity
type ValidationLevel string

const (
	ValidationLevelError   ValidationLevel = "error"
	ValidationLevelWarning ValidationLevel = "warning"
	ValidationLevelInfo    ValidationLevel = "info"
)

// ValidationError is one finding
type ValidationError struct {
	Stage   string
	Field   string
	Message string
	Level   ValidationLevel
}

func (e *ValidationError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("[%s] %s: %s", e.Level, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s.%s: %s", e.Level, e.Stage, e.Field, e.Message)
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// AddError adds a finding; error-level findings invalidate the result
func (r *ValidationResult) AddError(stage, field, message string, level ValidationLevel) {
	r.Errors = append(r.Errors, ValidationError{
		Stage:   stage,
		Field:   field,
		Message: message,
		Level:   level,
	})
	if level == ValidationLevelError {
		r.Valid = false
	}
}

// Merge appends other's findings
func (r *ValidationResult) Merge(other *ValidationResult) {
	for _, e := range other.Errors {
		r.AddError(e.Stage, e.Field, e.Message, e.Level)
	}
}

// Count returns the number of findings at level
func (r *ValidationResult) Count(level ValidationLevel) int {
	n := 0
	for _, e := range r.Errors {
		if e.Level == level {
			n++
		}
	}
	return n
}

// PipelineValidator checks definitions against a workspace
type PipelineValidator struct {
	workspace string
}

// NewPipelineValidator creates a validator; workspace may be empty to skip
// filesystem checks
func NewPipelineValidator(workspace string) *PipelineValidator {
	return &PipelineValidator{workspace: workspace}
}

// Validate checks cfg and collects every finding
func (v *PipelineValidator) Validate(cfg *types.PipelineConfig) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if cfg.Version != config.SupportedVersion {
		result.AddError("", "version", fmt.Sprintf("unsupported version %q, expected %q", cfg.Version, config.SupportedVersion), ValidationLevelError)
	}
	if cfg.Name == "" {
		result.AddError("", "name", "pipeline has no name, the job name will be used", ValidationLevelInfo)
	}
	if len(cfg.Stages) == 0 {
		result.AddError("", "stages", "no stages defined", ValidationLevelError)
	}

	names := make(map[string]bool)
	for i, stage := range cfg.Stages {
		if stage.Name == "" {
			result.AddError(fmt.Sprintf("stages[%d]", i), "name", "stage name is required", ValidationLevelError)
		} else if names[stage.Name] {
			result.AddError(stage.Name, "name", "duplicate stage name", ValidationLevelError)
		}
		names[stage.Name] = true

		v.validateStage(stage, result)
	}

	for key, hooks := range cfg.Post {
		if _, err := types.ParseHookKey(key); err != nil {
			result.AddError("", "post", fmt.Sprintf("unknown hook key %q", key), ValidationLevelError)
			continue
		}
		for i, hook := range hooks {
			v.validateHook("", fmt.Sprintf("post.%s[%d]", key, i), hook, result)
		}
	}

	if len(cfg.Post[string(types.HookAlways)]) == 0 && len(cfg.Post[string(types.HookCleanup)]) == 0 {
		result.AddError("", "post", "no always or cleanup hooks, no summary will be written", ValidationLevelInfo)
	}

	return result
}

func (v *PipelineValidator) validateStage(stage types.StageConfig, result *ValidationResult) {
	name := stage.Name

	switch {
	case stage.Run == "" && stage.Uses == "":
		result.AddError(name, "run", "one of run or uses is required", ValidationLevelError)
	case stage.Run != "" && stage.Uses != "":
		result.AddError(name, "uses", "run and uses are mutually exclusive", ValidationLevelError)
	case stage.Uses != "" && !isBuiltin(stage.Uses):
		result.AddError(name, "uses", fmt.Sprintf("unknown action %q, expected one of %s", stage.Uses, strings.Join(config.BuiltinActions, ", ")), ValidationLevelError)
	}

	if stage.Uses != "" {
		if stage.Capture != "" {
			result.AddError(name, "capture", "capture only applies to run stages", ValidationLevelWarning)
		}
		if len(stage.Environment) > 0 {
			result.AddError(name, "environment", "environment only applies to run stages", ValidationLevelWarning)
		}
	}

	if _, err := stage.GetTimeout(); err != nil {
		result.AddError(name, "timeout", err.Error(), ValidationLevelError)
	}

	if _, err := guards.FromConfig(stage.When); err != nil {
		result.AddError(name, "when", err.Error(), ValidationLevelError)
	}

	if v.workspace != "" && stage.Dir != "" && !filepath.IsAbs(stage.Dir) {
		if _, err := os.Stat(filepath.Join(v.workspace, stage.Dir)); os.IsNotExist(err) {
			result.AddError(name, "dir", fmt.Sprintf("directory does not exist: %s", stage.Dir), ValidationLevelWarning)
		}
	}

	for i, hook := range stage.Pre {
		v.validateStageHook(name, fmt.Sprintf("pre[%d]", i), hook, result)
	}
	for i, hook := range stage.Post {
		v.validateStageHook(name, fmt.Sprintf("post[%d]", i), hook, result)
	}
}

func (v *PipelineValidator) validateStageHook(stage, field string, hook types.HookConfig, result *ValidationResult) {
	switch hook.Kind() {
	case "summary", "notify":
		result.AddError(stage, field, fmt.Sprintf("%s hooks are only allowed under the pipeline post block", hook.Kind()), ValidationLevelError)
		return
	}
	v.validateHook(stage, field, hook, result)
}

func (v *PipelineValidator) validateHook(stage, field string, hook types.HookConfig, result *ValidationResult) {
	switch hook.Kind() {
	case "":
		result.AddError(stage, field, "exactly one of run, archive, summary or notify is required", ValidationLevelError)
	case "archive":
		if len(hook.Archive.Paths) == 0 {
			result.AddError(stage, field, "archive needs at least one path", ValidationLevelError)
		}
		for _, p := range hook.Archive.Paths {
			if filepath.IsAbs(p) {
				result.AddError(stage, field, fmt.Sprintf("archive path should be relative to the workspace: %s", p), ValidationLevelWarning)
			}
		}
	}
}

func isBuiltin(name string) bool {
	for _, b := range config.BuiltinActions {
		if b == name {
			return true
		}
	}
	return false
}
