// Package config handles pipeline definition loading and management
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/poltergeist/conductor/pkg/guards"
	"github.com/poltergeist/conductor/pkg/types"
)

// SupportedVersion is the only definition schema version understood
const SupportedVersion = "1.0"

// DefaultFile is the definition file looked up when none is given
const DefaultFile = "conductor.yaml"

var (
	ErrUnsupportedVersion = errors.New("unsupported config version")
	ErrNoStages           = errors.New("no stages defined")
	ErrDuplicateStage     = errors.New("duplicate stage name")
	ErrUnknownHookKey     = errors.New("unknown hook key")
	ErrInvalidStage       = errors.New("invalid stage")
	ErrInvalidHook        = errors.New("invalid hook")
)

// BuiltinActions lists the names accepted by a stage's `uses` field
var BuiltinActions = []string{types.ActionGitInfo, types.ActionDeploySimulate, types.ActionBuildInfo}

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// LoadConfig loads and validates a definition file
func (m *Manager) LoadConfig(path string) (*types.PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := m.ParseConfig(data)
	if err != nil {
		return nil, err
	}
	if err := m.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig decodes JSON, falling back to YAML
func (m *Manager) ParseConfig(data []byte) (*types.PipelineConfig, error) {
	var cfg types.PipelineConfig

	if err := json.Unmarshal(data, &cfg); err == nil {
		return &cfg, nil
	}

	cfg = types.PipelineConfig{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config as JSON or YAML: %w", err)
	}
	return &cfg, nil
}

// ToJSON converts a YAML (or JSON) document to JSON
func ToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// ValidateConfig checks a definition and returns the first problem found
func (m *Manager) ValidateConfig(cfg *types.PipelineConfig) error {
	if cfg.Version != SupportedVersion {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, cfg.Version)
	}

	if len(cfg.Stages) == 0 {
		return ErrNoStages
	}

	seen := make(map[string]bool)
	for i, stage := range cfg.Stages {
		if stage.Name == "" {
			return fmt.Errorf("%w: stage %d has no name", ErrInvalidStage, i)
		}
		if seen[stage.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateStage, stage.Name)
		}
		seen[stage.Name] = true

		if err := validateStage(stage); err != nil {
			return fmt.Errorf("stage '%s': %w", stage.Name, err)
		}
	}

	for key, hooks := range cfg.Post {
		if _, err := types.ParseHookKey(key); err != nil {
			return fmt.Errorf("%w: %s", ErrUnknownHookKey, key)
		}
		for i, hook := range hooks {
			if err := validateHook(hook); err != nil {
				return fmt.Errorf("post.%s[%d]: %w", key, i, err)
			}
		}
	}

	return nil
}

// GetDefaultConfig returns a starter definition
func (m *Manager) GetDefaultConfig(name string) *types.PipelineConfig {
	disabled := false

	return &types.PipelineConfig{
		Version: SupportedVersion,
		Name:    name,
		Stages: []types.StageConfig{
			{Name: "checkout-info", Uses: types.ActionGitInfo},
			{Name: "build", Run: "echo building ${JOB_NAME} #${BUILD_NUMBER}"},
			{Name: "test", Run: "echo testing", ContinueOnError: true},
			{Name: "build-info", Uses: types.ActionBuildInfo},
			{
				Name: "deploy",
				Uses: types.ActionDeploySimulate,
				When: &types.WhenConfig{Expression: `BRANCH_NAME != "unknown"`},
			},
		},
		Post: map[string][]types.HookConfig{
			string(types.HookAlways):  {{Summary: &types.SummaryConfig{}}},
			string(types.HookFailure): {{Run: "echo ${JOB_NAME} #${BUILD_NUMBER} failed"}},
		},
		Notifications: &types.NotificationConfig{Enabled: &disabled},
	}
}

// Private methods

func validateStage(stage types.StageConfig) error {
	switch {
	case stage.Run == "" && stage.Uses == "":
		return fmt.Errorf("%w: one of run or uses is required", ErrInvalidStage)
	case stage.Run != "" && stage.Uses != "":
		return fmt.Errorf("%w: run and uses are mutually exclusive", ErrInvalidStage)
	}

	if stage.Uses != "" && !isBuiltin(stage.Uses) {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidStage, stage.Uses)
	}

	if _, err := stage.GetTimeout(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStage, err)
	}

	if _, err := guards.FromConfig(stage.When); err != nil {
		return fmt.Errorf("%w: when: %v", ErrInvalidStage, err)
	}

	for i, hook := range stage.Pre {
		if err := validateStageHook(hook); err != nil {
			return fmt.Errorf("pre[%d]: %w", i, err)
		}
	}
	for i, hook := range stage.Post {
		if err := validateStageHook(hook); err != nil {
			return fmt.Errorf("post[%d]: %w", i, err)
		}
	}
	return nil
}

// stage hooks run inside the stage loop, before a summary or final status exists
func validateStageHook(hook types.HookConfig) error {
	if k := hook.Kind(); k == "summary" || k == "notify" {
		return fmt.Errorf("%w: %s is only allowed in pipeline post hooks", ErrInvalidHook, k)
	}
	return validateHook(hook)
}

func validateHook(hook types.HookConfig) error {
	switch hook.Kind() {
	case "":
		return fmt.Errorf("%w: exactly one of run, archive, summary or notify is required", ErrInvalidHook)
	case "archive":
		if len(hook.Archive.Paths) == 0 {
			return fmt.Errorf("%w: archive needs at least one path", ErrInvalidHook)
		}
	}
	return nil
}

func isBuiltin(name string) bool {
	for _, b := range BuiltinActions {
		if b == name {
			return true
		}
	}
	return false
}
