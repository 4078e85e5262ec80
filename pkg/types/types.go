// Package types provides core types and pipeline definitions for Conductor
package types

import (
	"fmt"
	"time"
)

// Status represents the overall derived status of a pipeline run
type Status string

const (
	StatusSuccess  Status = "SUCCESS"
	StatusUnstable Status = "UNSTABLE"
	StatusFailure  Status = "FAILURE"
)

// Severity orders statuses so the worse of two can be chosen
func (s Status) Severity() int {
	switch s {
	case StatusFailure:
		return 2
	case StatusUnstable:
		return 1
	default:
		return 0
	}
}

// HookKey returns the lifecycle key whose hooks fire for this status
func (s Status) HookKey() HookKey {
	switch s {
	case StatusFailure:
		return HookFailure
	case StatusUnstable:
		return HookUnstable
	default:
		return HookSuccess
	}
}

// OutcomeKind tags the result of a single stage
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeSkipped   OutcomeKind = "skipped"
)

// HookKey identifies a post-execution lifecycle slot
type HookKey string

const (
	HookAlways   HookKey = "always"
	HookSuccess  HookKey = "success"
	HookFailure  HookKey = "failure"
	HookUnstable HookKey = "unstable"
	HookCleanup  HookKey = "cleanup"
)

// HookKeys lists every valid lifecycle key in execution-independent order
var HookKeys = []HookKey{HookAlways, HookSuccess, HookFailure, HookUnstable, HookCleanup}

// ParseHookKey validates a lifecycle key read from a definition file
func ParseHookKey(s string) (HookKey, error) {
	for _, k := range HookKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown hook key: %s", s)
}

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Built-in action names accepted by a stage's `uses` field
const (
	ActionGitInfo        = "git-info"
	ActionDeploySimulate = "deploy-simulate"
	ActionBuildInfo      = "build-info"
)

// WhenConfig gates a stage. All configured conditions must hold.
type WhenConfig struct {
	FileExists string   `json:"fileExists,omitempty" yaml:"fileExists,omitempty"`
	Branch     []string `json:"branch,omitempty" yaml:"branch,omitempty"`
	Expression string   `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// IsEmpty reports whether no condition is configured
func (w *WhenConfig) IsEmpty() bool {
	return w == nil || (w.FileExists == "" && len(w.Branch) == 0 && w.Expression == "")
}

// ArchiveConfig describes artifacts to copy into the build's artifact directory
type ArchiveConfig struct {
	Paths []string `json:"paths" yaml:"paths"`
	Dest  string   `json:"dest,omitempty" yaml:"dest,omitempty"`
}

// SummaryConfig writes the build summary to the build store
type SummaryConfig struct {
	Text *bool `json:"text,omitempty" yaml:"text,omitempty"`
}

// NotifyConfig sends a desktop notification with the final status
type NotifyConfig struct {
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

// HookConfig is a single hook entry. Exactly one field must be set.
type HookConfig struct {
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Run     string         `json:"run,omitempty" yaml:"run,omitempty"`
	Archive *ArchiveConfig `json:"archive,omitempty" yaml:"archive,omitempty"`
	Summary *SummaryConfig `json:"summary,omitempty" yaml:"summary,omitempty"`
	Notify  *NotifyConfig  `json:"notify,omitempty" yaml:"notify,omitempty"`
}

// Kind returns which hook variant is configured, or "" when none or several are
func (h HookConfig) Kind() string {
	kind := ""
	count := 0
	if h.Run != "" {
		kind, count = "run", count+1
	}
	if h.Archive != nil {
		kind, count = "archive", count+1
	}
	if h.Summary != nil {
		kind, count = "summary", count+1
	}
	if h.Notify != nil {
		kind, count = "notify", count+1
	}
	if count != 1 {
		return ""
	}
	return kind
}

// DisplayName returns the configured name or the hook kind
func (h HookConfig) DisplayName() string {
	if h.Name != "" {
		return h.Name
	}
	if k := h.Kind(); k != "" {
		return k
	}
	return "hook"
}

// StageConfig is one stage of a pipeline definition
type StageConfig struct {
	Name            string            `json:"name" yaml:"name"`
	Run             string            `json:"run,omitempty" yaml:"run,omitempty"`
	Uses            string            `json:"uses,omitempty" yaml:"uses,omitempty"`
	Dir             string            `json:"dir,omitempty" yaml:"dir,omitempty"`
	When            *WhenConfig       `json:"when,omitempty" yaml:"when,omitempty"`
	ContinueOnError bool              `json:"continueOnError,omitempty" yaml:"continueOnError,omitempty"`
	Timeout         string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Environment     map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	Capture         string            `json:"capture,omitempty" yaml:"capture,omitempty"`
	Pre             []HookConfig      `json:"pre,omitempty" yaml:"pre,omitempty"`
	Post            []HookConfig      `json:"post,omitempty" yaml:"post,omitempty"`
}

// GetTimeout parses the configured timeout. Zero means no timeout.
func (s StageConfig) GetTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s.Timeout, err)
	}
	return d, nil
}

// NotificationConfig represents notification preferences
type NotificationConfig struct {
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled defaults to false when unset
func (n *NotificationConfig) IsEnabled() bool {
	return n != nil && n.Enabled != nil && *n.Enabled
}

// PipelineConfig represents a pipeline definition file
type PipelineConfig struct {
	Version       string                  `json:"version" yaml:"version"`
	Name          string                  `json:"name" yaml:"name"`
	Environment   map[string]string       `json:"environment,omitempty" yaml:"environment,omitempty"`
	Stages        []StageConfig           `json:"stages" yaml:"stages"`
	Post          map[string][]HookConfig `json:"post,omitempty" yaml:"post,omitempty"`
	Notifications *NotificationConfig     `json:"notifications,omitempty" yaml:"notifications,omitempty"`
}

// StageNames returns the stage names in declaration order
func (c *PipelineConfig) StageNames() []string {
	names := make([]string, 0, len(c.Stages))
	for _, s := range c.Stages {
		names = append(names, s.Name)
	}
	return names
}
