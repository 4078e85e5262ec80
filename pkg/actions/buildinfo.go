package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/logger"
)

// BuildInfoFile is the name of the file written by BuildInfo
const BuildInfoFile = "build-info.json"

// BuildMetadata is the content of build-info.json
type BuildMetadata struct {
	Job         string    `json:"job"`
	BuildNumber string    `json:"buildNumber"`
	BuildID     string    `json:"buildId"`
	Commit      string    `json:"commit"`
	Branch      string    `json:"branch"`
	Author      string    `json:"author"`
	Profile     string    `json:"profile,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// BuildInfo writes build-info.json into OutputDir (relative to WORKSPACE)
type BuildInfo struct {
	OutputDir string
	Logger    logger.Logger
	Clock     func() time.Time
}

// Run implements pipeline.Action
func (b *BuildInfo) Run(ctx context.Context, vars *env.Context) error {
	now := time.Now
	if b.Clock != nil {
		now = b.Clock
	}

	meta := BuildMetadata{
		Job:         vars.GetOr(env.JobName, env.Unknown),
		BuildNumber: vars.GetOr(env.BuildNumber, env.Unknown),
		BuildID:     vars.GetOr(env.BuildID, env.Unknown),
		Commit:      vars.GetOr(env.GitCommit, env.Unknown),
		Branch:      vars.GetOr(env.BranchName, env.Unknown),
		Author:      vars.GetOr(env.GitAuthor, env.Unknown),
		Profile:     vars.Get(env.DeployProfile),
		Timestamp:   now().UTC(),
	}

	dir := b.OutputDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(vars.Get(env.Workspace), dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal build info: %w", err)
	}

	path := filepath.Join(dir, BuildInfoFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write build info: %w", err)
	}

	logger.OrNop(b.Logger).Info("Wrote build info", logger.WithField("path", path))
	return nil
}
