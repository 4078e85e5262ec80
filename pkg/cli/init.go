package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/poltergeist/conductor/pkg/config"
	"github.com/poltergeist/conductor/pkg/types"
)

// projectCommands are the build and test commands for a detected project
type projectCommands struct {
	marker string
	kind   string
	build  string
	test   string
	// install runs first when set, guarded on the marker file
	install string
}

// checked in order; the first marker found wins
var projectKinds = []projectCommands{
	{marker: "package.json", kind: "node", install: "npm ci", build: "npm run build --if-present", test: "npm test"},
	{marker: "go.mod", kind: "go", build: "go build ./...", test: "go test ./..."},
	{marker: "Cargo.toml", kind: "rust", build: "cargo build", test: "cargo test"},
	{marker: "pyproject.toml", kind: "python", install: "pip install -e .", build: "python -m build", test: "pytest"},
	{marker: "Package.swift", kind: "swift", build: "swift build", test: "swift test"},
	{marker: "Makefile", kind: "make", build: "make", test: "make test"},
}

func (c *CLI) newInitCmd() *cobra.Command {
	var name string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter conductor.yaml",
		Long: `Create a starter pipeline definition in the workspace. The project type is
detected from marker files (package.json, go.mod, Cargo.toml, ...) to choose
build and test commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInit(name, force)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "pipeline name (default: workspace directory name)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing definition")

	return cmd
}

func (c *CLI) runInit(name string, force bool) error {
	path := filepath.Join(c.config.Workspace, config.DefaultFile)

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	if name == "" {
		abs, err := filepath.Abs(c.config.Workspace)
		if err != nil {
			return err
		}
		name = filepath.Base(abs)
	}

	cfg := config.NewManager().GetDefaultConfig(name)
	if project, ok := detectProject(c.config.Workspace); ok {
		applyProject(cfg, project)
		c.printInfo(fmt.Sprintf("Detected %s project", project.kind))
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write definition: %w", err)
	}

	c.printSuccess(fmt.Sprintf("Created %s", path))
	return nil
}

func detectProject(dir string) (projectCommands, bool) {
	for _, p := range projectKinds {
		if _, err := os.Stat(filepath.Join(dir, p.marker)); err == nil {
			return p, true
		}
	}
	return projectCommands{}, false
}

// applyProject swaps the placeholder build and test commands for the
// project's own, and adds a guarded install stage when it has one
func applyProject(cfg *types.PipelineConfig, p projectCommands) {
	var stages []types.StageConfig
	for _, s := range cfg.Stages {
		switch s.Name {
		case "build":
			if p.install != "" {
				stages = append(stages, types.StageConfig{
					Name: "install",
					Run:  p.install,
					When: &types.WhenConfig{FileExists: p.marker},
				})
			}
			s.Run = p.build
		case "test":
			s.Run = p.test
		}
		stages = append(stages, s)
	}
	cfg.Stages = stages
}
