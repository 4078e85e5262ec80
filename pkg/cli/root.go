// Package cli provides the command-line interface for Conductor
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/poltergeist/conductor/internal/state"
	"github.com/poltergeist/conductor/pkg/config"
	"github.com/poltergeist/conductor/pkg/logger"
	"github.com/poltergeist/conductor/pkg/types"
)

// definition files tried in order when -f is not given
var definitionFiles = []string{config.DefaultFile, "conductor.yml", "conductor.json"}

// CLI encapsulates the command-line interface without global state
type CLI struct {
	config    *Config
	viper     *viper.Viper
	rootCmd   *cobra.Command
	logger    logger.Logger
	output    io.Writer
	errorOut  io.Writer
	logOutput io.Writer
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}

	c := &CLI{
		config:   cfg,
		viper:    viper.New(),
		logger:   logger.Nop(),
		output:   os.Stdout,
		errorOut: os.Stderr,
	}

	c.setupCommands()
	return c
}

// NewCLIWithOutput creates a CLI with custom output writers (for testing).
// Log lines go to errorOut without colors.
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	c := NewCLI(cfg)
	c.output = output
	c.errorOut = errorOut
	c.logOutput = errorOut
	c.rootCmd.SetOut(output)
	c.rootCmd.SetErr(errorOut)
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.Execute()
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "conductor",
		Short: "Staged build and deploy pipelines",
		Long: `Conductor runs a build pipeline defined in conductor.yaml: an ordered list
of stages sharing one build context, with per-stage guards and error policy,
a derived SUCCESS / UNSTABLE / FAILURE status, and post-execution hooks.`,

		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.initializeConfig,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("conductor v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newRunCmd())
	c.rootCmd.AddCommand(c.newValidateCmd())
	c.rootCmd.AddCommand(c.newStagesCmd())
	c.rootCmd.AddCommand(c.newHistoryCmd())
	c.rootCmd.AddCommand(c.newShowCmd())
	c.rootCmd.AddCommand(c.newProfileCmd())
	c.rootCmd.AddCommand(c.newInitCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	flags.StringVar(&c.config.ConfigFile, "config", "", "settings file (default: .conductor.yaml in the workspace)")
	flags.StringP("workspace", "w", c.config.Workspace, "workspace directory")
	flags.String("state-dir", c.config.StateDir, "build store directory (default: ~/.conductor/builds)")
	flags.String("log-level", c.config.LogLevel, "log level (debug, info, warn, error)")
	flags.String("log-file", c.config.LogFile, "also write logs to this file")

	for _, key := range []string{"workspace", "state-dir", "log-level", "log-file"} {
		c.viper.BindPFlag(key, flags.Lookup(key))
	}
}

func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	v := c.viper

	v.SetEnvPrefix("CONDUCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if c.config.ConfigFile != "" {
		v.SetConfigFile(c.config.ConfigFile)
	} else {
		v.AddConfigPath(v.GetString("workspace"))
		v.SetConfigName(".conductor")
		v.SetConfigType("yaml")
	}

	readErr := v.ReadInConfig()
	if readErr != nil && c.config.ConfigFile != "" {
		return fmt.Errorf("failed to read settings file: %w", readErr)
	}

	c.config.Workspace = v.GetString("workspace")
	c.config.StateDir = v.GetString("state-dir")
	c.config.LogLevel = v.GetString("log-level")
	c.config.LogFile = v.GetString("log-file")

	if c.config.StateDir == "" {
		c.config.StateDir = DefaultStateDir(c.config.Workspace)
	}

	if c.logOutput != nil {
		c.logger = logger.CreateLoggerWithOutput(c.config.LogLevel, c.logOutput)
	} else {
		c.logger = logger.CreateLogger(c.config.LogFile, c.config.LogLevel)
	}

	if readErr == nil {
		c.logger.Debug("Using settings file", logger.WithField("file", v.ConfigFileUsed()))
	}
	return nil
}

// Helper methods for structured output

func (c *CLI) printSuccess(message string) {
	c.logger.Success(message)
}

func (c *CLI) printInfo(message string) {
	c.logger.Info(message)
}

func (c *CLI) printWarning(message string) {
	c.logger.Warn(message)
}

func (c *CLI) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.output, format, args...)
}

// definitionPath resolves -f against the workspace, or finds the first
// existing default definition file
func (c *CLI) definitionPath(file string) string {
	if file != "" {
		if filepath.IsAbs(file) {
			return file
		}
		return filepath.Join(c.config.Workspace, file)
	}
	for _, name := range definitionFiles {
		path := filepath.Join(c.config.Workspace, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(c.config.Workspace, config.DefaultFile)
}

func (c *CLI) loadDefinition(file string) (*types.PipelineConfig, string, error) {
	path := c.definitionPath(file)
	cfg, err := config.NewManager().LoadConfig(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func (c *CLI) store() *state.Store {
	return state.NewStore(c.config.StateDir, c.logger)
}
