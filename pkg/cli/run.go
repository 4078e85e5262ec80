package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/poltergeist/conductor/pkg/config"
	"github.com/poltergeist/conductor/pkg/logger"
	"github.com/poltergeist/conductor/pkg/orchestrator"
	"github.com/poltergeist/conductor/pkg/process"
	"github.com/poltergeist/conductor/pkg/types"
)

// ErrBuildFailed is returned by `run` when the build status is FAILURE
var ErrBuildFailed = errors.New("build failed")

type runFlags struct {
	file   string
	job    string
	branch string
	vars   []string
	watch  bool
}

func (c *CLI) newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline",
		Long: `Run every stage of the pipeline definition in order, fire the post hooks for
the derived status, and record the build summary. The command fails when the
build status is FAILURE; UNSTABLE builds exit successfully.

With --watch the pipeline runs again every time the definition file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPipeline(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "pipeline definition (default: conductor.yaml)")
	cmd.Flags().StringVar(&flags.job, "job", "", "job name (default: the pipeline name)")
	cmd.Flags().StringVar(&flags.branch, "branch", "", "branch being built, sets BRANCH_NAME")
	cmd.Flags().StringArrayVar(&flags.vars, "var", nil, "extra build variable KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "re-run whenever the definition changes")

	return cmd
}

func (c *CLI) runPipeline(ctx context.Context, flags runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	vars, err := parseVars(flags.vars)
	if err != nil {
		return err
	}

	cfg, path, err := c.loadDefinition(flags.file)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	pm := process.NewManager(c.logger)
	ctx = pm.Start(ctx)
	defer pm.Stop()

	opts := orchestrator.RunOptions{Job: flags.job, Branch: flags.branch, Vars: vars}

	if !flags.watch {
		return c.runOnce(ctx, cfg, opts)
	}
	return c.watch(ctx, path, cfg, opts)
}

func (c *CLI) runOnce(ctx context.Context, cfg *types.PipelineConfig, opts orchestrator.RunOptions) error {
	deps := orchestrator.NewDependencyFactory(c.config.StateDir, c.logger, cfg).CreateDefaults()
	o, err := orchestrator.New(c.config.Workspace, deps, orchestrator.WithLogger(c.logger))
	if err != nil {
		return err
	}

	out, err := o.Run(ctx, cfg, opts)
	if out == nil {
		return err
	}
	if err != nil {
		c.printWarning(err.Error())
	}

	if text, terr := out.Summary.Text(); terr == nil {
		c.printf("\n%s", text)
	}

	if out.Report.Status == types.StatusFailure {
		return fmt.Errorf("%w: %s #%d", ErrBuildFailed, out.Build.Job, out.Build.Number)
	}
	return nil
}

func (c *CLI) watch(ctx context.Context, path string, cfg *types.PipelineConfig, opts orchestrator.RunOptions) error {
	rm := config.NewReloadManager(path, c.logger)
	if err := rm.Start(ctx); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	defer rm.Stop()

	c.printInfo(fmt.Sprintf("Watching %s for changes", path))

	build := func() {
		if err := c.runOnce(ctx, cfg, opts); err != nil && !errors.Is(err, ErrBuildFailed) {
			c.printWarning(err.Error())
		}
	}
	build()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-rm.Events():
			switch {
			case ev.Type == config.ReloadEventTypeRemoved:
				c.printWarning("Definition removed, waiting for it to come back")
				continue
			case ev.Err != nil:
				c.logger.Warn("Definition is invalid, skipping run", logger.WithError(ev.Err))
				continue
			}
			c.printInfo("Definition changed, running again")
			cfg = ev.Config
			build()
		}
	}
}

// parseVars turns KEY=VALUE pairs into a map
func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, expected KEY=VALUE", pair)
		}
		vars[key] = value
	}
	return vars, nil
}
