package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/poltergeist/conductor/internal/state"
	"github.com/poltergeist/conductor/pkg/config"
	"github.com/poltergeist/conductor/pkg/deploy"
	"github.com/poltergeist/conductor/pkg/types"
	"github.com/poltergeist/conductor/pkg/validation"
)

// ErrInvalidDefinition is returned by `validate` when any error-level finding exists
var ErrInvalidDefinition = errors.New("pipeline definition is invalid")

func (c *CLI) newValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the pipeline definition",
		Long: `Check the pipeline definition against the JSON schema and the semantic rules
(unique stage names, known actions and hook keys, valid guards and timeouts),
reporting every finding instead of stopping at the first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runValidate(file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "pipeline definition (default: conductor.yaml)")
	return cmd
}

func (c *CLI) runValidate(file string) error {
	path := c.definitionPath(file)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read definition: %w", err)
	}

	result, err := validation.ValidateSchema(data)
	if err != nil {
		return err
	}

	if cfg, perr := config.NewManager().ParseConfig(data); perr == nil {
		result.Merge(validation.NewPipelineValidator(c.config.Workspace).Validate(cfg))
	}

	for _, finding := range result.Errors {
		line := finding.Error()
		switch finding.Level {
		case validation.ValidationLevelError:
			line = color.RedString(line)
		case validation.ValidationLevelWarning:
			line = color.YellowString(line)
		}
		c.printf("%s\n", line)
	}

	if !result.Valid {
		return fmt.Errorf("%w: %d error(s)", ErrInvalidDefinition, result.Count(validation.ValidationLevelError))
	}

	c.printf("%s %s is valid (%d warning(s))\n", color.GreenString("✓"), path, result.Count(validation.ValidationLevelWarning))
	return nil
}

func (c *CLI) newStagesCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List the stages of the pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := c.loadDefinition(file)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", path, err)
			}
			c.printStages(cfg)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "pipeline definition (default: conductor.yaml)")
	return cmd
}

func (c *CLI) printStages(cfg *types.PipelineConfig) {
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTAGE\tACTION\tWHEN\tON ERROR")
	fmt.Fprintln(w, "-\t-----\t------\t----\t--------")

	for i, s := range cfg.Stages {
		action := "uses: " + s.Uses
		if s.Run != "" {
			action = "run: " + truncate(s.Run, 40)
		}
		onError := "halt"
		if s.ContinueOnError {
			onError = "continue"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, s.Name, action, describeWhen(s.When), onError)
	}
	w.Flush()

	for _, key := range types.HookKeys {
		hooks := cfg.Post[string(key)]
		if len(hooks) == 0 {
			continue
		}
		names := make([]string, 0, len(hooks))
		for _, h := range hooks {
			names = append(names, h.DisplayName())
		}
		c.printf("post.%s: %s\n", key, strings.Join(names, ", "))
	}
}

func describeWhen(when *types.WhenConfig) string {
	if when.IsEmpty() {
		return "always"
	}
	var parts []string
	if when.FileExists != "" {
		parts = append(parts, "file "+when.FileExists)
	}
	if len(when.Branch) > 0 {
		parts = append(parts, "branch "+strings.Join(when.Branch, "|"))
	}
	if when.Expression != "" {
		parts = append(parts, when.Expression)
	}
	return strings.Join(parts, " && ")
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", "; ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func (c *CLI) newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [job]",
		Short: "Show recorded builds",
		Long:  `List recorded builds, newest first, for one job or for every job in the build store.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := ""
			if len(args) > 0 {
				job = args[0]
			}
			return c.runHistory(job, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum builds per job")
	return cmd
}

func (c *CLI) runHistory(job string, limit int) error {
	store := c.store()

	jobs := []string{job}
	if job == "" {
		var err error
		if jobs, err = store.Jobs(); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tBUILD\tSTATUS\tBRANCH\tCOMMIT\tSTARTED\tDURATION")
	fmt.Fprintln(w, "---\t-----\t------\t------\t------\t-------\t--------")

	found := 0
	for _, j := range jobs {
		summaries, err := store.ListSummaries(j)
		if err != nil {
			return err
		}
		for i, sum := range summaries {
			if limit > 0 && i >= limit {
				break
			}
			found++
			fmt.Fprintf(w, "%s\t#%d\t%s\t%s\t%s\t%s\t%s\n",
				sum.Job,
				sum.BuildNumber,
				colorStatus(sum.Status),
				sum.Branch,
				shortCommit(sum.Commit),
				sum.StartedAt.Local().Format("2006-01-02 15:04"),
				sum.Duration.Round(time.Millisecond))
		}
	}
	w.Flush()

	if found == 0 {
		c.printf("No builds recorded in %s\n", store.Dir())
	}
	return nil
}

func colorStatus(status types.Status) string {
	switch status {
	case types.StatusSuccess:
		return color.GreenString(string(status))
	case types.StatusUnstable:
		return color.YellowString(string(status))
	case types.StatusFailure:
		return color.RedString(string(status))
	default:
		return color.WhiteString(string(status))
	}
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}

func (c *CLI) newShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job> <build>",
		Short: "Show the summary of a recorded build",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(strings.TrimPrefix(args[1], "#"))
			if err != nil {
				return fmt.Errorf("invalid build number %q", args[1])
			}
			return c.runShow(args[0], n, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the JSON summary")
	return cmd
}

func (c *CLI) runShow(job string, n int, asJSON bool) error {
	store := c.store()

	sum, err := store.LoadSummary(job, n)
	if err != nil {
		return err
	}

	if asJSON {
		data, err := json.MarshalIndent(sum, "", "  ")
		if err != nil {
			return err
		}
		c.printf("%s\n", data)
		return nil
	}

	text, err := store.LoadSummaryText(job, n)
	if errors.Is(err, state.ErrSummaryNotFound) {
		text, err = sum.Text()
	}
	if err != nil {
		return err
	}
	c.printf("%s", text)
	return nil
}

func (c *CLI) newProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile <branch>",
		Short: "Show the deployment profile selected for a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := deploy.SelectProfile(args[0])
			c.printf("%s -> %s (target %s)\n%s\n", deploy.NormalizeBranch(args[0]), p, p.Target(), p.Message())
			return nil
		},
	}
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of Conductor",
		Run: func(cmd *cobra.Command, args []string) {
			c.printf("conductor v%s\n", c.config.Version)
		},
	}
}
