// Package orchestrator turns a pipeline definition into a running build: it
// allocates a build number, seeds the build context, compiles stages and
// hooks, runs the engine and persists the final summary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/poltergeist/conductor/internal/state"
	"github.com/poltergeist/conductor/pkg/actions"
	pcontext "github.com/poltergeist/conductor/pkg/context"
	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/interfaces"
	"github.com/poltergeist/conductor/pkg/logger"
	"github.com/poltergeist/conductor/pkg/pipeline"
	"github.com/poltergeist/conductor/pkg/types"
)

// ErrNoStore is returned by New when no summary store is provided
var ErrNoStore = errors.New("orchestrator requires a summary store")

// reserved keys are owned by the orchestrator and cannot be overridden by
// the definition's environment or --var
var reserved = map[string]bool{
	env.JobName:     true,
	env.BuildNumber: true,
	env.BuildID:     true,
	env.Workspace:   true,
	env.BuildStatus: true,
}

// RunOptions are the per-invocation inputs of a build
type RunOptions struct {
	// Job defaults to the definition name, then the workspace directory name
	Job string
	// Branch seeds BRANCH_NAME; git-info only detects it when empty
	Branch string
	Vars   map[string]string
}

// Build identifies one run of a job
type Build struct {
	Job     string
	Number  int
	ID      string
	Workdir string
}

// Outcome is everything a caller needs after a run
type Outcome struct {
	Build   Build
	Report  *pipeline.Report
	Summary *state.Summary
}

// Orchestrator runs pipeline definitions against a workspace
type Orchestrator struct {
	workspace string
	store     interfaces.SummaryStore
	notifier  interfaces.Notifier
	logger    logger.Logger
	git       actions.GitRunner
	now       func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger.OrNop(log)
	}
}

// WithGitRunner replaces the git command used by git-info stages
func WithGitRunner(git actions.GitRunner) Option {
	return func(o *Orchestrator) {
		o.git = git
	}
}

// WithClock overrides the time source (for tests)
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator for workspace
func New(workspace string, deps interfaces.Dependencies, opts ...Option) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, ErrNoStore
	}

	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}

	o := &Orchestrator{
		workspace: abs,
		store:     deps.Store,
		notifier:  deps.Notifier,
		logger:    logger.Nop(),
		git:       actions.ExecGit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Workspace returns the absolute workspace directory
func (o *Orchestrator) Workspace() string {
	return o.workspace
}

// JobName resolves the job a definition runs as
func (o *Orchestrator) JobName(cfg *types.PipelineConfig, job string) string {
	switch {
	case job != "":
		return job
	case cfg.Name != "":
		return cfg.Name
	default:
		return filepath.Base(o.workspace)
	}
}

// Run executes cfg as the next build of its job. The returned error covers
// setup and persistence problems only; a failing build is reported through
// Outcome.Report.Status.
func (o *Orchestrator) Run(ctx context.Context, cfg *types.PipelineConfig, opts RunOptions) (*Outcome, error) {
	job := o.JobName(cfg, opts.Job)

	release, err := o.store.Lock(job)
	if err != nil {
		return nil, fmt.Errorf("failed to lock job %s: %w", job, err)
	}
	defer release()

	// a definition that does not compile must not consume a build number
	if _, err := o.Compile(cfg, Build{Job: job, Workdir: o.workspace}); err != nil {
		return nil, err
	}

	n, err := o.store.NextBuildNumber(job)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate build number: %w", err)
	}

	build := Build{
		Job:     job,
		Number:  n,
		ID:      pcontext.GenerateRunID(),
		Workdir: o.workspace,
	}

	p, err := o.Compile(cfg, build)
	if err != nil {
		return nil, err
	}

	vars := o.Seed(cfg, build, opts)

	ctx = pcontext.WithRunID(ctx, build.ID)
	ctx = pcontext.WithJob(ctx, job)
	ctx = pcontext.WithStartTime(ctx, o.now())
	log := logger.WithContext(ctx, o.logger)

	log.Info("Build started",
		logger.WithField("build", n),
		logger.WithField("stages", len(p.Stages)),
		logger.WithField("hooks", p.Hooks.Len()))

	if o.notifier != nil {
		if err := o.notifier.NotifyBuildStart(job, n); err != nil {
			log.Warn("Failed to send start notification", logger.WithError(err))
		}
	}

	engine := pipeline.NewEngine(pipeline.WithLogger(o.logger), pipeline.WithClock(o.now))
	report := engine.Run(ctx, p, vars)

	sum := state.FromReport(report)
	if err := o.store.SaveSummary(sum, summaryText(cfg)); err != nil {
		return &Outcome{Build: build, Report: report, Summary: sum}, fmt.Errorf("failed to save build summary: %w", err)
	}

	switch report.Status {
	case types.StatusSuccess:
		log.Success("Build finished", logger.WithField("status", report.Status), logger.WithField("duration", report.Duration))
	case types.StatusUnstable:
		log.Warn("Build finished", logger.WithField("status", report.Status), logger.WithField("duration", report.Duration))
	default:
		log.Error("Build finished", logger.WithField("status", report.Status), logger.WithField("duration", report.Duration))
	}

	return &Outcome{Build: build, Report: report, Summary: sum}, nil
}

// Seed builds the initial context of a run: the definition's environment
// (expanded in key order), then --var overrides, then the reserved build
// keys. BRANCH_NAME comes from opts.Branch when set.
func (o *Orchestrator) Seed(cfg *types.PipelineConfig, build Build, opts RunOptions) *env.Context {
	vars := env.New()
	vars.Set(env.JobName, build.Job)
	vars.Set(env.BuildNumber, strconv.Itoa(build.Number))
	vars.Set(env.BuildID, build.ID)
	vars.Set(env.Workspace, o.workspace)

	for _, key := range sortedKeys(cfg.Environment) {
		if reserved[key] {
			o.logger.Warn("Ignoring reserved variable in environment", logger.WithField("key", key))
			continue
		}
		vars.Set(key, vars.Expand(cfg.Environment[key]))
	}

	for _, key := range sortedKeys(opts.Vars) {
		if reserved[key] {
			o.logger.Warn("Ignoring reserved variable override", logger.WithField("key", key))
			continue
		}
		vars.Set(key, opts.Vars[key])
	}

	if opts.Branch != "" {
		vars.Set(env.BranchName, opts.Branch)
	}
	return vars
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
