// Package pipeline provides the sequential stage execution engine: guarded
// stages with per-stage error policy, status aggregation, and post-execution
// hooks keyed by the final status.
package pipeline

import (
	"context"
	"time"

	pcontext "github.com/poltergeist/conductor/pkg/context"
	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/logger"
	"github.com/poltergeist/conductor/pkg/types"
)

// Pipeline is an ordered list of stages plus post-execution hooks
type Pipeline struct {
	Name   string
	Stages []*Stage
	Hooks  *HookRegistry
}

// New creates a pipeline from the given stages
func New(name string, stages ...*Stage) *Pipeline {
	return &Pipeline{
		Name:   name,
		Stages: stages,
		Hooks:  NewHookRegistry(),
	}
}

// Report is the complete outcome of a pipeline run
type Report struct {
	Pipeline   string
	Result     *Result
	Status     types.Status
	HookErrors []HookError
	Vars       env.Snapshot
	StartedAt  time.Time
	Duration   time.Duration
}

// Engine runs stages strictly in declaration order against a shared context
type Engine struct {
	logger logger.Logger
	hooks  *HookRunner
	now    func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.OrNop(log)
	}
}

// WithClock overrides the time source (for tests)
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger: logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.hooks = NewHookRunner(e.logger)
	return e
}

// Execute runs stages in order and returns every recorded outcome. A guard
// that evaluates false records Skipped. A failed stage that is not
// continue-on-error halts the loop; nothing after it is recorded. Execute
// never panics and always returns a Result.
func (e *Engine) Execute(ctx context.Context, stages []*Stage, vars *env.Context) *Result {
	if vars == nil {
		vars = env.New()
	}
	result := &Result{}

	for _, stage := range stages {
		if stage == nil {
			continue
		}
		log := e.logger.WithStage(stage.Name)
		stageCtx := pcontext.WithStage(ctx, stage.Name)
		started := e.now()

		if !stage.EvaluateGuard(vars.Snapshot()) {
			log.Info("Stage skipped", logger.WithField("reason", SkipReason))
			result.add(StageRecord{
				Name:            stage.Name,
				Outcome:         Skipped(),
				ContinueOnError: stage.ContinueOnError,
				StartedAt:       started,
			})
			continue
		}

		log.Info("Stage started")

		for _, hook := range stage.Pre {
			if err := runStageHook(stageCtx, hook, vars, Outcome{}); err != nil {
				log.Warn("Pre hook failed", logger.WithField("hook", hook.Name), logger.WithError(err))
			}
		}

		outcome := stage.Run(stageCtx, vars)

		for _, hook := range stage.Post {
			if err := runStageHook(stageCtx, hook, vars, outcome); err != nil {
				log.Warn("Post hook failed", logger.WithField("hook", hook.Name), logger.WithError(err))
			}
		}

		rec := StageRecord{
			Name:            stage.Name,
			Outcome:         outcome,
			ContinueOnError: stage.ContinueOnError,
			StartedAt:       started,
			Duration:        e.now().Sub(started),
		}
		result.add(rec)

		switch {
		case outcome.IsSucceeded():
			log.Success("Stage succeeded", logger.WithField("duration", rec.Duration))
		case rec.Fatal():
			log.Error("Stage failed",
				logger.WithField("reason", outcome.Reason),
				logger.WithField("continue_on_error", false))
		default:
			log.Warn("Stage failed",
				logger.WithField("reason", outcome.Reason),
				logger.WithField("continue_on_error", true))
		}

		if rec.Fatal() {
			e.logger.Error("Halting pipeline after fatal stage failure",
				logger.WithField("stage", stage.Name))
			break
		}
	}

	return result
}

// Run executes the pipeline's stages, derives the status, records it in the
// context as BUILD_STATUS, and fires the post-execution hooks.
func (e *Engine) Run(ctx context.Context, p *Pipeline, vars *env.Context) *Report {
	if vars == nil {
		vars = env.New()
	}
	started := e.now()

	result := e.Execute(ctx, p.Stages, vars)
	status := DeriveStatus(result)
	vars.Set(env.BuildStatus, string(status))

	snap := vars.Snapshot()
	ev := HookEvent{
		Pipeline:  p.Name,
		Status:    status,
		Vars:      snap,
		Result:    result,
		StartedAt: started,
		Duration:  e.now().Sub(started),
	}

	e.logger.Info("Stage loop finished",
		logger.WithField("status", status),
		logger.WithField("recorded", result.Len()),
		logger.WithField("declared", len(p.Stages)))

	hookErrors := e.hooks.Run(ctx, p.Hooks, ev)

	return &Report{
		Pipeline:   p.Name,
		Result:     result,
		Status:     status,
		HookErrors: hookErrors,
		Vars:       snap,
		StartedAt:  started,
		Duration:   e.now().Sub(started),
	}
}

// Run executes the pipeline on a fresh engine configured by opts
func (p *Pipeline) Run(ctx context.Context, vars *env.Context, opts ...Option) *Report {
	return NewEngine(opts...).Run(ctx, p, vars)
}
