package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/poltergeist/conductor/internal/state"
	"github.com/poltergeist/conductor/pkg/actions"
	"github.com/poltergeist/conductor/pkg/artifacts"
	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/guards"
	"github.com/poltergeist/conductor/pkg/pipeline"
	"github.com/poltergeist/conductor/pkg/types"
)

// Compile translates a definition into an executable pipeline for build
func (o *Orchestrator) Compile(cfg *types.PipelineConfig, build Build) (*pipeline.Pipeline, error) {
	p := pipeline.New(o.JobName(cfg, build.Job))

	for _, sc := range cfg.Stages {
		stage, err := o.compileStage(sc, build)
		if err != nil {
			return nil, fmt.Errorf("stage '%s': %w", sc.Name, err)
		}
		p.Stages = append(p.Stages, stage)
	}

	for _, key := range types.HookKeys {
		for i, hc := range cfg.Post[string(key)] {
			fn, err := o.pipelineHook(hc, build)
			if err != nil {
				return nil, fmt.Errorf("post.%s[%d]: %w", key, i, err)
			}
			p.Hooks.Register(key, hc.DisplayName(), fn)
		}
	}

	return p, nil
}

func (o *Orchestrator) compileStage(sc types.StageConfig, build Build) (*pipeline.Stage, error) {
	action, err := o.stageAction(sc, build)
	if err != nil {
		return nil, err
	}

	guard, err := guards.FromConfig(sc.When)
	if err != nil {
		return nil, fmt.Errorf("when: %w", err)
	}

	stage := &pipeline.Stage{
		Name:            sc.Name,
		Action:          action,
		Guard:           guard,
		ContinueOnError: sc.ContinueOnError,
	}

	for i, hc := range sc.Pre {
		fn, err := o.stageHook(sc.Name, hc, build)
		if err != nil {
			return nil, fmt.Errorf("pre[%d]: %w", i, err)
		}
		stage.Before(hc.DisplayName(), fn)
	}
	for i, hc := range sc.Post {
		fn, err := o.stageHook(sc.Name, hc, build)
		if err != nil {
			return nil, fmt.Errorf("post[%d]: %w", i, err)
		}
		stage.After(hc.DisplayName(), fn)
	}

	return stage, nil
}

func (o *Orchestrator) stageAction(sc types.StageConfig, build Build) (pipeline.Action, error) {
	log := o.logger.WithStage(sc.Name)

	if sc.Run != "" {
		timeout, err := sc.GetTimeout()
		if err != nil {
			return nil, err
		}
		return &actions.Shell{
			Stage:       sc.Name,
			Command:     sc.Run,
			Dir:         sc.Dir,
			Environment: sc.Environment,
			Timeout:     timeout,
			Capture:     sc.Capture,
			LogDir:      o.store.LogDir(build.Job, build.Number),
			Logger:      log,
		}, nil
	}

	switch sc.Uses {
	case types.ActionGitInfo:
		return &actions.GitInfo{Git: o.git, Logger: log}, nil
	case types.ActionDeploySimulate:
		return &actions.DeploySimulate{Logger: log}, nil
	case types.ActionBuildInfo:
		return &actions.BuildInfo{OutputDir: sc.Dir, Logger: log, Clock: o.now}, nil
	case "":
		return nil, errors.New("one of run or uses is required")
	default:
		return nil, fmt.Errorf("unknown action %q", sc.Uses)
	}
}

// stageHook builds a stage-local hook. Only run and archive hooks make sense
// before a build has a final status.
func (o *Orchestrator) stageHook(stage string, hc types.HookConfig, build Build) (pipeline.StageHookFunc, error) {
	switch hc.Kind() {
	case "run":
		name := stage + "-" + hc.DisplayName()
		return func(ctx context.Context, vars *env.Context, outcome pipeline.Outcome) error {
			return o.runHook(ctx, name, hc.Run, vars.Snapshot(), build)
		}, nil
	case "archive":
		return func(ctx context.Context, vars *env.Context, outcome pipeline.Outcome) error {
			return o.archive(ctx, hc.Archive, build)
		}, nil
	case "":
		return nil, errors.New("exactly one of run, archive, summary or notify is required")
	default:
		return nil, fmt.Errorf("%s hooks are only allowed in pipeline post hooks", hc.Kind())
	}
}

func (o *Orchestrator) pipelineHook(hc types.HookConfig, build Build) (pipeline.HookFunc, error) {
	switch hc.Kind() {
	case "run":
		name := "post-" + hc.DisplayName()
		return func(ctx context.Context, ev pipeline.HookEvent) error {
			return o.runHook(ctx, name, hc.Run, ev.Vars, build)
		}, nil
	case "archive":
		return func(ctx context.Context, ev pipeline.HookEvent) error {
			return o.archive(ctx, hc.Archive, build)
		}, nil
	case "summary":
		withText := hc.Summary.Text == nil || *hc.Summary.Text
		return func(ctx context.Context, ev pipeline.HookEvent) error {
			return o.store.SaveSummary(state.FromEvent(ev), withText)
		}, nil
	case "notify":
		title := hc.Notify.Title
		return func(ctx context.Context, ev pipeline.HookEvent) error {
			if o.notifier == nil {
				o.logger.Debug("Notifications disabled, skipping notify hook")
				return nil
			}
			return o.notifier.NotifyBuildResult(build.Job, build.Number, ev.Status, ev.Duration, ev.Vars.Expand(title))
		}, nil
	default:
		return nil, errors.New("exactly one of run, archive, summary or notify is required")
	}
}

// runHook executes a shell command against a private copy of the context, so
// hooks never write back into the build. Variables reach the command through
// its environment only; the shell expands them like it does for stages.
func (o *Orchestrator) runHook(ctx context.Context, name, command string, snap env.Snapshot, build Build) error {
	sh := &actions.Shell{
		Stage:   name,
		Command: command,
		LogDir:  o.store.LogDir(build.Job, build.Number),
		Logger:  o.logger.WithStage(name),
	}
	return sh.Run(ctx, env.FromMap(snap.Map()))
}

// summaryText reports whether builds of cfg keep a summary.txt. It follows
// the summary hooks; a definition without any keeps the text summary.
func summaryText(cfg *types.PipelineConfig) bool {
	declared := false
	for _, hooks := range cfg.Post {
		for _, hc := range hooks {
			if hc.Summary == nil {
				continue
			}
			if hc.Summary.Text == nil || *hc.Summary.Text {
				return true
			}
			declared = true
		}
	}
	return !declared
}

func (o *Orchestrator) archive(ctx context.Context, ac *types.ArchiveConfig, build Build) error {
	dest := o.store.ArtifactDir(build.Job, build.Number)
	if ac.Dest != "" {
		dest = ac.Dest
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(o.workspace, dest)
		}
	}

	archiver := &artifacts.Archiver{
		Workspace: o.workspace,
		Dest:      dest,
		Logger:    o.logger,
	}
	if _, err := archiver.Archive(ctx, ac.Paths); err != nil {
		return fmt.Errorf("archive %s: %w", strings.Join(ac.Paths, ", "), err)
	}
	return nil
}
