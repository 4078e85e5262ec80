package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/poltergeist/conductor/pkg/env"
)

// ErrNilAction is reported when a stage is run without an action
var ErrNilAction = errors.New("stage has no action")

// Action is the opaque unit of work a stage performs. It may read and write
// the shared context; writes are visible to every later stage. A non-nil
// error becomes a Failed outcome carrying the error text.
type Action interface {
	Run(ctx context.Context, vars *env.Context) error
}

// ActionFunc adapts a function to the Action interface
type ActionFunc func(ctx context.Context, vars *env.Context) error

// Run calls f(ctx, vars)
func (f ActionFunc) Run(ctx context.Context, vars *env.Context) error {
	return f(ctx, vars)
}

// Guard decides from a snapshot of the context whether a stage runs at all
type Guard func(vars env.Snapshot) bool

// StageHookFunc runs around a stage's action. Pre hooks receive a zero
// Outcome; post hooks receive the action's outcome.
type StageHookFunc func(ctx context.Context, vars *env.Context, outcome Outcome) error

// StageHook is a named stage-local hook
type StageHook struct {
	Name string
	Fn   StageHookFunc
}

// Stage is a named unit of pipeline work
type Stage struct {
	Name            string
	Action          Action
	Guard           Guard
	ContinueOnError bool
	Pre             []StageHook
	Post            []StageHook
}

// NewStage creates a stage running fn
func NewStage(name string, fn ActionFunc) *Stage {
	if fn == nil {
		return &Stage{Name: name}
	}
	return &Stage{Name: name, Action: fn}
}

// When sets the stage guard
func (s *Stage) When(guard Guard) *Stage {
	s.Guard = guard
	return s
}

// AllowFailure marks the stage continue-on-error
func (s *Stage) AllowFailure() *Stage {
	s.ContinueOnError = true
	return s
}

// Before appends a stage-local pre hook
func (s *Stage) Before(name string, fn StageHookFunc) *Stage {
	s.Pre = append(s.Pre, StageHook{Name: name, Fn: fn})
	return s
}

// After appends a stage-local post hook
func (s *Stage) After(name string, fn StageHookFunc) *Stage {
	s.Post = append(s.Post, StageHook{Name: name, Fn: fn})
	return s
}

// EvaluateGuard reports whether the stage should run. A stage without a
// guard always runs; a panicking guard counts as false.
func (s *Stage) EvaluateGuard(vars env.Snapshot) (run bool) {
	if s.Guard == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			run = false
		}
	}()
	return s.Guard(vars)
}

// Run invokes the action and converts its error or panic into an Outcome.
// It never panics.
func (s *Stage) Run(ctx context.Context, vars *env.Context) (outcome Outcome) {
	if s.Action == nil {
		return Failed(ErrNilAction.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = Failed(fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := s.Action.Run(ctx, vars); err != nil {
		return Failed(err.Error())
	}
	return Succeeded()
}

func runStageHook(ctx context.Context, hook StageHook, vars *env.Context, outcome Outcome) (err error) {
	if hook.Fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return hook.Fn(ctx, vars, outcome)
}
