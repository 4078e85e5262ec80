package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/logger"
	"github.com/poltergeist/conductor/pkg/types"
)

// HookEvent is what a post-execution hook sees: the derived status, a
// read-only snapshot of the context, and the finished stage records.
type HookEvent struct {
	Pipeline  string
	Status    types.Status
	Vars      env.Snapshot
	Result    *Result
	StartedAt time.Time
	Duration  time.Duration
}

// HookFunc is a post-execution hook action
type HookFunc func(ctx context.Context, ev HookEvent) error

// Hook is a named post-execution hook
type Hook struct {
	Name string
	Fn   HookFunc
}

// HookError records a hook that failed. It never changes the build status.
type HookError struct {
	Key  types.HookKey `json:"key"`
	Name string        `json:"name"`
	Err  error         `json:"-"`
}

func (e HookError) Error() string {
	return fmt.Sprintf("%s hook %q: %v", e.Key, e.Name, e.Err)
}

func (e HookError) Unwrap() error {
	return e.Err
}

// HookRegistry maps lifecycle keys to ordered hook lists
type HookRegistry struct {
	hooks map[types.HookKey][]Hook
}

// NewHookRegistry creates an empty registry
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[types.HookKey][]Hook)}
}

// Register appends a hook under key
func (r *HookRegistry) Register(key types.HookKey, name string, fn HookFunc) *HookRegistry {
	r.hooks[key] = append(r.hooks[key], Hook{Name: name, Fn: fn})
	return r
}

// Hooks returns the hooks registered under key, in registration order
func (r *HookRegistry) Hooks(key types.HookKey) []Hook {
	if r == nil {
		return nil
	}
	return r.hooks[key]
}

// Len returns the total number of registered hooks
func (r *HookRegistry) Len() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, hooks := range r.hooks {
		n += len(hooks)
	}
	return n
}

// HookRunner executes registered hooks after the stage loop
type HookRunner struct {
	logger logger.Logger
}

// NewHookRunner creates a hook runner
func NewHookRunner(log logger.Logger) *HookRunner {
	return &HookRunner{logger: logger.OrNop(log)}
}

// Run fires the hooks for the derived status (exactly one of success,
// failure or unstable), then always, then cleanup. Every hook runs even if
// an earlier one failed or panicked; failures are returned, not raised.
func (h *HookRunner) Run(ctx context.Context, reg *HookRegistry, ev HookEvent) []HookError {
	var failures []HookError

	for _, key := range []types.HookKey{ev.Status.HookKey(), types.HookAlways, types.HookCleanup} {
		for _, hook := range reg.Hooks(key) {
			if err := h.runHook(ctx, hook, ev); err != nil {
				herr := HookError{Key: key, Name: hook.Name, Err: err}
				h.logger.Warn("Hook failed",
					logger.WithField("hook", hook.Name),
					logger.WithField("key", key),
					logger.WithError(err))
				failures = append(failures, herr)
				continue
			}
			h.logger.Debug("Hook completed",
				logger.WithField("hook", hook.Name),
				logger.WithField("key", key))
		}
	}

	return failures
}

func (h *HookRunner) runHook(ctx context.Context, hook Hook, ev HookEvent) (err error) {
	if hook.Fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return hook.Fn(ctx, ev)
}
