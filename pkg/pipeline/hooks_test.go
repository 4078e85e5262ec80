package pipeline_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/pipeline"
	"github.com/poltergeist/conductor/pkg/types"
)

func registerAll(p *pipeline.Pipeline, fired *[]string) {
	for _, key := range types.HookKeys {
		key := key
		p.Hooks.Register(key, string(key), func(ctx context.Context, ev pipeline.HookEvent) error {
			*fired = append(*fired, string(key))
			return nil
		})
	}
}

func TestRun_HookSelectionByStatus(t *testing.T) {
	tests := []struct {
		name   string
		stages func(r *recorder) []*pipeline.Stage
		status types.Status
		fired  []string
	}{
		{
			name:   "success",
			stages: func(r *recorder) []*pipeline.Stage { return []*pipeline.Stage{r.ok("build")} },
			status: types.StatusSuccess,
			fired:  []string{"success", "always", "cleanup"},
		},
		{
			name: "unstable",
			stages: func(r *recorder) []*pipeline.Stage {
				return []*pipeline.Stage{r.fail("lint", "warnings").AllowFailure(), r.ok("build")}
			},
			status: types.StatusUnstable,
			fired:  []string{"unstable", "always", "cleanup"},
		},
		{
			name: "failure",
			stages: func(r *recorder) []*pipeline.Stage {
				return []*pipeline.Stage{r.fail("build", "exit status 1"), r.ok("deploy")}
			},
			status: types.StatusFailure,
			fired:  []string{"failure", "always", "cleanup"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fired []string
			p := pipeline.New("web", tt.stages(&recorder{})...)
			registerAll(p, &fired)

			report := pipeline.NewEngine().Run(context.Background(), p, env.New())

			if report.Status != tt.status {
				t.Errorf("status = %s, want %s", report.Status, tt.status)
			}
			if !reflect.DeepEqual(fired, tt.fired) {
				t.Errorf("hooks fired = %v, want %v", fired, tt.fired)
			}
		})
	}
}

func TestRun_HookFailuresAreIsolated(t *testing.T) {
	var fired []string
	p := pipeline.New("web", (&recorder{}).ok("build"))
	p.Hooks.
		Register(types.HookSuccess, "broken", func(ctx context.Context, ev pipeline.HookEvent) error {
			return errors.New("disk full")
		}).
		Register(types.HookSuccess, "second", func(ctx context.Context, ev pipeline.HookEvent) error {
			fired = append(fired, "second")
			return nil
		}).
		Register(types.HookAlways, "panics", func(ctx context.Context, ev pipeline.HookEvent) error {
			panic("unexpected")
		}).
		Register(types.HookCleanup, "cleanup", func(ctx context.Context, ev pipeline.HookEvent) error {
			fired = append(fired, "cleanup")
			return nil
		})

	report := pipeline.NewEngine().Run(context.Background(), p, env.New())

	if report.Status != types.StatusSuccess {
		t.Errorf("hook failures must not change status, got %s", report.Status)
	}
	if !reflect.DeepEqual(fired, []string{"second", "cleanup"}) {
		t.Errorf("fired = %v", fired)
	}
	if len(report.HookErrors) != 2 {
		t.Fatalf("expected 2 hook errors, got %v", report.HookErrors)
	}
	if report.HookErrors[0].Key != types.HookSuccess || report.HookErrors[0].Name != "broken" {
		t.Errorf("first hook error = %+v", report.HookErrors[0])
	}
	if report.HookErrors[1].Key != types.HookAlways {
		t.Errorf("second hook error = %+v", report.HookErrors[1])
	}
}

func TestRun_HooksSeeFinalContext(t *testing.T) {
	var got pipeline.HookEvent
	p := pipeline.New("web",
		pipeline.NewStage("version", func(ctx context.Context, vars *env.Context) error {
			vars.Set("APP_VERSION", "1.4.0")
			return nil
		}),
	)
	p.Hooks.Register(types.HookAlways, "capture", func(ctx context.Context, ev pipeline.HookEvent) error {
		got = ev
		return nil
	})

	vars := env.New()
	report := pipeline.NewEngine().Run(context.Background(), p, vars)

	if got.Vars.Get("APP_VERSION") != "1.4.0" {
		t.Errorf("hook did not see stage write: %v", got.Vars.Map())
	}
	if got.Vars.Get(env.BuildStatus) != string(types.StatusSuccess) {
		t.Errorf("BUILD_STATUS = %q", got.Vars.Get(env.BuildStatus))
	}
	if vars.Get(env.BuildStatus) != string(types.StatusSuccess) {
		t.Error("BUILD_STATUS not written to context")
	}
	if got.Result == nil || got.Result.Len() != 1 {
		t.Errorf("hook event result = %+v", got.Result)
	}
	if got.Pipeline != "web" || report.Pipeline != "web" {
		t.Errorf("pipeline name = %q / %q", got.Pipeline, report.Pipeline)
	}
}

func TestRun_AlwaysAndCleanupFireOnceAfterHalt(t *testing.T) {
	counts := map[types.HookKey]int{}
	p := pipeline.New("web", (&recorder{}).fail("build", "boom"))
	for _, key := range types.HookKeys {
		key := key
		p.Hooks.Register(key, "count", func(ctx context.Context, ev pipeline.HookEvent) error {
			counts[key]++
			return nil
		})
	}

	pipeline.NewEngine().Run(context.Background(), p, nil)

	want := map[types.HookKey]int{types.HookFailure: 1, types.HookAlways: 1, types.HookCleanup: 1}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("hook counts = %v, want %v", counts, want)
	}
}

func TestHookRegistry_Len(t *testing.T) {
	var nilRegistry *pipeline.HookRegistry
	if nilRegistry.Len() != 0 || nilRegistry.Hooks(types.HookAlways) != nil {
		t.Error("nil registry must be empty")
	}

	reg := pipeline.NewHookRegistry().
		Register(types.HookAlways, "a", nil).
		Register(types.HookAlways, "b", nil).
		Register(types.HookCleanup, "c", nil)
	if reg.Len() != 3 {
		t.Errorf("Len() = %d", reg.Len())
	}
	if len(reg.Hooks(types.HookAlways)) != 2 {
		t.Errorf("always hooks = %v", reg.Hooks(types.HookAlways))
	}
}

func TestHookError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	herr := pipeline.HookError{Key: types.HookAlways, Name: "archive", Err: cause}

	if !errors.Is(herr, cause) {
		t.Error("HookError must unwrap to its cause")
	}
	if herr.Error() != `always hook "archive": permission denied` {
		t.Errorf("Error() = %q", herr.Error())
	}
}
