package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/logger"
	"github.com/poltergeist/conductor/pkg/pipeline"
	"github.com/poltergeist/conductor/pkg/types"
)

type recorder struct {
	calls []string
}

func (r *recorder) ok(name string) *pipeline.Stage {
	return pipeline.NewStage(name, func(ctx context.Context, vars *env.Context) error {
		r.calls = append(r.calls, name)
		return nil
	})
}

func (r *recorder) fail(name, reason string) *pipeline.Stage {
	return pipeline.NewStage(name, func(ctx context.Context, vars *env.Context) error {
		r.calls = append(r.calls, name)
		return errors.New(reason)
	})
}

func TestExecute_ContinuableFailureIsUnstable(t *testing.T) {
	rec := &recorder{}
	stages := []*pipeline.Stage{
		rec.ok("A"),
		rec.ok("B"),
		rec.fail("C", "lint errors").AllowFailure(),
		rec.ok("D"),
	}

	result := pipeline.NewEngine().Execute(context.Background(), stages, env.New())

	want := []pipeline.Outcome{
		pipeline.Succeeded(),
		pipeline.Succeeded(),
		pipeline.Failed("lint errors"),
		pipeline.Succeeded(),
	}
	if got := result.Outcomes(); !reflect.DeepEqual(got, want) {
		t.Errorf("outcomes = %v, want %v", got, want)
	}
	if status := pipeline.DeriveStatus(result); status != types.StatusUnstable {
		t.Errorf("status = %s, want UNSTABLE", status)
	}
	if result.Halted() {
		t.Error("continuable failure must not halt the pipeline")
	}
}

func TestExecute_FatalFailureHalts(t *testing.T) {
	rec := &recorder{}
	stages := []*pipeline.Stage{
		rec.ok("A"),
		rec.fail("B", "compile error"),
		rec.ok("C"),
		rec.ok("D"),
	}

	result := pipeline.NewEngine().Execute(context.Background(), stages, env.New())

	if result.Len() != 2 {
		t.Fatalf("expected 2 recorded outcomes, got %d", result.Len())
	}
	if got := result.Names(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("recorded stages = %v", got)
	}
	if !reflect.DeepEqual(rec.calls, []string{"A", "B"}) {
		t.Errorf("actions invoked = %v, C and D must not run", rec.calls)
	}
	if status := result.Status(); status != types.StatusFailure {
		t.Errorf("status = %s, want FAILURE", status)
	}
	if !result.Halted() {
		t.Error("expected Halted to report true")
	}
}

func TestExecute_GuardFalseSkipsWithoutInvokingAction(t *testing.T) {
	rec := &recorder{}
	deploy := rec.ok("deploy").When(func(vars env.Snapshot) bool {
		return vars.Get(env.BranchName) == "main"
	})

	vars := env.New()
	vars.Set(env.BranchName, "feature/login")
	result := pipeline.NewEngine().Execute(context.Background(), []*pipeline.Stage{deploy}, vars)

	if len(rec.calls) != 0 {
		t.Errorf("action must not run when guard is false, calls = %v", rec.calls)
	}
	out := result.Outcomes()
	if len(out) != 1 || !out[0].IsSkipped() {
		t.Fatalf("expected single Skipped outcome, got %v", out)
	}
	if out[0].Reason != pipeline.SkipReason {
		t.Errorf("skip reason = %q", out[0].Reason)
	}
	if status := result.Status(); status != types.StatusSuccess {
		t.Errorf("skipped stages must not affect status, got %s", status)
	}
}

func TestExecute_GuardOnMissingKeyDoesNotPanic(t *testing.T) {
	rec := &recorder{}
	stage := rec.ok("deploy").When(func(vars env.Snapshot) bool {
		return vars.Get("DEPLOY_TARGET") == "production"
	})

	result := pipeline.NewEngine().Execute(context.Background(), []*pipeline.Stage{stage}, env.New())

	if !result.Outcomes()[0].IsSkipped() {
		t.Errorf("expected Skipped, got %v", result.Outcomes()[0])
	}
}

func TestExecute_PanickingGuardCountsAsFalse(t *testing.T) {
	rec := &recorder{}
	stage := rec.ok("deploy").When(func(vars env.Snapshot) bool {
		panic("boom")
	})

	result := pipeline.NewEngine().Execute(context.Background(), []*pipeline.Stage{stage}, env.New())

	if !result.Outcomes()[0].IsSkipped() {
		t.Errorf("expected Skipped, got %v", result.Outcomes()[0])
	}
	if len(rec.calls) != 0 {
		t.Error("action ran despite panicking guard")
	}
}

func TestExecute_ContextWritesVisibleToLaterStages(t *testing.T) {
	var seen string
	stages := []*pipeline.Stage{
		pipeline.NewStage("checkout", func(ctx context.Context, vars *env.Context) error {
			vars.Set(env.GitCommit, "abc1234")
			return nil
		}),
		pipeline.NewStage("report", func(ctx context.Context, vars *env.Context) error {
			seen = vars.Get(env.GitCommit)
			return nil
		}),
	}

	pipeline.NewEngine().Execute(context.Background(), stages, env.New())

	if seen != "abc1234" {
		t.Errorf("later stage saw %q", seen)
	}
}

func TestExecute_GuardSeesEarlierWrites(t *testing.T) {
	rec := &recorder{}
	stages := []*pipeline.Stage{
		pipeline.NewStage("profile", func(ctx context.Context, vars *env.Context) error {
			vars.Set(env.DeployProfile, "production")
			return nil
		}),
		rec.ok("deploy").When(func(vars env.Snapshot) bool {
			return vars.Get(env.DeployProfile) == "production"
		}),
	}

	result := pipeline.NewEngine().Execute(context.Background(), stages, env.New())

	if !result.Outcomes()[1].IsSucceeded() {
		t.Errorf("guard did not see earlier write: %v", result.Outcomes())
	}
}

func TestExecute_PanickingActionIsFailed(t *testing.T) {
	stage := pipeline.NewStage("build", func(ctx context.Context, vars *env.Context) error {
		panic("nil map")
	})

	result := pipeline.NewEngine().Execute(context.Background(), []*pipeline.Stage{stage}, env.New())

	out := result.Outcomes()[0]
	if !out.IsFailed() {
		t.Fatalf("expected Failed, got %v", out)
	}
	if !strings.Contains(out.Reason, "nil map") {
		t.Errorf("reason = %q", out.Reason)
	}
}

func TestExecute_NilActionIsFailed(t *testing.T) {
	stage := &pipeline.Stage{Name: "empty"}

	result := pipeline.NewEngine().Execute(context.Background(), []*pipeline.Stage{stage}, env.New())

	if got := result.Outcomes()[0]; got != pipeline.Failed(pipeline.ErrNilAction.Error()) {
		t.Errorf("outcome = %v", got)
	}
}

func TestExecute_EmptyAndNilContext(t *testing.T) {
	result := pipeline.NewEngine().Execute(context.Background(), nil, nil)

	if result.Len() != 0 {
		t.Errorf("expected no records, got %d", result.Len())
	}
	if result.Status() != types.StatusSuccess {
		t.Errorf("empty run status = %s", result.Status())
	}
}

func TestExecute_StageHooksWrapAction(t *testing.T) {
	var order []string
	stage := pipeline.NewStage("test", func(ctx context.Context, vars *env.Context) error {
		order = append(order, "action")
		return errors.New("2 tests failed")
	}).AllowFailure().
		Before("prepare", func(ctx context.Context, vars *env.Context, o pipeline.Outcome) error {
			order = append(order, "pre")
			return errors.New("ignored")
		}).
		After("collect", func(ctx context.Context, vars *env.Context, o pipeline.Outcome) error {
			order = append(order, "post:"+string(o.Kind))
			panic("also ignored")
		})

	result := pipeline.NewEngine().Execute(context.Background(), []*pipeline.Stage{stage}, env.New())

	want := []string{"pre", "action", "post:failed"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if got := result.Outcomes()[0].Reason; got != "2 tests failed" {
		t.Errorf("stage hook errors must not change the outcome, reason = %q", got)
	}
}

func TestExecute_LogsTransitions(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("debug", &buf)
	rec := &recorder{}
	stages := []*pipeline.Stage{
		rec.ok("install"),
		rec.ok("deploy").When(func(env.Snapshot) bool { return false }),
		rec.fail("test", "exit status 1"),
	}

	pipeline.NewEngine(pipeline.WithLogger(log)).Execute(context.Background(), stages, env.New())

	out := buf.String()
	for _, want := range []string{
		"[install] Stage started",
		"[install] Stage succeeded",
		"[deploy] Stage skipped",
		"[test] Stage failed",
		"Halting pipeline",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name    string
		records []pipeline.StageRecord
		want    types.Status
	}{
		{"empty", nil, types.StatusSuccess},
		{"all succeeded", []pipeline.StageRecord{
			{Name: "a", Outcome: pipeline.Succeeded()},
			{Name: "b", Outcome: pipeline.Succeeded()},
		}, types.StatusSuccess},
		{"only skipped", []pipeline.StageRecord{
			{Name: "a", Outcome: pipeline.Skipped()},
		}, types.StatusSuccess},
		{"continuable failure", []pipeline.StageRecord{
			{Name: "a", Outcome: pipeline.Succeeded()},
			{Name: "b", Outcome: pipeline.Failed("x"), ContinueOnError: true},
		}, types.StatusUnstable},
		{"fatal failure", []pipeline.StageRecord{
			{Name: "a", Outcome: pipeline.Failed("x")},
		}, types.StatusFailure},
		{"fatal wins over continuable", []pipeline.StageRecord{
			{Name: "a", Outcome: pipeline.Failed("x"), ContinueOnError: true},
			{Name: "b", Outcome: pipeline.Failed("y")},
		}, types.StatusFailure},
		{"skipped continuable stage", []pipeline.StageRecord{
			{Name: "a", Outcome: pipeline.Skipped(), ContinueOnError: true},
		}, types.StatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pipeline.DeriveStatus(&pipeline.Result{Records: tt.records})
			if got != tt.want {
				t.Errorf("DeriveStatus() = %s, want %s", got, tt.want)
			}
		})
	}

	if got := pipeline.DeriveStatus(nil); got != types.StatusSuccess {
		t.Errorf("DeriveStatus(nil) = %s", got)
	}
}

func TestResult_Counts(t *testing.T) {
	result := &pipeline.Result{Records: []pipeline.StageRecord{
		{Name: "a", Outcome: pipeline.Succeeded()},
		{Name: "b", Outcome: pipeline.Skipped()},
		{Name: "c", Outcome: pipeline.Failed("x"), ContinueOnError: true},
		{Name: "d", Outcome: pipeline.Succeeded()},
	}}

	want := pipeline.Counts{Succeeded: 2, Failed: 1, Skipped: 1}
	if got := result.Counts(); got != want {
		t.Errorf("Counts() = %+v, want %+v", got, want)
	}
	if rec, ok := result.Find("c"); !ok || rec.Outcome.Reason != "x" {
		t.Errorf("Find(c) = %+v, %v", rec, ok)
	}
	if _, ok := result.Find("missing"); ok {
		t.Error("Find reported a missing stage")
	}
}

func TestOutcome_String(t *testing.T) {
	if got := pipeline.Failed("exit status 2").String(); got != "failed(exit status 2)" {
		t.Errorf("String() = %q", got)
	}
	if got := pipeline.Skipped().String(); got != "skipped" {
		t.Errorf("String() = %q", got)
	}
}

func TestExecute_LaterWritesInvisibleToEarlierStages(t *testing.T) {
	var first, second string
	stages := []*pipeline.Stage{
		pipeline.NewStage("a", func(ctx context.Context, vars *env.Context) error {
			first = vars.GetOr("ARTIFACT", env.Unknown)
			return nil
		}),
		pipeline.NewStage("b", func(ctx context.Context, vars *env.Context) error {
			vars.Set("ARTIFACT", "app.tar.gz")
			second = vars.Get("ARTIFACT")
			return nil
		}),
	}

	vars := env.New()
	pipeline.New("web", stages...).Run(context.Background(), vars)

	if first != env.Unknown {
		t.Errorf("stage a saw a value written later: %q", first)
	}
	if second != "app.tar.gz" || vars.Get("ARTIFACT") != "app.tar.gz" {
		t.Errorf("stage b write lost: %q", second)
	}
}
