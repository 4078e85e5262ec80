package context_test

import (
	"context"
	"strings"
	"testing"
	"time"

	pcontext "github.com/poltergeist/conductor/pkg/context"
)

func TestRunID(t *testing.T) {
	ctx := context.Background()
	if got := pcontext.GetRunID(ctx); got != "unknown-run" {
		t.Errorf("expected unknown-run, got %s", got)
	}

	ctx = pcontext.WithRunID(ctx, "")
	if got := pcontext.GetRunID(ctx); !strings.HasPrefix(got, "run_") {
		t.Errorf("expected generated run ID, got %s", got)
	}

	ctx = pcontext.WithRunID(ctx, "run_fixed")
	if got := pcontext.GetRunID(ctx); got != "run_fixed" {
		t.Errorf("expected run_fixed, got %s", got)
	}
}

func TestJobAndStage(t *testing.T) {
	ctx := context.Background()
	if pcontext.GetJob(ctx) != "unknown-job" || pcontext.GetStage(ctx) != "unknown-stage" {
		t.Error("expected unknown defaults")
	}

	ctx = pcontext.WithJob(ctx, "web")
	ctx = pcontext.WithStage(ctx, "install")
	if got := pcontext.GetJob(ctx); got != "web" {
		t.Errorf("expected job web, got %s", got)
	}
	if got := pcontext.GetStage(ctx); got != "install" {
		t.Errorf("expected stage install, got %s", got)
	}
}

func TestDuration(t *testing.T) {
	if d := pcontext.GetDuration(context.Background()); d != 0 {
		t.Errorf("expected zero duration without start time, got %s", d)
	}

	ctx := pcontext.WithStartTime(context.Background(), time.Now().Add(-time.Second))
	if d := pcontext.GetDuration(ctx); d < time.Second {
		t.Errorf("expected at least 1s, got %s", d)
	}
}

func TestEnrichContext(t *testing.T) {
	ctx := pcontext.EnrichContext(context.Background())
	if pcontext.GetRunID(ctx) == "unknown-run" {
		t.Error("expected run ID to be generated")
	}
	if _, ok := pcontext.GetStartTime(ctx); !ok {
		t.Error("expected start time to be set")
	}

	fields := pcontext.TracingFields(ctx)
	for _, key := range []string{"run_id", "job", "stage", "duration_ms"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing tracing field %s", key)
		}
	}
}
