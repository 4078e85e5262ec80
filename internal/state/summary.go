package state

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"
	"time"

	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/pipeline"
	"github.com/poltergeist/conductor/pkg/types"
)

// StageSummary is one stage line of a build summary
type StageSummary struct {
	Name            string            `json:"name"`
	Outcome         types.OutcomeKind `json:"outcome"`
	Reason          string            `json:"reason,omitempty"`
	ContinueOnError bool              `json:"continueOnError,omitempty"`
	StartedAt       time.Time         `json:"startedAt"`
	Duration        time.Duration     `json:"duration"`
}

// HookFailure is a post-execution hook that failed
type HookFailure struct {
	Key   types.HookKey `json:"key"`
	Name  string        `json:"name"`
	Error string        `json:"error"`
}

// Summary is the durable record of one build
type Summary struct {
	Job         string            `json:"job"`
	BuildNumber int               `json:"buildNumber"`
	BuildID     string            `json:"buildId,omitempty"`
	Pipeline    string            `json:"pipeline"`
	Status      types.Status      `json:"status"`
	Branch      string            `json:"branch"`
	Commit      string            `json:"commit"`
	Profile     string            `json:"profile,omitempty"`
	StartedAt   time.Time         `json:"startedAt"`
	Duration    time.Duration     `json:"duration"`
	Counts      pipeline.Counts   `json:"counts"`
	Halted      bool              `json:"halted"`
	Stages      []StageSummary    `json:"stages"`
	HookErrors  []HookFailure     `json:"hookErrors,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// FromEvent builds a summary from what a post-execution hook sees. Job and
// build number come from JOB_NAME and BUILD_NUMBER.
func FromEvent(ev pipeline.HookEvent) *Summary {
	vars := ev.Vars
	n, _ := strconv.Atoi(vars.Get(env.BuildNumber))

	s := &Summary{
		Job:         vars.GetOr(env.JobName, env.Unknown),
		BuildNumber: n,
		BuildID:     vars.Get(env.BuildID),
		Pipeline:    ev.Pipeline,
		Status:      ev.Status,
		Branch:      vars.GetOr(env.BranchName, env.Unknown),
		Commit:      vars.GetOr(env.GitCommit, env.Unknown),
		Profile:     vars.Get(env.DeployProfile),
		StartedAt:   ev.StartedAt,
		Duration:    ev.Duration,
		Variables:   vars.Map(),
	}

	if ev.Result != nil {
		s.Counts = ev.Result.Counts()
		s.Halted = ev.Result.Halted()
		for _, rec := range ev.Result.Records {
			s.Stages = append(s.Stages, StageSummary{
				Name:            rec.Name,
				Outcome:         rec.Outcome.Kind,
				Reason:          rec.Outcome.Reason,
				ContinueOnError: rec.ContinueOnError,
				StartedAt:       rec.StartedAt,
				Duration:        rec.Duration,
			})
		}
	}
	return s
}

// FromReport builds the final summary of a finished run, hook failures included
func FromReport(r *pipeline.Report) *Summary {
	s := FromEvent(pipeline.HookEvent{
		Pipeline:  r.Pipeline,
		Status:    r.Status,
		Vars:      r.Vars,
		Result:    r.Result,
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
	})
	for _, herr := range r.HookErrors {
		msg := ""
		if herr.Err != nil {
			msg = herr.Err.Error()
		}
		s.HookErrors = append(s.HookErrors, HookFailure{Key: herr.Key, Name: herr.Name, Error: msg})
	}
	return s
}

var textTemplate = template.Must(template.New("summary").Parse(
	`Build {{.Job}} #{{.BuildNumber}}: {{.Status}}
Pipeline: {{.Pipeline}}
Branch:   {{.Branch}}
Commit:   {{.Commit}}
{{- if .Profile}}
Profile:  {{.Profile}}
{{- end}}
Started:  {{.StartedAt.Format "2006-01-02 15:04:05"}}
Duration: {{.Duration}}

Stages ({{.Counts.Succeeded}} succeeded, {{.Counts.Failed}} failed, {{.Counts.Skipped}} skipped):
{{range .Stages}}  {{printf "%-9s" .Outcome}} {{.Name}}{{if .Reason}} ({{.Reason}}){{end}}{{if .ContinueOnError}} [continue-on-error]{{end}}
{{end}}
{{- if .Halted}}
Pipeline halted after a fatal stage failure.
{{end}}
{{- if .HookErrors}}
Hook failures:
{{range .HookErrors}}  {{.Key}}/{{.Name}}: {{.Error}}
{{end}}
{{- end}}`))

// Text renders the human-readable summary
func (s *Summary) Text() (string, error) {
	var buf bytes.Buffer
	if err := textTemplate.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("failed to render summary: %w", err)
	}
	return buf.String(), nil
}
