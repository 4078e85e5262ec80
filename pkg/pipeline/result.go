package pipeline

import (
	"time"

	"github.com/poltergeist/conductor/pkg/types"
)

// StageRecord is the recorded outcome of one stage
type StageRecord struct {
	Name            string        `json:"name"`
	Outcome         Outcome       `json:"outcome"`
	ContinueOnError bool          `json:"continueOnError"`
	StartedAt       time.Time     `json:"startedAt"`
	Duration        time.Duration `json:"duration"`
}

// Fatal reports whether this record halted the pipeline
func (r StageRecord) Fatal() bool {
	return r.Outcome.IsFailed() && !r.ContinueOnError
}

// Result is the ordered list of stage records of one run
type Result struct {
	Records []StageRecord `json:"stages"`
}

// Counts tallies outcomes by kind
type Counts struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (r *Result) add(rec StageRecord) {
	r.Records = append(r.Records, rec)
}

// Len returns the number of recorded stages
func (r *Result) Len() int {
	return len(r.Records)
}

// Outcomes returns the outcomes in execution order
func (r *Result) Outcomes() []Outcome {
	out := make([]Outcome, 0, len(r.Records))
	for _, rec := range r.Records {
		out = append(out, rec.Outcome)
	}
	return out
}

// Names returns the recorded stage names in execution order
func (r *Result) Names() []string {
	out := make([]string, 0, len(r.Records))
	for _, rec := range r.Records {
		out = append(out, rec.Name)
	}
	return out
}

// Find returns the record for the named stage
func (r *Result) Find(name string) (StageRecord, bool) {
	for _, rec := range r.Records {
		if rec.Name == name {
			return rec, true
		}
	}
	return StageRecord{}, false
}

// Halted reports whether the run stopped on a fatal failure
func (r *Result) Halted() bool {
	n := len(r.Records)
	return n > 0 && r.Records[n-1].Fatal()
}

// Counts tallies the recorded outcomes
func (r *Result) Counts() Counts {
	var c Counts
	for _, rec := range r.Records {
		switch rec.Outcome.Kind {
		case types.OutcomeSucceeded:
			c.Succeeded++
		case types.OutcomeFailed:
			c.Failed++
		case types.OutcomeSkipped:
			c.Skipped++
		}
	}
	return c
}

// Status derives the overall status of the result
func (r *Result) Status() types.Status {
	return DeriveStatus(r)
}

// DeriveStatus returns FAILURE if any non-continuable stage failed, UNSTABLE
// if only continuable stages failed, and SUCCESS otherwise. Skipped stages
// never affect the status.
func DeriveStatus(r *Result) types.Status {
	if r == nil {
		return types.StatusSuccess
	}

	status := types.StatusSuccess
	for _, rec := range r.Records {
		if !rec.Outcome.IsFailed() {
			continue
		}
		if !rec.ContinueOnError {
			return types.StatusFailure
		}
		status = types.StatusUnstable
	}
	return status
}
