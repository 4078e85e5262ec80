package pipeline

import (
	"fmt"

	"github.com/poltergeist/conductor/pkg/types"
)

// SkipReason is recorded for stages whose guard evaluated false
const SkipReason = "guard evaluated false"

// Outcome is the tagged result of one stage: succeeded, failed with a
// reason, or skipped by its guard.
type Outcome struct {
	Kind   types.OutcomeKind `json:"kind"`
	Reason string            `json:"reason,omitempty"`
}

// Succeeded creates a successful outcome
func Succeeded() Outcome {
	return Outcome{Kind: types.OutcomeSucceeded}
}

// Failed creates a failed outcome with the given reason
func Failed(reason string) Outcome {
	return Outcome{Kind: types.OutcomeFailed, Reason: reason}
}

// Skipped creates the outcome of a stage whose guard was false
func Skipped() Outcome {
	return Outcome{Kind: types.OutcomeSkipped, Reason: SkipReason}
}

// IsSucceeded reports whether the stage succeeded
func (o Outcome) IsSucceeded() bool { return o.Kind == types.OutcomeSucceeded }

// IsFailed reports whether the stage failed
func (o Outcome) IsFailed() bool { return o.Kind == types.OutcomeFailed }

// IsSkipped reports whether the stage was skipped
func (o Outcome) IsSkipped() bool { return o.Kind == types.OutcomeSkipped }

func (o Outcome) String() string {
	if o.Kind == types.OutcomeFailed {
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
	}
	return string(o.Kind)
}
