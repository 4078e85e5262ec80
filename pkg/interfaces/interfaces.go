// Package interfaces provides abstractions for dependency injection and testability
package interfaces

//go:generate mockgen -source=interfaces.go -destination=../mocks/mocks.go -package=mocks

import (
	"time"

	"github.com/poltergeist/conductor/internal/state"
	"github.com/poltergeist/conductor/pkg/types"
)

// SummaryStore persists build numbers, locks and build summaries
type SummaryStore interface {
	NextBuildNumber(job string) (int, error)
	Lock(job string) (func(), error)
	SaveSummary(sum *state.Summary, withText bool) error
	ArtifactDir(job string, buildNumber int) string
	LogDir(job string, buildNumber int) string
}

// Notifier announces build start and final status
type Notifier interface {
	NotifyBuildStart(job string, buildNumber int) error
	NotifyBuildResult(job string, buildNumber int, status types.Status, duration time.Duration, title string) error
}

// Dependencies holds the collaborators of an orchestrator. Store is
// required; a nil Notifier disables notify hooks.
type Dependencies struct {
	Store    SummaryStore
	Notifier Notifier
}
