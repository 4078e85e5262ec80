package orchestrator

import (
	"github.com/poltergeist/conductor/internal/state"
	"github.com/poltergeist/conductor/pkg/interfaces"
	"github.com/poltergeist/conductor/pkg/logger"
	"github.com/poltergeist/conductor/pkg/notifier"
	"github.com/poltergeist/conductor/pkg/types"
)

// Compile-time interface checks
var (
	_ interfaces.SummaryStore = (*state.Store)(nil)
	_ interfaces.Notifier     = (*notifier.BuildNotifier)(nil)
)

// DependencyFactory creates the default collaborators of an orchestrator
type DependencyFactory struct {
	stateDir string
	logger   logger.Logger
	config   *types.PipelineConfig
}

// NewDependencyFactory creates a new dependency factory
func NewDependencyFactory(stateDir string, log logger.Logger, config *types.PipelineConfig) *DependencyFactory {
	return &DependencyFactory{
		stateDir: stateDir,
		logger:   logger.OrNop(log),
		config:   config,
	}
}

// CreateDefaults creates the file-backed store and, when the definition
// enables notifications, a desktop notifier
func (f *DependencyFactory) CreateDefaults() interfaces.Dependencies {
	deps := interfaces.Dependencies{
		Store: state.NewStore(f.stateDir, f.logger),
	}

	if f.config != nil && f.config.Notifications.IsEnabled() {
		deps.Notifier = notifier.New(notifier.Config{Enabled: true, Sound: true}, f.logger)
	}

	return deps
}

// CreateWithOverrides creates defaults and replaces any non-nil override
func (f *DependencyFactory) CreateWithOverrides(overrides interfaces.Dependencies) interfaces.Dependencies {
	deps := f.CreateDefaults()

	if overrides.Store != nil {
		deps.Store = overrides.Store
	}
	if overrides.Notifier != nil {
		deps.Notifier = overrides.Notifier
	}

	return deps
}
