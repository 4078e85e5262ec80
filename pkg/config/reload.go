package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/poltergeist/conductor/pkg/logger"
	"github.com/poltergeist/conductor/pkg/types"
)

// DefaultDebounce collapses editor save bursts into one reload
const DefaultDebounce = 500 * time.Millisecond

// ReloadEventType represents the type of reload event
type ReloadEventType string

const (
	ReloadEventTypeModified ReloadEventType = "modified"
	ReloadEventTypeRemoved  ReloadEventType = "removed"
	ReloadEventTypeError    ReloadEventType = "error"
)

// ReloadEvent is delivered after the definition file changed
type ReloadEvent struct {
	Path      string
	Timestamp time.Time
	Config    *types.PipelineConfig
	Err       error
	Type      ReloadEventType
}

// ReloadManager watches a definition file and emits a validated config on
// every settled change
type ReloadManager struct {
	configPath string
	logger     logger.Logger
	manager    *Manager
	debounce   time.Duration
	events     chan ReloadEvent

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	timer       *time.Timer
	lastModTime time.Time
	cancel      context.CancelFunc
}

// NewReloadManager creates a reload manager for configPath
func NewReloadManager(configPath string, log logger.Logger) *ReloadManager {
	return &ReloadManager{
		configPath: configPath,
		logger:     logger.OrNop(log),
		manager:    NewManager(),
		debounce:   DefaultDebounce,
		events:     make(chan ReloadEvent, 1),
	}
}

// SetDebouncePeriod sets the debounce period for file change events
func (rm *ReloadManager) SetDebouncePeriod(period time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.debounce = period
}

// Events delivers reload events. Only the latest undelivered event is kept.
func (rm *ReloadManager) Events() <-chan ReloadEvent {
	return rm.events
}

// Start begins watching until ctx is done or Stop is called
func (rm *ReloadManager) Start(ctx context.Context) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.watcher != nil {
		return fmt.Errorf("already watching %s", rm.configPath)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// editors replace files on save, so watch the directory
	if err := watcher.Add(filepath.Dir(rm.configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	if stat, err := os.Stat(rm.configPath); err == nil {
		rm.lastModTime = stat.ModTime()
	}

	ctx, rm.cancel = context.WithCancel(ctx)
	rm.watcher = watcher
	go rm.watchLoop(ctx, watcher)

	rm.logger.Debug("Started watching pipeline definition", logger.WithField("path", rm.configPath))
	return nil
}

// Stop stops watching
func (rm *ReloadManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.cancel != nil {
		rm.cancel()
		rm.cancel = nil
	}
	if rm.timer != nil {
		rm.timer.Stop()
		rm.timer = nil
	}
	if rm.watcher != nil {
		if err := rm.watcher.Close(); err != nil {
			rm.logger.Warn("Error closing file watcher", logger.WithError(err))
		}
		rm.watcher = nil
	}
}

// TriggerReload reloads immediately, bypassing the modification check
func (rm *ReloadManager) TriggerReload() {
	rm.reload(ReloadEventTypeModified, true)
}

func (rm *ReloadManager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() {
		if r := recover(); r != nil {
			rm.logger.Error("Configuration watcher panic recovered", logger.WithField("panic", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !rm.isConfigFileEvent(event.Name) {
				continue
			}
			rm.logger.Debug("Pipeline definition event", logger.WithField("event", event.String()))

			eventType := ReloadEventTypeModified
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				eventType = ReloadEventTypeRemoved
			}
			rm.schedule(eventType)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			rm.logger.Error("Configuration file watcher error", logger.WithError(err))
			rm.emit(ReloadEvent{Err: err, Type: ReloadEventTypeError})
		}
	}
}

func (rm *ReloadManager) isConfigFileEvent(eventPath string) bool {
	name := filepath.Base(rm.configPath)
	base := filepath.Base(eventPath)
	return base == name || (strings.HasPrefix(base, name) && strings.HasSuffix(base, ".tmp"))
}

func (rm *ReloadManager) schedule(eventType ReloadEventType) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.timer != nil {
		rm.timer.Stop()
	}
	rm.timer = time.AfterFunc(rm.debounce, func() {
		rm.reload(eventType, false)
	})
}

func (rm *ReloadManager) reload(eventType ReloadEventType, force bool) {
	stat, err := os.Stat(rm.configPath)
	if err != nil {
		if eventType == ReloadEventTypeRemoved || os.IsNotExist(err) {
			// a rename-over save emits Remove before the new file lands
			rm.emit(ReloadEvent{Err: fmt.Errorf("pipeline definition removed: %s", rm.configPath), Type: ReloadEventTypeRemoved})
			return
		}
		rm.emit(ReloadEvent{Err: err, Type: ReloadEventTypeError})
		return
	}

	rm.mu.Lock()
	if !force && !stat.ModTime().After(rm.lastModTime) {
		rm.mu.Unlock()
		rm.logger.Debug("Pipeline definition not modified, skipping reload")
		return
	}
	rm.lastModTime = stat.ModTime()
	rm.mu.Unlock()

	cfg, err := rm.manager.LoadConfig(rm.configPath)
	if err != nil {
		rm.logger.Error("Failed to reload pipeline definition", logger.WithError(err))
		rm.emit(ReloadEvent{Err: err, Type: ReloadEventTypeError})
		return
	}

	rm.logger.Info("Pipeline definition reloaded", logger.WithField("stages", len(cfg.Stages)))
	rm.emit(ReloadEvent{Config: cfg, Type: ReloadEventTypeModified})
}

func (rm *ReloadManager) emit(ev ReloadEvent) {
	ev.Path = rm.configPath
	ev.Timestamp = time.Now()

	// drop a stale undelivered event in favour of the newest one
	select {
	case <-rm.events:
	default:
	}
	select {
	case rm.events <- ev:
	default:
	}
}
