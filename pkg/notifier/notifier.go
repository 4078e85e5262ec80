// Package notifier sends desktop notifications for finished builds
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/poltergeist/conductor/pkg/logger"
	"github.com/poltergeist/conductor/pkg/types"
)

// Sender delivers one notification
type Sender func(title, message string) error

// BuildNotifier handles build notifications
type BuildNotifier struct {
	enabled bool
	sound   bool
	send    Sender
	logger  logger.Logger
}

// Config represents notification configuration
type Config struct {
	Enabled bool
	// Sound beeps on failure
	Sound bool
}

// Option configures a BuildNotifier
type Option func(*BuildNotifier)

// WithSender replaces the desktop notification backend
func WithSender(s Sender) Option {
	return func(n *BuildNotifier) {
		n.send = s
	}
}

// New creates a new build notifier
func New(config Config, log logger.Logger, opts ...Option) *BuildNotifier {
	n := &BuildNotifier{
		enabled: config.Enabled,
		sound:   config.Sound,
		send:    desktopNotify,
		logger:  logger.OrNop(log),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether notifications are sent
func (n *BuildNotifier) Enabled() bool {
	return n.enabled
}

// NotifyBuildStart notifies that a build has started
func (n *BuildNotifier) NotifyBuildStart(job string, buildNumber int) error {
	if !n.enabled {
		return nil
	}
	return n.sendNotification("🚀 Conductor", fmt.Sprintf("%s #%d started", job, buildNumber))
}

// NotifyBuildResult notifies the final status of a build. title overrides
// the default status title when non-empty.
func (n *BuildNotifier) NotifyBuildResult(job string, buildNumber int, status types.Status, duration time.Duration, title string) error {
	if !n.enabled {
		return nil
	}

	if title == "" {
		title = StatusTitle(status)
	}
	message := fmt.Sprintf("%s #%d finished in %s", job, buildNumber, formatDuration(duration))

	if err := n.sendNotification(title, message); err != nil {
		return err
	}

	if n.sound && status == types.StatusFailure {
		if err := beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithError(err))
		}
	}
	return nil
}

// StatusTitle returns the default notification title for status
func StatusTitle(status types.Status) string {
	switch status {
	case types.StatusSuccess:
		return "✅ Build Succeeded"
	case types.StatusUnstable:
		return "⚠️ Build Unstable"
	default:
		return "❌ Build Failed"
	}
}

func (n *BuildNotifier) sendNotification(title, message string) error {
	if err := n.send(title, message); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithError(err))
		return fmt.Errorf("notification failed: %w", err)
	}
	n.logger.Debug("Notification sent", logger.WithField("title", title))
	return nil
}

func desktopNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
