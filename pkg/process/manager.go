// Package process ties a build run to the lifecycle of the conductor process
package process

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/poltergeist/conductor/pkg/logger"
)

// DefaultSignals cancel a running build
var DefaultSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Manager cancels the run context when the process is asked to stop and
// invokes shutdown handlers in reverse registration order
type Manager struct {
	logger           logger.Logger
	signals          []os.Signal
	shutdownHandlers []func()
	sigChan          chan os.Signal
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	mu               sync.Mutex
	running          bool
}

// Option configures a Manager
type Option func(*Manager)

// WithSignals replaces the signals that trigger shutdown
func WithSignals(sigs ...os.Signal) Option {
	return func(m *Manager) {
		m.signals = sigs
	}
}

// NewManager creates a new process manager
func NewManager(log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		logger:  logger.OrNop(log),
		signals: DefaultSignals,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterShutdownHandler adds a shutdown handler
func (m *Manager) RegisterShutdownHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownHandlers = append(m.shutdownHandlers, handler)
}

// Start returns a context that is canceled on the first shutdown signal or
// when parent is done. Calling Start on a running manager returns parent.
func (m *Manager) Start(parent context.Context) context.Context {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return parent
	}
	m.running = true

	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.sigChan = make(chan os.Signal, 1)
	signal.Notify(m.sigChan, m.signals...)
	sigChan := m.sigChan
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			m.logger.Warn("Received signal, stopping build", logger.WithField("signal", sig))
			cancel()
			m.handleShutdown()
		}
	}()

	return ctx
}

// Stop releases the signal handlers and cancels the run context
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	signal.Stop(m.sigChan)
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
}

// IsRunning checks if the process manager is running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) handleShutdown() {
	m.mu.Lock()
	handlers := make([]func(), len(m.shutdownHandlers))
	copy(handlers, m.shutdownHandlers)
	m.mu.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i]()
	}
}

// IsAlive reports whether a process with pid exists
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 probes without delivering anything
	return proc.Signal(syscall.Signal(0)) == nil
}
