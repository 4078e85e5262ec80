// Package actions provides the built-in stage actions: shell commands, git
// metadata discovery, deployment simulation and build-info output.
package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/poltergeist/conductor/pkg/env"
	"github.com/poltergeist/conductor/pkg/logger"
)

// Shell runs a command through `sh -c` with the context exported as its
// environment
type Shell struct {
	Stage   string
	Command string
	// Dir is resolved against WORKSPACE when relative
	Dir         string
	Environment map[string]string
	Timeout     time.Duration
	// Capture names a context key that receives the trimmed stdout
	Capture string
	// LogDir receives <stage>.log with the full command output
	LogDir string
	Logger logger.Logger
}

// Run executes the command. A non-zero exit or timeout is returned as an
// error, which the engine records as a failed outcome.
func (s *Shell) Run(ctx context.Context, vars *env.Context) error {
	log := logger.OrNop(s.Logger)
	startTime := time.Now()

	if strings.TrimSpace(s.Command) == "" {
		return errors.New("empty command")
	}

	logFile, err := s.prepareLogFile()
	if err != nil {
		log.Warn("Failed to create log file", logger.WithError(err))
	}
	defer func() {
		if logFile != nil {
			logFile.Close()
		}
	}()

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", s.Command)
	cmd.Dir = s.workDir(vars)
	cmd.Env = s.environ(vars)
	// children holding the output pipes open must not outlive the timeout
	cmd.WaitDelay = time.Second

	var stdout, combined bytes.Buffer
	outWriters := []io.Writer{&stdout, &combined}
	errWriters := []io.Writer{&combined}
	if logFile != nil {
		outWriters = append(outWriters, logFile)
		errWriters = append(errWriters, logFile)
		writeLog(logFile, "\n=== %s started at %s ===\n$ %s\n",
			s.Stage, startTime.Format("2006-01-02 15:04:05"), s.Command)
	}
	cmd.Stdout = io.MultiWriter(outWriters...)
	cmd.Stderr = io.MultiWriter(errWriters...)

	log.Debug("Executing command", logger.WithField("command", s.Command), logger.WithField("dir", cmd.Dir))

	err = cmd.Run()
	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", s.Timeout)
		}
		writeLog(logFile, "\n=== FAILED after %s: %v ===\n", duration, err)
		log.Debug("Command output", logger.WithField("output", tail(combined.String(), 20)))
		return fmt.Errorf("command %q failed: %w", s.Command, err)
	}

	writeLog(logFile, "\n=== SUCCEEDED after %s ===\n", duration)

	if s.Capture != "" {
		vars.Set(s.Capture, strings.TrimSpace(stdout.String()))
	}
	if combined.Len() > 0 {
		log.Debug("Command output", logger.WithField("output", tail(combined.String(), 20)))
	}

	return nil
}

func (s *Shell) workDir(vars *env.Context) string {
	workspace := vars.Get(env.Workspace)
	if s.Dir == "" {
		return workspace
	}
	if filepath.IsAbs(s.Dir) || workspace == "" {
		return s.Dir
	}
	return filepath.Join(workspace, s.Dir)
}

// environ layers the process environment, the context, and the stage's own
// expanded variables, later entries winning
func (s *Shell) environ(vars *env.Context) []string {
	environ := append(os.Environ(), vars.Environ()...)
	keys := make([]string, 0, len(s.Environment))
	for k := range s.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		environ = append(environ, fmt.Sprintf("%s=%s", k, vars.Expand(s.Environment[k])))
	}
	return environ
}

func (s *Shell) prepareLogFile() (*os.File, error) {
	if s.LogDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(s.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := s.Stage
	if name == "" {
		name = "stage"
	}
	logPath := filepath.Join(s.LogDir, fmt.Sprintf("%s.log", sanitize(name)))
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func writeLog(f *os.File, format string, args ...interface{}) {
	if f == nil {
		return
	}
	fmt.Fprintf(f, format, args...)
}

// tail returns at most n trailing lines of s
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '-'
		}
		return r
	}, name)
}
