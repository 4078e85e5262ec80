// Package state persists build numbers, build summaries and job locks
// under a state directory:
//
//	<state-dir>/<job>/next-build
//	<state-dir>/<job>/lock.json
//	<state-dir>/<job>/<n>/summary.json
//	<state-dir>/<job>/<n>/summary.txt
//	<state-dir>/<job>/<n>/artifacts/
//	<state-dir>/<job>/<n>/logs/
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/poltergeist/conductor/pkg/logger"
)

const (
	nextBuildFile   = "next-build"
	summaryJSONFile = "summary.json"
	summaryTextFile = "summary.txt"
	artifactsDir    = "artifacts"
	logsDir         = "logs"
)

// ErrSummaryNotFound is returned when a build has no stored summary
var ErrSummaryNotFound = errors.New("build summary not found")

// Store is the file-backed build store
type Store struct {
	dir    string
	logger logger.Logger
	mu     sync.Mutex
}

// NewStore creates a store rooted at stateDir
func NewStore(stateDir string, log logger.Logger) *Store {
	return &Store{
		dir:    stateDir,
		logger: logger.OrNop(log),
	}
}

// Dir returns the state directory
func (s *Store) Dir() string {
	return s.dir
}

// NextBuildNumber allocates the next build number for job, starting at 1
func (s *Store) NextBuildNumber(job string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobDir := s.jobDir(job)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create job directory: %w", err)
	}

	n := 1
	path := filepath.Join(jobDir, nextBuildFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		parsed, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		if perr != nil || parsed < 1 {
			return 0, fmt.Errorf("corrupt build counter %s: %q", path, data)
		}
		n = parsed
	case !os.IsNotExist(err):
		return 0, fmt.Errorf("failed to read build counter: %w", err)
	}

	// never hand out a number that already has a build directory
	for s.buildExists(job, n) {
		n++
	}

	if err := writeAtomic(path, []byte(strconv.Itoa(n+1)+"\n")); err != nil {
		return 0, err
	}
	return n, nil
}

// SaveSummary writes summary.json and, when withText is set, summary.txt
func (s *Store) SaveSummary(sum *Summary, withText bool) error {
	if sum.Job == "" || sum.BuildNumber < 1 {
		return fmt.Errorf("summary needs a job and build number, got %q #%d", sum.Job, sum.BuildNumber)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.buildDir(sum.Job, sum.BuildNumber)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}

	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, summaryJSONFile), data); err != nil {
		return err
	}

	if withText {
		text, err := sum.Text()
		if err != nil {
			return err
		}
		if err := writeAtomic(filepath.Join(dir, summaryTextFile), []byte(text)); err != nil {
			return err
		}
	}

	s.logger.Debug("Saved build summary",
		logger.WithField("job", sum.Job),
		logger.WithField("build", sum.BuildNumber))
	return nil
}

// LoadSummary reads the summary of build n of job
func (s *Store) LoadSummary(job string, n int) (*Summary, error) {
	data, err := os.ReadFile(filepath.Join(s.buildDir(job, n), summaryJSONFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s #%d: %w", job, n, ErrSummaryNotFound)
		}
		return nil, err
	}

	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return &sum, nil
}

// LoadSummaryText reads the rendered text summary of build n of job
func (s *Store) LoadSummaryText(job string, n int) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.buildDir(job, n), summaryTextFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s #%d: %w", job, n, ErrSummaryNotFound)
		}
		return "", err
	}
	return string(data), nil
}

// ListSummaries returns every stored summary of job, newest first. Unreadable
// summaries are logged and skipped.
func (s *Store) ListSummaries(job string) ([]*Summary, error) {
	entries, err := os.ReadDir(s.jobDir(job))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read job directory: %w", err)
	}

	var numbers []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil {
			numbers = append(numbers, n)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(numbers)))

	summaries := make([]*Summary, 0, len(numbers))
	for _, n := range numbers {
		sum, err := s.LoadSummary(job, n)
		if err != nil {
			s.logger.Warn("Failed to load build summary",
				logger.WithField("job", job),
				logger.WithField("build", n),
				logger.WithError(err))
			continue
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// Jobs lists the jobs that have state, sorted by name
func (s *Store) Jobs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var jobs []string
	for _, e := range entries {
		if e.IsDir() {
			jobs = append(jobs, e.Name())
		}
	}
	sort.Strings(jobs)
	return jobs, nil
}

// ArtifactDir returns the artifact directory of build n of job
func (s *Store) ArtifactDir(job string, n int) string {
	return filepath.Join(s.buildDir(job, n), artifactsDir)
}

// LogDir returns the directory receiving per-stage command logs of build n
func (s *Store) LogDir(job string, n int) string {
	return filepath.Join(s.buildDir(job, n), logsDir)
}

func (s *Store) jobDir(job string) string {
	return filepath.Join(s.dir, JobKey(job))
}

func (s *Store) buildDir(job string, n int) string {
	return filepath.Join(s.jobDir(job), strconv.Itoa(n))
}

func (s *Store) buildExists(job string, n int) bool {
	_, err := os.Stat(s.buildDir(job, n))
	return err == nil
}

// JobKey maps a job name to its directory name. Leading dots become dashes,
// so "." and ".." never resolve outside the state directory.
func JobKey(job string) string {
	job = strings.TrimSpace(job)
	if job == "" {
		return "default"
	}
	key := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ', '*', '?':
			return '-'
		}
		return r
	}, job)
	trimmed := strings.TrimLeft(key, ".")
	return strings.Repeat("-", len(key)-len(trimmed)) + trimmed
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
