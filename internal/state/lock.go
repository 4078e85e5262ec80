package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/poltergeist/conductor/pkg/logger"
	"github.com/poltergeist/conductor/pkg/process"
)

const (
	lockFile     = "lock.json"
	lockAttempts = 3
)

// ErrJobLocked is returned when another live process is running the job
var ErrJobLocked = errors.New("job is locked by another run")

// LockInfo is the content of a job lock file
type LockInfo struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// Lock takes the run lock for job. The lock file is created exclusively, so
// of two runs starting together only one gets it. A lock left behind by a
// dead process is taken over. The returned function releases the lock.
func (s *Store) Lock(job string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.jobDir(job)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}
	path := filepath.Join(dir, lockFile)

	data, err := json.Marshal(LockInfo{PID: os.Getpid(), AcquiredAt: time.Now()})
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < lockAttempts; attempt++ {
		err := createExclusive(path, data)
		if err == nil {
			return s.unlocker(path), nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		held, err := readLock(path)
		if err == nil && process.IsAlive(held.PID) {
			return nil, fmt.Errorf("%s (pid %d): %w", job, held.PID, ErrJobLocked)
		}
		if err := takeOver(path); err != nil {
			return nil, fmt.Errorf("%s: %w", job, err)
		}
		s.logger.Debug("Took over stale job lock", logger.WithField("job", job))
	}

	return nil, fmt.Errorf("%s: %w", job, ErrJobLocked)
}

func (s *Store) unlocker(path string) func() {
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if held, err := readLock(path); err == nil && held.PID == os.Getpid() {
			os.Remove(path)
		}
	}
}

// createExclusive writes data to a private file and links it into place. The
// link fails with fs.ErrExist when path is taken, and the lock is complete
// the moment it becomes visible.
func createExclusive(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), lockFile+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Link(tmp, path)
}

// takeOver moves a stale lock aside. A run that replaced the stale lock in
// the meantime gets its lock put back.
func takeOver(path string) error {
	f, err := os.CreateTemp(filepath.Dir(path), lockFile+".*.stale")
	if err != nil {
		return err
	}
	aside := f.Name()
	f.Close()
	defer os.Remove(aside)

	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to remove stale lock: %w", err)
	}

	if moved, err := readLock(aside); err == nil && process.IsAlive(moved.PID) {
		os.Link(aside, path)
		return fmt.Errorf("pid %d: %w", moved.PID, ErrJobLocked)
	}
	return nil
}

// IsLocked reports whether another live process holds the job lock
func (s *Store) IsLocked(job string) bool {
	held, err := readLock(filepath.Join(s.jobDir(job), lockFile))
	if err != nil {
		return false
	}
	return held.PID != os.Getpid() && process.IsAlive(held.PID)
}

func readLock(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
