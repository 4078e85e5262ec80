// Package artifacts collects workspace files matching archive patterns and
// copies them into a build's artifact directory.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/poltergeist/conductor/pkg/logger"
)

// DefaultConcurrency bounds parallel file copies
const DefaultConcurrency = 4

// Manifest lists what an archive run copied
type Manifest struct {
	Dest  string   `json:"dest"`
	Files []string `json:"files"`
	Bytes int64    `json:"bytes"`
}

// Archiver copies matching files from Workspace into Dest, keeping their
// relative layout
type Archiver struct {
	Workspace   string
	Dest        string
	Concurrency int
	Logger      logger.Logger
}

// Collect returns the sorted workspace-relative files matching patterns.
// The destination tree and .git are never collected.
func (a *Archiver) Collect(patterns []string) ([]string, error) {
	matcher, err := NewMatcher(patterns)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(a.Workspace)
	if err != nil {
		return nil, err
	}
	dest, _ := filepath.Abs(a.Dest)

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || (dest != "" && path == dest) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if matcher.Match(rel) {
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// Archive copies every file matching patterns. Matching nothing is not an error.
func (a *Archiver) Archive(ctx context.Context, patterns []string) (*Manifest, error) {
	log := logger.OrNop(a.Logger)

	files, err := a.Collect(patterns)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{Dest: a.Dest, Files: files}
	if len(files) == 0 {
		log.Warn("No files matched archive patterns", logger.WithField("patterns", patterns))
		return manifest, nil
	}

	limit := a.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	sizes := make([]int64, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, rel := range files {
		i, rel := i, rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src := filepath.Join(a.Workspace, filepath.FromSlash(rel))
			dst := filepath.Join(a.Dest, filepath.FromSlash(rel))
			n, err := copyFile(src, dst)
			if err != nil {
				return fmt.Errorf("failed to archive %s: %w", rel, err)
			}
			sizes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, n := range sizes {
		manifest.Bytes += n
	}

	log.Info("Archived artifacts",
		logger.WithField("files", len(files)),
		logger.WithField("size", FormatBytes(manifest.Bytes)),
		logger.WithField("dest", a.Dest))
	return manifest, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// FormatBytes formats a size for humans
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
