package validator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/neuronbridge/nbvalidate/pkg/util"
)

// Batch is a bounded group of files handed to one match task. Files are
// relative to RootDir.
type Batch struct {
	RootDir string   `json:"rootDir" msgpack:"rootDir"`
	Files   []string `json:"files" msgpack:"files"`
}

// Paths returns the full path of every file in the batch.
func (b Batch) Paths() []string {
	out := make([]string, len(b.Files))
	for i, f := range b.Files {
		out[i] = util.JoinUnder(b.RootDir, f)
	}
	return out
}

// Walker lists the files under a directory, applying ignore patterns.
type Walker struct {
	ignore []string
	logger *slog.Logger
}

// NewWalker creates a Walker.
func NewWalker(ignorePatterns []string, loggerHandler slog.Handler) *Walker {
	if loggerHandler == nil {
		loggerHandler = slog.DiscardHandler
	}
	return &Walker{
		ignore: ignorePatterns,
		logger: slog.New(loggerHandler).With(slog.String("component", "walker")),
	}
}

// Enumerate returns every file below dir, recursively. Each file appears
// once; order is not part of the contract. An unreadable dir is an error;
// unreadable subdirectories are logged and skipped.
func (w *Walker) Enumerate(ctx context.Context, dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Warn("Error accessing path during walk", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		if matched, pattern := util.MatchesAny(w.ignore, rel); matched {
			w.logger.Debug("Path ignored", slog.String("path", rel), slog.String("pattern", pattern))
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrEnumerate, dir, err)
	}
	w.logger.Debug("Directory enumerated", slog.String("dir", dir), slog.Int("files", len(paths)))
	return paths, nil
}

// MakeBatches partitions paths into contiguous batches of at most maxSize
// files, covering each path exactly once. maxSize < 1 means DefaultBatchSize.
func MakeBatches(rootDir string, paths []string, maxSize int) []Batch {
	if maxSize < 1 {
		maxSize = DefaultBatchSize
	}
	batches := make([]Batch, 0, (len(paths)+maxSize-1)/maxSize)
	for start := 0; start < len(paths); start += maxSize {
		end := min(start+maxSize, len(paths))
		files := make([]string, 0, end-start)
		for _, p := range paths[start:end] {
			if rel, err := filepath.Rel(rootDir, p); err == nil && filepath.IsAbs(p) == filepath.IsAbs(rootDir) {
				files = append(files, rel)
			} else {
				files = append(files, p)
			}
		}
		batches = append(batches, Batch{RootDir: rootDir, Files: files})
	}
	return batches
}
