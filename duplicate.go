package autoextract

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/locker"
	"github.com/rs/zerolog"
)

// DuplicateResolver moves staged files into their destination, resolving
// name collisions by size: equal size is a duplicate and is dropped, a
// different size is kept under a "name(N).ext" name.
//
// Content is never hashed, so two different files sharing name and size are
// treated as the same file.
type DuplicateResolver struct {
	locks   *locker.Locker
	backoff Backoff
	logger  zerolog.Logger
}

// NewDuplicateResolver creates a DuplicateResolver. One resolver should be
// shared by all workers writing to the same tree.
func NewDuplicateResolver(backoff Backoff, logger zerolog.Logger) *DuplicateResolver {
	return &DuplicateResolver{
		locks:   locker.New(),
		backoff: backoff,
		logger:  logger.With().Str("component", "duplicate-resolver").Logger(),
	}
}

// Resolve moves every written file from stagingDir to the same relative path
// under destDir and removes stagingDir. Paths in the result are absolute
// destination paths; for skipped files it is the copy already there.
func (r *DuplicateResolver) Resolve(ctx context.Context, stagingDir, destDir string, written []string) (*DuplicateResult, error) {
	defer os.RemoveAll(stagingDir)

	result := &DuplicateResult{
		Processed: []string{},
		Skipped:   []string{},
		Renamed:   []RenamedFile{},
	}

	written = RemoveDuplicateStrings(written)
	for _, entry := range written {
		src := filepath.Join(stagingDir, filepath.FromSlash(entry))
		target := filepath.Join(destDir, filepath.FromSlash(entry))
		if err := r.place(src, target, result); err != nil {
			return result, err
		}
	}

	if err := r.createEmptyDirs(stagingDir, destDir); err != nil {
		return result, err
	}

	if len(result.Processed)+len(result.Skipped) != len(written) {
		return result, NewExtractError(ErrDuplicatePolicyViolation,
			fmt.Sprintf("%d files written but %d placed", len(written), len(result.Processed)+len(result.Skipped)),
			destDir, nil)
	}

	r.logger.Debug().
		Str("dest", destDir).
		Int("processed", len(result.Processed)).
		Int("skipped", len(result.Skipped)).
		Int("renamed", len(result.Renamed)).
		Msg("Resolved duplicates")
	return result, nil
}

// place runs stat, compare and move as one critical section per directory.
func (r *DuplicateResolver) place(src, target string, result *DuplicateResult) error {
	srcInfo, err := os.Lstat(src)
	if err != nil {
		return NewExtractError(ErrDuplicatePolicyViolation, "staged file disappeared", src, err)
	}

	dir := filepath.Dir(target)
	r.locks.Lock(dir)
	defer r.locks.Unlock(dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return classifyFSError(err, dir, "cannot create directory")
	}

	existing, err := os.Lstat(target)
	switch {
	case os.IsNotExist(err):
		if err := r.move(src, target); err != nil {
			return err
		}
		result.Processed = append(result.Processed, target)

	case err != nil:
		return classifyFSError(err, target, "cannot stat destination")

	case existing.Mode().IsRegular() && existing.Size() == srcInfo.Size():
		if err := r.backoff.retryLocked(func() error { return os.Remove(src) }); err != nil {
			return classifyFSError(err, src, "cannot discard duplicate")
		}
		r.logger.Debug().Str("file", target).Int64("size", existing.Size()).Msg("Skipping duplicate")
		result.Skipped = append(result.Skipped, target)

	default:
		unique := GenerateUniqueFileName(target)
		if err := r.move(src, unique); err != nil {
			return err
		}
		r.logger.Debug().Str("from", target).Str("to", unique).Msg("Renamed colliding file")
		result.Processed = append(result.Processed, unique)
		result.Renamed = append(result.Renamed, RenamedFile{From: target, To: unique})
	}
	return nil
}

func (r *DuplicateResolver) move(src, target string) error {
	err := r.backoff.retryLocked(func() error {
		return os.Rename(src, target)
	})
	if err != nil {
		return classifyFSError(err, target, "cannot move file into place")
	}
	return nil
}

// createEmptyDirs recreates staged directories that hold no files.
func (r *DuplicateResolver) createEmptyDirs(stagingDir, destDir string) error {
	return filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() || path == stagingDir {
			return nil
		}
		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return classifyFSError(err, target, "cannot create directory")
		}
		return nil
	})
}
