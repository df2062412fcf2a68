package autoextract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StagingPrefix starts the name of the per-attempt directory an archive is
// extracted into before its files are moved to the destination.
const StagingPrefix = ".ax-"

// stagingNameLength is the length of a staging directory name.
const stagingNameLength = len(StagingPrefix) + 8

// DefaultTimeout bounds one extraction attempt.
const DefaultTimeout = time.Hour

// ExecuteRequest describes one archive extraction.
type ExecuteRequest struct {
	ArchivePath string
	ArchiveSize int64
	DestDir     string
	// Entries are the kept entries, used for the path length pre-check.
	Entries []string
	Exclude map[string]bool
	// Passwords are tried in order, followed by no password.
	Passwords []string
}

// ExecResult is a successful extraction sitting in its staging directory.
type ExecResult struct {
	StagingDir string
	// Written lists staged files relative to StagingDir, after the sweep.
	Written []string
	// Filtered counts files the extractor wrote although they match the
	// exclusion list; they are removed again.
	Filtered     int
	PasswordUsed string
}

// Executor runs password attempts against an Extractor.
type Executor struct {
	extractor Extractor
	filter    *EntryFilter
	validator SecurityValidator
	space     DiskSpaceChecker
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewExecutor creates an Executor. A zero timeout disables the per-attempt
// limit; a nil space checker skips the disk pre-check.
func NewExecutor(extractor Extractor, filter *EntryFilter, validator SecurityValidator, space DiskSpaceChecker, timeout time.Duration, logger zerolog.Logger) *Executor {
	if validator == nil {
		validator = NewSecurityValidator()
	}
	if filter == nil {
		filter = NewEntryFilter(nil)
	}
	return &Executor{
		extractor: extractor,
		filter:    filter,
		validator: validator,
		space:     space,
		timeout:   timeout,
		logger:    logger.With().Str("component", "executor").Logger(),
	}
}

// Run extracts req.ArchivePath into a fresh staging directory under
// req.DestDir. On failure nothing is left in the staging directory.
//
// Each attempt is detached from ctx cancellation and bounded by the
// executor timeout; a timed out attempt is reported as ErrArchiveCorrupt.
func (e *Executor) Run(ctx context.Context, req ExecuteRequest) (*ExecResult, error) {
	stagingDir := newStagingDir(req.DestDir)

	// staged paths are the longest ones written
	for _, entry := range req.Entries {
		if err := e.validator.ValidateLength(filepath.Join(stagingDir, filepath.FromSlash(entry))); err != nil {
			return nil, err
		}
	}

	if e.space != nil {
		if err := e.space.Check(ctx, req.DestDir, estimateExtractedSize(req.ArchiveSize)); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return nil, classifyFSError(err, req.DestDir, "cannot create destination")
	}

	var lastErr error
	for attempt, password := range passwordCandidates(req.Passwords) {
		written, err := e.attempt(ctx, req, stagingDir, password)
		if err == nil {
			filtered, kept := e.sweep(stagingDir, written, req.Exclude)
			e.logger.Debug().
				Str("archive", req.ArchivePath).
				Int("attempt", attempt+1).
				Int("written", len(kept)).
				Int("swept", filtered).
				Msg("Extraction succeeded")
			return &ExecResult{
				StagingDir:   stagingDir,
				Written:      kept,
				Filtered:     filtered,
				PasswordUsed: password,
			}, nil
		}

		os.RemoveAll(stagingDir)
		if !IsErrorType(err, ErrWrongPassword) {
			return nil, err
		}
		e.logger.Debug().Str("archive", req.ArchivePath).Int("attempt", attempt+1).Msg("Password rejected")
		lastErr = err
	}
	return nil, NewExtractError(ErrWrongPassword, "all password candidates rejected", req.ArchivePath, lastErr)
}

func newStagingDir(destDir string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return filepath.Join(destDir, StagingPrefix+id[:stagingNameLength-len(StagingPrefix)])
}

// folderBudget returns how many characters a folder created under
// destParent may have before the longest staged entry path exceeds the
// path limit.
func (e *Executor) folderBudget(destParent string, entries []string) int {
	longest := 0
	for _, entry := range entries {
		if n := utf8.RuneCountInString(filepath.FromSlash(strings.TrimSuffix(entry, "/"))); n > longest {
			longest = n
		}
	}
	// destParent/folder/.ax-xxxxxxxx/entry
	fixed := utf8.RuneCountInString(destParent) + 1 + 1 + stagingNameLength + 1 + longest
	return e.validator.MaxPathLength() - fixed
}

func (e *Executor) attempt(ctx context.Context, req ExecuteRequest, stagingDir, password string) ([]string, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, classifyFSError(err, stagingDir, "cannot create staging directory")
	}

	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
	)
	if e.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	defer cancel()

	outcome, err := e.extractor.Extract(attemptCtx, ExtractRequest{
		ArchivePath: req.ArchivePath,
		DestDir:     stagingDir,
		Exclude:     req.Exclude,
		Password:    password,
	})
	if err == nil && attemptCtx.Err() != nil {
		err = attemptCtx.Err()
	}
	if err != nil {
		return nil, classifySourceError(err, false, req.ArchivePath)
	}
	if outcome == nil {
		return nil, nil
	}
	return outcome.Written, nil
}

// sweep removes written files the exclusion list should have kept out. Only
// the ones missing from exclude are counted, the rest are counted already.
func (e *Executor) sweep(stagingDir string, written []string, exclude map[string]bool) (int, []string) {
	filtered := 0
	kept := make([]string, 0, len(written))
	for _, entry := range RemoveDuplicateStrings(written) {
		if exclude[entry] || e.filter.Matches(entry) {
			if err := os.Remove(filepath.Join(stagingDir, filepath.FromSlash(entry))); err != nil && !os.IsNotExist(err) {
				e.logger.Warn().Err(err).Str("entry", entry).Msg("Cannot remove excluded file")
			}
			if !exclude[entry] {
				filtered++
			}
			continue
		}
		kept = append(kept, entry)
	}
	return filtered, kept
}
