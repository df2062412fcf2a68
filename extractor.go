package autoextract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ExtractRequest is one extraction attempt with a single password.
type ExtractRequest struct {
	ArchivePath string
	DestDir     string
	// Exclude holds normalized entry paths that must not be written.
	Exclude map[string]bool
	// Password is empty for "no password".
	Password string
}

// ExtractOutcome lists the files an attempt wrote, relative to DestDir with
// forward slashes.
type ExtractOutcome struct {
	Written []string
}

// Extractor is the decompression capability the pipeline delegates to.
// Failures are *ExtractError values typed ErrWrongPassword, ErrArchiveCorrupt,
// ErrArchiveUnreadable, ErrInsufficientDiskSpace or ErrDestinationPathTooLong.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*ExtractOutcome, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, req ExtractRequest) (*ExtractOutcome, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, req ExtractRequest) (*ExtractOutcome, error) {
	return f(ctx, req)
}

// sourceError marks a failure on the archive side of a copy.
type sourceError struct {
	err error
}

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

// contextReader fails reads once ctx is done and remembers read failures.
type contextReader struct {
	ctx context.Context
	r   io.Reader
	err error
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return 0, err
	}
	n, err := c.r.Read(p)
	if err != nil && err != io.EOF {
		c.err = err
	}
	return n, err
}

// entryWriter materializes archive entries under one destination directory
// and keeps the list of files written.
type entryWriter struct {
	destDir   string
	exclude   map[string]bool
	validator SecurityValidator
	logger    zerolog.Logger
	written   []string
}

func newEntryWriter(req ExtractRequest, validator SecurityValidator, logger zerolog.Logger) *entryWriter {
	return &entryWriter{
		destDir:   req.DestDir,
		exclude:   req.Exclude,
		validator: validator,
		logger:    logger,
	}
}

// skip reports whether an entry is excluded or unsafe; unsafe entries are logged.
func (w *entryWriter) skip(entry string) bool {
	if entry == "" || w.exclude[entry] {
		return true
	}
	if err := w.validator.ValidatePath(entry, w.destDir); err != nil {
		w.logger.Warn().Err(err).Str("entry", entry).Msg("Skipping unsafe entry")
		return true
	}
	return false
}

func (w *entryWriter) mkdir(entry string) error {
	target, err := PathSafeJoin(w.destDir, entry)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return classifyFSError(err, target, "cannot create directory")
	}
	return nil
}

// writeFile copies src into the destination. A partially written file is
// removed on failure. Read side failures come back as *sourceError.
func (w *entryWriter) writeFile(ctx context.Context, entry string, mode fs.FileMode, modTime time.Time, src io.Reader) error {
	target, err := PathSafeJoin(w.destDir, entry)
	if err != nil {
		return err
	}

	parentDir := filepath.Dir(target)
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return classifyFSError(err, parentDir, "cannot create parent directory")
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0o200)
	if err != nil {
		return classifyFSError(err, target, "cannot create file")
	}

	reader := &contextReader{ctx: ctx, r: src}
	_, copyErr := io.Copy(dst, reader)
	closeErr := dst.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(target)
		if reader.err != nil {
			return &sourceError{err: reader.err}
		}
		return classifyFSError(copyErr, target, "cannot write file")
	}

	if !modTime.IsZero() {
		// not fatal
		_ = os.Chtimes(target, modTime, modTime)
	}

	w.written = append(w.written, entry)
	return nil
}

// classifyFSError maps destination side filesystem errors onto the taxonomy.
func classifyFSError(err error, path, message string) error {
	var extractErr *ExtractError
	if errors.As(err, &extractErr) {
		return err
	}
	switch {
	case isDiskFullError(err):
		return NewExtractError(ErrInsufficientDiskSpace, message+": disk full", path, err)
	case isNameTooLongError(err):
		return NewExtractError(ErrDestinationPathTooLong, message+": name too long", path, err)
	case isLockedError(err):
		return NewExtractError(ErrFileLocked, message+": file is locked", path, err)
	default:
		return NewExtractError(ErrInternalError, message, path, err)
	}
}

// classifySourceError maps archive side read failures onto the taxonomy.
// encrypted tells whether the entry being read was password protected.
func classifySourceError(err error, encrypted bool, path string) error {
	var extractErr *ExtractError
	switch {
	case errors.As(err, &extractErr):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return NewExtractError(ErrArchiveCorrupt, "extraction timed out", path, err)
	case errors.Is(err, context.Canceled):
		return NewExtractError(ErrCancelled, "extraction cancelled", path, err)
	case encrypted || isPasswordError(err):
		return NewExtractError(ErrWrongPassword, "password rejected", path, err)
	default:
		return NewExtractError(ErrArchiveCorrupt, fmt.Sprintf("decoding failed: %v", err), path, err)
	}
}
