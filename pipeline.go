package autoextract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pipeline extracts archives: inspect, filter, choose the destination,
// extract, resolve collisions, recurse into nested archives, clean up and
// record the result.
type Pipeline struct {
	cfg    ExtractConfig
	logger zerolog.Logger

	inspector *Inspector
	filter    *EntryFilter
	folders   *FolderStrategy
	executor  *Executor
	resolver  *DuplicateResolver
	nested    *NestedDetector
	cleaner   *Cleaner
	tracker   *FailureTracker
	recorder  *Recorder
	sink      Sink
	passwords PasswordProvider
	backoff   Backoff
	lockCheck func(path string) error
}

type options struct {
	logger        zerolog.Logger
	extractor     Extractor
	native        *NativeExtractor
	sink          Sink
	store         Store
	tracker       *FailureTracker
	passwords     PasswordProvider
	timeout       time.Duration
	lockCheck     func(path string) error
	space         DiskSpaceChecker
	maxPathLength int
	trash         TrashFunc
	backoff       Backoff
}

// Option configures a Pipeline.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithExtractor replaces the native extractor used to write files.
// Inspection always uses the native readers.
func WithExtractor(e Extractor) Option {
	return func(o *options) { o.extractor = e }
}

// WithSink sets the event sink.
func WithSink(s Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithStore sets the result store.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithTracker shares a failure tracker between pipelines or with the host.
func WithTracker(t *FailureTracker) Option {
	return func(o *options) { o.tracker = t }
}

// WithPasswords sets the password provider.
func WithPasswords(p PasswordProvider) Option {
	return func(o *options) { o.passwords = p }
}

// WithTimeout bounds each extraction attempt. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLockCheck replaces the check that an archive is not held open by
// another process. The check should return an ErrFileLocked error.
func WithLockCheck(check func(path string) error) Option {
	return func(o *options) { o.lockCheck = check }
}

// WithDiskSpaceChecker replaces the free space pre-check. nil disables it.
func WithDiskSpaceChecker(c DiskSpaceChecker) Option {
	return func(o *options) { o.space = c }
}

// WithMaxPathLength sets the destination path limit.
func WithMaxPathLength(n int) Option {
	return func(o *options) { o.maxPathLength = n }
}

// WithTrash sets the trash used when deletion is not permanent. The default
// is SystemTrash.
func WithTrash(t TrashFunc) Option {
	return func(o *options) { o.trash = t }
}

// WithBackoff sets the retry pacing for locked files.
func WithBackoff(b Backoff) Option {
	return func(o *options) { o.backoff = b }
}

// New validates cfg and builds a Pipeline.
func New(cfg ExtractConfig, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{
		logger:        zerolog.Nop(),
		timeout:       DefaultTimeout,
		space:         FreeSpaceChecker{},
		maxPathLength: DefaultMaxPathLength,
		backoff:       DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.native == nil {
		o.native = NewNativeExtractor(o.logger)
	}
	if o.extractor == nil {
		o.extractor = o.native
	}
	if o.sink == nil {
		o.sink = nopSink{}
	}
	if o.tracker == nil {
		o.tracker = NewFailureTracker(DefaultMaxFailures)
	}
	if o.passwords == nil {
		o.passwords = StaticPasswords(nil)
	}
	if o.lockCheck == nil {
		o.lockCheck = checkLock
	}

	filter := NewEntryFilter(cfg.ExcludeExtensions)
	validator := NewSecurityValidatorWithLimit(o.maxPathLength)

	return &Pipeline{
		cfg:       cfg,
		logger:    o.logger.With().Str("component", "pipeline").Logger(),
		inspector: NewInspector(o.native, filter, o.logger),
		filter:    filter,
		folders:   NewFolderStrategy(cfg.SmartFolder),
		executor:  NewExecutor(o.extractor, filter, validator, o.space, o.timeout, o.logger),
		resolver:  NewDuplicateResolver(o.backoff, o.logger),
		nested:    NewNestedDetector(o.logger),
		cleaner:   NewCleaner(cfg.Delete.Permanent, o.trash, o.backoff, o.logger),
		tracker:   o.tracker,
		recorder:  NewRecorder(o.store, o.logger),
		sink:      o.sink,
		passwords: o.passwords,
		backoff:   o.backoff,
		lockCheck: o.lockCheck,
	}, nil
}

// Config returns the validated configuration.
func (p *Pipeline) Config() ExtractConfig {
	return p.cfg
}

// Tracker returns the failure tracker.
func (p *Pipeline) Tracker() *FailureTracker {
	return p.tracker
}

// Process extracts a top-level archive under destParent.
//
// A missing archive is a no-op: (nil, nil), and its failure record is
// cleared. An abandoned archive returns ErrAbandoned. Any other failure
// returns the persisted result together with the error.
//
// Cancelling ctx never interrupts an extraction in flight. It is observed
// before each nested archive and before cleanup: the result then has
// Cancelled set and the archive is kept.
func (p *Pipeline) Process(ctx context.Context, archivePath, destParent string) (*ExtractResult, error) {
	archivePath = absPath(archivePath)
	destParent = absPath(destParent)

	if _, err := os.Stat(archivePath); os.IsNotExist(err) {
		p.tracker.Reset(archivePath)
		p.logger.Debug().Str("archive", archivePath).Msg("Archive is gone, nothing to do")
		return nil, nil
	}
	if !p.tracker.ShouldAttempt(archivePath) {
		return nil, ErrAbandoned
	}
	return p.process(ctx, archivePath, destParent, 0, "")
}

// invocation is the state of one archive's pass.
type invocation struct {
	result        *ExtractResult
	destParent    string
	createdFolder string
	nestedErr     error
}

func (p *Pipeline) process(ctx context.Context, archivePath, destParent string, level int, parentID string) (*ExtractResult, error) {
	inv := &invocation{
		result: &ExtractResult{
			ID:          uuid.NewString(),
			ParentID:    parentID,
			ArchivePath: archivePath,
			DestPath:    destParent,
			NestedLevel: level,
			StartedAt:   time.Now(),
		},
		destParent: destParent,
	}
	p.emit(inv.result, EventStarted, "", "", nil)

	if err := p.run(ctx, inv); err != nil {
		return p.fail(ctx, inv, err)
	}

	result := inv.result
	result.Success = true
	result.FinishedAt = time.Now()
	if !result.Cancelled {
		p.tracker.RecordSuccess(archivePath)
	}

	recErr := p.recorder.Record(ctx, result)
	p.emit(result, EventFinished, "", "", nil)
	return result, recErr
}

func (p *Pipeline) run(ctx context.Context, inv *invocation) error {
	result := inv.result
	archivePath := result.ArchivePath

	if err := p.checkLock(archivePath); err != nil {
		return err
	}

	passwords, err := p.passwords.Passwords(ctx, archivePath)
	if err != nil {
		p.logger.Warn().Err(err).Str("archive", archivePath).Msg("Password lookup failed, trying without")
		passwords = nil
	}

	info, err := p.inspector.Inspect(ctx, archivePath, passwords)
	if err != nil {
		return err
	}
	result.ArchiveSize = info.Size

	filtered := p.filter.Filter(info.Entries)
	exclude := make(map[string]bool, len(filtered.Excluded))
	for _, entry := range filtered.Excluded {
		exclude[entry] = true
	}

	create, folder := p.folders.Resolve(info, filtered.KeptFileCount())
	exec, destDir, err := p.execute(ctx, inv, info, filtered, exclude, create, folder, passwords)
	if err != nil {
		return err
	}
	result.DestPath = destDir
	result.PasswordUsed = exec.PasswordUsed
	result.FilesFiltered = filtered.ExcludedFileCount() + exec.Filtered

	dup, err := p.resolver.Resolve(ctx, exec.StagingDir, destDir, exec.Written)
	if err != nil {
		return err
	}
	result.FilesExtracted = len(dup.Processed)
	result.FilesSkipped = len(dup.Skipped)
	result.FilesRenamed = len(dup.Renamed)
	for _, path := range dup.Processed {
		if stat, err := os.Stat(path); err == nil {
			result.ExtractedSize += stat.Size()
		}
		p.emit(result, EventFileExtracted, path, "", nil)
	}
	for _, path := range dup.Skipped {
		p.emit(result, EventFileSkipped, path, "identical file already present", nil)
	}

	if p.cfg.Nested.Enabled {
		p.processNested(ctx, inv, p.nested.Detect(dup))
	}
	if inv.nestedErr != nil {
		return inv.nestedErr
	}

	if result.Cancelled || ctx.Err() != nil {
		result.Cancelled = true
		p.logger.Info().Str("archive", archivePath).Msg("Cancelled, keeping archive")
		return nil
	}

	if p.cfg.Delete.Enabled {
		if _, err := p.cleaner.Remove(ctx, archivePath); err != nil {
			return err
		}
	}
	return nil
}

// execute runs the executor, retrying once under a shorter synthetic folder
// name when the destination path is too long.
func (p *Pipeline) execute(ctx context.Context, inv *invocation, info *ArchiveInfo, filtered FilterResult,
	exclude map[string]bool, create bool, folder string, passwords []string) (*ExecResult, string, error) {
	for retried := false; ; retried = true {
		destDir := inv.destParent
		if create {
			destDir = filepath.Join(inv.destParent, folder)
			if !dirExists(destDir) {
				inv.createdFolder = destDir
			}
		}

		exec, err := p.executor.Run(ctx, ExecuteRequest{
			ArchivePath: info.Path,
			ArchiveSize: info.Size,
			DestDir:     destDir,
			Entries:     filtered.Kept,
			Exclude:     exclude,
			Passwords:   passwords,
		})
		if err == nil {
			return exec, destDir, nil
		}

		if !create || retried || !IsErrorType(err, ErrDestinationPathTooLong) {
			return nil, destDir, err
		}
		short, ok := p.folders.ShortenFolderName(folder, p.executor.folderBudget(inv.destParent, filtered.Kept))
		if !ok {
			return nil, destDir, err
		}
		p.removeCreatedFolder(inv)
		p.logger.Info().Str("archive", info.Path).Str("folder", short).Msg("Destination too long, retrying with a shorter folder name")
		folder = short
	}
}

func (p *Pipeline) processNested(ctx context.Context, inv *invocation, archives []string) {
	result := inv.result
	for _, archive := range archives {
		if result.NestedLevel >= p.cfg.Nested.MaxDepth {
			result.NestingTruncated = true
			p.emit(result, EventNestedFound, archive, "depth limit reached", nil)
			p.logger.Info().
				Str("archive", archive).
				Int("level", result.NestedLevel+1).
				Int("max_depth", p.cfg.Nested.MaxDepth).
				Msg("Leaving nested archive untouched at depth limit")
			continue
		}

		if ctx.Err() != nil {
			result.Cancelled = true
			return
		}

		p.emit(result, EventNestedFound, archive, "", nil)
		result.NestedCount++

		child, err := p.processChild(ctx, archive, result)
		if child != nil {
			if child.NestingTruncated {
				result.NestingTruncated = true
			}
			if child.Cancelled {
				result.Cancelled = true
			}
		}
		if err != nil && inv.nestedErr == nil {
			inv.nestedErr = NewExtractError(ErrorTypeOf(err),
				fmt.Sprintf("nested archive %s failed", filepath.Base(archive)), result.ArchivePath, err)
		}
		if result.Cancelled {
			return
		}
	}
}

func (p *Pipeline) processChild(ctx context.Context, archive string, parent *ExtractResult) (*ExtractResult, error) {
	if !p.tracker.ShouldAttempt(archive) {
		p.logger.Warn().Str("archive", archive).Msg("Nested archive is abandoned")
		return nil, NewExtractError(ErrInternalError, "nested archive abandoned", archive, ErrAbandoned)
	}
	return p.process(ctx, archive, filepath.Dir(archive), parent.NestedLevel+1, parent.ID)
}

func (p *Pipeline) fail(ctx context.Context, inv *invocation, err error) (*ExtractResult, error) {
	result := inv.result
	errType := ErrorTypeOf(err)

	result.Success = false
	result.ErrorType = errType
	result.ErrorMessage = err.Error()
	result.FinishedAt = time.Now()
	if errType == ErrCancelled {
		result.Cancelled = true
	}

	state := p.tracker.RecordFailure(result.ArchivePath, err)
	result.ShouldRetry = errType.Retryable() && state != StateAbandoned

	p.removeCreatedFolder(inv)

	p.logger.Warn().
		Err(err).
		Str("archive", result.ArchivePath).
		Int("level", result.NestedLevel).
		Str("state", string(state)).
		Msg("Extraction failed")

	if recErr := p.recorder.Record(ctx, result); recErr != nil {
		err = errors.Join(err, recErr)
	}
	p.emit(result, EventError, "", result.ErrorMessage, err)
	return result, err
}

// removeCreatedFolder removes the synthetic folder this invocation created
// if it is still empty.
func (p *Pipeline) removeCreatedFolder(inv *invocation) {
	if inv.createdFolder == "" {
		return
	}
	if isEmptyDir(inv.createdFolder) {
		if err := os.Remove(inv.createdFolder); err != nil {
			p.logger.Debug().Err(err).Str("dir", inv.createdFolder).Msg("Cannot remove empty folder")
		}
	}
	inv.createdFolder = ""
}

func (p *Pipeline) checkLock(archivePath string) error {
	err := p.backoff.retryLocked(func() error {
		return p.lockCheck(archivePath)
	})
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return NewExtractError(ErrArchiveNotFound, "archive does not exist", archivePath, err)
	default:
		return classifyFSError(err, archivePath, "cannot open archive")
	}
}

// checkLock opens the archive for writing, falling back to reading for
// read-only files.
func checkLock(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if os.IsPermission(err) {
		f, err = os.Open(path)
	}
	if err != nil {
		if isLockedError(err) {
			return NewExtractError(ErrFileLocked, "archive is in use", path, err)
		}
		return err
	}
	return f.Close()
}

func (p *Pipeline) emit(result *ExtractResult, t EventType, file, reason string, err error) {
	e := Event{
		Type:         t,
		InvocationID: result.ID,
		ParentID:     result.ParentID,
		Archive:      result.ArchivePath,
		Level:        result.NestedLevel,
		File:         file,
		Reason:       reason,
		Err:          err,
		Time:         time.Now(),
	}
	if t == EventFinished || t == EventError {
		r := *result
		e.Result = &r
	}
	p.sink.Emit(e)
}

func dirExists(dir string) bool {
	stat, err := os.Stat(dir)
	return err == nil && stat.IsDir()
}
