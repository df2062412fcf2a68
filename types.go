package autoextract

import (
	"errors"
	"fmt"
	"time"
)

// ArchiveFormat identifies a container format.
type ArchiveFormat string

const (
	FormatZIP     ArchiveFormat = "zip"
	FormatRAR     ArchiveFormat = "rar"
	Format7Z      ArchiveFormat = "7z"
	FormatTAR     ArchiveFormat = "tar"
	FormatTARGZ   ArchiveFormat = "tar.gz"
	FormatTARBZ2  ArchiveFormat = "tar.bz2"
	FormatTARXZ   ArchiveFormat = "tar.xz"
	FormatTARZST  ArchiveFormat = "tar.zst"
	FormatUnknown ArchiveFormat = "unknown"
)

// String returns the format name.
func (f ArchiveFormat) String() string {
	return string(f)
}

// IsTar reports whether the format is a (possibly compressed) tar stream.
func (f ArchiveFormat) IsTar() bool {
	switch f {
	case FormatTAR, FormatTARGZ, FormatTARBZ2, FormatTARXZ, FormatTARZST:
		return true
	}
	return false
}

// ArchiveInfo describes an archive without extracting it.
// It is produced by the Inspector and not modified afterwards.
type ArchiveInfo struct {
	Path   string
	Size   int64
	Format ArchiveFormat

	// RootIsSingleFolder is true when every entry lives under one top-level directory.
	RootIsSingleFolder bool
	RootFolderName     string

	// Entries holds slash separated entry paths; directories end in "/".
	Entries []string

	// FileCount counts non-directory entries, FilteredCount the ones kept after exclusion.
	FileCount     int
	FilteredCount int

	Encrypted bool
}

// FilterResult partitions entries into kept and excluded, preserving input order.
type FilterResult struct {
	Kept     []string
	Excluded []string
}

// KeptFileCount counts kept entries that are files.
func (r FilterResult) KeptFileCount() int {
	n := 0
	for _, e := range r.Kept {
		if !isDirEntry(e) {
			n++
		}
	}
	return n
}

// ExcludedFileCount counts excluded entries that are files.
func (r FilterResult) ExcludedFileCount() int {
	n := 0
	for _, e := range r.Excluded {
		if !isDirEntry(e) {
			n++
		}
	}
	return n
}

// RenamedFile pairs the path a file was meant to land on with the one it got.
type RenamedFile struct {
	From string
	To   string
}

// DuplicateResult is the outcome of moving extracted files into their destination.
// Every written file is in exactly one of Processed or Skipped; Renamed annotates
// entries of Processed.
type DuplicateResult struct {
	Processed []string
	Skipped   []string
	Renamed   []RenamedFile
}

// ExtractResult is the record of one pipeline invocation.
type ExtractResult struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`

	Success     bool   `json:"success"`
	ArchivePath string `json:"archive_path"`
	DestPath    string `json:"dest_path"`

	ArchiveSize   int64 `json:"archive_size"`
	ExtractedSize int64 `json:"extracted_size"`

	FilesExtracted int `json:"files_extracted"`
	FilesSkipped   int `json:"files_skipped"`
	FilesFiltered  int `json:"files_filtered"`
	FilesRenamed   int `json:"files_renamed"`

	NestedLevel      int  `json:"nested_level"`
	NestedCount      int  `json:"nested_count"`
	NestingTruncated bool `json:"nesting_truncated"`
	Cancelled        bool `json:"cancelled"`

	PasswordUsed string    `json:"password_used,omitempty"`
	ErrorType    ErrorType `json:"error_type,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ShouldRetry  bool      `json:"should_retry"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the invocation took.
func (r *ExtractResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ErrorType classifies pipeline failures.
type ErrorType string

const (
	// ErrArchiveNotFound the archive no longer exists
	ErrArchiveNotFound ErrorType = "ARCHIVE_NOT_FOUND"

	// ErrArchiveUnreadable the container cannot be opened or listed
	ErrArchiveUnreadable ErrorType = "ARCHIVE_UNREADABLE"

	// ErrArchiveCorrupt decoding failed part way, or the attempt timed out
	ErrArchiveCorrupt ErrorType = "ARCHIVE_CORRUPT"

	// ErrWrongPassword every password candidate was rejected
	ErrWrongPassword ErrorType = "WRONG_PASSWORD"

	// ErrInsufficientDiskSpace not enough room at the destination
	ErrInsufficientDiskSpace ErrorType = "INSUFFICIENT_DISK_SPACE"

	// ErrDestinationPathTooLong a destination path exceeds the limit
	ErrDestinationPathTooLong ErrorType = "DESTINATION_PATH_TOO_LONG"

	// ErrFileLocked the file is held open by another process
	ErrFileLocked ErrorType = "FILE_LOCKED"

	// ErrDuplicatePolicyViolation duplicate resolution lost track of a file
	ErrDuplicatePolicyViolation ErrorType = "DUPLICATE_POLICY_VIOLATION"

	// ErrPathTraversal an entry tries to escape the destination
	ErrPathTraversal ErrorType = "PATH_TRAVERSAL"

	// ErrUnsupportedFormat no reader for this format
	ErrUnsupportedFormat ErrorType = "UNSUPPORTED_FORMAT"

	// ErrCancelled the host cancelled the task
	ErrCancelled ErrorType = "CANCELLED"

	// ErrInternalError anything else
	ErrInternalError ErrorType = "INTERNAL_ERROR"
)

// String returns the error type name.
func (et ErrorType) String() string {
	return string(et)
}

// Retryable reports whether a later cycle may succeed for this failure.
func (et ErrorType) Retryable() bool {
	switch et {
	case ErrWrongPassword, ErrArchiveCorrupt, ErrArchiveUnreadable,
		ErrInsufficientDiskSpace, ErrFileLocked, ErrDestinationPathTooLong, ErrInternalError:
		return true
	}
	return false
}

// ExtractError is the error type returned by every component.
type ExtractError struct {
	Type    ErrorType
	Message string
	Path    string
	Cause   error
}

// Error implements error.
func (e *ExtractError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path: %s)", e.Type, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ExtractError) Unwrap() error {
	return e.Cause
}

// Is matches another *ExtractError by type.
func (e *ExtractError) Is(target error) bool {
	var t *ExtractError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// NewExtractError builds an *ExtractError.
func NewExtractError(errType ErrorType, message, path string, cause error) *ExtractError {
	return &ExtractError{
		Type:    errType,
		Message: message,
		Path:    path,
		Cause:   cause,
	}
}

// ErrorTypeOf returns the type of the first *ExtractError in err's chain,
// or ErrInternalError when there is none.
func ErrorTypeOf(err error) ErrorType {
	var e *ExtractError
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrInternalError
}

// IsErrorType reports whether err carries the given type.
func IsErrorType(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	var e *ExtractError
	return errors.As(err, &e) && e.Type == t
}

// ErrAbandoned is returned for archives that reached the failure ceiling.
var ErrAbandoned = errors.New("archive abandoned after repeated failures")
