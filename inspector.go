package autoextract

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// archiveLister lists archive entries with one password candidate.
type archiveLister interface {
	list(ctx context.Context, archivePath, password string) (ArchiveFormat, *archiveListing, error)
}

// Inspector opens archives without extracting them.
type Inspector struct {
	lister archiveLister
	filter *EntryFilter
	logger zerolog.Logger
}

// NewInspector creates an Inspector reading through native. FilteredCount is
// computed with filter.
func NewInspector(native *NativeExtractor, filter *EntryFilter, logger zerolog.Logger) *Inspector {
	if native == nil {
		native = NewNativeExtractor(logger)
	}
	if filter == nil {
		filter = NewEntryFilter(DefaultExcludeExtensions)
	}
	return &Inspector{
		lister: native,
		filter: filter,
		logger: logger.With().Str("component", "inspector").Logger(),
	}
}

// Inspect lists an archive and classifies its root structure.
//
// It fails with ErrArchiveNotFound when the path is gone, ErrArchiveUnreadable
// for empty files, unsupported formats and containers the reader rejects, and
// ErrWrongPassword when the listing needs a password none of the candidates
// supplies.
func (i *Inspector) Inspect(ctx context.Context, archivePath string, passwords []string) (*ArchiveInfo, error) {
	stat, err := os.Stat(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewExtractError(ErrArchiveNotFound, "archive does not exist", archivePath, err)
		}
		return nil, classifyFSError(err, archivePath, "cannot stat archive")
	}
	if stat.IsDir() {
		return nil, NewExtractError(ErrArchiveUnreadable, "path is a directory", archivePath, nil)
	}
	if stat.Size() == 0 {
		return nil, NewExtractError(ErrArchiveUnreadable, "archive is empty", archivePath, nil)
	}

	format, listing, err := i.listWithCandidates(ctx, archivePath, passwords)
	if err != nil {
		return nil, err
	}

	info := &ArchiveInfo{
		Path:      archivePath,
		Size:      stat.Size(),
		Format:    format,
		Entries:   RemoveDuplicateStrings(listing.Entries),
		Encrypted: listing.Encrypted,
	}
	info.RootIsSingleFolder, info.RootFolderName = rootFolder(info.Entries)

	for _, entry := range info.Entries {
		if !isDirEntry(entry) {
			info.FileCount++
		}
	}
	info.FilteredCount = i.filter.Filter(info.Entries).KeptFileCount()

	i.logger.Debug().
		Str("archive", archivePath).
		Str("format", format.String()).
		Int("entries", len(info.Entries)).
		Int("files", info.FileCount).
		Int("kept", info.FilteredCount).
		Bool("single_folder", info.RootIsSingleFolder).
		Msg("Inspected archive")

	return info, nil
}

// listWithCandidates tries no password first, since only header encrypted
// archives need one to be listed.
func (i *Inspector) listWithCandidates(ctx context.Context, archivePath string, passwords []string) (ArchiveFormat, *archiveListing, error) {
	candidates := RemoveDuplicateStrings(append([]string{""}, passwords...))

	var lastErr error
	for _, password := range candidates {
		if err := ctx.Err(); err != nil {
			return FormatUnknown, nil, NewExtractError(ErrCancelled, "inspection cancelled", archivePath, err)
		}

		format, listing, err := i.lister.list(ctx, archivePath, password)
		if err == nil {
			return format, listing, nil
		}

		switch ErrorTypeOf(err) {
		case ErrWrongPassword:
			lastErr = err
			continue
		case ErrArchiveNotFound, ErrArchiveUnreadable, ErrFileLocked, ErrCancelled:
			return format, nil, err
		default:
			return format, nil, NewExtractError(ErrArchiveUnreadable, "cannot list archive", archivePath, err)
		}
	}
	return FormatUnknown, nil, NewExtractError(ErrWrongPassword, "no password candidate opens the archive", archivePath, lastErr)
}

// rootFolder applies the root rule: single folder when every entry shares one
// first segment and that segment is a directory.
func rootFolder(entries []string) (bool, string) {
	if len(entries) == 0 {
		return false, ""
	}

	root := ""
	for _, entry := range entries {
		first, _, nested := strings.Cut(entry, "/")
		if !nested {
			// a file at the archive root
			return false, ""
		}
		if root == "" {
			root = first
		} else if first != root {
			return false, ""
		}
	}
	return true, root
}
