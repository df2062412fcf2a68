package autoextract

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// shortFolderNameLength is the length a synthetic folder name is cut to after
// the destination turned out too long.
const shortFolderNameLength = 32

var (
	// name.part1, name.part01, name.part001
	partSuffixRe = regexp.MustCompile(`(?i)\.part\d+$`)
	// name.7z.001, name.zip.001
	numberedVolumeRe = regexp.MustCompile(`(?i)\.(7z|zip|rar)\.\d{3}$`)
	compoundExtRe    = regexp.MustCompile(`(?i)\.tar\.(gz|bz2|xz|zst)$`)
)

// FolderStrategy decides whether an archive gets a synthetic wrapping folder.
type FolderStrategy struct {
	cfg       SmartFolderConfig
	sanitizer *FilenameSanitizer
}

// NewFolderStrategy creates a FolderStrategy.
func NewFolderStrategy(cfg SmartFolderConfig) *FolderStrategy {
	return &FolderStrategy{
		cfg:       cfg,
		sanitizer: NewFilenameSanitizer(),
	}
}

// Resolve returns whether to create a folder and its name. keptFiles is the
// number of file entries left after filtering.
//
// With the heuristic disabled every archive gets a folder. Otherwise:
// single folder archives extract in place, scattered archives get a folder
// once they hold at least MinFilesForFolder kept files.
func (s *FolderStrategy) Resolve(info *ArchiveInfo, keptFiles int) (bool, string) {
	if !s.cfg.Enabled {
		return true, s.FolderName(info.Path)
	}
	if info.RootIsSingleFolder {
		return false, ""
	}
	if keptFiles >= s.cfg.MinFilesForFolder {
		return true, s.FolderName(info.Path)
	}
	return false, ""
}

// FolderName is the sanitized clean base name of the archive.
func (s *FolderStrategy) FolderName(archivePath string) string {
	return s.sanitizer.SanitizeFilename(CleanArchiveName(archivePath))
}

// ShortenFolderName returns the name used for the one retry after a
// DestinationPathTooLong failure. The result is at most budget characters,
// never more than shortFolderNameLength, and always shorter than name; a
// budget below 1 is ignored. ok is false when name cannot be cut any further.
func (s *FolderStrategy) ShortenFolderName(name string, budget int) (string, bool) {
	limit := min(shortFolderNameLength, utf8.RuneCountInString(name)-1)
	if budget > 0 && budget < limit {
		limit = budget
	}
	if limit < 1 {
		return name, false
	}
	short := s.sanitizer.ShortenFilename(name, limit)
	return short, short != name
}

// CleanArchiveName strips archive extensions and volume markers from a path's
// base name: "movie.part01.rar" and "movie.7z.001" both become "movie".
func CleanArchiveName(archivePath string) string {
	name := filepath.Base(archivePath)

	if loc := numberedVolumeRe.FindStringIndex(name); loc != nil {
		name = name[:loc[0]]
	} else if loc := compoundExtRe.FindStringIndex(name); loc != nil {
		name = name[:loc[0]]
	} else {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}

	name = partSuffixRe.ReplaceAllString(name, "")
	name = strings.TrimSuffix(name, ".tar")
	name = strings.TrimSpace(name)
	if name == "" {
		return "extracted"
	}
	return name
}
