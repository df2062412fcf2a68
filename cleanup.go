package autoextract

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Bios-Marcel/wastebasket/v2"
	"github.com/rs/zerolog"
)

// TrashFunc moves one file to a trash can. A missing file is not an error.
type TrashFunc func(path string) error

// SystemTrash sends path to the platform trash: the freedesktop.org home or
// mount trash on Linux and the BSDs, the Recycle Bin on Windows and the
// Finder trash on macOS.
func SystemTrash(path string) error {
	return wastebasket.Trash(path)
}

// Cleaner deletes source archives after a successful extraction.
type Cleaner struct {
	permanent bool
	trash     TrashFunc
	backoff   Backoff
	logger    zerolog.Logger
}

// NewCleaner creates a Cleaner. With permanent false, files go to trash,
// SystemTrash when trash is nil.
func NewCleaner(permanent bool, trash TrashFunc, backoff Backoff, logger zerolog.Logger) *Cleaner {
	if trash == nil {
		trash = SystemTrash
	}
	return &Cleaner{
		permanent: permanent,
		trash:     trash,
		backoff:   backoff,
		logger:    logger.With().Str("component", "cleanup").Logger(),
	}
}

// Remove deletes archivePath and the other volumes of its set. It returns the
// paths removed; on error the ones removed so far.
func (c *Cleaner) Remove(ctx context.Context, archivePath string) ([]string, error) {
	volumes, err := VolumeSet(archivePath)
	if err != nil {
		return nil, classifyFSError(err, archivePath, "cannot list archive volumes")
	}

	removed := make([]string, 0, len(volumes))
	for _, path := range volumes {
		err := c.backoff.retryLocked(func() error {
			if c.permanent {
				return os.Remove(path)
			}
			return c.trash(path)
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, classifyFSError(err, path, "cannot delete archive")
		}
		removed = append(removed, path)
	}

	c.logger.Info().
		Str("archive", archivePath).
		Int("files", len(removed)).
		Bool("permanent", c.permanent).
		Msg("Removed source archive")
	return removed, nil
}

var (
	rarPartStemRe = regexp.MustCompile(`(?i)^(.*)\.part\d+\.rar$`)
	sevenZipVolRe = regexp.MustCompile(`(?i)^(.*\.7z)\.\d{3}$`)
)

// VolumeSet returns archivePath together with the other volumes of its split
// set found beside it, sorted:
//
//	name.part1.rar   name.part2.rar ...
//	name.rar         name.r00 name.r01 ...
//	name.zip         name.z01 name.z02 ...
//	name.7z.001      name.7z.002 ...
func VolumeSet(archivePath string) ([]string, error) {
	dir := filepath.Dir(archivePath)
	base := filepath.Base(archivePath)
	lower := strings.ToLower(base)

	var match func(name string) bool
	switch {
	case rarPartStemRe.MatchString(base):
		stem := strings.ToLower(rarPartStemRe.FindStringSubmatch(base)[1])
		match = func(name string) bool {
			m := rarPartStemRe.FindStringSubmatch(name)
			return m != nil && strings.ToLower(m[1]) == stem
		}
	case sevenZipVolRe.MatchString(base):
		stem := strings.ToLower(sevenZipVolRe.FindStringSubmatch(base)[1])
		match = func(name string) bool {
			m := sevenZipVolRe.FindStringSubmatch(name)
			return m != nil && strings.ToLower(m[1]) == stem
		}
	case strings.HasSuffix(lower, ".rar"):
		match = siblingMatcher(strings.TrimSuffix(lower, ".rar"), rarOldVolumeRe)
	case strings.HasSuffix(lower, ".zip"):
		match = siblingMatcher(strings.TrimSuffix(lower, ".zip"), zipSplitRe)
	default:
		return []string{archivePath}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	volumes := []string{archivePath}
	for _, entry := range entries {
		name := entry.Name()
		if name == base || entry.IsDir() || !match(name) {
			continue
		}
		volumes = append(volumes, filepath.Join(dir, name))
	}
	sort.Strings(volumes)
	return volumes, nil
}

// siblingMatcher matches "stem" plus a volume suffix such as ".r00".
func siblingMatcher(stem string, suffix *regexp.Regexp) func(string) bool {
	return func(name string) bool {
		loc := suffix.FindStringIndex(name)
		return loc != nil && strings.ToLower(name[:loc[0]]) == stem
	}
}
