package autoextract

import (
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// NestedDetector finds archives among the files an extraction placed.
type NestedDetector struct {
	logger zerolog.Logger
}

// NewNestedDetector creates a NestedDetector.
func NewNestedDetector(logger zerolog.Logger) *NestedDetector {
	return &NestedDetector{logger: logger.With().Str("component", "nested-detector").Logger()}
}

// Detect returns the archives among dup's processed and skipped files, sorted.
//
// Skipped files count: an identical copy already on disk is most likely the
// leftover of an earlier run that failed, so it is handled again. Secondary
// volumes of split archives and resource forks under __MACOSX are left out; the
// first volume stands for the whole set.
func (d *NestedDetector) Detect(dup *DuplicateResult) []string {
	if dup == nil {
		return nil
	}

	seen := make(map[string]bool)
	var archives []string
	for _, list := range [][]string{dup.Processed, dup.Skipped} {
		for _, path := range list {
			if seen[path] {
				continue
			}
			seen[path] = true

			name := filepath.Base(path)
			if IsHiddenFile(name) || isMacOSXPath(path) {
				continue
			}
			if IsSecondaryVolume(name) || !IsArchiveName(name) {
				continue
			}
			archives = append(archives, path)
		}
	}
	sort.Strings(archives)

	if len(archives) > 0 {
		d.logger.Debug().Strs("archives", archives).Msg("Found nested archives")
	}
	return archives
}

func isMacOSXPath(path string) bool {
	for dir := filepath.Dir(path); ; {
		if filepath.Base(dir) == "__MACOSX" {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}
