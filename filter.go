package autoextract

import (
	"strings"
)

// EntryFilter drops entries whose name ends in an excluded suffix.
type EntryFilter struct {
	suffixes []string
}

// NewEntryFilter creates a filter; suffixes match case-insensitively.
func NewEntryFilter(excludeExtensions []string) *EntryFilter {
	suffixes := make([]string, 0, len(excludeExtensions))
	for _, s := range excludeExtensions {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			suffixes = append(suffixes, s)
		}
	}
	return &EntryFilter{suffixes: suffixes}
}

// Matches reports whether a file name ends in one of the excluded suffixes.
// Directory entries never match.
func (f *EntryFilter) Matches(name string) bool {
	if isDirEntry(name) {
		return false
	}
	lower := strings.ToLower(name)
	for _, suffix := range f.suffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Filter partitions entries into kept and excluded, keeping input order.
func (f *EntryFilter) Filter(entries []string) FilterResult {
	result := FilterResult{
		Kept:     make([]string, 0, len(entries)),
		Excluded: []string{},
	}
	for _, entry := range entries {
		if f.Matches(entry) {
			result.Excluded = append(result.Excluded, entry)
		} else {
			result.Kept = append(result.Kept, entry)
		}
	}
	return result
}
