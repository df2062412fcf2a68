package autoextract

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// FilenameSanitizer turns arbitrary strings into safe single path components.
type FilenameSanitizer struct {
	// full-width and look-alike characters to replace
	dangerousChars map[string]string
	illegalPattern *regexp.Regexp
}

// NewFilenameSanitizer creates a FilenameSanitizer.
func NewFilenameSanitizer() *FilenameSanitizer {
	return &FilenameSanitizer{
		dangerousChars: map[string]string{
			"：": "_",
			"？": "_",
			"｜": "_",
			"＊": "_",
			"＜": "_",
			"＞": "_",
			"｢": "_",
			"｣": "_",
			"..": "_",
		},
		illegalPattern: regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`),
	}
}

// SanitizeFilename returns a name safe to create in any directory.
func (fs *FilenameSanitizer) SanitizeFilename(filename string) string {
	if filename == "" {
		return "unnamed"
	}

	sanitized := filepath.Base(filepath.FromSlash(filename))
	for dangerous, safe := range fs.dangerousChars {
		sanitized = strings.ReplaceAll(sanitized, dangerous, safe)
	}
	sanitized = fs.illegalPattern.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, " .")

	if sanitized == "" {
		sanitized = "unnamed"
	}
	return truncateRunes(sanitized, 255)
}

// ShortenFilename cuts a name to at most maxRunes characters, keeping its
// extension and trimming trailing spaces and dots.
func (fs *FilenameSanitizer) ShortenFilename(name string, maxRunes int) string {
	if utf8.RuneCountInString(name) <= maxRunes {
		return name
	}
	ext := filepath.Ext(name)
	if utf8.RuneCountInString(ext) >= maxRunes {
		ext = ""
	}
	stem := truncateRunes(strings.TrimSuffix(name, ext), maxRunes-utf8.RuneCountInString(ext))
	stem = strings.TrimRight(stem, " .")
	if stem == "" {
		stem = "x"
	}
	return stem + ext
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
