package autoextract

import (
	"os"
	"path/filepath"
	"strings"
)

// systemFiles are metadata files some archivers and file managers add.
var systemFiles = []string{
	"Thumbs.db", "Desktop.ini", ".DS_Store",
	"__MACOSX", ".AppleDouble", ".LSOverride",
}

// EnsureDirectoryExists creates dirPath and its parents if missing.
func EnsureDirectoryExists(dirPath string) error {
	if dirPath == "" {
		return nil
	}

	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, 0o755)
	}
	return nil
}

// IsHiddenFile reports whether filename is a dot file or a known system file.
func IsHiddenFile(filename string) bool {
	if filename == "" {
		return false
	}

	base := filepath.Base(filename)

	// Unix dot files
	if strings.HasPrefix(base, ".") && len(base) > 1 {
		return true
	}

	for _, sysFile := range systemFiles {
		if strings.EqualFold(base, sysFile) {
			return true
		}
	}

	return false
}

// isEmptyDir reports whether dir exists and holds nothing.
func isEmptyDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) == 0
}
