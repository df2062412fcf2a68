package autoextract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// GenerateUniqueFileName returns filePath if nothing exists there, otherwise the
// first free "name(N).ext" with N counting up from 1.
func GenerateUniqueFileName(filePath string) string {
	if _, err := os.Lstat(filePath); os.IsNotExist(err) {
		return filePath
	}

	dir := filepath.Dir(filePath)
	filename := filepath.Base(filePath)
	ext := filepath.Ext(filename)
	nameWithoutExt := strings.TrimSuffix(filename, ext)

	for i := 1; ; i++ {
		newPath := filepath.Join(dir, fmt.Sprintf("%s(%d)%s", nameWithoutExt, i, ext))
		if _, err := os.Lstat(newPath); os.IsNotExist(err) {
			return newPath
		}
	}
}

// RemoveDuplicateStrings drops repeated items, keeping first occurrences in order.
func RemoveDuplicateStrings(slice []string) []string {
	seen := make(map[string]bool)
	result := []string{}

	for _, item := range slice {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}

	return result
}

// isDirEntry reports whether an entry path names a directory.
func isDirEntry(entry string) bool {
	return strings.HasSuffix(entry, "/")
}

// normalizeEntry converts an archive entry name to a clean slash path.
// Directory entries keep their trailing slash.
func normalizeEntry(name string, isDir bool) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return ""
	}
	if isDir && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return name
}

// absPath returns the cleaned absolute form of p, or p itself on error.
func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k, ok := range set {
		if ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
