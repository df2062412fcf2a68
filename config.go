package autoextract

import (
	"fmt"
	"strings"
)

// DuplicateModeSmart skips same-size collisions and renames different-size ones.
const DuplicateModeSmart = "smart"

// NestedConfig controls recursion into archives found inside archives.
type NestedConfig struct {
	Enabled  bool `koanf:"enabled"`
	MaxDepth int  `koanf:"max_depth"`
}

// DuplicateConfig selects the collision policy.
type DuplicateConfig struct {
	Mode string `koanf:"mode"`
}

// DeleteConfig controls removal of the source archive after success.
type DeleteConfig struct {
	Enabled bool `koanf:"enabled"`
	// Permanent bypasses the trash.
	Permanent bool `koanf:"permanent"`
}

// SmartFolderConfig controls the synthetic destination folder heuristic.
type SmartFolderConfig struct {
	Enabled           bool `koanf:"enabled"`
	MinFilesForFolder int  `koanf:"min_files_for_folder"`
}

// ExtractConfig holds the options of one pipeline run. It is read-only once the
// pipeline is built.
type ExtractConfig struct {
	Nested            NestedConfig      `koanf:"nested"`
	Duplicate         DuplicateConfig   `koanf:"duplicate"`
	ExcludeExtensions []string          `koanf:"exclude_extensions"`
	Delete            DeleteConfig      `koanf:"delete"`
	SmartFolder       SmartFolderConfig `koanf:"smart_folder"`
}

// DefaultExcludeExtensions is the default junk list.
var DefaultExcludeExtensions = []string{".txt", ".nfo", ".url", ".htm", ".html", ".lnk"}

// DefaultExtractConfig returns the documented defaults.
func DefaultExtractConfig() ExtractConfig {
	return ExtractConfig{
		Nested: NestedConfig{
			Enabled:  true,
			MaxDepth: 3,
		},
		Duplicate: DuplicateConfig{
			Mode: DuplicateModeSmart,
		},
		ExcludeExtensions: append([]string(nil), DefaultExcludeExtensions...),
		Delete: DeleteConfig{
			Enabled:   true,
			Permanent: true,
		},
		SmartFolder: SmartFolderConfig{
			Enabled:           true,
			MinFilesForFolder: 2,
		},
	}
}

// DefaultExtractConfigMap returns the defaults as a nested map, keyed the same
// way as a config file, for layering under user configuration.
func DefaultExtractConfigMap() map[string]interface{} {
	c := DefaultExtractConfig()
	return map[string]interface{}{
		"nested.enabled":                    c.Nested.Enabled,
		"nested.max_depth":                  c.Nested.MaxDepth,
		"duplicate.mode":                    c.Duplicate.Mode,
		"exclude_extensions":                c.ExcludeExtensions,
		"delete.enabled":                    c.Delete.Enabled,
		"delete.permanent":                  c.Delete.Permanent,
		"smart_folder.enabled":              c.SmartFolder.Enabled,
		"smart_folder.min_files_for_folder": c.SmartFolder.MinFilesForFolder,
	}
}

// Validate checks ranges and normalizes the exclusion list to lower case.
func (c *ExtractConfig) Validate() error {
	if c.Nested.MaxDepth < 0 {
		return NewExtractError(ErrInternalError,
			fmt.Sprintf("nested.max_depth must be >= 0, got %d", c.Nested.MaxDepth), "", nil)
	}
	if c.Duplicate.Mode == "" {
		c.Duplicate.Mode = DuplicateModeSmart
	}
	if c.Duplicate.Mode != DuplicateModeSmart {
		return NewExtractError(ErrInternalError,
			fmt.Sprintf("unknown duplicate.mode %q", c.Duplicate.Mode), "", nil)
	}
	if c.SmartFolder.MinFilesForFolder < 1 {
		return NewExtractError(ErrInternalError,
			fmt.Sprintf("smart_folder.min_files_for_folder must be >= 1, got %d", c.SmartFolder.MinFilesForFolder), "", nil)
	}

	exts := make([]string, 0, len(c.ExcludeExtensions))
	for _, ext := range c.ExcludeExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	c.ExcludeExtensions = RemoveDuplicateStrings(exts)
	return nil
}
