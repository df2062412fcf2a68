package autoextract

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

// DefaultMaxPathLength is the destination path limit, matching the classic
// Windows MAX_PATH.
const DefaultMaxPathLength = 260

// SecurityValidator checks entry paths before anything is written.
type SecurityValidator interface {
	// ValidatePath rejects entries that would escape baseDir or are not valid names.
	ValidatePath(path, baseDir string) error

	// ValidateLength rejects destination paths longer than the configured limit.
	ValidateLength(fullPath string) error

	// MaxPathLength returns the configured limit.
	MaxPathLength() int
}

type defaultSecurityValidator struct {
	maxPathLength int
	windows       bool
}

// NewSecurityValidator creates a validator with DefaultMaxPathLength.
func NewSecurityValidator() SecurityValidator {
	return NewSecurityValidatorWithLimit(DefaultMaxPathLength)
}

// NewSecurityValidatorWithLimit creates a validator with a custom path limit.
func NewSecurityValidatorWithLimit(maxPathLen int) SecurityValidator {
	if maxPathLen <= 0 {
		maxPathLen = DefaultMaxPathLength
	}
	return &defaultSecurityValidator{
		maxPathLength: maxPathLen,
		windows:       runtime.GOOS == "windows",
	}
}

func (v *defaultSecurityValidator) MaxPathLength() int {
	return v.maxPathLength
}

// ValidatePath rejects entries that would escape baseDir or are not valid names.
func (v *defaultSecurityValidator) ValidatePath(path, baseDir string) error {
	if path == "" {
		return NewExtractError(ErrPathTraversal, "empty entry path", path, nil)
	}

	raw := filepath.ToSlash(path)
	if strings.HasPrefix(raw, "/") || filepath.IsAbs(path) || (len(raw) > 1 && raw[1] == ':') {
		return NewExtractError(ErrPathTraversal, "absolute entry path", path, nil)
	}

	for _, part := range strings.Split(raw, "/") {
		if part == ".." {
			return NewExtractError(ErrPathTraversal, "entry path contains ..", path, nil)
		}
	}

	if err := v.checkDangerousCharacters(raw); err != nil {
		return err
	}
	if v.windows {
		if err := v.checkReservedNames(raw); err != nil {
			return err
		}
	}

	if baseDir != "" {
		if _, err := PathSafeJoin(baseDir, raw); err != nil {
			return err
		}
	}
	return nil
}

// ValidateLength rejects destination paths longer than the configured limit.
func (v *defaultSecurityValidator) ValidateLength(fullPath string) error {
	if n := len([]rune(fullPath)); n > v.maxPathLength {
		return NewExtractError(ErrDestinationPathTooLong,
			fmt.Sprintf("destination path is %d characters, limit %d", n, v.maxPathLength),
			fullPath, nil)
	}
	return nil
}

func (v *defaultSecurityValidator) checkDangerousCharacters(path string) error {
	for _, char := range path {
		// U+FFFD comes out of lossy charset conversion and is harmless
		if unicode.IsControl(char) && char != '\uFFFD' {
			return NewExtractError(ErrPathTraversal,
				fmt.Sprintf("entry path contains control character U+%04X", char), path, nil)
		}
		if v.windows && strings.ContainsRune(`<>:"|*`, char) {
			return NewExtractError(ErrPathTraversal,
				fmt.Sprintf("entry path contains %q", char), path, nil)
		}
	}
	return nil
}

func (v *defaultSecurityValidator) checkReservedNames(path string) error {
	reservedNames := []string{
		"CON", "PRN", "AUX", "NUL",
		"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
		"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
	}

	for _, component := range strings.Split(path, "/") {
		name := strings.ToUpper(component)
		if dotIndex := strings.LastIndex(name, "."); dotIndex > 0 {
			name = name[:dotIndex]
		}
		for _, reserved := range reservedNames {
			if name == reserved {
				return NewExtractError(ErrPathTraversal,
					fmt.Sprintf("entry path uses reserved name %s", reserved), path, nil)
			}
		}
	}
	return nil
}

// PathSafeJoin joins base and a slash separated relative path, refusing
// results outside base.
func PathSafeJoin(base, path string) (string, error) {
	result := filepath.Join(base, filepath.FromSlash(path))

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", NewExtractError(ErrInternalError, "cannot resolve base directory", base, err)
	}
	absResult, err := filepath.Abs(result)
	if err != nil {
		return "", NewExtractError(ErrInternalError, "cannot resolve target path", path, err)
	}

	relPath, err := filepath.Rel(absBase, absResult)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", NewExtractError(ErrPathTraversal, "path escapes destination", path, nil)
	}
	return result, nil
}
