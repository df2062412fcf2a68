package autoextract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
)

const (
	// extraction is assumed to need this many times the archive size
	diskSpaceFactor = 3
	// only this share of the free space is considered usable
	usableFreeRatio = 0.9
)

// DiskSpaceChecker decides whether dir can take need more bytes.
type DiskSpaceChecker interface {
	Check(ctx context.Context, dir string, need int64) error
}

// DiskSpaceCheckerFunc adapts a function to DiskSpaceChecker.
type DiskSpaceCheckerFunc func(ctx context.Context, dir string, need int64) error

// Check calls f.
func (f DiskSpaceCheckerFunc) Check(ctx context.Context, dir string, need int64) error {
	return f(ctx, dir, need)
}

// FreeSpaceChecker compares need against the free space of the filesystem
// holding dir.
type FreeSpaceChecker struct{}

// Check returns ErrInsufficientDiskSpace when need exceeds 90% of the free
// space. Errors reading usage are not fatal: the extraction itself will
// report a full disk.
func (FreeSpaceChecker) Check(ctx context.Context, dir string, need int64) error {
	existing := nearestExistingDir(dir)
	usage, err := disk.UsageWithContext(ctx, existing)
	if err != nil {
		return nil
	}

	usable := uint64(float64(usage.Free) * usableFreeRatio)
	if need > 0 && uint64(need) > usable {
		return NewExtractError(ErrInsufficientDiskSpace,
			fmt.Sprintf("need about %s, %s available", humanize.IBytes(uint64(need)), humanize.IBytes(usable)),
			dir, nil)
	}
	return nil
}

// estimateExtractedSize is the space reserved for extracting an archive.
func estimateExtractedSize(archiveSize int64) int64 {
	return archiveSize * diskSpaceFactor
}

func nearestExistingDir(dir string) string {
	dir = absPath(dir)
	for {
		if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
