package autoextract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writingExtractor writes files into the staging directory and accepts only
// the given password.
func writingExtractor(password string, files map[string]string, seen *[]string) ExtractorFunc {
	return func(ctx context.Context, req ExtractRequest) (*ExtractOutcome, error) {
		if seen != nil {
			*seen = append(*seen, req.Password)
		}
		if req.Password != password {
			// leave debris behind like a real decoder would
			_ = os.WriteFile(filepath.Join(req.DestDir, "partial"), []byte("x"), 0o644)
			return nil, NewExtractError(ErrWrongPassword, "bad password", req.ArchivePath, nil)
		}
		outcome := &ExtractOutcome{}
		for name, content := range files {
			if req.Exclude[name] {
				continue
			}
			path := filepath.Join(req.DestDir, filepath.FromSlash(name))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return nil, err
			}
			outcome.Written = append(outcome.Written, name)
		}
		return outcome, nil
	}
}

func newTestExecutor(extractor Extractor, timeout time.Duration) *Executor {
	return NewExecutor(extractor, NewEntryFilter(DefaultExcludeExtensions), nil, nil, timeout, zerolog.Nop())
}

func TestExecutorTriesPasswordsInOrder(t *testing.T) {
	dest := t.TempDir()
	var seen []string
	exec := newTestExecutor(writingExtractor("second", map[string]string{"a.bin": "a"}, &seen), time.Minute)

	res, err := exec.Run(t.Context(), ExecuteRequest{
		ArchivePath: "/in/a.zip",
		DestDir:     dest,
		Passwords:   []string{"first", "second", "third"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, seen)
	assert.Equal(t, "second", res.PasswordUsed)
	assert.Equal(t, []string{"a.bin"}, res.Written)
	assert.True(t, strings.HasPrefix(filepath.Base(res.StagingDir), StagingPrefix))
	assert.Equal(t, dest, filepath.Dir(res.StagingDir))
	assert.NoFileExists(t, filepath.Join(res.StagingDir, "partial"), "failed attempts are wiped")
	assert.FileExists(t, filepath.Join(res.StagingDir, "a.bin"))
}

func TestExecutorNoPasswordIsTriedLast(t *testing.T) {
	var seen []string
	exec := newTestExecutor(writingExtractor("", map[string]string{"a.bin": "a"}, &seen), time.Minute)

	res, err := exec.Run(t.Context(), ExecuteRequest{ArchivePath: "/in/a.zip", DestDir: t.TempDir(), Passwords: []string{"x", "", "y"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", ""}, seen)
	assert.Empty(t, res.PasswordUsed)
}

func TestExecutorAllPasswordsRejected(t *testing.T) {
	dest := t.TempDir()
	exec := newTestExecutor(writingExtractor("secret", nil, nil), time.Minute)

	_, err := exec.Run(t.Context(), ExecuteRequest{ArchivePath: "/in/a.zip", DestDir: dest, Passwords: []string{"a", "b"}})
	assert.True(t, IsErrorType(err, ErrWrongPassword))

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries, "no staging directory survives")
}

func TestExecutorStopsOnNonPasswordError(t *testing.T) {
	calls := 0
	exec := newTestExecutor(ExtractorFunc(func(ctx context.Context, req ExtractRequest) (*ExtractOutcome, error) {
		calls++
		return nil, NewExtractError(ErrArchiveCorrupt, "crc", req.ArchivePath, nil)
	}), time.Minute)

	_, err := exec.Run(t.Context(), ExecuteRequest{ArchivePath: "/in/a.zip", DestDir: t.TempDir(), Passwords: []string{"a", "b"}})
	assert.True(t, IsErrorType(err, ErrArchiveCorrupt))
	assert.Equal(t, 1, calls)
}

func TestExecutorTimeoutIsCorrupt(t *testing.T) {
	exec := newTestExecutor(ExtractorFunc(func(ctx context.Context, req ExtractRequest) (*ExtractOutcome, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), 20*time.Millisecond)

	_, err := exec.Run(t.Context(), ExecuteRequest{ArchivePath: "/in/a.zip", DestDir: t.TempDir()})
	assert.True(t, IsErrorType(err, ErrArchiveCorrupt))
	assert.Contains(t, err.Error(), "timed out")
}

func TestExecutorAttemptIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	exec := newTestExecutor(ExtractorFunc(func(attemptCtx context.Context, req ExtractRequest) (*ExtractOutcome, error) {
		cancel()
		if attemptCtx.Err() != nil {
			return nil, attemptCtx.Err()
		}
		require.NoError(t, os.WriteFile(filepath.Join(req.DestDir, "a.bin"), nil, 0o644))
		return &ExtractOutcome{Written: []string{"a.bin"}}, nil
	}), time.Minute)

	res, err := exec.Run(ctx, ExecuteRequest{ArchivePath: "/in/a.zip", DestDir: t.TempDir()})
	require.NoError(t, err, "a running attempt completes")
	assert.Equal(t, []string{"a.bin"}, res.Written)
}

func TestExecutorSweepsExcludedFiles(t *testing.T) {
	files := map[string]string{"a.jpg": "a", "readme.txt": "junk", "notes.nfo": "junk"}
	exec := newTestExecutor(ExtractorFunc(func(ctx context.Context, req ExtractRequest) (*ExtractOutcome, error) {
		// ignores the exclusion list, like an external tool
		outcome := &ExtractOutcome{}
		for name, content := range files {
			require.NoError(t, os.WriteFile(filepath.Join(req.DestDir, name), []byte(content), 0o644))
			outcome.Written = append(outcome.Written, name)
		}
		return outcome, nil
	}), time.Minute)

	res, err := exec.Run(t.Context(), ExecuteRequest{
		ArchivePath: "/in/a.zip",
		DestDir:     t.TempDir(),
		Exclude:     map[string]bool{"readme.txt": true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.jpg"}, res.Written)
	assert.Equal(t, 1, res.Filtered, "readme.txt was already counted by the caller")
	assert.NoFileExists(t, filepath.Join(res.StagingDir, "readme.txt"))
	assert.NoFileExists(t, filepath.Join(res.StagingDir, "notes.nfo"))
}

func TestExecutorDiskSpaceCheck(t *testing.T) {
	var need int64
	called := false
	exec := NewExecutor(
		ExtractorFunc(func(context.Context, ExtractRequest) (*ExtractOutcome, error) {
			called = true
			return &ExtractOutcome{}, nil
		}),
		nil, nil,
		DiskSpaceCheckerFunc(func(_ context.Context, _ string, n int64) error {
			need = n
			return NewExtractError(ErrInsufficientDiskSpace, "full", "/out", nil)
		}),
		time.Minute, zerolog.Nop())

	_, err := exec.Run(t.Context(), ExecuteRequest{ArchivePath: "/in/a.zip", ArchiveSize: 100, DestDir: t.TempDir()})
	assert.True(t, IsErrorType(err, ErrInsufficientDiskSpace))
	assert.Equal(t, int64(300), need)
	assert.False(t, called)
}

func TestExecutorPathLengthPreCheck(t *testing.T) {
	called := false
	exec := NewExecutor(
		ExtractorFunc(func(context.Context, ExtractRequest) (*ExtractOutcome, error) {
			called = true
			return &ExtractOutcome{}, nil
		}),
		nil, NewSecurityValidatorWithLimit(40), nil, time.Minute, zerolog.Nop())

	_, err := exec.Run(t.Context(), ExecuteRequest{
		ArchivePath: "/in/a.zip",
		DestDir:     "/out/dest",
		Entries:     []string{"ok.bin", strings.Repeat("long", 20) + ".bin"},
	})
	assert.True(t, IsErrorType(err, ErrDestinationPathTooLong))
	assert.False(t, called)
}

func TestExecutorPathLengthCountsStagingDir(t *testing.T) {
	called := false
	exec := NewExecutor(
		ExtractorFunc(func(context.Context, ExtractRequest) (*ExtractOutcome, error) {
			called = true
			return &ExtractOutcome{}, nil
		}),
		nil, NewSecurityValidatorWithLimit(20), nil, time.Minute, zerolog.Nop())

	// "/out/dest/ok.bin" fits, "/out/dest/.ax-xxxxxxxx/ok.bin" does not
	_, err := exec.Run(t.Context(), ExecuteRequest{
		ArchivePath: "/in/a.zip",
		DestDir:     "/out/dest",
		Entries:     []string{"ok.bin"},
	})
	assert.True(t, IsErrorType(err, ErrDestinationPathTooLong))
	assert.False(t, called)
}

func TestExecutorDiskFullMidExtraction(t *testing.T) {
	dest := t.TempDir()
	exec := newTestExecutor(ExtractorFunc(func(ctx context.Context, req ExtractRequest) (*ExtractOutcome, error) {
		require.NoError(t, os.WriteFile(filepath.Join(req.DestDir, "a.bin"), []byte("complete"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(req.DestDir, "b.bin"), []byte("trunc"), 0o644))
		return nil, NewExtractError(ErrInsufficientDiskSpace, "no space left on device", req.ArchivePath, nil)
	}), time.Minute)

	_, err := exec.Run(t.Context(), ExecuteRequest{ArchivePath: "/in/a.zip", DestDir: dest, Passwords: []string{"a", "b"}})
	assert.True(t, IsErrorType(err, ErrInsufficientDiskSpace))

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial files are removed")
}

func TestExecutorFolderBudget(t *testing.T) {
	exec := NewExecutor(nil, nil, NewSecurityValidatorWithLimit(60), nil, time.Minute, zerolog.Nop())

	// "/out/" + folder + "/.ax-xxxxxxxx/" + "dir/long.bin"
	budget := exec.folderBudget("/out", []string{"a", "dir/", "dir/long.bin"})
	assert.Equal(t, 60-len("/out")-2-stagingNameLength-1-len("dir/long.bin"), budget)
}

func TestFreeSpaceChecker(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, FreeSpaceChecker{}.Check(t.Context(), filepath.Join(dir, "not", "yet"), 1))

	err := FreeSpaceChecker{}.Check(t.Context(), dir, 1<<62)
	assert.True(t, IsErrorType(err, ErrInsufficientDiskSpace))
}
