package watch

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fyun48/autoextract"
)

func touch(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("data-"+name), 0o644))
	when := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, when, when))
	return path
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	old := time.Hour

	ready := touch(t, dir, "movie.zip", old)
	touch(t, dir, "fresh.zip", 0)
	touch(t, dir, "notes.txt", old)
	touch(t, dir, ".hidden.zip", old)
	first := touch(t, dir, "set.part1.rar", old)
	touch(t, dir, "set.part2.rar", old)
	touch(t, dir, "busy.7z", old)
	touch(t, dir, "busy.7z.crdownload", 0)
	touch(t, dir, "split.rar", old)
	touch(t, dir, "split.r00", 0)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.zip"), 0o755))

	w := New(dir, time.Minute, 30*time.Second, zerolog.Nop())
	got, err := w.Scan()
	require.NoError(t, err)
	assert.Equal(t, []string{ready, first}, got)
}

func TestMarkDone(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "kept.zip", time.Hour)

	w := New(dir, time.Minute, time.Second, zerolog.Nop())
	w.MarkDone(path)

	got, err := w.Scan()
	require.NoError(t, err)
	assert.Empty(t, got)

	// a changed file is reported again
	require.NoError(t, os.WriteFile(path, []byte("new content"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))

	got, err = w.Scan()
	require.NoError(t, err)
	assert.Equal(t, []string{path}, got)
}

func TestScanMissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope"), time.Minute, 0, zerolog.Nop())
	_, err := w.Scan()
	assert.Error(t, err)
}

func TestRunSubmitsOnStart(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "a.zip", time.Hour)

	w := New(dir, time.Hour, 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var submitted []string
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(p string) {
			mu.Lock()
			submitted = append(submitted, p)
			mu.Unlock()
			cancel()
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{path}, submitted)
}

func zipOf(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestSinkHidesNestedArchivesLeftInDir(t *testing.T) {
	dir := t.TempDir()
	inner := zipOf(t, map[string][]byte{"deep.bin": []byte("deep")})
	outer := filepath.Join(dir, "outer.zip")
	require.NoError(t, os.WriteFile(outer, zipOf(t, map[string][]byte{"inner.zip": inner}), 0o644))

	w := New(dir, time.Minute, 0, zerolog.Nop())

	cfg := autoextract.DefaultExtractConfig()
	cfg.Nested.MaxDepth = 0
	p, err := autoextract.New(cfg,
		autoextract.WithSink(w.Sink()),
		autoextract.WithDiskSpaceChecker(nil),
	)
	require.NoError(t, err)

	result, err := p.Process(t.Context(), outer, dir)
	require.NoError(t, err)
	assert.True(t, result.NestingTruncated)
	assert.FileExists(t, filepath.Join(dir, "inner.zip"))

	got, err := w.Scan()
	require.NoError(t, err)
	assert.Empty(t, got, "the nested archive stays untouched")
	assert.NoFileExists(t, filepath.Join(dir, "deep.bin"))
}

func TestMarkDoneIgnoresOtherDirs(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "bundle")
	require.NoError(t, os.Mkdir(sub, 0o755))
	path := touch(t, sub, "nested.zip", time.Hour)

	w := New(dir, time.Minute, 0, zerolog.Nop())
	w.MarkDone(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Empty(t, w.done)
}
