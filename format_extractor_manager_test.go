package autoextract

import (
	"archive/tar"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeExtractorZip(t *testing.T) {
	dir := t.TempDir()
	archive := buildZip(t, filepath.Join(dir, "a.zip"),
		entry{"docs/", ""},
		entry{"docs/guide.pdf", "pdf"},
		entry{"readme.txt", "junk"},
		entry{"../escape.txt", "evil"},
	)
	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))

	outcome, err := NewNativeExtractor(zerolog.Nop()).Extract(t.Context(), ExtractRequest{
		ArchivePath: archive,
		DestDir:     dest,
		Exclude:     map[string]bool{"readme.txt": true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"docs/guide.pdf"}, outcome.Written)
	assert.Equal(t, "pdf", readFile(t, filepath.Join(dest, "docs", "guide.pdf")))
	assert.NoFileExists(t, filepath.Join(dest, "readme.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"), "traversal entries are skipped")
}

func TestNativeExtractorEncryptedZip(t *testing.T) {
	dir := t.TempDir()
	archive := buildEncryptedZip(t, filepath.Join(dir, "secret.zip"), "hunter2", entry{"plans.doc", "top secret"})
	native := NewNativeExtractor(zerolog.Nop())

	_, err := native.Extract(t.Context(), ExtractRequest{ArchivePath: archive, DestDir: t.TempDir()})
	assert.True(t, IsErrorType(err, ErrWrongPassword), "no password: %v", err)

	_, err = native.Extract(t.Context(), ExtractRequest{ArchivePath: archive, DestDir: t.TempDir(), Password: "wrong"})
	assert.True(t, IsErrorType(err, ErrWrongPassword), "wrong password: %v", err)

	dest := t.TempDir()
	outcome, err := native.Extract(t.Context(), ExtractRequest{ArchivePath: archive, DestDir: dest, Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"plans.doc"}, outcome.Written)
	assert.Equal(t, "top secret", readFile(t, filepath.Join(dest, "plans.doc")))
}

func TestNativeExtractorTarFamily(t *testing.T) {
	for _, name := range []string{"a.tar", "a.tar.gz", "a.tar.xz", "a.tar.zst"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			archive := buildTar(t, filepath.Join(dir, name),
				entry{"pkg/", ""},
				entry{"pkg/bin/tool", "binary"},
				entry{"pkg/notes.nfo", "junk"},
			)
			dest := t.TempDir()

			outcome, err := NewNativeExtractor(zerolog.Nop()).Extract(t.Context(), ExtractRequest{
				ArchivePath: archive,
				DestDir:     dest,
				Exclude:     map[string]bool{"pkg/notes.nfo": true},
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"pkg/bin/tool"}, outcome.Written)
			assert.Equal(t, "binary", readFile(t, filepath.Join(dest, "pkg", "bin", "tool")))
		})
	}
}

func TestNativeExtractorTarSkipsLinks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "links.tar")
	f, err := os.Create(path)
	require.NoError(t, err)
	tw := tar.NewWriter(f)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "file", Typeflag: tar.TypeReg, Mode: 0o644, Size: 1}))
	_, err = tw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, f.Close())

	dest := t.TempDir()
	outcome, err := NewNativeExtractor(zerolog.Nop()).Extract(t.Context(), ExtractRequest{ArchivePath: path, DestDir: dest})
	require.NoError(t, err)
	assert.Equal(t, []string{"file"}, outcome.Written)
	_, err = os.Lstat(filepath.Join(dest, "link"))
	assert.True(t, os.IsNotExist(err))
}

func TestNativeExtractorCancelled(t *testing.T) {
	dir := t.TempDir()
	archive := buildZip(t, filepath.Join(dir, "a.zip"), entry{"a.bin", "a"}, entry{"b.bin", "b"})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := NewNativeExtractor(zerolog.Nop()).Extract(ctx, ExtractRequest{ArchivePath: archive, DestDir: t.TempDir()})
	assert.True(t, IsErrorType(err, ErrCancelled))
}

func TestNativeExtractorUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.bin")
	require.NoError(t, os.WriteFile(path, []byte("just some bytes"), 0o644))

	_, err := NewNativeExtractor(zerolog.Nop()).Extract(t.Context(), ExtractRequest{ArchivePath: path, DestDir: t.TempDir()})
	assert.True(t, IsErrorType(err, ErrArchiveUnreadable))
}
