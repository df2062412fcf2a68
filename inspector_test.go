package autoextract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInspector() *Inspector {
	return NewInspector(nil, NewEntryFilter(DefaultExcludeExtensions), zerolog.Nop())
}

func TestInspectScattered(t *testing.T) {
	archive := buildZip(t, filepath.Join(t.TempDir(), "bundle.zip"),
		entry{"a.jpg", "a"},
		entry{"b.jpg", "b"},
		entry{"readme.txt", "junk"},
	)

	info, err := newTestInspector().Inspect(t.Context(), archive, nil)
	require.NoError(t, err)

	assert.Equal(t, FormatZIP, info.Format)
	assert.False(t, info.RootIsSingleFolder)
	assert.Equal(t, 3, info.FileCount)
	assert.Equal(t, 2, info.FilteredCount)
	assert.False(t, info.Encrypted)
	assert.Positive(t, info.Size)
}

func TestInspectSingleFolder(t *testing.T) {
	archive := buildTar(t, filepath.Join(t.TempDir(), "pack.tar.gz"),
		entry{"pack/", ""},
		entry{"pack/a.bin", "a"},
		entry{"pack/sub/b.bin", "b"},
	)

	info, err := newTestInspector().Inspect(t.Context(), archive, nil)
	require.NoError(t, err)
	assert.True(t, info.RootIsSingleFolder)
	assert.Equal(t, "pack", info.RootFolderName)
	assert.Equal(t, FormatTARGZ, info.Format)
}

func TestRootFolder(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		single  bool
		root    string
	}{
		{"empty", nil, false, ""},
		{"implicit directory", []string{"top/a", "top/b"}, true, "top"},
		{"explicit directory", []string{"top/", "top/a"}, true, "top"},
		{"file at root", []string{"top/a", "b"}, false, ""},
		{"lone file", []string{"a"}, false, ""},
		{"two roots", []string{"x/a", "y/b"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			single, root := rootFolder(tt.entries)
			assert.Equal(t, tt.single, single)
			assert.Equal(t, tt.root, root)
		})
	}
}

func TestInspectErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.zip")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	garbage := filepath.Join(dir, "garbage.zip")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a zip"), 0o644))

	inspector := newTestInspector()

	_, err := inspector.Inspect(t.Context(), filepath.Join(dir, "missing.zip"), nil)
	assert.True(t, IsErrorType(err, ErrArchiveNotFound))

	_, err = inspector.Inspect(t.Context(), empty, nil)
	assert.True(t, IsErrorType(err, ErrArchiveUnreadable))

	_, err = inspector.Inspect(t.Context(), garbage, nil)
	assert.True(t, IsErrorType(err, ErrArchiveUnreadable))

	_, err = inspector.Inspect(t.Context(), dir, nil)
	assert.True(t, IsErrorType(err, ErrArchiveUnreadable))
}

func TestInspectEncryptedContentListsWithoutPassword(t *testing.T) {
	archive := buildEncryptedZip(t, filepath.Join(t.TempDir(), "secret.zip"), "pw", entry{"a.doc", "a"})

	info, err := newTestInspector().Inspect(t.Context(), archive, nil)
	require.NoError(t, err)
	assert.True(t, info.Encrypted)
	assert.Equal(t, []string{"a.doc"}, info.Entries)
}

// stubLister fails listings until it sees the right password.
type stubLister struct {
	password string
	tried    []string
}

func (s *stubLister) list(_ context.Context, archivePath, password string) (ArchiveFormat, *archiveListing, error) {
	s.tried = append(s.tried, password)
	if password != s.password {
		return Format7Z, nil, NewExtractError(ErrWrongPassword, "header encrypted", archivePath, nil)
	}
	return Format7Z, &archiveListing{Entries: []string{"x.bin"}, Encrypted: true}, nil
}

func TestInspectHeaderEncryptedTriesCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.7z")
	require.NoError(t, os.WriteFile(path, []byte("7z"), 0o644))

	lister := &stubLister{password: "two"}
	inspector := newTestInspector()
	inspector.lister = lister

	info, err := inspector.Inspect(t.Context(), path, []string{"one", "two", "three"})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "one", "two"}, lister.tried)
	assert.Equal(t, []string{"x.bin"}, info.Entries)

	lister = &stubLister{password: "nope"}
	inspector.lister = lister
	_, err = inspector.Inspect(t.Context(), path, []string{"one"})
	assert.True(t, IsErrorType(err, ErrWrongPassword))
}

func TestInspectCancelled(t *testing.T) {
	archive := buildZip(t, filepath.Join(t.TempDir(), "a.zip"), entry{"a", "a"})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := newTestInspector().Inspect(ctx, archive, nil)
	assert.True(t, IsErrorType(err, ErrCancelled))
}
