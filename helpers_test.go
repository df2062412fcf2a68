package autoextract

import (
	"archive/tar"
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	encryptedzip "github.com/yeka/zip"
)

// entry is one archive member; names ending in "/" are directories.
type entry struct {
	name    string
	content string
}

func buildZip(t *testing.T, path string, entries ...entry) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		if !strings.HasSuffix(e.name, "/") {
			_, err = io.WriteString(w, e.content)
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func buildEncryptedZip(t *testing.T, path, password string, entries ...entry) string {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := encryptedzip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Encrypt(e.name, password, encryptedzip.AES256Encryption)
		require.NoError(t, err)
		_, err = io.WriteString(w, e.content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

// buildTar writes a tar stream compressed according to the extension.
func buildTar(t *testing.T, path string, entries ...entry) string {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)

	var (
		w     io.Writer = f
		closers []func() error
	)
	switch {
	case strings.HasSuffix(path, ".tar.gz"):
		gz := gzip.NewWriter(f)
		w, closers = gz, append(closers, gz.Close)
	case strings.HasSuffix(path, ".tar.xz"):
		xw, err := xz.NewWriter(f)
		require.NoError(t, err)
		w, closers = xw, append(closers, xw.Close)
	case strings.HasSuffix(path, ".tar.zst"):
		zw, err := zstd.NewWriter(f)
		require.NoError(t, err)
		w, closers = zw, append(closers, zw.Close)
	}

	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.content)), Typeflag: tar.TypeReg}
		if strings.HasSuffix(e.name, "/") {
			hdr.Typeflag, hdr.Mode, hdr.Size = tar.TypeDir, 0o755, 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := io.WriteString(tw, e.content)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	for _, c := range closers {
		require.NoError(t, c())
	}
	require.NoError(t, f.Close())
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
