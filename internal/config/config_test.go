package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "paths:\n  watch_dir: /data/in\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/in", cfg.Paths.WatchDir)
	assert.Equal(t, "/data/in", cfg.Paths.ExtractDir, "extract_dir falls back to watch_dir")
	assert.Equal(t, 30*time.Second, cfg.Watch.Interval)
	assert.Equal(t, 30*time.Second, cfg.Watch.Settle)
	assert.Equal(t, 2, cfg.Watch.Workers)
	assert.Equal(t, time.Hour, cfg.Executor.Timeout)
	assert.Equal(t, BackendNative, cfg.Executor.Backend)
	assert.Equal(t, 3, cfg.Failure.MaxFailures)
	assert.True(t, cfg.Passwords.Builtin)

	assert.True(t, cfg.Extract.Nested.Enabled)
	assert.Equal(t, 3, cfg.Extract.Nested.MaxDepth)
	assert.Equal(t, "smart", cfg.Extract.Duplicate.Mode)
	assert.Equal(t, []string{".txt", ".nfo", ".url", ".htm", ".html", ".lnk"}, cfg.Extract.ExcludeExtensions)
	assert.True(t, cfg.Extract.Delete.Enabled)
	assert.True(t, cfg.Extract.Delete.Permanent)
	assert.True(t, cfg.Extract.SmartFolder.Enabled)
	assert.Equal(t, 2, cfg.Extract.SmartFolder.MinFilesForFolder)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
paths:
  watch_dir: /in
  extract_dir: /out
watch:
  interval: 5s
  workers: 4
unknown_section:
  ignored: true
passwords:
  list: [alpha, beta]
  mappings:
    forum: "p1|p2"
extract:
  nested:
    max_depth: 1
  exclude_extensions: [".TXT", ".jpg"]
  delete:
    permanent: false
  smart_folder:
    min_files_for_folder: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/out", cfg.Paths.ExtractDir)
	assert.Equal(t, 5*time.Second, cfg.Watch.Interval)
	assert.Equal(t, 4, cfg.Watch.Workers)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Passwords.List)
	assert.Equal(t, "p1|p2", cfg.Passwords.Mappings["forum"])
	assert.Equal(t, 1, cfg.Extract.Nested.MaxDepth)
	assert.True(t, cfg.Extract.Nested.Enabled, "missing keys keep defaults")
	assert.Equal(t, []string{".txt", ".jpg"}, cfg.Extract.ExcludeExtensions)
	assert.True(t, cfg.Extract.Delete.Enabled)
	assert.False(t, cfg.Extract.Delete.Permanent)
	assert.Equal(t, 3, cfg.Extract.SmartFolder.MinFilesForFolder)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
[paths]
watch_dir = "/in"

[executor]
backend = "7z"
timeout = "10m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Backend7z, cfg.Executor.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Executor.Timeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", "paths:\n  watch_dir: /in\n")
	t.Setenv("AUTOEXTRACT_WATCH__WORKERS", "8")
	t.Setenv("AUTOEXTRACT_EXTRACT__NESTED__MAX_DEPTH", "5")
	t.Setenv("AUTOEXTRACT_EXTRACT__EXCLUDE_EXTENSIONS", ".nfo,.sfv")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Watch.Workers)
	assert.Equal(t, 5, cfg.Extract.Nested.MaxDepth)
	assert.Equal(t, []string{".nfo", ".sfv"}, cfg.Extract.ExcludeExtensions)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative depth", "extract:\n  nested:\n    max_depth: -1\n"},
		{"unknown duplicate mode", "extract:\n  duplicate:\n    mode: overwrite\n"},
		{"zero workers", "watch:\n  workers: 0\n"},
		{"unknown backend", "executor:\n  backend: winrar\n"},
		{"zero min files", "extract:\n  smart_folder:\n    min_files_for_folder: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPasswordProvider(t *testing.T) {
	cfg := &Config{Passwords: PasswordsConfig{
		List:     []string{"list1"},
		Mappings: map[string]string{"forum": "mapped1|mapped2"},
	}}

	got, err := cfg.PasswordProvider().Passwords(t.Context(), "/in/forum-pack.rar")
	require.NoError(t, err)
	assert.Equal(t, []string{"mapped1", "mapped2", "list1"}, got)
}
