package autoextract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCleanArchiveName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/in/bundle.zip", "bundle"},
		{"/in/movie.part01.rar", "movie"},
		{"/in/movie.part1.rar", "movie"},
		{"/in/movie.7z.001", "movie"},
		{"/in/movie.zip.001", "movie"},
		{"/in/backup.tar.gz", "backup"},
		{"/in/backup.tar.zst", "backup"},
		{"/in/backup.tar", "backup"},
		{"/in/backup.tgz", "backup"},
		{"/in/My Photos.ZIP", "My Photos"},
		{"/in/.zip", "extracted"},
		{"/in/v1.2.zip", "v1.2"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanArchiveName(tt.path))
		})
	}
}

func TestFolderStrategyResolve(t *testing.T) {
	smart := NewFolderStrategy(SmartFolderConfig{Enabled: true, MinFilesForFolder: 2})

	tests := []struct {
		name       string
		strategy   *FolderStrategy
		info       *ArchiveInfo
		kept       int
		wantFolder bool
		wantName   string
	}{
		{
			name:     "single folder extracts in place",
			strategy: smart,
			info:     &ArchiveInfo{Path: "/in/pack.zip", RootIsSingleFolder: true, RootFolderName: "pack"},
			kept:     5,
		},
		{
			name:       "scattered files get a folder",
			strategy:   smart,
			info:       &ArchiveInfo{Path: "/in/pack.zip"},
			kept:       2,
			wantFolder: true,
			wantName:   "pack",
		},
		{
			name:     "one kept file stays loose",
			strategy: smart,
			info:     &ArchiveInfo{Path: "/in/pack.zip"},
			kept:     1,
		},
		{
			name:     "empty archive",
			strategy: smart,
			info:     &ArchiveInfo{Path: "/in/pack.zip"},
		},
		{
			name:       "disabled always creates a folder",
			strategy:   NewFolderStrategy(SmartFolderConfig{Enabled: false, MinFilesForFolder: 2}),
			info:       &ArchiveInfo{Path: "/in/pack.part1.rar", RootIsSingleFolder: true},
			kept:       1,
			wantFolder: true,
			wantName:   "pack",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			folder, name := tt.strategy.Resolve(tt.info, tt.kept)
			assert.Equal(t, tt.wantFolder, folder)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestFolderNameSanitizes(t *testing.T) {
	s := NewFolderStrategy(SmartFolderConfig{Enabled: true, MinFilesForFolder: 2})
	assert.Equal(t, "a_b_c", s.FolderName("/in/a:b?c.zip"))
}

func TestShortenFolderName(t *testing.T) {
	s := NewFolderStrategy(SmartFolderConfig{Enabled: true, MinFilesForFolder: 2})
	long := strings.Repeat("長い名前", 20)

	tests := []struct {
		name   string
		folder string
		budget int
		want   string
		wantOK bool
	}{
		{"long name is cut to the default", long, 0, string([]rune(long)[:shortFolderNameLength]), true},
		{"budget below the default wins", long, 5, "長い名前長", true},
		{"short name still gets shorter", "short", 0, "shor", true},
		{"short name within budget", strings.Repeat("y", 20), 4, "yyyy", true},
		{"budget larger than the name", "short", 100, "shor", true},
		{"negative budget is ignored", "short", -3, "shor", true},
		{"single character cannot shrink", "x", 0, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			short, ok := s.ShortenFolderName(tt.folder, tt.budget)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, short)
			if ok {
				assert.Less(t, utf8.RuneCountInString(short), utf8.RuneCountInString(tt.folder))
			}
		})
	}
}
