// Package watch finds complete archives in a download directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/Fyun48/autoextract"
)

// inProgressSuffixes mark files a browser or downloader is still writing.
var inProgressSuffixes = []string{".part", ".crdownload", ".download", ".partial", ".tmp"}

type stamp struct {
	size    int64
	modTime time.Time
}

// Watcher reports archives in a directory that look fully written.
type Watcher struct {
	dir      string
	interval time.Duration
	settle   time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu   sync.Mutex
	done map[string]stamp
}

// New creates a Watcher over dir. Files must be unmodified for settle before
// they are reported; dir is rescanned every interval.
func New(dir string, interval, settle time.Duration, logger zerolog.Logger) *Watcher {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Watcher{
		dir:      dir,
		interval: interval,
		settle:   settle,
		logger:   logger.With().Str("component", "watcher").Logger(),
		now:      time.Now,
		done:     make(map[string]stamp),
	}
}

// MarkDone remembers an archive that was extracted but left on disk, so it
// is not reported again until it changes. Paths outside the watched
// directory are ignored.
func (w *Watcher) MarkDone(path string) {
	if filepath.Dir(path) != w.dir {
		return
	}
	stat, err := os.Stat(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done[path] = stamp{size: stat.Size(), modTime: stat.ModTime()}
}

// Sink remembers every nested archive the pipeline finds. A nested archive
// extracted straight into the watched directory and left there, at the depth
// limit or after a failure, is then not reported as a new arrival.
func (w *Watcher) Sink() autoextract.Sink {
	return autoextract.SinkFunc(func(e autoextract.Event) {
		if e.Type == autoextract.EventNestedFound && e.File != "" {
			w.MarkDone(e.File)
		}
	})
}

// Scan lists the complete archives in the directory, sorted.
func (w *Watcher) Scan() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read watch directory: %w", err)
	}

	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = true
	}

	var ready []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || autoextract.IsHiddenFile(name) || !autoextract.IsArchiveName(name) {
			continue
		}
		path := filepath.Join(w.dir, name)
		if w.isDone(path) {
			continue
		}
		if ok, reason := w.complete(path, names); !ok {
			w.logger.Trace().Str("archive", path).Str("reason", reason).Msg("Not ready")
			continue
		}
		ready = append(ready, path)
	}
	sort.Strings(ready)
	return ready, nil
}

func (w *Watcher) isDone(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.done[path]
	if !ok {
		return false
	}
	stat, err := os.Stat(path)
	if err != nil || stat.Size() != s.size || !stat.ModTime().Equal(s.modTime) {
		delete(w.done, path)
		return false
	}
	return true
}

// complete checks every volume of the archive: no download marker beside
// it, settled, and openable.
func (w *Watcher) complete(path string, names map[string]bool) (bool, string) {
	volumes, err := autoextract.VolumeSet(path)
	if err != nil {
		return false, err.Error()
	}
	for _, volume := range volumes {
		base := filepath.Base(volume)
		for _, suffix := range inProgressSuffixes {
			if names[base+suffix] {
				return false, "download in progress"
			}
		}
		stat, err := os.Stat(volume)
		if err != nil {
			return false, err.Error()
		}
		if w.now().Sub(stat.ModTime()) < w.settle {
			return false, "recently modified"
		}
		f, err := os.Open(volume)
		if err != nil {
			return false, "cannot open"
		}
		f.Close()
	}
	return true, ""
}

// Run scans on start, every interval and shortly after filesystem events,
// passing each ready archive to submit, until ctx is done.
func (w *Watcher) Run(ctx context.Context, submit func(path string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// fires once the files behind the latest event should have settled
	settled := time.NewTimer(time.Hour)
	settled.Stop()
	defer settled.Stop()

	scan := func() {
		ready, err := w.Scan()
		if err != nil {
			w.logger.Warn().Err(err).Msg("Scan failed")
			return
		}
		for _, path := range ready {
			submit(path)
		}
	}

	w.logger.Info().Str("dir", w.dir).Dur("interval", w.interval).Msg("Watching")
	scan()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scan()
		case <-settled.C:
			scan()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				if strings.HasPrefix(filepath.Base(event.Name), autoextract.StagingPrefix) {
					continue
				}
				settled.Reset(w.settle + time.Second)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}
