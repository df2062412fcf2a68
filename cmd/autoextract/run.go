package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Fyun48/autoextract"
	"github.com/Fyun48/autoextract/internal/logging"
	"github.com/Fyun48/autoextract/internal/watch"
)

type runOptions struct {
	noDelete  bool
	dest      string
	passwords []string
}

func newRunCmd(g *globals) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [archive...]",
		Short: "Extract the given archives, or everything ready in the watch directory",
		Long: `Extract the given archives and exit.

Without arguments the watch directory is scanned once and every complete
archive found there is extracted.`,
		Example: `  autoextract run ~/Downloads/bundle.zip
  autoextract run --no-delete --password secret movie.part1.rar`,
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(g, func(ctx context.Context, a *app) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runArchives(ctx, a, opts, args, cmd.OutOrStdout())
		})(cmd, args)
	}

	cmd.Flags().BoolVar(&opts.noDelete, "no-delete", false, "keep source archives after extraction")
	cmd.Flags().StringVarP(&opts.dest, "dest", "d", "", "destination directory (default is paths.extract_dir, or the archive's directory)")
	cmd.Flags().StringArrayVarP(&opts.passwords, "password", "p", nil, "password to try first (repeatable)")
	return cmd
}

func runArchives(ctx context.Context, a *app, opts *runOptions, archives []string, out io.Writer) error {
	extract := a.cfg.Extract
	if opts.noDelete {
		extract.Delete.Enabled = false
	}
	p, err := a.pipeline(ctx, extract, opts.passwords, nil)
	if err != nil {
		return err
	}

	if len(archives) == 0 {
		w := watch.New(a.cfg.Paths.WatchDir, a.cfg.Watch.Interval, a.cfg.Watch.Settle, a.logger)
		if archives, err = w.Scan(); err != nil {
			return err
		}
		if len(archives) == 0 {
			fmt.Fprintf(out, "No archives ready in %s\n", a.cfg.Paths.WatchDir)
			return nil
		}
	}

	var failed int
	for _, archive := range archives {
		if ctx.Err() != nil {
			break
		}
		dest := opts.dest
		if dest == "" {
			dest = destFor(a, archive)
		}
		start := time.Now()
		result, err := p.Process(ctx, archive, dest)
		logging.LogDuration(a.logger, start, "extract "+filepath.Base(archive))
		printResult(out, archive, result, err)
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d archives failed", failed, len(archives))
	}
	return nil
}

// destFor extracts explicit archives beside themselves unless an extract
// directory other than the watch directory is configured.
func destFor(a *app, archive string) string {
	if a.cfg.Paths.ExtractDir != "" && a.cfg.Paths.ExtractDir != a.cfg.Paths.WatchDir {
		return a.cfg.Paths.ExtractDir
	}
	return filepath.Dir(archive)
}

func printResult(out io.Writer, archive string, r *autoextract.ExtractResult, err error) {
	name := filepath.Base(archive)
	switch {
	case r == nil && err == nil:
		fmt.Fprintf(out, "-  %s: gone\n", name)
	case errors.Is(err, autoextract.ErrAbandoned):
		fmt.Fprintf(out, "-  %s: abandoned, use 'autoextract requeue' to retry\n", name)
	case r != nil && r.Cancelled:
		fmt.Fprintf(out, "!  %s: cancelled\n", name)
	case err != nil:
		fmt.Fprintf(out, "x  %s: %v\n", name, err)
	default:
		fmt.Fprintf(out, "ok %s -> %s (%d files, %d skipped, %d filtered, %s in %s)\n",
			name, r.DestPath, r.FilesExtracted, r.FilesSkipped, r.FilesFiltered,
			humanize.IBytes(uint64(r.ExtractedSize)), r.Duration().Round(time.Millisecond))
		if r.NestingTruncated {
			fmt.Fprintf(out, "   nested archives deeper than the depth limit were left in place\n")
		}
	}
}
