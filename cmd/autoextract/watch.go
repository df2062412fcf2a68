package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Fyun48/autoextract"
	"github.com/Fyun48/autoextract/internal/watch"
)

func newWatchCmd(g *globals) *cobra.Command {
	var (
		once     bool
		noDelete bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the download directory and extract archives as they complete",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(g, func(ctx context.Context, a *app) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watchDir(ctx, a, once, noDelete, cmd.OutOrStdout())
		})(cmd, args)
	}

	cmd.Flags().BoolVar(&once, "once", false, "scan once, wait for the extractions and exit")
	cmd.Flags().BoolVar(&noDelete, "no-delete", false, "keep source archives after extraction")
	return cmd
}

func watchDir(ctx context.Context, a *app, once, noDelete bool, out io.Writer) error {
	extract := a.cfg.Extract
	if noDelete {
		extract.Delete.Enabled = false
	}
	w := watch.New(a.cfg.Paths.WatchDir, a.cfg.Watch.Interval, a.cfg.Watch.Settle, a.logger)
	// nested archives left in the watch directory are not new arrivals
	p, err := a.pipeline(ctx, extract, nil, w.Sink())
	if err != nil {
		return err
	}

	var mu sync.Mutex
	onResult := func(archive string, r *autoextract.ExtractResult, err error) {
		mu.Lock()
		printResult(out, archive, r, err)
		mu.Unlock()
		// archives left on disk are not picked up again until they change
		if err == nil && r != nil && !r.Cancelled && !extract.Delete.Enabled {
			w.MarkDone(archive)
		}
	}
	pool := autoextract.NewPool(p, a.cfg.Paths.ExtractDir, a.cfg.Watch.Workers, onResult, a.logger)
	defer pool.Wait()

	if once {
		ready, err := w.Scan()
		if err != nil {
			return err
		}
		for _, archive := range ready {
			pool.Submit(ctx, archive)
		}
		if len(ready) == 0 {
			fmt.Fprintf(out, "No archives ready in %s\n", a.cfg.Paths.WatchDir)
		}
		return nil
	}

	return w.Run(ctx, func(archive string) {
		if p.Tracker().ShouldAttempt(archive) {
			pool.Submit(ctx, archive)
		}
	})
}
