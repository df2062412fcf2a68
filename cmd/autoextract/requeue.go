package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Fyun48/autoextract"
)

func newRequeueCmd(g *globals) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "requeue [archive...]",
		Short: "Clear the failure count of archives so they are tried again",
		Long: `Clear the failure count of archives so they are tried again.

An archive that failed too often is abandoned and skipped by run and watch
until it is requeued. With --list the tracked failures are shown instead.`,
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(g, func(ctx context.Context, a *app) error {
			tracker := autoextract.NewFailureTracker(a.cfg.Failure.MaxFailures)
			if err := a.store.Attach(ctx, tracker, a.logger); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if list || len(args) == 0 {
				records := tracker.Snapshot()
				if len(records) == 0 {
					fmt.Fprintln(out, "No failing archives")
				}
				for _, rec := range records {
					fmt.Fprintf(out, "%-9s %d/%d %s: %s\n", rec.State(), rec.Count, tracker.MaxFailures(), rec.Identity, rec.LastReason)
				}
				return nil
			}

			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					return err
				}
				if _, ok := tracker.Record(path); !ok {
					fmt.Fprintf(out, "%s has no recorded failures\n", path)
					continue
				}
				tracker.Reset(path)
				fmt.Fprintf(out, "Requeued %s\n", path)
			}
			return nil
		})(cmd, args)
	}

	cmd.Flags().BoolVarP(&list, "list", "l", false, "list tracked failures")
	return cmd
}
