package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Fyun48/autoextract"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent extractions",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(g, func(ctx context.Context, a *app) error {
			results, err := a.store.History(ctx, limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), results)
			return nil
		})(cmd, args)
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show (0 for all)")
	return cmd
}

func printHistory(out io.Writer, results []*autoextract.ExtractResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No extractions recorded")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tSTATUS\tARCHIVE\tFILES\tSIZE")
	for _, r := range results {
		archive := filepath.Base(r.ArchivePath)
		if r.NestedLevel > 0 {
			archive = strings.Repeat("  ", r.NestedLevel) + archive
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			shortID(r.ID), humanize.Time(r.FinishedAt), status(r), archive,
			r.FilesExtracted, humanize.IBytes(uint64(r.ExtractedSize)))
	}
	tw.Flush()
}

func newTreeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <id>",
		Short: "Show an extraction and its nested archives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(g, func(ctx context.Context, a *app) error {
				id, err := expandID(ctx, a, args[0])
				if err != nil {
					return err
				}
				node, err := autoextract.Tree(ctx, a.store, id)
				if err != nil {
					return err
				}
				printTree(cmd.OutOrStdout(), node, "")
				return nil
			})(cmd, args)
		},
	}
}

func printTree(out io.Writer, node *autoextract.ResultNode, indent string) {
	r := node.Result
	fmt.Fprintf(out, "%s%s [%s] -> %s (%d files)\n", indent, filepath.Base(r.ArchivePath), status(r), r.DestPath, r.FilesExtracted)
	if r.ErrorMessage != "" {
		fmt.Fprintf(out, "%s  %s: %s\n", indent, r.ErrorType, r.ErrorMessage)
	}
	for _, child := range node.Children {
		printTree(out, child, indent+"  ")
	}
}

// expandID accepts the short IDs printed by history.
func expandID(ctx context.Context, a *app, id string) (string, error) {
	if len(id) >= 36 {
		return id, nil
	}
	results, err := a.store.History(ctx, 0)
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range results {
		if strings.HasPrefix(r.ID, id) {
			if match != "" {
				return "", fmt.Errorf("id prefix %q is ambiguous", id)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", autoextract.NewExtractError(autoextract.ErrArchiveNotFound, "no such record", id, nil)
	}
	return match, nil
}

func newStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show totals over all recorded extractions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(g, func(ctx context.Context, a *app) error {
				st, err := a.store.Stats(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Extractions: %s (%s succeeded, %s failed, %s nested)\n",
					humanize.Comma(int64(st.Total)), humanize.Comma(int64(st.Succeeded)),
					humanize.Comma(int64(st.Failed)), humanize.Comma(int64(st.Nested)))
				fmt.Fprintf(out, "Files:       %s\n", humanize.Comma(int64(st.FilesExtracted)))
				fmt.Fprintf(out, "Archives:    %s\n", humanize.IBytes(uint64(st.ArchiveBytes)))
				fmt.Fprintf(out, "Extracted:   %s\n", humanize.IBytes(uint64(st.ExtractedBytes)))
				return nil
			})(cmd, args)
		},
	}
}

func status(r *autoextract.ExtractResult) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Success && r.NestingTruncated:
		return "ok (truncated)"
	case r.Success:
		return "ok"
	default:
		return "failed"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
