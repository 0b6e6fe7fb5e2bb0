package main

import (
	"fmt"
	"io"
	"time"

	"quarry/internal/app"

	"github.com/spf13/cobra"
)

// rescanCmd refreshes sources now instead of waiting for the daemon.
func rescanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescan [source...]",
		Short: "Rescan sources and update their caches",
		Long:  `Rescan the named sources, or every cached source when none is named, and save the new snapshots.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a)

			start := time.Now()
			done, err := a.Rescan(ctx, args...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printSources(out, "Rescanned", done)
			fmt.Fprintln(out, successText(fmt.Sprintf("%d sources in %s", len(done), time.Since(start).Round(time.Millisecond))))
			return nil
		},
	}
	return cmd
}

// statsCmd reports the catalog and what has been learned.
func statsCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog and learning statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a)

			out := cmd.OutOrStdout()
			printSources(out, "Sources", a.Sources())

			st := a.Learning.Stats()
			fmt.Fprintln(out, titleText("Learning"))
			fmt.Fprintf(out, "  %d objects, %d activations, %d distinct queries\n", st.Objects, st.Hits, st.Queries)
			for _, e := range a.Learning.Top(top) {
				fmt.Fprintf(out, "  %4d  %s\n", e.Mnemonic.Count, e.Key)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of most used objects to list")
	return cmd
}

func printSources(w io.Writer, title string, infos []app.SourceInfo) {
	fmt.Fprintln(w, titleText(title))
	if len(infos) == 0 {
		fmt.Fprintln(w, dimText("  none"))
		return
	}
	for _, info := range infos {
		scanned := "from cache"
		if !info.LastScan.IsZero() {
			scanned = "scanned " + info.LastScan.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "  %-24s %6d items  %s\n", info.Name, info.Items, dimText(scanned))
	}
}
