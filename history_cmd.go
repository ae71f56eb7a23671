package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"photorelay/internal/history"
)

var flagHistoryLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show previously uploaded files",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 50, "maximum entries to show (0 for all)")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	path, err := history.DefaultPath()
	if err != nil {
		return err
	}

	store, err := history.Open(cmd.Context(), path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(cmd.Context(), flagHistoryLimit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		statusf("no uploads recorded\n")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			formatTime(rec.UploadedAt), rec.Source, formatSize(rec.Size), rec.FileName)
	}

	return w.Flush()
}
