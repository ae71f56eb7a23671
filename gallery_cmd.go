package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var flagGalleryJSON bool

func newGalleryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "List the shared folder's media, newest first",
		Args:  cobra.NoArgs,
		RunE:  runGallery,
	}

	cmd.Flags().BoolVar(&flagGalleryJSON, "json", false, "output in JSON format")

	return cmd
}

func runGallery(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	api := relayClient(logger)

	items, err := api.Gallery(cmd.Context())
	if err != nil {
		return err
	}

	if flagGalleryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(items)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	for _, item := range items {
		kind := "photo"
		if item.IsVideo {
			kind = "video"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			formatTime(item.CreatedAt), kind, formatSize(item.Size), item.Name)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	statusf("%d items\n", len(items))

	return nil
}
