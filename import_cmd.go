package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"photorelay/internal/history"
	"photorelay/internal/picker"
)

func newImportDriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-drive <file-id>...",
		Short: "Import Google Drive files into the shared folder",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImportDrive,
	}
}

func runImportDrive(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	api := relayClient(logger)

	token, err := googleAccessToken(cmd)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), logger)
	ledger := openLedger(ctx, logger)

	if ledger != nil {
		defer ledger.Close()
	}

	failed := 0

	// Transfers run one at a time; a failed file never aborts the rest
	// of the batch.
	for _, fileID := range args {
		result, err := api.ImportDrive(ctx, fileID, "", "", token)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			failed++

			fmt.Fprintf(os.Stderr, "failed %s: %v\n", fileID, err)

			continue
		}

		recordUpload(ctx, ledger, logger, history.Record{
			FileName: result.FileName,
			Size:     result.Size,
			WebURL:   result.WebURL,
			Source:   result.Source,
		})
		statusf("imported %s (%s)\n", result.FileName, formatSize(result.Size))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d imports failed", failed, len(args))
	}

	return nil
}

func newImportPhotosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-photos",
		Short: "Pick Google Photos items in the browser and import them",
		Args:  cobra.NoArgs,
		RunE:  runImportPhotos,
	}
}

func runImportPhotos(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	api := relayClient(logger)

	token, err := googleAccessToken(cmd)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), logger)

	session, err := api.CreatePhotosSession(ctx, token)
	if err != nil {
		return fmt.Errorf("creating picker session: %w", err)
	}

	statusf("Select photos in the browser window, then wait here.\n")

	if openErr := openBrowser(session.PickerURI); openErr != nil {
		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", session.PickerURI)
	}

	poller := picker.NewPoller(func(ctx context.Context) (bool, error) {
		s, err := api.GetPhotosSession(ctx, session.ID, token)
		if err != nil {
			return false, err
		}

		return s.MediaItemsSet, nil
	}, nil, logger)

	state, err := poller.Wait(ctx)
	if err != nil {
		return err
	}

	switch state {
	case picker.StateAbandoned:
		statusf("Picker window closed without a selection.\n")
		return nil
	case picker.StateTimedOut:
		statusf("Picker session timed out without a selection.\n")
		return nil
	case picker.StateResolved:
	default:
		return fmt.Errorf("unexpected picker state %q", state)
	}

	items, err := api.ListPhotosSessionItems(ctx, session.ID, token)
	if err != nil {
		return fmt.Errorf("listing picked items: %w", err)
	}

	if len(items) == 0 {
		statusf("No items selected.\n")
		return nil
	}

	ledger := openLedger(ctx, logger)

	if ledger != nil {
		defer ledger.Close()
	}

	failed := 0

	for _, item := range items {
		name, mimeType, baseURL := "", "", ""
		if item.MediaFile != nil {
			name = item.MediaFile.Filename
			mimeType = item.MediaFile.MimeType
			baseURL = item.MediaFile.BaseURL
		}

		result, err := api.ImportPhoto(ctx, item.ID, name, mimeType, baseURL, token)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			failed++

			fmt.Fprintf(os.Stderr, "failed %s: %v\n", item.ID, err)

			continue
		}

		recordUpload(ctx, ledger, logger, history.Record{
			FileName: result.FileName,
			Size:     result.Size,
			WebURL:   result.WebURL,
			Source:   result.Source,
		})
		statusf("imported %s (%s)\n", result.FileName, formatSize(result.Size))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d imports failed", failed, len(items))
	}

	return nil
}
