package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"photorelay/internal/engine"
	"photorelay/internal/history"
)

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <file>...",
		Short: "Upload files through the relay",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPut,
	}
}

func runPut(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	api := relayClient(logger)

	queue := engine.NewQueue(engine.QueueConfig{
		AllowedTypes: clientCfg.Upload.AllowedTypes,
		MaxSize:      int64(clientCfg.Upload.MaxFileSizeMB) * sizeMB,
	}, logger)

	paths := make(map[*engine.Task]string, len(args))
	total := int64(0)

	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}

		mimeType := mime.TypeByExtension(filepath.Ext(path))

		task, err := queue.Add(filepath.Base(path), mimeType, info.Size(), "direct")
		if err != nil {
			return err
		}

		paths[task] = path
		total += info.Size()
	}

	ctx := shutdownContext(cmd.Context(), logger)
	bar := newProgressBar(total)
	ledger := openLedger(ctx, logger)

	if ledger != nil {
		defer ledger.Close()
	}

	err := queue.Run(ctx, func(ctx context.Context, task *engine.Task, progress engine.ProgressFunc) error {
		path := paths[task]

		open := func() (io.ReadCloser, error) {
			return os.Open(path)
		}

		result, err := api.Upload(ctx, task.Name, task.MimeType, task.Size, open, func(delta int64) {
			progress(delta)
			bar.Advance(delta)
		})
		if err != nil {
			return err
		}

		recordUpload(ctx, ledger, logger, history.Record{
			FileName: result.FileName,
			Size:     result.Size,
			WebURL:   result.WebURL,
			Source:   "direct",
		})

		return nil
	})

	bar.Finish()

	if err != nil {
		return err
	}

	failed := 0

	for _, task := range queue.Tasks() {
		switch task.Status {
		case engine.StatusSuccess:
			statusf("uploaded %s (%s)\n", task.Name, formatSize(task.Size))
		case engine.StatusError:
			failed++

			fmt.Fprintf(os.Stderr, "failed %s: %v\n", task.Name, task.Err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(queue.Tasks()))
	}

	return nil
}

// openLedger opens the upload history database. Failure is logged but
// never blocks an upload.
func openLedger(ctx context.Context, logger *slog.Logger) *history.Store {
	path, err := history.DefaultPath()
	if err != nil {
		logger.Warn("history unavailable", "error", err)
		return nil
	}

	store, err := history.Open(ctx, path, logger)
	if err != nil {
		logger.Warn("history unavailable", "error", err)
		return nil
	}

	return store
}

func recordUpload(ctx context.Context, ledger *history.Store, logger *slog.Logger, rec history.Record) {
	if ledger == nil {
		return
	}

	if err := ledger.Add(ctx, rec); err != nil {
		logger.Warn("failed to record upload", "error", err)
	}
}
