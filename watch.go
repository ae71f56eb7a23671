package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"photorelay/internal/client"
	"photorelay/internal/history"
)

// settleDelay is how long a file must stay unchanged before it is
// uploaded. Cameras and sync tools write media in bursts; uploading a
// half-written file would relay garbage.
const settleDelay = 2 * time.Second

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <directory>",
		Short: "Watch a directory and upload new media as it appears",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	api := relayClient(logger)

	dir := args[0]

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	ctx := shutdownContext(cmd.Context(), logger)
	ledger := openLedger(ctx, logger)

	if ledger != nil {
		defer ledger.Close()
	}

	w := &dirWatcher{
		api:     api,
		ledger:  ledger,
		logger:  logger,
		pending: make(map[string]time.Time),
	}

	statusf("watching %s\n", dir)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.consumeEvents(ctx, watcher)
	})
	g.Go(func() error {
		return w.uploadSettled(ctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// dirWatcher accumulates write events and uploads files once they stop
// changing.
type dirWatcher struct {
	api    *client.Client
	ledger *history.Store
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

func (w *dirWatcher) consumeEvents(ctx context.Context, watcher *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			if !isMediaFile(event.Name) {
				continue
			}

			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *dirWatcher) uploadSettled(ctx context.Context) error {
	ticker := time.NewTicker(settleDelay / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, path := range w.takeSettled() {
			w.uploadOne(ctx, path)
		}
	}
}

// takeSettled removes and returns paths whose last write is older than
// the settle delay.
func (w *dirWatcher) takeSettled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var settled []string

	for path, last := range w.pending {
		if time.Since(last) >= settleDelay {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}

	return settled
}

func (w *dirWatcher) uploadOne(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	name := filepath.Base(path)
	mimeType := mime.TypeByExtension(filepath.Ext(path))

	open := func() (io.ReadCloser, error) {
		return os.Open(path)
	}

	result, err := w.api.Upload(ctx, name, mimeType, info.Size(), open, nil)
	if err != nil {
		w.logger.Error("watch upload failed",
			slog.String("path", path),
			slog.Any("error", err),
		)

		return
	}

	recordUpload(ctx, w.ledger, w.logger, history.Record{
		FileName: result.FileName,
		Size:     result.Size,
		WebURL:   result.WebURL,
		Source:   "watch",
	})
	statusf("uploaded %s (%s)\n", result.FileName, formatSize(result.Size))
}

func isMediaFile(path string) bool {
	mimeType := mime.TypeByExtension(filepath.Ext(path))

	return strings.HasPrefix(mimeType, "image/") || strings.HasPrefix(mimeType, "video/")
}
