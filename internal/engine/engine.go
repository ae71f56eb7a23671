// Package engine implements the chunked upload engine and the batch
// queue that drives it. Given a byte source of known length it either
// performs a single-shot write (small objects) or opens a resumable
// upload session and streams fixed-size chunks, reporting acknowledged
// bytes to a progress sink. The engine never retries: per-item retry
// policy belongs to its callers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"photorelay/internal/graph"
)

// DefaultChunkSize is the relay-side chunk size (5 MiB). The direct
// client uses its own, smaller progress window — the two call sites
// intentionally chunk at different granularities.
const DefaultChunkSize = 5 * 1024 * 1024

// ErrUpload is the sentinel wrapped by every engine failure.
// Use errors.Is(err, engine.ErrUpload) to check.
var ErrUpload = errors.New("engine: upload failed")

// UploadError records which object failed and why.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("engine: uploading %q: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Is reports true for ErrUpload so callers can match the class without
// knowing the concrete type.
func (e *UploadError) Is(target error) bool { return target == ErrUpload }

// ProgressFunc receives acknowledged byte counts as chunks complete.
// Callers fold the deltas into whatever progress display they keep.
type ProgressFunc func(delta int64)

// Uploader is the slice of the Graph client the engine drives.
type Uploader interface {
	SimpleUpload(ctx context.Context, driveID, folderID, name, contentType string, r io.Reader) (*graph.Item, error)
	CreateUploadSession(ctx context.Context, driveID, folderID, name string) (*graph.UploadSession, error)
	UploadChunk(ctx context.Context, session *graph.UploadSession, chunk io.Reader, offset, length, total int64) (*graph.Item, error)
}

// Engine uploads byte sources of known length into one fixed target
// folder. All target state is explicit here — nothing is cached at
// package level — so a relay can hold one engine per configuration.
type Engine struct {
	uploader  Uploader
	driveID   string
	folderID  string
	chunkSize int64
	logger    *slog.Logger
}

// New creates an Engine targeting one drive folder. chunkSize <= 0
// selects DefaultChunkSize.
func New(uploader Uploader, driveID, folderID string, chunkSize int64, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Engine{
		uploader:  uploader,
		driveID:   driveID,
		folderID:  folderID,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Upload stores size bytes from r under the sanitized name. Sources
// below graph.SmallUploadThreshold go up in one PUT; larger sources
// stream through an upload session in strictly sequential chunks.
// progress may be nil.
func (e *Engine) Upload(
	ctx context.Context, r io.Reader, name, mimeType string, size int64, progress ProgressFunc,
) (*graph.Item, error) {
	name = SanitizeFileName(name)

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if progress == nil {
		progress = func(int64) {}
	}

	if size < graph.SmallUploadThreshold {
		return e.uploadSmall(ctx, r, name, mimeType, size, progress)
	}

	return e.uploadChunked(ctx, r, name, size, progress)
}

func (e *Engine) uploadSmall(
	ctx context.Context, r io.Reader, name, mimeType string, size int64, progress ProgressFunc,
) (*graph.Item, error) {
	item, err := e.uploader.SimpleUpload(ctx, e.driveID, e.folderID, name, mimeType, r)
	if err != nil {
		return nil, &UploadError{Name: name, Err: err}
	}

	progress(size)

	return item, nil
}

func (e *Engine) uploadChunked(
	ctx context.Context, r io.Reader, name string, size int64, progress ProgressFunc,
) (*graph.Item, error) {
	session, err := e.uploader.CreateUploadSession(ctx, e.driveID, e.folderID, name)
	if err != nil {
		return nil, &UploadError{Name: name, Err: err}
	}

	var final *graph.Item

	for offset := int64(0); offset < size; {
		length := e.chunkSize
		if remaining := size - offset; remaining < length {
			length = remaining
		}

		item, chunkErr := e.uploader.UploadChunk(
			ctx, session, io.LimitReader(r, length), offset, length, size,
		)
		if chunkErr != nil {
			return nil, &UploadError{Name: name, Err: chunkErr}
		}

		offset += length
		progress(length)

		if item != nil {
			final = item
		}
	}

	if final == nil {
		return nil, &UploadError{
			Name: name,
			Err:  fmt.Errorf("final chunk response carried no item descriptor"),
		}
	}

	e.logger.Info("chunked upload complete",
		slog.String("name", final.Name),
		slog.Int64("size", size),
	)

	return final, nil
}
