// Package gallery aggregates a paginated folder listing into the media
// view served to clients: images and videos only, one best-available
// thumbnail each, newest first.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"photorelay/internal/graph"
)

// ErrList is the sentinel wrapped by every aggregation failure.
// A failed page fetch aborts the whole listing — a silently truncated
// gallery would be worse than a visible error.
var ErrList = errors.New("gallery: listing failed")

// ListError records which page fetch broke the aggregation.
type ListError struct {
	Page int
	Err  error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("gallery: fetching page %d: %v", e.Page, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

func (e *ListError) Is(target error) bool { return target == ErrList }

// MediaItem is the client-facing view of one gallery entry, materialized
// fresh on every listing.
type MediaItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimeType"`
	IsVideo      bool      `json:"isVideo"`
	CreatedAt    time.Time `json:"createdDateTime"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	DownloadURL  string    `json:"downloadUrl"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
}

// Lister is the slice of the Graph client the aggregator walks.
type Lister interface {
	ChildrenURL(driveID, folderID string) string
	ListChildrenPage(ctx context.Context, pageURL string) (*graph.ChildrenPage, error)
}

// Aggregator lists one folder's media.
type Aggregator struct {
	lister   Lister
	driveID  string
	folderID string
	logger   *slog.Logger
}

// New creates an Aggregator over one drive folder.
func New(lister Lister, driveID, folderID string, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{
		lister:   lister,
		driveID:  driveID,
		folderID: folderID,
		logger:   logger,
	}
}

// ListMedia walks every page of the folder listing, keeps image and
// video items, resolves thumbnails, and returns the result sorted by
// creation time descending. Any page failure aborts with a ListError —
// no partial results are returned.
func (a *Aggregator) ListMedia(ctx context.Context) ([]MediaItem, error) {
	var all []graph.Item

	pageURL := a.lister.ChildrenURL(a.driveID, a.folderID)
	for page := 1; pageURL != ""; page++ {
		cp, err := a.lister.ListChildrenPage(ctx, pageURL)
		if err != nil {
			return nil, &ListError{Page: page, Err: err}
		}

		all = append(all, cp.Items...)
		pageURL = cp.NextLink
	}

	a.logger.Debug("listing complete",
		slog.Int("total_items", len(all)),
	)

	items := make([]MediaItem, 0, len(all))

	for _, it := range all {
		if !it.IsMedia() {
			continue
		}

		items = append(items, MediaItem{
			ID:           it.ID,
			Name:         it.Name,
			Size:         it.Size,
			MimeType:     it.MimeType,
			IsVideo:      it.IsVideo(),
			CreatedAt:    it.CreatedAt,
			ThumbnailURL: bestThumbnail(it),
			DownloadURL:  it.DownloadURL,
			Width:        it.Width,
			Height:       it.Height,
		})
	}

	// Newest first. The sort is stable so same-timestamp items keep
	// their listing order.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	return items, nil
}

// bestThumbnail picks large, then medium, then small — first available
// wins, else none.
func bestThumbnail(it graph.Item) string {
	switch {
	case it.ThumbLarge != "":
		return it.ThumbLarge
	case it.ThumbMedium != "":
		return it.ThumbMedium
	default:
		return it.ThumbSmall
	}
}
