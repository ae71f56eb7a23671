package graph

import (
	"log/slog"
	"strings"
	"time"
)

// Item is a normalized view of a Graph driveItem. Only the fields this
// system consumes are carried; everything else in the wire shape is
// dropped at decode time.
type Item struct {
	ID          string
	Name        string
	Size        int64
	MimeType    string
	IsFolder    bool
	CreatedAt   time.Time
	WebURL      string
	DownloadURL string
	Width       int
	Height      int

	// Thumbnail URLs from the first thumbnail set, when requested
	// via $expand=thumbnails. Empty when the facet is absent.
	ThumbLarge  string
	ThumbMedium string
	ThumbSmall  string
}

// IsImage reports whether the item's declared MIME type is an image.
func (i Item) IsImage() bool { return strings.HasPrefix(i.MimeType, "image/") }

// IsVideo reports whether the item's declared MIME type is a video.
func (i Item) IsVideo() bool { return strings.HasPrefix(i.MimeType, "video/") }

// IsMedia reports whether the item is a non-folder image or video.
func (i Item) IsMedia() bool {
	return !i.IsFolder && (i.IsImage() || i.IsVideo())
}

// UploadSession is a provider-allocated resumable upload endpoint.
// It lives for the duration of one upload and is never persisted.
type UploadSession struct {
	UploadURL      string
	ExpirationTime time.Time
}

// driveItemResponse mirrors the Graph API driveItem JSON exactly.
// Unexported — callers use Item via toItem() normalization.
type driveItemResponse struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Size            int64           `json:"size"`
	CreatedDateTime string          `json:"createdDateTime"`
	WebURL          string          `json:"webUrl"`
	File            *fileFacet      `json:"file"`
	Folder          *folderFacet    `json:"folder"`
	Image           *dimensionFacet `json:"image"`
	Video           *dimensionFacet `json:"video"`
	Thumbnails      []thumbnailSet  `json:"thumbnails"`
	DownloadURL     string          `json:"@microsoft.graph.downloadUrl"` //nolint:tagliatelle // Graph API annotation key
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type dimensionFacet struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type thumbnailSet struct {
	Large  *thumbnail `json:"large"`
	Medium *thumbnail `json:"medium"`
	Small  *thumbnail `json:"small"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type childrenResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

// toItem normalizes a Graph API driveItem response into our Item type.
func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:          d.ID,
		Name:        d.Name,
		Size:        d.Size,
		IsFolder:    d.Folder != nil,
		WebURL:      d.WebURL,
		DownloadURL: d.DownloadURL,
	}

	if d.File != nil {
		item.MimeType = d.File.MimeType
	}

	// Dimensions come from whichever facet the provider populated.
	if d.Image != nil {
		item.Width, item.Height = d.Image.Width, d.Image.Height
	} else if d.Video != nil {
		item.Width, item.Height = d.Video.Width, d.Video.Height
	}

	if len(d.Thumbnails) > 0 {
		set := d.Thumbnails[0]
		if set.Large != nil {
			item.ThumbLarge = set.Large.URL
		}

		if set.Medium != nil {
			item.ThumbMedium = set.Medium.URL
		}

		if set.Small != nil {
			item.ThumbSmall = set.Small.URL
		}
	}

	item.CreatedAt = parseTimestamp(d.CreatedDateTime, d.ID, logger)

	return item
}

// parseTimestamp parses an RFC3339 timestamp. Empty or malformed values
// are logged and replaced with the zero time — the gallery sort treats
// them as oldest rather than failing the whole listing.
func parseTimestamp(raw, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid createdDateTime, using zero time",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Time{}
	}

	return t
}
