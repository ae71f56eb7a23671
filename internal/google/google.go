// Package google talks to the two external media sources: the Drive v3
// files API and the Photos Picker API. Requests are authenticated with
// a caller-supplied bearer token — this side of the system never holds
// Google credentials of its own.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Production API endpoints.
const (
	DefaultDriveBaseURL  = "https://www.googleapis.com/drive/v3"
	DefaultPickerBaseURL = "https://photospicker.googleapis.com/v1"
)

// ErrDownload is the sentinel for failed source-object downloads.
var ErrDownload = errors.New("google: download failed")

// DownloadError carries the source API's status and response body.
type DownloadError struct {
	StatusCode int
	Message    string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("google: download returned HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *DownloadError) Unwrap() error { return ErrDownload }

// PickerSession is the picker API's session object, as the CLI consumes
// it. The relay proxies the raw JSON through untouched.
type PickerSession struct {
	ID            string `json:"id"`
	PickerURI     string `json:"pickerUri"`
	MediaItemsSet bool   `json:"mediaItemsSet"`
}

// PickedItem is one selected entry from a finalized picker session.
type PickedItem struct {
	ID        string           `json:"id"`
	MediaFile *PickedMediaFile `json:"mediaFile"`
}

// PickedMediaFile carries the fields needed to download the selection.
type PickedMediaFile struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	BaseURL  string `json:"baseUrl"`
}

// PickedItemsPage is the picker API's mediaItems listing shape.
type PickedItemsPage struct {
	MediaItems []PickedItem `json:"mediaItems"`
}

// Client issues requests against the Drive and Picker APIs.
type Client struct {
	driveBaseURL  string
	pickerBaseURL string
	httpClient    *http.Client
	logger        *slog.Logger
}

// New creates a Client. Empty base URLs select the production endpoints.
func New(driveBaseURL, pickerBaseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if driveBaseURL == "" {
		driveBaseURL = DefaultDriveBaseURL
	}

	if pickerBaseURL == "" {
		pickerBaseURL = DefaultPickerBaseURL
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		driveBaseURL:  driveBaseURL,
		pickerBaseURL: pickerBaseURL,
		httpClient:    httpClient,
		logger:        logger,
	}
}

// DownloadDriveFile fetches a Drive file's full content into memory.
// Objects are bounded by the same size cap as direct uploads, so the
// buffer stays modest; holding the whole payload also keeps the relay's
// two provider sessions (source and destination) fully independent.
func (c *Client) DownloadDriveFile(ctx context.Context, fileID, accessToken string) ([]byte, error) {
	url := fmt.Sprintf("%s/files/%s?alt=media", c.driveBaseURL, fileID)

	c.logger.Info("downloading drive file",
		slog.String("file_id", fileID),
	)

	return c.download(ctx, url, accessToken)
}

// DownloadPhoto fetches a Photos media item's bytes via its baseUrl.
// The "=d" suffix (or "&d" when the URL already carries parameters)
// requests the original bytes instead of a preview rendition.
func (c *Client) DownloadPhoto(ctx context.Context, baseURL, accessToken string) ([]byte, error) {
	url := baseURL + "=d"
	if strings.Contains(baseURL, "?") {
		url = baseURL + "&d"
	}

	c.logger.Info("downloading photos media item")

	return c.download(ctx, url, accessToken)
}

func (c *Client) download(ctx context.Context, url, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("google: creating download request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message
		c.logger.Error("source download failed",
			slog.Int("status", resp.StatusCode),
		)

		return nil, &DownloadError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google: reading download body: %w", err)
	}

	c.logger.Debug("source download complete",
		slog.Int("bytes", len(data)),
	)

	return data, nil
}

// CreatePickerSession opens a picker session. The raw status and body
// are returned for verbatim proxying to the browser client.
func (c *Client) CreatePickerSession(ctx context.Context, accessToken string) (int, []byte, error) {
	return c.pickerRequest(ctx, http.MethodPost, c.pickerBaseURL+"/sessions", accessToken, strings.NewReader("{}"))
}

// GetPickerSession fetches a picker session's current status.
func (c *Client) GetPickerSession(ctx context.Context, sessionID, accessToken string) (int, []byte, error) {
	return c.pickerRequest(ctx, http.MethodGet, c.pickerBaseURL+"/sessions/"+sessionID, accessToken, nil)
}

// ListPickerItems fetches the finalized selections of a picker session.
func (c *Client) ListPickerItems(ctx context.Context, sessionID, accessToken string) (int, []byte, error) {
	return c.pickerRequest(ctx, http.MethodGet, c.pickerBaseURL+"/sessions/"+sessionID+"/mediaItems", accessToken, nil)
}

func (c *Client) pickerRequest(
	ctx context.Context, method, url, accessToken string, body io.Reader,
) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("google: creating picker request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("google: picker request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("google: reading picker response: %w", err)
	}

	c.logger.Debug("picker response",
		slog.String("method", method),
		slog.Int("status", resp.StatusCode),
	)

	return resp.StatusCode, data, nil
}

// ParseSession decodes a picker session object, from either the picker
// API directly or the relay's passthrough.
func ParseSession(data []byte) (*PickerSession, error) {
	var s PickerSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("google: decoding picker session: %w", err)
	}

	return &s, nil
}

// ParseItems decodes a finalized picker selection list.
func ParseItems(data []byte) ([]PickedItem, error) {
	var page PickedItemsPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("google: decoding picker items: %w", err)
	}

	return page.MediaItems, nil
}
