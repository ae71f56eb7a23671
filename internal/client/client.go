// Package client implements the CLI's view of a deployed relay. All
// privileged work happens relay-side; this client speaks the relay's
// JSON surface and owns the transfer retry policy for direct uploads.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"photorelay/internal/gallery"
	"photorelay/internal/google"
)

// ErrRelay is the sentinel for error responses from the relay.
var ErrRelay = errors.New("client: relay request failed")

// RelayError carries the relay's HTTP status and error message.
type RelayError struct {
	StatusCode int
	Message    string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("client: relay returned HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RelayError) Unwrap() error { return ErrRelay }

// Retryable reports whether the failure is worth another attempt.
// Server-side errors and throttling are transient; any other client
// error means the request itself is wrong and a retry cannot help.
func (e *RelayError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusTooManyRequests
}

// Upload retry policy.
const (
	uploadMaxAttempts   = 3
	uploadBackoffBase   = 1 * time.Second
	uploadBackoffFactor = 2
)

// UploadResult is the relay's response to a completed upload or import.
type UploadResult struct {
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	WebURL   string `json:"webUrl"`
	Source   string `json:"source,omitempty"`
}

// ProgressFunc receives byte deltas as upload bytes go out on the wire.
type ProgressFunc func(delta int64)

// OpenFunc reopens the upload payload for one transfer attempt.
type OpenFunc func() (io.ReadCloser, error)

// Client talks to one relay deployment.
type Client struct {
	baseURL    string
	password   string
	chunkSize  int64
	httpClient *http.Client
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a Client. chunkSize is the progress-reporting window for
// uploads; zero selects a sensible default.
func New(baseURL, password string, chunkSize int64, httpClient *http.Client, logger *slog.Logger) *Client {
	if chunkSize <= 0 {
		chunkSize = 5 * 1024 * 1024
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		password:   password,
		chunkSize:  chunkSize,
		httpClient: httpClient,
		logger:     logger,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Health checks that the relay is up.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}

	if err := c.getJSON(ctx, "/health", &resp); err != nil {
		return err
	}

	if resp.Status != "ok" {
		return fmt.Errorf("client: relay health is %q", resp.Status)
	}

	return nil
}

// Upload sends one file to the relay as a multipart POST. Transient
// relay failures are retried with exponential backoff; each attempt
// reopens the payload via open. progress never moves backwards across
// attempts — bytes re-sent by a retry are not reported again.
func (c *Client) Upload(
	ctx context.Context, name, mimeType string, size int64, open OpenFunc, progress ProgressFunc,
) (*UploadResult, error) {
	if progress == nil {
		progress = func(int64) {}
	}

	watermark := int64(0)
	backoff := uploadBackoffBase

	var lastErr error

	for attempt := 1; attempt <= uploadMaxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Warn("retrying upload",
				slog.String("name", name),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}

			backoff *= uploadBackoffFactor
		}

		result, err := c.uploadOnce(ctx, name, mimeType, size, open, progress, &watermark)
		if err == nil {
			return result, nil
		}

		lastErr = err

		var relayErr *RelayError
		if errors.As(err, &relayErr) && !relayErr.Retryable() {
			return nil, err
		}

		if ctx.Err() != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("client: upload of %s failed after %d attempts: %w", name, uploadMaxAttempts, lastErr)
}

func (c *Client) uploadOnce(
	ctx context.Context, name, mimeType string, size int64, open OpenFunc,
	progress ProgressFunc, watermark *int64,
) (*UploadResult, error) {
	src, err := open()
	if err != nil {
		return nil, fmt.Errorf("client: opening upload payload: %w", err)
	}
	defer src.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeMultipart(mw, c.password, name, mimeType, src, c.chunkSize, progress, watermark)
		if err != nil {
			pw.CloseWithError(err)
			return
		}

		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		return nil, fmt.Errorf("client: creating upload request: %w", err)
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: upload request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: reading upload response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, relayError(resp.StatusCode, body)
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("client: decoding upload response: %w", err)
	}

	if result.Size == 0 {
		result.Size = size
	}

	return &result, nil
}

// writeMultipart streams the password field and the file part,
// reporting progress one window at a time past the cross-attempt
// watermark.
func writeMultipart(
	mw *multipart.Writer, password, name, mimeType string, src io.Reader,
	window int64, progress ProgressFunc, watermark *int64,
) error {
	if err := mw.WriteField("password", password); err != nil {
		return fmt.Errorf("client: writing password field: %w", err)
	}

	part, err := createFilePart(mw, name, mimeType)
	if err != nil {
		return err
	}

	sent := int64(0)

	for {
		n, err := io.CopyN(part, src, window)
		sent += n

		if sent > *watermark {
			progress(sent - *watermark)
			*watermark = sent
		}

		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("client: streaming upload payload: %w", err)
		}
	}
}

func createFilePart(mw *multipart.Writer, name, mimeType string) (io.Writer, error) {
	if mimeType == "" {
		return mw.CreateFormFile("file", name)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("client: creating file part: %w", err)
	}

	return part, nil
}

// Gallery fetches the full media listing.
func (c *Client) Gallery(ctx context.Context) ([]gallery.MediaItem, error) {
	var resp struct {
		Success bool                `json:"success"`
		Count   int                 `json:"count"`
		Items   []gallery.MediaItem `json:"items"`
	}

	path := "/gallery?password=" + url.QueryEscape(c.password)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	return resp.Items, nil
}

// ImportDrive asks the relay to pull one Drive file into the
// destination folder. No transfer retry: the relay owns that leg.
func (c *Client) ImportDrive(ctx context.Context, fileID, fileName, mimeType, googleToken string) (*UploadResult, error) {
	body := map[string]string{
		"fileId":            fileID,
		"fileName":          fileName,
		"mimeType":          mimeType,
		"googleAccessToken": googleToken,
		"password":          c.password,
	}

	var result UploadResult
	if err := c.postJSON(ctx, "/upload-from-google", body, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ImportPhoto asks the relay to pull one Photos media item.
func (c *Client) ImportPhoto(
	ctx context.Context, mediaItemID, fileName, mimeType, baseURL, googleToken string,
) (*UploadResult, error) {
	body := map[string]string{
		"mediaItemId":       mediaItemID,
		"fileName":          fileName,
		"mimeType":          mimeType,
		"baseUrl":           baseURL,
		"googleAccessToken": googleToken,
	}

	var result UploadResult
	if err := c.postJSON(ctx, "/upload-from-google-photos", body, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// CreatePhotosSession opens a picker session through the relay proxy.
func (c *Client) CreatePhotosSession(ctx context.Context, googleToken string) (*google.PickerSession, error) {
	var session google.PickerSession

	body := map[string]string{"accessToken": googleToken}
	if err := c.postJSON(ctx, "/photos-session", body, &session); err != nil {
		return nil, err
	}

	return &session, nil
}

// GetPhotosSession polls a picker session's status through the proxy.
func (c *Client) GetPhotosSession(ctx context.Context, sessionID, googleToken string) (*google.PickerSession, error) {
	var session google.PickerSession

	path := "/photos-session/" + url.PathEscape(sessionID) + "?accessToken=" + url.QueryEscape(googleToken)
	if err := c.getJSON(ctx, path, &session); err != nil {
		return nil, err
	}

	return &session, nil
}

// ListPhotosSessionItems fetches the finalized selections.
func (c *Client) ListPhotosSessionItems(ctx context.Context, sessionID, googleToken string) ([]google.PickedItem, error) {
	var page google.PickedItemsPage

	path := "/photos-session/" + url.PathEscape(sessionID) + "/items?accessToken=" + url.QueryEscape(googleToken)
	if err := c.getJSON(ctx, path, &page); err != nil {
		return nil, err
	}

	return page.MediaItems, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("client: creating request: %w", err)
	}

	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("client: encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("client: creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: reading response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return relayError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("client: decoding response: %w", err)
	}

	return nil
}

// relayError extracts the relay's {"error": ...} message, falling back
// to a body excerpt for non-JSON responses.
func relayError(status int, body []byte) error {
	var payload struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}

	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
		if payload.Details != "" {
			msg += ": " + payload.Details
		}
	}

	if len(msg) > 300 {
		msg = msg[:300]
	}

	return &RelayError{StatusCode: status, Message: msg}
}
