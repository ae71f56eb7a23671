package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photorelay/internal/config"
	"photorelay/internal/engine"
	"photorelay/internal/gallery"
	"photorelay/internal/graph"
)

// fakeUploader records uploads and returns a canned item.
type fakeUploader struct {
	calls int
	name  string
	mime  string
	size  int64
	body  []byte
	fail  error
}

func (f *fakeUploader) Upload(
	_ context.Context, r io.Reader, name, mimeType string, size int64, _ engine.ProgressFunc,
) (*graph.Item, error) {
	f.calls++

	if f.fail != nil {
		return nil, f.fail
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	f.name = name
	f.mime = mimeType
	f.size = size
	f.body = body

	return &graph.Item{Name: name, Size: size, WebURL: "https://web/" + name}, nil
}

type fakeLister struct {
	calls int
	items []gallery.MediaItem
	fail  error
}

func (f *fakeLister) ListMedia(context.Context) ([]gallery.MediaItem, error) {
	f.calls++

	if f.fail != nil {
		return nil, f.fail
	}

	return f.items, nil
}

// fakeSource serves canned Google downloads and picker responses.
type fakeSource struct {
	driveCalls  int
	photoCalls  int
	driveData   []byte
	photoData   []byte
	driveFail   error
	photoFail   error
	proxyStatus int
	proxyBody   []byte
	proxyErr    error
}

func (f *fakeSource) DownloadDriveFile(_ context.Context, _, _ string) ([]byte, error) {
	f.driveCalls++

	if f.driveFail != nil {
		return nil, f.driveFail
	}

	return f.driveData, nil
}

func (f *fakeSource) DownloadPhoto(_ context.Context, _, _ string) ([]byte, error) {
	f.photoCalls++

	if f.photoFail != nil {
		return nil, f.photoFail
	}

	return f.photoData, nil
}

func (f *fakeSource) CreatePickerSession(context.Context, string) (int, []byte, error) {
	return f.proxyStatus, f.proxyBody, f.proxyErr
}

func (f *fakeSource) GetPickerSession(context.Context, string, string) (int, []byte, error) {
	return f.proxyStatus, f.proxyBody, f.proxyErr
}

func (f *fakeSource) ListPickerItems(context.Context, string, string) (int, []byte, error) {
	return f.proxyStatus, f.proxyBody, f.proxyErr
}

func testConfig() *config.Relay {
	return &config.Relay{
		ListenAddr:    ":0",
		SitePassword:  "secret",
		MaxFileSizeMB: 1,
		ChunkSizeMB:   5,
		CORSOrigin:    "*",
	}
}

func newTestServer(uploader *fakeUploader, lister *fakeLister, source *fakeSource) *Server {
	if uploader == nil {
		uploader = &fakeUploader{}
	}

	if lister == nil {
		lister = &fakeLister{}
	}

	if source == nil {
		source = &fakeSource{}
	}

	return New(testConfig(), uploader, lister, source, nil)
}

func multipartUpload(t *testing.T, password, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	require.NoError(t, mw.WriteField("password", password))

	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)

	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, resp["timestamp"])
}

func TestUploadSuccess(t *testing.T) {
	uploader := &fakeUploader{}
	s := newTestServer(uploader, nil, nil)

	body, contentType := multipartUpload(t, "secret", "a.jpg", "hello")

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success  bool   `json:"success"`
		FileName string `json:"fileName"`
		Size     int64  `json:"size"`
		WebURL   string `json:"webUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "a.jpg", resp.FileName)
	assert.Equal(t, "https://web/a.jpg", resp.WebURL)

	assert.Equal(t, 1, uploader.calls)
	assert.Equal(t, "hello", string(uploader.body))
}

// The gate fires before anything touches the storage provider.
func TestUploadWrongPassword(t *testing.T) {
	uploader := &fakeUploader{}
	s := newTestServer(uploader, nil, nil)

	body, contentType := multipartUpload(t, "wrong", "a.jpg", "hello")

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(s, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Password non valida"}`, rec.Body.String())
	assert.Zero(t, uploader.calls, "no provider call on auth failure")
}

func TestUploadNoFile(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("password", "secret"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := doRequest(s, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No file provided"}`, rec.Body.String())
}

func TestUploadTooLarge(t *testing.T) {
	uploader := &fakeUploader{}
	s := newTestServer(uploader, nil, nil)

	// 1 MiB cap in testConfig; a hair over must be rejected.
	big := strings.Repeat("x", 1024*1024+1)
	body, contentType := multipartUpload(t, "secret", "big.jpg", big)

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(s, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"File too large. Max size: 1MB"}`, rec.Body.String())
	assert.Zero(t, uploader.calls)
}

func TestUploadEngineFailure(t *testing.T) {
	uploader := &fakeUploader{fail: errors.New("chunk exploded")}
	s := newTestServer(uploader, nil, nil)

	body, contentType := multipartUpload(t, "secret", "a.jpg", "hello")

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(s, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Upload failed", resp["error"])
	assert.Contains(t, resp["details"], "chunk exploded")
}

func TestGallery(t *testing.T) {
	lister := &fakeLister{items: []gallery.MediaItem{
		{ID: "a", Name: "a.jpg"},
		{ID: "b", Name: "b.mp4", IsVideo: true},
	}}
	s := newTestServer(nil, lister, nil)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/gallery?password=secret", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool                `json:"success"`
		Count   int                 `json:"count"`
		Items   []gallery.MediaItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "a.jpg", resp.Items[0].Name)
}

func TestGalleryWrongPassword(t *testing.T) {
	lister := &fakeLister{}
	s := newTestServer(nil, lister, nil)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/gallery?password=nope", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Password non valida"}`, rec.Body.String())
	assert.Zero(t, lister.calls)
}

func TestGalleryListFailure(t *testing.T) {
	lister := &fakeLister{fail: errors.New("page 2 exploded")}
	s := newTestServer(nil, lister, nil)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/gallery?password=secret", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "page 2 exploded")
}

func TestUploadFromGoogle(t *testing.T) {
	uploader := &fakeUploader{}
	source := &fakeSource{driveData: []byte("drive bytes")}
	s := newTestServer(uploader, nil, source)

	payload := `{"fileId":"f1","fileName":"pic.jpg","mimeType":"image/jpeg","googleAccessToken":"g"}`

	req := httptest.NewRequest(http.MethodPost, "/upload-from-google", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "google-drive", resp["source"])

	assert.Equal(t, 1, source.driveCalls)
	assert.Equal(t, "pic.jpg", uploader.name)
	assert.Equal(t, "drive bytes", string(uploader.body))
}

// The password is checked only when the body carries one.
func TestUploadFromGooglePasswordOptional(t *testing.T) {
	source := &fakeSource{driveData: []byte("x")}
	s := newTestServer(nil, nil, source)

	noPassword := `{"fileId":"f1","googleAccessToken":"g"}`
	req := httptest.NewRequest(http.MethodPost, "/upload-from-google", strings.NewReader(noPassword))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusOK, doRequest(s, req).Code)

	wrongPassword := `{"fileId":"f1","googleAccessToken":"g","password":"nope"}`
	req = httptest.NewRequest(http.MethodPost, "/upload-from-google", strings.NewReader(wrongPassword))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusUnauthorized, doRequest(s, req).Code)
}

func TestUploadFromGoogleFallbackName(t *testing.T) {
	uploader := &fakeUploader{}
	source := &fakeSource{driveData: []byte("x")}
	s := newTestServer(uploader, nil, source)

	payload := `{"fileId":"f1","googleAccessToken":"g"}`
	req := httptest.NewRequest(http.MethodPost, "/upload-from-google", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	require.Equal(t, http.StatusOK, doRequest(s, req).Code)
	assert.Equal(t, "file_f1", uploader.name)
}

func TestUploadFromGooglePhotos(t *testing.T) {
	uploader := &fakeUploader{}
	source := &fakeSource{photoData: []byte("photo bytes")}
	s := newTestServer(uploader, nil, source)

	// No password required on this route.
	payload := `{"mediaItemId":"m1","baseUrl":"https://base/m1","googleAccessToken":"g"}`
	req := httptest.NewRequest(http.MethodPost, "/upload-from-google-photos", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "google-photos", resp["source"])

	assert.Equal(t, 1, source.photoCalls)
	assert.Equal(t, "photo_m1.jpg", uploader.name, "fallback name")
	assert.Equal(t, "image/jpeg", uploader.mime, "fallback MIME type")
}

func TestPhotosSessionProxyPassthrough(t *testing.T) {
	source := &fakeSource{proxyStatus: http.StatusOK, proxyBody: []byte(`{"id":"s1","pickerUri":"https://p/s1"}`)}
	s := newTestServer(nil, nil, source)

	req := httptest.NewRequest(http.MethodPost, "/photos-session", strings.NewReader(`{"accessToken":"g"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"s1","pickerUri":"https://p/s1"}`, rec.Body.String())
}

func TestPhotosSessionProxyPreservesStatus(t *testing.T) {
	source := &fakeSource{proxyStatus: http.StatusNotFound, proxyBody: []byte(`{"error":{"code":404}}`)}
	s := newTestServer(nil, nil, source)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/photos-session/s1?accessToken=g", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPhotosSessionItemsNonJSONUpstream(t *testing.T) {
	source := &fakeSource{proxyStatus: http.StatusBadGateway, proxyBody: []byte("<html>gateway error</html>")}
	s := newTestServer(nil, nil, source)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/photos-session/s1/items?accessToken=g", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["details"], "gateway error")
}

func TestPhotosSessionMissingToken(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/photos-session/s1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	rec := doRequest(s, httptest.NewRequest(http.MethodOptions, "/upload", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-chosen")

	rec = doRequest(s, req)
	assert.Equal(t, "client-chosen", rec.Header().Get("X-Request-ID"))
}
