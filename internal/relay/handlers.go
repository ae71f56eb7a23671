package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	contextKeyRequestID = "request_id"
	shutdownTimeout     = 10 * time.Second

	sourceGoogleDrive  = "google-drive"
	sourceGooglePhotos = "google-photos"

	// detailsExcerptLimit bounds how much of a non-JSON upstream body
	// we echo back in an error response.
	detailsExcerptLimit = 200
)

// passwordInvalidMessage is the exact string clients match on.
const passwordInvalidMessage = "Password non valida"

func (s *Server) checkPassword(c *gin.Context, password string) bool {
	if password == s.cfg.SitePassword {
		return true
	}

	s.logger.Warn("rejected request with invalid password",
		slog.String("request_id", c.GetString(contextKeyRequestID)),
		slog.String("path", c.Request.URL.Path),
	)
	c.JSON(http.StatusUnauthorized, gin.H{"error": passwordInvalidMessage})

	return false
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleUpload receives a multipart upload from the browser or CLI and
// streams it into the destination folder. The password travels as a
// form field alongside the file.
func (s *Server) handleUpload(c *gin.Context) {
	if !s.checkPassword(c, c.PostForm("password")) {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}

	if file.Size > s.cfg.MaxFileSize() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("File too large. Max size: %dMB", s.cfg.MaxFileSizeMB),
		})

		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed", "details": err.Error()})
		return
	}
	defer src.Close()

	mimeType := file.Header.Get("Content-Type")

	item, err := s.uploader.Upload(c.Request.Context(), src, file.Filename, mimeType, file.Size, nil)
	if err != nil {
		s.logger.Error("upload failed",
			slog.String("request_id", c.GetString(contextKeyRequestID)),
			slog.String("name", file.Filename),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed", "details": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"fileName": item.Name,
		"size":     item.Size,
		"webUrl":   item.WebURL,
	})
}

func (s *Server) handleGallery(c *gin.Context) {
	if !s.checkPassword(c, c.Query("password")) {
		return
	}

	items, err := s.lister.ListMedia(c.Request.Context())
	if err != nil {
		s.logger.Error("gallery listing failed",
			slog.String("request_id", c.GetString(contextKeyRequestID)),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Gallery failed", "details": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(items),
		"items":   items,
	})
}

type googleDriveImportRequest struct {
	FileID            string `json:"fileId"`
	FileName          string `json:"fileName"`
	MimeType          string `json:"mimeType"`
	GoogleAccessToken string `json:"googleAccessToken"`
	Password          string `json:"password"`
}

// handleUploadFromGoogle imports a Drive file into the destination
// folder. The password is checked only when the body carries one; the
// Google OAuth token already scopes what the caller can reach.
func (s *Server) handleUploadFromGoogle(c *gin.Context) {
	var req googleDriveImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.Password != "" && !s.checkPassword(c, req.Password) {
		return
	}

	if req.FileID == "" || req.GoogleAccessToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileId and googleAccessToken are required"})
		return
	}

	data, err := s.source.DownloadDriveFile(c.Request.Context(), req.FileID, req.GoogleAccessToken)
	if err != nil {
		s.logger.Error("drive download failed",
			slog.String("request_id", c.GetString(contextKeyRequestID)),
			slog.String("file_id", req.FileID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Download from Google Drive failed", "details": err.Error()})

		return
	}

	name := req.FileName
	if name == "" {
		name = "file_" + req.FileID
	}

	s.importDownloaded(c, data, name, req.MimeType, sourceGoogleDrive)
}

type googlePhotosImportRequest struct {
	MediaItemID       string `json:"mediaItemId"`
	FileName          string `json:"fileName"`
	MimeType          string `json:"mimeType"`
	BaseURL           string `json:"baseUrl"`
	GoogleAccessToken string `json:"googleAccessToken"`
}

func (s *Server) handleUploadFromGooglePhotos(c *gin.Context) {
	var req googlePhotosImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.BaseURL == "" || req.GoogleAccessToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "baseUrl and googleAccessToken are required"})
		return
	}

	data, err := s.source.DownloadPhoto(c.Request.Context(), req.BaseURL, req.GoogleAccessToken)
	if err != nil {
		s.logger.Error("photos download failed",
			slog.String("request_id", c.GetString(contextKeyRequestID)),
			slog.String("media_item_id", req.MediaItemID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Download from Google Photos failed", "details": err.Error()})

		return
	}

	name := req.FileName
	if name == "" {
		name = "photo_" + req.MediaItemID + ".jpg"
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	s.importDownloaded(c, data, name, mimeType, sourceGooglePhotos)
}

// importDownloaded pushes a fully buffered source object through the
// upload engine and writes the import response.
func (s *Server) importDownloaded(c *gin.Context, data []byte, name, mimeType, source string) {
	if int64(len(data)) > s.cfg.MaxFileSize() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("File too large. Max size: %dMB", s.cfg.MaxFileSizeMB),
		})

		return
	}

	item, err := s.uploader.Upload(c.Request.Context(), bytes.NewReader(data), name, mimeType, int64(len(data)), nil)
	if err != nil {
		s.logger.Error("import upload failed",
			slog.String("request_id", c.GetString(contextKeyRequestID)),
			slog.String("name", name),
			slog.String("source", source),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed", "details": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"fileName": item.Name,
		"size":     item.Size,
		"webUrl":   item.WebURL,
		"source":   source,
	})
}

type photosSessionRequest struct {
	AccessToken string `json:"accessToken"`
}

func (s *Server) handleCreatePhotosSession(c *gin.Context) {
	var req photosSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AccessToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accessToken is required"})
		return
	}

	status, body, err := s.source.CreatePickerSession(c.Request.Context(), req.AccessToken)
	s.proxyPickerResponse(c, status, body, err)
}

func (s *Server) handleGetPhotosSession(c *gin.Context) {
	token := c.Query("accessToken")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accessToken is required"})
		return
	}

	status, body, err := s.source.GetPickerSession(c.Request.Context(), c.Param("id"), token)
	s.proxyPickerResponse(c, status, body, err)
}

func (s *Server) handleListPhotosSessionItems(c *gin.Context) {
	token := c.Query("accessToken")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accessToken is required"})
		return
	}

	status, body, err := s.source.ListPickerItems(c.Request.Context(), c.Param("id"), token)
	s.proxyPickerResponse(c, status, body, err)
}

// proxyPickerResponse relays the picker API's status and body verbatim.
// A body that is not JSON (an HTML error page from an intermediary,
// typically) is converted to a JSON error so browser clients never
// choke on the passthrough.
func (s *Server) proxyPickerResponse(c *gin.Context, status int, body []byte, err error) {
	if err != nil {
		s.logger.Error("picker proxy failed",
			slog.String("request_id", c.GetString(contextKeyRequestID)),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Picker request failed", "details": err.Error()})

		return
	}

	if !json.Valid(body) {
		excerpt := strings.TrimSpace(string(body))
		if len(excerpt) > detailsExcerptLimit {
			excerpt = excerpt[:detailsExcerptLimit]
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Picker returned a non-JSON response",
			"details": excerpt,
		})

		return
	}

	c.Data(status, "application/json", body)
}
