// Package relay implements the HTTP surface that stands between
// untrusted browser/CLI clients and the storage provider. It enforces
// the shared-password gate, streams upload bytes into the chunked
// upload engine, aggregates the gallery listing, and proxies the
// Google import and picker-session endpoints. The relay holds the
// provider credentials; clients never see an access token.
package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"photorelay/internal/config"
	"photorelay/internal/engine"
	"photorelay/internal/gallery"
	"photorelay/internal/graph"
)

// Uploader stores a media stream in the destination folder.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, name, mimeType string, size int64, progress engine.ProgressFunc) (*graph.Item, error)
}

// MediaLister produces the full gallery listing.
type MediaLister interface {
	ListMedia(ctx context.Context) ([]gallery.MediaItem, error)
}

// Source downloads media from Google and proxies picker-session calls.
type Source interface {
	DownloadDriveFile(ctx context.Context, fileID, accessToken string) ([]byte, error)
	DownloadPhoto(ctx context.Context, baseURL, accessToken string) ([]byte, error)
	CreatePickerSession(ctx context.Context, accessToken string) (int, []byte, error)
	GetPickerSession(ctx context.Context, sessionID, accessToken string) (int, []byte, error)
	ListPickerItems(ctx context.Context, sessionID, accessToken string) (int, []byte, error)
}

// Server wires the relay's HTTP routes to the upload engine, the
// gallery aggregator and the Google source client.
type Server struct {
	cfg      *config.Relay
	uploader Uploader
	lister   MediaLister
	source   Source
	logger   *slog.Logger
	router   *gin.Engine
}

// New builds the relay server and registers its routes.
func New(cfg *config.Relay, uploader Uploader, lister MediaLister, source Source, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		uploader: uploader,
		lister:   lister,
		source:   source,
		logger:   logger,
	}

	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestIDMiddleware())
	r.Use(s.corsMiddleware())
	r.Use(s.logMiddleware())

	r.GET("/health", s.handleHealth)
	r.POST("/upload", s.handleUpload)
	r.GET("/gallery", s.handleGallery)
	r.POST("/upload-from-google", s.handleUploadFromGoogle)
	r.POST("/upload-from-google-photos", s.handleUploadFromGooglePhotos)
	r.POST("/photos-session", s.handleCreatePhotosSession)
	r.GET("/photos-session/:id", s.handleGetPhotosSession)
	r.GET("/photos-session/:id/items", s.handleListPhotosSessionItems)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	s.router = r

	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("relay listening",
			slog.String("addr", s.cfg.ListenAddr),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("relay shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(contextKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		s.logger.Info("request",
			slog.String("request_id", c.GetString(contextKeyRequestID)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
		)
	}
}
