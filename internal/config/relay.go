package config

import (
	"os"
	"strconv"
)

// Environment variable names consumed by the relay.
const (
	EnvListenAddr    = "PHOTORELAY_LISTEN_ADDR"
	EnvSitePassword  = "PHOTORELAY_SITE_PASSWORD"
	EnvClientID      = "PHOTORELAY_AZURE_CLIENT_ID"
	EnvClientSecret  = "PHOTORELAY_AZURE_CLIENT_SECRET"
	EnvRefreshToken  = "PHOTORELAY_AZURE_REFRESH_TOKEN"
	EnvDriveID       = "PHOTORELAY_DRIVE_ID"
	EnvFolderID      = "PHOTORELAY_FOLDER_ID"
	EnvMaxFileSizeMB = "PHOTORELAY_MAX_FILE_SIZE_MB"
	EnvChunkSizeMB   = "PHOTORELAY_CHUNK_SIZE_MB"
	EnvCORSOrigin    = "PHOTORELAY_CORS_ORIGIN"
)

// Relay defaults.
const (
	defaultListenAddr    = ":8787"
	defaultMaxFileSizeMB = 500
	defaultChunkSizeMB   = 5
)

// LoadRelay reads the relay configuration from the environment and
// validates it. All credential and target-folder values are required;
// the rest fall back to defaults.
func LoadRelay() (*Relay, error) {
	r := &Relay{
		ListenAddr:    envOr(EnvListenAddr, defaultListenAddr),
		SitePassword:  os.Getenv(EnvSitePassword),
		ClientID:      os.Getenv(EnvClientID),
		ClientSecret:  os.Getenv(EnvClientSecret),
		RefreshToken:  os.Getenv(EnvRefreshToken),
		DriveID:       os.Getenv(EnvDriveID),
		FolderID:      os.Getenv(EnvFolderID),
		MaxFileSizeMB: envIntOr(EnvMaxFileSizeMB, defaultMaxFileSizeMB),
		ChunkSizeMB:   envIntOr(EnvChunkSizeMB, defaultChunkSizeMB),
		CORSOrigin:    envOr(EnvCORSOrigin, "*"),
	}

	required := []struct {
		field string
		value string
	}{
		{EnvSitePassword, r.SitePassword},
		{EnvClientID, r.ClientID},
		{EnvClientSecret, r.ClientSecret},
		{EnvRefreshToken, r.RefreshToken},
		{EnvDriveID, r.DriveID},
		{EnvFolderID, r.FolderID},
	}

	for _, req := range required {
		if req.value == "" {
			return nil, &ConfigError{Field: req.field, Reason: "not set"}
		}

		if isPlaceholder(req.value) {
			return nil, &ConfigError{Field: req.field, Reason: "placeholder value"}
		}
	}

	if r.MaxFileSizeMB <= 0 {
		return nil, &ConfigError{Field: EnvMaxFileSizeMB, Reason: "must be positive"}
	}

	if r.ChunkSizeMB <= 0 {
		return nil, &ConfigError{Field: EnvChunkSizeMB, Reason: "must be positive"}
	}

	return r, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}

	return n
}
