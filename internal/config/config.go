// Package config implements configuration for both runtime roles: the
// relay reads everything from the environment (it runs as a stateless
// worker), while the CLI client reads a TOML file with environment
// overrides. Required values are validated eagerly, before any network
// call, and placeholder values are rejected the same way missing ones
// are.
package config

import (
	"errors"
	"fmt"
)

// ErrConfig is the sentinel for missing or placeholder configuration.
var ErrConfig = errors.New("config: invalid configuration")

// ConfigError names the offending field so the CLI can print a
// blocking, actionable warning.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// Client is the CLI-side configuration parsed from TOML.
type Client struct {
	Relay  RelayTarget  `toml:"relay"`
	Upload UploadConfig `toml:"upload"`
	Google GoogleConfig `toml:"google"`
}

// RelayTarget points the CLI at a deployed relay.
type RelayTarget struct {
	URL      string `toml:"url"`
	Password string `toml:"password"`
}

// UploadConfig bounds the client-side upload queue.
type UploadConfig struct {
	MaxFileSizeMB int `toml:"max_file_size_mb"`
	// ChunkSizeMB is the client's progress window: how many bytes are
	// streamed between progress-bar updates. Independent from the
	// relay's upload chunk size.
	ChunkSizeMB  int      `toml:"chunk_size_mb"`
	AllowedTypes []string `toml:"allowed_types"`
}

// GoogleConfig holds the OAuth client used by the login helpers.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// DefaultClient returns the client defaults applied beneath the file
// and environment layers.
func DefaultClient() Client {
	return Client{
		Upload: UploadConfig{
			MaxFileSizeMB: 500,
			ChunkSizeMB:   5,
			AllowedTypes:  []string{"image/*", "video/*"},
		},
	}
}

// Relay is the server-side configuration, environment-only.
type Relay struct {
	ListenAddr    string
	SitePassword  string
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	DriveID       string
	FolderID      string
	MaxFileSizeMB int
	ChunkSizeMB   int
	CORSOrigin    string
}

// MaxFileSize returns the upload size cap in bytes.
func (r *Relay) MaxFileSize() int64 {
	return int64(r.MaxFileSizeMB) * 1024 * 1024
}

// ChunkSize returns the relay's upload chunk size in bytes.
func (r *Relay) ChunkSize() int64 {
	return int64(r.ChunkSizeMB) * 1024 * 1024
}
