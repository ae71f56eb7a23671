package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Client-side environment overrides. The config file path itself can be
// overridden, and the two values people most often inject via CI or
// shell profiles can bypass the file entirely.
const (
	EnvClientConfig  = "PHOTORELAY_CONFIG"
	EnvRelayURL      = "PHOTORELAY_RELAY_URL"
	EnvRelayPassword = "PHOTORELAY_PASSWORD"
)

// placeholders are template values that must be replaced before use.
var placeholders = []string{
	"YOUR_",
	"CHANGE_ME",
	"REPLACE_ME",
}

func isPlaceholder(v string) bool {
	upper := strings.ToUpper(v)
	for _, p := range placeholders {
		if strings.Contains(upper, p) {
			return true
		}
	}

	return false
}

// DefaultClientPath returns the standard client config location,
// honoring XDG_CONFIG_HOME.
func DefaultClientPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolving home directory: %w", err)
		}

		base = filepath.Join(home, ".config")
	}

	return filepath.Join(base, "photorelay", "config.toml"), nil
}

// GoogleTokenPath returns where the Google login helper saves its
// token, next to the client config.
func GoogleTokenPath() (string, error) {
	cfgPath, err := DefaultClientPath()
	if err != nil {
		return "", err
	}

	return filepath.Join(filepath.Dir(cfgPath), "google-token.json"), nil
}

// LoadClient reads the client configuration: defaults, then the TOML
// file (missing file is fine — defaults apply), then environment
// overrides, then validation. path may be empty to use the default
// location.
func LoadClient(path string) (*Client, error) {
	if env := os.Getenv(EnvClientConfig); path == "" && env != "" {
		path = env
	}

	if path == "" {
		p, err := DefaultClientPath()
		if err != nil {
			return nil, err
		}

		path = p
	}

	cfg := DefaultClient()

	data, err := os.ReadFile(path)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		// No file: env overrides may still provide everything needed.
	case err != nil:
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	default:
		if decErr := toml.Unmarshal(data, &cfg); decErr != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, decErr)
		}
	}

	applyClientEnv(&cfg)

	if err := validateClient(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyClientEnv(cfg *Client) {
	if v := os.Getenv(EnvRelayURL); v != "" {
		cfg.Relay.URL = v
	}

	if v := os.Getenv(EnvRelayPassword); v != "" {
		cfg.Relay.Password = v
	}
}

// validateClient checks the values every relay-touching command needs.
// Detection happens here, eagerly, so a misconfigured client fails with
// a blocking warning instead of an opaque network error.
func validateClient(cfg *Client) error {
	if cfg.Relay.URL == "" {
		return &ConfigError{Field: "relay.url", Reason: "not set"}
	}

	if isPlaceholder(cfg.Relay.URL) {
		return &ConfigError{Field: "relay.url", Reason: "placeholder value"}
	}

	if cfg.Relay.Password == "" {
		return &ConfigError{Field: "relay.password", Reason: "not set"}
	}

	if isPlaceholder(cfg.Relay.Password) {
		return &ConfigError{Field: "relay.password", Reason: "placeholder value"}
	}

	if cfg.Upload.MaxFileSizeMB <= 0 {
		return &ConfigError{Field: "upload.max_file_size_mb", Reason: "must be positive"}
	}

	if cfg.Upload.ChunkSizeMB <= 0 {
		return &ConfigError{Field: "upload.chunk_size_mb", Reason: "must be positive"}
	}

	cfg.Relay.URL = strings.TrimRight(cfg.Relay.URL, "/")

	return nil
}
