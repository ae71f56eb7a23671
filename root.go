package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"photorelay/internal/client"
	"photorelay/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagVerbose    bool
	flagQuiet      bool
)

// clientCfg holds the client configuration loaded by PersistentPreRunE.
// The serve command and the login helpers load their own configuration.
var clientCfg *config.Client

// httpClientTimeout bounds ordinary API requests. Upload requests get
// their own, much longer timeout inside the relay client.
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// skipConfigCommands handle configuration themselves: serve reads the
// environment, and the login helpers must work before a config exists.
var skipConfigCommands = map[string]bool{
	"photorelay serve":        true,
	"photorelay login":        true,
	"photorelay google-login": true,
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "photorelay",
		Short:   "Shared photo uploads through a credential-holding relay",
		Long:    "Upload photos and videos to a shared cloud folder through a relay\nthat holds the storage credentials, browse the gallery, and import\nmedia from Google Drive and Google Photos.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipConfigCommands[cmd.CommandPath()] {
				return nil
			}

			cfg, err := config.LoadClient(flagConfigPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			clientCfg = cfg

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newGalleryCmd())
	cmd.AddCommand(newImportDriveCmd())
	cmd.AddCommand(newImportPhotosCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newGoogleLoginCmd())

	return cmd
}

// buildLogger creates an slog.Logger honoring --verbose and --quiet.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// relayClient builds the API client from the loaded configuration.
func relayClient(logger *slog.Logger) *client.Client {
	chunk := int64(clientCfg.Upload.ChunkSizeMB) * 1024 * 1024

	return client.New(clientCfg.Relay.URL, clientCfg.Relay.Password, chunk, nil, logger)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
