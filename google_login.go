package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"photorelay/internal/authflow"
	"photorelay/internal/config"
)

func newGoogleLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "google-login",
		Short: "Authenticate with Google for Drive and Photos imports",
		Args:  cobra.NoArgs,
		RunE:  runGoogleLogin,
	}
}

func runGoogleLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	// google-login skips the root pre-run, but still needs the config
	// for the OAuth client registration.
	cfg, err := config.LoadClient(flagConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Google.ClientID == "" {
		return fmt.Errorf("google.client_id is not configured")
	}

	tokenPath, err := config.GoogleTokenPath()
	if err != nil {
		return err
	}

	oauthCfg := authflow.GoogleConfig(cfg.Google.ClientID, cfg.Google.ClientSecret)

	if _, err := authflow.Login(cmd.Context(), oauthCfg, tokenPath, openBrowser, logger); err != nil {
		return err
	}

	statusf("Google login successful.\n")

	return nil
}

// googleAccessToken returns a fresh Google access token from the saved
// login, refreshing it if needed.
func googleAccessToken(cmd *cobra.Command) (string, error) {
	logger := buildLogger()

	tokenPath, err := config.GoogleTokenPath()
	if err != nil {
		return "", err
	}

	oauthCfg := authflow.GoogleConfig(clientCfg.Google.ClientID, clientCfg.Google.ClientSecret)

	src, err := authflow.SourceFromPath(cmd.Context(), oauthCfg, tokenPath, logger)
	if err != nil {
		if errors.Is(err, authflow.ErrNotLoggedIn) {
			return "", fmt.Errorf("not logged in to Google — run 'photorelay google-login' first")
		}

		return "", err
	}

	tok, err := src.Token()
	if err != nil {
		return "", err
	}

	return tok.AccessToken, nil
}
