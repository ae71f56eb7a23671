package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"photorelay/internal/authflow"
)

var (
	flagLoginClientID     string
	flagLoginClientSecret string
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Mint the storage refresh token for a relay deployment",
		Long: `Authenticate against Microsoft with the relay's app registration and
print the refresh token to configure in the relay's environment. The
token is printed once and not stored locally.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().StringVar(&flagLoginClientID, "client-id", "", "Azure application (client) ID")
	cmd.Flags().StringVar(&flagLoginClientSecret, "client-secret", "", "Azure client secret")
	_ = cmd.MarkFlagRequired("client-id")
	_ = cmd.MarkFlagRequired("client-secret")

	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	cfg := authflow.MicrosoftConfig(flagLoginClientID, flagLoginClientSecret)

	tok, err := authflow.Login(cmd.Context(), cfg, "", openBrowser, logger)
	if err != nil {
		return err
	}

	if tok.RefreshToken == "" {
		return fmt.Errorf("no refresh token in response; check that offline_access was granted")
	}

	// The refresh token goes to the relay's environment, so it is the
	// one secret deliberately written to stdout.
	fmt.Fprintln(os.Stdout, tok.RefreshToken)
	statusf("Set this as PHOTORELAY_AZURE_REFRESH_TOKEN on the relay.\n")

	return nil
}
