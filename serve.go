package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"photorelay/internal/broker"
	"photorelay/internal/config"
	"photorelay/internal/engine"
	"photorelay/internal/gallery"
	"photorelay/internal/google"
	"photorelay/internal/graph"
	"photorelay/internal/relay"
)

// relayHTTPTimeout bounds one provider round-trip. Chunk PUTs move up
// to the chunk size per request, so this is generous.
const relayHTTPTimeout = 5 * time.Minute

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server (configuration from environment)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	cfg, err := config.LoadRelay()
	if err != nil {
		return fmt.Errorf("loading relay config: %w", err)
	}

	httpClient := &http.Client{Timeout: relayHTTPTimeout}

	tokens := broker.New(broker.DefaultTokenEndpoint, cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken, httpClient, logger)
	gc := graph.NewClient(graph.DefaultBaseURL, httpClient, tokens, logger)
	eng := engine.New(gc, cfg.DriveID, cfg.FolderID, cfg.ChunkSize(), logger)
	agg := gallery.New(gc, cfg.DriveID, cfg.FolderID, logger)
	src := google.New("", "", httpClient, logger)

	srv := relay.New(cfg, eng, agg, src, logger)

	ctx := shutdownContext(cmd.Context(), logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
