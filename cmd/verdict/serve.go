package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/complylabs/verdict/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store over HTTP for remote backends",
		Long: `Serve exposes the configured store backend over HTTP so other machines can
use it through the remote store backend (store.backend: remote).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			return runServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8750", "listen address")
	return cmd
}

func runServe(ctx context.Context, addr string) error {
	opener, closeStore, err := initOpener()
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() { _ = closeStore() }()

	srv := &http.Server{
		Addr:              addr,
		Handler:           store.NewServer(opener, slog.Default()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Store server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
