package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qbandev/safefetch/internal/download"
	"github.com/qbandev/safefetch/internal/fetch"
	"github.com/qbandev/safefetch/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP fetch service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			fetcher := fetch.New(cfg.Fetch.FetcherConfig())
			srv := server.New(
				fetcher,
				download.New(fetcher, cfg.Server.DownloadRoot),
				server.Options{
					MaxRedirects:     cfg.Fetch.Redirects(),
					ErrorStatusCodes: cfg.Server.ErrorStatusCodes,
				},
				log,
			)

			httpServer := &http.Server{
				Addr:         cfg.Server.Listen,
				Handler:      srv.Handler(),
				ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
				WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("listen", cfg.Server.Listen).Str("version", version).Msg("Starting safefetch")
				if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address override (e.g. :6457)")
	return cmd
}
