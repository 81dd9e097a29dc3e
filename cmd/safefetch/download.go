package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qbandev/safefetch/internal/download"
	"github.com/qbandev/safefetch/internal/fetch"
)

func newDownloadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download <url> <dir>",
		Short: "Fetch a URL and save it into a directory under the download root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			fetcher := fetch.New(cfg.Fetch.FetcherConfig())
			saved, err := download.New(fetcher, cfg.Server.DownloadRoot).
				SaveToDir(log.WithContext(cmd.Context()), args[0], args[1], cfg.Fetch.Redirects())
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(saved, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling result: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
