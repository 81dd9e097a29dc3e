package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qbandev/safefetch/internal/fetch"
	"github.com/qbandev/safefetch/internal/output"
)

func newGetCmd(opts *rootOptions) *cobra.Command {
	var (
		format       string
		maxRedirects int
	)

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Fetch a single URL and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !output.ValidFormat(format) {
				return fmt.Errorf("invalid output format %q: must be json, table or raw", format)
			}
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-redirects") {
				maxRedirects = cfg.Fetch.Redirects()
			}

			ctx := log.WithContext(cmd.Context())
			res, err := fetch.New(cfg.Fetch.FetcherConfig()).Fetch(ctx, args[0], maxRedirects)
			if err != nil {
				return err
			}
			return output.WriteResult(cmd.OutOrStdout(), res, format)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", output.FormatJSON, "Output format: json, table or raw")
	cmd.Flags().IntVar(&maxRedirects, "max-redirects", fetch.DefaultMaxRedirects, "Maximum redirects to follow")
	return cmd
}
