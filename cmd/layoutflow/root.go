package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/layoutflow/internal/config"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

type rootOptions struct {
	verbose bool
	cfg     *config.Config
	log     logger.ILogger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "layoutflow",
		Short:         "Layout-aware PDF ingestion",
		Long:          "layoutflow splits PDFs into page batches, runs layout analysis, extracts figures and tables, and stores chunked, embedded text.",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			opts.cfg = config.LoadConfig()
			opts.log = logger.NewZapLogger(opts.cfg.LogFile, !opts.verbose)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newSplitCmd(opts),
		newAnalyzeCmd(opts),
		newExtractCmd(opts),
		newRunCmd(opts),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
