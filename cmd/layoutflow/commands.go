package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/layoutflow/internal/app"
	"github.com/markdave123-py/layoutflow/internal/core/ingestion_engine"
	"github.com/markdave123-py/layoutflow/internal/core/preprocess"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background ingestion workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := app.NewApp(ctx, opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()

			a.Ingestor.Start(ctx, opts.cfg.IngestWorkers)
			srv := app.NewServer(opts.cfg.Port, a.Handler(), opts.log)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newSplitCmd(opts *rootOptions) *cobra.Command {
	var (
		out       string
		batchSize int
		password  string
	)
	cmd := &cobra.Command{
		Use:   "split <file.pdf>",
		Short: "Split a PDF into page batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pre := app.NewPreprocessors(opts.cfg, opts.log)
			if batchSize <= 0 {
				batchSize = opts.cfg.BatchSize
			}
			batches, err := pre.Splitter.Split(cmd.Context(), args[0], outDir(out, args[0]), preprocess.SplitOptions{
				BatchSize: batchSize,
				Password:  password,
				SourceID:  filepath.Base(args[0]),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), batches)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (default: <file>_batches next to the input)")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "pages per batch (default: BATCH_SIZE)")
	cmd.Flags().StringVar(&password, "password", "", "password for encrypted PDFs")
	return cmd
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var apiKey string
	cmd := &cobra.Command{
		Use:   "analyze <batch.pdf>...",
		Short: "Run layout analysis on batch PDFs, skipping those that already have a sidecar",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pre := app.NewPreprocessors(opts.cfg, opts.log)
			sidecars := make([]string, 0, len(args))
			for _, batch := range args {
				sidecar := preprocess.SidecarPath(batch)
				if _, err := preprocess.LoadSidecar(sidecar); err == nil {
					sidecars = append(sidecars, sidecar)
					continue
				}
				path, err := pre.Analyzer.Analyze(cmd.Context(), batch, apiKey)
				if err != nil {
					return fmt.Errorf("analyze %s: %w", batch, err)
				}
				sidecars = append(sidecars, path)
			}
			return printJSON(cmd.OutOrStdout(), sidecars)
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "layout-analysis API key (default: UPSTAGE_API_KEY)")
	return cmd
}

func newExtractCmd(opts *rootOptions) *cobra.Command {
	var (
		out    string
		resume bool
	)
	cmd := &cobra.Command{
		Use:   "extract <source.pdf> <sidecar.json>...",
		Short: "Crop figures, assemble blocks and render HTML and Markdown",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pre := app.NewPreprocessors(opts.cfg, opts.log)
			src, sidecars := args[0], append([]string(nil), args[1:]...)
			sort.Strings(sidecars)
			dir := out
			if dir == "" {
				dir = filepath.Dir(sidecars[0])
			}

			ext, err := pre.Extractor.Extract(cmd.Context(), src, sidecars, dir, preprocess.ExtractOptions{Resume: resume})
			if err != nil {
				return err
			}
			rendered, err := preprocess.Render(ext.Blocks, dir, preprocess.BaseName(src))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"images":  ext.Images,
				"html":    rendered.HTMLPath,
				"md_path": rendered.MarkdownPath,
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (default: the sidecars' directory)")
	cmd.Flags().BoolVar(&resume, "resume", false, "continue figure numbering from files already in the output directory")
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		batchSize int
		password  string
		chunk     string
		embed     string
	)
	cmd := &cobra.Command{
		Use:   "run <file.pdf>",
		Short: "Register a local PDF and run the whole pipeline into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if err := preprocess.DetectPDF(src); err != nil {
				return err
			}

			a, err := app.NewApp(ctx, opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := a.Documents.RegisterPath(ctx, src)
			if err != nil {
				return err
			}
			res, err := a.Ingestor.Run(ctx, ingestion_engine.Request{
				FileID:        f.ID,
				BatchSize:     batchSize,
				Password:      password,
				ChunkStrategy: chunk,
				EmbedStrategy: embed,
			})
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "pages per batch (default: BATCH_SIZE)")
	cmd.Flags().StringVar(&password, "password", "", "password for encrypted PDFs")
	cmd.Flags().StringVar(&chunk, "chunk-strategy", "", "fixed, recursive or tokens (default: CHUNK_STRATEGY)")
	cmd.Flags().StringVar(&embed, "embed-strategy", "", "live, fallback or live_or_fallback (default: EMBED_STRATEGY)")
	return cmd
}

func outDir(out, src string) string {
	if out != "" {
		return out
	}
	return filepath.Join(filepath.Dir(src), preprocess.BaseName(src)+"_batches")
}
