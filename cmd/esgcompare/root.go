package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/esgcompare/internal/app"
	"github.com/dgallion1/esgcompare/internal/config"
	"github.com/dgallion1/esgcompare/internal/document"
	"github.com/dgallion1/esgcompare/internal/export"
	"github.com/dgallion1/esgcompare/internal/parser"
)

var rootCmd = &cobra.Command{
	Use:   "esgcompare",
	Short: "Compare ESG metrics across sustainability reports",
	Long: `esgcompare extracts environmental, social and governance metrics from
report files (PDF, DOCX, HTML, Markdown, CSV, text), normalizes units and
periods, and lines up the metrics that at least two reports disclose.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

var (
	cacheBackend string
	verbose      bool
)

// newEngine is replaced in tests.
var newEngine = func(ctx context.Context, cfg config.Config, log *slog.Logger) (*app.Engine, error) {
	return app.New(ctx, cfg, log)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cacheBackend, "cache", "", "Cache backend override (memory, file, sqlite, postgres, gcs, firestore, pathstore)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")
}

// setup loads configuration, applies flag overrides and builds the engine.
func setup(cmd *cobra.Command) (*app.Engine, config.Config, error) {
	cfg := config.Load()
	if cacheBackend != "" {
		cfg.CacheBackend = cacheBackend
	}
	if err := cfg.Validate(false); err != nil {
		return nil, cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	level := slog.LevelWarn
	if verbose {
		level = cfg.SlogLevel()
	}
	log := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	engine, err := newEngine(cmd.Context(), cfg, log)
	if err != nil {
		return nil, cfg, err
	}
	return engine, cfg, nil
}

// parseFiles parses each path, reporting unreadable files to stderr.
func parseFiles(cmd *cobra.Command, paths []string, cfg config.Config) []document.Document {
	opts := parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext}
	var docs []document.Document
	for _, path := range paths {
		doc, err := parser.ParseFile(path, opts)
		if err != nil {
			cmd.PrintErrf("skipping %s: %v\n", path, err)
			continue
		}
		docs = append(docs, *doc)
	}
	return docs
}

// outputFormat resolves the export format, inferring it from the output
// file extension when no format flag was given.
func outputFormat(cmd *cobra.Command, flagValue, outPath string) (export.Format, error) {
	if !cmd.Flags().Changed("format") && outPath != "" {
		for _, f := range []export.Format{export.CSV, export.XLSX, export.JSON} {
			if strings.HasSuffix(strings.ToLower(outPath), f.Ext()) {
				return f, nil
			}
		}
	}
	f, err := export.ParseFormat(flagValue)
	if err != nil {
		return "", err
	}
	if f == export.XLSX && outPath == "" {
		return "", fmt.Errorf("xlsx output requires --out")
	}
	return f, nil
}

// withOutput runs write against the output file, or stdout when outPath is
// empty.
func withOutput(cmd *cobra.Command, outPath string, write func(io.Writer) error) error {
	if outPath == "" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
