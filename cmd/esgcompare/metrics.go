package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dgallion1/esgcompare/internal/export"
	"github.com/dgallion1/esgcompare/internal/pipeline"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics [file]",
	Short: "Print the normalized metrics of one report",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetrics,
}

var (
	metricsFormat string
	metricsOut    string
)

func init() {
	metricsCmd.Flags().StringVarP(&metricsFormat, "format", "f", "json", "Output format: json, csv or xlsx")
	metricsCmd.Flags().StringVarP(&metricsOut, "out", "o", "", "Write output to a file instead of stdout")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd, metricsFormat, metricsOut)
	if err != nil {
		return err
	}

	engine, cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	docs := parseFiles(cmd, args, cfg)
	if len(docs) == 0 {
		return errors.New("file could not be parsed")
	}

	dr := engine.Pipeline.Resolve(cmd.Context(), docs[0])
	if dr.Status != pipeline.DocOK {
		return fmt.Errorf("extract %s: %s: %w", dr.Name, dr.Reason, dr.Err)
	}
	if dr.CacheHit {
		cmd.PrintErrf("%s: cached (%s)\n", dr.Name, dr.Fingerprint.Short())
	}
	return withOutput(cmd, metricsOut, func(w io.Writer) error {
		return export.Set(w, dr.Set, format)
	})
}
