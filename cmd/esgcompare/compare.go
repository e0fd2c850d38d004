package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dgallion1/esgcompare/internal/export"
	"github.com/dgallion1/esgcompare/internal/metric"
)

var compareCmd = &cobra.Command{
	Use:   "compare [files...]",
	Short: "Compare metrics across report files",
	Long: `Extracts metrics from every file and prints the rows that at least two
files disclose. Files that cannot be parsed or extracted are reported on
stderr and left out of the table.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompare,
}

var (
	compareFormat string
	compareOut    string
	comparePillar string
)

func init() {
	compareCmd.Flags().StringVarP(&compareFormat, "format", "f", "json", "Output format: json, csv or xlsx")
	compareCmd.Flags().StringVarP(&compareOut, "out", "o", "", "Write output to a file instead of stdout")
	compareCmd.Flags().StringVarP(&comparePillar, "pillar", "p", "", "Only include one pillar: environmental, social or governance")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd, compareFormat, compareOut)
	if err != nil {
		return err
	}
	var pillar metric.Pillar
	if comparePillar != "" {
		p, ok := metric.ParsePillar(comparePillar)
		if !ok {
			return fmt.Errorf("unknown pillar %q", comparePillar)
		}
		pillar = p
	}

	engine, cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	docs := parseFiles(cmd, args, cfg)
	if len(docs) == 0 {
		return errors.New("no readable files")
	}

	res, err := engine.Pipeline.Run(cmd.Context(), docs)
	if err != nil {
		return fmt.Errorf("compare: %w", err)
	}
	for _, d := range res.Failed() {
		cmd.PrintErrf("failed %s: %s (%s)\n", d.Name, d.Reason, d.Error)
	}
	if len(res.Succeeded()) == 0 {
		return errors.New("no documents could be extracted")
	}

	table := res.Table
	if pillar != "" {
		table = table.FilterPillar(pillar)
	}
	if err := withOutput(cmd, compareOut, func(w io.Writer) error {
		return export.Table(w, table, format)
	}); err != nil {
		return err
	}
	cmd.PrintErrf("compared %d of %d documents: %d shared metrics\n", len(res.Succeeded()), len(res.Documents), len(table.Rows))
	return nil
}
