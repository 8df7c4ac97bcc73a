package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/nurimarket/bidwatch/pkg/logging"
	"github.com/nurimarket/bidwatch/pkg/weighing"
)

func main() {
	app := &cli.App{
		Name:    "weighparse",
		Usage:   "parse OCR output of vehicle weighing receipts",
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:      "parse",
				Usage:     "parse one OCR JSON file or a directory of them",
				ArgsUsage: "<file-or-dir>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "out", Usage: "output directory"},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "output format: json, csv or both"},
					&cli.StringFlag{Name: "tolerance", Value: "10", Usage: "weight equation tolerance in kg"},
					&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
				},
				Action: runParse,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runParse(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("no input given", 1)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.OutputFile = ""
	logCfg.Format = "pretty"
	if c.Bool("verbose") {
		logCfg.Level = "debug"
	}
	if err := logging.SetupLogger(logCfg); err != nil {
		return err
	}

	tolerance, err := decimal.NewFromString(c.String("tolerance"))
	if err != nil {
		return fmt.Errorf("invalid tolerance %q: %w", c.String("tolerance"), err)
	}

	parserCfg := weighing.DefaultParserConfig()
	parserCfg.ToleranceKg = tolerance
	parser := weighing.NewParser(parserCfg)

	inputs, err := collectInputs(c.Args().First())
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return cli.Exit("no OCR JSON files found", 1)
	}

	var receipts []*weighing.Receipt
	failures := 0
	for _, path := range inputs {
		doc, err := weighing.LoadOCRDocument(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Skipping unreadable input")
			failures++
			continue
		}
		receipt, err := parser.Parse(doc)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Parse failed")
			failures++
			continue
		}
		receipts = append(receipts, receipt)
	}

	if len(receipts) == 0 {
		return cli.Exit("no receipt parsed successfully", 1)
	}

	outDir := c.String("output")
	format := c.String("format")
	if format == "json" || format == "both" {
		if err := weighing.WriteJSON(receipts, filepath.Join(outDir, "receipts.json")); err != nil {
			return err
		}
	}
	if format == "csv" || format == "both" {
		if err := weighing.WriteCSV(receipts, filepath.Join(outDir, "receipts.csv")); err != nil {
			return err
		}
	}

	valid := 0
	for _, r := range receipts {
		if r.IsValid() {
			valid++
		}
	}
	log.Info().
		Int("files", len(inputs)).
		Int("parsed", len(receipts)).
		Int("valid", valid).
		Int("failures", failures).
		Str("output", outDir).
		Msg("Parsing finished")
	return nil
}

func collectInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			out = append(out, filepath.Join(path, entry.Name()))
		}
	}
	return out, nil
}
