// Command report generates a marketing report from an existing lead
// database without starting the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"leaddecisions/internal/analytics"
	"leaddecisions/internal/config"
	"leaddecisions/internal/exporter"
	"leaddecisions/internal/infrastructure"
	"leaddecisions/internal/store"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "path to configuration file")
		dbPath     = flag.String("db", "", "database path (overrides configuration)")
		format     = flag.String("format", "json", "output format: json or csv")
		outPath    = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	if err := run(*configFile, *dbPath, *format, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, dbPath, formatFlag, outPath string) error {
	cfg, err := config.LoadFrom(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if dbPath != "" {
		cfg.Storage.DatabasePath = dbPath
	}

	outFormat, err := exporter.ParseFormat(formatFlag)
	if err != nil {
		return err
	}

	// Reports are a read-side tool; keep log noise out of stdout.
	logger := infrastructure.NewLogger(config.LoggingConfig{Level: "error", Format: cfg.Logging.Format})
	slog.SetDefault(logger)

	st, err := store.Open(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := analytics.NewEngine(st, cfg.Analytics.StatisticalThreshold, logger)
	report, err := engine.GenerateReport(context.Background())
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if outPath != "" {
		file, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	return exporter.Write(out, report, outFormat)
}
