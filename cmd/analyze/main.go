// Command analyze runs the quality pipeline over a logger CSV file offline and
// writes the points, hourly and summary tables next to each other.
//
//	analyze -config gasqc.yaml -sensor no2-01 -input logger.csv -out ./out -format csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nicktill/gasqc/pkg/archive"
	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/export"
	"github.com/nicktill/gasqc/pkg/logger"
	"github.com/nicktill/gasqc/pkg/pipeline"
	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/nicktill/gasqc/pkg/server"
)

type options struct {
	sensorID string
	input    string
	outDir   string
	format   string
	archive  bool
}

func main() {
	var opts options
	configPath := flag.String("config", "gasqc.yaml", "path to the YAML configuration file")
	flag.StringVar(&opts.sensorID, "sensor", "", "sensor ID from the configuration")
	flag.StringVar(&opts.input, "input", "", "logger CSV file")
	flag.StringVar(&opts.outDir, "out", ".", "output directory")
	flag.StringVar(&opts.format, "format", export.FormatCSV, "table format: csv or json")
	flag.BoolVar(&opts.archive, "archive", false, "also store the run in the configured archive")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration")
	}
	if err := logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}
	if opts.input == "" {
		log.Fatal().Msg("-input is required")
	}
	if opts.sensorID == "" && len(cfg.Sensors) == 1 {
		opts.sensorID = cfg.Sensors[0].ID
	}

	paths, err := run(context.Background(), cfg, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("analysis failed")
	}
	for _, p := range paths {
		fmt.Println(p)
	}
}

func findSensor(cfg *config.File, id string) (sensor.Config, error) {
	for _, s := range cfg.Sensors {
		if s.ID == id {
			return s, nil
		}
	}
	return sensor.Config{}, fmt.Errorf("%w %q", pipeline.ErrUnknownSensor, id)
}

// run analyzes one file and returns the paths of the written tables.
func run(ctx context.Context, cfg *config.File, opts options) ([]string, error) {
	if opts.format != export.FormatCSV && opts.format != export.FormatJSON {
		return nil, fmt.Errorf("%w: %q", export.ErrUnknownFormat, opts.format)
	}
	sensorCfg, err := findSensor(cfg, opts.sensorID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(opts.input)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	samples, skipped, err := export.ParseLoggerCSV(f, sensorCfg.ID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", opts.input, err)
	}
	if len(skipped) > 0 {
		log.Warn().Int("skipped", len(skipped)).Str("first", skipped[0]).Msg("logger rows skipped")
	}

	p, err := pipeline.New(sensorCfg, pipeline.WithQuantiles(server.QuantileOptions(cfg.Analysis)))
	if err != nil {
		return nil, err
	}
	res, err := p.Run(samples)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("sensor", res.SensorID).
		Int("samples", len(samples)).
		Int("points", len(res.Points)).
		Int("hours", len(res.Hourly)).
		Msg("analysis complete")

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return nil, err
	}
	exporter := export.NewExporter()
	var paths []string
	for _, table := range export.Tables {
		path := filepath.Join(opts.outDir, fmt.Sprintf("%s-%s.%s", res.SensorID, table, opts.format))
		if err := writeTable(exporter, path, res, table, opts.format); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	if opts.archive {
		a, err := archive.FromConfig(ctx, cfg.Archive)
		if err != nil {
			return paths, err
		}
		if err := a.Archive(ctx, res); err != nil {
			return paths, fmt.Errorf("archive run: %w", err)
		}
		log.Info().Str("run_id", res.RunID).Str("backend", cfg.Archive.Backend).Msg("run archived")
	}
	return paths, nil
}

func writeTable(exporter *export.Exporter, path string, res *pipeline.Result, table export.Table, format string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := exporter.Export(out, res, table, format); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
