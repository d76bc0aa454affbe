package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qconv/internal/conformance"
	"github.com/samcharles93/qconv/internal/logger"
	"github.com/samcharles93/qconv/pkg/quant"
)

var (
	logLevel  string
	logFormat string
	debug     bool
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// setupLogging builds the logger from the logging flags, falling back to the
// config file for anything not set on the command line.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return ctx, err
	}
	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	log, err := logger.NewFormat(os.Stderr, logFormat, level)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}

type generatorFlagValues struct {
	dtypes      []string
	maxBatch    int64
	maxChannels int64
	maxSpatial  int64
}

func generatorFlags(v *generatorFlagValues) []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "dtype",
			Usage:       "input/output dtypes to draw from (quint8, qint8, qint32)",
			Destination: &v.dtypes,
		},
		&cli.Int64Flag{
			Name:        "max-batch",
			Usage:       "largest batch size to generate",
			Destination: &v.maxBatch,
		},
		&cli.Int64Flag{
			Name:        "max-channels",
			Usage:       "largest in/out channel count to generate",
			Destination: &v.maxChannels,
		},
		&cli.Int64Flag{
			Name:        "max-spatial",
			Usage:       "largest input height/width to generate",
			Destination: &v.maxSpatial,
		},
	}
}

// apply overrides gen with whichever generator flags were set.
func (v generatorFlagValues) apply(cmd *cli.Command, gen *conformance.GeneratorConfig) error {
	if cmd.IsSet("dtype") {
		dts, err := parseDTypes(v.dtypes)
		if err != nil {
			return err
		}
		gen.DTypes = dts
	}
	if cmd.IsSet("max-batch") {
		gen.Batch.Max = int(v.maxBatch)
	}
	if cmd.IsSet("max-channels") {
		gen.InChannels.Max = int(v.maxChannels)
		gen.OutChannels.Max = int(v.maxChannels)
	}
	if cmd.IsSet("max-spatial") {
		gen.Height.Max = int(v.maxSpatial)
		gen.Width.Max = int(v.maxSpatial)
	}
	return gen.Validate()
}

func parseDTypes(names []string) ([]quant.DType, error) {
	out := make([]quant.DType, 0, len(names))
	for _, n := range names {
		d, err := quant.ParseDType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
