package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qconv/internal/conformance"
	"github.com/samcharles93/qconv/internal/logger"
)

func checkCmd() *cli.Command {
	var (
		trials     int64
		seed       uint64
		workers    int64
		reportPath string
		reportDir  string
		gen        generatorFlagValues
	)

	flags := []cli.Flag{
		&cli.Int64Flag{
			Name:        "trials",
			Aliases:     []string{"n"},
			Usage:       "number of random scenarios to check",
			Value:       100,
			Destination: &trials,
		},
		&cli.Uint64Flag{
			Name:        "seed",
			Usage:       "generator seed",
			Value:       1,
			Destination: &seed,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "module-path GEMM workers (0 = GOMAXPROCS)",
			Destination: &workers,
		},
		&cli.StringFlag{
			Name:        "report",
			Aliases:     []string{"o"},
			Usage:       "write the JSON report to this file (default stdout)",
			Destination: &reportPath,
		},
		&cli.StringFlag{
			Name:        "report-dir",
			Usage:       "write the JSON report to <dir>/<run id>.json",
			Destination: &reportDir,
		},
	}
	flags = append(flags, generatorFlags(&gen)...)

	return &cli.Command{
		Name:  "check",
		Usage: "Check functional and module convolution agree on random scenarios",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			applyCheckConfig(cmd, cfg, &trials, &seed, &workers, &reportDir)

			genCfg := conformance.DefaultGeneratorConfig()
			if err := cfg.Generator.apply(&genCfg); err != nil {
				return err
			}
			if err := gen.apply(cmd, &genCfg); err != nil {
				return cli.Exit(err.Error(), 2)
			}

			rep, runErr := conformance.Run(ctx, conformance.RunConfig{
				Seed:      seed,
				Trials:    int(trials),
				Generator: genCfg,
				Workers:   int(workers),
			})
			if rep == nil {
				return cli.Exit(runErr.Error(), 2)
			}
			if err := writeReport(rep, reportPath, reportDir); err != nil {
				return err
			}

			var mm *conformance.MismatchError
			switch {
			case errors.As(runErr, &mm):
				return cli.Exit(fmt.Sprintf("trial %d: %v", rep.Failure.Trial, mm), 1)
			case runErr != nil:
				return runErr
			}
			log.Info("all trials agree",
				"trials", rep.Trials, "matched", rep.Matched,
				"error_matched", rep.ErrorMatched, "skipped", rep.Skipped,
				"duration", rep.Duration)
			return nil
		},
	}
}

func writeReport(rep *conformance.Report, path, dir string) error {
	raw, err := rep.JSON()
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	raw = append(raw, '\n')
	if path == "" && dir != "" {
		path = filepath.Join(dir, rep.RunID+".json")
	}
	if path == "" {
		_, err = os.Stdout.Write(raw)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
