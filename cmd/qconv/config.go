package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/qconv/internal/conformance"
)

const envQconvConfig = "QCONV_CONFIG"

// Config represents the qconv configuration file (~/.config/qconv/config.yaml).
// Scalar fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	// Harness defaults
	Trials  *int    `yaml:"trials"`
	Seed    *uint64 `yaml:"seed"`
	Workers *int    `yaml:"workers"`

	Generator GeneratorOverrides `yaml:"generator"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	ReportDir string `yaml:"report_dir"`

	// Server
	ServerAddress string `yaml:"server_address"`
	MaxTrials     *int   `yaml:"max_trials"`
}

// GeneratorOverrides replaces individual generator bounds.
type GeneratorOverrides struct {
	Batch       *conformance.Range `yaml:"batch"`
	InChannels  *conformance.Range `yaml:"in_channels"`
	OutChannels *conformance.Range `yaml:"out_channels"`
	Height      *conformance.Range `yaml:"height"`
	Width       *conformance.Range `yaml:"width"`
	KernelH     *conformance.Range `yaml:"kernel_h"`
	KernelW     *conformance.Range `yaml:"kernel_w"`
	Padding     *conformance.Range `yaml:"padding"`
	Stride      *conformance.Range `yaml:"stride"`
	DTypes      []string           `yaml:"dtypes"`
}

func (o GeneratorOverrides) apply(gen *conformance.GeneratorConfig) error {
	for _, f := range []struct {
		src *conformance.Range
		dst *conformance.Range
	}{
		{o.Batch, &gen.Batch},
		{o.InChannels, &gen.InChannels},
		{o.OutChannels, &gen.OutChannels},
		{o.Height, &gen.Height},
		{o.Width, &gen.Width},
		{o.KernelH, &gen.KernelH},
		{o.KernelW, &gen.KernelW},
		{o.Padding, &gen.Padding},
		{o.Stride, &gen.Stride},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	if len(o.DTypes) > 0 {
		dts, err := parseDTypes(o.DTypes)
		if err != nil {
			return fmt.Errorf("config generator.dtypes: %w", err)
		}
		gen.DTypes = dts
	}
	return nil
}

func configPath() string {
	if p := strings.TrimSpace(os.Getenv(envQconvConfig)); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "qconv", "config.yaml")
}

// applyCheckConfig applies config file defaults to check command variables
// when the corresponding CLI flag was not explicitly set.
func applyCheckConfig(c *cli.Command, cfg Config, trials *int64, seed *uint64, workers *int64, reportDir *string) {
	if cfg.Trials != nil && !c.IsSet("trials") {
		*trials = int64(*cfg.Trials)
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		*workers = int64(*cfg.Workers)
	}
	if cfg.ReportDir != "" && !c.IsSet("report-dir") {
		*reportDir = cfg.ReportDir
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, maxTrials *int64) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.MaxTrials != nil && !c.IsSet("max-trials") {
		*maxTrials = int64(*cfg.MaxTrials)
	}
}

// LoadConfig reads the config file. A missing file yields a zero Config; a
// file that exists but does not parse is an error.
func LoadConfig() (Config, error) {
	path := configPath()
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
