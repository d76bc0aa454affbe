package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/samcharles93/qconv/internal/version"

	"github.com/urfave/cli/v3"
)

func versionCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print build info as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return writeVersion(os.Stdout, version.Resolve(), asJSON)
		},
	}
}

func writeVersion(w io.Writer, info version.Info, asJSON bool) error {
	if asJSON {
		b, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	}
	if _, err := fmt.Fprintf(w, "qconv %s\n", info); err != nil {
		return err
	}
	if info.BuildTime != "" {
		fmt.Fprintf(w, "built %s\n", info.BuildTime)
	}
	_, err := fmt.Fprintf(w, "go %s\n", info.GoVersion)
	return err
}
