package main

import (
	"context"
	"fmt"
	"os"

	"github.com/samcharles93/qconv/internal/version"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:    "qconv",
		Usage:   "Quantized convolution reference kernels and equivalence checker",
		Version: version.String(),
		Flags:   loggingFlags(),
		Before:  setupLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			checkCmd(),
			reluCmd(),
			quantizeCmd(),
			convCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
