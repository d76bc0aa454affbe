package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/pkg/quant"
)

func quantizeCmd() *cli.Command {
	var (
		values    string
		scale     float64
		zeroPoint int64
		dtype     string
		auto      bool
	)

	return &cli.Command{
		Name:  "quantize",
		Usage: "Quantize real values per tensor and print the stored integers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "values",
				Usage:       "comma-separated real values",
				Required:    true,
				Destination: &values,
			},
			&cli.Float64Flag{
				Name:        "scale",
				Value:       1,
				Destination: &scale,
			},
			&cli.Int64Flag{
				Name:        "zero-point",
				Aliases:     []string{"zp"},
				Destination: &zeroPoint,
			},
			&cli.StringFlag{
				Name:        "dtype",
				Usage:       "quint8, qint8 or qint32",
				Value:       "quint8",
				Destination: &dtype,
			},
			&cli.BoolFlag{
				Name:        "auto",
				Usage:       "choose scale and zero point from the value range",
				Destination: &auto,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			x, err := parseFloats(values)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			d, err := quant.ParseDType(dtype)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			zp, err := zeroPointArg(zeroPoint)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			p := quant.Params{Scale: scale, ZeroPoint: zp, DType: d}
			if auto {
				if p, err = quant.ChooseParams(slices.Min(x), slices.Max(x), d); err != nil {
					return cli.Exit(err.Error(), 2)
				}
			}

			t, err := tensor.FromData(x, len(x))
			if err != nil {
				return err
			}
			q, err := tensor.QuantizePerTensor(t, p)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			fmt.Printf("params:      %s\n", p)
			fmt.Printf("stored:      %v\n", q.IntRepr())
			fmt.Printf("dequantized: %v\n", q.Dequantize().Data)
			return nil
		},
	}
}
