package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qconv/internal/conformance"
	"github.com/samcharles93/qconv/internal/nn/functional"
	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/pkg/quant"
)

func reluCmd() *cli.Command {
	var (
		values    string
		scale     float64
		zeroPoint int64
	)

	return &cli.Command{
		Name:  "relu",
		Usage: "Quantize values as quint8, apply ReLU and compare with the reference quantizer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "values",
				Usage:       "comma-separated real values",
				Value:       "-5,-4,-3,-2,-1,0,1,2,3,4",
				Destination: &values,
			},
			&cli.Float64Flag{
				Name:        "scale",
				Value:       2,
				Destination: &scale,
			},
			&cli.Int64Flag{
				Name:        "zero-point",
				Aliases:     []string{"zp"},
				Value:       1,
				Destination: &zeroPoint,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			x, err := parseFloats(values)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			zp, err := zeroPointArg(zeroPoint)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			p := quant.Params{Scale: scale, ZeroPoint: zp, DType: quant.QUInt8}
			t, err := tensor.FromData(x, len(x))
			if err != nil {
				return err
			}
			qx, err := tensor.QuantizePerTensor(t, p)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			fmt.Printf("params: %s\n", p)
			fmt.Printf("input:  %v\n", qx.IntRepr())
			fmt.Printf("relu:   %v\n", functional.ReLU(qx).IntRepr())

			if err := conformance.CheckReLU(x, scale, zp); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Println("match:  true")
			return nil
		},
	}
}
