package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qconv/internal/conformance"
	"github.com/samcharles93/qconv/internal/logger"
	"github.com/samcharles93/qconv/internal/nn"
	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/pkg/quant"
)

func convCmd() *cli.Command {
	var (
		inputPath   string
		inputShape  string
		weightPath  string
		weightShape string
		biasPath    string
		outputPath  string
		scale       float64
		zeroPoint   int64
		dtype       string
		padding     string
		stride      string
		dilation    string
	)

	return &cli.Command{
		Name:  "conv",
		Usage: "Run both convolution paths on raw float32 tensors and compare them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "raw little-endian float32 input, NCHW",
				Required:    true,
				Destination: &inputPath,
			},
			&cli.StringFlag{
				Name:        "input-shape",
				Usage:       "N,C,H,W",
				Required:    true,
				Destination: &inputShape,
			},
			&cli.StringFlag{
				Name:        "weight",
				Aliases:     []string{"w"},
				Usage:       "raw little-endian float32 filter, OIHW",
				Required:    true,
				Destination: &weightPath,
			},
			&cli.StringFlag{
				Name:        "weight-shape",
				Usage:       "O,C,KH,KW",
				Required:    true,
				Destination: &weightShape,
			},
			&cli.StringFlag{
				Name:        "bias",
				Usage:       "raw little-endian float32 bias of length O",
				Destination: &biasPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Usage:       "write the dequantized NHWC module output here",
				Destination: &outputPath,
			},
			&cli.Float64Flag{
				Name:        "scale",
				Value:       1.0 / 32,
				Destination: &scale,
			},
			&cli.Int64Flag{
				Name:        "zero-point",
				Aliases:     []string{"zp"},
				Destination: &zeroPoint,
			},
			&cli.StringFlag{
				Name:        "dtype",
				Value:       "quint8",
				Destination: &dtype,
			},
			&cli.StringFlag{
				Name:        "padding",
				Value:       "0",
				Destination: &padding,
			},
			&cli.StringFlag{
				Name:        "stride",
				Value:       "1",
				Destination: &stride,
			},
			&cli.StringFlag{
				Name:        "dilation",
				Value:       "1",
				Destination: &dilation,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			s, err := loadScenario(inputPath, inputShape, weightPath, weightShape, biasPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}
			s.Scale = scale
			if s.ZeroPoint, err = zeroPointArg(zeroPoint); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}
			if s.DType, err = quant.ParseDType(dtype); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}
			s.QMin, s.QMax = s.DType.Range()
			var dil [2]int
			for _, f := range []struct {
				raw string
				dst *[2]int
			}{{padding, &s.Padding}, {stride, &s.Stride}, {dilation, &dil}} {
				if *f.dst, err = parsePair(f.raw); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 2)
				}
			}
			s.Dilation = &dil

			outcome, err := conformance.Check(s)
			var mm *conformance.MismatchError
			switch {
			case errors.As(err, &mm):
				return cli.Exit(mm.Error(), 1)
			case errors.Is(err, conformance.ErrAssumption):
				log.Warn("scenario outside the checked domain", "reason", err)
				fmt.Printf("outcome: %s\n", conformance.Skipped)
				return nil
			case err != nil:
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}
			fmt.Printf("outcome: %s\n", outcome)
			if outcome != conformance.Match {
				return nil
			}

			oh, ow := s.OutputHW()
			fmt.Printf("output:  [%d %d %d %d] NHWC\n", s.XShape[0], oh, ow, s.WShape[0])
			if outputPath != "" {
				if err := writeModuleOutput(s, outputPath); err != nil {
					return err
				}
				log.Info("wrote output", "path", outputPath)
			}
			return nil
		},
	}
}

func loadScenario(inputPath, inputShape, weightPath, weightShape, biasPath string) (conformance.Scenario, error) {
	xs, err := parseInts(inputShape, 4)
	if err != nil {
		return conformance.Scenario{}, fmt.Errorf("input-shape: %w", err)
	}
	ws, err := parseInts(weightShape, 4)
	if err != nil {
		return conformance.Scenario{}, fmt.Errorf("weight-shape: %w", err)
	}
	x, err := tensor.LoadRaw(inputPath, xs...)
	if err != nil {
		return conformance.Scenario{}, err
	}
	w, err := tensor.LoadRaw(weightPath, ws...)
	if err != nil {
		return conformance.Scenario{}, err
	}
	s := conformance.Scenario{
		X:      x.Data,
		XShape: [4]int(xs),
		W:      w.Data,
		WShape: [4]int(ws),
	}
	if biasPath != "" {
		b, err := tensor.LoadRaw(biasPath, ws[0])
		if err != nil {
			return conformance.Scenario{}, err
		}
		s.B = b.Data
	}
	return s, nil
}

func writeModuleOutput(s conformance.Scenario, path string) error {
	q, err := s.Quantize()
	if err != nil {
		return err
	}
	m, err := nn.NewConv2d(nn.Conv2dConfig{
		Weight:    q.W,
		Bias:      q.B,
		Params:    s.Params(),
		Scale:     s.Scale,
		ZeroPoint: s.ZeroPoint,
		DType:     s.DType,
	})
	if err != nil {
		return err
	}
	out, err := m.Forward(q.X)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tensor.WriteRaw(f, out.Dequantize()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
