package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qview/internal/logger"
	"github.com/samcharles93/qview/internal/safetensors"
	"github.com/samcharles93/qview/internal/tensor"
	"github.com/samcharles93/qview/pkg/dtype"
)

func quantizeCmd() *cli.Command {
	var (
		input     string
		output    string
		names     []string
		scale     float64
		zeroPoint int64
		target    string
		only      bool
	)

	flags := ioFlags(&input, &output)
	flags = append(flags,
		&cli.StringSliceFlag{
			Name:        "tensor",
			Aliases:     []string{"t"},
			Usage:       "tensor to quantize (repeatable; default: every uint8, int8 and int32 tensor)",
			Destination: &names,
		},
		&cli.Float64Flag{
			Name:        "scale",
			Usage:       "quantization scale",
			Value:       1,
			Destination: &scale,
		},
		&cli.Int64Flag{
			Name:        "zero-point",
			Aliases:     []string{"zp"},
			Usage:       "quantization zero point",
			Destination: &zeroPoint,
		},
		&cli.StringFlag{
			Name:        "dtype",
			Usage:       "also quantize floating point tensors to this type (quint8, qint8, qint32)",
			Destination: &target,
		},
		&cli.BoolFlag{
			Name:        "only",
			Usage:       "write only the quantized tensors",
			Destination: &only,
		},
	)
	flags = append(flags, launchFlags()...)

	return &cli.Command{
		Name:  "quantize",
		Usage: "Tag integer tensors of a .safetensors file with a per-tensor scale and zero point",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			start := time.Now()

			var qtype dtype.ScalarType
			if target != "" {
				t, err := dtype.Parse(target)
				if err != nil {
					return err
				}
				if !t.IsQuantized() {
					return fmt.Errorf("--dtype %s is not a quantized type", t)
				}
				qtype = t
			}

			engine, release, err := newEngine(ctx, cmd)
			if err != nil {
				return err
			}
			defer release()

			f, err := safetensors.Open(input)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			selected, err := selectTensors(f, names, func(info safetensors.TensorInfo) bool {
				if info.Quant != nil {
					return false
				}
				if _, err := dtype.ToQIntType(info.DType); err == nil {
					return true
				}
				return qtype != dtype.Unknown && info.DType.IsFloating()
			})
			if err != nil {
				return err
			}

			results, err := transformAll(ctx, f, selected, func(ctx context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
				if qtype != dtype.Unknown && x.DType().IsFloating() {
					return engine.QuantizePerTensor(ctx, x, scale, zeroPoint, qtype)
				}
				return engine.MakePerTensorQuantized(ctx, x, scale, zeroPoint)
			})
			if err != nil {
				return err
			}

			entries, err := outputEntries(f, selected, results, only)
			if err != nil {
				return err
			}
			done := logger.Timed(log, "output written", "path", output, "entries", len(entries))
			if err := safetensors.WriteFile(output, entries, f.Metadata); err != nil {
				return err
			}
			done()
			for i, name := range selected {
				log.Debug("tensor quantized", "name", name, "tensor", results[i].String())
			}
			log.Info("quantize complete",
				"tensors", len(selected),
				"output", output,
				"elapsed", time.Since(start),
			)
			return nil
		},
	}
}
