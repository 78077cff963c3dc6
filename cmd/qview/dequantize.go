package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qview/internal/logger"
	"github.com/samcharles93/qview/internal/safetensors"
	"github.com/samcharles93/qview/internal/tensor"
)

func dequantizeCmd() *cli.Command {
	var (
		input  string
		output string
		names  []string
		repr   bool
		only   bool
	)

	flags := ioFlags(&input, &output)
	flags = append(flags,
		&cli.StringSliceFlag{
			Name:        "tensor",
			Aliases:     []string{"t"},
			Usage:       "tensor to dequantize (repeatable; default: every quantized tensor)",
			Destination: &names,
		},
		&cli.BoolFlag{
			Name:        "int-repr",
			Usage:       "write the stored integers instead of float32 values",
			Destination: &repr,
		},
		&cli.BoolFlag{
			Name:        "only",
			Usage:       "write only the dequantized tensors",
			Destination: &only,
		},
	)
	flags = append(flags, launchFlags()...)

	return &cli.Command{
		Name:  "dequantize",
		Usage: "Expand quantized tensors of a .safetensors file back to float32",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			start := time.Now()

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
				return info.Quant != nil
			})
			if err != nil {
				return err
			}

			results, err := transformAll(ctx, f, selected, func(ctx context.Context, q *tensor.Tensor) (*tensor.Tensor, error) {
				if repr {
					return engine.IntRepr(ctx, q)
				}
				return engine.Dequantize(ctx, q)
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
			log.Info("dequantize complete",
				"tensors", len(selected),
				"int_repr", repr,
				"output", output,
				"elapsed", time.Since(start),
			)
			return nil
		},
	}
}
