package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/qview/internal/launch"
	"github.com/samcharles93/qview/internal/safetensors"
	"github.com/samcharles93/qview/pkg/dtype"
)

type inspectTensor struct {
	Name      string   `json:"name" yaml:"name"`
	DType     string   `json:"dtype" yaml:"dtype"`
	Storage   string   `json:"storage_dtype" yaml:"storage_dtype"`
	Shape     []int    `json:"shape" yaml:"shape,flow"`
	Bytes     int64    `json:"bytes" yaml:"bytes"`
	QScheme   string   `json:"qscheme,omitempty" yaml:"qscheme,omitempty"`
	Scale     *float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
	ZeroPoint *int64   `json:"zero_point,omitempty" yaml:"zero_point,omitempty"`
}

type inspectReport struct {
	Path     string            `json:"path" yaml:"path"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Tensors  []inspectTensor   `json:"tensors" yaml:"tensors"`
	System   *launch.System    `json:"system,omitempty" yaml:"system,omitempty"`
}

func inspectCmd() *cli.Command {
	var (
		input      string
		format     string
		filter     string
		showSystem bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "List the tensors of a .safetensors file with their quantization parameters",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "path to .safetensors file",
				Destination: &input,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"f"},
				Usage:       "output format (text, json, yaml)",
				Value:       "text",
				Destination: &format,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "only list tensors whose name contains this substring",
				Destination: &filter,
			},
			&cli.BoolFlag{
				Name:        "system",
				Usage:       "include the host runtime and CPU features",
				Destination: &showSystem,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := safetensors.Open(input)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			report := buildReport(f, filter)
			if showSystem {
				sys := launch.DescribeSystem()
				report.System = &sys
			}

			w := cmd.Root().Writer
			switch strings.ToLower(format) {
			case "text", "":
				return writeReportText(w, report)
			case "json":
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(data))
				return err
			case "yaml":
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(report); err != nil {
					return err
				}
				return enc.Close()
			default:
				return fmt.Errorf("unknown format %q (expected text, json, or yaml)", format)
			}
		},
	}
}

func buildReport(f *safetensors.File, filter string) inspectReport {
	report := inspectReport{Path: f.Path, Metadata: f.Metadata, Tensors: []inspectTensor{}}
	for _, name := range f.Names() {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		info, _ := f.Info(name)
		it := inspectTensor{
			Name:    name,
			DType:   info.DType.String(),
			Storage: info.DType.String(),
			Shape:   info.Shape,
			Bytes:   info.End - info.Start,
		}
		if it.Shape == nil {
			it.Shape = []int{}
		}
		if q := info.Quant; q != nil {
			if qtype, err := dtype.ToQIntType(info.DType); err == nil {
				it.DType = qtype.String()
			}
			scale, zp := q.Scale, q.ZeroPoint
			it.QScheme = string(q.Scheme)
			it.Scale = &scale
			it.ZeroPoint = &zp
		}
		report.Tensors = append(report.Tensors, it)
	}
	return report
}

func writeReportText(w io.Writer, r inspectReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "file: %s\n", r.Path)
	if len(r.Metadata) > 0 {
		keys := make([]string, 0, len(r.Metadata))
		for k := range r.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString("metadata:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s = %s\n", k, r.Metadata[k])
		}
	}
	fmt.Fprintf(&b, "tensors (%d):\n", len(r.Tensors))
	for _, t := range r.Tensors {
		fmt.Fprintf(&b, "  %-32s %-8s %v", t.Name, t.DType, t.Shape)
		if t.Scale != nil {
			fmt.Fprintf(&b, " scale=%g zero_point=%d", *t.Scale, *t.ZeroPoint)
		}
		b.WriteByte('\n')
	}
	if r.System != nil {
		s := r.System
		fmt.Fprintf(&b, "system: %s %s/%s cpus=%d gomaxprocs=%d\n", s.GoVersion, s.GoOS, s.GoArch, s.CPUs, s.GoMaxProcs)
		names := make([]string, 0, len(s.Features))
		for k := range s.Features {
			names = append(names, k)
		}
		slices.Sort(names)
		for _, k := range names {
			fmt.Fprintf(&b, "  %-12s %v\n", k, s.Features[k])
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
