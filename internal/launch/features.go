package launch

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// System describes the host the CPU launchers run on.
type System struct {
	GoVersion  string          `json:"go_version" yaml:"go_version"`
	GoOS       string          `json:"go_os" yaml:"go_os"`
	GoArch     string          `json:"go_arch" yaml:"go_arch"`
	CPUs       int             `json:"cpus" yaml:"cpus"`
	GoMaxProcs int             `json:"gomaxprocs" yaml:"gomaxprocs"`
	Features   map[string]bool `json:"features" yaml:"features"`
}

// DescribeSystem reports the runtime and the CPU features visible to it.
func DescribeSystem() System {
	features := map[string]bool{}
	switch runtime.GOARCH {
	case "amd64", "386":
		features["AVX"] = cpu.X86.HasAVX
		features["AVX2"] = cpu.X86.HasAVX2
		features["FMA"] = cpu.X86.HasFMA
		features["AVX512F"] = cpu.X86.HasAVX512F
		features["AVX512VNNI"] = cpu.X86.HasAVX512VNNI
	case "arm64":
		features["ASIMD"] = cpu.ARM64.HasASIMD
		features["ASIMDDP"] = cpu.ARM64.HasASIMDDP
		features["SVE"] = cpu.ARM64.HasSVE
	}
	return System{
		GoVersion:  runtime.Version(),
		GoOS:       runtime.GOOS,
		GoArch:     runtime.GOARCH,
		CPUs:       runtime.NumCPU(),
		GoMaxProcs: runtime.GOMAXPROCS(0),
		Features:   features,
	}
}
