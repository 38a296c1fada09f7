// Package cpuinfo probes the host CPU once and describes which kernel variants
// it can run.
package cpuinfo

import (
	"log/slog"
	"strings"

	"golang.org/x/sys/cpu"
)

// Features is an immutable snapshot of the vector extensions the kernels care about.
type Features struct {
	AVX2    bool
	AVX512F bool
	FMA     bool
	NEON    bool
	DotProd bool
}

// Detect reads the host CPU flags.
func Detect() Features {
	f := Features{
		AVX2:    cpu.X86.HasAVX2,
		AVX512F: cpu.X86.HasAVX512F,
		FMA:     cpu.X86.HasFMA,
		NEON:    cpu.ARM64.HasASIMD,
		DotProd: cpu.ARM64.HasASIMDDP,
	}
	if f.HasSIMD() {
		slog.Debug("cpu has vector extensions", "features", f.String())
	} else {
		slog.Debug("cpu does not have vector extensions")
	}
	return f
}

// Scalar returns a Features value with every extension disabled.
func Scalar() Features {
	return Features{}
}

// HasSIMD reports whether any vector extension used by the wide kernels is present.
func (f Features) HasSIMD() bool {
	return f.AVX2 || f.AVX512F || f.NEON
}

// String lists the detected extensions, or reports the scalar fallback.
func (f Features) String() string {
	var names []string
	if f.AVX2 {
		names = append(names, "AVX2")
	}
	if f.AVX512F {
		names = append(names, "AVX512F")
	}
	if f.FMA {
		names = append(names, "FMA")
	}
	if f.NEON {
		names = append(names, "NEON")
	}
	if f.DotProd {
		names = append(names, "DotProd")
	}
	if len(names) == 0 {
		return "none (scalar fallback)"
	}
	return strings.Join(names, ", ")
}
