// Package simd reports the native vector register width of the host CPU.
//
// pixfunc uses the width to size the lane batches of vectorized loops: a
// vectorized loop whose constant extent is wider than the register is
// processed in register-sized chunks.
package simd

import (
	"sync"

	"golang.org/x/sys/cpu"
)

// baselineBytes is used when no wider unit is detected, matching the
// 128-bit registers every amd64 and arm64 CPU provides.
const baselineBytes = 16

var (
	detectOnce sync.Once
	widthBytes int
	widthName  string
)

// features are the CPU flags the width depends on.
type features struct {
	avx512, avx2, sse2, neon bool
}

func hostFeatures() features {
	return features{
		avx512: cpu.X86.HasAVX512F,
		avx2:   cpu.X86.HasAVX2,
		sse2:   cpu.X86.HasSSE2,
		neon:   cpu.ARM64.HasASIMD,
	}
}

// unit picks the widest vector unit f provides. Callers that want a
// narrower width set it explicitly in their configuration.
func unit(f features) (bytes int, name string) {
	switch {
	case f.avx512:
		return 64, "avx512"
	case f.avx2:
		return 32, "avx2"
	case f.sse2:
		return baselineBytes, "sse2"
	case f.neon:
		return baselineBytes, "neon"
	}
	return baselineBytes, "baseline"
}

func detect() {
	widthBytes, widthName = unit(hostFeatures())
}

// WidthBytes returns the vector register width in bytes.
func WidthBytes() int {
	detectOnce.Do(detect)
	return widthBytes
}

// Name returns a short name for the detected vector unit.
func Name() string {
	detectOnce.Do(detect)
	return widthName
}

// Lanes returns how many elements of elemBytes fit in one register.
// It is at least 1.
func Lanes(elemBytes int) int {
	if elemBytes <= 0 {
		return 1
	}
	return max(1, WidthBytes()/elemBytes)
}
