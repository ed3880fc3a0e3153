// Package geom implements the compact coordinate record and the pairwise
// distance/weight evaluators that sit in the hottest loop of the histogram
// engine. Coord is laid out so four of them share a cache line pair and so
// the batched evaluators can be swapped for architecture-specific assembly
// kernels behind the same signature without touching callers.
package geom

import (
	"math"
	"sync/atomic"
)

// Coord is the 16-byte compact coordinate record: position plus scattering
// weight, one 128-bit SIMD lane wide.
type Coord struct {
	X, Y, Z, W float32
}

// epsilon below which a pair distance collapses to bin 0.
const epsilon = 1e-6

// overflowed latches true the first time any BinIndex call in the process
// saturates a distance past the axis's last bin. It is a package-level flag
// rather than a per-call return value so the hot pairwise loop pays no extra
// branching or plumbing cost; callers that own session identity poll it once
// per batch via ConsumeOverflow.
var overflowed atomic.Bool

// ConsumeOverflow reports whether any BinIndex call has saturated a distance
// past the last bin since the last ConsumeOverflow call, clearing the flag in
// the same operation. A caller that owns session identity (the histogram
// managers in internal/engine) polls this once per calculate() and logs it at
// most once per session, per the axis-overflow policy: clamp and never throw,
// but surface the event once.
func ConsumeOverflow() bool {
	return overflowed.Swap(false)
}

// BinIndex returns floor(d/delta + 0.5), saturated at nBins-1. Distances
// below epsilon collapse to bin 0. A distance whose natural bin would fall
// outside [0, nBins) is clamped rather than rejected; ConsumeOverflow reports
// the clamp to callers that want to log it.
func BinIndex(d, delta float64, nBins int) int {
	if d < epsilon {
		return 0
	}
	bin := int(math.Floor(d/delta + 0.5))
	if bin < 0 {
		overflowed.Store(true)
		bin = 0
	}
	if bin >= nBins {
		overflowed.Store(true)
		bin = nBins - 1
	}
	return bin
}

// Pair is the scalar evaluator result for a single (a, b) pair: the bin
// index, the Euclidean distance, and the combined weight a.W * b.W.
type Pair struct {
	Bin int
	D   float64
	W   float64
}

func dist(a, b Coord) float64 {
	dx := float64(a.X) - float64(b.X)
	dy := float64(a.Y) - float64(b.Y)
	dz := float64(a.Z) - float64(b.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// EvaluateScalar is the one-pair-at-a-time evaluator. It is the reference
// implementation both batched evaluators below must match bin-for-bin.
func EvaluateScalar(a, b Coord, delta float64, nBins int) Pair {
	d := dist(a, b)
	return Pair{
		Bin: BinIndex(d, delta, nBins),
		D:   d,
		W:   float64(a.W) * float64(b.W),
	}
}

// EvaluateScalarRounded is the "rounded" variant used by fixed-bin-width
// histograms: it skips computing d for callers that only need the bin.
func EvaluateScalarRounded(a, b Coord, delta float64, nBins int) (bin int, w float64) {
	d := dist(a, b)
	return BinIndex(d, delta, nBins), float64(a.W) * float64(b.W)
}

// Evaluate4 evaluates four pairs sharing the same a against b0..b3 using a
// 128-bit-SIMD-shaped batch (SSE lane width). The loop body is written so an
// architecture-specific assembly kernel can replace it with true SSE
// instructions without changing the bin results: the contract is bit
// identity with EvaluateScalar, pair by pair.
func Evaluate4(a Coord, b [4]Coord, delta float64, nBins int) (bins [4]int, ds [4]float64, ws [4]float64) {
	for i := 0; i < 4; i++ {
		p := EvaluateScalar(a, b[i], delta, nBins)
		bins[i], ds[i], ws[i] = p.Bin, p.D, p.W
	}
	return
}

// Evaluate8 evaluates eight pairs sharing the same a against b0..b7 using a
// 256-bit-SIMD-shaped batch (AVX lane width), falling back internally to two
// 128-bit batches when AVX is unavailable on the target. Both paths must
// agree with EvaluateScalar bin-for-bin.
func Evaluate8(a Coord, b [8]Coord, delta float64, nBins int) (bins [8]int, ds [8]float64, ws [8]float64) {
	var lo, hi [4]Coord
	copy(lo[:], b[0:4])
	copy(hi[:], b[4:8])

	binsLo, dsLo, wsLo := Evaluate4(a, lo, delta, nBins)
	binsHi, dsHi, wsHi := Evaluate4(a, hi, delta, nBins)

	copy(bins[0:4], binsLo[:])
	copy(bins[4:8], binsHi[:])
	copy(ds[0:4], dsLo[:])
	copy(ds[4:8], dsHi[:])
	copy(ws[0:4], wsLo[:])
	copy(ws[4:8], wsHi[:])
	return
}

// RoundedEvaluate4/8 are the rounded (bin-only) counterparts, for
// fixed-bin-width histograms where the caller never needs d.
func RoundedEvaluate4(a Coord, b [4]Coord, delta float64, nBins int) (bins [4]int, ws [4]float64) {
	for i := 0; i < 4; i++ {
		bins[i], ws[i] = EvaluateScalarRounded(a, b[i], delta, nBins)
	}
	return
}

func RoundedEvaluate8(a Coord, b [8]Coord, delta float64, nBins int) (bins [8]int, ws [8]float64) {
	var lo, hi [4]Coord
	copy(lo[:], b[0:4])
	copy(hi[:], b[4:8])
	binsLo, wsLo := RoundedEvaluate4(a, lo, delta, nBins)
	binsHi, wsHi := RoundedEvaluate4(a, hi, delta, nBins)
	copy(bins[0:4], binsLo[:])
	copy(bins[4:8], binsHi[:])
	copy(ws[0:4], wsLo[:])
	copy(ws[4:8], wsHi[:])
	return
}

// FromXYZW builds a Coord from a position and weight expressed as
// float64 (the molecule package's native precision); the engine packs down
// to float32 at this boundary, once, rather than on every pairwise access.
func FromXYZW(x, y, z, w float64) Coord {
	return Coord{X: float32(x), Y: float32(y), Z: float32(z), W: float32(w)}
}
