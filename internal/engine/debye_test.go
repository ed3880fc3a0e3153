package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openstructure/saxsengine/internal/histogram"
	"github.com/openstructure/saxsengine/internal/sinctable"
)

func unitAxis(nbins int) histogram.Axis {
	return histogram.Axis{Delta: 1.0, NBins: nbins}
}

// buildSimpleComposite puts selfWeightSq in the single AA channel, awWeight
// in the AW channel and wwWeightSq in the water-water channel, all at bin 0
// (distance 0), mirroring how the histogram manager would populate a composite
// from calculator output.
func buildSimpleComposite(axis histogram.Axis, selfWeightSq, awWeight, wwWeightSq float64) *Composite {
	c := NewComposite(axis, 1, false, false)
	c.aaDist(0, 0).Add(0, selfWeightSq, 0)
	c.awDist(0).Add(0, awWeight, 0)
	c.WW.Add(0, wwWeightSq, 0)
	return c
}

func TestForwardScatteringIdentity(t *testing.T) {
	// q=0 with c_w=1, c_x=0, c_s=1, B_a=B_x=0 must sum to (sum weights)^2.
	// Two atoms of weight 2 and 3 (diagonal 4+9=13, cross 2*2*3=12)
	// plus one water of weight 1 (cross 2*2*1 + 2*3*1=10, diagonal 1) gives a
	// total weight of 2+3+1=6, so I(0) must equal 36.
	axis := unitAxis(4)
	c := NewComposite(axis, 1, false, false)
	c.aaDist(0, 0).Add(0, 4+9, 0)  // diagonal: 2^2 + 3^2
	c.aaDist(0, 0).Add(1, 12, 0)   // cross: 2*2*3
	c.awDist(0).Add(1, 10, 0)      // cross: 2*(2*1 + 3*1)
	c.WW.Add(0, 1, 0)              // diagonal: 1^2

	qAxis := []float64{0}
	sinc := sinctable.Build(qAxis, axis.Delta, axis.NBins)
	ff := DefaultGaussianFormFactors(1)
	profile := Transform(c, qAxis, sinc, ff, nil, DefaultFreeParams())

	require.InDelta(t, 36.0, profile.I[0], 1e-9)
}

func TestDebyeWallerIdentityAtZero(t *testing.T) {
	require.InDelta(t, 1.0, DebyeWaller(0, 0), 1e-12)
	require.InDelta(t, 1.0, DebyeWaller(5, 0), 1e-12)
	require.Less(t, DebyeWaller(5, 1), 1.0)
}

func TestTransformMonotoneDecayWithFormFactor(t *testing.T) {
	axis := unitAxis(4)
	c := buildSimpleComposite(axis, 4, 2, 1)
	qAxis := sinctable.LogSpace(1e-3, 1.0, 16)
	sinc := sinctable.Build(qAxis, axis.Delta, axis.NBins)
	ff := DefaultGaussianFormFactors(1)
	profile := Transform(c, qAxis, sinc, ff, nil, DefaultFreeParams())
	require.Len(t, profile.I, len(qAxis))
	// Gaussian form factors decay monotonically with q, and no oscillatory
	// structure is present at this single-bin scale, so I(q) should trend
	// downward overall.
	require.Less(t, profile.I[len(profile.I)-1], profile.I[0])
}

func TestProfileCacheMatchesUncachedTransform(t *testing.T) {
	axis := unitAxis(6)
	c := buildSimpleComposite(axis, 4, 2, 1)
	qAxis := sinctable.LogSpace(1e-3, 1.0, 8)
	sinc := sinctable.Build(qAxis, axis.Delta, axis.NBins)
	ff := DefaultGaussianFormFactors(1)

	want := Transform(c, qAxis, sinc, ff, nil, DefaultFreeParams())

	cache := NewProfileCache()
	_ = cache.Compute(c, qAxis, sinc, ff, nil, FreeParams{Cw: 0.7, Cx: 0, Cs: 1})
	got := cache.Compute(c, qAxis, sinc, ff, nil, DefaultFreeParams())

	for i := range want.I {
		require.True(t, math.Abs(want.I[i]-got.I[i]) < 1e-9, "index %d: want %v got %v", i, want.I[i], got.I[i])
	}
}

func TestCompositeTotalSumsChannels(t *testing.T) {
	axis := unitAxis(4)
	c := buildSimpleComposite(axis, 4, 2, 1)
	total := c.Total()
	require.InDelta(t, 4+2+1, total.Count[0]+total.Count[1], 1e-9)
}
