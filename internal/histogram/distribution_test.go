package histogram

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAndTruncate(t *testing.T) {
	d := New(Axis{Delta: 0.1, NBins: 100}, false)
	d.Add(5, 8, 0.5)
	d.Add(20, 24, 2.0)
	d.Add(28, 24, 2.83)
	d.Add(35, 8, 3.46)
	require.Equal(t, 8.0, d.Count[5])
	require.Equal(t, 35, d.HighestNonzero())

	d.Truncate(10)
	require.Len(t, d.Count, 36)
}

func TestTruncateMinSize(t *testing.T) {
	d := New(Axis{Delta: 0.1, NBins: 100}, false)
	d.Add(2, 5, 0.2)
	d.Truncate(10)
	require.Len(t, d.Count, 10)
}

func TestAddSubRoundTrip(t *testing.T) {
	a := New(Axis{Delta: 0.1, NBins: 10}, false)
	b := New(Axis{Delta: 0.1, NBins: 10}, false)
	a.Add(3, 5, 0.3)
	b.Add(3, 2, 0.3)
	orig := a.Clone()
	require.NoError(t, a.AddDistribution(b))
	require.Equal(t, 7.0, a.Count[3])
	require.NoError(t, a.SubDistribution(b))
	require.Equal(t, orig.Count, a.Count)
}

func TestWeightedMean(t *testing.T) {
	d := New(Axis{Delta: 1.0, NBins: 10}, true)
	d.Add(3, 1, 2.9)
	d.Add(3, 1, 3.1)
	require.InDelta(t, 3.0, d.Mean[3], 1e-9)
	require.InDelta(t, 2.0, d.Count[3], 1e-9)
}

func TestSizeMismatch(t *testing.T) {
	a := New(Axis{Delta: 0.1, NBins: 5}, false)
	b := New(Axis{Delta: 0.1, NBins: 10}, false)
	require.Error(t, a.AddDistribution(b))
	require.Error(t, a.SubDistribution(b))
}

func TestResizeGrowShrink(t *testing.T) {
	d := New(Axis{Delta: 0.1, NBins: 5}, true)
	d.Add(2, 1, 0.2)
	d.Resize(10)
	require.Len(t, d.Count, 10)
	require.Equal(t, 1.0, d.Count[2])
	d.Resize(3)
	require.Len(t, d.Count, 3)
}
