package calculator

import (
	"testing"

	"github.com/openstructure/saxsengine/internal/geom"
	"github.com/openstructure/saxsengine/internal/histogram"
	"github.com/stretchr/testify/require"
)

func unitCubeCoords() []geom.Coord {
	var pts []geom.Coord
	for _, sx := range []float32{-1, 1} {
		for _, sy := range []float32{-1, 1} {
			for _, sz := range []float32{-1, 1} {
				pts = append(pts, geom.Coord{X: sx, Y: sy, Z: sz, W: 1})
			}
		}
	}
	return pts
}

func TestEnqueueSelfUnitCube(t *testing.T) {
	axis := histogram.Axis{Delta: 0.1, NBins: 200}
	c := New(axis, false, 2, 4)
	_, err := c.EnqueueSelf(unitCubeCoords(), 1, -1)
	require.NoError(t, err)
	results := c.Run()
	d := results.Slots[0]

	require.Equal(t, 8.0, d.Count[0])
	require.Equal(t, 24.0, d.Count[geom.BinIndex(2, axis.Delta, axis.NBins)])
	require.Equal(t, 24.0, d.Count[geom.BinIndex(2.8284271247461903, axis.Delta, axis.NBins)])
	require.Equal(t, 8.0, d.Count[geom.BinIndex(3.4641016151377544, axis.Delta, axis.NBins)])
}

func TestEnqueueSelfThreadCountInvariant(t *testing.T) {
	axis := histogram.Axis{Delta: 0.1, NBins: 200}
	coords := unitCubeCoords()
	for _, threads := range []int{1, 2, 4, 8} {
		c := New(axis, false, threads, 1)
		_, err := c.EnqueueSelf(coords, 1, -1)
		require.NoError(t, err)
		res := c.Run()
		require.Equal(t, 8.0, res.Slots[0].Count[0])
	}
}

func TestEnqueueCrossTwoBodies(t *testing.T) {
	axis := histogram.Axis{Delta: 0.1, NBins: 50}
	c := New(axis, false, 1, 200)
	a := []geom.Coord{{X: 0, Y: 0, Z: 0, W: 1}}
	b := []geom.Coord{{X: 1, Y: 0, Z: 0, W: 1}}
	selfA, _ := c.EnqueueSelf(a, 1, -1)
	selfB, _ := c.EnqueueSelf(b, 1, -1)
	cross, _ := c.EnqueueCross(a, b, 1, -1)
	res := c.Run()

	total := res.Slots[selfA].Clone()
	require.NoError(t, total.AddDistribution(res.Slots[selfB]))
	require.NoError(t, total.AddDistribution(res.Slots[cross]))

	require.Equal(t, 2.0, total.Count[0])
	require.Equal(t, 2.0, total.Count[geom.BinIndex(1, axis.Delta, axis.NBins)])
}

func TestMergeIDSharesSlot(t *testing.T) {
	axis := histogram.Axis{Delta: 0.1, NBins: 50}
	c := New(axis, false, 1, 200)
	a := []geom.Coord{{X: 0, Y: 0, Z: 0, W: 1}}
	b := []geom.Coord{{X: 1, Y: 0, Z: 0, W: 1}}
	slot1, _ := c.EnqueueCross(a, b, 1, 7)
	slot2, _ := c.EnqueueCross(a, b, 1, 7)
	require.Equal(t, slot1, slot2)
	res := c.Run()
	// Both enqueues wrote into the same slot: double the single-pair weight.
	require.Equal(t, 4.0, res.Slots[slot1].Count[geom.BinIndex(1, axis.Delta, axis.NBins)])
}

func TestScalingOutOfRange(t *testing.T) {
	axis := histogram.Axis{Delta: 0.1, NBins: 50}
	c := New(axis, false, 1, 200)
	_, err := c.EnqueueSelf(unitCubeCoords(), 0, -1)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = c.EnqueueSelf(unitCubeCoords(), 31, -1)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestEmptyInputIsIdentity(t *testing.T) {
	axis := histogram.Axis{Delta: 0.1, NBins: 50}
	c := New(axis, false, 1, 200)
	slot, err := c.EnqueueSelf(nil, 1, -1)
	require.NoError(t, err)
	res := c.Run()
	for _, v := range res.Slots[slot].Count {
		require.Equal(t, 0.0, v)
	}
}
