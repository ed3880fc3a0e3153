package symmetry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openstructure/saxsengine/internal/calculator"
	"github.com/openstructure/saxsengine/internal/geom"
	"github.com/openstructure/saxsengine/internal/histogram"
	"github.com/openstructure/saxsengine/internal/molecule"
)

func TestNoSymmetryMatchesIdentity(t *testing.T) {
	atoms := []molecule.Atom{{X: 0, Y: 0, Z: 0, Weight: 1}, {X: 1, Y: 0, Z: 0, Weight: 1}}
	plan := BuildPlan(atoms, nil)
	require.Equal(t, 1, plan.SelfScaling)
	require.Empty(t, plan.Cross)
	require.Len(t, plan.SelfCoords, 2)
}

func TestSingleAtomOneTranslation(t *testing.T) {
	// Single atom, one P2 op translating by (1,0,0): expands to 2 coordinates.
	atoms := []molecule.Atom{{X: 0, Y: 0, Z: 0, Weight: 1}}
	ops := []molecule.SymmetryOp{{Translation: [3]float64{1, 0, 0}, Repeat: 1}}
	plan := BuildPlan(atoms, ops)
	require.Equal(t, 2, plan.SelfScaling) // parent + 1 replica
	require.Len(t, plan.Cross, 1)

	axis := histogram.Axis{Delta: 0.1, NBins: 50}
	c := calculator.New(axis, false, 1, 200)
	selfSlot, err := c.EnqueueSelf(plan.SelfCoords, plan.SelfScaling, -1)
	require.NoError(t, err)
	crossSlot, err := c.EnqueueCross(plan.Cross[0].A, plan.Cross[0].B, plan.Cross[0].Scaling, -1)
	require.NoError(t, err)
	res := c.Run()

	total := res.Slots[selfSlot].Clone()
	require.NoError(t, total.AddDistribution(res.Slots[crossSlot]))

	require.Equal(t, 2.0, total.Count[0])
	require.Equal(t, 2.0, total.Count[geom.BinIndex(1, axis.Delta, axis.NBins)])
}

func TestRepeatGeneratesCorrectReplicaCount(t *testing.T) {
	atoms := []molecule.Atom{{X: 0, Y: 0, Z: 0, Weight: 1}}
	ops := []molecule.SymmetryOp{
		{Translation: [3]float64{1, 0, 0}, Repeat: 2},
		{Translation: [3]float64{0, 1, 0}, Repeat: 1},
	}
	exp := ExpandAtoms(atoms, ops)
	require.Equal(t, 4, exp.ReplicaCount()) // 1 + 2 + 1
	require.Len(t, exp.Replicas, 3)
}

func TestReplicaTranslationComposesLinearly(t *testing.T) {
	atoms := []molecule.Atom{{X: 0, Y: 0, Z: 0, Weight: 1}}
	ops := []molecule.SymmetryOp{{Translation: [3]float64{2, 0, 0}, Repeat: 3}}
	exp := ExpandAtoms(atoms, ops)
	require.InDelta(t, 2.0, exp.Replicas[0][0].X, 1e-6)
	require.InDelta(t, 4.0, exp.Replicas[1][0].X, 1e-6)
	require.InDelta(t, 6.0, exp.Replicas[2][0].X, 1e-6)
}

func TestRotationAboutPivot(t *testing.T) {
	// 90 degree rotation about Z axis, pivot at origin: (1,0,0) -> (0,1,0).
	atoms := []molecule.Atom{{X: 1, Y: 0, Z: 0, Weight: 1}}
	ops := []molecule.SymmetryOp{{EulerXYZ: [3]float64{0, 0, 1.5707963267948966}, Repeat: 1}}
	exp := ExpandAtoms(atoms, ops)
	require.InDelta(t, 0.0, exp.Replicas[0][0].X, 1e-5)
	require.InDelta(t, 1.0, exp.Replicas[0][0].Y, 1e-5)
}
