package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openstructure/saxsengine/internal/config"
	"github.com/openstructure/saxsengine/internal/molecule"
)

func testSettings() config.EngineSettings {
	s := config.Default()
	s.BinWidthAngstrom = 1.0
	s.DMaxAngstrom = 20
	s.Threads = 2
	s.JobSize = 4
	return s
}

func twoBodyMolecule() *molecule.Molecule {
	return &molecule.Molecule{
		Bodies: []molecule.Body{
			{
				Atoms: []molecule.Atom{
					{X: 0, Y: 0, Z: 0, Weight: 1, Form: molecule.FormC},
					{X: 1, Y: 0, Z: 0, Weight: 1, Form: molecule.FormC},
				},
				Waters: []molecule.Water{{X: 0.5, Y: 1, Z: 0, Weight: 0.5}},
			},
			{
				Atoms: []molecule.Atom{
					{X: 5, Y: 0, Z: 0, Weight: 2, Form: molecule.FormCH},
				},
			},
		},
	}
}

func TestMonolithicCalculateIsDeterministic(t *testing.T) {
	s := testSettings()
	mgr := NewMonolithicManager(s)
	m := twoBodyMolecule()

	c1, err := mgr.Calculate(m)
	require.NoError(t, err)
	c2, err := mgr.Calculate(m)
	require.NoError(t, err)

	t1, t2 := c1.Total(), c2.Total()
	require.Equal(t, t1.Count, t2.Count)
}

func TestPartialMatchesMonolithic(t *testing.T) {
	s := testSettings()
	m := twoBodyMolecule()

	mono := NewMonolithicManager(s)
	wantComposite, err := mono.Calculate(m)
	require.NoError(t, err)
	want := wantComposite.Total()

	partial := NewPartialManager(s, m)
	gotComposite, err := partial.Calculate()
	require.NoError(t, err)
	got := gotComposite.Total()

	require.InDeltaSlice(t, want.Count, got.Count, 1e-9)
}

func TestPartialAfterExternalMoveMatchesFreshMonolithic(t *testing.T) {
	s := testSettings()
	m := twoBodyMolecule()

	partial := NewPartialManager(s, m)
	_, err := partial.Calculate()
	require.NoError(t, err)

	moved := twoBodyMolecule()
	moved.Bodies[1].Atoms[0].X = 7 // rigid move of body 1 along x

	require.NoError(t, partial.MoveBody(1, moved.Bodies[1]))
	gotComposite, err := partial.Calculate()
	require.NoError(t, err)
	got := gotComposite.Total()

	mono := NewMonolithicManager(s)
	wantComposite, err := mono.Calculate(moved)
	require.NoError(t, err)
	want := wantComposite.Total()

	require.InDeltaSlice(t, want.Count, got.Count, 1e-9)
}

// TestExternalMoveReusesSelfCompositeButRebuildsCrossPair asserts the cheaper
// path an external rigid move is supposed to take: the moved body's own
// self-composite (its intra-body distances are unchanged by a rigid
// transform) is the same cached pointer before and after, while the
// cross-pair term touching it is rebuilt since it depends on the body's new
// position relative to the other body.
func TestExternalMoveReusesSelfCompositeButRebuildsCrossPair(t *testing.T) {
	s := testSettings()
	m := twoBodyMolecule()
	partial := NewPartialManager(s, m)

	_, err := partial.Calculate()
	require.NoError(t, err)
	selfBefore := partial.bodySelf[1]
	pairBefore := partial.bodyPair[[2]int{0, 1}]
	require.NotNil(t, selfBefore)
	require.NotNil(t, pairBefore)

	moved := twoBodyMolecule()
	moved.Bodies[1].Atoms[0].X = 7

	require.NoError(t, partial.MoveBody(1, moved.Bodies[1]))
	_, err = partial.Calculate()
	require.NoError(t, err)

	require.Same(t, selfBefore, partial.bodySelf[1])
	require.NotSame(t, pairBefore, partial.bodyPair[[2]int{0, 1}])
}

// TestInternalChangeRebuildsSelfComposite is the mirror case: ReplaceBody's
// internal-modification path must invalidate the moved body's own
// self-composite, since an atom add/remove/reweight does change intra-body
// distances.
func TestInternalChangeRebuildsSelfComposite(t *testing.T) {
	s := testSettings()
	m := twoBodyMolecule()
	partial := NewPartialManager(s, m)

	_, err := partial.Calculate()
	require.NoError(t, err)
	selfBefore := partial.bodySelf[1]
	require.NotNil(t, selfBefore)

	edited := twoBodyMolecule()
	edited.Bodies[1].Atoms[0].Weight = 3 // reweighting, not a rigid move

	require.NoError(t, partial.ReplaceBody(1, edited.Bodies[1]))
	_, err = partial.Calculate()
	require.NoError(t, err)

	require.NotSame(t, selfBefore, partial.bodySelf[1])
}

func TestPartialSkipsUnchangedBodyPairCache(t *testing.T) {
	s := testSettings()
	m := twoBodyMolecule()
	partial := NewPartialManager(s, m)

	_, err := partial.Calculate()
	require.NoError(t, err)
	require.NotNil(t, partial.bodyPair[[2]int{0, 1}])

	// Recalculating with nothing dirty must not change the cached result.
	cached := partial.bodyPair[[2]int{0, 1}]
	_, err = partial.Calculate()
	require.NoError(t, err)
	require.Same(t, cached, partial.bodyPair[[2]int{0, 1}])
}

func TestHydrationSignalForcesRecompute(t *testing.T) {
	s := testSettings()
	m := twoBodyMolecule()
	partial := NewPartialManager(s, m)

	_, err := partial.Calculate()
	require.NoError(t, err)
	selfBefore := partial.bodySelf[0]
	require.NotNil(t, selfBefore)
	partial.SignalModifiedHydrationLayer()

	c, err := partial.Calculate()
	require.NoError(t, err)
	require.NotNil(t, c)
	require.NotSame(t, selfBefore, partial.bodySelf[0])
}

func TestEmptyMoleculeIsIdentity(t *testing.T) {
	s := testSettings()
	mgr := NewMonolithicManager(s)
	c, err := mgr.Calculate(&molecule.Molecule{})
	require.NoError(t, err)
	total := c.Total()
	for _, v := range total.Count {
		require.Zero(t, v)
	}
}
