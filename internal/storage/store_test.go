package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openstructure/saxsengine/internal/config"
	"github.com/openstructure/saxsengine/internal/engine"
	"github.com/openstructure/saxsengine/internal/histogram"
	"github.com/openstructure/saxsengine/internal/molecule"
)

func testComposite(t *testing.T) *engine.Composite {
	t.Helper()
	axis := histogram.Axis{Delta: 1.0, NBins: 5}
	return engine.NewComposite(axis, 2, false, false)
}

func TestCheckpointRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "checkpoints.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	settings := config.Default()
	composite := testComposite(t)

	id, err := store.Checkpoint("molecule-1", settings, composite, 1_700_000_000, "unit-test")
	require.NoError(t, err)
	require.Positive(t, id)

	got, gotSettings, err := store.Restore(id)
	require.NoError(t, err)
	require.Equal(t, settings, gotSettings)
	require.Equal(t, composite.Axis, got.Axis)
	require.Equal(t, composite.NumAtomicForms, got.NumAtomicForms)
}

func TestLatestCheckpointTracksMostRecent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "checkpoints.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	settings := config.Default()
	composite := testComposite(t)

	id1, err := store.Checkpoint("molecule-1", settings, composite, 1, "first")
	require.NoError(t, err)
	id2, err := store.Checkpoint("molecule-1", settings, composite, 2, "second")
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	latest, err := store.LatestCheckpoint("molecule-1")
	require.NoError(t, err)
	require.Equal(t, id2, latest)

	noneYet, err := store.LatestCheckpoint("molecule-unknown")
	require.NoError(t, err)
	require.Zero(t, noneYet)
}

func TestDeleteCheckpointsKeepsNewest(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "checkpoints.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	settings := config.Default()
	composite := testComposite(t)

	for i := int64(0); i < 5; i++ {
		_, err := store.Checkpoint("molecule-1", settings, composite, i, "seed")
		require.NoError(t, err)
	}

	deleted, err := store.DeleteCheckpoints("molecule-1", 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)

	latest, err := store.LatestCheckpoint("molecule-1")
	require.NoError(t, err)
	require.Positive(t, latest)
}

func TestOpenReopenAppliesMigrationsOnce(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "checkpoints.db")
	store1, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := Open(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	_, err = store2.Checkpoint("molecule-1", config.Default(), testComposite(t), 1, "reopen")
	require.NoError(t, err)
}

func TestPartialManagerCheckpointAndRestore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "checkpoints.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	settings := config.Default()
	settings.BinWidthAngstrom = 1.0
	settings.DMaxAngstrom = 10
	settings.Threads = 1
	settings.JobSize = 4

	m := &molecule.Molecule{
		Bodies: []molecule.Body{
			{Atoms: []molecule.Atom{
				{X: 0, Y: 0, Z: 0, Weight: 1, Form: molecule.FormC},
				{X: 1, Y: 0, Z: 0, Weight: 1, Form: molecule.FormC},
			}},
		},
	}

	pm := engine.NewPartialManager(settings, m)
	before, err := pm.Calculate()
	require.NoError(t, err)

	id, err := pm.Checkpoint(store, "molecule-checkpoint-test", "unit-test")
	require.NoError(t, err)
	require.Positive(t, id)

	fresh := engine.NewPartialManager(settings, &molecule.Molecule{Bodies: []molecule.Body{{}}})
	require.NoError(t, fresh.Restore(store, id))

	after, err := fresh.Calculate()
	require.NoError(t, err)
	require.Equal(t, before.Total().Count, after.Total().Count)
}
