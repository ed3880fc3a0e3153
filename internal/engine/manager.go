// Package engine implements the histogram manager: the orchestration layer
// that turns a molecule.Molecule plus an config.EngineSettings into a
// composite distance histogram and, from there, a Debye-transform
// scattering profile. Two manager flavors share the per-body/per-body-pair
// composite builders in build.go: MonolithicManager recomputes everything
// on every call, and PartialManager layers the statemgr dirty-flag
// bookkeeping on top to recompute only what changed. Invariant:
// partial-after-rigid-move must equal a fresh monolithic build of the same
// state.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/openstructure/saxsengine/internal/config"
	"github.com/openstructure/saxsengine/internal/geom"
	"github.com/openstructure/saxsengine/internal/histogram"
	"github.com/openstructure/saxsengine/internal/molecule"
	"github.com/openstructure/saxsengine/internal/monitoring"
	"github.com/openstructure/saxsengine/internal/statemgr"
)

// logAxisOverflow drains geom's overflow latch and reports it through
// monitoring.Logf at most once per manager instance, per the axis-overflow
// policy: a pair distance past d_max clamps to the last bin and is never an
// error, but a session should still be told it happened.
func logAxisOverflow(once *sync.Once) {
	if geom.ConsumeOverflow() {
		once.Do(func() {
			monitoring.Logf("engine: one or more pair distances exceeded the histogram axis and were clamped to the last bin")
		})
	}
}

// CheckpointStore is the persistence dependency a PartialManager checkpoints
// through. *storage.Store satisfies this structurally; engine does not
// import storage to avoid a dependency cycle.
type CheckpointStore interface {
	Checkpoint(moleculeID string, settings config.EngineSettings, composite *Composite, takenUnixNanos int64, reason string) (int64, error)
	Restore(checkpointID int64) (*Composite, config.EngineSettings, error)
}

func axisFor(s config.EngineSettings) histogram.Axis {
	return histogram.Axis{Delta: s.BinWidthAngstrom, NBins: s.NBins()}
}

// MonolithicManager rebuilds the full composite histogram from scratch on
// every Calculate call: the "monolithic" variant family.
type MonolithicManager struct {
	settings     config.EngineSettings
	overflowOnce sync.Once
}

// NewMonolithicManager constructs a manager over the given settings.
func NewMonolithicManager(settings config.EngineSettings) *MonolithicManager {
	return &MonolithicManager{settings: settings}
}

// Calculate builds the composite histogram for m from scratch: one
// self-composite per body plus one cross-composite per distinct body pair,
// plus the global grid excluded-volume channels when the settings select a
// grid variant.
func (mgr *MonolithicManager) Calculate(m *molecule.Molecule) (*Composite, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	axis := axisFor(mgr.settings)
	weighted := mgr.settings.WeightedBins
	hasExv := variantHasExv(mgr.settings.HistogramVariant)

	total := NewComposite(axis, molecule.NumAtomicForms, weighted, hasExv)

	for i := range m.Bodies {
		self, err := buildBodySelfComposite(m.Bodies[i], axis, weighted, mgr.settings.Threads, mgr.settings.JobSize)
		if err != nil {
			return nil, fmt.Errorf("engine: body %d self term: %w", i, err)
		}
		mergeComposite(total, self)
	}
	for i := 0; i < len(m.Bodies); i++ {
		for j := i + 1; j < len(m.Bodies); j++ {
			pair, err := buildBodyPairComposite(m.Bodies[i], m.Bodies[j], axis, weighted, mgr.settings.Threads, mgr.settings.JobSize)
			if err != nil {
				return nil, fmt.Errorf("engine: body pair (%d,%d): %w", i, j, err)
			}
			mergeComposite(total, pair)
		}
	}
	if hasExv {
		exv, err := buildGlobalExvComposite(m, axis, weighted, mgr.settings.VoxelWidthAngstrom, mgr.settings.WaterDensity, mgr.settings.Threads, mgr.settings.JobSize)
		if err != nil {
			return nil, fmt.Errorf("engine: grid excluded volume: %w", err)
		}
		mergeComposite(total, exv)
	}

	total.TruncateAll(10)
	logAxisOverflow(&mgr.overflowOnce)
	return total, nil
}

func variantHasExv(v config.HistogramVariant) bool {
	return v == config.VariantMonolithicMTFFGrid || v == config.VariantMonolithicMTFFGridSurf
}

// mergeComposite adds src's channels into dst in place.
func mergeComposite(dst, src *Composite) {
	for k, d := range src.AA {
		_ = dst.aaDist(k.F1, k.F2).AddDistribution(d)
	}
	for f, d := range src.AW {
		_ = dst.awDist(f).AddDistribution(d)
	}
	_ = dst.WW.AddDistribution(src.WW)
	if dst.HasExv && src.HasExv {
		for f, d := range src.AXi {
			_ = dst.axiDist(f).AddDistribution(d)
		}
		for f, d := range src.AXs {
			_ = dst.axsDist(f).AddDistribution(d)
		}
		_ = dst.WXi.AddDistribution(src.WXi)
		_ = dst.WXs.AddDistribution(src.WXs)
		_ = dst.XXi.AddDistribution(src.XXi)
		_ = dst.XXc.AddDistribution(src.XXc)
		_ = dst.XXs.AddDistribution(src.XXs)
	}
}

// subComposite subtracts src's channels from dst in place, the inverse used
// by PartialManager to retract a stale body's contribution before adding its
// freshly recomputed one.
func subComposite(dst, src *Composite) {
	for k, d := range src.AA {
		_ = dst.aaDist(k.F1, k.F2).SubDistribution(d)
	}
	for f, d := range src.AW {
		_ = dst.awDist(f).SubDistribution(d)
	}
	_ = dst.WW.SubDistribution(src.WW)
}

// PartialManager maintains per-body and per-body-pair composite caches and
// only recomputes the ones touched by a dirty body. The master composite is
// kept patched incrementally: Calculate never rebuilds clean parts of the
// structure.
type PartialManager struct {
	settings config.EngineSettings
	state    *statemgr.Manager

	bodies       []molecule.Body
	bodySelf     []*Composite          // per-body self cache, nil until first computed
	bodyPair     map[[2]int]*Composite // cache keyed by (i,j), i<j
	exvCache     *Composite            // whole-molecule grid cache
	exvValid     bool
	master       *Composite
	masterInit   bool
	overflowOnce sync.Once
}

// NewPartialManager constructs a manager for a molecule snapshot, all bodies
// initially dirty so the first Calculate call does a full build.
func NewPartialManager(settings config.EngineSettings, m *molecule.Molecule) *PartialManager {
	n := len(m.Bodies)
	pm := &PartialManager{
		settings: settings,
		state:    statemgr.New(n),
		bodies:   append([]molecule.Body(nil), m.Bodies...),
		bodySelf: make([]*Composite, n),
		bodyPair: make(map[[2]int]*Composite),
	}
	return pm
}

// Probe returns the Signaller for bodyIndex, handed to external rigid-body
// code so it can report moves without importing this package.
func (pm *PartialManager) Probe(bodyIndex int) statemgr.Signaller {
	return pm.state.Probe(bodyIndex)
}

// SignalModifiedHydrationLayer marks the hydration shell dirty, forcing
// every body's water-touching channels to recompute on the next Calculate.
func (pm *PartialManager) SignalModifiedHydrationLayer() {
	pm.state.SignalModifiedHydrationLayer()
}

// ReplaceBody installs a new atom/water/symmetry configuration for
// bodyIndex and marks it internally modified: the path a body's own topology
// mutation (atoms added/removed/reweighted) uses, as opposed to a rigid
// external move of the same atoms, which goes through MoveBody.
func (pm *PartialManager) ReplaceBody(bodyIndex int, body molecule.Body) error {
	if bodyIndex < 0 || bodyIndex >= len(pm.bodies) {
		return fmt.Errorf("engine: body index %d out of range", bodyIndex)
	}
	pm.bodies[bodyIndex] = body
	pm.state.Probe(bodyIndex).MarkInternalChange()
	return nil
}

// MoveBody installs bodyIndex's coordinates after a rigid external transform
// (translation/rotation applied by a caller outside the engine's own
// bookkeeping, e.g. a docking or trajectory step) and marks it externally
// modified rather than internally modified. A rigid move does not change the
// body's own intra-body distances, so the next Calculate reuses the cached
// self-composite for bodyIndex instead of rebuilding it from scratch; only
// the cross-pair terms touching bodyIndex need to recompute, since those
// depend on its position relative to other bodies.
func (pm *PartialManager) MoveBody(bodyIndex int, body molecule.Body) error {
	if bodyIndex < 0 || bodyIndex >= len(pm.bodies) {
		return fmt.Errorf("engine: body index %d out of range", bodyIndex)
	}
	pm.bodies[bodyIndex] = body
	pm.state.Probe(bodyIndex).MarkExternalChange()
	return nil
}

// Calculate returns the current composite histogram, recomputing only the
// bodies (and body pairs touching them) flagged dirty since the last call.
func (pm *PartialManager) Calculate() (*Composite, error) {
	if err := (&molecule.Molecule{Bodies: pm.bodies}).Validate(); err != nil {
		return nil, err
	}
	axis := axisFor(pm.settings)
	weighted := pm.settings.WeightedBins
	hasExv := variantHasExv(pm.settings.HistogramVariant)

	internal, external, hydration := pm.state.Snapshot()
	// selfDirty gates the (expensive) self-composite rebuild: a body's own
	// internal modification changes its intra-body distances, and a
	// hydration-layer change touches the water channels every self-composite
	// carries. touched gates the cross-pair rebuild: an internal change, a
	// hydration-layer change, or a rigid external move of either body changes
	// the cross-pair terms between them, since those depend on absolute
	// position.
	selfDirty := make([]bool, len(pm.bodies))
	touched := make([]bool, len(pm.bodies))
	anyDirty := !pm.masterInit || hydration
	for i := range pm.bodies {
		if internal[i] || hydration {
			selfDirty[i] = true
			touched[i] = true
			anyDirty = true
		}
		if external[i] {
			touched[i] = true
			anyDirty = true
		}
	}

	if !pm.masterInit {
		pm.master = NewComposite(axis, molecule.NumAtomicForms, weighted, hasExv)
	}

	for i := range pm.bodies {
		if !selfDirty[i] && pm.bodySelf[i] != nil {
			continue
		}
		fresh, err := buildBodySelfComposite(pm.bodies[i], axis, weighted, pm.settings.Threads, pm.settings.JobSize)
		if err != nil {
			return nil, fmt.Errorf("engine: body %d self term: %w", i, err)
		}
		// An empty cache slot on an initialized master only occurs after
		// Restore: the restored master already holds this contribution.
		if pm.bodySelf[i] != nil {
			subComposite(pm.master, pm.bodySelf[i])
			mergeComposite(pm.master, fresh)
		} else if !pm.masterInit {
			mergeComposite(pm.master, fresh)
		}
		pm.bodySelf[i] = fresh
	}

	for i := 0; i < len(pm.bodies); i++ {
		for j := i + 1; j < len(pm.bodies); j++ {
			if !touched[i] && !touched[j] {
				if _, ok := pm.bodyPair[[2]int{i, j}]; ok {
					continue
				}
			}
			fresh, err := buildBodyPairComposite(pm.bodies[i], pm.bodies[j], axis, weighted, pm.settings.Threads, pm.settings.JobSize)
			if err != nil {
				return nil, fmt.Errorf("engine: body pair (%d,%d): %w", i, j, err)
			}
			if old, ok := pm.bodyPair[[2]int{i, j}]; ok {
				subComposite(pm.master, old)
				mergeComposite(pm.master, fresh)
			} else if !pm.masterInit {
				mergeComposite(pm.master, fresh)
			}
			pm.bodyPair[[2]int{i, j}] = fresh
		}
	}

	if hasExv && (anyDirty || !pm.exvValid) {
		fresh, err := buildGlobalExvComposite(&molecule.Molecule{Bodies: pm.bodies}, axis, weighted, pm.settings.VoxelWidthAngstrom, pm.settings.WaterDensity, pm.settings.Threads, pm.settings.JobSize)
		if err != nil {
			return nil, fmt.Errorf("engine: grid excluded volume: %w", err)
		}
		if pm.exvCache != nil {
			subExvComposite(pm.master, pm.exvCache)
			mergeExvComposite(pm.master, fresh)
		} else if !pm.masterInit {
			mergeExvComposite(pm.master, fresh)
		}
		pm.exvCache = fresh
		pm.exvValid = true
	}

	pm.masterInit = true

	out := pm.master.Clone()
	out.TruncateAll(10)
	logAxisOverflow(&pm.overflowOnce)
	return out, nil
}

// Checkpoint persists the current master composite (pre-truncation, so a
// restore can resume patching it without a size mismatch) under moleculeID,
// letting a long-running partial-rebuild session carry its master across a
// process restart. Per-body and per-pair partials are not persisted; the
// first Calculate after Restore rebuilds them.
func (pm *PartialManager) Checkpoint(store CheckpointStore, moleculeID, reason string) (int64, error) {
	if !pm.masterInit {
		return 0, fmt.Errorf("engine: checkpoint before first Calculate")
	}
	return store.Checkpoint(moleculeID, pm.settings, pm.master, time.Now().UnixNano(), reason)
}

// Restore replaces pm's master composite with the one saved under
// checkpointID, re-arming the manager so the next Calculate patches forward
// from the restored state instead of rebuilding everything. Per-body and
// per-body-pair caches are NOT restored (the checkpoint only stores the
// master), so every body is marked dirty: the first post-restore Calculate
// rebuilds the per-body/per-pair caches and adopts them without adding them
// to the restored master, which already holds their contribution.
func (pm *PartialManager) Restore(store CheckpointStore, checkpointID int64) error {
	composite, settings, err := store.Restore(checkpointID)
	if err != nil {
		return err
	}
	if settings != pm.settings {
		return fmt.Errorf("engine: checkpoint %d was taken under different settings", checkpointID)
	}
	pm.master = composite
	pm.masterInit = true
	pm.bodySelf = make([]*Composite, len(pm.bodies))
	pm.bodyPair = make(map[[2]int]*Composite)
	pm.exvCache = nil
	pm.exvValid = false
	pm.state = statemgr.New(len(pm.bodies))
	for i := range pm.bodies {
		pm.state.Probe(i).MarkInternalChange()
	}
	return nil
}

// Clone returns a deep copy of the composite so callers can truncate/mutate
// it without disturbing the manager's running master cache.
func (c *Composite) Clone() *Composite {
	out := NewComposite(c.Axis, c.NumAtomicForms, c.Weighted, c.HasExv)
	for k, d := range c.AA {
		out.AA[k] = d.Clone()
	}
	for f, d := range c.AW {
		out.AW[f] = d.Clone()
	}
	out.WW = c.WW.Clone()
	if c.HasExv {
		for f, d := range c.AXi {
			out.AXi[f] = d.Clone()
		}
		for f, d := range c.AXs {
			out.AXs[f] = d.Clone()
		}
		out.WXi = c.WXi.Clone()
		out.WXs = c.WXs.Clone()
		out.XXi = c.XXi.Clone()
		out.XXc = c.XXc.Clone()
		out.XXs = c.XXs.Clone()
	}
	return out
}

func subExvComposite(dst, src *Composite) {
	for f, d := range src.AXi {
		_ = dst.axiDist(f).SubDistribution(d)
	}
	for f, d := range src.AXs {
		_ = dst.axsDist(f).SubDistribution(d)
	}
	_ = dst.WXi.SubDistribution(src.WXi)
	_ = dst.WXs.SubDistribution(src.WXs)
	_ = dst.XXi.SubDistribution(src.XXi)
	_ = dst.XXc.SubDistribution(src.XXc)
	_ = dst.XXs.SubDistribution(src.XXs)
}

func mergeExvComposite(dst, src *Composite) {
	for f, d := range src.AXi {
		_ = dst.axiDist(f).AddDistribution(d)
	}
	for f, d := range src.AXs {
		_ = dst.axsDist(f).AddDistribution(d)
	}
	_ = dst.WXi.AddDistribution(src.WXi)
	_ = dst.WXs.AddDistribution(src.WXs)
	_ = dst.XXi.AddDistribution(src.XXi)
	_ = dst.XXc.AddDistribution(src.XXc)
	_ = dst.XXs.AddDistribution(src.XXs)
}
