package engine

import (
	"fmt"

	"github.com/openstructure/saxsengine/internal/calculator"
	"github.com/openstructure/saxsengine/internal/exvgrid"
	"github.com/openstructure/saxsengine/internal/geom"
	"github.com/openstructure/saxsengine/internal/histogram"
	"github.com/openstructure/saxsengine/internal/molecule"
	"github.com/openstructure/saxsengine/internal/symmetry"
)

// groupAtomsByForm partitions a body's atoms by their form-factor channel.
func groupAtomsByForm(atoms []molecule.Atom) map[molecule.FormFactor][]molecule.Atom {
	groups := make(map[molecule.FormFactor][]molecule.Atom)
	for _, a := range atoms {
		groups[a.Form] = append(groups[a.Form], a)
	}
	return groups
}

func sortedForms(groups map[molecule.FormFactor][]molecule.Atom) []molecule.FormFactor {
	forms := make([]molecule.FormFactor, 0, len(groups))
	for f := range groups {
		forms = append(forms, f)
	}
	for i := 1; i < len(forms); i++ {
		for j := i; j > 0 && forms[j] < forms[j-1]; j-- {
			forms[j], forms[j-1] = forms[j-1], forms[j]
		}
	}
	return forms
}

// replicaSets returns every coordinate set a body's symmetry operations
// generate from atoms: index 0 is the parent, the rest are replicas in
// generation order.
func replicaSets(atoms []molecule.Atom, ops []molecule.SymmetryOp) [][]geom.Coord {
	exp := symmetry.ExpandAtoms(atoms, ops)
	sets := make([][]geom.Coord, 0, exp.ReplicaCount())
	sets = append(sets, exp.Parent)
	sets = append(sets, exp.Replicas...)
	return sets
}

func watersAsAtoms(waters []molecule.Water) []molecule.Atom {
	out := make([]molecule.Atom, len(waters))
	for i, w := range waters {
		out[i] = molecule.Atom{X: w.X, Y: w.Y, Z: w.Z, Weight: w.Weight}
	}
	return out
}

// channelPlanner accumulates calculator enqueues under string-keyed merge
// IDs, so every enqueue destined for the same composite channel lands in one
// calculator slot and needs no further merging after Run().
type channelPlanner struct {
	calc   *calculator.Calculator
	ids    map[string]int
	nextID int
}

func newChannelPlanner(calc *calculator.Calculator) *channelPlanner {
	return &channelPlanner{calc: calc, ids: make(map[string]int)}
}

func (p *channelPlanner) id(key string) int {
	if id, ok := p.ids[key]; ok {
		return id
	}
	id := p.nextID
	p.nextID++
	p.ids[key] = id
	return id
}

func (p *channelPlanner) enqueueSelf(key string, coords []geom.Coord, scaling int) error {
	_, err := p.calc.EnqueueSelf(coords, scaling, p.id(key))
	return err
}

func (p *channelPlanner) enqueueCross(key string, a, b []geom.Coord, scaling int) error {
	_, err := p.calc.EnqueueCross(a, b, scaling, p.id(key))
	return err
}

func (p *channelPlanner) result(key string, results *calculator.Results) *histogram.Distribution {
	id, ok := p.ids[key]
	if !ok {
		return nil
	}
	return results.Slot(id)
}

// addResult merges the distribution registered under key into dst, a no-op
// when key was never enqueued (one side of a cross term had no atoms).
func addResult(dst *histogram.Distribution, p *channelPlanner, key string, results *calculator.Results) {
	src := p.result(key, results)
	if src == nil {
		return
	}
	_ = dst.AddDistribution(src)
}

// buildBodySelfComposite computes one body's self-contribution: atom-atom
// pairs within the body (including its own symmetry replicas), atom-water
// and water-water pairs within the body's own hydration shell. It never
// touches another body's coordinates: the per-body decomposition is
// Total = Σ Self(body_i) + Σ_{i<j} Cross(body_i, body_j).
func buildBodySelfComposite(body molecule.Body, axis histogram.Axis, weighted bool, threads, jobSize int) (*Composite, error) {
	calc := calculator.New(axis, weighted, threads, jobSize)
	p := newChannelPlanner(calc)

	groups := groupAtomsByForm(body.Atoms)
	forms := sortedForms(groups)

	for _, f := range forms {
		plan := symmetry.BuildPlan(groups[f], body.Symmetries)
		key := fmt.Sprintf("aa:%d:%d", f, f)
		if err := p.enqueueSelf(key, plan.SelfCoords, plan.SelfScaling); err != nil {
			return nil, err
		}
		for _, ct := range plan.Cross {
			if err := p.enqueueCross(key, ct.A, ct.B, ct.Scaling); err != nil {
				return nil, err
			}
		}
	}

	for i, f1 := range forms {
		for _, f2 := range forms[i+1:] {
			key := fmt.Sprintf("aa:%d:%d", f1, f2)
			sets1 := replicaSets(groups[f1], body.Symmetries)
			sets2 := replicaSets(groups[f2], body.Symmetries)
			for _, s1 := range sets1 {
				for _, s2 := range sets2 {
					if err := p.enqueueCross(key, s1, s2, 1); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	waterAtoms := watersAsAtoms(body.Waters)
	waterPlan := symmetry.BuildPlan(waterAtoms, body.Symmetries)
	if err := p.enqueueSelf("ww", waterPlan.SelfCoords, waterPlan.SelfScaling); err != nil {
		return nil, err
	}
	for _, ct := range waterPlan.Cross {
		if err := p.enqueueCross("ww", ct.A, ct.B, ct.Scaling); err != nil {
			return nil, err
		}
	}

	waterSets := replicaSets(waterAtoms, body.Symmetries)
	for _, f := range forms {
		key := fmt.Sprintf("aw:%d", f)
		atomSets := replicaSets(groups[f], body.Symmetries)
		for _, as := range atomSets {
			for _, ws := range waterSets {
				if err := p.enqueueCross(key, as, ws, 1); err != nil {
					return nil, err
				}
			}
		}
	}

	results := calc.Run()
	c := NewComposite(axis, molecule.NumAtomicForms, weighted, false)
	for _, f := range forms {
		addResult(c.aaDist(int(f), int(f)), p, fmt.Sprintf("aa:%d:%d", f, f), results)
	}
	for i, f1 := range forms {
		for _, f2 := range forms[i+1:] {
			addResult(c.aaDist(int(f1), int(f2)), p, fmt.Sprintf("aa:%d:%d", f1, f2), results)
		}
	}
	addResult(c.WW, p, "ww", results)
	for _, f := range forms {
		addResult(c.awDist(int(f)), p, fmt.Sprintf("aw:%d", f), results)
	}
	return c, nil
}

// buildBodyPairComposite computes the cross-contribution between two
// distinct bodies: every atom-atom, atom-water and water-water pair where
// one side comes from bodyA and the other from bodyB.
func buildBodyPairComposite(bodyA, bodyB molecule.Body, axis histogram.Axis, weighted bool, threads, jobSize int) (*Composite, error) {
	calc := calculator.New(axis, weighted, threads, jobSize)
	p := newChannelPlanner(calc)

	groupsA := groupAtomsByForm(bodyA.Atoms)
	groupsB := groupAtomsByForm(bodyB.Atoms)

	for fA, atomsA := range groupsA {
		for fB, atomsB := range groupsB {
			key := fmt.Sprintf("aa:%d:%d", minForm(fA, fB), maxForm(fA, fB))
			setsA := replicaSets(atomsA, bodyA.Symmetries)
			setsB := replicaSets(atomsB, bodyB.Symmetries)
			for _, sa := range setsA {
				for _, sb := range setsB {
					if err := p.enqueueCross(key, sa, sb, 1); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	watersA := replicaSets(watersAsAtoms(bodyA.Waters), bodyA.Symmetries)
	watersB := replicaSets(watersAsAtoms(bodyB.Waters), bodyB.Symmetries)
	for _, wa := range watersA {
		for _, wb := range watersB {
			if err := p.enqueueCross("ww", wa, wb, 1); err != nil {
				return nil, err
			}
		}
	}

	for f, atomsA := range groupsA {
		key := fmt.Sprintf("aw:%d", f)
		setsA := replicaSets(atomsA, bodyA.Symmetries)
		for _, sa := range setsA {
			for _, wb := range watersB {
				if err := p.enqueueCross(key, sa, wb, 1); err != nil {
					return nil, err
				}
			}
		}
	}
	for f, atomsB := range groupsB {
		key := fmt.Sprintf("aw:%d", f)
		setsB := replicaSets(atomsB, bodyB.Symmetries)
		for _, sb := range setsB {
			for _, wa := range watersA {
				if err := p.enqueueCross(key, wa, sb, 1); err != nil {
					return nil, err
				}
			}
		}
	}

	results := calc.Run()
	c := NewComposite(axis, molecule.NumAtomicForms, weighted, false)
	seen := make(map[string]bool)
	for fA := range groupsA {
		for fB := range groupsB {
			key := fmt.Sprintf("aa:%d:%d", minForm(fA, fB), maxForm(fA, fB))
			if seen[key] {
				continue
			}
			seen[key] = true
			addResult(c.aaDist(int(minForm(fA, fB)), int(maxForm(fA, fB))), p, key, results)
		}
	}
	addResult(c.WW, p, "ww", results)
	for f := range groupsA {
		addResult(c.awDist(int(f)), p, fmt.Sprintf("aw:%d", f), results)
	}
	for f := range groupsB {
		addResult(c.awDist(int(f)), p, fmt.Sprintf("aw:%d", f), results)
	}
	return c, nil
}

func minForm(a, b molecule.FormFactor) molecule.FormFactor {
	if a < b {
		return a
	}
	return b
}

func maxForm(a, b molecule.FormFactor) molecule.FormFactor {
	if a > b {
		return a
	}
	return b
}

// flattenedAtoms expands every body's symmetry replicas into one flat list
// of real-space atoms, used by the grid excluded-volume model, which is a
// property of the whole structure rather than any single body (an Open
// Question decision recorded in DESIGN.md).
func flattenedAtoms(m *molecule.Molecule) []molecule.Atom {
	var out []molecule.Atom
	for _, body := range m.Bodies {
		for _, set := range replicaSets(body.Atoms, body.Symmetries) {
			for _, c := range set {
				out = append(out, molecule.Atom{X: float64(c.X), Y: float64(c.Y), Z: float64(c.Z), Weight: float64(c.W)})
			}
		}
	}
	return out
}

func flattenedWaterSets(m *molecule.Molecule) [][]geom.Coord {
	var out [][]geom.Coord
	for _, body := range m.Bodies {
		out = append(out, replicaSets(watersAsAtoms(body.Waters), body.Symmetries)...)
	}
	return out
}

func flattenedAtomSetsByForm(m *molecule.Molecule) map[molecule.FormFactor][][]geom.Coord {
	out := make(map[molecule.FormFactor][][]geom.Coord)
	for _, body := range m.Bodies {
		groups := groupAtomsByForm(body.Atoms)
		for f, atoms := range groups {
			out[f] = append(out[f], replicaSets(atoms, body.Symmetries)...)
		}
	}
	return out
}

// buildGlobalExvComposite voxelizes the whole molecule and enqueues the
// ax/wx/xx grid excluded-volume channels. It is always computed over every
// body at once: a voxel's interior/surface classification depends on atoms
// from any body that happens to neighbor it.
func buildGlobalExvComposite(m *molecule.Molecule, axis histogram.Axis, weighted bool, voxelWidth, waterDensity float64, threads, jobSize int) (*Composite, error) {
	atoms := flattenedAtoms(m)
	grid := exvgrid.Build(atoms, voxelWidth, waterDensity)
	coords := grid.BuildCoords()

	calc := calculator.New(axis, weighted, threads, jobSize)
	p := newChannelPlanner(calc)

	if err := p.enqueueSelf("xxi", coords.Interior, 1); err != nil {
		return nil, err
	}
	if err := p.enqueueSelf("xxs", coords.Surface, 1); err != nil {
		return nil, err
	}
	if err := p.enqueueCross("xxc", coords.Interior, coords.Surface, 1); err != nil {
		return nil, err
	}

	atomSets := flattenedAtomSetsByForm(m)
	for f, sets := range atomSets {
		keyI := fmt.Sprintf("axi:%d", f)
		keyS := fmt.Sprintf("axs:%d", f)
		for _, s := range sets {
			if err := p.enqueueCross(keyI, s, coords.Interior, 1); err != nil {
				return nil, err
			}
			if err := p.enqueueCross(keyS, s, coords.Surface, 1); err != nil {
				return nil, err
			}
		}
	}

	waterSets := flattenedWaterSets(m)
	for _, ws := range waterSets {
		if err := p.enqueueCross("wxi", ws, coords.Interior, 1); err != nil {
			return nil, err
		}
		if err := p.enqueueCross("wxs", ws, coords.Surface, 1); err != nil {
			return nil, err
		}
	}

	results := calc.Run()
	c := NewComposite(axis, molecule.NumAtomicForms, weighted, true)
	addResult(c.XXi, p, "xxi", results)
	addResult(c.XXs, p, "xxs", results)
	addResult(c.XXc, p, "xxc", results)
	for f := range atomSets {
		addResult(c.axiDist(int(f)), p, fmt.Sprintf("axi:%d", f), results)
		addResult(c.axsDist(int(f)), p, fmt.Sprintf("axs:%d", f), results)
	}
	addResult(c.WXi, p, "wxi", results)
	addResult(c.WXs, p, "wxs", results)
	return c, nil
}
