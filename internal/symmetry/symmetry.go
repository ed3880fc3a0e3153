// Package symmetry expands a body's symmetry operations into replica
// coordinate sets and produces the enqueue plan the histogram engine feeds
// to the pairwise calculator. Rotation composition uses gonum/mat so
// replica k's orientation is a genuine 3x3 rotation-matrix product around
// the operation's pivot, not an ad-hoc approximation.
package symmetry

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/openstructure/saxsengine/internal/geom"
	"github.com/openstructure/saxsengine/internal/molecule"
)

// rotationMatrix builds the 3x3 rotation matrix for Euler angles (radians)
// applied in X, Y, Z order: R = Rz * Ry * Rx.
func rotationMatrix(euler [3]float64) *mat.Dense {
	sx, cx := math.Sincos(euler[0])
	sy, cy := math.Sincos(euler[1])
	sz, cz := math.Sincos(euler[2])

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cx, -sx,
		0, sx, cx,
	})
	ry := mat.NewDense(3, 3, []float64{
		cy, 0, sy,
		0, 1, 0,
		-sy, 0, cy,
	})
	rz := mat.NewDense(3, 3, []float64{
		cz, -sz, 0,
		sz, cz, 0,
		0, 0, 1,
	})

	var ryx, r mat.Dense
	ryx.Mul(ry, rx)
	r.Mul(rz, &ryx)
	return &r
}

// applyReplica transforms a point by replica k of op: rotate by k*euler
// about op.Pivot, then translate by k*op.Translation.
func applyReplica(p [3]float64, op molecule.SymmetryOp, k int) [3]float64 {
	scaledEuler := [3]float64{op.EulerXYZ[0] * float64(k), op.EulerXYZ[1] * float64(k), op.EulerXYZ[2] * float64(k)}
	r := rotationMatrix(scaledEuler)

	rel := mat.NewVecDense(3, []float64{p[0] - op.Pivot[0], p[1] - op.Pivot[1], p[2] - op.Pivot[2]})
	var rotated mat.VecDense
	rotated.MulVec(r, rel)

	return [3]float64{
		rotated.AtVec(0) + op.Pivot[0] + op.Translation[0]*float64(k),
		rotated.AtVec(1) + op.Pivot[1] + op.Translation[1]*float64(k),
		rotated.AtVec(2) + op.Pivot[2] + op.Translation[2]*float64(k),
	}
}

// Expansion holds the parent coordinate set and every replica's coordinate
// set for a body's atoms, in tie-break order: replicas are generated in
// order of increasing op index, then increasing k within that op's repeat
// chain.
type Expansion struct {
	Parent   []geom.Coord
	Replicas [][]geom.Coord // one slice per replica, same order as generation
}

// ReplicaCount returns 1 (parent) + len(Replicas).
func (e *Expansion) ReplicaCount() int { return 1 + len(e.Replicas) }

// ExpandAtoms builds the parent and replica coordinate sets for a body's
// atom list under its symmetry operations. With no symmetry operations, the
// Expansion has zero replicas and Parent is simply the atom coordinates,
// making the symmetry-aware path bit-equal to the non-symmetry path (spec
// §4.4 invariant).
func ExpandAtoms(atoms []molecule.Atom, ops []molecule.SymmetryOp) *Expansion {
	parent := make([]geom.Coord, len(atoms))
	for i, a := range atoms {
		parent[i] = geom.FromXYZW(a.X, a.Y, a.Z, a.Weight)
	}

	exp := &Expansion{Parent: parent}
	for _, op := range ops {
		for k := 1; k <= op.Repeat; k++ {
			replica := make([]geom.Coord, len(atoms))
			for i, a := range atoms {
				t := applyReplica([3]float64{a.X, a.Y, a.Z}, op, k)
				replica[i] = geom.FromXYZW(t[0], t[1], t[2], a.Weight)
			}
			exp.Replicas = append(exp.Replicas, replica)
		}
	}
	return exp
}

// CrossTerm is one pairwise enqueue the engine must submit to the
// calculator: the two coordinate sets and the integer scaling to apply.
type CrossTerm struct {
	A, B    []geom.Coord
	Scaling int
}

// Plan is the full set of calculator enqueues needed to reproduce a
// symmetry-expanded body's self distance distribution: one self term over
// the parent coordinates scaled by the total replica count (since every
// replica is a rigid transform of the parent, its internal distance pattern
// is bit-identical to the parent's), plus one cross term for every distinct
// pair among {parent, replica_1, ..., replica_N}.
type Plan struct {
	SelfCoords  []geom.Coord
	SelfScaling int
	Cross       []CrossTerm
}

// BuildPlan constructs the enqueue plan for a single body's atoms.
func BuildPlan(atoms []molecule.Atom, ops []molecule.SymmetryOp) *Plan {
	exp := ExpandAtoms(atoms, ops)
	sets := make([][]geom.Coord, 0, exp.ReplicaCount())
	sets = append(sets, exp.Parent)
	sets = append(sets, exp.Replicas...)

	plan := &Plan{SelfCoords: exp.Parent, SelfScaling: len(sets)}
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			plan.Cross = append(plan.Cross, CrossTerm{A: sets[i], B: sets[j], Scaling: 1})
		}
	}
	return plan
}
