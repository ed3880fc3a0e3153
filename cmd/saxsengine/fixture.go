package main

import (
	"fmt"

	"github.com/openstructure/saxsengine/internal/molecule"
)

// builtinFixture names one of the small self-test molecules available
// without a -molecule file, used to sanity-check a build or config change
// against the documented closed-form histograms.
type builtinFixture string

const (
	fixtureUnitCube   builtinFixture = "unit-cube"
	fixtureCubeCenter builtinFixture = "cube-center"
)

// unitCubeMolecule returns the eight-atom cube at (+-1,+-1,+-1), all weight
// 1, one body, no symmetry: D[0]=8, D[bin(2)]=24, D[bin(sqrt(8))]=24,
// D[bin(sqrt(12))]=8.
func unitCubeMolecule() *molecule.Molecule {
	var atoms []molecule.Atom
	for _, x := range []float64{-1, 1} {
		for _, y := range []float64{-1, 1} {
			for _, z := range []float64{-1, 1} {
				atoms = append(atoms, molecule.Atom{X: x, Y: y, Z: z, Weight: 1, Form: molecule.FormC})
			}
		}
	}
	return &molecule.Molecule{Bodies: []molecule.Body{{Atoms: atoms}}}
}

// cubeCenterMolecule is unitCubeMolecule plus a ninth atom at the origin:
// D[0]=9, D[bin(sqrt(3))]=16, D[bin(2)]=24, D[bin(sqrt(8))]=24,
// D[bin(sqrt(12))]=8.
func cubeCenterMolecule() *molecule.Molecule {
	m := unitCubeMolecule()
	m.Bodies[0].Atoms = append(m.Bodies[0].Atoms, molecule.Atom{X: 0, Y: 0, Z: 0, Weight: 1, Form: molecule.FormC})
	return m
}

// loadFixture resolves a -fixture flag value to its molecule, used as the
// CLI's self-test entry point when no -molecule file is supplied.
func loadFixture(name string) (*molecule.Molecule, error) {
	switch builtinFixture(name) {
	case fixtureUnitCube:
		return unitCubeMolecule(), nil
	case fixtureCubeCenter:
		return cubeCenterMolecule(), nil
	default:
		return nil, fmt.Errorf("saxsengine: unknown -fixture %q (want %q or %q)", name, fixtureUnitCube, fixtureCubeCenter)
	}
}
