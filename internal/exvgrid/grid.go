// Package exvgrid implements the grid excluded-volume model: a
// uniform voxel grid overlays the structure, voxels are classified as
// interior or surface by a 6-neighbor sweep, and the resulting voxel
// coordinate sets feed the xx_i/xx_c/xx_s and ax_i/ax_s, wx_i/wx_s channels
// of the composite histogram.
package exvgrid

import (
	"math"

	"github.com/openstructure/saxsengine/internal/geom"
	"github.com/openstructure/saxsengine/internal/molecule"
)

// voxelKey is a 3-D integer grid coordinate.
type voxelKey struct{ ix, iy, iz int }

// Grid is a uniform voxel grid over a structure's bounding volume.
type Grid struct {
	Width        float64 // Angstrom
	WaterDensity float64 // electrons / Angstrom^3
	occupied     map[voxelKey]bool
	origin       [3]float64
}

// Build voxelizes atoms at the given voxel width. Waters are not voxelized;
// the separate water channel models them.
func Build(atoms []molecule.Atom, voxelWidth, waterDensity float64) *Grid {
	g := &Grid{Width: voxelWidth, WaterDensity: waterDensity, occupied: make(map[voxelKey]bool)}
	if len(atoms) == 0 {
		return g
	}
	minX, minY, minZ := atoms[0].X, atoms[0].Y, atoms[0].Z
	for _, a := range atoms {
		if a.X < minX {
			minX = a.X
		}
		if a.Y < minY {
			minY = a.Y
		}
		if a.Z < minZ {
			minZ = a.Z
		}
	}
	g.origin = [3]float64{minX, minY, minZ}
	for _, a := range atoms {
		k := g.keyFor(a.X, a.Y, a.Z)
		g.occupied[k] = true
	}
	return g
}

func (g *Grid) keyFor(x, y, z float64) voxelKey {
	return voxelKey{
		ix: int(math.Floor((x - g.origin[0]) / g.Width)),
		iy: int(math.Floor((y - g.origin[1]) / g.Width)),
		iz: int(math.Floor((z - g.origin[2]) / g.Width)),
	}
}

var neighborOffsets = [6][3]int{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

// Classification splits occupied voxels into interior (all 6 face-neighbors
// occupied) and surface (at least one empty face-neighbor).
type Classification struct {
	Interior []voxelKey
	Surface  []voxelKey
}

// Classify runs the single 6-neighbor sweep.
func (g *Grid) Classify() Classification {
	var c Classification
	for k := range g.occupied {
		interior := true
		for _, off := range neighborOffsets {
			n := voxelKey{ix: k.ix + off[0], iy: k.iy + off[1], iz: k.iz + off[2]}
			if !g.occupied[n] {
				interior = false
				break
			}
		}
		if interior {
			c.Interior = append(c.Interior, k)
		} else {
			c.Surface = append(c.Surface, k)
		}
	}
	return c
}

// voxelWeight is the water electron density times voxel volume.
func (g *Grid) voxelWeight() float64 {
	return g.WaterDensity * g.Width * g.Width * g.Width
}

// center returns the Angstrom-space center of a voxel.
func (g *Grid) center(k voxelKey) [3]float64 {
	return [3]float64{
		g.origin[0] + (float64(k.ix)+0.5)*g.Width,
		g.origin[1] + (float64(k.iy)+0.5)*g.Width,
		g.origin[2] + (float64(k.iz)+0.5)*g.Width,
	}
}

// Coords holds the coordinate sets the engine enqueues against the pairwise
// calculator: interior voxels and surface voxels, each as a weighted
// coordinate set.
type Coords struct {
	Interior []geom.Coord
	Surface  []geom.Coord
}

// BuildCoords classifies the grid and returns the interior/surface
// coordinate sets ready for EnqueueSelf/EnqueueCross.
func (g *Grid) BuildCoords() Coords {
	c := g.Classify()
	w := g.voxelWeight()
	out := Coords{
		Interior: make([]geom.Coord, len(c.Interior)),
		Surface:  make([]geom.Coord, len(c.Surface)),
	}
	for i, k := range c.Interior {
		p := g.center(k)
		out.Interior[i] = geom.FromXYZW(p[0], p[1], p[2], w)
	}
	for i, k := range c.Surface {
		p := g.center(k)
		out.Surface[i] = geom.FromXYZW(p[0], p[1], p[2], w)
	}
	return out
}
