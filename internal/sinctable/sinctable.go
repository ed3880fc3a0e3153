// Package sinctable precomputes sinc(q*d) = sin(q*d)/(q*d) over the product
// of a q-axis and a d-axis so the Debye transform's inner sum over fixed bin
// centers never calls math.Sin in its hot loop (the weighted-bin path
// recomputes sinc through AtDistance).
package sinctable

import "math"

// Table holds sinc(q_i * d_j) for every (q-bin, d-bin) pair, row-major by
// q-bin.
type Table struct {
	QAxis []float64
	Delta float64 // d-axis bin width
	ND    int     // number of d-bins the table covers
	data  []float64
}

// Sinc returns sin(x)/x, with the removable singularity at x=0 handled as
// the limit value 1.
func Sinc(x float64) float64 {
	if math.Abs(x) < 1e-12 {
		return 1
	}
	return math.Sin(x) / x
}

// Build precomputes the table for every (qAxis[i], j*delta) pair, j in
// [0, nd).
func Build(qAxis []float64, delta float64, nd int) *Table {
	t := &Table{QAxis: qAxis, Delta: delta, ND: nd, data: make([]float64, len(qAxis)*nd)}
	for qi, q := range qAxis {
		base := qi * nd
		for dj := 0; dj < nd; dj++ {
			d := float64(dj) * delta
			t.data[base+dj] = Sinc(q * d)
		}
	}
	return t
}

// At returns sinc(q_bin, d_bin) from the precomputed table.
func (t *Table) At(qBin, dBin int) float64 {
	return t.data[qBin*t.ND+dBin]
}

// Row returns the precomputed sinc(q_bin, *) row as a contiguous slice over
// the d-axis, for callers that want to dot it against a channel's bin
// counts rather than index element-by-element.
func (t *Table) Row(qBin int) []float64 {
	base := qBin * t.ND
	return t.data[base : base+t.ND]
}

// AtDistance looks up the table using an arbitrary distance d (used by the
// weighted-bin variant, where a bin's effective distance is an empirical
// mean rather than the bin center) by recomputing sinc directly rather than
// interpolating the table — the table only accelerates the common
// fixed-bin-center case.
func (t *Table) AtDistance(qBin int, d float64) float64 {
	return Sinc(t.QAxis[qBin] * d)
}

// Resize grows or shrinks the d-axis coverage of the table in place,
// recomputing only the newly covered columns.
func (t *Table) Resize(nd int) {
	if nd == t.ND {
		return
	}
	newData := make([]float64, len(t.QAxis)*nd)
	for qi, q := range t.QAxis {
		oldBase := qi * t.ND
		newBase := qi * nd
		copyN := nd
		if t.ND < copyN {
			copyN = t.ND
		}
		copy(newData[newBase:newBase+copyN], t.data[oldBase:oldBase+copyN])
		for dj := copyN; dj < nd; dj++ {
			d := float64(dj) * t.Delta
			newData[newBase+dj] = Sinc(q * d)
		}
	}
	t.data = newData
	t.ND = nd
}

// LogSpace returns n points logarithmically spaced in [lo, hi], the q-axis
// construction the default settings use (q_axis = logspace(1e-4, 1.0, 1000)).
func LogSpace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	logLo, logHi := math.Log(lo), math.Log(hi)
	step := (logHi - logLo) / float64(n-1)
	for i := 0; i < n; i++ {
		out[i] = math.Exp(logLo + step*float64(i))
	}
	return out
}
