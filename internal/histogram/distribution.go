// Package histogram implements the 1-D distance distribution: an ordered
// sequence of nonnegative bin counts, with an optional per-bin running mean
// for the weighted-bin variant.
package histogram

import "fmt"

// Axis describes a fixed-width distance axis: nBins bins of width Delta
// covering [0, nBins*Delta).
type Axis struct {
	Delta float64
	NBins int
}

// BinCenter returns the center of bin i: i*Delta. Bin i covers
// [i*Delta, (i+1)*Delta), but the nearest-bin index formula effectively
// centers contributions on i*Delta.
func (a Axis) BinCenter(i int) float64 { return float64(i) * a.Delta }

// Distribution is the ordered sequence of nonnegative bin counts. When
// Weighted is true, Mean[i] holds the running mean distance of pairs
// contributing to bin i (defined only where Count[i] > 0).
type Distribution struct {
	Axis     Axis
	Count    []float64
	Mean     []float64 // nil unless Weighted
	Weighted bool
}

// New allocates a zeroed distribution over the given axis.
func New(axis Axis, weighted bool) *Distribution {
	d := &Distribution{Axis: axis, Count: make([]float64, axis.NBins), Weighted: weighted}
	if weighted {
		d.Mean = make([]float64, axis.NBins)
	}
	return d
}

// Add accumulates weight w into bin, updating the Welford-style running mean
// when the distribution is weighted. d is the contributing pair distance;
// it is ignored when Weighted is false.
func (d *Distribution) Add(bin int, w, dist float64) {
	if bin < 0 || bin >= len(d.Count) {
		return
	}
	if d.Weighted {
		prevCount := d.Count[bin]
		newCount := prevCount + w
		if newCount > 0 {
			// Welford-style running weighted average: avoids catastrophic
			// cancellation when a bin accumulates many near-equal
			// contributions.
			d.Mean[bin] += (dist - d.Mean[bin]) * (w / newCount)
		}
		d.Count[bin] = newCount
		return
	}
	d.Count[bin] += w
}

// EffectiveDistance returns the empirical mean distance for bin i when
// weighted bins are enabled and the bin is nonempty, otherwise the fixed bin
// center.
func (d *Distribution) EffectiveDistance(i int) float64 {
	if d.Weighted && d.Count[i] > 0 {
		return d.Mean[i]
	}
	return d.Axis.BinCenter(i)
}

// HighestNonzero returns the index of the last bin with Count > 0, or -1 if
// every bin is zero.
func (d *Distribution) HighestNonzero() int {
	for i := len(d.Count) - 1; i >= 0; i-- {
		if d.Count[i] != 0 {
			return i
		}
	}
	return -1
}

// Truncate resizes the distribution to the index past the last nonzero bin,
// with a floor of minSize bins.
func (d *Distribution) Truncate(minSize int) {
	last := d.HighestNonzero()
	n := last + 1
	if n < minSize {
		n = minSize
	}
	if n > len(d.Count) {
		n = len(d.Count)
	}
	d.Resize(n)
}

// Resize truncates or zero-extends the distribution to n bins, preserving
// D[i] >= 0 and the weighted-mean invariant for surviving bins.
func (d *Distribution) Resize(n int) {
	if n == len(d.Count) {
		return
	}
	if n < len(d.Count) {
		d.Count = d.Count[:n]
		if d.Weighted {
			d.Mean = d.Mean[:n]
		}
	} else {
		grownCount := make([]float64, n)
		copy(grownCount, d.Count)
		d.Count = grownCount
		if d.Weighted {
			grownMean := make([]float64, n)
			copy(grownMean, d.Mean)
			d.Mean = grownMean
		}
	}
	d.Axis.NBins = n
}

// AddDistribution implements D += other, merging weighted means correctly
// when both are weighted (combined running mean weighted by each side's
// count). Returns an error rather than panicking if sizes disagree.
func (d *Distribution) AddDistribution(other *Distribution) error {
	if len(d.Count) != len(other.Count) {
		return fmt.Errorf("histogram: size mismatch merging distributions: %d != %d", len(d.Count), len(other.Count))
	}
	for i := range d.Count {
		oc := other.Count[i]
		if oc == 0 {
			continue
		}
		if d.Weighted && other.Weighted {
			total := d.Count[i] + oc
			if total > 0 {
				d.Mean[i] = (d.Mean[i]*d.Count[i] + other.Mean[i]*oc) / total
			}
		}
		d.Count[i] += oc
	}
	return nil
}

// SubDistribution implements D -= other, the inverse of AddDistribution used
// by the partial-histogram master patch sequence. The weighted mean of bins
// that become empty is left at its last value; Add will overwrite it once
// the bin is populated again.
func (d *Distribution) SubDistribution(other *Distribution) error {
	if len(d.Count) != len(other.Count) {
		return fmt.Errorf("histogram: size mismatch merging distributions: %d != %d", len(d.Count), len(other.Count))
	}
	for i := range d.Count {
		if other.Count[i] == 0 {
			continue
		}
		remaining := d.Count[i] - other.Count[i]
		if d.Weighted && remaining > 0 {
			// Recover the removed side's contribution from the combined
			// mean: combined = (remaining*meanRemaining + removed*meanRemoved) / total
			d.Mean[i] = (d.Mean[i]*d.Count[i] - other.Mean[i]*other.Count[i]) / remaining
		}
		d.Count[i] = remaining
	}
	return nil
}

// Clone returns a deep copy.
func (d *Distribution) Clone() *Distribution {
	out := &Distribution{Axis: d.Axis, Weighted: d.Weighted}
	out.Count = append([]float64(nil), d.Count...)
	if d.Weighted {
		out.Mean = append([]float64(nil), d.Mean...)
	}
	return out
}

// Zero resets every bin to zero without reallocating.
func (d *Distribution) Zero() {
	for i := range d.Count {
		d.Count[i] = 0
		if d.Weighted {
			d.Mean[i] = 0
		}
	}
}
