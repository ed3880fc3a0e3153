package engine

import (
	"github.com/openstructure/saxsengine/internal/histogram"
)

// formPair is an unordered pair of atomic form-factor channels, always
// stored with F1 <= F2.
type formPair struct{ F1, F2 int }

func pairKey(f1, f2 int) formPair {
	if f1 <= f2 {
		return formPair{f1, f2}
	}
	return formPair{f2, f1}
}

// Composite is the tagged bundle of channel-split distributions: aa/aw/ww
// for the simple case, extended with per-form-factor splits when the
// histogram variant retains them, and with xx/ax/wx grid excluded-volume
// channels when the grid model is in play.
type Composite struct {
	Axis           histogram.Axis
	NumAtomicForms int // number of atomic form-factor channels; channel NumAtomicForms is water in the form-factor table
	Weighted       bool

	AA map[formPair]*histogram.Distribution // atom-atom, keyed by unordered form-factor pair
	AW map[int]*histogram.Distribution       // atom-water, keyed by atomic form-factor channel
	WW *histogram.Distribution               // water-water

	HasExv bool
	AXi    map[int]*histogram.Distribution // atom-exv interior, keyed by atomic form
	AXs    map[int]*histogram.Distribution // atom-exv surface
	WXi    *histogram.Distribution         // water-exv interior
	WXs    *histogram.Distribution         // water-exv surface
	XXi    *histogram.Distribution         // exv interior-interior
	XXc    *histogram.Distribution         // exv interior-surface cross
	XXs    *histogram.Distribution         // exv surface-surface
}

// NewComposite allocates an empty composite bundle over axis.
func NewComposite(axis histogram.Axis, numAtomicForms int, weighted, hasExv bool) *Composite {
	c := &Composite{
		Axis:           axis,
		NumAtomicForms: numAtomicForms,
		Weighted:       weighted,
		AA:             make(map[formPair]*histogram.Distribution),
		AW:             make(map[int]*histogram.Distribution),
		WW:             histogram.New(axis, weighted),
		HasExv:         hasExv,
	}
	if hasExv {
		c.AXi = make(map[int]*histogram.Distribution)
		c.AXs = make(map[int]*histogram.Distribution)
		c.WXi = histogram.New(axis, weighted)
		c.WXs = histogram.New(axis, weighted)
		c.XXi = histogram.New(axis, weighted)
		c.XXc = histogram.New(axis, weighted)
		c.XXs = histogram.New(axis, weighted)
	}
	return c
}

func (c *Composite) aaDist(f1, f2 int) *histogram.Distribution {
	k := pairKey(f1, f2)
	d, ok := c.AA[k]
	if !ok {
		d = histogram.New(c.Axis, c.Weighted)
		c.AA[k] = d
	}
	return d
}

func (c *Composite) awDist(f int) *histogram.Distribution {
	d, ok := c.AW[f]
	if !ok {
		d = histogram.New(c.Axis, c.Weighted)
		c.AW[f] = d
	}
	return d
}

func (c *Composite) axiDist(f int) *histogram.Distribution {
	d, ok := c.AXi[f]
	if !ok {
		d = histogram.New(c.Axis, c.Weighted)
		c.AXi[f] = d
	}
	return d
}

func (c *Composite) axsDist(f int) *histogram.Distribution {
	d, ok := c.AXs[f]
	if !ok {
		d = histogram.New(c.Axis, c.Weighted)
		c.AXs[f] = d
	}
	return d
}

// Total sums every channel into a single plain distance distribution: the
// master M = Σ P_ij + Σ P_iw + P_ww (plus exv channels when present), the
// value a manager's Calculate returns.
func (c *Composite) Total() *histogram.Distribution {
	total := histogram.New(c.Axis, c.Weighted)
	for _, d := range c.AA {
		_ = total.AddDistribution(d)
	}
	for _, d := range c.AW {
		_ = total.AddDistribution(d)
	}
	_ = total.AddDistribution(c.WW)
	if c.HasExv {
		for _, d := range c.AXi {
			_ = total.AddDistribution(d)
		}
		for _, d := range c.AXs {
			_ = total.AddDistribution(d)
		}
		_ = total.AddDistribution(c.WXi)
		_ = total.AddDistribution(c.WXs)
		_ = total.AddDistribution(c.XXi)
		_ = total.AddDistribution(c.XXc)
		_ = total.AddDistribution(c.XXs)
	}
	return total
}

// TruncateAll truncates every channel distribution (and thereby the axis
// they share) to the highest nonzero bin across all channels, minimum 10
// bins. Channels must share one axis, so the truncation point is computed
// once from the total and applied everywhere.
func (c *Composite) TruncateAll(minSize int) {
	total := c.Total()
	last := total.HighestNonzero()
	n := last + 1
	if n < minSize {
		n = minSize
	}
	if n > c.Axis.NBins {
		n = c.Axis.NBins
	}
	c.resizeAll(n)
}

func (c *Composite) resizeAll(n int) {
	for _, d := range c.AA {
		d.Resize(n)
	}
	for _, d := range c.AW {
		d.Resize(n)
	}
	c.WW.Resize(n)
	if c.HasExv {
		for _, d := range c.AXi {
			d.Resize(n)
		}
		for _, d := range c.AXs {
			d.Resize(n)
		}
		c.WXi.Resize(n)
		c.WXs.Resize(n)
		c.XXi.Resize(n)
		c.XXc.Resize(n)
		c.XXs.Resize(n)
	}
	c.Axis.NBins = n
}
