package engine

import (
	"gonum.org/v1/gonum/floats"

	"github.com/openstructure/saxsengine/internal/histogram"
	"github.com/openstructure/saxsengine/internal/sinctable"
)

// FreeParams holds the scattering-curve fit parameters: c_w (hydration-shell
// contrast), c_x (excluded-volume contrast), c_s (grid-exv surface/interior
// weighting), and two Debye-Waller coefficients.
type FreeParams struct {
	Cw, Cx, Cs float64
	Ba, Bx     float64
}

// DefaultFreeParams returns the identity parameter set the q=0
// forward-scattering invariant holds at: c_w=1, c_x=0, c_s=1, B_a=B_x=0.
func DefaultFreeParams() FreeParams {
	return FreeParams{Cw: 1, Cx: 0, Cs: 1, Ba: 0, Bx: 0}
}

// ScatteringProfile is the Debye-transform output: intensity sampled over a
// q-axis.
type ScatteringProfile struct {
	Q []float64
	I []float64
}

// term bits for the combination-cache dirty mask: each cached channel term
// has a bit in the cache-valid mask, and dirtyTermsFor maps a changed free
// parameter to the terms it invalidates.
const (
	termAA = 1 << iota
	termAX
	termXX
	termAW
	termWX
	termWW
)

func dirtyTermsFor(changed FreeParams, prev FreeParams) int {
	mask := 0
	if changed.Ba != prev.Ba {
		mask |= termAA | termAX | termAW
	}
	if changed.Bx != prev.Bx {
		mask |= termAX | termXX | termWX
	}
	if changed.Cx != prev.Cx {
		mask |= termAX | termXX | termWX
	}
	if changed.Cw != prev.Cw {
		mask |= termAW | termWX | termWW
	}
	if changed.Cs != prev.Cs {
		mask |= termXX | termAX | termWX
	}
	return mask
}

// Transform computes the Debye intensity profile from a composite histogram,
// a precomputed sinc table, a form-factor table, and the current free
// parameters. It implements the channel-decomposition formula:
//
//	I(q) = I_aa(q) - c_x*I_ax(q) + c_x^2*I_xx(q)
//	     + c_w*I_aw(q) - c_x*c_w*I_wx(q) + c_w^2*I_ww(q)
//
// The cross-channel distributions (aw, ax, wx) come from EnqueueCross and so
// already count every pair in both orders (2*w_i*w_j), which is why their
// coefficients are c_x, c_w and c_x*c_w rather than twice those; with c_w=1,
// c_x=0, c_s=1, B_a=B_x=0 the transform sums to (sum weights)^2 at q=0. The
// grid-exv refinement is I_xx(q) = I_xx^i(q) + c_s*I_xx^c(q) +
// c_s^2*I_xx^s(q) (and the analogous c_s split for ax/wx), and Debye-Waller
// attenuation applied as: exp(-B_a q^2/2) on the atomic channel, exp(-B_x
// q^2/2) on the excluded-volume channel, and the geometric mean of the two
// (with water treated as B=0) on cross-channel terms.
func Transform(c *Composite, qAxis []float64, sinc *sinctable.Table, ff FormFactorTable, exv func(q float64) float64, params FreeParams) ScatteringProfile {
	out := ScatteringProfile{Q: append([]float64(nil), qAxis...), I: make([]float64, len(qAxis))}

	for qi, q := range qAxis {
		iAA := channelSumAA(c, sinc, ff, qi)
		iAW := channelSumAW(c, sinc, ff, qi)
		iWW := channelSum(c.WW, sinc, qi)

		exvFF := 1.0
		if exv != nil {
			exvFF = exv(q)
		}

		var iAXi, iAXs, iWXi, iWXs, iXXi, iXXc, iXXs float64
		if c.HasExv {
			iAXi = exvFF * channelSumAXForm(c.AXi, sinc, ff, qi)
			iAXs = exvFF * channelSumAXForm(c.AXs, sinc, ff, qi)
			waterQ := ff.FF(c.NumAtomicForms, q)
			iWXi = exvFF * waterQ * channelSum(c.WXi, sinc, qi)
			iWXs = exvFF * waterQ * channelSum(c.WXs, sinc, qi)
			iXXi = exvFF * exvFF * channelSum(c.XXi, sinc, qi)
			iXXc = exvFF * exvFF * channelSum(c.XXc, sinc, qi)
			iXXs = exvFF * exvFF * channelSum(c.XXs, sinc, qi)
		}

		dwAA := DebyeWaller(params.Ba, q)
		dwAX := CrossDebyeWaller(params.Ba, params.Bx, q)
		dwXX := DebyeWaller(params.Bx, q)
		dwAW := CrossDebyeWaller(params.Ba, 0, q)
		dwWX := CrossDebyeWaller(params.Bx, 0, q)

		iAA *= dwAA
		iAW *= dwAW
		iAX := (iAXi + params.Cs*iAXs) * dwAX
		iWX := (iWXi + params.Cs*iWXs) * dwWX
		iXX := (iXXi + params.Cs*iXXc + params.Cs*params.Cs*iXXs) * dwXX

		I := iAA - params.Cx*iAX + params.Cx*params.Cx*iXX +
			params.Cw*iAW - params.Cx*params.Cw*iWX + params.Cw*params.Cw*iWW

		out.I[qi] = I
	}
	return out
}

// ProfileCache memoizes per-term q-arrays across repeated Transform calls
// against the same composite histogram, recomputing only the terms touched
// by whichever free parameters changed since the last call, tracked via a
// cache-valid bitmask. A fitter sweeping c_w at fixed structure, for
// instance, never recomputes I_aa or I_xx.
type ProfileCache struct {
	prev    FreeParams
	valid   int // bitmask of terms still valid from the last Compute call
	qAA     []float64
	qAX     []float64
	qXX     []float64
	qAW     []float64
	qWX     []float64
	qWW     []float64
}

// NewProfileCache returns a cache with nothing valid, forcing a full
// recompute on the first Compute call.
func NewProfileCache() *ProfileCache {
	return &ProfileCache{prev: FreeParams{Cw: -1}} // sentinel: no real FreeParams has Cw==-1 as a resting default
}

// Compute returns the scattering profile for params, reusing cached terms
// whose governing parameters are unchanged from the previous call.
func (pc *ProfileCache) Compute(c *Composite, qAxis []float64, sinc *sinctable.Table, ff FormFactorTable, exv func(q float64) float64, params FreeParams) ScatteringProfile {
	dirty := dirtyTermsFor(params, pc.prev) | (^pc.valid)
	n := len(qAxis)
	if len(pc.qAA) != n {
		dirty = termAA | termAX | termXX | termAW | termWX | termWW
		pc.qAA = make([]float64, n)
		pc.qAX = make([]float64, n)
		pc.qXX = make([]float64, n)
		pc.qAW = make([]float64, n)
		pc.qWX = make([]float64, n)
		pc.qWW = make([]float64, n)
	}

	out := ScatteringProfile{Q: append([]float64(nil), qAxis...), I: make([]float64, n)}
	for qi, q := range qAxis {
		if dirty&termAA != 0 {
			pc.qAA[qi] = channelSumAA(c, sinc, ff, qi) * DebyeWaller(params.Ba, q)
		}
		if dirty&termAW != 0 {
			pc.qAW[qi] = channelSumAW(c, sinc, ff, qi) * CrossDebyeWaller(params.Ba, 0, q)
		}
		if dirty&termWW != 0 {
			pc.qWW[qi] = channelSum(c.WW, sinc, qi)
		}
		if c.HasExv {
			exvFF := 1.0
			if exv != nil {
				exvFF = exv(q)
			}
			if dirty&termAX != 0 {
				raw := channelSumAXForm(c.AXi, sinc, ff, qi) + params.Cs*channelSumAXForm(c.AXs, sinc, ff, qi)
				pc.qAX[qi] = exvFF * raw * CrossDebyeWaller(params.Ba, params.Bx, q)
			}
			if dirty&termWX != 0 {
				waterQ := ff.FF(c.NumAtomicForms, q)
				raw := channelSum(c.WXi, sinc, qi) + params.Cs*channelSum(c.WXs, sinc, qi)
				pc.qWX[qi] = exvFF * waterQ * raw * CrossDebyeWaller(params.Bx, 0, q)
			}
			if dirty&termXX != 0 {
				raw := channelSum(c.XXi, sinc, qi) + params.Cs*channelSum(c.XXc, sinc, qi) + params.Cs*params.Cs*channelSum(c.XXs, sinc, qi)
				pc.qXX[qi] = exvFF * exvFF * raw * DebyeWaller(params.Bx, q)
			}
		}

		out.I[qi] = pc.qAA[qi] - params.Cx*pc.qAX[qi] + params.Cx*params.Cx*pc.qXX[qi] +
			params.Cw*pc.qAW[qi] - params.Cx*params.Cw*pc.qWX[qi] + params.Cw*params.Cw*pc.qWW[qi]
	}

	pc.prev = params
	pc.valid = termAA | termAX | termXX | termAW | termWX | termWW
	return out
}

// Invalidate forces every cached term to recompute on the next Compute call,
// used when the underlying composite histogram itself changes (a structural
// recalculation, not just a free-parameter sweep).
func (pc *ProfileCache) Invalidate() {
	pc.valid = 0
}

// channelSum evaluates Σ_bin D[bin] * sinc(q*d_bin) for a single channel
// distribution, using the distribution's empirical mean distance when
// weighted bins are enabled. The unweighted case is a fixed-bin-center dot
// product against the precomputed sinc row, handed to gonum/floats; the
// weighted case can't share that path since each bin's effective distance
// varies continuously, so it falls back to a per-bin lookup.
func channelSum(d *histogram.Distribution, sinc *sinctable.Table, qi int) float64 {
	if d == nil {
		return 0
	}
	if !d.Weighted {
		// d.Count may be shorter than the table's full d-axis coverage: a
		// truncated composite only keeps bins up to its highest nonzero
		// one, while sinc is built once at the untruncated bin count.
		return floats.Dot(d.Count, sinc.Row(qi)[:len(d.Count)])
	}
	sum := 0.0
	for i, cnt := range d.Count {
		if cnt == 0 {
			continue
		}
		sum += cnt * sinc.AtDistance(qi, d.EffectiveDistance(i))
	}
	return sum
}

func channelSumAA(c *Composite, sinc *sinctable.Table, ff FormFactorTable, qi int) float64 {
	q := sinc.QAxis[qi]
	sum := 0.0
	for pair, d := range c.AA {
		sum += ff.FF(pair.F1, q) * ff.FF(pair.F2, q) * channelSum(d, sinc, qi)
	}
	return sum
}

func channelSumAW(c *Composite, sinc *sinctable.Table, ff FormFactorTable, qi int) float64 {
	q := sinc.QAxis[qi]
	waterChannel := c.NumAtomicForms
	sum := 0.0
	for f, d := range c.AW {
		sum += ff.FF(f, q) * ff.FF(waterChannel, q) * channelSum(d, sinc, qi)
	}
	return sum
}

func channelSumAXForm(m map[int]*histogram.Distribution, sinc *sinctable.Table, ff FormFactorTable, qi int) float64 {
	q := sinc.QAxis[qi]
	sum := 0.0
	for f, d := range m {
		sum += ff.FF(f, q) * channelSum(d, sinc, qi)
	}
	return sum
}
