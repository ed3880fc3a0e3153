// Package calculator implements SimpleCalculator, the pairwise job queue
// that batches self- and cross-correlation jobs over coordinate sets and
// executes them on a thread pool. The hot loop never takes a lock: every
// job writes into its own thread-local distribution buffer, and buffers are
// merged into the target slot in job-submission order once the pool has
// drained, keeping float-sum bit-stability for a fixed thread count and job
// size.
package calculator

import (
	"sync"

	"github.com/openstructure/saxsengine/internal/geom"
	"github.com/openstructure/saxsengine/internal/histogram"
)

// DefaultJobSize is the number of atoms assigned to one job.
const DefaultJobSize = 200

type jobKind int

const (
	kindSelf jobKind = iota
	kindCross
)

// job is one unit of pairwise work: either the self-correlation of a
// contiguous row range of coordsA against the rest of coordsA (upper
// triangle only), or the cross-correlation of a row range of coordsA
// against the entirety of coordsB.
type job struct {
	kind     jobKind
	coordsA  []geom.Coord
	coordsB  []geom.Coord // nil for self jobs
	rowStart int
	rowEnd   int // exclusive
	scaling  int
	slot     int
}

// slot holds the target distribution that one or more enqueues (sharing a
// merge ID) accumulate into during Run's sequential merge.
type slot struct {
	dist *histogram.Distribution
}

// Calculator batches and executes pairwise distance jobs against a shared
// distance axis.
type Calculator struct {
	axis     histogram.Axis
	weighted bool

	threads int
	jobSize int

	jobs         []job
	slots        []slot
	mergeIDIndex map[int]int
}

// New builds a Calculator over the given axis. threads<=0 defaults to 1,
// jobSize<=0 defaults to DefaultJobSize.
func New(axis histogram.Axis, weighted bool, threads, jobSize int) *Calculator {
	if threads <= 0 {
		threads = 1
	}
	if jobSize <= 0 {
		jobSize = DefaultJobSize
	}
	return &Calculator{
		axis:         axis,
		weighted:     weighted,
		threads:      threads,
		jobSize:      jobSize,
		mergeIDIndex: make(map[int]int),
	}
}

// resolveSlot returns the slot index for mergeID, allocating a new slot when
// mergeID < 0 or not seen before.
func (c *Calculator) resolveSlot(mergeID int) int {
	if mergeID >= 0 {
		if idx, ok := c.mergeIDIndex[mergeID]; ok {
			return idx
		}
	}
	idx := len(c.slots)
	c.slots = append(c.slots, slot{dist: histogram.New(c.axis, c.weighted)})
	if mergeID >= 0 {
		c.mergeIDIndex[mergeID] = idx
	}
	return idx
}

// EnqueueSelf enqueues the upper triangle of all pairs (i, j), j > i in
// coords, accumulating 2*scaling*w_ij into the target distribution, plus the
// diagonal sum(scaling*w_i^2) into bin 0. Returns the target slot index.
func (c *Calculator) EnqueueSelf(coords []geom.Coord, scaling, mergeID int) (int, error) {
	if err := validateScaling(scaling); err != nil {
		return 0, err
	}
	target := c.resolveSlot(mergeID)
	for start := 0; start < len(coords); start += c.jobSize {
		end := start + c.jobSize
		if end > len(coords) {
			end = len(coords)
		}
		c.jobs = append(c.jobs, job{kind: kindSelf, coordsA: coords, rowStart: start, rowEnd: end, scaling: scaling, slot: target})
	}
	if len(coords) == 0 {
		// Empty coordinate set: nothing to enqueue, slot stays the zero
		// distribution, which is the identity — not an error.
		_ = target
	}
	return target, nil
}

// EnqueueCross enqueues all (i, j) pairs across a and b, accumulating
// 2*scaling*w_ij. Returns the target slot index.
func (c *Calculator) EnqueueCross(a, b []geom.Coord, scaling, mergeID int) (int, error) {
	if err := validateScaling(scaling); err != nil {
		return 0, err
	}
	target := c.resolveSlot(mergeID)
	for start := 0; start < len(a); start += c.jobSize {
		end := start + c.jobSize
		if end > len(a) {
			end = len(a)
		}
		c.jobs = append(c.jobs, job{kind: kindCross, coordsA: a, coordsB: b, rowStart: start, rowEnd: end, scaling: scaling, slot: target})
	}
	return target, nil
}

// Results holds the merged self- and cross-correlation distributions keyed
// by the slot index returned from EnqueueSelf/EnqueueCross.
type Results struct {
	Slots []*histogram.Distribution
}

// Slot returns the distribution for a given slot index.
func (r *Results) Slot(idx int) *histogram.Distribution { return r.Slots[idx] }

// Run executes every enqueued job on a bounded worker pool and merges
// thread-local partials into their target slot, in job-submission order, so
// results are reproducible for a fixed thread count and job size. Run
// drains and clears the job queue; the Calculator can be reused for a fresh
// round of enqueues afterward.
func (c *Calculator) Run() *Results {
	partials := make([]*histogram.Distribution, len(c.jobs))

	type workItem struct{ idx int }
	work := make(chan workItem, len(c.jobs))
	for i := range c.jobs {
		work <- workItem{idx: i}
	}
	close(work)

	var wg sync.WaitGroup
	workers := c.threads
	if workers > len(c.jobs) && len(c.jobs) > 0 {
		workers = len(c.jobs)
	}
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				partials[item.idx] = c.runJob(&c.jobs[item.idx])
			}
		}()
	}
	wg.Wait()

	// Sequential merge in insertion order keeps float-sum bit-stability.
	for i, j := range c.jobs {
		if err := c.slots[j.slot].dist.AddDistribution(partials[i]); err != nil {
			// Sizes are constructed identically from the same axis; a
			// mismatch here means an internal invariant broke.
			panic(err)
		}
	}

	out := &Results{Slots: make([]*histogram.Distribution, len(c.slots))}
	for i := range c.slots {
		out.Slots[i] = c.slots[i].dist
	}

	c.jobs = nil
	return out
}

func (c *Calculator) runJob(j *job) *histogram.Distribution {
	local := histogram.New(c.axis, c.weighted)
	scaling := float64(j.scaling)

	switch j.kind {
	case kindSelf:
		for i := j.rowStart; i < j.rowEnd; i++ {
			a := j.coordsA[i]
			// Diagonal term: scaling*w_i^2 into bin 0.
			local.Add(0, scaling*float64(a.W)*float64(a.W), 0)
			for k := i + 1; k < len(j.coordsA); k++ {
				p := geom.EvaluateScalar(a, j.coordsA[k], c.axis.Delta, c.axis.NBins)
				local.Add(p.Bin, 2*scaling*p.W, p.D)
			}
		}
	case kindCross:
		for i := j.rowStart; i < j.rowEnd; i++ {
			a := j.coordsA[i]
			for _, b := range j.coordsB {
				p := geom.EvaluateScalar(a, b, c.axis.Delta, c.axis.NBins)
				local.Add(p.Bin, 2*scaling*p.W, p.D)
			}
		}
	}
	return local
}
