// Package statemgr implements the per-body dirty-flag state manager feeding
// the partial histogram manager's incremental rebuild. The manager owns the
// flags; bodies hold value-typed Signaller handles that carry a body index
// and a back-reference to the manager, so external rigid-body code can
// report changes without knowing the manager's identity beyond the handle
// it was given: acyclic ownership, no refcount cycles.
package statemgr

import "sync"

// Manager tracks per-body dirty flags plus a single hydration-layer flag.
type Manager struct {
	mu                 sync.Mutex
	internallyModified []bool
	externallyModified []bool
	hydrationModified  bool
}

// New creates a Manager for numBodies bodies, all initially clean.
func New(numBodies int) *Manager {
	return &Manager{
		internallyModified: make([]bool, numBodies),
		externallyModified: make([]bool, numBodies),
	}
}

// Signaller is the handle a body uses to report mutations. It is a small
// value type (manager pointer + body index), cheap to copy and safe to hand
// to rigid-body transformation strategies that have no other knowledge of
// the histogram manager's internals.
type Signaller struct {
	mgr  *Manager
	body int
}

// Unbound reports true for a Signaller obtained before any Manager was
// attached (e.g. a body constructed standalone); its Mark* calls are no-ops.
func (s Signaller) Unbound() bool { return s.mgr == nil }

// MarkExternalChange flags the owning body as externally modified (a rigid
// body move outside the engine's own bookkeeping).
func (s Signaller) MarkExternalChange() {
	if s.mgr == nil {
		return
	}
	s.mgr.mu.Lock()
	s.mgr.externallyModified[s.body] = true
	s.mgr.mu.Unlock()
}

// MarkInternalChange flags the owning body as internally modified (atoms
// added/removed/reweighted within the engine's own model).
func (s Signaller) MarkInternalChange() {
	if s.mgr == nil {
		return
	}
	s.mgr.mu.Lock()
	s.mgr.internallyModified[s.body] = true
	s.mgr.mu.Unlock()
}

// Probe returns the Signaller for bodyIndex. Out-of-range indices return an
// unbound Signaller rather than panicking, so callers that race a body list
// resize degrade to a no-op instead of crashing.
func (m *Manager) Probe(bodyIndex int) Signaller {
	if bodyIndex < 0 || bodyIndex >= len(m.internallyModified) {
		return Signaller{}
	}
	return Signaller{mgr: m, body: bodyIndex}
}

// SignalModifiedHydrationLayer marks the hydration shell dirty.
func (m *Manager) SignalModifiedHydrationLayer() {
	m.mu.Lock()
	m.hydrationModified = true
	m.mu.Unlock()
}

// Snapshot returns copies of the current flags and clears every flag
// atomically, so the caller (the histogram manager's calculate()) observes a
// consistent view and nothing is missed between read and clear.
func (m *Manager) Snapshot() (internal, external []bool, hydration bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	internal = append([]bool(nil), m.internallyModified...)
	external = append([]bool(nil), m.externallyModified...)
	hydration = m.hydrationModified
	for i := range m.internallyModified {
		m.internallyModified[i] = false
		m.externallyModified[i] = false
	}
	m.hydrationModified = false
	return
}

// Grow extends the flag arrays to cover newNumBodies bodies (appending
// clean entries), used when a body is added to the molecule after the
// manager was constructed.
func (m *Manager) Grow(newNumBodies int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.internallyModified) < newNumBodies {
		m.internallyModified = append(m.internallyModified, false)
		m.externallyModified = append(m.externallyModified, false)
	}
}
