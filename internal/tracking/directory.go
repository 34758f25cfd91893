package tracking

import "sync"

// Directory is the shared registry of per-instrument order trackers owned by
// one account. It exists so the cross-symbol stale-order sweep can reach
// sibling instruments without implicit back-references.
type Directory struct {
	mu       sync.RWMutex
	trackers map[string]*OrderTracker
}

// NewDirectory creates an empty tracker directory.
func NewDirectory() *Directory {
	return &Directory{trackers: make(map[string]*OrderTracker)}
}

// Register adds a tracker, replacing any previous tracker for its symbol.
func (d *Directory) Register(t *OrderTracker) {
	d.mu.Lock()
	d.trackers[t.Symbol()] = t
	d.mu.Unlock()
}

// Lookup returns the tracker for a symbol.
func (d *Directory) Lookup(symbol string) (*OrderTracker, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.trackers[symbol]
	return t, ok
}

// ForEach invokes fn for every registered tracker. The snapshot is taken
// under the read lock; fn runs outside it so it may call back into the
// directory or the trackers.
func (d *Directory) ForEach(fn func(t *OrderTracker)) {
	d.mu.RLock()
	snapshot := make([]*OrderTracker, 0, len(d.trackers))
	for _, t := range d.trackers {
		snapshot = append(snapshot, t)
	}
	d.mu.RUnlock()
	for _, t := range snapshot {
		fn(t)
	}
}

// Symbols returns the registered instruments.
func (d *Directory) Symbols() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.trackers))
	for s := range d.trackers {
		out = append(out, s)
	}
	return out
}
