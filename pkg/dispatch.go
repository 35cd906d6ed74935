package pkg

import "sync"

// DispatchQueue is a live, slot-aware ready set used by the scheduler to
// pick the next package for an idle worker slot. Unlike GetBuildOrder's
// static topological ordering (computed once, before any package has
// built), DispatchQueue re-evaluates readiness as packages complete and
// lets each free slot alternate between the two priority keys dsynth's
// scheduler uses based on slot index parity:
//
//   - even slot index: idep_count descending (large dependency closures
//     dispatched first, so their long chains start early)
//   - odd slot index:  depi_count * depi_depth descending (packages with
//     many deep dependents dispatched first, so they unblock the most
//     downstream work per build)
//
// Ties are broken by PortDir ascending for determinism.
type DispatchQueue struct {
	mu       sync.Mutex
	inDegree map[*Package]int
	terminal map[*Package]bool
	ready    []*Package
	total    int
	done     int
}

// NewDispatchQueue builds a dispatch queue over packages. Any package the
// registry already considers terminal (built successfully, ignored, or
// marked no-build) is excluded from dispatch but still cascades its
// dependents into the ready set, matching the behavior of a package that
// was dispatched and completed before the queue was ever polled.
func NewDispatchQueue(packages []*Package, registry *BuildStateRegistry) *DispatchQueue {
	q := &DispatchQueue{
		inDegree: make(map[*Package]int, len(packages)),
		terminal: make(map[*Package]bool, len(packages)),
	}

	for _, p := range packages {
		q.inDegree[p] = len(p.IDependOn)
		if registry.HasAnyFlags(p, PkgFSuccess|PkgFNoBuildIgnore|PkgFIgnored) {
			q.terminal[p] = true
		} else {
			q.total++
		}
	}

	for _, p := range packages {
		if !q.terminal[p] && q.inDegree[p] == 0 {
			q.ready = append(q.ready, p)
		}
	}

	for p := range q.terminal {
		q.cascade(p)
	}

	return q
}

// Pop removes and returns the highest-priority ready package for the given
// worker slot index, or nil if nothing is currently ready.
func (q *DispatchQueue) Pop(slotIndex int) *Package {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) == 0 {
		return nil
	}

	useIdepCount := slotIndex%2 == 0
	best := 0
	for i := 1; i < len(q.ready); i++ {
		if higherDispatchPriority(q.ready[i], q.ready[best], useIdepCount) {
			best = i
		}
	}

	p := q.ready[best]
	q.ready = append(q.ready[:best:best], q.ready[best+1:]...)
	return p
}

// Complete marks p as finished (success, failure, or skip) and promotes any
// dependent whose last pending dependency was p into the ready set.
func (q *DispatchQueue) Complete(p *Package) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done++
	q.cascade(p)
}

// cascade decrements the in-degree of p's dependents and adds any that
// reach zero to the ready set. Must be called with mu held.
func (q *DispatchQueue) cascade(p *Package) {
	for _, link := range p.DependsOnMe {
		dep := link.Pkg
		if _, ok := q.inDegree[dep]; !ok {
			continue
		}
		q.inDegree[dep]--
		if q.inDegree[dep] == 0 && !q.terminal[dep] {
			q.ready = append(q.ready, dep)
		}
	}
}

// Remaining reports how many non-terminal packages have not yet been
// marked Complete.
func (q *DispatchQueue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total - q.done
}

// higherDispatchPriority reports whether a should be dispatched before b
// under the given key.
func higherDispatchPriority(a, b *Package, useIdepCount bool) bool {
	var ak, bk int
	if useIdepCount {
		ak, bk = a.IdepCount, b.IdepCount
	} else {
		ak, bk = a.DepiCount*a.DepiDepth, b.DepiCount*b.DepiDepth
	}
	if ak != bk {
		return ak > bk
	}
	return a.PortDir < b.PortDir
}
