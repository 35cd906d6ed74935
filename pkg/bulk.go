package pkg

import (
	"sync"

	"portforge/config"
)

// bulkSlotState mirrors the lifecycle a single bulk-fetch request moves
// through: queued by the resolver, claimed by a worker, executed against
// the ports tree, and finally collected by the resolver again.
type bulkSlotState int

const (
	bulkUnlisted bulkSlotState = iota
	bulkOnSubmit
	bulkOnRun
	bulkIsRunning
	bulkOnResponse
)

// bulkWork is a single category/name[@flavor] query submitted to the pool.
type bulkWork struct {
	category string
	name     string
	flavor   string
	flags    string // "x" = not manual, "d" = debug stop
	state    bulkSlotState
}

// bulkResult is the outcome of executing one bulkWork: the resolved
// package (if any), the flags contributed by the manual-selection/debug
// markers and by the Makefile query itself, and any IGNORE reason text.
type bulkResult struct {
	pkg          *Package
	initialFlags PackageFlags
	parseFlags   PackageFlags
	ignoreReason string
	err          error
	state        bulkSlotState
}

// BulkQueue runs a small pool of worker goroutines that fetch port metadata
// in parallel, bounded by maxBulk concurrent in-flight queries. Submission
// and collection are decoupled: Queue() enqueues work without blocking on
// its completion, and GetResult() blocks until the next completed result is
// available, letting the caller overlap graph-walking with the next batch
// of make(1) invocations.
//
// Internally this is a mutex+condvar handoff rather than a plain buffered
// channel pair: each request carries a state tag (on-submit when queued,
// is-running once a worker claims it, on-response on its result; the
// unlisted and on-run values are declared but never assigned), and Pending()
// reports the active counter of work that has been submitted but not yet
// collected, matching the accounting the dependency resolver relies on to
// know when a batch is fully drained.
type BulkQueue struct {
	cfg     *config.Config
	maxBulk int

	mu   sync.Mutex
	cond *sync.Cond

	workQueue   []*bulkWork
	resultQueue []*bulkResult
	active      int // submitted but not yet collected
	closed      bool

	wg sync.WaitGroup
}

func newBulkQueue(cfg *config.Config, maxBulk int) *BulkQueue {
	if maxBulk <= 0 {
		maxBulk = cfg.MaxWorkers
	}
	if maxBulk <= 0 {
		maxBulk = 1
	}

	bq := &BulkQueue{
		cfg:     cfg,
		maxBulk: maxBulk,
	}
	bq.cond = sync.NewCond(&bq.mu)

	for i := 0; i < maxBulk; i++ {
		bq.wg.Add(1)
		go bq.worker()
	}

	return bq
}

// worker pulls the next queued request, executes it outside the lock, and
// hands the result back to the response queue.
func (bq *BulkQueue) worker() {
	defer bq.wg.Done()

	for {
		bq.mu.Lock()
		for len(bq.workQueue) == 0 && !bq.closed {
			bq.cond.Wait()
		}
		if len(bq.workQueue) == 0 && bq.closed {
			bq.mu.Unlock()
			return
		}

		work := bq.workQueue[0]
		bq.workQueue = bq.workQueue[1:]
		work.state = bulkIsRunning
		bq.mu.Unlock()

		p, ignoreReason, err := getPackageInfo(work.category, work.name, work.flavor, bq.cfg)

		res := &bulkResult{
			pkg:          p,
			ignoreReason: ignoreReason,
			err:          err,
			state:        bulkOnResponse,
		}
		if p != nil {
			res.parseFlags = p.Flags
			if work.flags != "x" {
				res.initialFlags |= PkgFManualSel
			}
			if work.flags == "d" {
				res.initialFlags |= PkgFDebugStop
			}
		}

		bq.mu.Lock()
		bq.resultQueue = append(bq.resultQueue, res)
		bq.cond.Broadcast()
		bq.mu.Unlock()
	}
}

// Queue submits one category/name[@flavor] request. It never blocks on the
// request's completion; callers collect results via GetResult.
func (bq *BulkQueue) Queue(category, name, flavor, flags string) {
	bq.mu.Lock()
	defer bq.mu.Unlock()

	bq.active++
	bq.workQueue = append(bq.workQueue, &bulkWork{
		category: category,
		name:     name,
		flavor:   flavor,
		flags:    flags,
		state:    bulkOnSubmit,
	})
	bq.cond.Broadcast()
}

// GetResult blocks until the next completed result is available and
// returns the resolved package, the flags contributed by manual-selection
// markers, the flags contributed by the Makefile query, any IGNORE reason,
// and any error encountered while querying.
func (bq *BulkQueue) GetResult() (*Package, PackageFlags, PackageFlags, string, error) {
	bq.mu.Lock()
	defer bq.mu.Unlock()

	for len(bq.resultQueue) == 0 {
		bq.cond.Wait()
	}

	res := bq.resultQueue[0]
	bq.resultQueue = bq.resultQueue[1:]
	bq.active--

	return res.pkg, res.initialFlags, res.parseFlags, res.ignoreReason, res.err
}

// Close stops accepting new work, waits for in-flight workers to drain,
// and releases pool resources. Safe to call once all Queue()'d work has
// had its results collected.
func (bq *BulkQueue) Close() {
	bq.mu.Lock()
	bq.closed = true
	bq.cond.Broadcast()
	bq.mu.Unlock()

	bq.wg.Wait()
}

// Pending reports the number of requests submitted but not yet collected.
func (bq *BulkQueue) Pending() int {
	bq.mu.Lock()
	defer bq.mu.Unlock()
	return bq.active
}
