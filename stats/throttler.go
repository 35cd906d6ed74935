package stats

import (
	"runtime"
	"sync"
	"time"
)

// WorkerThrottler calculates dynamic worker limits based on system health.
// It implements the three-cap throttling algorithm from original dsynth:
//  1. Load-based cap: Linear interpolation between 1.5×ncpus and 5.0×ncpus
//  2. Swap-based cap: Linear interpolation between 10% and 40% swap usage
//  3. Install-dep-size cap: packages currently installing their dependency
//     closure are weighed against a target byte budget, ramping back up by
//     at most one worker per 30-second slow-start interval
//  4. Final: Minimum of all three caps (most restrictive wins)
//
// The throttling reduces worker count to prevent system overload during
// I/O-heavy builds that stress disk, memory, and swap.
type WorkerThrottler struct {
	maxWorkers int
	ncpus      int
	disabled   bool // When true, always return maxWorkers

	mu              sync.Mutex
	depSizeTarget   int64     // PkgDepScaleTarget; 0 disables the cap
	depCap          int       // last computed install-dep-size cap, ramped over time
	lastDepIncrease time.Time // when depCap was last allowed to grow
}

// NewWorkerThrottler creates a throttler with the configured max workers.
// The ncpus value is determined automatically via runtime.NumCPU().
// If disabled is true, throttling is bypassed and maxWorkers is always returned.
func NewWorkerThrottler(maxWorkers int, disabled bool) *WorkerThrottler {
	return &WorkerThrottler{
		maxWorkers: maxWorkers,
		ncpus:      runtime.NumCPU(),
		disabled:   disabled,
		depCap:     maxWorkers,
	}
}

// SetDepSizeTarget configures the install-dep-size cap's target byte budget
// (dsynth's PkgDepScaleTarget). A target of 0 disables the cap (it always
// reports maxWorkers).
func (wt *WorkerThrottler) SetDepSizeTarget(target int64) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	wt.depSizeTarget = target
}

// CalculateDynMax computes the dynamic worker limit based on current system
// metrics. Returns a value between 1 and maxWorkers.
//
// Throttling rules (matching original dsynth):
//   - Load < 1.5×ncpus: No throttling (return maxWorkers)
//   - Load 1.5-5.0×ncpus: Linear reduction from 100% to 25% of maxWorkers
//   - Load > 5.0×ncpus: Hard cap at 25% of maxWorkers
//   - Swap < 10%: No swap throttling
//   - Swap 10-40%: Linear reduction from 100% to 25% of maxWorkers
//   - Swap > 40%: Hard cap at 25% of maxWorkers
//   - runningPkgDepSize > target: decrement the dep-size cap by one worker
//   - runningPkgDepSize > target/2: allow the dep-size cap to grow by at
//     most one worker every 30 seconds (slow-start ramp)
//   - otherwise: dep-size cap is fully open (maxWorkers)
//
// Returns the minimum of all three caps (most restrictive).
//
// Auto-disable: If load, swap, and runningPkgDepSize are all zero (metrics
// not available), returns maxWorkers to avoid false throttling until
// metrics are implemented.
func (wt *WorkerThrottler) CalculateDynMax(load float64, swapPct int, runningPkgDepSize int64) int {
	// Explicit disable via config flag
	if wt.disabled {
		return wt.maxWorkers
	}

	// Auto-disable when metrics are unavailable (all zero)
	// This prevents false throttling until system metrics collection is implemented
	if load == 0.0 && swapPct == 0 && runningPkgDepSize == 0 {
		return wt.maxWorkers
	}

	// Calculate load-based cap
	loadCap := wt.calculateLoadCap(load)

	// Calculate swap-based cap
	swapCap := wt.calculateSwapCap(swapPct)

	// Calculate install-dep-size cap (stateful, ramped)
	depCap := wt.calculateDepSizeCap(runningPkgDepSize)

	// Return minimum (most restrictive)
	dynMax := loadCap
	if swapCap < dynMax {
		dynMax = swapCap
	}
	if depCap < dynMax {
		dynMax = depCap
	}

	// Ensure at least 1 worker
	if dynMax < 1 {
		dynMax = 1
	}

	return dynMax
}

// calculateDepSizeCap implements the third throttling cap: the total size
// of package dependencies currently being installed across running workers
// (runningPkgDepSize) is compared against a target budget. Above the
// target the cap steps down by one worker immediately; between half the
// target and the target it is allowed to climb back up by at most one
// worker per 30-second slow-start interval; below half the target it is
// fully open.
func (wt *WorkerThrottler) calculateDepSizeCap(runningPkgDepSize int64) int {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	if wt.depSizeTarget <= 0 {
		wt.depCap = wt.maxWorkers
		return wt.maxWorkers
	}

	half := wt.depSizeTarget / 2

	switch {
	case runningPkgDepSize > wt.depSizeTarget:
		if wt.depCap > 1 {
			wt.depCap--
		}
	case runningPkgDepSize > half:
		if wt.depCap < wt.maxWorkers && time.Since(wt.lastDepIncrease) >= 30*time.Second {
			wt.depCap++
			wt.lastDepIncrease = time.Now()
		}
	default:
		wt.depCap = wt.maxWorkers
	}

	return wt.depCap
}

// calculateLoadCap computes the worker limit based on adjusted load average.
// Uses linear interpolation between thresholds:
//
//	minLoad = 1.5 × ncpus
//	maxLoad = 5.0 × ncpus
//
// If load < minLoad: Return maxWorkers (no throttling)
// If load >= maxLoad: Return 25% of maxWorkers (hard cap)
// If minLoad <= load < maxLoad: Linear interpolation
func (wt *WorkerThrottler) calculateLoadCap(load float64) int {
	minLoad := 1.5 * float64(wt.ncpus)
	maxLoad := 5.0 * float64(wt.ncpus)

	if load < minLoad {
		return wt.maxWorkers
	}

	if load >= maxLoad {
		return wt.maxWorkers / 4 // 75% reduction
	}

	// Linear interpolation: reduce from 100% to 25%
	ratio := (load - minLoad) / (maxLoad - minLoad)
	reduction := int(float64(wt.maxWorkers) * 0.75 * ratio)
	return wt.maxWorkers - reduction
}

// calculateSwapCap computes the worker limit based on swap usage percentage.
// Uses linear interpolation between thresholds:
//
//	minSwap = 10%
//	maxSwap = 40%
//
// If swap < minSwap: Return maxWorkers (no throttling)
// If swap >= maxSwap: Return 25% of maxWorkers (hard cap)
// If minSwap <= swap < maxSwap: Linear interpolation
func (wt *WorkerThrottler) calculateSwapCap(swapPct int) int {
	const minSwap = 10
	const maxSwap = 40

	if swapPct < minSwap {
		return wt.maxWorkers
	}

	if swapPct >= maxSwap {
		return wt.maxWorkers / 4 // 75% reduction
	}

	// Linear interpolation: reduce from 100% to 25%
	ratio := float64(swapPct-minSwap) / float64(maxSwap-minSwap)
	reduction := int(float64(wt.maxWorkers) * 0.75 * ratio)
	return wt.maxWorkers - reduction
}
