// Package build provides parallel port building orchestration with CRC-based
// incremental builds. It manages worker pools, dependency ordering, and build
// lifecycle tracking through an embedded bbolt database.
//
// The build system automatically skips unchanged ports by computing CRC32
// checksums of port directories and comparing them with stored values from
// previous successful builds.
//
// # Build Workflow
//
// 1. Parse port specifications and resolve dependencies
// 2. Compute topological build order
// 3. For each port:
//   - Compute CRC32 of port directory
//   - Check if port needs building (NeedsBuild)
//   - Skip if CRC matches last successful build
//   - Otherwise, build and update CRC on success
//
// 4. Track all builds with UUIDs, status, and timestamps
//
// # Basic Usage
//
//	cfg, _ := config.LoadConfig("", "default")
//	logger, _ := log.NewLogger(cfg)
//	db, _ := builddb.OpenDB("~/.portforge/builds.db")
//	defer db.Close()
//
//	pkgRegistry := pkg.NewPackageRegistry()
//	stateRegistry := pkg.NewBuildStateRegistry()
//	packages, _ := pkg.ParsePortList([]string{"editors/vim"}, cfg, stateRegistry, pkgRegistry, logger)
//	pkg.ResolveDependencies(packages, cfg, stateRegistry, pkgRegistry, logger)
//
//	stats, cleanup, _ := DoBuild(packages, cfg, logger, db, stateRegistry, nil, "")
//	defer cleanup()
//
//	fmt.Printf("Success: %d, Skipped: %d\n", stats.Success, stats.Skipped)
//
// # Incremental Builds
//
// The build system uses CRC-based change detection to skip unchanged ports:
//
//	First build:  editors/vim -> builds (no CRC stored)
//	Second build: editors/vim -> skipped (CRC match)
//	After edit:   editors/vim -> rebuilds (CRC mismatch)
//
// # Build Records
//
// Every build creates a record in the database with:
//   - Unique UUID for tracking
//   - Status: "running" -> "success" or "failed"
//   - Timestamps: StartTime and EndTime
//   - Port directory and version
//
// Query build history:
//
//	rec, _ := db.LatestFor("editors/vim", "9.0.0")
//	fmt.Printf("Last build: %s at %s\n", rec.UUID, rec.StartTime)
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"portforge/builddb"
	"portforge/config"
	"portforge/environment"
	"portforge/log"
	"portforge/mount"
	"portforge/pkg"
	"portforge/stats"

	"github.com/google/uuid"
)

// BuildStats tracks build statistics
type BuildStats struct {
	Total      int
	Success    int
	Failed     int
	SkippedPre int // Already built, CRC matched last successful build
	Skipped    int // Dependency failed or was itself skipped
	Ignored    int
	Duration   time.Duration
}

// Worker represents a build worker
type Worker struct {
	ID        int
	Env       environment.Environment // Environment for isolated execution
	Mount     *mount.Worker           // Deprecated: Use Env instead (kept for Task 6 compatibility)
	Current   *pkg.Package
	Status    string
	StartTime time.Time
	mu        sync.Mutex
}

// BuildContext holds the build orchestration state.
// It manages worker pools, dependency tracking, and integrates with builddb
// for CRC-based incremental builds and build record lifecycle tracking.
type BuildContext struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *config.Config
	logger    *log.Logger
	registry  *pkg.BuildStateRegistry
	buildDB   *builddb.DB
	workers   []*Worker
	dispatch  *pkg.DispatchQueue
	stats     BuildStats
	statsMu   sync.Mutex
	startTime time.Time
	wg        sync.WaitGroup
	collector *stats.StatsCollector
	sink      *log.ErrorLogSink
	throttler *stats.WorkerThrottler
	dynMax    atomic.Int32
	runID     string
}

// DoBuild executes the main build process with CRC-based incremental builds.
//
// Packages already flagged PkgFSuccess (CRC match from a prior run, or
// pre-marked by pkg.MarkPackagesNeedingBuild) count toward SkippedPre rather
// than being dispatched. Packages whose dependency failed or was itself
// skipped during this run count toward Skipped. registry may be nil, in
// which case a fresh one is created. consumers receive per-run and
// per-package stats hooks; runID identifies the run in buildDB and is
// generated if empty.
//
// Returns build statistics, a cleanup function, and an error. The cleanup
// function cancels any in-flight build, shuts down the stats collector and
// error log sink, and unmounts worker filesystems - it must always be
// called (typically via defer), whether or not DoBuild itself returned an
// error.
//
// Build lifecycle for each port:
//  1. Generate UUID
//  2. SaveRecord with status="running"
//  3. Execute build phases
//  4. UpdateRecordStatus to "success" or "failed"
//  5. Update CRC and package index (on success only)
func DoBuild(packages []*pkg.Package, cfg *config.Config, logger *log.Logger, buildDB *builddb.DB, registry *pkg.BuildStateRegistry, consumers []stats.StatsConsumer, runID string) (*BuildStats, func(), error) {
	if registry == nil {
		registry = pkg.NewBuildStateRegistry()
	}
	if runID == "" {
		runID = uuid.New().String()
	}

	buildOrder := pkg.GetBuildOrder(packages, logger)

	cctx, cancel := context.WithCancel(context.Background())

	bc := &BuildContext{
		ctx:       cctx,
		cancel:    cancel,
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		buildDB:   buildDB,
		dispatch:  pkg.NewDispatchQueue(buildOrder, registry),
		startTime: time.Now(),
		runID:     runID,
	}

	sink, err := log.NewErrorLogSink()
	if err != nil {
		logger.Warn("error log sink unavailable, phase stderr stays in-process: %v", err)
	}
	bc.sink = sink

	numWorkers := cfg.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	bc.collector = stats.NewStatsCollector(cctx, numWorkers)
	for _, c := range consumers {
		bc.collector.AddConsumer(c)
	}

	bc.throttler = stats.NewWorkerThrottler(numWorkers, false)
	initialMax := numWorkers
	if cfg.SlowStart > 0 && cfg.SlowStart < numWorkers {
		initialMax = cfg.SlowStart
	}
	bc.dynMax.Store(int32(initialMax))

	// cleanup cancels the build context first so every worker and the
	// throttle loop exit promptly, then tears down the stats collector,
	// error log sink, and worker mounts.
	cleanup := func() {
		cancel()
		if bc.sink != nil {
			bc.sink.Close()
		}
		if bc.collector != nil {
			bc.collector.Close()
		}
		fmt.Fprintf(os.Stderr, "Cleaning up worker mounts...\n")
		for i, worker := range bc.workers {
			if worker != nil {
				if err := mount.DoWorkerUnmounts(worker.Mount, cfg); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to unmount worker %d: %v\n", i, err)
				}
			}
		}
	}

	for _, p := range buildOrder {
		switch {
		case registry.HasFlags(p, pkg.PkgFSuccess):
			bc.stats.SkippedPre++
		case registry.HasAnyFlags(p, pkg.PkgFIgnored|pkg.PkgFNoBuildIgnore):
			bc.stats.Ignored++
		default:
			bc.stats.Total++
		}
	}

	fmt.Printf("\nStarting build: %d packages (%d already built, %d ignored)\n",
		bc.stats.Total, bc.stats.SkippedPre, bc.stats.Ignored)

	if err := buildDB.StartRun(runID, bc.startTime); err != nil {
		logger.Warn("failed to start run record %s: %v", runID, err)
	}

	bc.collector.FireRunStart(bc.stats.Total)

	bc.workers = make([]*Worker, numWorkers)
	for i := 0; i < numWorkers; i++ {
		// Create isolated environment for this worker
		env, err := environment.New("bsd")
		if err != nil {
			logger.Error(fmt.Sprintf("Worker %d: failed to create environment: %v", i, err))
			cleanup()
			return nil, cleanup, fmt.Errorf("worker %d environment creation failed: %w", i, err)
		}

		// Setup environment (mounts, directories, etc.)
		if err := env.Setup(i, cfg, logger); err != nil {
			logger.Error(fmt.Sprintf("Worker %d: environment setup failed: %v", i, err))
			cleanup()
			return nil, cleanup, fmt.Errorf("worker %d environment setup failed: %w", i, err)
		}

		bc.workers[i] = &Worker{
			ID:     i,
			Env:    env, // New environment abstraction
			Status: "idle",
			Mount: &mount.Worker{ // Deprecated: kept for compatibility (Task 7 removes)
				Index:   i,
				BaseDir: fmt.Sprintf("%s/SL%02d", cfg.BuildBase, i),
			},
		}

		// Setup mounts for each worker (DEPRECATED: Remove in Task 7)
		// Keeping temporarily for backward compatibility with cleanup
		if err := mount.DoWorkerMounts(bc.workers[i].Mount, cfg); err != nil {
			logger.Error(fmt.Sprintf("Failed to setup mounts for worker %d: %v", i, err))
			cleanup() // Cleanup any workers we did create
			return nil, cleanup, fmt.Errorf("worker %d mount failed: %w", i, err)
		}

		bc.wg.Add(1)
		go bc.workerLoop(bc.workers[i], i)
	}

	// The throttle loop is not counted in bc.wg: it runs until cleanup
	// cancels the build context.
	go bc.throttleLoop(numWorkers)

	// Wait for all workers to finish
	bc.wg.Wait()

	bc.collector.FireRunEnd()

	bc.stats.Duration = time.Since(bc.startTime)

	if err := buildDB.FinishRun(runID, builddb.RunStats{
		Total:   bc.stats.Total,
		Success: bc.stats.Success,
		Failed:  bc.stats.Failed,
		Skipped: bc.stats.Skipped,
		Ignored: bc.stats.Ignored,
	}, time.Now(), false); err != nil {
		logger.Warn("failed to finish run record %s: %v", runID, err)
	}

	// Don't call cleanup here - let the caller do it.
	// This allows proper cleanup on signals, and lets the returned closure
	// double as an abort switch for a still-running build.
	return &bc.stats, cleanup, nil
}

// workerLoop is the main loop for a build worker. Each iteration pulls the
// highest-priority ready package for its slot from the dispatch queue (slot
// parity decides which priority key is used), rechecks whether any
// dependency failed or was skipped (guaranteed settled by the time the
// queue releases a package), and either builds or skips it.
func (bc *BuildContext) workerLoop(worker *Worker, slotIndex int) {
	defer bc.wg.Done()

	for {
		select {
		case <-bc.ctx.Done():
			return
		default:
		}

		if int32(slotIndex) >= bc.dynMax.Load() {
			// This slot is throttled down; idle until the cap opens back up.
			select {
			case <-bc.ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		p := bc.dispatch.Pop(slotIndex)
		if p == nil {
			if bc.dispatch.Remaining() == 0 {
				return
			}
			select {
			case <-bc.ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		if bc.dependencyFailed(p) {
			bc.registry.AddFlags(p, pkg.PkgFSkipped)
			bc.statsMu.Lock()
			bc.stats.Skipped++
			bc.statsMu.Unlock()
			bc.logger.Skipped(p.PortDir)
			bc.collector.FireCompletion(stats.BuildSkipped, p.PortDir, "dependency failed")
			bc.dispatch.Complete(p)
			continue
		}

		worker.mu.Lock()
		worker.Current = p
		worker.Status = "building"
		worker.StartTime = time.Now()
		worker.mu.Unlock()

		// Mark as running
		bc.registry.AddFlags(p, pkg.PkgFRunning)

		// Build the package
		success := bc.buildPackage(worker, p)

		// Update stats
		bc.statsMu.Lock()
		var lastPhase string
		if success {
			bc.stats.Success++
			bc.registry.AddFlags(p, pkg.PkgFSuccess)
			bc.registry.ClearFlags(p, pkg.PkgFRunning)
			bc.logger.Success(p.PortDir)
			bc.collector.FireCompletion(stats.BuildSuccess, p.PortDir, "")
		} else {
			bc.stats.Failed++
			bc.registry.AddFlags(p, pkg.PkgFFailed)
			bc.registry.ClearFlags(p, pkg.PkgFRunning)
			lastPhase = bc.registry.GetLastPhase(p)
			bc.logger.Failed(p.PortDir, lastPhase)
			bc.collector.FireCompletion(stats.BuildFailed, p.PortDir, lastPhase)
		}
		bc.statsMu.Unlock()

		if err := bc.buildDB.PutRunPackage(bc.runID, &builddb.RunPackageRecord{
			PortDir:   p.PortDir,
			Version:   p.Version,
			Status:    statusLabel(success),
			StartTime: worker.StartTime,
			EndTime:   time.Now(),
			WorkerID:  worker.ID,
			LastPhase: lastPhase,
		}); err != nil {
			bc.logger.Warn("failed to record run package %s: %v", p.PortDir, err)
		}

		worker.mu.Lock()
		worker.Current = nil
		worker.Status = "idle"
		worker.mu.Unlock()

		bc.dispatch.Complete(p)

		// Print progress
		bc.printProgress()
	}
}

// statusLabel renders a build outcome the way builddb's run package records
// expect it.
func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

// dependencyFailed reports whether any of p's dependencies failed or were
// skipped. Only meaningful after the dispatch queue has released p, which
// guarantees every dependency has already been marked Complete.
func (bc *BuildContext) dependencyFailed(p *pkg.Package) bool {
	for _, link := range p.IDependOn {
		dep := link.Pkg
		if bc.registry.HasAnyFlags(dep, pkg.PkgFFailed|pkg.PkgFSkipped) {
			return true
		}
	}
	return false
}

// throttleLoop periodically recomputes the dynamic worker cap from load and
// swap pressure (the install-dep-size cap stays open; this codebase does not
// yet track per-package install footprint) and publishes a change to both
// the per-slot gate and any registered stats consumers.
func (bc *BuildContext) throttleLoop(maxWorkers int) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-bc.ctx.Done():
			return
		case <-ticker.C:
			load, _ := stats.GetLoadAverage()
			swapPct, _ := stats.GetSwapUsagePct()
			dynMax := bc.throttler.CalculateDynMax(load, swapPct, 0)

			if int32(dynMax) != bc.dynMax.Load() {
				bc.dynMax.Store(int32(dynMax))
				bc.collector.FireThrottleChange(dynMax, maxWorkers)
			}
		}
	}
}

// buildPackage builds a single package with full lifecycle tracking.
//
// Lifecycle:
//  1. Generate build UUID
//  2. Create build record (status="running")
//  3. Execute all build phases sequentially
//  4. Update record status to "success" or "failed"
//  5. On success: update CRC and package index
//
// Database operations are fail-safe - errors are logged but don't fail the build.
func (bc *BuildContext) buildPackage(worker *Worker, p *pkg.Package) bool {
	pkgLogger := log.NewPackageLogger(bc.cfg, p.PortDir)
	defer pkgLogger.Close()

	pkgLogger.WriteHeader()

	// Generate UUID for this build attempt
	p.BuildUUID = uuid.New().String()

	startTime := time.Now()

	// Create initial build record with status "running"
	buildRecord := &builddb.BuildRecord{
		UUID:      p.BuildUUID,
		PortDir:   p.PortDir,
		Version:   p.Version,
		Status:    "running",
		StartTime: startTime,
	}
	if err := bc.buildDB.SaveRecord(buildRecord); err != nil {
		// Log warning but don't fail build (DB operations are non-fatal)
		fmt.Fprintf(os.Stderr, "Warning: Failed to save build record for %s: %v\n", p.PortDir, err)
	}

	// Execute all build phases
	phases := []string{
		"install-pkgs",
		"check-sanity",
		"fetch-depends",
		"fetch",
		"checksum",
		"extract-depends",
		"extract",
		"patch-depends",
		"patch",
		"build-depends",
		"lib-depends",
		"configure",
		"build",
		"run-depends",
		"stage",
		"check-plist",
		"package",
	}

	for _, phase := range phases {
		bc.registry.SetLastPhase(p, phase)
		pkgLogger.WritePhase(phase)

		if err := executePhase(bc.ctx, worker, p, phase, bc.cfg, bc.registry, pkgLogger, bc.sink); err != nil {
			duration := time.Since(startTime)
			pkgLogger.WriteFailure(duration, fmt.Sprintf("Phase %s failed: %v", phase, err))

			// Update build record status to failed
			if err := bc.buildDB.UpdateRecordStatus(p.BuildUUID, "failed", time.Now()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: Failed to update build record for %s: %v\n", p.PortDir, err)
			}

			return false
		}
	}

	duration := time.Since(startTime)
	pkgLogger.WriteSuccess(duration)

	// Update build record status to success
	if err := bc.buildDB.UpdateRecordStatus(p.BuildUUID, "success", time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to update build record for %s: %v\n", p.PortDir, err)
	}

	// Update CRC database after successful build
	portPath := filepath.Join(bc.cfg.DPortsPath, p.Category, p.Name)
	crc, err := builddb.ComputePortCRC(portPath)
	if err != nil {
		// Log warning but don't fail the build (CRC update is non-fatal)
		fmt.Fprintf(os.Stderr, "Warning: Failed to compute CRC for %s: %v\n", p.PortDir, err)
	} else {
		if err := bc.buildDB.UpdateCRC(p.PortDir, crc); err != nil {
			// Log warning but don't fail the build (CRC update is non-fatal)
			fmt.Fprintf(os.Stderr, "Warning: Failed to update CRC for %s: %v\n", p.PortDir, err)
		}
	}

	// Update package index to point to this successful build
	if err := bc.buildDB.UpdatePackageIndex(p.PortDir, p.Version, p.BuildUUID); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to update package index for %s: %v\n", p.PortDir, err)
	}

	return true
}

// printProgress prints current build progress
func (bc *BuildContext) printProgress() {
	bc.statsMu.Lock()
	defer bc.statsMu.Unlock()

	elapsed := time.Since(bc.startTime)
	done := bc.stats.Success + bc.stats.Failed

	fmt.Printf("\r[%s] Progress: %d/%d (S:%d F:%d) %s elapsed",
		time.Now().Format("15:04:05"),
		done, bc.stats.Total,
		bc.stats.Success, bc.stats.Failed,
		formatDuration(elapsed))
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
