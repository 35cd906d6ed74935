package build

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"

	"portforge/config"
	"portforge/log"
	"portforge/pkg"
)

// FetchStats tracks fetch statistics
type FetchStats struct {
	Total   int
	Success int
	Failed  int
}

// DoFetchOnly executes fetch-only mode (download distfiles without building)
func DoFetchOnly(head *pkg.Package, cfg *config.Config) (*FetchStats, error) {
	stats := &FetchStats{}
	var statsMu sync.Mutex

	// Count packages
	for p := head; p != nil; p = p.Next {
		if p.Flags&(pkg.PkgFNotFound|pkg.PkgFCorrupt|pkg.PkgFMeta) == 0 {
			stats.Total++
		}
	}

	fmt.Printf("Fetching distfiles for %d packages...\n", stats.Total)

	// Use worker pool for parallel fetching
	numWorkers := cfg.MaxWorkers
	if numWorkers > 8 {
		numWorkers = 8 // Limit parallelism for fetching
	}

	queue := make(chan *pkg.Package, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for p := range queue {
				success := fetchPackageDistfiles(p, cfg)

				statsMu.Lock()
				if success {
					stats.Success++
					fmt.Printf("[Worker %d] ✓ %s\n", workerID, p.PortDir)
				} else {
					stats.Failed++
					fmt.Printf("[Worker %d] ✗ %s\n", workerID, p.PortDir)
				}
				statsMu.Unlock()
			}
		}(i)
	}

	// Queue packages
	go func() {
		for p := head; p != nil; p = p.Next {
			if p.Flags&(pkg.PkgFNotFound|pkg.PkgFCorrupt|pkg.PkgFMeta) == 0 {
				queue <- p
			}
		}
		close(queue)
	}()

	// Wait for completion
	wg.Wait()

	return stats, nil
}

// fetcherFunc is the injectable per-package fetch operation used by
// doFetchOnlyWithFetcher, so tests can substitute a fake fetcher without
// shelling out to make(1).
type fetcherFunc func(p *pkg.Package, cfg *config.Config) bool

// doFetchOnlyWithFetcher runs fetch-only mode over an explicit package slice
// with a caller-supplied fetcher and worker-count cap, the way DoFetchOnly
// runs it over a resolved dependency list with fetchPackageDistfiles.
// Packages flagged PkgFNotFound or PkgFCorrupt are skipped.
func doFetchOnlyWithFetcher(packages []*pkg.Package, cfg *config.Config, registry *pkg.BuildStateRegistry, logger *log.Logger, fetch fetcherFunc) (*FetchStats, error) {
	var toFetch []*pkg.Package
	for _, p := range packages {
		if registry.HasAnyFlags(p, pkg.PkgFNotFound|pkg.PkgFCorrupt) {
			continue
		}
		toFetch = append(toFetch, p)
	}

	stats := &FetchStats{Total: len(toFetch)}
	var statsMu sync.Mutex

	numWorkers := cfg.MaxWorkers
	if numWorkers > 8 {
		numWorkers = 8 // Limit parallelism for fetching
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	queue := make(chan *pkg.Package, len(toFetch))
	for _, p := range toFetch {
		queue <- p
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range queue {
				success := fetch(p, cfg)

				statsMu.Lock()
				if success {
					stats.Success++
					logger.Success(p.PortDir)
				} else {
					stats.Failed++
					logger.Failed(p.PortDir, "fetch")
				}
				statsMu.Unlock()
			}
		}()
	}
	wg.Wait()

	return stats, nil
}

// fetchPackageDistfiles fetches distfiles for a single package
func fetchPackageDistfiles(p *pkg.Package, cfg *config.Config) bool {
	portPath := filepath.Join(cfg.DPortsPath, p.Category, p.Name)

	args := []string{
		"-C", portPath,
		"DISTDIR=" + cfg.DistFilesPath,
		"BATCH=yes",
		"fetch",
	}

	if p.Flavor != "" {
		args = append(args, "FLAVOR="+p.Flavor)
	}

	cmd := exec.Command("make", args...)
	output, err := cmd.CombinedOutput()

	if err != nil {
		// Check if it's just "no distfiles needed"
		if len(output) == 0 {
			return true
		}
		return false
	}

	return true
}

// FetchRecursive fetches distfiles for a package and all its dependencies
func FetchRecursive(p *pkg.Package, cfg *config.Config, fetched map[string]bool) error {
	if fetched[p.PortDir] {
		return nil
	}

	// Fetch dependencies first
	for _, link := range p.IDependOn {
		if err := FetchRecursive(link.Pkg, cfg, fetched); err != nil {
			return err
		}
	}

	// Fetch this package
	if !fetchPackageDistfiles(p, cfg) {
		return fmt.Errorf("failed to fetch distfiles for %s", p.PortDir)
	}

	fetched[p.PortDir] = true
	return nil
}
