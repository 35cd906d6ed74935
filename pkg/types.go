package pkg

import (
	"os"
	"path/filepath"
	"sync"

	"portforge/config"
)

// PackageFlags is a bitmask of static and build-time states tracked for a
// package. Static flags (NotFound, Corrupt, Meta, Ignored, ManualSel) are
// populated when the port is queried from the ports tree and live on
// Package.Flags. Dynamic build-time flags (Success, Failed, Running,
// Packaged, Skipped, ...) are tracked per-build in BuildStateRegistry so the
// same Package can be reused across independent build runs.
type PackageFlags int

const (
	// PkgFNotFound marks a port that could not be located in the ports tree.
	PkgFNotFound PackageFlags = 1 << iota
	// PkgFCorrupt marks a port whose Makefile query failed or returned garbage.
	PkgFCorrupt
	// PkgFMeta marks a meta-port that produces no package file of its own.
	PkgFMeta
	// PkgFIgnored marks a port with a non-empty IGNORE in its Makefile.
	PkgFIgnored
	// PkgFNoBuildIgnore mirrors PkgFIgnored but sticks even after the reason
	// string is cleared, so downstream passes can still skip the build.
	PkgFNoBuildIgnore
	// PkgFManualSel marks a package that was explicitly requested on the
	// command line, as opposed to one pulled in only as a dependency.
	PkgFManualSel
	// PkgFDummy marks a placeholder package created to satisfy a dependency
	// edge before its real metadata has been fetched.
	PkgFDummy
	// PkgFPlacehold marks a package entered into the registry as a forward
	// reference while its dependents are still being linked.
	PkgFPlacehold
	// PkgFDebugStop marks a package selected with the "debug stop" bulk flag,
	// which halts the worker immediately after the package is built.
	PkgFDebugStop

	// PkgFSuccess marks a package that built (or was already packaged)
	// successfully during the current run.
	PkgFSuccess
	// PkgFFailed marks a package whose build failed during the current run.
	PkgFFailed
	// PkgFRunning marks a package that is currently occupying a worker slot.
	PkgFRunning
	// PkgFSkipped marks a package that was skipped because a dependency
	// failed or was itself skipped.
	PkgFSkipped
	// PkgFPackaged marks a package whose on-disk package file is already
	// up to date, so no rebuild is required.
	PkgFPackaged
	// PkgFPkgPkg marks the bootstrap ports-mgmt/pkg package, built ahead of
	// the worker pool and excluded from the normal scheduling pass.
	PkgFPkgPkg
	// PkgFNotReady marks a package whose dependencies have not all finished
	// building yet; it cannot be scheduled.
	PkgFNotReady
	// PkgFBuildList marks a package that has been added to the current
	// scheduling pass's candidate list.
	PkgFBuildList
	// PkgFBuildLoop marks a package currently being visited while walking
	// the dependency graph, used to detect cycles.
	PkgFBuildLoop
	// PkgFBuildTrav marks a package that has already been fully traversed
	// in the current scheduling pass.
	PkgFBuildTrav

	// PkgFNoBuildD marks a dependency-caused NOBUILD (a dependency is
	// NOBUILD so this package can never be built either).
	PkgFNoBuildD
	// PkgFNoBuildS marks a self-caused NOBUILD, e.g. IGNORE or BROKEN.
	PkgFNoBuildS
	// PkgFNoBuildF marks a NOBUILD caused by a prior build failure of this
	// same package earlier in the run.
	PkgFNoBuildF
	// PkgFNoBuildI marks a NOBUILD caused by the package being explicitly
	// ignored by the operator (not derived from the Makefile).
	PkgFNoBuildI
)

// Has reports whether all bits in flags are set.
func (f PackageFlags) Has(flags PackageFlags) bool {
	return f&flags == flags
}

// HasAny reports whether any bit in flags is set.
func (f PackageFlags) HasAny(flags PackageFlags) bool {
	return f&flags != 0
}

// Set returns f with flags set.
func (f PackageFlags) Set(flags PackageFlags) PackageFlags {
	return f | flags
}

// Clear returns f with flags cleared.
func (f PackageFlags) Clear(flags PackageFlags) PackageFlags {
	return f &^ flags
}

// DepType identifies which Makefile dependency list a PkgLink came from.
// Ordering matters: a package only needs to wait on FETCH/EXTRACT/PATCH/BUILD/LIB
// dependencies before it can itself build, while RUN dependencies only gate
// package installation, not compilation.
type DepType int

const (
	DepTypeFetch DepType = iota + 1
	DepTypeExtract
	DepTypePatch
	DepTypeBuild
	DepTypeLib
	DepTypeRun
)

func (d DepType) String() string {
	switch d {
	case DepTypeFetch:
		return "fetch"
	case DepTypeExtract:
		return "extract"
	case DepTypePatch:
		return "patch"
	case DepTypeBuild:
		return "build"
	case DepTypeLib:
		return "lib"
	case DepTypeRun:
		return "run"
	default:
		return "unknown"
	}
}

// PkgLink is one edge of the bidirectional dependency graph: IDependOn
// edges point from a package to the packages it requires, DependsOnMe
// edges point the other way, from a package to its dependents.
type PkgLink struct {
	Pkg     *Package
	DepType DepType
}

// Package is the pure metadata record for a single port: its identity,
// queried Makefile dependency strings, and the graph edges linking it to
// the rest of the build. Build-time status (success/failure/running) is
// intentionally kept out of this struct and tracked instead in a
// BuildStateRegistry, so the same Package value can be shared safely
// across concurrent workers and across repeated build runs.
type Package struct {
	// Identity
	Category string
	Name     string
	Flavor   string
	PortDir  string // "category/name" or "category/name@flavor"

	// Queried Makefile metadata
	Version string
	PkgFile string

	// Raw dependency strings as returned by `make -V`, one line per
	// dependency class. Parsed lazily by parseDependencyString.
	FetchDeps   string
	ExtractDeps string
	PatchDeps   string
	BuildDeps   string
	LibDeps     string
	RunDeps     string

	// Dependency graph edges, populated by resolveDependencies /
	// buildDependencyGraph.
	IDependOn   []*PkgLink // packages this package depends on
	DependsOnMe []*PkgLink // packages that depend on this package

	// DepiCount is the number of packages that depend on this one
	// (len(DependsOnMe), cached for quick fanout comparisons).
	DepiCount int
	// DepiDepth is the maximum number of dependency hops from any leaf
	// to this package, used to prioritize high-fanout/deep packages.
	DepiDepth int
	// IdepCount is the recursive, non-uniqueized count of this package's
	// own dependency closure (len(IDependOn) plus each dependency's own
	// IdepCount), used by the scheduler's dispatch queue to favor packages
	// with large dependency trees.
	IdepCount int

	// Static flags set while querying the ports tree (NotFound, Corrupt,
	// Meta, Ignored, ManualSel, ...). Build-time flags live in
	// BuildStateRegistry instead.
	Flags PackageFlags

	// CRC32 is the last-computed content checksum of the port directory,
	// used for incremental build skipping.
	CRC32 uint32

	// PkgFileSize is the size in bytes of the built package file, if known.
	PkgFileSize int64

	// BuildUUID identifies the most recent build attempt recorded for this
	// package in the build database.
	BuildUUID string

	// Next and Prev thread this package into the flat build list used by
	// the scheduler, mirroring dsynth's intrusive pkg_next/pkg_prev links.
	Next *Package
	Prev *Package
}

// GetPortDir, GetCategory, GetName, GetVersion and GetPkgFile satisfy
// lightweight metadata interfaces used by leaf packages (e.g. builddb) that
// must not import pkg to avoid a dependency cycle.
func (p *Package) GetPortDir() string  { return p.PortDir }
func (p *Package) GetCategory() string { return p.Category }
func (p *Package) GetName() string     { return p.Name }
func (p *Package) GetVersion() string  { return p.Version }
func (p *Package) GetPkgFile() string  { return p.PkgFile }

// PackageRegistry is a concurrency-safe store mapping port directories to
// their canonical *Package. Every package discovered during dependency
// resolution - whether a root request or a transitive dependency - is
// entered exactly once, so graph edges always point at a single shared
// instance.
type PackageRegistry struct {
	mu    sync.RWMutex
	byDir map[string]*Package
}

// NewPackageRegistry creates an empty registry.
func NewPackageRegistry() *PackageRegistry {
	return &PackageRegistry{
		byDir: make(map[string]*Package),
	}
}

// Find looks up a package by its PortDir. Returns nil if not present.
func (r *PackageRegistry) Find(portDir string) *Package {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byDir[portDir]
}

// Enter registers p under p.PortDir if no package is registered there yet.
// If a package is already registered for that PortDir, the existing package
// is returned unchanged and p is discarded - callers must use the returned
// value instead of p to avoid operating on an orphaned duplicate.
func (r *PackageRegistry) Enter(p *Package) *Package {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byDir[p.PortDir]; ok {
		return existing
	}
	r.byDir[p.PortDir] = p
	return p
}

// AllPackages returns every package currently registered, in unspecified
// order. Callers that need determinism should sort by PortDir themselves.
func (r *PackageRegistry) AllPackages() []*Package {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Package, 0, len(r.byDir))
	for _, p := range r.byDir {
		out = append(out, p)
	}
	return out
}

// Count returns the number of packages currently registered.
func (r *PackageRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byDir)
}

// getPackageInfo queries the ports tree (or, under test, a fixture querier)
// for a single category/name[@flavor] port and returns a populated Package
// along with any IGNORE reason reported by the Makefile.
func getPackageInfo(category, name, flavor string, cfg *config.Config) (*Package, string, error) {
	portDir := category + "/" + name
	if flavor != "" {
		portDir += "@" + flavor
	}

	p := &Package{
		Category: category,
		Name:     name,
		Flavor:   flavor,
		PortDir:  portDir,
	}

	portPath := filepath.Join(cfg.DPortsPath, category, name)

	if !skipPortDirCheck {
		if info, err := os.Stat(portPath); err != nil || !info.IsDir() {
			p.Flags |= PkgFNotFound
			return p, "", &PortNotFoundError{PortSpec: portDir, Path: portPath}
		}
	}

	flags, ignoreReason, err := portsQuerier.QueryMakefile(p, portPath, cfg)
	if err != nil {
		p.Flags |= PkgFCorrupt
		return p, "", err
	}

	p.Flags |= flags
	return p, ignoreReason, nil
}
