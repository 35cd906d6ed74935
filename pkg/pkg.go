package pkg

import (
	"path/filepath"

	"portforge/builddb"
	"portforge/config"
	"portforge/log"
)

// MarkPackagesNeedingBuild compares each package's port directory CRC against
// the build database and marks packages that are already up to date as
// successful/packaged so the scheduler skips rebuilding them. It returns the
// number of packages that still need a build.
func MarkPackagesNeedingBuild(packages []*Package, cfg *config.Config, registry *BuildStateRegistry, db *builddb.DB, logger log.LibraryLogger) (int, error) {
	logger.Info("Checking which packages need rebuilding...")

	needBuild := 0
	total := 0

	for _, p := range packages {
		total++

		if p.Flags.HasAny(PkgFNotFound | PkgFCorrupt) {
			registry.AddFlags(p, PkgFNoBuildIgnore)
			continue
		}

		if p.Flags.Has(PkgFMeta) {
			registry.AddFlags(p, PkgFSuccess)
			continue
		}

		portPath := filepath.Join(cfg.DPortsPath, p.Category, p.Name)
		currentCRC, err := builddb.ComputePortCRC(portPath)
		if err != nil {
			logger.Warn("Failed to compute CRC for %s: %v (will rebuild)", p.PortDir, err)
			needBuild++
			continue
		}
		p.CRC32 = currentCRC

		needsBuild, err := db.NeedsBuild(p.PortDir, currentCRC)
		if err != nil {
			logger.Warn("Failed to check NeedsBuild for %s: %v (will rebuild)", p.PortDir, err)
			needBuild++
			continue
		}

		if needsBuild {
			needBuild++
		} else {
			registry.AddFlags(p, PkgFSuccess|PkgFPackaged)
			logger.Debug("%s: up-to-date", p.PortDir)
		}

		if total%100 == 0 {
			logger.Info("Checked %d packages...", total)
		}
	}

	logger.Info("Checked %d packages: %d need building, %d up-to-date", total, needBuild, total-needBuild)

	return needBuild, nil
}
