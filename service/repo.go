package service

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"portforge/builddb"
	"portforge/pkg"

	"github.com/google/renameio"
	"github.com/klauspost/pgzip"
)

// RebuildRepositoryOptions controls a repository-rebuild operation.
type RebuildRepositoryOptions struct {
	// Packages, when non-empty, drives CRC-keyed invalidation: any package
	// whose current port-directory CRC no longer matches the CRC recorded
	// at its last successful build is treated as stale.
	Packages []*pkg.Package
}

// RebuildRepositoryResult reports what a rebuild-repository run did.
type RebuildRepositoryResult struct {
	StaleNewRemoved   int      // stale *.new files deleted before running pkg-repo
	Recompressed      []string // repo-meta files rewritten to cfg.PackageSuffix
	InvalidatedCRCs   []string // port directories whose CRC entry was invalidated
	DeletedArtifacts  []string // package files actually removed (only if OverridePkgDeleteOpt)
	SkippedDeletions  []string // package files that would be removed if the override flag were set
	PkgRepoOutput     string   // combined output of the `pkg repo` invocation
}

// RebuildRepository deletes stale `*.new` artifacts, regenerates the repo
// catalog with `pkg repo`, recompresses the catalog's meta files to the
// configured suffix if `pkg repo` didn't already produce it, and invalidates
// any packages whose port directory CRC has drifted since their last build.
//
// Grounded on original_source/usr.bin/dsynth/repo.c's DoRebuildRepo/repackage:
// the stale-.new purge and recompression pipe are carried forward; the
// decompress step still shells out to unxz/unzstd (no pure-Go xz/zstd
// decoder is in the retrieval pack) while recompression uses
// github.com/klauspost/pgzip, written atomically via github.com/google/renameio.
func (s *Service) RebuildRepository(opts RebuildRepositoryOptions) (*RebuildRepositoryResult, error) {
	result := &RebuildRepositoryResult{}

	removed, err := purgeStaleNewFiles(s.cfg.RepositoryPath)
	if err != nil {
		return nil, fmt.Errorf("purge stale .new files: %w", err)
	}
	result.StaleNewRemoved = removed

	allPath := filepath.Join(s.cfg.RepositoryPath, "All")
	if _, err := os.Stat(allPath); err == nil {
		removed, err := purgeStaleNewFiles(allPath)
		if err != nil {
			return nil, fmt.Errorf("purge stale .new files in All/: %w", err)
		}
		result.StaleNewRemoved += removed
	}

	s.logger.Info("Rebuilding package repository at %s...", s.cfg.RepositoryPath)
	cmd := exec.Command("pkg", "repo", s.cfg.RepositoryPath)
	output, err := cmd.CombinedOutput()
	result.PkgRepoOutput = string(output)
	if err != nil {
		return result, fmt.Errorf("pkg repo failed: %w (output: %s)", err, output)
	}
	s.logger.Info("Repository rebuilt successfully")

	if s.cfg.PackageSuffix != ".txz" {
		for _, basefile := range []string{"digests", "packagesite"} {
			if err := recompressMetaFile(s.cfg.RepositoryPath, basefile, ".txz", s.cfg.PackageSuffix); err != nil {
				s.logger.Warn("Failed to recompress %s: %v", basefile, err)
				continue
			}
			result.Recompressed = append(result.Recompressed, basefile)
		}
	}

	for _, p := range opts.Packages {
		portPath := filepath.Join(s.cfg.DPortsPath, p.Category, p.Name)
		currentCRC, err := builddb.ComputePortCRC(portPath)
		if err != nil {
			continue
		}
		needsBuild, err := s.db.NeedsBuild(p.PortDir, currentCRC)
		if err != nil || !needsBuild {
			continue
		}

		result.InvalidatedCRCs = append(result.InvalidatedCRCs, p.PortDir)
		artifactPath := filepath.Join(s.cfg.PackagesPath, "All", p.PkgFile)

		if !s.cfg.OverridePkgDeleteOpt {
			result.SkippedDeletions = append(result.SkippedDeletions, artifactPath)
			continue
		}

		if err := os.Remove(artifactPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove stale artifact %s: %v", artifactPath, err)
			continue
		}
		if err := s.db.DeleteCRC(p.PortDir); err != nil {
			s.logger.Warn("Failed to invalidate CRC for %s: %v", p.PortDir, err)
			continue
		}
		result.DeletedArtifacts = append(result.DeletedArtifacts, artifactPath)
	}

	return result, nil
}

// purgeStaleNewFiles removes "*.new" artifacts left behind by an
// interrupted `pkg repo` run, matching repo.c's scandeletenew.
func purgeStaleNewFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".new") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// recompressMetaFile rewrites <dir>/<basefile><fromSuffix> into
// <dir>/<basefile><toSuffix>, decompressing with the system tool matching
// fromSuffix and recompressing with pgzip, published atomically.
func recompressMetaFile(dir, basefile, fromSuffix, toSuffix string) error {
	srcPath := filepath.Join(dir, basefile+fromSuffix)
	if _, err := os.Stat(srcPath); err != nil {
		return err
	}

	decompressTool, ok := map[string]string{
		".txz":  "unxz",
		".tzst": "unzstd",
		".tbz":  "bunzip2",
	}[fromSuffix]
	if !ok {
		return fmt.Errorf("no decompressor known for suffix %q", fromSuffix)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	var decompressed bytes.Buffer
	decompress := exec.Command(decompressTool)
	decompress.Stdin = src
	decompress.Stdout = &decompressed
	if err := decompress.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", decompressTool, err)
	}

	dstPath := filepath.Join(dir, basefile+toSuffix)
	out, err := renameio.TempFile("", dstPath)
	if err != nil {
		return err
	}
	defer out.Cleanup()

	zw := pgzip.NewWriter(out)
	if _, err := io.Copy(zw, &decompressed); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return out.CloseAtomicallyReplace()
}

// PurgeDistfilesOptions controls a distfile-purge scan.
type PurgeDistfilesOptions struct {
	Packages []*pkg.Package // full package graph to build the referenced-file set from
}

// PurgeDistfilesPlan is the result of scanning the distfiles tree against the
// package graph's referenced-file set, before any deletion happens.
type PurgeDistfilesPlan struct {
	TotalScanned int      // number of files found under DistFilesPath
	Obsolete     []string // paths (relative to DistFilesPath) with no referencing package
}

// PlanDistfilePurge walks the distfiles tree, builds a sorted file list, then
// walks the package graph marking every referenced distfile and its
// MD5-derived lockfile path under .locks/. Files left unmarked are reported
// as obsolete candidates; this method never deletes anything, matching the
// service layer's "don't prompt, return data" convention — the caller
// decides whether and how to confirm before calling ExecuteDistfilePurge.
//
// Grounded on original_source/usr.bin/dsynth/repo.c's PurgeDistfiles/scanit.
func (s *Service) PlanDistfilePurge(opts PurgeDistfilesOptions) (*PurgeDistfilesPlan, error) {
	found := make(map[string]bool)
	err := filepath.Walk(s.cfg.DistFilesPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.cfg.DistFilesPath, path)
		if err != nil {
			return err
		}
		found[rel] = false
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan distfiles tree: %w", err)
	}

	plan := &PurgeDistfilesPlan{TotalScanned: len(found)}

	for _, p := range opts.Packages {
		for _, dstr := range queryDistfiles(p, s.cfg.DPortsPath) {
			markReferenced(found, dstr)
		}
	}

	for rel, referenced := range found {
		if !referenced {
			plan.Obsolete = append(plan.Obsolete, rel)
		}
	}
	sort.Strings(plan.Obsolete)

	return plan, nil
}

// ExecuteDistfilePurge deletes every file in plan.Obsolete under
// DistFilesPath. The caller is responsible for confirming with the operator
// first (PlanDistfilePurge never deletes on its own).
func (s *Service) ExecuteDistfilePurge(plan *PurgeDistfilesPlan) (int, error) {
	deleted := 0
	for _, rel := range plan.Obsolete {
		path := filepath.Join(s.cfg.DistFilesPath, rel)
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return deleted, fmt.Errorf("remove %s: %w", rel, err)
		}
		deleted++
	}
	return deleted, nil
}

// markReferenced marks dstr (and, if present, its MD5 lockfile path) as
// found in the scanned set. dstr may carry a ":subdir" or ":group" suffix
// the way a port's DISTFILES entry can (stripped before lookup).
func markReferenced(found map[string]bool, dstr string) {
	name := dstr
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		name = name[:idx]
	}
	if _, ok := found[name]; ok {
		found[name] = true
	}

	sum := md5.Sum([]byte(name))
	lockPath := filepath.Join(".locks", fmt.Sprintf("%x", sum))
	if _, ok := found[lockPath]; ok {
		found[lockPath] = true
	}
}

// queryDistfiles runs `make -V DISTFILES` for a single port, the same
// lightweight on-demand query style build/fetch.go uses for fetchPackageDistfiles,
// rather than widening the batched QueryMakefile call every package parse
// already pays for.
func queryDistfiles(p *pkg.Package, dportsPath string) []string {
	portPath := filepath.Join(dportsPath, p.Category, p.Name)
	args := []string{"-C", portPath, "-V", "DISTFILES"}
	if p.Flavor != "" {
		args = append(args, "FLAVOR="+p.Flavor)
	}

	cmd := exec.Command("make", args...)
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	return strings.Fields(string(out))
}
