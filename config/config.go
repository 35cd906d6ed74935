package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
	"gopkg.in/ini.v1"
)

// DatabaseConfig holds settings for the embedded bbolt build database.
type DatabaseConfig struct {
	Path       string
	AutoVacuum bool
}

// MigrationConfig controls the one-time migration of legacy CRC/index files
// into the bbolt build database.
type MigrationConfig struct {
	AutoMigrate  bool
	BackupLegacy bool
}

// Config holds all portforge configuration
type Config struct {
	// Paths
	ConfigPath     string
	DPortsPath     string
	RepositoryPath string
	BuildBase      string
	DistFilesPath  string
	OptionsPath    string
	PackagesPath   string
	LogsPath       string
	SystemPath     string
	CCachePath     string

	// Build settings
	MaxWorkers   int
	MaxJobs      int
	SlowStart    int
	NumaMask     string
	UseSSCCBase  bool
	UseUsrSrc    bool
	UseCCache    bool
	UseTmpfs     bool
	UseVKernel   bool
	UsePKGDepend bool

	// Sizes
	TmpfsWorkSize      string
	TmpfsLocalbaseSize string
	TmpfsUsrLocalSize  string

	// Behavior
	Debug      bool
	Force      bool
	YesAll     bool
	DevMode    bool
	CheckPlist bool
	DisableUI  bool

	// OverridePkgDeleteOpt gates actual deletion of PACKAGED artifacts
	// invalidated by a CRC mismatch during repository maintenance. When
	// false, invalidation is logged but the stale package file and its
	// CRC entry are left in place.
	OverridePkgDeleteOpt bool

	// PackageSuffix is the repo-meta compression suffix pkg(8) should
	// produce (".txz", ".tgz", ".tbz", ".tzst"). Rebuild-repository
	// recompresses digests/packagesite/meta to match when pkg's own
	// output doesn't already use it.
	PackageSuffix string

	// MetricsAddr, when non-empty, starts a Prometheus /metrics endpoint
	// on this address for the duration of a build (e.g. ":9090").
	MetricsAddr string

	// LogFormat selects the LibraryLogger implementation library packages
	// (pkg) log through: "" / "text" for the default file-based Logger,
	// "json" for structured JSON lines via ZerologLogger.
	LogFormat string

	// Profile
	Profile string

	Database  DatabaseConfig
	Migration MigrationConfig
}

// globalConfig is the process-wide configuration set by the CLI entrypoint
// after LoadConfig resolves it, so leaf packages (cmd, service) can reach it
// without threading *Config through every call.
var globalConfig *Config

// GetConfig returns the process-wide configuration previously installed
// with SetConfig. Callers in cmd/ and service/ rely on this being set by
// main() before any subcommand runs.
func GetConfig() *Config {
	return globalConfig
}

// SetConfig installs cfg as the process-wide configuration.
func SetConfig(cfg *Config) {
	globalConfig = cfg
}

// globalSectionNames are tried in order when looking for the profile-less
// fallback section of an INI config file.
var globalSectionNames = []string{"Global Configuration", "global configuration", "Global"}

// LoadConfig loads configuration from dsynth.ini under configDir, applying
// (in order) built-in defaults, the global fallback section, then the
// selected profile section. profile, if non-empty, overrides the file's own
// "profile_selected" key.
func LoadConfig(configDir string, profile string) (*Config, error) {
	defaultWorkers := runtime.NumCPU()
	if defaultWorkers > 16 {
		defaultWorkers = 16
	}
	if defaultWorkers < 1 {
		defaultWorkers = 1
	}

	cfg := &Config{
		MaxWorkers:         defaultWorkers,
		MaxJobs:            1,
		SlowStart:          0,
		Profile:            profile,
		BuildBase:          "/build/synth",
		SystemPath:         "/",
		UseUsrSrc:          false,
		UseCCache:          false,
		UseTmpfs:           true,
		TmpfsWorkSize:      "64g",
		TmpfsLocalbaseSize: "16g",
		TmpfsUsrLocalSize:  "16g",
	}

	// Determine config directory
	if configDir == "" {
		if _, err := os.Stat("/etc/dsynth"); err == nil {
			configDir = "/etc/dsynth"
		} else if _, err := os.Stat("/usr/local/etc/dsynth"); err == nil {
			configDir = "/usr/local/etc/dsynth"
		} else {
			configDir = "/etc/dsynth"
		}
	}
	cfg.ConfigPath = configDir

	configFile := filepath.Join(configDir, "dsynth.ini")
	if _, err := os.Stat(configFile); err == nil {
		if err := cfg.loadIniFile(configFile, profile); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDerivedDefaults()

	return cfg, nil
}

// loadIniFile parses configFile with gopkg.in/ini.v1 and applies the global
// section (if present) followed by the selected profile section.
func (cfg *Config) loadIniFile(configFile, explicitProfile string) error {
	iniFile, err := ini.Load(configFile)
	if err != nil {
		return err
	}

	var global *ini.Section
	for _, name := range globalSectionNames {
		if sec, err := iniFile.GetSection(name); err == nil {
			global = sec
			break
		}
	}

	selected := explicitProfile
	if selected == "" && global != nil && global.HasKey("profile_selected") {
		selected = global.Key("profile_selected").String()
	}
	cfg.Profile = selected

	if global != nil {
		cfg.applySection(global)
	}

	if selected != "" {
		if sec, err := iniFile.GetSection(selected); err == nil {
			cfg.applySection(sec)
		}
	}

	return nil
}

// keyValue returns the first present key's value among names, and whether
// any of them was set in sec.
func keyValue(sec *ini.Section, names ...string) (string, bool) {
	for _, name := range names {
		if sec.HasKey(name) {
			return sec.Key(name).String(), true
		}
	}
	return "", false
}

// applySection copies recognized keys from an INI section onto cfg,
// overwriting whatever was previously set.
func (cfg *Config) applySection(sec *ini.Section) {
	if v, ok := keyValue(sec, "Directory_buildbase", "buildbase"); ok {
		cfg.BuildBase = v
	}
	if v, ok := keyValue(sec, "Directory_portsdir", "dportsdir", "portsdir"); ok {
		cfg.DPortsPath = v
	}
	if v, ok := keyValue(sec, "Directory_repository", "repository"); ok {
		cfg.RepositoryPath = v
	}
	if v, ok := keyValue(sec, "Directory_distfiles", "distfiles"); ok {
		cfg.DistFilesPath = v
	}
	if v, ok := keyValue(sec, "Directory_options", "options"); ok {
		cfg.OptionsPath = v
	}
	if v, ok := keyValue(sec, "Directory_packages", "packages"); ok {
		cfg.PackagesPath = v
	}
	if v, ok := keyValue(sec, "Directory_logs", "logs"); ok {
		cfg.LogsPath = v
	}
	if v, ok := keyValue(sec, "Directory_ccache", "ccachedir", "ccache"); ok {
		cfg.CCachePath = v
		cfg.UseCCache = true
	}
	if v, ok := keyValue(sec, "Directory_system", "systempath"); ok {
		cfg.SystemPath = v
	}
	if v, ok := keyValue(sec, "Database_path"); ok {
		cfg.Database.Path = v
	}

	if v, ok := keyValue(sec, "Number_of_builders", "builders", "workers"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxWorkers = n
		}
	}
	if v, ok := keyValue(sec, "Max_jobs_per_builder", "maxjobs", "jobs"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxJobs = n
		}
	}

	if v, ok := keyValue(sec, "Tmpfs_workdir"); ok {
		cfg.UseTmpfs = parseBool(v)
	}
	if v, ok := keyValue(sec, "Tmpfs_localbase"); ok && parseBool(v) {
		cfg.UseTmpfs = true
	}
	if v, ok := keyValue(sec, "Tmpfs_worksize", "tmpfsworksize"); ok {
		cfg.TmpfsWorkSize = v
	}
	if v, ok := keyValue(sec, "Tmpfs_localbasesize"); ok {
		cfg.TmpfsLocalbaseSize = v
	}
	if v, ok := keyValue(sec, "Tmpfs_usrlocalsize"); ok {
		cfg.TmpfsUsrLocalSize = v
	}

	if v, ok := keyValue(sec, "Display_with_ncurses"); ok {
		cfg.DisableUI = !parseBool(v)
	}
	if v, ok := keyValue(sec, "Use_ccache", "useccache"); ok {
		cfg.UseCCache = parseBool(v)
	}
	if v, ok := keyValue(sec, "Use_usrsrc", "useusrsrc"); ok {
		cfg.UseUsrSrc = parseBool(v)
	}
	if v, ok := keyValue(sec, "Use_vkernel", "usevkernel"); ok {
		cfg.UseVKernel = parseBool(v)
	}
	if v, ok := keyValue(sec, "Use_pkgdepend", "usepkgdepend"); ok {
		cfg.UsePKGDepend = parseBool(v)
	}
	if v, ok := keyValue(sec, "Numa_mask", "numamask"); ok {
		cfg.NumaMask = v
	}
}

// applyDerivedDefaults fills in any path still unset after parsing, deriving
// most of them from BuildBase.
func (cfg *Config) applyDerivedDefaults() {
	if cfg.BuildBase == "" {
		cfg.BuildBase = "/build/synth"
	}
	if cfg.DPortsPath == "" {
		cfg.DPortsPath = "/usr/dports"
		if _, err := os.Stat(cfg.DPortsPath); err != nil {
			if _, err := os.Stat("/usr/ports"); err == nil {
				cfg.DPortsPath = "/usr/ports"
			}
		}
	}
	if cfg.RepositoryPath == "" {
		cfg.RepositoryPath = cfg.BuildBase + "/packages"
	}
	if cfg.DistFilesPath == "" {
		cfg.DistFilesPath = cfg.BuildBase + "/distfiles"
	}
	if cfg.OptionsPath == "" {
		cfg.OptionsPath = cfg.BuildBase + "/options"
	}
	if cfg.PackagesPath == "" {
		cfg.PackagesPath = cfg.RepositoryPath
	}
	if cfg.LogsPath == "" {
		cfg.LogsPath = cfg.BuildBase + "/logs"
	}
	if cfg.CCachePath == "" {
		cfg.CCachePath = cfg.BuildBase + "/ccache"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.BuildBase, "builds.db")
	}
	if cfg.PackageSuffix == "" {
		cfg.PackageSuffix = ".txz"
	}
}

func parseBool(value string) bool {
	value = strings.ToLower(value)
	return value == "yes" || value == "true" || value == "1" || value == "on"
}

// SaveConfig writes cfg to path as an INI file under a single
// "Global Configuration" section, using gopkg.in/ini.v1, creating parent
// directories as needed. On success, cfg.ConfigPath is updated to path.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	iniFile := ini.Empty()
	sec, err := iniFile.NewSection("Global Configuration")
	if err != nil {
		return fmt.Errorf("creating config section: %w", err)
	}

	set := func(key, value string) {
		sec.Key(key).SetValue(value)
	}
	setBool := func(key string, value bool) {
		if value {
			set(key, "yes")
		} else {
			set(key, "no")
		}
	}

	set("Directory_buildbase", cfg.BuildBase)
	set("Directory_portsdir", cfg.DPortsPath)
	set("Directory_repository", cfg.RepositoryPath)
	set("Directory_packages", cfg.PackagesPath)
	set("Directory_distfiles", cfg.DistFilesPath)
	set("Directory_options", cfg.OptionsPath)
	set("Directory_logs", cfg.LogsPath)
	set("Directory_ccache", cfg.CCachePath)
	set("Directory_system", cfg.SystemPath)
	set("Number_of_builders", strconv.Itoa(cfg.MaxWorkers))
	set("Max_jobs_per_builder", strconv.Itoa(cfg.MaxJobs))
	setBool("Tmpfs_workdir", cfg.UseTmpfs)
	setBool("Display_with_ncurses", !cfg.DisableUI)
	set("Database_path", cfg.Database.Path)
	setBool("Database_autovacuum", cfg.Database.AutoVacuum)
	setBool("Migration_automigrate", cfg.Migration.AutoMigrate)
	setBool("Migration_backuplegacy", cfg.Migration.BackupLegacy)

	if err := iniFile.SaveTo(path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	cfg.ConfigPath = path
	return nil
}

// Validate checks configuration validity
func (cfg *Config) Validate() error {
	// Check required paths exist or can be created
	requiredDirs := map[string]string{
		"BuildBase":      cfg.BuildBase,
		"DPortsPath":     cfg.DPortsPath,
		"RepositoryPath": cfg.RepositoryPath,
		"DistFilesPath":  cfg.DistFilesPath,
	}

	for name, path := range requiredDirs {
		if path == "" {
			return fmt.Errorf("%s is not configured", name)
		}

		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(path, 0755); err != nil {
					return fmt.Errorf("%s directory %s cannot be created: %w", name, path, err)
				}
			} else {
				return fmt.Errorf("%s directory %s: %w", name, path, err)
			}
		} else if !info.IsDir() {
			return fmt.Errorf("%s path %s is not a directory", name, path)
		}
	}

	if cfg.MaxWorkers < 1 {
		return fmt.Errorf("MaxWorkers must be at least 1")
	}
	if cfg.MaxWorkers > 1024 {
		return fmt.Errorf("MaxWorkers is too large (max 1024)")
	}

	return nil
}

// GetSystemInfo returns system information
func GetSystemInfo() (osname, osversion, arch string, ncpus int) {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err == nil {
		osname = string(utsname.Sysname[:])
		osversion = string(utsname.Release[:])
		arch = string(utsname.Machine[:])
		osname = strings.TrimRight(osname, "\x00")
		osversion = strings.TrimRight(osversion, "\x00")
		arch = strings.TrimRight(arch, "\x00")
	}

	ncpus = runtime.NumCPU()

	return
}
