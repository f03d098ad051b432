// Package config provides configuration management for inspectd.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	json "github.com/goccy/go-json"
)

const (
	// DefaultHTTPPort is the default port for the status/export API.
	DefaultHTTPPort = 8640

	// DefaultMaxConns is the default connection pool size for the report store.
	DefaultMaxConns = 4

	dataDirName  = ".inspectd"
	settingsFile = "settings.json"
)

// Config holds runtime configuration for inspectd.
type Config struct {
	HTTPPort     int
	CatalogPath  string
	ReportDBPath string
	EvidenceDir  string
	AdminsPath   string
	MaxConns     int
}

var (
	cached   *Config
	cachedMu sync.Mutex
)

// fileSettings mirrors the keys accepted in settings.json. Every key can also
// be overridden through the environment variable of the same name.
type fileSettings struct {
	HTTPPort     *int    `json:"INSPECTD_HTTP_PORT"`
	CatalogPath  *string `json:"INSPECTD_CATALOG_PATH"`
	ReportDBPath *string `json:"INSPECTD_REPORT_DB"`
	EvidenceDir  *string `json:"INSPECTD_EVIDENCE_DIR"`
	AdminsPath   *string `json:"INSPECTD_ADMINS_PATH"`
	MaxConns     *int    `json:"INSPECTD_MAX_CONNS"`
}

// Default returns the default configuration rooted at the data directory.
func Default() *Config {
	dir := DataDir()
	return &Config{
		HTTPPort:     DefaultHTTPPort,
		CatalogPath:  filepath.Join(dir, "checklists.json"),
		ReportDBPath: filepath.Join(dir, "inspections.db"),
		EvidenceDir:  filepath.Join(dir, "evidence"),
		AdminsPath:   filepath.Join(dir, "admins.json"),
		MaxConns:     DefaultMaxConns,
	}
}

// DataDir returns the inspectd data directory under the user's home.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dataDirName)
}

// SettingsPath returns the path to the settings file.
func SettingsPath() string {
	return filepath.Join(DataDir(), settingsFile)
}

// EnsureDataDir creates the data directory if it does not exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o750)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	defaults := map[string]any{
		"INSPECTD_HTTP_PORT": DefaultHTTPPort,
		"INSPECTD_MAX_CONNS": DefaultMaxConns,
	}
	data, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// EnsureAll creates the data directory, evidence directory and settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	if err := os.MkdirAll(Default().EvidenceDir, 0o750); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load reads the settings file and applies environment overrides.
// A missing or malformed settings file yields the defaults.
func Load() (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(SettingsPath()); err == nil {
		var fs fileSettings
		if err := json.Unmarshal(data, &fs); err == nil {
			applySettings(cfg, &fs)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// Get returns the cached configuration, loading it on first use.
func Get() *Config {
	cachedMu.Lock()
	defer cachedMu.Unlock()
	if cached == nil {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		cached = cfg
	}
	return cached
}

func applySettings(cfg *Config, fs *fileSettings) {
	if fs.HTTPPort != nil && *fs.HTTPPort > 0 {
		cfg.HTTPPort = *fs.HTTPPort
	}
	if fs.CatalogPath != nil && *fs.CatalogPath != "" {
		cfg.CatalogPath = *fs.CatalogPath
	}
	if fs.ReportDBPath != nil && *fs.ReportDBPath != "" {
		cfg.ReportDBPath = *fs.ReportDBPath
	}
	if fs.EvidenceDir != nil && *fs.EvidenceDir != "" {
		cfg.EvidenceDir = *fs.EvidenceDir
	}
	if fs.AdminsPath != nil && *fs.AdminsPath != "" {
		cfg.AdminsPath = *fs.AdminsPath
	}
	if fs.MaxConns != nil && *fs.MaxConns > 0 {
		cfg.MaxConns = *fs.MaxConns
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("INSPECTD_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.HTTPPort = port
		}
	}
	if v := os.Getenv("INSPECTD_CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("INSPECTD_REPORT_DB"); v != "" {
		cfg.ReportDBPath = v
	}
	if v := os.Getenv("INSPECTD_EVIDENCE_DIR"); v != "" {
		cfg.EvidenceDir = v
	}
	if v := os.Getenv("INSPECTD_ADMINS_PATH"); v != "" {
		cfg.AdminsPath = v
	}
}
