package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultStateDirName      = ".netfshare"
	DefaultArchiveTTLSeconds = 120
	DefaultMaxFilesPerUpload = 100
	DefaultDescFileName      = "description.md"
	DefaultListen            = ":5000"
)

var DefaultExcludedNames = []string{".git", DefaultStateDirName, "__pycache__"}

// ApplyDefaults replaces zero values with defaults. Explicit values are preserved.
// Relative directories are made absolute.
func ApplyDefaults(cfg *Config) error {
	if cfg.ShareRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("cannot get working directory: %w", err)
		}
		cfg.ShareRoot = wd
	}

	root, err := filepath.Abs(cfg.ShareRoot)
	if err != nil {
		return fmt.Errorf("cannot resolve share root: %w", err)
	}
	cfg.ShareRoot = root

	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(cfg.ShareRoot, DefaultStateDirName)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.StateDir, "archives")
	}

	if cfg.StateDir, err = filepath.Abs(cfg.StateDir); err != nil {
		return fmt.Errorf("cannot resolve state dir: %w", err)
	}
	if cfg.CacheDir, err = filepath.Abs(cfg.CacheDir); err != nil {
		return fmt.Errorf("cannot resolve cache dir: %w", err)
	}

	if len(cfg.ExcludedNames) == 0 {
		cfg.ExcludedNames = append([]string(nil), DefaultExcludedNames...)
	}
	if cfg.ArchiveTTLSeconds == 0 {
		cfg.ArchiveTTLSeconds = DefaultArchiveTTLSeconds
	}
	if cfg.MaxFilesPerUpload == 0 {
		cfg.MaxFilesPerUpload = DefaultMaxFilesPerUpload
	}
	if cfg.DescFileName == "" {
		cfg.DescFileName = DefaultDescFileName
	}

	applyServerDefaults(&cfg.Server)
	applyLoggingDefaults(&cfg.Logging)
	applyStoreDefaults(cfg)
	applyProbeDefaults(&cfg.Probe)

	return nil
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.MaxUploadMemory == 0 {
		cfg.MaxUploadMemory = 32 << 20
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = LogLevelInfo
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyStoreDefaults(cfg *Config) {
	if cfg.Store.Type == "" {
		cfg.Store.Type = StoreTypeBadger
	}
	if cfg.Store.Badger == nil {
		cfg.Store.Badger = make(map[string]any)
	}
	if cfg.Store.Redis == nil {
		cfg.Store.Redis = make(map[string]any)
	}

	if _, ok := cfg.Store.Badger["path"]; !ok {
		cfg.Store.Badger["path"] = filepath.Join(cfg.StateDir, "registry")
	}
	if _, ok := cfg.Store.Redis["url"]; !ok {
		cfg.Store.Redis["url"] = "redis://localhost:6379/0"
	}
}

func applyProbeDefaults(cfg *ProbeConfig) {
	if cfg.Method == "" {
		cfg.Method = ProbeMethodTCP
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Workers == 0 {
		cfg.Workers = 8
	}
	if len(cfg.TCPPorts) == 0 {
		cfg.TCPPorts = []int{445, 139, 22, 80}
	}
}

// SetDefaults fills a zero Config with defaults rooted at the working directory.
func (c *Config) SetDefaults() {
	if err := ApplyDefaults(c); err != nil {
		panic(err)
	}
}
