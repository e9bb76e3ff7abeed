package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	LogLevelDebug = "DEBUG"
	LogLevelInfo  = "INFO"
	LogLevelWarn  = "WARN"
	LogLevelError = "ERROR"

	StoreTypeBadger = "badger"
	StoreTypeRedis  = "redis"

	ProbeMethodICMP = "icmp"
	ProbeMethodTCP  = "tcp"

	envPrefix = "NETFSHARE"
)

// Config is the complete netfshare configuration.
//
// Sources, highest precedence first: NETFSHARE_* environment variables
// (a .env file is loaded into the environment by main), the YAML config file,
// and the defaults from ApplyDefaults.
type Config struct {
	// ShareRoot is the directory whose immediate subdirectories can be shared.
	ShareRoot string `mapstructure:"share_root" yaml:"share_root" validate:"required"`

	// StateDir holds the registry database and the audit dump.
	StateDir string `mapstructure:"state_dir" yaml:"state_dir" validate:"required"`

	// CacheDir holds generated archives. It must never be part of a shared directory.
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir" validate:"required"`

	// ExcludedNames are top-level names never registered as directories.
	ExcludedNames []string `mapstructure:"excluded_names" yaml:"excluded_names"`

	ArchiveTTLSeconds int    `mapstructure:"archive_ttl_seconds" yaml:"archive_ttl_seconds" validate:"gt=0"`
	MaxFilesPerUpload int    `mapstructure:"max_files_per_upload" yaml:"max_files_per_upload" validate:"gt=0"`
	DescFileName      string `mapstructure:"desc_filename" yaml:"desc_filename" validate:"required"`

	// PageTemplate replaces the built-in listing page template.
	PageTemplate string `mapstructure:"page_template" yaml:"page_template" validate:"omitempty,file"`

	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Probe   ProbeConfig   `mapstructure:"probe" yaml:"probe"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen" yaml:"listen" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	// MaxUploadMemory is the part of a multipart upload kept in memory, the rest spills to temp files.
	MaxUploadMemory int64 `mapstructure:"max_upload_memory" yaml:"max_upload_memory" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// StoreConfig selects the registry store. Only the section matching Type is used.
type StoreConfig struct {
	Type   string         `mapstructure:"type" yaml:"type" validate:"required,oneof=badger redis"`
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
	Redis  map[string]any `mapstructure:"redis" yaml:"redis"`
}

type ProbeConfig struct {
	Method   string        `mapstructure:"method" yaml:"method" validate:"required,oneof=icmp tcp"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	Workers  int           `mapstructure:"workers" yaml:"workers" validate:"gt=0"`
	TCPPorts []int         `mapstructure:"tcp_ports" yaml:"tcp_ports" validate:"dive,gt=0,lte=65535"`

	// ICMPPrivileged uses raw sockets instead of datagram ICMP sockets.
	ICMPPrivileged bool `mapstructure:"icmp_privileged" yaml:"icmp_privileged"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

func (c *Config) ArchiveTTL() time.Duration {
	return time.Duration(c.ArchiveTTLSeconds) * time.Second
}

// Load reads the configuration file (optional), applies environment overrides,
// fills defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if err := ApplyDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("cannot apply defaults: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad is Load for process start-up.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}

	return cfg
}

func setupViper(v *viper.Viper, configPath string) {
	// NETFSHARE_SHARE_ROOT, NETFSHARE_LOGGING_LEVEL, ...
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees env values for known keys.
	for _, key := range []string{
		"share_root", "state_dir", "cache_dir", "excluded_names",
		"archive_ttl_seconds", "max_files_per_upload", "desc_filename", "page_template",
		"server.listen", "server.shutdown_timeout", "server.max_upload_memory",
		"logging.level", "logging.format", "logging.output",
		"store.type", "probe.method", "probe.timeout", "probe.workers", "probe.icmp_privileged",
		"metrics.enabled",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}

		return fmt.Errorf("cannot read config file %s: %w", configPath, err)
	}

	return nil
}
