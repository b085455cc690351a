package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configFileName = "fetchq"

// Config holds the orchestrator configuration. A Config loaded at startup
// seeds the live Settings object; the file is never re-read while running.
type Config struct {
	DownloadDir            string        `yaml:"dir,omitempty"`
	DataDir                string        `yaml:"dataDir,omitempty"`
	MaxConcurrentDownloads int           `yaml:"maxConcurrentDownloads,omitempty"`
	RetryAttempts          int           `yaml:"retryAttempts,omitempty"`
	RetryDelay             time.Duration `yaml:"retryDelay,omitempty"`
	AutoResumeOnRestore    bool          `yaml:"autoResumeOnRestore,omitempty"`
	ProbeInterval          time.Duration `yaml:"probeInterval,omitempty"`
	ProbeAddress           string        `yaml:"probeAddress,omitempty"`
	MaxFileSize            int64         `yaml:"maxFileSize,omitempty"`
	BlockedExtensions      []string      `yaml:"blockedExtensions,omitempty"`
}

// fileConfig mirrors Config for decoding. retryAttempts and
// autoResumeOnRestore are pointers: their zero values (retries off,
// auto-resume off) are meaningful settings, so absence has to be
// distinguished from an explicit zero.
type fileConfig struct {
	DownloadDir            string        `yaml:"dir"`
	DataDir                string        `yaml:"dataDir"`
	MaxConcurrentDownloads int           `yaml:"maxConcurrentDownloads"`
	RetryAttempts          *int          `yaml:"retryAttempts"`
	RetryDelay             time.Duration `yaml:"retryDelay"`
	AutoResumeOnRestore    *bool         `yaml:"autoResumeOnRestore"`
	ProbeInterval          time.Duration `yaml:"probeInterval"`
	ProbeAddress           string        `yaml:"probeAddress"`
	MaxFileSize            int64         `yaml:"maxFileSize"`
	BlockedExtensions      []string      `yaml:"blockedExtensions"`
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default
// configuration. A .env file next to the config, if present, plus
// FETCHQ_* environment variables override both.
func GetConfig() (*Config, error) {
	configFilePath := filepath.Join(xdg.ConfigHome, configFileName)
	defaults := DefaultConfig()

	cfg := fileConfig{}

	b, err := os.ReadFile(configFilePath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if len(b) > 0 {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, err
		}
	}

	merged := &Config{
		DownloadDir:            zeroOr(cfg.DownloadDir, defaults.DownloadDir),
		DataDir:                zeroOr(cfg.DataDir, defaults.DataDir),
		MaxConcurrentDownloads: zeroOr(cfg.MaxConcurrentDownloads, defaults.MaxConcurrentDownloads),
		RetryAttempts:          defaults.RetryAttempts,
		RetryDelay:             zeroOr(cfg.RetryDelay, defaults.RetryDelay),
		AutoResumeOnRestore:    defaults.AutoResumeOnRestore,
		ProbeInterval:          zeroOr(cfg.ProbeInterval, defaults.ProbeInterval),
		ProbeAddress:           zeroOr(cfg.ProbeAddress, defaults.ProbeAddress),
		MaxFileSize:            zeroOr(cfg.MaxFileSize, defaults.MaxFileSize),
		BlockedExtensions:      cfg.BlockedExtensions,
	}

	if cfg.RetryAttempts != nil && *cfg.RetryAttempts >= 0 {
		merged.RetryAttempts = *cfg.RetryAttempts
	}
	if cfg.AutoResumeOnRestore != nil {
		merged.AutoResumeOnRestore = *cfg.AutoResumeOnRestore
	}

	merged.applyEnv(filepath.Join(xdg.ConfigHome, configFileName+".env"))

	return merged, nil
}

// applyEnv overlays FETCHQ_* environment variables, loading envPath first if
// it exists. Malformed values are ignored.
func (c *Config) applyEnv(envPath string) {
	_ = godotenv.Load(envPath)

	if v := os.Getenv("FETCHQ_DOWNLOAD_DIR"); v != "" {
		c.DownloadDir = v
	}
	if v := os.Getenv("FETCHQ_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("FETCHQ_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxConcurrentDownloads = n
		}
	}
}

func DefaultConfig() Config {
	return Config{
		DownloadDir:            downloadDir,
		DataDir:                dataDir,
		MaxConcurrentDownloads: maxConcurrentDownloads,
		RetryAttempts:          retryAttempts,
		RetryDelay:             retryDelay,
		AutoResumeOnRestore:    autoResumeOnRestore,
		ProbeInterval:          probeInterval,
		ProbeAddress:           probeAddress,
		MaxFileSize:            maxFileSize,
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
