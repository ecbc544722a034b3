// Package config holds the engine configuration and its YAML loader.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the complete engine configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	BufferPool BufferPoolConfig `yaml:"bufferPool"`
	Locking    LockingConfig    `yaml:"locking"`
	BTree      BTreeConfig      `yaml:"btree"`
	Logging    LogConfig        `yaml:"logging"`
}

// StorageConfig holds container file and log settings.
type StorageConfig struct {
	DataDir        string `yaml:"dataDir"`
	// WALDir holds one log directory per database. Empty keeps each log
	// under <dataDir>/<database>/logs.
	WALDir         string `yaml:"walDir"`
	PageCacheMB    int64  `yaml:"pageCacheMB"`
	SyncOnCommit   bool   `yaml:"syncOnCommit"`
	LockContainers bool   `yaml:"lockContainers"`
}

type BufferPoolConfig struct {
	Capacity int `yaml:"capacity"`
}

// LockingConfig holds lock manager settings.
type LockingConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	DeadlockCheck     bool          `yaml:"deadlockCheck"`
	PostCommitQueue   int           `yaml:"postCommitQueue"`
	PostCommitWorkers int           `yaml:"postCommitWorkers"`
}

// BTreeConfig holds index behaviour knobs.
type BTreeConfig struct {
	// MaxRowsPerPage caps user rows per page, 0 means unbounded. Only
	// useful to force splits in tests.
	MaxRowsPerPage   int           `yaml:"maxRowsPerPage"`
	MaxScanRetryWait time.Duration `yaml:"maxScanRetryWait"`
	Debug            bool          `yaml:"debug"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:        "databases",
			WALDir:         "",
			PageCacheMB:    16,
			SyncOnCommit:   true,
			LockContainers: true,
		},
		BufferPool: BufferPoolConfig{
			Capacity: 256,
		},
		Locking: LockingConfig{
			Timeout:           5 * time.Second,
			DeadlockCheck:     true,
			PostCommitQueue:   128,
			PostCommitWorkers: 1,
		},
		BTree: BTreeConfig{
			MaxRowsPerPage:   0,
			MaxScanRetryWait: 10 * time.Millisecond,
			Debug:            false,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// LoadConfig reads path, substitutes environment variables, applies
// DAEMONINDEX_* overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	expanded := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return errors.New("storage.dataDir must be set")
	}
	if c.BufferPool.Capacity < 8 {
		return errors.Newf("bufferPool.capacity must be at least 8, got %d", c.BufferPool.Capacity)
	}
	if c.BTree.MaxRowsPerPage < 0 {
		return errors.Newf("btree.maxRowsPerPage must not be negative, got %d", c.BTree.MaxRowsPerPage)
	}
	if c.BTree.MaxRowsPerPage == 1 {
		return errors.New("btree.maxRowsPerPage must be 0 or at least 2")
	}
	if c.Locking.Timeout <= 0 {
		return errors.Newf("locking.timeout must be positive, got %s", c.Locking.Timeout)
	}
	if c.Locking.PostCommitWorkers < 1 {
		return errors.Newf("locking.postCommitWorkers must be at least 1, got %d", c.Locking.PostCommitWorkers)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console", "text":
	default:
		return errors.Newf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR} and ${VAR:-default}.
func substituteEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := envPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok {
			return v
		}
		return parts[3]
	})
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DAEMONINDEX_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("DAEMONINDEX_WAL_DIR"); v != "" {
		cfg.Storage.WALDir = v
	}
	if v := os.Getenv("DAEMONINDEX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DAEMONINDEX_MAX_ROWS_PER_PAGE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid DAEMONINDEX_MAX_ROWS_PER_PAGE %q", v)
		}
		cfg.BTree.MaxRowsPerPage = n
	}
	if v := os.Getenv("DAEMONINDEX_LOCK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "invalid DAEMONINDEX_LOCK_TIMEOUT %q", v)
		}
		cfg.Locking.Timeout = d
	}
	return nil
}
