package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	t.Setenv("IDX_TEST_DIR", "/tmp/idx-data")

	data := []byte(`
storage:
  dataDir: ${IDX_TEST_DIR}
  walDir: ${IDX_TEST_WAL:-/tmp/idx-wal}
bufferPool:
  capacity: 64
locking:
  timeout: 250ms
btree:
  maxRowsPerPage: 2
logging:
  level: debug
  format: json
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/idx-data" {
		t.Errorf("dataDir mismatch: expected /tmp/idx-data, got %s", cfg.Storage.DataDir)
	}
	if cfg.Storage.WALDir != "/tmp/idx-wal" {
		t.Errorf("walDir mismatch: expected default substitution, got %s", cfg.Storage.WALDir)
	}
	if cfg.BufferPool.Capacity != 64 {
		t.Errorf("capacity mismatch: expected 64, got %d", cfg.BufferPool.Capacity)
	}
	if cfg.Locking.Timeout != 250*time.Millisecond {
		t.Errorf("timeout mismatch: expected 250ms, got %s", cfg.Locking.Timeout)
	}
	if cfg.BTree.MaxRowsPerPage != 2 {
		t.Errorf("maxRowsPerPage mismatch: expected 2, got %d", cfg.BTree.MaxRowsPerPage)
	}
	// untouched sections keep defaults
	if cfg.Locking.PostCommitWorkers != 1 {
		t.Errorf("postCommitWorkers mismatch: expected 1, got %d", cfg.Locking.PostCommitWorkers)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DAEMONINDEX_MAX_ROWS_PER_PAGE", "4")
	t.Setenv("DAEMONINDEX_LOCK_TIMEOUT", "2s")

	cfg, err := ParseConfig([]byte("storage:\n  dataDir: x\n"))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	if cfg.BTree.MaxRowsPerPage != 4 {
		t.Errorf("expected env override 4, got %d", cfg.BTree.MaxRowsPerPage)
	}
	if cfg.Locking.Timeout != 2*time.Second {
		t.Errorf("expected env override 2s, got %s", cfg.Locking.Timeout)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BTree.MaxRowsPerPage = 1
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected maxRowsPerPage=1 to be rejected")
	}

	cfg = DefaultConfig()
	cfg.BufferPool.Capacity = 2
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected tiny buffer pool to be rejected")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemonindex.yaml")
	if err := os.WriteFile(path, []byte("bufferPool:\n  capacity: 32\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.BufferPool.Capacity != 32 {
		t.Errorf("capacity mismatch: expected 32, got %d", cfg.BufferPool.Capacity)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}
