package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"DaemonIndex/config"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	logger, err := New(config.LogConfig{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("Failed to build logger: %v", err)
	}
	logger.Named("btree").Debug("split")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"logger":"btree"`) || !strings.Contains(string(data), `"msg":"split"`) {
		t.Errorf("unexpected log output: %s", data)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud", Format: "json"}); err == nil {
		t.Errorf("expected error for unknown level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Errorf("expected a usable logger")
	}
}
