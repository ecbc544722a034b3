package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"DaemonIndex/logging"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
The checkpoint file is written after the buffer pool has been flushed: at
that point every change logged before LSN is in the index files. Opening a
database reads the log from the checkpoint on to report transactions that
never finished.
*/

func NewCheckpointManager(dbPath string, logger *zap.Logger) (*CheckpointManager, error) {
	if dbPath == "" {
		return nil, errors.New("checkpoint manager needs a database directory")
	}
	return &CheckpointManager{
		checkpointPath: filepath.Join(dbPath, "checkpoint.json"),
		logger:         logging.OrNop(logger).Named("checkpoint"),
	}, nil
}

// SaveCheckpoint atomically saves a checkpoint: write a temp file, sync
// it, rename it over the old one and sync the directory.
func (cm *CheckpointManager) SaveCheckpoint(cp Checkpoint) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cp.Timestamp = time.Now().Unix()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal checkpoint")
	}

	tempPath := cm.checkpointPath + ".tmp"
	tempFile, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to open temp checkpoint")
	}
	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return errors.Wrap(err, "failed to write temp checkpoint")
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return errors.Wrap(err, "failed to sync temp checkpoint")
	}
	if err := tempFile.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp checkpoint")
	}

	// rename is atomic: readers see the old file or the new one
	if err := os.Rename(tempPath, cm.checkpointPath); err != nil {
		return errors.Wrap(err, "failed to rename checkpoint")
	}
	if dir, err := os.Open(filepath.Dir(cm.checkpointPath)); err == nil {
		dir.Sync()
		dir.Close()
	}

	cm.logger.Info("checkpoint saved", zap.Uint64("lsn", cp.LSN), zap.String("database", cp.Database))
	return nil
}

// LoadCheckpoint loads the last checkpoint. A missing or unreadable file
// yields LSN 0, the start of the log.
func (cm *CheckpointManager) LoadCheckpoint() (*Checkpoint, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	data, err := os.ReadFile(cm.checkpointPath)
	if os.IsNotExist(err) {
		return &Checkpoint{LSN: 0}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read checkpoint")
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		cm.logger.Warn("checkpoint file corrupted, starting from LSN 0", zap.Error(err))
		return &Checkpoint{LSN: 0}, nil
	}
	cm.logger.Debug("checkpoint loaded", zap.Uint64("lsn", cp.LSN), zap.Int64("timestamp", cp.Timestamp))
	return &cp, nil
}

// DeleteCheckpoint removes the checkpoint file.
func (cm *CheckpointManager) DeleteCheckpoint() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := os.Remove(cm.checkpointPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete checkpoint")
	}
	return nil
}
