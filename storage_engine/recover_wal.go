package storageengine

import (
	"sort"

	checkpoint "DaemonIndex/storage_engine/checkpoint_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// LogSummary describes the log written since the last checkpoint.
type LogSummary struct {
	FromLSN    uint64
	Records    int
	ByType     map[types.OperationType]int
	Committed  int
	Aborted    int
	Unfinished []uint64 // user transactions with a BEGIN and no end record
}

// ScanLog reads the log from the last checkpoint on. Index pages are
// flushed at every checkpoint and on close, so the log is only read to
// report what happened since; it is never replayed into the indexes.
func (se *StorageEngine) ScanLog() (LogSummary, error) {
	if se.WalManager == nil {
		return LogSummary{}, ErrNoDatabase
	}

	var startLSN uint64
	if se.CheckpointManager != nil {
		cp, err := se.CheckpointManager.LoadCheckpoint()
		if err != nil {
			se.logger.Warn("failed to load checkpoint, reading the log from LSN 0", zap.Error(err))
		} else {
			startLSN = cp.LSN
		}
	}

	summary := LogSummary{FromLSN: startLSN, ByType: make(map[types.OperationType]int)}
	open := make(map[uint64]bool)
	err := se.WalManager.ReplayFromLSN(startLSN, func(lsn uint64, op *types.Operation) error {
		summary.Records++
		summary.ByType[op.Type]++
		if op.Internal {
			return nil
		}
		switch op.Type {
		case types.OpTxnBegin:
			open[op.TxnID] = true
		case types.OpTxnCommit:
			summary.Committed++
			delete(open, op.TxnID)
		case types.OpTxnAbort:
			summary.Aborted++
			delete(open, op.TxnID)
		}
		return nil
	})
	if err != nil {
		return summary, errors.Wrap(err, "failed to read WAL")
	}

	active := make(map[uint64]bool)
	if se.TxnManager != nil {
		for _, tx := range se.TxnManager.ActiveTransactions() {
			active[tx.ID] = true
		}
	}
	for id := range open {
		if !active[id] {
			summary.Unfinished = append(summary.Unfinished, id)
		}
	}
	sort.Slice(summary.Unfinished, func(i, j int) bool { return summary.Unfinished[i] < summary.Unfinished[j] })
	return summary, nil
}

// SaveCheckpoint forces the log, writes every dirty page and records the
// log position the index files are now current with.
func (se *StorageEngine) SaveCheckpoint() error {
	se.mu.Lock()
	defer se.mu.Unlock()
	if err := se.RequireDatabase(); err != nil {
		return err
	}
	return se.saveCheckpointLocked()
}

func (se *StorageEngine) saveCheckpointLocked() error {
	if se.WalManager == nil || se.BufferPool == nil || se.CheckpointManager == nil {
		return nil
	}
	if err := se.WalManager.Sync(); err != nil {
		return errors.Wrap(err, "checkpoint: log force failed")
	}
	// the next record written is the first one the checkpoint does not cover
	lsn := se.WalManager.GetCurrentLSN() + 1
	if err := se.BufferPool.FlushAllPages(); err != nil {
		return errors.Wrap(err, "checkpoint: flush failed")
	}
	if err := se.DiskManager.Sync(); err != nil {
		return errors.Wrap(err, "checkpoint: sync failed")
	}
	return se.CheckpointManager.SaveCheckpoint(checkpoint.Checkpoint{
		LSN:      lsn,
		Database: se.currDb,
		Indexes:  len(se.IndexManager.OpenIndexes()),
	})
}
