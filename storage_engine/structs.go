package storageengine

import (
	"sync"

	"DaemonIndex/config"
	indexfile "DaemonIndex/storage_engine/access/indexfile_manager"
	"DaemonIndex/storage_engine/bufferpool"
	"DaemonIndex/storage_engine/catalog"
	checkpoint "DaemonIndex/storage_engine/checkpoint_manager"
	diskmanager "DaemonIndex/storage_engine/disk_manager"
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/storage_engine/wal_manager"
	"DaemonIndex/types"

	"go.uber.org/zap"
)

type StorageEngine struct {
	BufferPool *bufferpool.BufferPool

	DiskManager       *diskmanager.DiskManager
	CatalogManager    *catalog.CatalogManager
	IndexManager      *indexfile.IndexFileManager
	WalManager        *wal_manager.WALManager
	LockManager       *lockmgr.LockManager
	TxnManager        *txn.TxnManager
	CheckpointManager *checkpoint.CheckpointManager

	cfg    *config.Config
	logger *zap.Logger

	DbRoot string
	currDb string
	mu     sync.Mutex
}

// Predicate compares one named key column against a textual value.
type Predicate struct {
	Column string
	Op     types.Operator
	Value  string
	Negate bool
}

// ScanRequest describes a range scan in terms of the index's columns.
// From and To are key prefixes; Where is in conjunctive normal form: every
// group must hold, and a group holds when any of its predicates does.
type ScanRequest struct {
	From          []string
	FromExclusive bool
	To            []string
	ToExclusive   bool
	Where         [][]Predicate
	Limit         int
}

// KeyRow is a key in textual form together with the row location it
// points at. A nil At derives the location from the key.
type KeyRow struct {
	Values []string
	At     *types.RowPointer
}

// EngineStats gathers the counters of the shared components.
type EngineStats struct {
	Database   string
	BufferPool bufferpool.BufferPoolStats
	Disk       diskmanager.DiskStats
	Locks      lockmgr.Stats
	WALLSN     uint64
	Flushed    uint64
	ActiveTxns int
}
