package indexfile

import (
	"sync"

	"DaemonIndex/storage_engine/access/container"
	bplus "DaemonIndex/storage_engine/access/indexfile_manager/bplustree"
	"DaemonIndex/storage_engine/bufferpool"
	diskmanager "DaemonIndex/storage_engine/disk_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"

	"go.uber.org/zap"
)

type IndexFileManager struct {
	indexes     map[string]*bplus.BTree // index name → open tree
	bufferPool  *bufferpool.BufferPool
	diskManager *diskmanager.DiskManager
	txns        *txn.TxnManager
	wal         container.LogWriter // nil: page changes are not logged
	treeOpts    bplus.Options
	logger      *zap.Logger
	mu          sync.RWMutex
}
