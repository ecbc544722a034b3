package storageengine

import (
	"os"
	"path/filepath"
	"sort"

	indexfile "DaemonIndex/storage_engine/access/indexfile_manager"
	bplus "DaemonIndex/storage_engine/access/indexfile_manager/bplustree"
	"DaemonIndex/storage_engine/bufferpool"
	checkpoint "DaemonIndex/storage_engine/checkpoint_manager"
	diskmanager "DaemonIndex/storage_engine/disk_manager"
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/storage_engine/wal_manager"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

/*
This file contains the database commands.
Create Database is a directory initialization.
Use Database is where the disk manager, buffer pool, WAL, lock manager,
transaction manager, catalog, index file manager and checkpoint manager
are all initialized, and every index of the database is opened.
*/

func (se *StorageEngine) CreateDatabase(dbName string) error {
	if dbName == "" {
		return errors.New("database name cannot be empty")
	}
	dbPath := filepath.Join(se.DbRoot, dbName)

	if _, err := os.Stat(dbPath); err == nil {
		return errors.Newf("database %s already exists", dbName)
	}
	for _, dir := range []string{"indexes", "metadata", "logs"} {
		if err := os.MkdirAll(filepath.Join(dbPath, dir), 0755); err != nil {
			return errors.Wrapf(err, "failed to create database %s", dbName)
		}
	}

	se.logger.Info("database created", zap.String("path", dbPath))
	return nil
}

// ShowDatabases lists the directories under the data root that look like
// databases.
func (se *StorageEngine) ShowDatabases() ([]string, error) {
	entries, err := os.ReadDir(se.DbRoot)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read DB root directory")
	}

	var databases []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(se.DbRoot, entry.Name(), "indexes")); err == nil {
			databases = append(databases, entry.Name())
		}
	}
	sort.Strings(databases)
	return databases, nil
}

func (se *StorageEngine) walDir(name string) string {
	if se.cfg.Storage.WALDir != "" {
		return filepath.Join(se.cfg.Storage.WALDir, name)
	}
	return filepath.Join(se.DbRoot, name, "logs")
}

func (se *StorageEngine) UseDatabase(name string) (err error) {
	if name == "" {
		return errors.New("database name cannot be empty")
	}
	dbDir := filepath.Join(se.DbRoot, name)
	if _, err := os.Stat(dbDir); os.IsNotExist(err) {
		return errors.Newf("database '%s' does not exist", name)
	}

	se.mu.Lock()
	defer se.mu.Unlock()

	se.logger.Info("switching database", zap.String("database", name))
	if err := se.closeCurrentDatabase(); err != nil {
		se.logger.Warn("closing previous database failed", zap.Error(err))
	}

	cfg := se.cfg
	diskManager, err := diskmanager.NewDiskManager(diskmanager.Options{
		CacheBytes: cfg.Storage.PageCacheMB << 20,
		LockFiles:  cfg.Storage.LockContainers,
		Logger:     se.logger,
	})
	if err != nil {
		return err
	}
	bufferPool := bufferpool.NewBufferPool(cfg.BufferPool.Capacity, diskManager, se.logger)

	logDir := se.walDir(name)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create log directory")
	}
	walManager, err := wal_manager.OpenWAL(logDir, se.logger)
	if err != nil {
		diskManager.CloseAll()
		return err
	}
	bufferPool.SetWALManager(walManager)

	lockManager := lockmgr.NewLockManager(cfg.Locking.Timeout, cfg.Locking.DeadlockCheck, se.logger)
	txnManager, err := txn.NewTxnManager(lockManager, walManager, txn.Options{
		Workers:      cfg.Locking.PostCommitWorkers,
		QueueSize:    cfg.Locking.PostCommitQueue,
		SyncOnCommit: cfg.Storage.SyncOnCommit,
		Logger:       se.logger,
	})
	if err != nil {
		walManager.Close()
		diskManager.CloseAll()
		return err
	}

	checkpointManager, err := checkpoint.NewCheckpointManager(dbDir, se.logger)
	if err != nil {
		return err
	}

	se.DiskManager = diskManager
	se.BufferPool = bufferPool
	se.WalManager = walManager
	se.LockManager = lockManager
	se.TxnManager = txnManager
	se.CheckpointManager = checkpointManager
	se.IndexManager = indexfile.NewIndexFileManager(diskManager, bufferPool, txnManager, walManager, bplus.Options{
		MaxScanRetryWait: cfg.BTree.MaxScanRetryWait,
		Debug:            cfg.BTree.Debug,
		Logger:           se.logger,
	})
	se.currDb = name

	defer func() {
		if err != nil {
			_ = se.closeCurrentDatabase()
		}
	}()

	if err := se.CatalogManager.SetCurrentDatabase(name); err != nil {
		return errors.Wrap(err, "failed to load catalog")
	}
	for _, schema := range se.CatalogManager.ListIndexes() {
		if _, err := se.IndexManager.OpenIndex(schema, se.CatalogManager.IndexPath(schema.IndexName)); err != nil {
			return errors.Wrapf(err, "failed to open index %s", schema.IndexName)
		}
	}

	summary, err := se.ScanLog()
	if err != nil {
		se.logger.Warn("log scan failed", zap.Error(err))
	} else if len(summary.Unfinished) > 0 {
		se.logger.Warn("log holds transactions that never finished",
			zap.Uint64s("txnIDs", summary.Unfinished),
			zap.Uint64("fromLSN", summary.FromLSN))
	}

	se.logger.Info("database opened",
		zap.String("database", name),
		zap.Int("indexes", len(se.IndexManager.OpenIndexes())),
		zap.Int("bufferPoolCapacity", cfg.BufferPool.Capacity),
		zap.String("walDir", logDir))
	return nil
}

// closeCurrentDatabase checkpoints and tears down everything USE built.
func (se *StorageEngine) closeCurrentDatabase() error {
	if se.currDb == "" {
		return nil
	}
	var errs error

	if se.TxnManager != nil {
		for _, tx := range se.TxnManager.ActiveTransactions() {
			if !tx.Internal {
				errs = multierr.Append(errs, se.TxnManager.Abort(tx))
			}
		}
		// post-commit work may still touch the indexes
		se.TxnManager.WaitForPostCommit()
	}
	if se.IndexManager != nil {
		errs = multierr.Append(errs, se.saveCheckpointLocked())
		errs = multierr.Append(errs, se.IndexManager.CloseAll())
	}
	if se.TxnManager != nil {
		se.TxnManager.Close()
	}
	if se.WalManager != nil {
		errs = multierr.Append(errs, se.WalManager.Close())
	}
	if se.DiskManager != nil {
		errs = multierr.Append(errs, se.DiskManager.CloseAll())
	}

	se.DiskManager = nil
	se.BufferPool = nil
	se.WalManager = nil
	se.LockManager = nil
	se.TxnManager = nil
	se.IndexManager = nil
	se.CheckpointManager = nil
	se.currDb = ""
	return errs
}
