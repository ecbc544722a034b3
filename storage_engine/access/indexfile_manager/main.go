package indexfile

import (
	"DaemonIndex/logging"
	"DaemonIndex/storage_engine/access/container"
	bplus "DaemonIndex/storage_engine/access/indexfile_manager/bplustree"
	"DaemonIndex/storage_engine/bufferpool"
	diskmanager "DaemonIndex/storage_engine/disk_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

/*
This file is the main file of the Index File Manager.
Every index lives in its own container file. The manager opens the file
under the catalog's file id, wraps it in a container and attaches a B-tree
to it. Open trees are cached by index name until the database is closed.
*/

var ErrIndexNotOpen = errors.New("index is not open")

func NewIndexFileManager(dm *diskmanager.DiskManager, bp *bufferpool.BufferPool, txns *txn.TxnManager, wal container.LogWriter, treeOpts bplus.Options) *IndexFileManager {
	logger := logging.OrNop(treeOpts.Logger)
	return &IndexFileManager{
		indexes:     make(map[string]*bplus.BTree),
		bufferPool:  bp,
		diskManager: dm,
		txns:        txns,
		wal:         wal,
		treeOpts:    treeOpts,
		logger:      logger.Named("indexfile"),
	}
}

// CreateIndex creates the container file at path and an empty tree in it.
func (ifm *IndexFileManager) CreateIndex(schema types.IndexSchema, path string) (*bplus.BTree, error) {
	return ifm.attach(schema, path, true)
}

// OpenIndex opens an existing index and caches it. Opening an index that
// is already open returns the cached tree.
func (ifm *IndexFileManager) OpenIndex(schema types.IndexSchema, path string) (*bplus.BTree, error) {
	ifm.mu.RLock()
	tree, ok := ifm.indexes[schema.IndexName]
	ifm.mu.RUnlock()
	if ok {
		return tree, nil
	}
	return ifm.attach(schema, path, false)
}

func (ifm *IndexFileManager) attach(schema types.IndexSchema, path string, create bool) (*bplus.BTree, error) {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	if tree, ok := ifm.indexes[schema.IndexName]; ok {
		if create {
			return nil, errors.Newf("index %q is already open", schema.IndexName)
		}
		return tree, nil
	}

	conglom, err := bplus.NewConglomerate(schema)
	if err != nil {
		return nil, err
	}
	if _, err := ifm.diskManager.OpenFileWithID(path, schema.IndexFileID); err != nil {
		return nil, errors.Wrapf(err, "index %q", schema.IndexName)
	}

	c := container.Open(schema.IndexFileID, ifm.bufferPool, ifm.diskManager, ifm.wal, ifm.logger)
	var tree *bplus.BTree
	if create {
		tree, err = bplus.Create(conglom, c, ifm.txns, ifm.treeOpts)
	} else {
		tree, err = bplus.Open(conglom, c, ifm.txns, ifm.treeOpts)
	}
	if err != nil {
		_ = ifm.diskManager.CloseFile(schema.IndexFileID)
		return nil, err
	}

	ifm.indexes[schema.IndexName] = tree
	ifm.logger.Debug("index attached",
		zap.String("index", schema.IndexName),
		zap.String("path", path),
		zap.Bool("created", create))
	return tree, nil
}

// GetIndex returns an open tree.
func (ifm *IndexFileManager) GetIndex(name string) (*bplus.BTree, error) {
	ifm.mu.RLock()
	defer ifm.mu.RUnlock()

	tree, ok := ifm.indexes[name]
	if !ok {
		return nil, errors.Wrapf(ErrIndexNotOpen, "%q", name)
	}
	return tree, nil
}

// CloseIndex flushes and closes one index and its file.
func (ifm *IndexFileManager) CloseIndex(name string) error {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()
	return ifm.closeLocked(name)
}

func (ifm *IndexFileManager) closeLocked(name string) error {
	tree, ok := ifm.indexes[name]
	if !ok {
		return nil
	}
	delete(ifm.indexes, name)

	if err := tree.Close(); err != nil {
		return errors.Wrapf(err, "failed to close index %q", name)
	}
	return ifm.diskManager.CloseFile(tree.Container().FileID())
}

// DropIndex closes an index, discards its cached pages and deletes its
// file.
func (ifm *IndexFileManager) DropIndex(name string) error {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	tree, ok := ifm.indexes[name]
	if !ok {
		return errors.Wrapf(ErrIndexNotOpen, "%q", name)
	}
	delete(ifm.indexes, name)
	fileID := tree.Container().FileID()

	if err := tree.Close(); err != nil {
		return errors.Wrapf(err, "failed to close index %q", name)
	}
	if err := ifm.bufferPool.DropFilePages(fileID, 0); err != nil {
		return errors.Wrapf(err, "failed to drop pages of index %q", name)
	}
	if err := ifm.diskManager.RemoveFile(fileID); err != nil {
		return err
	}
	ifm.logger.Info("index dropped", zap.String("index", name))
	return nil
}

// CloseAll closes every open index. It is called when switching
// databases or shutting down.
func (ifm *IndexFileManager) CloseAll() error {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()

	var err error
	for name := range ifm.indexes {
		err = multierr.Append(err, ifm.closeLocked(name))
	}
	return err
}

// OpenIndexes lists the names of the open indexes.
func (ifm *IndexFileManager) OpenIndexes() []string {
	ifm.mu.RLock()
	defer ifm.mu.RUnlock()

	names := make([]string, 0, len(ifm.indexes))
	for name := range ifm.indexes {
		names = append(names, name)
	}
	return names
}
