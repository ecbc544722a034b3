package bplus

import (
	"DaemonIndex/logging"
	"DaemonIndex/storage_engine/access/container"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Create turns an empty container into an empty index: page 0 becomes a
// root leaf with no rows.
func Create(conglom *Conglomerate, c *container.Container, txns *txn.TxnManager, opts Options) (*BTree, error) {
	t := newTree(conglom, c, txns, opts)

	if err := t.initRootLeaf(nil); err != nil {
		return nil, errors.Wrapf(err, "create index %s", conglom.Name)
	}
	if err := c.Flush(); err != nil {
		return nil, errors.Wrapf(err, "create index %s", conglom.Name)
	}
	if _, err := c.LogOperation(nil, &types.Operation{Type: types.OpPageInit, PageNo: rootPageID}); err != nil {
		return nil, err
	}

	t.register()
	t.logger.Info("index created", zap.Uint32("fileID", conglom.FileID), zap.Int("keyFields", conglom.NKeyFields))
	return t, nil
}

// Open attaches to an index container written by Create.
func Open(conglom *Conglomerate, c *container.Container, txns *txn.TxnManager, opts Options) (*BTree, error) {
	t := newTree(conglom, c, txns, opts)

	root, err := t.getNode(rootPageID)
	if err != nil {
		return nil, errors.Wrapf(err, "open index %s", conglom.Name)
	}
	isRoot := root.cr().isRoot
	root.release()
	if !isRoot {
		return nil, errors.Mark(errors.Newf("open index %s: page 0 is not a root", conglom.Name), container.ErrCorruptPage)
	}

	t.register()
	t.logger.Debug("index opened", zap.Uint32("fileID", conglom.FileID))
	return t, nil
}

func newTree(conglom *Conglomerate, c *container.Container, txns *txn.TxnManager, opts Options) *BTree {
	return &BTree{
		conglom:   conglom,
		container: c,
		txns:      txns,
		locks:     txns.Locks(),
		opts:      opts,
		logger:    logging.OrNop(opts.Logger).Named("btree").With(zap.String("index", conglom.Name)),
	}
}

// register installs the tree as the logical undo handler of its container.
func (t *BTree) register() {
	t.txns.RegisterUndoHandler(t.conglom.FileID, t)
}

// Close detaches the tree. Open controllers and scans must be closed first.
func (t *BTree) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.txns.UnregisterUndoHandler(t.conglom.FileID)
	return t.container.Flush()
}

func (t *BTree) Conglomerate() *Conglomerate {
	return t.conglom
}

func (t *BTree) Container() *container.Container {
	return t.container
}

func (t *BTree) Stats() Stats {
	return Stats{
		Inserts:       t.stats.inserts.Load(),
		Duplicates:    t.stats.duplicates.Load(),
		Undeletes:     t.stats.undeletes.Load(),
		Deletes:       t.stats.deletes.Load(),
		Splits:        t.stats.splits.Load(),
		RootGrows:     t.stats.rootGrows.Load(),
		Reclaims:      t.stats.reclaims.Load(),
		RowsPurged:    t.stats.rowsPurged.Load(),
		Restarts:      t.stats.restarts.Load(),
		RowsLoaded:    t.stats.rowsLoaded.Load(),
		MaxScanYields: t.stats.maxScanYields.Load(),
	}
}
