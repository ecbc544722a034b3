package bplus

import (
	"DaemonIndex/storage_engine/access/container"
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// RowSource feeds a bulk load with leaf rows in ascending order.
type RowSource interface {
	// Next returns the next row, or false at the end.
	Next() (types.Row, bool, error)
}

// SliceRowSource is a RowSource over rows already in memory.
type SliceRowSource struct {
	rows []types.Row
	i    int
}

func NewSliceRowSource(rows []types.Row) *SliceRowSource {
	return &SliceRowSource{rows: rows}
}

func (s *SliceRowSource) Next() (types.Row, bool, error) {
	if s.i >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.i]
	s.i++
	return row, true, nil
}

/*
Bulk load appends every row to the rightmost leaf. Holding the table
exclusively, it takes no row locks, never reclaims, and does not log the
rows: the pages are flushed at the end and a single load record is
written. A full leaf is split by moving only its last row to a new
rightmost leaf, so the leaves left behind stay nearly full.

If the load fails the container is cut back to page 0 and page 0 is made
an empty root leaf again.
*/

// Load fills an empty tree from src and returns the number of rows loaded.
func (t *BTree) Load(tx *txn.Transaction, src RowSource) (n int64, err error) {
	granted, err := t.locks.LockTable(tx.Owner(), t.conglom.BaseFileID, lockmgr.ModeTableExclusive, true)
	if err != nil {
		return 0, err
	}
	if !granted {
		return 0, errors.Wrapf(lockmgr.ErrLockTimeout, "load of %s", t.conglom.Name)
	}

	leaf, err := t.getLeaf(rootPageID)
	if errors.Is(err, errPageKindMismatch) {
		return 0, errors.Wrapf(ErrLoadNotEmpty, "index %s", t.conglom.Name)
	}
	if err != nil {
		return 0, err
	}
	if leaf.rowCount() > 0 {
		leaf.release()
		return 0, errors.Wrapf(ErrLoadNotEmpty, "index %s has %d rows", t.conglom.Name, leaf.rowCount())
	}

	itx, err := t.txns.BeginInternal(tx)
	if err != nil {
		leaf.release()
		return 0, err
	}
	defer func() {
		err = errors.CombineErrors(err, t.txns.Destroy(itx))
	}()

	defer func() {
		leaf.release()
		if err != nil {
			if undoErr := t.undoLoad(); undoErr != nil {
				err = errors.CombineErrors(err, undoErr)
			}
		}
	}()

	var prev types.Row
	for {
		row, ok, err := src.Next()
		if err != nil {
			return n, errors.Wrapf(err, "load of %s: row source", t.conglom.Name)
		}
		if !ok {
			break
		}
		if err := t.conglom.validateRow(row); err != nil {
			return n, err
		}
		if t.opts.Debug && prev != nil && t.compareIndexRowToKey(row, prev, t.conglom.NKeyFields, 0) <= 0 {
			return n, errors.Wrapf(ErrLoadOutOfOrder, "row %d %s after %s", n, row, prev)
		}

		for {
			if leaf.rowCount() < t.maxRows() {
				insErr := leaf.page.InsertAtSlot(nil, leaf.page.RecordCount(), row, false)
				if insErr == nil {
					break
				}
				if !errors.Is(insErr, container.ErrNoSpace) {
					return n, insErr
				}
				if leaf.rowCount() == 0 {
					return n, errors.Wrapf(ErrNoSpaceForKey, "row of %d bytes", types.EncodedSize(row))
				}
			}
			leaf, err = t.doLoadSplit(itx, leaf, row)
			if err != nil {
				return n, err
			}
		}
		n++
		prev = row
	}

	leaf.release()
	if err := t.container.Flush(); err != nil {
		return n, err
	}
	if _, err := t.container.LogOperation(tx, &types.Operation{Type: types.OpIndexLoad, Count: int(n)}); err != nil {
		return n, err
	}
	t.stats.rowsLoaded.Add(n)
	t.logger.Info("index loaded", zap.Int64("rows", n))
	return n, nil
}

// doLoadSplit makes room for row to the right of the full leaf and
// returns the new rightmost leaf, latched.
func (t *BTree) doLoadSplit(itx *txn.Transaction, leaf *leafNode, row types.Row) (*leafNode, error) {
	branchRow := append(row.Clone(), types.IntValue(leaf.pageNo()))
	leaf.release()

	root, err := t.getNode(rootPageID)
	if err != nil {
		return nil, err
	}
	newPage, err := root.splitFor(t, itx, nil, branchRow, splitLastOnPage|splitLastInTable)
	if err != nil {
		return nil, err
	}
	return t.getLeaf(newPage)
}

// undoLoad puts the tree back to a single empty root leaf.
func (t *BTree) undoLoad() error {
	if err := t.container.Truncate(1); err != nil {
		return err
	}
	if err := t.initRootLeaf(nil); err != nil {
		return err
	}
	t.logger.Info("index load undone")
	return t.container.Flush()
}
