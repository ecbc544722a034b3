package bplus

import (
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
Deleting only sets the deleted mark of a leaf row. The row stays on its
page, still holding its place for previous-key locking, until it is
purged by an insert that needs the space or by the post-commit work a
delete queues when it leaves a leaf with no live rows.
*/

// doDelete marks row deleted. It returns false when the row is not in the
// index or already deleted.
func (t *BTree) doDelete(tx *txn.Transaction, p *lockPolicy, row types.Row) (bool, error) {
	rowLocCol := t.conglom.rowLocationColumn()
	for {
		sp := &searchParams{searchKey: row, partialKeyMatchOp: positionLeftOfPartialKeyMatch}
		leaf, err := t.search(sp)
		if err != nil {
			return false, err
		}
		if !sp.resultExact {
			leaf.release()
			return false, nil
		}

		decision, err := p.lockRowOnPage(leaf, nil, sp.resultSlot, nil, lockmgr.ModeExclusive, lockmgr.DurationCommit)
		if err != nil {
			leaf.release()
			return false, err
		}
		if decision == decisionRestart {
			continue
		}

		// a unique index matches on the key alone
		rowLoc, err := leaf.page.FetchFieldFromSlot(sp.resultSlot, rowLocCol)
		if err != nil {
			leaf.release()
			return false, err
		}
		if rowLoc.P != row[rowLocCol].P {
			leaf.release()
			return false, nil
		}

		deleted, err := t.deleteAtPosition(tx, leaf, sp.resultSlot)
		leaf.release()
		return deleted, err
	}
}

// deleteAtPosition marks the row at slot deleted. The caller holds the
// leaf latched and the row locked exclusively.
func (t *BTree) deleteAtPosition(tx *txn.Transaction, leaf *leafNode, slot int) (bool, error) {
	row, err := leaf.page.FetchRowFromSlot(slot)
	if err != nil {
		return false, err
	}
	changed, err := leaf.page.DeleteAtSlot(tx, slot, true)
	if err != nil || !changed {
		return false, err
	}
	tx.RecordUndo(txn.UndoRecord{Kind: txn.UndoDelete, FileID: t.conglom.FileID, Row: types.EncodeRow(row)})
	t.stats.deletes.Add(1)

	if leaf.page.NonDeletedRecordCount() == 1 {
		t.queueReclaim(tx, leaf.pageNo())
	}
	return true, nil
}

// queueReclaim arranges for the deleted rows of a leaf that has no live
// rows left to be purged once tx commits.
func (t *BTree) queueReclaim(tx *txn.Transaction, pageNo int64) {
	tx.AddPostCommitWork(txn.PostCommitWork{
		Name: "reclaim " + t.conglom.Name,
		Run: func() error {
			return t.reclaimAfterCommit(pageNo)
		},
	})
}

// reclaimAfterCommit runs on a post-commit worker. The internal
// transaction needs a parent to belong to; a short user transaction with
// no work of its own serves.
func (t *BTree) reclaimAfterCommit(pageNo int64) error {
	if t.closed.Load() {
		return nil
	}
	tx, err := t.txns.Begin(txn.ReadCommitted)
	if err != nil {
		return err
	}
	itx, err := t.txns.BeginInternal(tx)
	if err != nil {
		return errors.CombineErrors(err, t.txns.Abort(tx))
	}

	var workErr error
	granted, lockErr := t.locks.LockTable(itx.Owner(), t.conglom.BaseFileID, lockmgr.ModeIntentExclusive, false)
	if lockErr != nil {
		t.logger.Debug("post-commit reclaim skipped", zap.Int64("pageNo", pageNo), zap.Error(lockErr))
	}
	if granted {
		if _, workErr = t.reclaimDeletedRows(itx, pageNo); workErr == nil {
			workErr = t.txns.Commit(itx)
		}
	}
	workErr = errors.CombineErrors(workErr, t.txns.Destroy(itx))
	return errors.CombineErrors(workErr, t.txns.Commit(tx))
}

// Undo reverses one logged change of an aborting user transaction. The
// row is found again by search: splits may have moved it since.
func (t *BTree) Undo(tx *txn.Transaction, rec txn.UndoRecord) error {
	row, err := types.DecodeRow(rec.Row)
	if err != nil {
		return err
	}
	rowLocCol := t.conglom.rowLocationColumn()

	sp := &searchParams{searchKey: row, partialKeyMatchOp: positionLeftOfPartialKeyMatch}
	leaf, err := t.search(sp)
	if err != nil {
		return err
	}
	defer leaf.release()
	if !sp.resultExact {
		return errors.Wrapf(ErrRowNotFound, "%s of %s", rec.Kind, row)
	}
	slot := sp.resultSlot
	rowLoc, err := leaf.page.FetchFieldFromSlot(slot, rowLocCol)
	if err != nil {
		return err
	}
	if rowLoc.P != row[rowLocCol].P {
		return errors.Wrapf(ErrRowNotFound, "%s of %s: slot holds row location %s", rec.Kind, row, rowLoc.P)
	}

	switch rec.Kind {
	case txn.UndoInsert:
		_, err = leaf.page.DeleteAtSlot(tx, slot, true)
	case txn.UndoDelete:
		_, err = leaf.page.DeleteAtSlot(tx, slot, false)
	case txn.UndoResurrect:
		if _, err = leaf.page.DeleteAtSlot(tx, slot, true); err == nil {
			err = leaf.page.UpdateFieldAtSlot(tx, slot, rowLocCol, types.PointerValue(rec.OldRowLoc))
		}
	default:
		err = errors.AssertionFailedf("unknown undo kind %d", rec.Kind)
	}
	if err != nil {
		return err
	}
	t.logger.Debug("undone", zap.Stringer("kind", rec.Kind), zap.Uint64("txnID", tx.ID), zap.Int64("pageNo", leaf.pageNo()))
	return nil
}
