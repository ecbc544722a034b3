package bplus

import (
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// startXactAndDoSplit makes room on leafPageNo inside an internal
// transaction of tx. With reclaim set it first tries to purge committed
// deleted rows from the leaf; only when nothing could be purged is the
// tree split for branchRow. Returns the page the split produced, or
// invalidPage when rows were purged instead.
func (t *BTree) startXactAndDoSplit(tx *txn.Transaction, reclaim bool, leafPageNo int64, branchRow types.Row, flag splitFlag) (newPage int64, err error) {
	itx, err := t.txns.BeginInternal(tx)
	if err != nil {
		return invalidPage, err
	}
	defer func() {
		err = errors.CombineErrors(err, t.txns.Destroy(itx))
	}()

	purged := false
	if reclaim {
		// best effort: somebody holding the table exclusively means no
		// deleted row can be ours to purge
		granted, lockErr := t.locks.LockTable(itx.Owner(), t.conglom.BaseFileID, lockmgr.ModeIntentExclusive, false)
		if lockErr != nil {
			t.logger.Debug("reclaim skipped", zap.Error(lockErr))
		}
		if granted {
			purged, err = t.reclaimDeletedRows(itx, leafPageNo)
			if err != nil {
				return invalidPage, err
			}
		}
	}

	newPage = invalidPage
	if !purged {
		root, err := t.getNode(rootPageID)
		if err != nil {
			return invalidPage, t.abortUnit(itx, err)
		}
		newPage, err = root.splitFor(t, itx, nil, branchRow, flag)
		if err != nil {
			return invalidPage, err
		}
	}

	if err := t.txns.Commit(itx); err != nil {
		return invalidPage, err
	}
	return newPage, nil
}

// reclaimDeletedRows purges every deleted row of the leaf whose row lock
// itx can take NOWAIT: a deleter that has not committed still holds it.
// When rows were purged the leaf stays latched until itx ends, so the
// purge can still be rolled back.
func (t *BTree) reclaimDeletedRows(itx *txn.Transaction, leafPageNo int64) (bool, error) {
	leaf, err := t.getLeaf(leafPageNo)
	if errors.Is(err, errPageKindMismatch) {
		return false, nil
	}
	if err != nil {
		return false, t.abortUnit(itx, err)
	}

	purged := 0
	rowLocCol := t.conglom.rowLocationColumn()
	if leaf.page.RecordCount()-leaf.page.NonDeletedRecordCount() > 0 {
		for slot := leaf.page.RecordCount() - 1; slot >= firstSlot; slot-- {
			if !leaf.page.IsDeletedAtSlot(slot) {
				continue
			}
			v, err := leaf.page.FetchFieldFromSlot(slot, rowLocCol)
			if err != nil {
				return false, t.abortUnit(itx, err, leaf)
			}
			granted, err := t.locks.LockRow(itx.Owner(), t.conglom.BaseFileID, v.P, lockmgr.ModeExclusive, false, lockmgr.DurationCommit)
			if err != nil {
				return false, t.abortUnit(itx, err, leaf)
			}
			if !granted {
				continue
			}
			if err := leaf.page.PurgeAtSlot(itx, slot, 1); err != nil {
				return false, t.abortUnit(itx, err, leaf)
			}
			purged++
		}
	}

	if purged == 0 {
		leaf.release()
		return false, nil
	}
	leaf.page.SetRepositionNeeded()
	itx.HoldUntilEnd(leaf.page)

	t.stats.reclaims.Add(1)
	t.stats.rowsPurged.Add(int64(purged))
	t.logger.Debug("deleted rows reclaimed", zap.Int64("pageNo", leafPageNo), zap.Int("rows", purged))
	return true, nil
}

// abortUnit rolls back the work itx did since its last commit, while the
// changed pages are still latched, then releases held.
func (t *BTree) abortUnit(itx *txn.Transaction, cause error, held ...node) error {
	abortErr := t.txns.Abort(itx)
	for _, n := range held {
		if n != nil {
			n.release()
		}
	}
	if abortErr != nil {
		return errors.CombineErrors(cause, abortErr)
	}
	return cause
}
