package bplus

import (
	"DaemonIndex/storage_engine/access/container"
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
Insert loop:

 1. search for the row, positioning left of any partial match
 2. lock the previous key (instant, insert mode); a wait means search again
 3. exact match: duplicate unless the row is deleted, in which case it is
    undeleted in place (and given the new row location when only the
    location differs)
 4. otherwise, if the page may take another row: check the neighbours in an
    almost-unique index, then insert at the slot after the search result
 5. the page is full: release it, purge committed deleted rows or split in
    an internal transaction, and go back to 1

Reclaiming is tried at most once per insert.
*/

func (t *BTree) doIns(tx *txn.Transaction, p *lockPolicy, row types.Row, baseRowLocked bool) (InsertResult, error) {
	rowLocCol := t.conglom.rowLocationColumn()
	rowLoc := row[rowLocCol].P

	if !baseRowLocked {
		granted, err := p.lockRowLocation(rowLoc, lockmgr.ModeExclusive, !p.noWait)
		if err != nil {
			return InsertOK, err
		}
		if !granted {
			return InsertOK, errors.Wrapf(lockmgr.ErrLockTimeout, "insert lock on %s", rowLoc)
		}
	}

	reclaimAttempted := false
	for {
		sp := &searchParams{searchKey: row, partialKeyMatchOp: positionLeftOfPartialKeyMatch}
		leaf, err := t.search(sp)
		if err != nil {
			return InsertOK, err
		}

		slotAfterPrevious := sp.resultSlot + 1
		if sp.resultExact {
			slotAfterPrevious = sp.resultSlot
		}
		if p.insertPrevKey {
			decision, err := p.lockNonScanPreviousRow(leaf, slotAfterPrevious, lockmgr.ModeInsertPrevKey, lockmgr.DurationInstant)
			if err != nil {
				leaf.release()
				return InsertOK, err
			}
			if decision == decisionRestart {
				continue
			}
		}

		insertSlot := sp.resultSlot + 1
		if sp.resultExact {
			insertSlot = sp.resultSlot
			res, decision, err := t.insertOverExactMatch(tx, p, leaf, sp.resultSlot, row)
			if err != nil {
				leaf.release()
				return InsertOK, err
			}
			switch decision {
			case decisionRestart:
				continue
			case decisionDone:
				leaf.release()
				return res, nil
			}
			// undelete did not fit, split below
		} else if leaf.rowCount() < t.maxRows() {
			if t.conglom.UniqueWithDuplicateNulls {
				res, err := t.compareLeftAndRightSiblings(p, row, insertSlot, leaf)
				if err != nil {
					return InsertOK, err
				}
				switch res {
				case matchFound:
					leaf.release()
					t.stats.duplicates.Add(1)
					return InsertDuplicate, nil
				case rescanRequired:
					continue
				}
			}

			err := leaf.page.InsertAtSlot(tx, insertSlot, row, false)
			if err == nil {
				tx.RecordUndo(txn.UndoRecord{Kind: txn.UndoInsert, FileID: t.conglom.FileID, Row: types.EncodeRow(row)})
				leaf.release()
				t.stats.inserts.Add(1)
				return InsertOK, nil
			}
			if errors.Is(err, container.ErrRecordTooLarge) {
				leaf.release()
				return InsertOK, errors.Wrapf(ErrNoSpaceForKey, "row of %d bytes", types.EncodedSize(row))
			}
			if !errors.Is(err, container.ErrNoSpace) {
				leaf.release()
				return InsertOK, err
			}
			if leaf.page.RecordCount() <= 2 {
				leaf.release()
				return InsertOK, errors.Wrapf(ErrNoSpaceForKey, "row of %d bytes", types.EncodedSize(row))
			}
		}

		var flag splitFlag
		switch {
		case insertSlot == firstSlot:
			flag |= splitFirstOnPage
			if leaf.leftSibling == invalidPage {
				flag |= splitFirstInTable
			}
		case insertSlot == leaf.page.RecordCount():
			flag |= splitLastOnPage
			if leaf.rightSibling == invalidPage {
				flag |= splitLastInTable
			}
		}

		leafPageNo := leaf.pageNo()
		if leaf.page.RecordCount()-leaf.page.NonDeletedRecordCount() <= 0 {
			reclaimAttempted = true
		}
		branchRow := append(row.Clone(), types.IntValue(leafPageNo))
		leaf.release()

		newPage, err := t.startXactAndDoSplit(tx, !reclaimAttempted, leafPageNo, branchRow, flag)
		if err != nil {
			return InsertOK, err
		}
		t.logger.Debug("insert made room",
			zap.Int64("pageNo", leafPageNo), zap.Int64("newPageNo", newPage), zap.Bool("reclaimed", newPage == invalidPage))
		reclaimAttempted = true
	}
}

// insertOverExactMatch handles an insert whose unique columns equal the row
// at slot. decisionDone carries the final result, decisionRestart means the
// leaf was released for a latch or lock wait, decisionContinue means the undelete
// did not fit and the page must be split.
func (t *BTree) insertOverExactMatch(tx *txn.Transaction, p *lockPolicy, leaf *leafNode, slot int, row types.Row) (InsertResult, retryDecision, error) {
	c := t.conglom
	if c.NKeyFields != c.NUniqueColumns {
		decision, err := p.lockRowOnPage(leaf, nil, slot, nil, lockmgr.ModeExclusive, lockmgr.DurationCommit)
		if err != nil || decision == decisionRestart {
			return InsertOK, decisionRestart, err
		}
	}

	if !leaf.page.IsDeletedAtSlot(slot) {
		t.stats.duplicates.Add(1)
		return InsertDuplicate, decisionDone, nil
	}

	// a deleted exact match in an almost-unique index may sit next to a
	// live row with the same key columns and another location
	if c.UniqueWithDuplicateNulls {
		res, err := t.compareSiblingsAround(p, row, slot-1, slot+1, leaf)
		if err != nil {
			return InsertOK, decisionRestart, err
		}
		switch res {
		case matchFound:
			t.stats.duplicates.Add(1)
			return InsertDuplicate, decisionDone, nil
		case rescanRequired:
			return InsertOK, decisionRestart, nil
		}
	}

	switch {
	case c.NKeyFields == c.NUniqueColumns:
		if _, err := leaf.page.DeleteAtSlot(tx, slot, false); err != nil {
			return InsertOK, decisionDone, err
		}
		tx.RecordUndo(txn.UndoRecord{Kind: txn.UndoInsert, FileID: c.FileID, Row: types.EncodeRow(row)})

	case c.NUniqueColumns == c.NKeyFields-1:
		old, err := leaf.page.FetchFieldFromSlot(slot, c.rowLocationColumn())
		if err != nil {
			return InsertOK, decisionDone, err
		}
		if _, err := leaf.page.DeleteAtSlot(tx, slot, false); err != nil {
			return InsertOK, decisionDone, err
		}
		err = leaf.page.UpdateFieldAtSlot(tx, slot, c.rowLocationColumn(), row[c.rowLocationColumn()])
		if errors.Is(err, container.ErrNoSpace) {
			if _, err := leaf.page.DeleteAtSlot(tx, slot, true); err != nil {
				return InsertOK, decisionDone, err
			}
			return InsertOK, decisionContinue, nil
		}
		if err != nil {
			return InsertOK, decisionDone, err
		}
		tx.RecordUndo(txn.UndoRecord{Kind: txn.UndoResurrect, FileID: c.FileID, Row: types.EncodeRow(row), OldRowLoc: old.P})

	default:
		return InsertOK, decisionDone, ErrUnimplementedFeature
	}

	t.stats.undeletes.Add(1)
	return InsertOK, decisionDone, nil
}
