package bplus

import (
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// splitFor makes room on this leaf for splitRow. parent is latched, or nil
// when this leaf is the root. Every latch taken on entry is released on
// return; the split itself is committed in itx. Returns the page a retry
// should aim for.
func (l *leafNode) splitFor(t *BTree, itx *txn.Transaction, parent *branchNode, splitRow types.Row, flag splitFlag) (int64, error) {
	if l.rowCount() < t.maxRows() && l.page.SpaceForInsert(types.EncodedSize(splitRow)) {
		// somebody else made room since the caller looked
		if err := t.txns.Commit(itx); err != nil {
			return invalidPage, t.abortUnit(itx, err, parent, l)
		}
		pageNo := l.pageNo()
		parent.release()
		l.release()
		return pageNo, nil
	}

	if l.rowCount() == 0 {
		return invalidPage, t.abortUnit(itx,
			errors.Wrapf(ErrNoSpaceForKey, "row of %d bytes", types.EncodedSize(splitRow)), parent, l)
	}

	if l.isRoot {
		if err := l.growRoot(t, itx); err != nil {
			return invalidPage, err
		}
		root, err := t.getNode(rootPageID)
		if err != nil {
			return invalidPage, t.abortUnit(itx, err)
		}
		return root.splitFor(t, itx, nil, splitRow, flag)
	}

	rc := l.page.RecordCount()
	splitpoint := splitPoint(rc, flag)

	moved, err := l.page.FetchRowFromSlot(splitpoint)
	if err != nil {
		return invalidPage, t.abortUnit(itx, err, parent, l)
	}
	branchRow := append(moved, types.IntValue(invalidPage))

	if !parent.page.SpaceForInsert(types.EncodedSize(branchRow)) {
		return t.restartSplitFor(itx, parent, l, branchRow, flag)
	}

	newLeaf, err := t.allocateLeaf(itx)
	if err != nil {
		return invalidPage, t.abortUnit(itx, err, parent, l)
	}
	if err := t.linkRight(itx, &newLeaf.controlRow, &l.controlRow); err != nil {
		return invalidPage, t.abortUnit(itx, err, parent, l, newLeaf)
	}
	if err := l.page.CopyAndPurge(itx, newLeaf.page, splitpoint, rc-splitpoint, firstSlot); err != nil {
		return invalidPage, t.abortUnit(itx, err, parent, l, newLeaf)
	}

	branchRow[len(branchRow)-1] = types.IntValue(newLeaf.pageNo())
	if err := t.insertBranchRow(itx, parent, branchRow); err != nil {
		return invalidPage, t.abortUnit(itx, err, parent, l, newLeaf)
	}

	if err := t.txns.Commit(itx); err != nil {
		return invalidPage, t.abortUnit(itx, err, parent, l, newLeaf)
	}
	t.stats.splits.Add(1)
	t.logger.Debug("leaf split",
		zap.Int64("pageNo", l.pageNo()), zap.Int64("newPageNo", newLeaf.pageNo()),
		zap.Int("splitpoint", splitpoint), zap.Int("rowsMoved", rc-splitpoint))

	newPageNo := newLeaf.pageNo()
	parent.release()
	l.release()
	newLeaf.release()
	return newPageNo, nil
}

// splitPoint picks the first slot that moves to the new right page. An
// insert at either end of the page moves as little as possible, so
// ascending or descending inserts leave full pages behind.
func splitPoint(recordCount int, flag splitFlag) int {
	switch {
	case flag&splitFirstOnPage != 0:
		return firstSlot
	case flag&splitLastOnPage != 0:
		return recordCount - 1
	}
	return (recordCount-1)/2 + 1
}
