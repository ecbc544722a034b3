package bplus

import (
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// splitFor on a branch splits this page first if it could not take
// splitRow, then descends toward the leaf splitRow belongs to. Splits are
// done top-down, so a parent always has room for the row its child adds.
func (b *branchNode) splitFor(t *BTree, itx *txn.Transaction, parent *branchNode, splitRow types.Row, flag splitFlag) (int64, error) {
	if b.rowCount() >= t.maxRows() || !b.page.SpaceForInsert(types.EncodedSize(splitRow)) {
		if b.rowCount() == 0 {
			return invalidPage, t.abortUnit(itx,
				errors.Wrapf(ErrNoSpaceForKey, "branch page %d", b.pageNo()), parent, b)
		}

		if b.isRoot {
			if err := b.growRoot(t, itx); err != nil {
				return invalidPage, err
			}
			root, err := t.getNode(rootPageID)
			if err != nil {
				return invalidPage, t.abortUnit(itx, err)
			}
			return root.splitFor(t, itx, nil, splitRow, flag)
		}

		rc := b.page.RecordCount()
		splitpoint := splitPoint(rc, flag)

		splitBranchRow, err := b.page.FetchRowFromSlot(splitpoint)
		if err != nil {
			return invalidPage, t.abortUnit(itx, err, parent, b)
		}
		newBranchRow := splitBranchRow.Clone()
		newBranchRow[len(newBranchRow)-1] = types.IntValue(invalidPage)

		if !parent.page.SpaceForInsert(types.EncodedSize(newBranchRow)) {
			return t.restartSplitFor(itx, parent, b, newBranchRow, flag)
		}

		// the child of the split row becomes the left child of the new page
		newBranch, err := t.allocateBranch(itx, childPage(splitBranchRow), b.level)
		if err != nil {
			return invalidPage, t.abortUnit(itx, err, parent, b)
		}
		if err := t.linkRight(itx, &newBranch.controlRow, &b.controlRow); err != nil {
			return invalidPage, t.abortUnit(itx, err, parent, b, newBranch)
		}

		newBranchRow[len(newBranchRow)-1] = types.IntValue(newBranch.pageNo())
		if err := t.insertBranchRow(itx, parent, newBranchRow); err != nil {
			return invalidPage, t.abortUnit(itx, err, parent, b, newBranch)
		}

		if move := rc - (splitpoint + 1); move > 0 {
			if err := b.page.CopyAndPurge(itx, newBranch.page, splitpoint+1, move, firstSlot); err != nil {
				return invalidPage, t.abortUnit(itx, err, parent, b, newBranch)
			}
		}
		if err := b.page.PurgeAtSlot(itx, splitpoint, 1); err != nil {
			return invalidPage, t.abortUnit(itx, err, parent, b, newBranch)
		}

		if err := t.txns.Commit(itx); err != nil {
			return invalidPage, t.abortUnit(itx, err, parent, b, newBranch)
		}
		t.stats.splits.Add(1)
		t.logger.Debug("branch split",
			zap.Int64("pageNo", b.pageNo()), zap.Int64("newPageNo", newBranch.pageNo()), zap.Int("level", b.level))

		follow := b
		if t.compareIndexRowToKey(splitRow, splitBranchRow, len(splitBranchRow)-1, 0) >= 0 {
			follow = newBranch
			b.release()
		} else {
			newBranch.release()
		}
		return follow.splitFor(t, itx, parent, splitRow, flag)
	}

	parent.release()

	sp := &searchParams{searchKey: splitRow, partialKeyMatchOp: positionLeftOfPartialKeyMatch}
	if err := t.searchForEntry(&b.controlRow, sp); err != nil {
		return invalidPage, t.abortUnit(itx, err, b)
	}
	childNo, err := b.childAtSlot(sp.resultSlot)
	if err != nil {
		return invalidPage, t.abortUnit(itx, err, b)
	}
	child, err := t.getNode(childNo)
	if err != nil {
		return invalidPage, t.abortUnit(itx, err, b)
	}
	return child.splitFor(t, itx, b, splitRow, flag)
}
