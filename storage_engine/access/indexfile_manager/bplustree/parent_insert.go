package bplus

import (
	"DaemonIndex/storage_engine/access/container"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
)

// insertBranchRow adds branchRow to parent at its sorted position.
func (t *BTree) insertBranchRow(itx *txn.Transaction, parent *branchNode, branchRow types.Row) error {
	sp := &searchParams{searchKey: branchRow, partialKeyMatchOp: positionLeftOfPartialKeyMatch}
	if err := t.searchForEntry(&parent.controlRow, sp); err != nil {
		return err
	}
	err := parent.page.InsertAtSlot(itx, sp.resultSlot+1, branchRow, false)
	if errors.Is(err, container.ErrNoSpace) {
		return errors.Wrapf(ErrNoSpaceForKey, "branch page %d", parent.pageNo())
	}
	return err
}

// linkRight puts the new page n directly right of target on its level.
// The old right sibling is changed too and stays latched until itx ends.
func (t *BTree) linkRight(itx *txn.Transaction, n, target *controlRow) error {
	right, err := t.rightSibling(target)
	if err != nil {
		return err
	}
	if right != nil {
		itx.HoldUntilEnd(right.cr().page)
	}

	if err := n.setRightSibling(itx, target.rightSibling); err != nil {
		return err
	}
	if err := n.setLeftSibling(itx, target.pageNo()); err != nil {
		return err
	}
	if right != nil {
		if err := right.cr().setLeftSibling(itx, n.pageNo()); err != nil {
			return err
		}
	}
	return target.setRightSibling(itx, n.pageNo())
}

// restartSplitFor gives up a split whose parent has no room for the row it
// would push up, and splits again from the root for that row instead.
func (t *BTree) restartSplitFor(itx *txn.Transaction, parent *branchNode, child node, splitRow types.Row, flag splitFlag) (int64, error) {
	parent.release()
	child.release()

	root, err := t.getNode(rootPageID)
	if err != nil {
		return invalidPage, t.abortUnit(itx, err)
	}
	return root.splitFor(t, itx, nil, splitRow, flag)
}
