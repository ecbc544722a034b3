package bplus

import (
	txn "DaemonIndex/storage_engine/transaction_manager"

	"go.uber.org/zap"
)

// The root never moves off page 0. Growing the tree copies the root's rows
// to a new page one level down and turns page 0 into a branch pointing at
// it; the caller then splits the new page like any other.

// growRoot turns the root leaf into a level 1 branch whose only child is a
// new leaf holding all the rows. Commits and releases everything.
func (l *leafNode) growRoot(t *BTree, itx *txn.Transaction) error {
	newLeaf, err := t.allocateLeaf(itx)
	if err != nil {
		return t.abortUnit(itx, err, l)
	}
	if n := l.page.RecordCount() - 1; n > 0 {
		if err := l.page.CopyAndPurge(itx, newLeaf.page, firstSlot, n, firstSlot); err != nil {
			return t.abortUnit(itx, err, l, newLeaf)
		}
	}

	root := controlRow{
		page:         l.page,
		level:        1,
		isRoot:       true,
		leftSibling:  invalidPage,
		rightSibling: invalidPage,
		leftChild:    newLeaf.pageNo(),
	}
	if err := root.rewrite(itx); err != nil {
		return t.abortUnit(itx, err, l, newLeaf)
	}
	// rows left page 0 even when there were none to copy
	l.page.SetRepositionNeeded()

	if err := t.txns.Commit(itx); err != nil {
		return t.abortUnit(itx, err, l, newLeaf)
	}
	t.stats.rootGrows.Add(1)
	t.logger.Info("root grown", zap.Int("level", 1), zap.Int64("leftChild", newLeaf.pageNo()))

	newLeaf.release()
	l.release()
	return nil
}

// growRoot on a branch root moves its rows to a new branch at the same
// level and makes page 0 one level higher with that branch as left child.
func (b *branchNode) growRoot(t *BTree, itx *txn.Transaction) error {
	newBranch, err := t.allocateBranch(itx, b.leftChild, b.level)
	if err != nil {
		return t.abortUnit(itx, err, b)
	}
	if n := b.page.RecordCount() - 1; n > 0 {
		if err := b.page.CopyAndPurge(itx, newBranch.page, firstSlot, n, firstSlot); err != nil {
			return t.abortUnit(itx, err, b, newBranch)
		}
	}
	if err := b.setLeftChild(itx, newBranch.pageNo()); err != nil {
		return t.abortUnit(itx, err, b, newBranch)
	}
	if err := b.setLevel(itx, b.level+1); err != nil {
		return t.abortUnit(itx, err, b, newBranch)
	}

	if err := t.txns.Commit(itx); err != nil {
		return t.abortUnit(itx, err, b, newBranch)
	}
	t.stats.rootGrows.Add(1)
	t.logger.Info("root grown", zap.Int("level", b.level), zap.Int64("leftChild", newBranch.pageNo()))

	newBranch.release()
	b.release()
	return nil
}
