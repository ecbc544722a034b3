package bplus

import (
	txn "DaemonIndex/storage_engine/transaction_manager"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// allocateLeaf adds an empty, latched leaf page. Siblings are linked by the
// caller.
func (t *BTree) allocateLeaf(itx *txn.Transaction) (*leafNode, error) {
	cr, err := t.allocatePage(itx, controlRow{
		level:        0,
		leftSibling:  invalidPage,
		rightSibling: invalidPage,
		leftChild:    invalidPage,
	})
	if err != nil {
		return nil, err
	}
	return &leafNode{controlRow: cr}, nil
}

// allocateBranch adds an empty, latched branch page whose left child is
// leftChild.
func (t *BTree) allocateBranch(itx *txn.Transaction, leftChild int64, level int) (*branchNode, error) {
	cr, err := t.allocatePage(itx, controlRow{
		level:        level,
		leftSibling:  invalidPage,
		rightSibling: invalidPage,
		leftChild:    leftChild,
	})
	if err != nil {
		return nil, err
	}
	return &branchNode{controlRow: cr}, nil
}

func (t *BTree) allocatePage(itx *txn.Transaction, cr controlRow) (controlRow, error) {
	h, err := t.container.AddPage(itx)
	if err != nil {
		return controlRow{}, err
	}
	cr.page = h
	if err := h.InsertAtSlot(itx, controlSlot, cr.encode(), false); err != nil {
		h.Release()
		return controlRow{}, err
	}
	t.logger.Debug("page allocated",
		zap.Int64("pageNo", h.PageNumber()), zap.Int("level", cr.level))
	return cr, nil
}

// initRootLeaf makes page 0 an empty root leaf. The page is allocated when
// the container is empty and rewritten otherwise.
func (t *BTree) initRootLeaf(itx *txn.Transaction) error {
	root := controlRow{
		level:        0,
		isRoot:       true,
		leftSibling:  invalidPage,
		rightSibling: invalidPage,
		leftChild:    invalidPage,
	}

	pages, err := t.container.NumPages()
	if err != nil {
		return err
	}
	if pages == 0 {
		cr, err := t.allocatePage(itx, root)
		if err != nil {
			return err
		}
		defer cr.release()
		if cr.pageNo() != rootPageID {
			return errors.AssertionFailedf("root allocated as page %d", cr.pageNo())
		}
		return nil
	}

	h, err := t.container.GetPage(rootPageID)
	if err != nil {
		return err
	}
	defer h.Release()
	if n := h.RecordCount(); n > 0 {
		if err := h.PurgeAtSlot(itx, 0, n); err != nil {
			return err
		}
	}
	return h.InsertAtSlot(itx, controlSlot, root.encode(), false)
}
