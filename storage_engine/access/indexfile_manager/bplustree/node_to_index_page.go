package bplus

import (
	"DaemonIndex/storage_engine/access/container"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
)

/*
Control row layout (slot 0 of every tree page), one INT column per field:

	col 0  level          0 for leaves
	col 1  isRoot         1 on page 0 only
	col 2  leftSibling    -1 when leftmost on the level
	col 3  rightSibling   -1 when rightmost on the level
	col 4  leftChild      branches: child holding keys below the first branch row
*/
const (
	crColLevel = iota
	crColIsRoot
	crColLeftSibling
	crColRightSibling
	crColLeftChild

	crColumns
)

func (c *controlRow) encode() types.Row {
	root := int64(0)
	if c.isRoot {
		root = 1
	}
	return types.Row{
		types.IntValue(int64(c.level)),
		types.IntValue(root),
		types.IntValue(c.leftSibling),
		types.IntValue(c.rightSibling),
		types.IntValue(c.leftChild),
	}
}

func decodeControlRow(h *container.PageHandle) (controlRow, error) {
	if h.RecordCount() < 1 {
		return controlRow{}, errors.Mark(
			errors.Newf("page %d has no control row", h.PageNumber()), container.ErrCorruptPage)
	}
	row, err := h.FetchRowFromSlot(controlSlot)
	if err != nil {
		return controlRow{}, err
	}
	if len(row) != crColumns {
		return controlRow{}, errors.Mark(
			errors.Newf("page %d control row has %d columns", h.PageNumber(), len(row)), container.ErrCorruptPage)
	}
	return controlRow{
		page:         h,
		level:        int(row[crColLevel].I),
		isRoot:       row[crColIsRoot].I != 0,
		leftSibling:  row[crColLeftSibling].I,
		rightSibling: row[crColRightSibling].I,
		leftChild:    row[crColLeftChild].I,
	}, nil
}

// wrapNode turns a latched page into a leaf or branch. On error the page is
// released.
func wrapNode(h *container.PageHandle) (node, error) {
	cr, err := decodeControlRow(h)
	if err != nil {
		h.Release()
		return nil, err
	}
	if cr.level == 0 {
		return &leafNode{controlRow: cr}, nil
	}
	return &branchNode{controlRow: cr}, nil
}

// getNode latches pageNo, waiting if needed.
func (t *BTree) getNode(pageNo int64) (node, error) {
	h, err := t.container.GetPage(pageNo)
	if err != nil {
		return nil, err
	}
	return wrapNode(h)
}

// getNodeNoWait returns container.ErrWouldWait instead of blocking.
func (t *BTree) getNodeNoWait(pageNo int64) (node, error) {
	h, err := t.container.GetPageNoWait(pageNo)
	if err != nil {
		return nil, err
	}
	return wrapNode(h)
}

// getLeaf latches pageNo and returns errPageKindMismatch, with nothing
// latched, when the page is no longer a leaf.
func (t *BTree) getLeaf(pageNo int64) (*leafNode, error) {
	n, err := t.getNode(pageNo)
	if err != nil {
		return nil, err
	}
	return asLeaf(n)
}

func (t *BTree) getLeafNoWait(pageNo int64) (*leafNode, error) {
	n, err := t.getNodeNoWait(pageNo)
	if err != nil {
		return nil, err
	}
	return asLeaf(n)
}

func asLeaf(n node) (*leafNode, error) {
	leaf, ok := n.(*leafNode)
	if !ok {
		n.release()
		return nil, errPageKindMismatch
	}
	return leaf, nil
}

func (c *controlRow) cr() *controlRow { return c }

func (c *controlRow) release() {
	if c != nil && c.page != nil {
		c.page.Release()
	}
}

func (l *leafNode) release() {
	if l != nil {
		l.page.Release()
	}
}

func (b *branchNode) release() {
	if b != nil {
		b.page.Release()
	}
}

func (c *controlRow) pageNo() int64 { return c.page.PageNumber() }

func (c *controlRow) isLeaf() bool { return c.level == 0 }

// rowCount is the number of user rows, control row excluded.
func (c *controlRow) rowCount() int { return c.page.RecordCount() - 1 }

func (c *controlRow) setField(itx *txn.Transaction, col int, v int64) error {
	return c.page.UpdateFieldAtSlot(itx, controlSlot, col, types.IntValue(v))
}

func (c *controlRow) setLeftSibling(itx *txn.Transaction, p int64) error {
	if err := c.setField(itx, crColLeftSibling, p); err != nil {
		return err
	}
	c.leftSibling = p
	return nil
}

func (c *controlRow) setRightSibling(itx *txn.Transaction, p int64) error {
	if err := c.setField(itx, crColRightSibling, p); err != nil {
		return err
	}
	c.rightSibling = p
	return nil
}

func (c *controlRow) setLevel(itx *txn.Transaction, level int) error {
	if err := c.setField(itx, crColLevel, int64(level)); err != nil {
		return err
	}
	c.level = level
	return nil
}

func (c *controlRow) setLeftChild(itx *txn.Transaction, p int64) error {
	if err := c.setField(itx, crColLeftChild, p); err != nil {
		return err
	}
	c.leftChild = p
	return nil
}

// rewrite replaces the whole control row with c's fields.
func (c *controlRow) rewrite(itx *txn.Transaction) error {
	return c.page.UpdateAtSlot(itx, controlSlot, c.encode())
}

// childPage reads the child page number stored as the last column of a
// branch row.
func childPage(branchRow types.Row) int64 {
	return branchRow[len(branchRow)-1].I
}

// maxRows is the per-page row cap, unbounded when not configured.
func (t *BTree) maxRows() int {
	if t.conglom.MaxRowsPerPage > 0 {
		return t.conglom.MaxRowsPerPage
	}
	return int(^uint(0) >> 1)
}
