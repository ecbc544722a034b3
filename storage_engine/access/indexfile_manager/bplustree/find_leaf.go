package bplus

import (
	"github.com/cockroachdb/errors"
)

// search walks from the root to the leaf that holds, or would hold,
// sp.searchKey. The descent is latch-coupled: the child is latched before
// its parent is released. The leaf comes back latched and sp describes
// the position on it.
func (t *BTree) search(sp *searchParams) (*leafNode, error) {
	n, err := t.getNode(rootPageID)
	if err != nil {
		return nil, err
	}
	for {
		cr := n.cr()
		if err := t.searchForEntry(cr, sp); err != nil {
			n.release()
			return nil, err
		}
		if leaf, ok := n.(*leafNode); ok {
			return leaf, nil
		}
		childNo, err := n.(*branchNode).childAtSlot(sp.resultSlot)
		if err != nil {
			n.release()
			return nil, err
		}
		child, err := t.getNode(childNo)
		n.release()
		if err != nil {
			return nil, err
		}
		n = child
	}
}

// searchLeft returns the leftmost leaf, latched.
func (t *BTree) searchLeft() (*leafNode, error) {
	return t.descend(func(b *branchNode) (int64, error) {
		return b.leftChild, nil
	})
}

// searchRight returns the rightmost leaf, latched.
func (t *BTree) searchRight() (*leafNode, error) {
	return t.descend(func(b *branchNode) (int64, error) {
		return b.childAtSlot(b.page.RecordCount() - 1)
	})
}

func (t *BTree) descend(pick func(*branchNode) (int64, error)) (*leafNode, error) {
	n, err := t.getNode(rootPageID)
	if err != nil {
		return nil, err
	}
	for {
		b, ok := n.(*branchNode)
		if !ok {
			return n.(*leafNode), nil
		}
		childNo, err := pick(b)
		if err != nil {
			b.release()
			return nil, err
		}
		child, err := t.getNode(childNo)
		b.release()
		if err != nil {
			return nil, err
		}
		n = child
	}
}

// childAtSlot maps a search result on a branch to a child page: slot 0 is
// the left child, slot i the page named by branch row i.
func (b *branchNode) childAtSlot(slot int) (int64, error) {
	if slot == controlSlot {
		return b.leftChild, nil
	}
	row, err := b.page.FetchRowFromSlot(slot)
	if err != nil {
		return invalidPage, err
	}
	return childPage(row), nil
}

// rightSibling latches the right sibling, waiting if needed. Returns nil
// for the rightmost page of a level.
func (t *BTree) rightSibling(c *controlRow) (node, error) {
	if c.rightSibling == invalidPage {
		return nil, nil
	}
	n, err := t.getNode(c.rightSibling)
	if err != nil {
		return nil, errors.Wrapf(err, "right sibling of page %d", c.pageNo())
	}
	return n, nil
}

// leftSiblingNoWait latches the left sibling without waiting. Moving left
// against the latch order may only ever try; container.ErrWouldWait tells
// the caller to give up its own latch first.
func (t *BTree) leftSiblingNoWait(c *controlRow) (node, error) {
	if c.leftSibling == invalidPage {
		return nil, nil
	}
	return t.getNodeNoWait(c.leftSibling)
}
