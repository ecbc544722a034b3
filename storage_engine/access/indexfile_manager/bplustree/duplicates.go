package bplus

import (
	"DaemonIndex/storage_engine/access/container"
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
)

/*
Almost-unique indexes keep the row location in the unique columns, so an
exact-match search cannot find a key collision. Before inserting, the rows
either side of the insert slot are compared on the key columns, walking
over page boundaries and past deleted rows.

Latches on return:
  - noMatch, matchFound: original is still latched, every sibling visited
    has been released
  - rescanRequired: nothing is latched
  - error: nothing is latched
*/

// compareLeftAndRightSiblings decides whether row collides with a row next
// to insertSlot on original.
func (t *BTree) compareLeftAndRightSiblings(p *lockPolicy, row types.Row, insertSlot int, original *leafNode) (dupResult, error) {
	return t.compareSiblingsAround(p, row, insertSlot-1, insertSlot, original)
}

// compareSiblingsAround compares row with the rows walking left from
// prevSlot and right from nextSlot.
func (t *BTree) compareSiblingsAround(p *lockPolicy, row types.Row, prevSlot, nextSlot int, original *leafNode) (dupResult, error) {
	for i := 0; i < t.conglom.NKeyFields-1; i++ {
		if row[i].Null {
			return noMatch, nil
		}
	}
	res, err := t.comparePrevious(p, row, prevSlot, original)
	if err != nil || res != noMatch {
		return res, err
	}
	return t.compareNext(p, row, nextSlot, original)
}

// comparePrevious walks left from slot. Left siblings are latched NOWAIT;
// a would-wait gives everything up and asks for a rescan.
func (t *BTree) comparePrevious(p *lockPolicy, row types.Row, slot int, original *leafNode) (dupResult, error) {
	cur := original
	for {
		if slot == controlSlot {
			next, err := t.leftSiblingNoWait(&cur.controlRow)
			if errors.Is(err, container.ErrWouldWait) {
				releaseSibling(cur, original)
				original.release()
				return rescanRequired, nil
			}
			if err != nil {
				releaseSibling(cur, original)
				original.release()
				return noMatch, err
			}
			releaseSibling(cur, original)
			if next == nil {
				return noMatch, nil
			}
			leaf, err := asLeaf(next)
			if err != nil {
				original.release()
				return noMatch, err
			}
			cur = leaf
			slot = cur.page.RecordCount() - 1
			continue
		}

		res, err := t.compareRowsForInsert(p, row, cur, slot, original)
		if err != nil || res == rescanRequired {
			return res, err
		}
		if res == matchFound && cur.page.IsDeletedAtSlot(slot) {
			slot--
			continue
		}
		releaseSibling(cur, original)
		return res, nil
	}
}

// compareNext walks right from slot. Moving right follows the latch
// order, so siblings are waited for.
func (t *BTree) compareNext(p *lockPolicy, row types.Row, slot int, original *leafNode) (dupResult, error) {
	cur := original
	for {
		if slot >= cur.page.RecordCount() {
			next, err := t.rightSibling(&cur.controlRow)
			releaseSibling(cur, original)
			if err != nil {
				original.release()
				return noMatch, err
			}
			if next == nil {
				return noMatch, nil
			}
			leaf, err := asLeaf(next)
			if err != nil {
				original.release()
				return noMatch, err
			}
			cur = leaf
			slot = firstSlot
			continue
		}

		res, err := t.compareRowsForInsert(p, row, cur, slot, original)
		if err != nil || res == rescanRequired {
			return res, err
		}
		if res == matchFound && cur.page.IsDeletedAtSlot(slot) {
			slot++
			continue
		}
		releaseSibling(cur, original)
		return res, nil
	}
}

// compareRowsForInsert compares the key columns of the row at slot with
// row. An equal row is locked for update before it counts as a match; if
// the lock has to be waited for, every latch is released first.
func (t *BTree) compareRowsForInsert(p *lockPolicy, row types.Row, cur *leafNode, slot int, original *leafNode) (dupResult, error) {
	existing, err := cur.page.FetchRowFromSlot(slot)
	if err != nil {
		releaseSibling(cur, original)
		original.release()
		return noMatch, err
	}
	for i := 0; i < t.conglom.NKeyFields-1; i++ {
		if existing[i].Null || existing[i].Compare(row[i]) != 0 {
			return noMatch, nil
		}
	}

	var aux []node
	if cur != original {
		aux = []node{original}
	}
	decision, err := p.lockRowOnPage(cur, aux, slot, nil, lockmgr.ModeExclusive, lockmgr.DurationCommit)
	if err != nil {
		cur.release()
		original.release()
		return noMatch, err
	}
	if decision == decisionRestart {
		return rescanRequired, nil
	}
	return matchFound, nil
}

// releaseSibling releases cur unless it is the page the walk started on.
func releaseSibling(cur, original *leafNode) {
	if cur != original {
		cur.release()
	}
}
