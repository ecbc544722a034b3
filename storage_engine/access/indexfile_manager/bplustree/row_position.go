package bplus

import (
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
)

// rowPosition is where a scan is. While current is latched the position is
// the slot on it; once the latch is given up it is savedKey, the full leaf
// row the scan was on, together with the page version at that moment.
// Exactly one of the two is valid at any time.
type rowPosition struct {
	current *leafNode
	slot    int

	savedKey         types.Row
	pageNo           int64
	versionWhenSaved uint64
	// replaced is set when savedKey is a row that took the place of the
	// one the scan returned; the scan has not returned it yet.
	replaced bool
}

func (pos *rowPosition) latched() bool {
	return pos.current != nil
}

func (pos *rowPosition) hasSavedKey() bool {
	return pos.savedKey != nil
}

// saveMeAndReleasePage remembers the row at pos.slot by key and releases
// the leaf. A position before the first row (slot 0) has no key and is
// only released.
func (pos *rowPosition) saveMeAndReleasePage() error {
	if pos.current == nil {
		return nil
	}
	leaf := pos.current
	pos.current = nil
	defer leaf.release()

	pos.pageNo = leaf.pageNo()
	pos.versionWhenSaved = leaf.page.Version()
	pos.replaced = false
	if pos.slot <= controlSlot || pos.slot >= leaf.page.RecordCount() {
		pos.savedKey = nil
		return nil
	}
	row, err := leaf.page.FetchRowFromSlot(pos.slot)
	if err != nil {
		return errors.Wrapf(err, "saving scan position on page %d", pos.pageNo)
	}
	pos.savedKey = row
	return nil
}

// release drops the latch and forgets the position.
func (pos *rowPosition) release() {
	if pos.current != nil {
		pos.current.release()
		pos.current = nil
	}
	pos.savedKey = nil
	pos.replaced = false
	pos.slot = controlSlot
}

// reposition latches the leaf holding the saved row again. When the
// saved page has not lost rows since the save, it is reused and the row is
// found by a search of that page only. Otherwise the tree is searched from
// the root.
//
// A pageNo of invalidPage skips straight to the search.
//
// The saved row may have been purged meanwhile. With missingOK the
// position is left at the row before where it was (exact reports false);
// without it nothing stays latched and found is false.
func (t *BTree) reposition(pos *rowPosition, missingOK bool) (found, exact bool, err error) {
	if pos.current != nil {
		return true, true, nil
	}
	if pos.savedKey == nil {
		return false, false, errors.AssertionFailedf("reposition without a saved position")
	}
	sp := &searchParams{searchKey: pos.savedKey, partialKeyMatchOp: positionLeftOfPartialKeyMatch}

	var leaf *leafNode
	if pos.pageNo != invalidPage {
		var err error
		leaf, err = t.getLeaf(pos.pageNo)
		switch {
		case err == nil && leaf.page.IsRepositionNeeded(pos.versionWhenSaved):
			leaf.release()
			leaf = nil
		case errors.Is(err, errPageKindMismatch):
			leaf = nil
		case err != nil:
			return false, false, err
		}
	}

	if leaf != nil {
		if err := t.searchForEntry(&leaf.controlRow, sp); err != nil {
			leaf.release()
			return false, false, err
		}
	} else {
		var err error
		leaf, err = t.search(sp)
		if err != nil {
			return false, false, err
		}
	}

	if !sp.resultExact && !missingOK {
		leaf.release()
		return false, false, nil
	}
	pos.current = leaf
	pos.slot = sp.resultSlot
	pos.savedKey = nil
	pos.replaced = false
	return true, sp.resultExact, nil
}
