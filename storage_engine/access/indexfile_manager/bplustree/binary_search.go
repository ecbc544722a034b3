package bplus

import "DaemonIndex/types"

// compareIndexRowToKey orders the first nCompareCols columns of row against
// key. When key is shorter and all its columns match, partialKeyOrder is
// returned: positionLeftOfPartialKeyMatch makes the row look greater than
// the key, positionRightOfPartialKeyMatch makes it look smaller.
func (t *BTree) compareIndexRowToKey(row, key types.Row, nCompareCols, partialKeyOrder int) int {
	for i := 0; i < nCompareCols; i++ {
		if i >= len(key) {
			return partialKeyOrder
		}
		r := row[i].Compare(key[i])
		if r != 0 {
			if t.conglom.descending(i) {
				return -r
			}
			return r
		}
	}
	return 0
}

// searchForEntry binary searches the rows of one page for sp.searchKey,
// comparing the unique columns. On an exact match resultSlot is that row.
// Otherwise it is the slot just before where the key belongs, 0 when the
// key sorts before every row of the page.
func (t *BTree) searchForEntry(c *controlRow, sp *searchParams) error {
	leftRange := firstSlot
	rightRange := c.page.RecordCount() - 1

	leftSlot := 0
	rightSlot := rightRange + 1

	mid := (leftRange + rightRange) / 2
	for leftSlot != rightSlot-1 {
		row, err := c.page.FetchRowFromSlot(mid)
		if err != nil {
			return err
		}
		ret := t.compareIndexRowToKey(row, sp.searchKey, t.conglom.NUniqueColumns, sp.partialKeyMatchOp)
		switch {
		case ret == 0:
			sp.resultSlot = mid
			sp.resultExact = true
			return nil
		case ret > 0:
			rightSlot = mid
			rightRange = mid - 1
		default:
			leftSlot = mid
			leftRange = mid + 1
		}
		mid = (leftRange + rightRange) / 2
	}

	sp.resultSlot = leftSlot
	sp.resultExact = false
	return nil
}
