package bplus

import (
	"fmt"

	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

// CheckReport summarizes a consistency check.
type CheckReport struct {
	Height      int
	BranchPages int
	LeafPages   int
	Rows        int64
	DeletedRows int64
	// RowsPerLevel counts the rows (branch rows above level 0) on each level.
	RowsPerLevel map[int]int64
}

func (r CheckReport) String() string {
	return fmt.Sprintf("height %d, %s leaf pages, %s branch pages, %s rows (%s deleted)",
		r.Height, humanize.Comma(int64(r.LeafPages)), humanize.Comma(int64(r.BranchPages)),
		humanize.Comma(r.Rows), humanize.Comma(r.DeletedRows))
}

type checkedPage struct {
	pageNo int64
	left   int64
	right  int64
}

type treeChecker struct {
	t      *BTree
	report CheckReport
	levels map[int][]checkedPage
}

// CheckConsistency walks the whole tree and verifies levels, sibling
// links, row order within pages and that every row lies inside the key
// range its parent gives it. It latches one page at a time and is meant
// for a quiet tree.
func (t *BTree) CheckConsistency() (CheckReport, error) {
	c := &treeChecker{
		t:      t,
		levels: map[int][]checkedPage{},
		report: CheckReport{RowsPerLevel: map[int]int64{}},
	}
	rootLevel, err := c.visit(rootPageID, -1, nil, nil)
	if err != nil {
		return c.report, err
	}
	c.report.Height = rootLevel + 1

	for level, pages := range c.levels {
		for i, p := range pages {
			wantLeft, wantRight := invalidPage, invalidPage
			if i > 0 {
				wantLeft = pages[i-1].pageNo
			}
			if i+1 < len(pages) {
				wantRight = pages[i+1].pageNo
			}
			if p.left != wantLeft || p.right != wantRight {
				return c.report, errors.AssertionFailedf(
					"level %d page %d: siblings (%d, %d), want (%d, %d)",
					level, p.pageNo, p.left, p.right, wantLeft, wantRight)
			}
		}
	}
	return c.report, nil
}

// visit checks pageNo and its subtree. wantLevel is -1 for the root. Rows
// must be >= low and < high on the unique columns; nil means unbounded.
func (c *treeChecker) visit(pageNo int64, wantLevel int, low, high types.Row) (int, error) {
	t := c.t
	n, err := t.getNode(pageNo)
	if err != nil {
		return 0, err
	}
	cr := *n.cr()

	rows := make([]types.Row, 0, cr.rowCount())
	for slot := firstSlot; slot < cr.page.RecordCount(); slot++ {
		row, err := cr.page.FetchRowFromSlot(slot)
		if err != nil {
			n.release()
			return 0, err
		}
		if cr.isLeaf() && cr.page.IsDeletedAtSlot(slot) {
			c.report.DeletedRows++
		}
		rows = append(rows, row)
	}
	n.release()

	switch {
	case wantLevel < 0 && !cr.isRoot:
		return 0, errors.AssertionFailedf("page 0 is not marked root")
	case wantLevel >= 0 && cr.isRoot:
		return 0, errors.AssertionFailedf("page %d is marked root", pageNo)
	case wantLevel >= 0 && cr.level != wantLevel:
		return 0, errors.AssertionFailedf("page %d at level %d, want %d", pageNo, cr.level, wantLevel)
	}
	if limit := t.maxRows(); len(rows) > limit {
		return 0, errors.AssertionFailedf("page %d holds %d rows, limit %d", pageNo, len(rows), limit)
	}
	c.levels[cr.level] = append(c.levels[cr.level], checkedPage{pageNo: pageNo, left: cr.leftSibling, right: cr.rightSibling})
	c.report.RowsPerLevel[cr.level] += int64(len(rows))

	nUnique := t.conglom.NUniqueColumns
	for i, row := range rows {
		if i > 0 && t.compareIndexRowToKey(rows[i-1], row, nUnique, 0) >= 0 {
			return 0, errors.AssertionFailedf("page %d slots %d and %d out of order: %s, %s", pageNo, i, i+1, rows[i-1], row)
		}
		if low != nil && t.compareIndexRowToKey(row, low, nUnique, 0) < 0 {
			return 0, errors.AssertionFailedf("page %d row %s below its parent's bound %s", pageNo, row, low)
		}
		if high != nil && t.compareIndexRowToKey(row, high, nUnique, 0) >= 0 {
			return 0, errors.AssertionFailedf("page %d row %s not below its parent's bound %s", pageNo, row, high)
		}
	}

	if cr.isLeaf() {
		c.report.LeafPages++
		c.report.Rows += int64(len(rows))
		return cr.level, nil
	}
	c.report.BranchPages++

	// child i-1 covers [rows[i-1], rows[i]); the left child ends at rows[0]
	childLow := low
	for i := 0; i <= len(rows); i++ {
		child := cr.leftChild
		if i > 0 {
			child = childPage(rows[i-1])
			childLow = rows[i-1][:len(rows[i-1])-1]
		}
		childHigh := high
		if i < len(rows) {
			childHigh = rows[i][:len(rows[i])-1]
		}
		if _, err := c.visit(child, cr.level-1, childLow, childHigh); err != nil {
			return 0, err
		}
	}
	return cr.level, nil
}
