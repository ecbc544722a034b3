package bplus

import (
	"fmt"
	"io"
	"strings"
)

// Inspect writes a human-readable dump of the tree to w, level by level
// from the root: each page's control row, then its rows. Deleted leaf rows
// are marked with '*'. Pages are latched one at a time, so the dump of a
// busy tree may mix page versions.
func (t *BTree) Inspect(w io.Writer) error {
	p := func(format string, args ...any) { fmt.Fprintf(w, format, args...) }

	p("Index %s (conglomerate %d, file %d)\n", t.conglom.Name, t.conglom.ID, t.conglom.FileID)

	queue := []int64{rootPageID}
	for len(queue) > 0 {
		var next []int64
		for i, pageNo := range queue {
			n, err := t.getNode(pageNo)
			if err != nil {
				return err
			}
			cr := n.cr()
			if i == 0 {
				p("  Level %d:\n", cr.level)
			}

			kind := "LEAF"
			if !cr.isLeaf() {
				kind = "BRANCH"
				next = append(next, cr.leftChild)
			}
			p("    [page %d] %s left=%d right=%d rows=%d", pageNo, kind, cr.leftSibling, cr.rightSibling, cr.rowCount())
			if cr.isRoot {
				p(" root")
			}
			if !cr.isLeaf() {
				p(" leftChild=%d", cr.leftChild)
			}
			p("\n")

			rows := make([]string, 0, cr.rowCount())
			for slot := firstSlot; slot < cr.page.RecordCount(); slot++ {
				row, err := cr.page.FetchRowFromSlot(slot)
				if err != nil {
					n.release()
					return err
				}
				text := row.String()
				if cr.isLeaf() && cr.page.IsDeletedAtSlot(slot) {
					text = "*" + text
				}
				if !cr.isLeaf() {
					next = append(next, childPage(row))
				}
				rows = append(rows, text)
			}
			n.release()
			if len(rows) > 0 {
				p("      %s\n", strings.Join(rows, " "))
			}
		}
		queue = next
	}
	return nil
}
