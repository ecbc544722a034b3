package bplus

import (
	"time"

	"DaemonIndex/storage_engine/access/container"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
The max scan walks from the rightmost leaf to the left. Forward scans and
inserts latch left to right, so the max scan may only ever try a left
sibling's latch. When the try fails it gives up its own latch, sleeps,
and comes back by key to the leftmost row it has already looked at (or
starts over from the right if it has passed nothing but empty leaves).
*/

const defaultMaxScanRetryWait = time.Millisecond

// FetchMax finds the last non-deleted row in index order whose first
// column is not NULL and that passes the qualifiers, and copies it into
// row. It returns false when there is none. The scan stays on that row,
// so Fetch, FetchLocation and Delete can be used on it.
func (s *Scan) FetchMax(row types.Row) (bool, error) {
	if err := s.usable(); err != nil {
		return false, err
	}
	if s.kind != scanMax {
		return false, errors.Newf("FetchMax on a %s scan", s.kind)
	}
	if s.state != scanInit {
		return false, nil
	}

	found, ok, err := s.fetchNextRow()
	if err != nil || !ok {
		return false, err
	}
	s.current = found
	s.onRow = true
	if row != nil {
		row.CopyFrom(found)
	}
	return true, nil
}

// FetchMax opens a max scan, fetches the max row and closes the scan.
func (t *BTree) FetchMax(tx *txn.Transaction, level LockLevel, mode OpenMode) (types.Row, bool, error) {
	s, err := t.OpenMaxScan(tx, level, mode, nil)
	if err != nil {
		return nil, false, err
	}
	defer s.Close()

	row := t.conglom.TemplateRow()
	ok, err := s.FetchMax(row)
	if err != nil || !ok {
		return nil, false, err
	}
	return row, true, nil
}

type maxAdvancer struct{}

func (maxAdvancer) positionAtStart(s *Scan) (retryDecision, error) {
	leaf, err := s.t.searchRight()
	if err != nil {
		return decisionRestart, err
	}
	s.pos.current = leaf
	s.pos.slot = leaf.page.RecordCount()
	if leaf.isRoot && leaf.rowCount() == 0 {
		return decisionDone, nil
	}
	return decisionContinue, nil
}

// step moves one slot to the left. Leaving a leaf, the left sibling is
// tried without waiting; if that fails the scan yields.
func (maxAdvancer) step(s *Scan) (retryDecision, error) {
	pos := &s.pos
	for {
		if pos.slot-1 > controlSlot {
			pos.slot--
			return decisionContinue, nil
		}
		if pos.current.leftSibling == invalidPage {
			pos.release()
			return decisionDone, nil
		}
		if pos.current.rowCount() > 0 {
			edge, err := pos.current.page.FetchRowFromSlot(firstSlot)
			if err != nil {
				return decisionRestart, err
			}
			s.leftEdgeKey = edge
		}

		prev, err := s.t.leftSiblingNoWait(&pos.current.controlRow)
		if errors.Is(err, container.ErrWouldWait) {
			if err := s.yieldLeft(); err != nil {
				return decisionRestart, err
			}
			continue
		}
		if err != nil {
			return decisionRestart, err
		}
		leaf, err := asLeaf(prev)
		if err != nil {
			return decisionRestart, err
		}
		pos.current.release()
		pos.current = leaf
		pos.slot = leaf.page.RecordCount()
		s.info.PagesVisited++
	}
}

// yieldLeft gives up the latch, sleeps, and latches the scan again at the
// leftmost row it has already examined.
func (s *Scan) yieldLeft() error {
	pos := &s.pos
	key := s.leftEdgeKey
	pos.release()

	wait := s.t.opts.MaxScanRetryWait
	if wait <= 0 {
		wait = defaultMaxScanRetryWait
	}
	s.t.stats.maxScanYields.Add(1)
	s.t.logger.Debug("max scan yields", zap.Duration("wait", wait), zap.Bool("restart", key == nil))
	time.Sleep(wait)

	if key == nil {
		for {
			decision, err := s.adv.positionAtStart(s)
			if err != nil {
				return err
			}
			switch decision {
			case decisionDone:
				// emptied meanwhile; stepping left of the root ends the scan
				return nil
			case decisionRestart:
				pos.release()
				continue
			}
			return nil
		}
	}

	pos.savedKey = key
	pos.pageNo = invalidPage
	_, exact, err := s.t.reposition(pos, true)
	if err != nil {
		return err
	}
	if !exact {
		s.adv.landAfterMissing(pos)
	}
	return nil
}

// pastStop is never true: the max scan has no range.
func (maxAdvancer) pastStop(*Scan, types.Row) bool { return false }

// skip drops rows with a NULL first column, which sort after every value
// but are no maximum.
func (maxAdvancer) skip(_ *Scan, row types.Row) bool {
	return row[0].Null
}

func (maxAdvancer) landAfterMissing(pos *rowPosition) {
	pos.slot++
}

func (maxAdvancer) landOn(pos *rowPosition) {
	pos.slot++
}
