package bplus

import (
	"DaemonIndex/types"
)

// scanKind is the direction of a scan. Each kind moves the shared
// rowPosition through its cursorAdvancer.
type scanKind uint8

const (
	scanForward scanKind = iota
	scanMax
)

func (k scanKind) String() string {
	if k == scanMax {
		return "max"
	}
	return "forward"
}

func (k scanKind) advancer() cursorAdvancer {
	if k == scanMax {
		return maxAdvancer{}
	}
	return forwardAdvancer{}
}

// cursorAdvancer is what differs between the scan kinds. All methods run
// with the position latched; any non-nil error may leave it latched and
// the caller releases it.
type cursorAdvancer interface {
	// positionAtStart latches the first leaf and sets the slot one step
	// before the first candidate. decisionRestart: latches were lost, try
	// again. decisionDone: there is nothing to scan.
	positionAtStart(s *Scan) (retryDecision, error)
	// step moves to the next candidate slot, changing leaves as needed.
	// decisionDone when the index is exhausted, with nothing latched.
	step(s *Scan) (retryDecision, error)
	// pastStop reports that row, and everything after it, is out of range.
	pastStop(s *Scan, row types.Row) bool
	// skip reports that row is never returned by this kind of scan.
	skip(s *Scan, row types.Row) bool
	// landAfterMissing adjusts a position that reposition left before a
	// row that was purged, so the next step lands on the row after it.
	landAfterMissing(pos *rowPosition)
	// landOn moves a position on a row back by one, so the next step
	// returns that row.
	landOn(pos *rowPosition)
}

type forwardAdvancer struct{}

func (forwardAdvancer) positionAtStart(s *Scan) (retryDecision, error) {
	t := s.t
	if s.spec.StartKey == nil {
		leaf, err := t.searchLeft()
		if err != nil {
			return decisionRestart, err
		}
		s.pos.current = leaf
		s.pos.slot = controlSlot
	} else {
		sp := &searchParams{searchKey: s.spec.StartKey, partialKeyMatchOp: positionLeftOfPartialKeyMatch}
		if s.spec.StartOp == types.OpGreaterThan {
			sp.partialKeyMatchOp = positionRightOfPartialKeyMatch
		}
		leaf, err := t.search(sp)
		if err != nil {
			return decisionRestart, err
		}
		s.pos.current = leaf
		s.pos.slot = sp.resultSlot
		if sp.resultExact && s.spec.StartOp == types.OpGreaterOrEquals {
			s.pos.slot--
		}
	}

	// the row before the range keeps inserts out of it
	decision, err := s.p.lockScanRow(&s.pos, true)
	if err != nil || decision == decisionRestart {
		return decisionRestart, err
	}

	if leaf := s.pos.current; leaf.isRoot && leaf.rowCount() == 0 {
		return decisionDone, nil
	}
	return decisionContinue, nil
}

// step advances one slot. At the end of a leaf the right sibling is
// latched before the leaf is released, so no row can slip past the scan.
func (forwardAdvancer) step(s *Scan) (retryDecision, error) {
	pos := &s.pos
	for {
		if pos.slot+1 < pos.current.page.RecordCount() {
			pos.slot++
			return decisionContinue, nil
		}
		next, err := s.t.rightSibling(&pos.current.controlRow)
		if err != nil {
			return decisionRestart, err
		}
		if next == nil {
			pos.release()
			return decisionDone, nil
		}
		leaf, err := asLeaf(next)
		if err != nil {
			return decisionRestart, err
		}
		pos.current.release()
		pos.current = leaf
		pos.slot = controlSlot
		s.info.PagesVisited++
	}
}

// pastStop compares row with the stop key over the stop key's columns.
// With OpGreaterOrEquals a row equal to the stop key is already out.
func (forwardAdvancer) pastStop(s *Scan, row types.Row) bool {
	if s.spec.StopKey == nil {
		return false
	}
	ret := s.t.compareIndexRowToKey(row, s.spec.StopKey, len(row), 0)
	if ret == 0 && s.spec.StopOp == types.OpGreaterOrEquals {
		ret = 1
	}
	return ret > 0
}

func (forwardAdvancer) skip(*Scan, types.Row) bool { return false }

func (forwardAdvancer) landAfterMissing(*rowPosition) {}

func (forwardAdvancer) landOn(pos *rowPosition) {
	pos.slot--
}
