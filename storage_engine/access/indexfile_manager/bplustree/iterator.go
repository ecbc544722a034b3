package bplus

import (
	"fmt"

	lockmgr "DaemonIndex/storage_engine/lock_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

/*
A Scan never keeps a latch between calls. Each call repositions on the
row it stopped at (by saved key), moves on, and saves its position again
before returning.

	scanInit ──first fetch──▶ scanInProgress ──end of range──▶ scanDone
	    │                          │
	    │ commit (hold cursor)     │ commit (hold cursor)
	    ▼                          ▼
	scanHoldInit             scanHoldInProgress
	    └──── ResumeInTransaction returns to scanInit / scanInProgress
*/

type scanState uint8

const (
	scanInit scanState = iota
	scanInProgress
	scanDone
	scanHoldInit
	scanHoldInProgress
)

func (s scanState) String() string {
	switch s {
	case scanInit:
		return "init"
	case scanInProgress:
		return "in progress"
	case scanDone:
		return "done"
	case scanHoldInit:
		return "hold init"
	case scanHoldInProgress:
		return "hold in progress"
	}
	return "?"
}

// ScanSpec is the range and filter of a scan. A nil StartKey starts at the
// first row, a nil StopKey runs to the last. Keys may be a prefix of the
// key columns.
type ScanSpec struct {
	StartKey types.Row
	// StartOp is OpGreaterOrEquals (default) to start on rows equal to
	// StartKey, or OpGreaterThan to start after them.
	StartOp types.Operator

	Qualifiers Qualifiers

	StopKey types.Row
	// StopOp is OpGreaterThan (default) to return rows equal to StopKey,
	// or OpGreaterOrEquals to stop before them.
	StopOp types.Operator
}

// ScanInfo counts the work a scan did.
type ScanInfo struct {
	RowsVisited   int64
	RowsQualified int64
	RowsDeleted   int64
	PagesVisited  int64
}

func (i ScanInfo) String() string {
	return fmt.Sprintf("visited %s rows (%s deleted) on %s pages, %s qualified",
		humanize.Comma(i.RowsVisited), humanize.Comma(i.RowsDeleted),
		humanize.Comma(i.PagesVisited), humanize.Comma(i.RowsQualified))
}

// Scan iterates the rows of one tree in key order (forward) or finds the
// last one (max). A Scan is used by one goroutine.
type Scan struct {
	t    *BTree
	tx   *txn.Transaction
	p    *lockPolicy
	mode OpenMode

	kind scanKind
	adv  cursorAdvancer
	spec ScanSpec

	state scanState
	pos   rowPosition

	// the row last returned, while the scan stays on it
	current types.Row
	onRow   bool
	// a read-committed read lock still held on current
	readLocked bool

	// max scan: first row of the last page left behind, used to come back
	// after giving up latches
	leftEdgeKey types.Row

	info   ScanInfo
	closed bool
}

// OpenScan opens a forward scan over spec's range.
func (t *BTree) OpenScan(tx *txn.Transaction, level LockLevel, mode OpenMode, spec ScanSpec) (*Scan, error) {
	return t.openScan(tx, level, mode, scanForward, spec)
}

// OpenMaxScan opens a scan whose FetchMax returns the last qualifying row.
func (t *BTree) OpenMaxScan(tx *txn.Transaction, level LockLevel, mode OpenMode, quals Qualifiers) (*Scan, error) {
	return t.openScan(tx, level, mode, scanMax, ScanSpec{Qualifiers: quals})
}

func (t *BTree) openScan(tx *txn.Transaction, level LockLevel, mode OpenMode, kind scanKind, spec ScanSpec) (*Scan, error) {
	if spec.StartOp == 0 {
		spec.StartOp = types.OpGreaterOrEquals
	}
	if spec.StopOp == 0 {
		spec.StopOp = types.OpGreaterThan
	}
	if spec.StartOp != types.OpGreaterOrEquals && spec.StartOp != types.OpGreaterThan {
		return nil, errors.Newf("scan start operator %s", spec.StartOp)
	}
	if spec.StopOp != types.OpGreaterOrEquals && spec.StopOp != types.OpGreaterThan {
		return nil, errors.Newf("scan stop operator %s", spec.StopOp)
	}

	p, err := t.newLockPolicy(tx, level, mode)
	if err != nil {
		return nil, err
	}
	s := &Scan{
		t:    t,
		tx:   tx,
		p:    p,
		mode: mode,
		kind: kind,
		adv:  kind.advancer(),
		spec: spec,
	}
	t.logger.Debug("scan opened",
		zap.Stringer("kind", kind), zap.Uint64("txnID", tx.ID), zap.Stringer("isolation", tx.Isolation))
	return s, nil
}

// Next moves to the next qualifying row. It returns false once the range
// is exhausted.
func (s *Scan) Next() (bool, error) {
	if err := s.usable(); err != nil {
		return false, err
	}
	if s.kind != scanForward {
		return false, errors.Newf("Next on a %s scan", s.kind)
	}
	row, ok, err := s.fetchNextRow()
	if err != nil || !ok {
		return false, err
	}
	s.current = row
	s.onRow = true
	return true, nil
}

// FetchNext moves to the next qualifying row and copies it into row.
func (s *Scan) FetchNext(row types.Row) (bool, error) {
	ok, err := s.Next()
	if err != nil || !ok {
		return false, err
	}
	row.CopyFrom(s.current)
	return true, nil
}

// FetchNextGroup fills rows (and locs, when not nil) with up to len(rows)
// qualifying rows and returns how many it fetched. Fewer than len(rows)
// means the range is exhausted.
func (s *Scan) FetchNextGroup(rows []types.Row, locs []types.RowPointer) (int, error) {
	n := 0
	for n < len(rows) {
		ok, err := s.Next()
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}
		if rows[n] == nil {
			rows[n] = s.current.Clone()
		} else {
			rows[n].CopyFrom(s.current)
		}
		if locs != nil && n < len(locs) {
			locs[n] = s.current[s.t.conglom.rowLocationColumn()].P
		}
		n++
	}
	return n, nil
}

// Fetch copies the current row into row, after checking it is still in
// the index and still qualifies.
func (s *Scan) Fetch(row types.Row) error {
	return s.fetchCurrent(row, true)
}

// FetchWithoutQualify is Fetch without the qualifier check.
func (s *Scan) FetchWithoutQualify(row types.Row) error {
	return s.fetchCurrent(row, false)
}

func (s *Scan) fetchCurrent(row types.Row, qualify bool) error {
	if err := s.positioned(); err != nil {
		return err
	}
	found, err := s.repositionOnCurrent()
	if err != nil {
		return err
	}
	if !found {
		return errors.Wrapf(ErrRowNotFound, "row %s", s.current)
	}
	defer s.savePosition()

	fetched, err := s.pos.current.page.FetchRowFromSlot(s.pos.slot)
	if err != nil {
		return err
	}
	if s.pos.current.page.IsDeletedAtSlot(s.pos.slot) {
		return errors.Wrapf(ErrRowNotFound, "row %s is deleted", fetched)
	}
	if qualify && !s.spec.Qualifiers.Qualify(fetched) {
		return errors.Wrapf(ErrRowNotQualified, "row %s", fetched)
	}
	s.current = fetched
	row.CopyFrom(fetched)
	return nil
}

// FetchLocation returns the row location of the current row.
func (s *Scan) FetchLocation() (types.RowPointer, error) {
	if err := s.positioned(); err != nil {
		return types.RowPointer{}, err
	}
	return s.current[s.t.conglom.rowLocationColumn()].P, nil
}

// IsCurrentPositionDeleted reports whether the current row has been
// deleted (or purged) since it was returned.
func (s *Scan) IsCurrentPositionDeleted() (bool, error) {
	if err := s.positioned(); err != nil {
		return false, err
	}
	found, err := s.repositionOnCurrent()
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	deleted := s.pos.current.page.IsDeletedAtSlot(s.pos.slot)
	return deleted, s.savePosition()
}

// DoesCurrentPositionQualify re-evaluates the qualifiers on the current
// row as it is stored now.
func (s *Scan) DoesCurrentPositionQualify() (bool, error) {
	if err := s.positioned(); err != nil {
		return false, err
	}
	found, err := s.repositionOnCurrent()
	if err != nil || !found {
		return false, err
	}
	row, err := s.pos.current.page.FetchRowFromSlot(s.pos.slot)
	if err != nil {
		s.pos.release()
		return false, err
	}
	return s.spec.Qualifiers.Qualify(row), s.savePosition()
}

// Delete marks the current row deleted. Returns false when it already was.
func (s *Scan) Delete() (bool, error) {
	if err := s.positioned(); err != nil {
		return false, err
	}
	if !s.p.forUpdate {
		return false, ErrNotForUpdate
	}
	for {
		found, err := s.repositionOnCurrent()
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
		decision, err := s.p.lockRowOnPage(s.pos.current, nil, s.pos.slot, &s.pos, lockmgr.ModeExclusive, lockmgr.DurationCommit)
		if err != nil {
			s.pos.release()
			return false, err
		}
		if decision == decisionRestart {
			continue
		}
		break
	}

	deleted, err := s.t.deleteAtPosition(s.tx, s.pos.current, s.pos.slot)
	if err != nil {
		s.pos.release()
		return false, err
	}
	if deleted {
		s.info.RowsDeleted++
	}
	return deleted, s.savePosition()
}

// ReopenScan starts the scan over with a new range.
func (s *Scan) ReopenScan(spec ScanSpec) error {
	if s.closed {
		return ErrScanClosed
	}
	if spec.StartOp == 0 {
		spec.StartOp = types.OpGreaterOrEquals
	}
	if spec.StopOp == 0 {
		spec.StopOp = types.OpGreaterThan
	}
	s.leaveRow()
	s.pos.release()
	s.spec = spec
	s.state = scanInit
	s.leftEdgeKey = nil
	return nil
}

// Close releases everything the scan holds. Locks stay with the
// transaction.
func (s *Scan) Close() error {
	if s.closed {
		return nil
	}
	s.leaveRow()
	s.pos.release()
	s.state = scanDone
	s.closed = true
	s.t.logger.Debug("scan closed", zap.Stringer("kind", s.kind), zap.Stringer("info", s.info))
	return nil
}

// CloseForEndTransaction is called when the scan's transaction commits.
// A hold cursor survives (unless closeHeldScan) keeping only its key
// position; every other scan is closed. Reports whether it closed.
func (s *Scan) CloseForEndTransaction(closeHeldScan bool) (bool, error) {
	if s.closed {
		return true, nil
	}
	if !s.mode.has(OpenHoldCursor) || closeHeldScan {
		return true, s.Close()
	}
	if err := s.savePosition(); err != nil {
		return true, err
	}
	s.readLocked = false
	switch s.state {
	case scanInit:
		s.state = scanHoldInit
	case scanInProgress:
		s.state = scanHoldInProgress
	}
	return false, nil
}

// ResumeInTransaction continues a held scan in tx.
func (s *Scan) ResumeInTransaction(tx *txn.Transaction, level LockLevel) error {
	if s.closed {
		return ErrScanClosed
	}
	p, err := s.t.newLockPolicy(tx, level, s.mode)
	if err != nil {
		return err
	}
	s.tx = tx
	s.p = p
	switch s.state {
	case scanHoldInit:
		s.state = scanInit
	case scanHoldInProgress:
		s.state = scanInProgress
	}
	return nil
}

// Info returns the scan's counters.
func (s *Scan) Info() ScanInfo {
	return s.info
}

func (s *Scan) usable() error {
	if s.closed {
		return ErrScanClosed
	}
	if s.state == scanHoldInit || s.state == scanHoldInProgress {
		return errors.Newf("held scan must be resumed in a new transaction first")
	}
	return nil
}

func (s *Scan) positioned() error {
	if err := s.usable(); err != nil {
		return err
	}
	if !s.onRow || s.state != scanInProgress {
		return ErrScanNotPositioned
	}
	return nil
}

// repositionOnCurrent latches the leaf of the current row. found is false,
// with nothing latched, when the row is gone from the index.
func (s *Scan) repositionOnCurrent() (bool, error) {
	if s.pos.replaced {
		return false, nil
	}
	found, _, err := s.t.reposition(&s.pos, false)
	if err != nil {
		s.pos.release()
		return false, err
	}
	if found {
		rowLoc, err := s.pos.current.page.FetchFieldFromSlot(s.pos.slot, s.t.conglom.rowLocationColumn())
		if err != nil {
			s.pos.release()
			return false, err
		}
		if rowLoc.P != s.current[s.t.conglom.rowLocationColumn()].P {
			// same key, another row: the one we had was deleted and the
			// slot reused. The scan goes on from before the new row.
			if err := s.savePosition(); err != nil {
				return false, err
			}
			s.pos.replaced = true
			return false, nil
		}
	}
	return found, nil
}

func (s *Scan) savePosition() error {
	if err := s.pos.saveMeAndReleasePage(); err != nil {
		s.pos.release()
		return err
	}
	return nil
}

// leaveRow gives up the read-committed lock on the row the scan is leaving.
func (s *Scan) leaveRow() {
	if s.readLocked && s.current != nil {
		s.p.unlockScanRecordAfterRead(s.current[s.t.conglom.rowLocationColumn()].P)
	}
	s.readLocked = false
	s.onRow = false
}

// resume gets the scan latched at the point the next step starts from.
// Returns false when the scan is already done.
func (s *Scan) resume() (bool, error) {
	switch s.state {
	case scanDone:
		return false, nil
	case scanInit:
		s.info.PagesVisited++
		for {
			decision, err := s.adv.positionAtStart(s)
			if err != nil {
				s.pos.release()
				return false, err
			}
			switch decision {
			case decisionDone:
				s.finish()
				return false, nil
			case decisionRestart:
				s.pos.release()
				continue
			}
			s.state = scanInProgress
			return true, nil
		}
	}

	s.leaveRow()
	rowLocCol := s.t.conglom.rowLocationColumn()
	replaced := s.pos.replaced
	var savedKey types.Row
	if !s.pos.latched() {
		savedKey = s.pos.savedKey
	}
	found, exact, err := s.t.reposition(&s.pos, true)
	if err != nil {
		s.pos.release()
		return false, err
	}
	if !found {
		return false, errors.AssertionFailedf("scan could not reposition")
	}
	if exact && !replaced && savedKey != nil {
		// in a unique index the key may now belong to a resurrected row
		rowLoc, err := s.pos.current.page.FetchFieldFromSlot(s.pos.slot, rowLocCol)
		if err != nil {
			s.pos.release()
			return false, err
		}
		replaced = rowLoc.P != savedKey[rowLocCol].P
	}
	switch {
	case !exact:
		s.adv.landAfterMissing(&s.pos)
	case replaced:
		s.adv.landOn(&s.pos)
	}
	return true, nil
}

func (s *Scan) finish() {
	s.pos.release()
	s.state = scanDone
}

// fetchNextRow runs the scan loop to the next row to return. On success
// the position is saved on that row and nothing is latched.
func (s *Scan) fetchNextRow() (types.Row, bool, error) {
	ok, err := s.resume()
	if err != nil || !ok {
		return nil, false, err
	}
	rowLocCol := s.t.conglom.rowLocationColumn()

	for {
		decision, err := s.adv.step(s)
		if err != nil {
			s.pos.release()
			return nil, false, err
		}
		if decision == decisionDone {
			s.finish()
			return nil, false, nil
		}

		row, err := s.pos.current.page.FetchRowFromSlot(s.pos.slot)
		if err != nil {
			s.pos.release()
			return nil, false, err
		}
		s.info.RowsVisited++
		if s.adv.pastStop(s, row) {
			s.finish()
			return nil, false, nil
		}

		row, decision, err = s.lockCurrent()
		if err != nil {
			return nil, false, err
		}
		if decision == decisionRestart {
			continue
		}

		rowLoc := row[rowLocCol].P
		if s.pos.current.page.IsDeletedAtSlot(s.pos.slot) {
			s.info.RowsDeleted++
			s.p.unlockScanRecordAfterRead(rowLoc)
			continue
		}
		if s.adv.skip(s, row) || !s.spec.Qualifiers.Qualify(row) {
			s.p.unlockScanRecordAfterRead(rowLoc)
			continue
		}

		s.info.RowsQualified++
		s.readLocked = s.p.readLocks && s.p.unlockAfterRead && !s.p.forUpdate
		if err := s.savePosition(); err != nil {
			return nil, false, err
		}
		return row, true, nil
	}
}

// lockCurrent locks the row at the position for the scan. When the lock
// had to be waited for, the latch was lost: the row is found again and, if
// it was purged meanwhile, the scan moves on from where it was
// (decisionRestart). In a unique index the slot may now hold a resurrected
// row with another row location, which is then locked in turn.
func (s *Scan) lockCurrent() (types.Row, retryDecision, error) {
	rowLocCol := s.t.conglom.rowLocationColumn()
	for {
		decision, err := s.p.lockScanRow(&s.pos, false)
		if err != nil {
			s.pos.release()
			return nil, decisionRestart, err
		}
		if decision == decisionContinue {
			row, err := s.pos.current.page.FetchRowFromSlot(s.pos.slot)
			if err != nil {
				s.pos.release()
				return nil, decisionRestart, err
			}
			return row, decisionContinue, nil
		}

		locked := s.pos.savedKey[rowLocCol].P
		found, _, err := s.t.reposition(&s.pos, false)
		if err != nil {
			s.pos.release()
			return nil, decisionRestart, err
		}
		if !found {
			// purged while we waited; carry on from beside it
			s.p.unlockScanRecordAfterRead(locked)
			if _, _, err := s.t.reposition(&s.pos, true); err != nil {
				s.pos.release()
				return nil, decisionRestart, err
			}
			s.adv.landAfterMissing(&s.pos)
			return nil, decisionRestart, nil
		}

		row, err := s.pos.current.page.FetchRowFromSlot(s.pos.slot)
		if err != nil {
			s.pos.release()
			return nil, decisionRestart, err
		}
		if row[rowLocCol].P == locked {
			return row, decisionContinue, nil
		}
		s.p.unlockScanRecordAfterRead(locked)
	}
}
