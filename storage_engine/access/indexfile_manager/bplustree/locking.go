package bplus

import (
	"DaemonIndex/storage_engine/access/container"
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
Row locks protect base-table rows and are named by the row location
stored in the last column of a leaf row. They are requested while a leaf
is latched, so a request is always tried NOWAIT first. When it would
block, every latch is given up (saving the scan position if there is one),
the lock is waited for, and the caller is told to search again
(decisionRestart). A latch is never held across a lock wait.

Isolation decides which locks are taken:

	                     read locks   unlock after read   previous key (scan)   previous key (insert)
	serializable         yes          no                  yes                   yes
	repeatable read      yes          no                  no                    yes
	read committed       yes          yes                 no                    no
	read uncommitted     update only  -                   no                    no

With table-level locking the open took a table lock and no row lock is
ever requested.
*/

// LockLevel picks row or table locking for an open controller or scan.
type LockLevel uint8

const (
	LockRecord LockLevel = iota
	LockTable
)

// OpenMode flags for controllers and scans.
type OpenMode uint32

const (
	OpenForUpdate OpenMode = 1 << iota
	// OpenLockNoWait fails with lockmgr.ErrLockTimeout instead of waiting.
	OpenLockNoWait
	// OpenUseUpdateLocks reads with U locks when opened for update.
	OpenUseUpdateLocks
	// OpenBaseRowLocked means the caller already X-locked the base row.
	OpenBaseRowLocked
	// OpenHoldCursor keeps a scan usable across commits.
	OpenHoldCursor
)

func (m OpenMode) has(f OpenMode) bool { return m&f != 0 }

// lockPolicy is the row locking of one open controller or scan.
type lockPolicy struct {
	t  *BTree
	tx *txn.Transaction

	noLocking       bool
	readLocks       bool
	unlockAfterRead bool
	scanPrevKey     bool
	insertPrevKey   bool

	forUpdate      bool
	useUpdateLocks bool
	noWait         bool
}

// newLockPolicy takes the table lock the open needs and returns the row
// locking policy for the rest of the open.
func (t *BTree) newLockPolicy(tx *txn.Transaction, level LockLevel, mode OpenMode) (*lockPolicy, error) {
	p := &lockPolicy{
		t:              t,
		tx:             tx,
		forUpdate:      mode.has(OpenForUpdate),
		useUpdateLocks: mode.has(OpenUseUpdateLocks),
		noWait:         mode.has(OpenLockNoWait),
	}

	tableMode := lockmgr.ModeIntentShared
	if p.forUpdate {
		tableMode = lockmgr.ModeIntentExclusive
	}
	if level == LockTable {
		p.noLocking = true
		tableMode = lockmgr.ModeTableShared
		if p.forUpdate {
			tableMode = lockmgr.ModeTableExclusive
		}
	}
	granted, err := t.locks.LockTable(tx.Owner(), t.conglom.BaseFileID, tableMode, !p.noWait)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, errors.Wrapf(lockmgr.ErrLockTimeout, "table lock %s on %d", tableMode, t.conglom.BaseFileID)
	}
	if p.noLocking {
		return p, nil
	}

	switch tx.Isolation {
	case txn.ReadUncommitted:
	case txn.ReadCommitted:
		p.readLocks = true
		p.unlockAfterRead = true
	case txn.RepeatableRead:
		p.readLocks = true
		p.insertPrevKey = true
	default:
		p.readLocks = true
		p.insertPrevKey = true
		p.scanPrevKey = true
	}
	return p, nil
}

// readMode is the lock a scan takes on a row it returns.
func (p *lockPolicy) readMode() lockmgr.Mode {
	if !p.forUpdate {
		if p.unlockAfterRead {
			return lockmgr.ModeSharedReadCommitted
		}
		return lockmgr.ModeShared
	}
	if p.useUpdateLocks {
		return lockmgr.ModeUpdate
	}
	return lockmgr.ModeExclusive
}

func (p *lockPolicy) readDuration() lockmgr.Duration {
	if p.unlockAfterRead && !p.forUpdate {
		return lockmgr.DurationManual
	}
	return lockmgr.DurationCommit
}

// lockRowOnPage locks the row location at slot of leaf in mode. On a
// conflict it releases leaf (through pos when given, so the position is
// saved), every page in aux, waits for the lock and reports
// decisionRestart. The lock is kept after a wait.
func (p *lockPolicy) lockRowOnPage(leaf *leafNode, aux []node, slot int, pos *rowPosition, mode lockmgr.Mode, dur lockmgr.Duration) (retryDecision, error) {
	v, err := leaf.page.FetchFieldFromSlot(slot, p.t.conglom.rowLocationColumn())
	if err != nil {
		return decisionContinue, err
	}
	key := lockmgr.RowKey(p.t.conglom.BaseFileID, v.P)
	return p.lockKeyOnPage(leaf, aux, pos, key, mode, dur)
}

// lockPreviousToFirstKey locks the position before the first row of the
// index, the previous key of a leftmost insert or scan start.
func (p *lockPolicy) lockPreviousToFirstKey(leaf *leafNode, aux []node, pos *rowPosition, mode lockmgr.Mode, dur lockmgr.Duration) (retryDecision, error) {
	return p.lockKeyOnPage(leaf, aux, pos, lockmgr.PreviousToFirstKey(p.t.conglom.BaseFileID), mode, dur)
}

func (p *lockPolicy) lockKeyOnPage(leaf *leafNode, aux []node, pos *rowPosition, key lockmgr.Key, mode lockmgr.Mode, dur lockmgr.Duration) (retryDecision, error) {
	if p.noLocking {
		return decisionContinue, nil
	}
	owner := p.tx.Owner()
	if dur != lockmgr.DurationInstant {
		if held, ok := p.t.locks.Holds(owner, key); ok && covers(held, mode) {
			return decisionContinue, nil
		}
	}

	granted, err := p.t.locks.Lock(owner, key, mode, false, dur)
	if err != nil {
		return decisionContinue, err
	}
	if granted {
		return decisionContinue, nil
	}

	if pos != nil && leaf != nil && pos.current == leaf {
		if err := pos.saveMeAndReleasePage(); err != nil {
			return decisionRestart, err
		}
	} else if leaf != nil {
		leaf.release()
	}
	for _, n := range aux {
		if n != nil {
			n.release()
		}
	}

	if p.noWait {
		return decisionRestart, errors.Wrapf(lockmgr.ErrLockTimeout, "%s on %s", mode, key)
	}
	p.t.logger.Debug("row lock wait", zap.Stringer("key", key), zap.Stringer("mode", mode))
	if _, err := p.t.locks.Lock(owner, key, mode, true, dur); err != nil {
		return decisionRestart, err
	}
	p.t.stats.restarts.Add(1)
	return decisionRestart, nil
}

// lockNonScanPreviousRow locks the row before slot, walking to left leaves
// when slot is the first row of its page.
func (p *lockPolicy) lockNonScanPreviousRow(leaf *leafNode, slot int, mode lockmgr.Mode, dur lockmgr.Duration) (retryDecision, error) {
	if slot > firstSlot {
		return p.lockRowOnPage(leaf, nil, slot-1, nil, mode, dur)
	}
	if leaf.leftSibling == invalidPage {
		return p.lockPreviousToFirstKey(leaf, nil, nil, mode, dur)
	}
	return p.searchLeftAndLockPreviousKey(leaf, mode, dur)
}

// searchLeftAndLockPreviousKey finds the last row left of leaf, skipping
// empty leaves, and locks it. Left siblings are only latched NOWAIT while
// another latch is held; on a would-wait every latch is dropped and the
// sibling is waited for alone, which makes the result a restart.
func (p *lockPolicy) searchLeftAndLockPreviousKey(leaf *leafNode, mode lockmgr.Mode, dur lockmgr.Duration) (retryDecision, error) {
	released := false
	current := leaf

	prev, err := p.t.leftSiblingNoWait(&current.controlRow)
	if errors.Is(err, container.ErrWouldWait) {
		prevNo := current.leftSibling
		current.release()
		current = nil
		released = true
		prev, err = p.t.getNode(prevNo)
	}
	if err != nil {
		current.release()
		return decisionRestart, err
	}

	for {
		prevLeaf, ok := prev.(*leafNode)
		if !ok {
			prev.release()
			current.release()
			return decisionRestart, errPageKindMismatch
		}

		var decision retryDecision
		var lockErr error
		switch {
		case prevLeaf.rowCount() > 0:
			decision, lockErr = p.lockRowOnPage(prevLeaf, auxOf(current), prevLeaf.page.RecordCount()-1, nil, mode, dur)
		case prevLeaf.leftSibling == invalidPage:
			decision, lockErr = p.lockPreviousToFirstKey(prevLeaf, auxOf(current), nil, mode, dur)
		default:
			next, err := p.t.leftSiblingNoWait(&prevLeaf.controlRow)
			if errors.Is(err, container.ErrWouldWait) {
				nextNo := prevLeaf.leftSibling
				prevLeaf.release()
				current.release()
				current = nil
				released = true
				next, err = p.t.getNode(nextNo)
			} else {
				prevLeaf.release()
			}
			if err != nil {
				current.release()
				return decisionRestart, err
			}
			prev = next
			continue
		}

		prevLeaf.release()
		if lockErr != nil {
			current.release()
			return decisionRestart, lockErr
		}
		if decision == decisionRestart || released {
			current.release()
			return decisionRestart, nil
		}
		return decisionContinue, nil
	}
}

func auxOf(leaf *leafNode) []node {
	if leaf == nil {
		return nil
	}
	return []node{leaf}
}

// lockScanRow locks the row a scan is positioned on. Slot 0 stands for the
// previous key of the scan start. previousKey is set when the row is only
// locked to protect the range, not because it is returned.
func (p *lockPolicy) lockScanRow(pos *rowPosition, previousKey bool) (retryDecision, error) {
	if p.noLocking {
		return decisionContinue, nil
	}
	if !p.readLocks && !p.forUpdate {
		return decisionContinue, nil
	}
	if pos.slot == controlSlot || previousKey {
		if !p.scanPrevKey {
			return decisionContinue, nil
		}
		if pos.slot == controlSlot {
			decision, err := p.lockNonScanPreviousRow(pos.current, firstSlot, lockmgr.ModeShared, lockmgr.DurationCommit)
			if decision == decisionRestart {
				// every latch is gone, the leaf included
				pos.current = nil
			}
			return decision, err
		}
		return p.lockRowOnPage(pos.current, nil, pos.slot, pos, lockmgr.ModeShared, lockmgr.DurationCommit)
	}
	return p.lockRowOnPage(pos.current, nil, pos.slot, pos, p.readMode(), p.readDuration())
}

// unlockScanRecordAfterRead drops the read lock on a row the scan moved
// past, for read committed.
func (p *lockPolicy) unlockScanRecordAfterRead(rowLoc types.RowPointer) {
	if p.noLocking || !p.unlockAfterRead || p.forUpdate {
		return
	}
	p.t.locks.UnlockAfterRead(p.tx.Owner(), p.t.conglom.BaseFileID, rowLoc)
}

// lockRowLocation locks a row location with no latch held.
func (p *lockPolicy) lockRowLocation(rowLoc types.RowPointer, mode lockmgr.Mode, wait bool) (bool, error) {
	if p.noLocking {
		return true, nil
	}
	granted, err := p.t.locks.LockRow(p.tx.Owner(), p.t.conglom.BaseFileID, rowLoc, mode, wait, lockmgr.DurationCommit)
	if err != nil {
		return false, err
	}
	return granted, nil
}

// covers reports whether holding held makes a request for want redundant.
func covers(held, want lockmgr.Mode) bool {
	switch held {
	case lockmgr.ModeExclusive:
		return want == lockmgr.ModeShared || want == lockmgr.ModeSharedReadCommitted || want == lockmgr.ModeUpdate || want == lockmgr.ModeExclusive
	case lockmgr.ModeUpdate:
		return want == lockmgr.ModeShared || want == lockmgr.ModeSharedReadCommitted || want == lockmgr.ModeUpdate
	case lockmgr.ModeShared:
		return want == lockmgr.ModeShared || want == lockmgr.ModeSharedReadCommitted
	}
	return held == want
}
