package lockmgr

import (
	"DaemonIndex/logging"
	"DaemonIndex/types"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
Lock manager for logical (transaction-duration) locks on base-table rows
and tables. Latches are not managed here; a caller must never wait in
Lock while it holds a page latch. The index layer asks NOWAIT first while
latched and only waits after giving the latch up.

Grant rule: a request is granted when it is compatible with every other
owner's held modes and nobody is queued ahead of it (an owner that already
holds the object may jump the queue, which lets upgrades through).
Waiters are woken strictly in FIFO order.
*/

var (
	ErrLockTimeout = errors.New("lock wait timeout")
	ErrDeadlock    = errors.New("deadlock detected, transaction chosen as victim")
)

func NewLockManager(timeout time.Duration, deadlockCheck bool, logger *zap.Logger) *LockManager {
	return &LockManager{
		locks:         make(map[Key]*lockEntry),
		owned:         make(map[Owner]map[Key]struct{}),
		waiting:       make(map[Owner]*waitFor),
		timeout:       timeout,
		deadlockCheck: deadlockCheck,
		logger:        logging.OrNop(logger).Named("lockmgr"),
	}
}

// Lock requests mode on key for owner. With wait=false a conflicting
// request returns (false, nil) immediately. With wait=true it blocks until
// granted, until the lock timeout, or until it would close a wait cycle.
func (lm *LockManager) Lock(owner Owner, key Key, mode Mode, wait bool, duration Duration) (bool, error) {
	lm.mu.Lock()

	entry := lm.entry(key)
	if lm.grantable(entry, owner, mode) {
		if duration != DurationInstant {
			lm.record(entry, owner, key, mode)
		} else if len(entry.holders) == 0 && len(entry.waiters) == 0 {
			delete(lm.locks, key)
		}
		lm.mu.Unlock()
		return true, nil
	}

	if !wait {
		if len(entry.holders) == 0 && len(entry.waiters) == 0 {
			delete(lm.locks, key)
		}
		lm.mu.Unlock()
		return false, nil
	}

	w := &waiter{
		owner:  owner,
		mode:   mode,
		ready:  make(chan struct{}),
		record: duration != DurationInstant,
	}
	entry.waiters = append(entry.waiters, w)
	lm.waiting[owner] = &waitFor{key: key, mode: mode}
	lm.waits++

	if lm.deadlockCheck && lm.closesCycle(owner) {
		lm.dropWaiter(key, entry, w)
		lm.deadlocks++
		lm.mu.Unlock()
		lm.logger.Debug("deadlock victim", zap.Uint64("owner", uint64(owner)), zap.Stringer("key", key))
		return false, errors.Wrapf(ErrDeadlock, "waiting for %s on %s", mode, key)
	}
	lm.mu.Unlock()

	timer := time.NewTimer(lm.timeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		return true, nil
	case <-timer.C:
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if w.granted {
		// granted while the timer fired
		return true, nil
	}
	lm.dropWaiter(key, entry, w)
	lm.timeouts++
	return false, errors.Wrapf(ErrLockTimeout, "waiting %s for %s on %s", lm.timeout, mode, key)
}

// Unlock releases one grant of mode on key held by owner.
func (lm *LockManager) Unlock(owner Owner, key Key, mode Mode) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	entry, ok := lm.locks[key]
	if !ok {
		return
	}
	h, ok := entry.holders[owner]
	if !ok || h.counts[mode] == 0 {
		return
	}
	h.counts[mode]--
	if h.counts[mode] == 0 {
		delete(h.counts, mode)
	}
	if len(h.counts) == 0 {
		delete(entry.holders, owner)
		if keys := lm.owned[owner]; keys != nil {
			delete(keys, key)
		}
	}
	lm.wake(key, entry)
}

// ReleaseAll drops every lock owner holds. Called at commit and abort.
func (lm *LockManager) ReleaseAll(owner Owner) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for key := range lm.owned[owner] {
		entry, ok := lm.locks[key]
		if !ok {
			continue
		}
		delete(entry.holders, owner)
		lm.wake(key, entry)
	}
	delete(lm.owned, owner)
}

// Holds returns the strongest mode owner holds on key.
func (lm *LockManager) Holds(owner Owner, key Key) (Mode, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	entry, ok := lm.locks[key]
	if !ok {
		return 0, false
	}
	h, ok := entry.holders[owner]
	if !ok {
		return 0, false
	}
	var best Mode
	for m := range h.counts {
		if strength(m) > strength(best) {
			best = m
		}
	}
	return best, true
}

// HeldCount returns how many distinct objects owner holds locks on.
func (lm *LockManager) HeldCount(owner Owner) int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.owned[owner])
}

func (lm *LockManager) Stats() Stats {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	s := Stats{
		Objects:   len(lm.locks),
		Waits:     lm.waits,
		Timeouts:  lm.timeouts,
		Deadlocks: lm.deadlocks,
	}
	for _, e := range lm.locks {
		s.Waiters += len(e.waiters)
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// internals, lm.mu held
// ─────────────────────────────────────────────────────────────────────────────

func (lm *LockManager) entry(key Key) *lockEntry {
	e, ok := lm.locks[key]
	if !ok {
		e = &lockEntry{holders: make(map[Owner]*holding)}
		lm.locks[key] = e
	}
	return e
}

func (lm *LockManager) grantable(e *lockEntry, owner Owner, mode Mode) bool {
	_, alreadyHolder := e.holders[owner]
	if len(e.waiters) > 0 && !alreadyHolder {
		return false
	}
	return compatibleWithHolders(e, owner, mode)
}

func compatibleWithHolders(e *lockEntry, owner Owner, mode Mode) bool {
	for o, h := range e.holders {
		if o == owner {
			continue
		}
		for held := range h.counts {
			if !compatible(held, mode) {
				return false
			}
		}
	}
	return true
}

func (lm *LockManager) record(e *lockEntry, owner Owner, key Key, mode Mode) {
	h, ok := e.holders[owner]
	if !ok {
		h = &holding{counts: make(map[Mode]int)}
		e.holders[owner] = h
	}
	h.counts[mode]++

	keys := lm.owned[owner]
	if keys == nil {
		keys = make(map[Key]struct{})
		lm.owned[owner] = keys
	}
	keys[key] = struct{}{}
}

// wake grants queued requests in order until one does not fit.
func (lm *LockManager) wake(key Key, e *lockEntry) {
	for len(e.waiters) > 0 {
		w := e.waiters[0]
		if !compatibleWithHolders(e, w.owner, w.mode) {
			break
		}
		e.waiters = e.waiters[1:]
		delete(lm.waiting, w.owner)
		if w.record {
			lm.record(e, w.owner, key, w.mode)
		}
		w.granted = true
		close(w.ready)
	}
	if len(e.holders) == 0 && len(e.waiters) == 0 {
		delete(lm.locks, key)
	}
}

func (lm *LockManager) dropWaiter(key Key, e *lockEntry, w *waiter) {
	for i, q := range e.waiters {
		if q == w {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			break
		}
	}
	delete(lm.waiting, w.owner)
	// requests queued behind the dropped one may fit now
	lm.wake(key, e)
}

// LockRow locks a base-table row.
func (lm *LockManager) LockRow(owner Owner, containerID uint32, row types.RowPointer, mode Mode, wait bool, duration Duration) (bool, error) {
	return lm.Lock(owner, RowKey(containerID, row), mode, wait, duration)
}

// LockTable locks a whole table for the rest of the transaction.
func (lm *LockManager) LockTable(owner Owner, containerID uint32, mode Mode, wait bool) (bool, error) {
	return lm.Lock(owner, TableKey(containerID), mode, wait, DurationCommit)
}

// UnlockAfterRead drops a shared row lock taken by a read-committed scan
// once the scan has moved past the row. Locks of other modes are kept.
func (lm *LockManager) UnlockAfterRead(owner Owner, containerID uint32, row types.RowPointer) {
	lm.Unlock(owner, RowKey(containerID, row), ModeSharedReadCommitted)
}
