package lockmgr

import (
	"DaemonIndex/types"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func rowKey(slot uint16) Key {
	return RowKey(7, types.RowPointer{FileID: 7, PageNumber: 1, SlotIndex: slot})
}

func TestSharedLocksCoexist(t *testing.T) {
	lm := NewLockManager(time.Second, true, nil)

	for _, o := range []Owner{1, 2, 3} {
		ok, err := lm.Lock(o, rowKey(1), ModeShared, false, DurationCommit)
		if err != nil || !ok {
			t.Fatalf("owner %d: expected grant, got ok=%v err=%v", o, ok, err)
		}
	}
	if ok, _ := lm.Lock(4, rowKey(1), ModeExclusive, false, DurationCommit); ok {
		t.Fatal("X must not be granted over S holders")
	}
	if s := lm.Stats(); s.Objects != 1 {
		t.Fatalf("expected 1 locked object, got %d", s.Objects)
	}
}

func TestNoWaitConflictReturnsFalse(t *testing.T) {
	lm := NewLockManager(time.Second, true, nil)

	if ok, _ := lm.Lock(1, rowKey(2), ModeExclusive, false, DurationCommit); !ok {
		t.Fatal("expected X grant")
	}
	ok, err := lm.Lock(2, rowKey(2), ModeShared, false, DurationCommit)
	if err != nil {
		t.Fatalf("NOWAIT conflict should not error: %v", err)
	}
	if ok {
		t.Fatal("S granted over X")
	}
	// reentrant for the holder
	if ok, _ := lm.Lock(1, rowKey(2), ModeShared, false, DurationCommit); !ok {
		t.Fatal("holder should be able to add S over its own X")
	}
}

func TestInstantDurationDoesNotRetain(t *testing.T) {
	lm := NewLockManager(time.Second, true, nil)

	ok, err := lm.Lock(1, rowKey(3), ModeInsertPrevKey, true, DurationInstant)
	if err != nil || !ok {
		t.Fatalf("instant lock failed: ok=%v err=%v", ok, err)
	}
	if _, held := lm.Holds(1, rowKey(3)); held {
		t.Fatal("instant lock must not be retained")
	}
	if ok, _ := lm.Lock(2, rowKey(3), ModeExclusive, false, DurationCommit); !ok {
		t.Fatal("X should be grantable after an instant lock")
	}
}

func TestWaiterWokenOnRelease(t *testing.T) {
	lm := NewLockManager(5*time.Second, true, nil)

	if ok, _ := lm.Lock(1, rowKey(4), ModeExclusive, false, DurationCommit); !ok {
		t.Fatal("expected X grant")
	}

	done := make(chan error, 1)
	go func() {
		_, err := lm.Lock(2, rowKey(4), ModeShared, true, DurationCommit)
		done <- err
	}()

	waitForWaiters(t, lm, 1)
	lm.ReleaseAll(1)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken")
	}
	if m, ok := lm.Holds(2, rowKey(4)); !ok || m != ModeShared {
		t.Fatalf("expected owner 2 to hold S, got %v %v", m, ok)
	}
}

func TestLockTimeout(t *testing.T) {
	lm := NewLockManager(30*time.Millisecond, true, nil)

	lm.Lock(1, rowKey(5), ModeExclusive, false, DurationCommit)
	_, err := lm.Lock(2, rowKey(5), ModeExclusive, true, DurationCommit)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if s := lm.Stats(); s.Timeouts != 1 || s.Waiters != 0 {
		t.Fatalf("unexpected stats after timeout: %+v", s)
	}
}

func TestDeadlockDetected(t *testing.T) {
	lm := NewLockManager(5*time.Second, true, nil)

	lm.Lock(1, rowKey(10), ModeExclusive, false, DurationCommit)
	lm.Lock(2, rowKey(11), ModeExclusive, false, DurationCommit)

	first := make(chan error, 1)
	go func() {
		_, err := lm.Lock(1, rowKey(11), ModeExclusive, true, DurationCommit)
		first <- err
	}()
	waitForWaiters(t, lm, 1)

	_, err := lm.Lock(2, rowKey(10), ModeExclusive, true, DurationCommit)
	if !errors.Is(err, ErrDeadlock) {
		t.Fatalf("expected deadlock, got %v", err)
	}

	// the victim gives up its locks and the survivor proceeds
	lm.ReleaseAll(2)
	if err := <-first; err != nil {
		t.Fatalf("survivor failed: %v", err)
	}
	if lm.Stats().Deadlocks != 1 {
		t.Fatal("deadlock counter not bumped")
	}
}

func TestFIFOOrderBlocksLaterCompatibleRequest(t *testing.T) {
	lm := NewLockManager(5*time.Second, false, nil)

	lm.Lock(1, rowKey(20), ModeShared, false, DurationCommit)
	go lm.Lock(2, rowKey(20), ModeExclusive, true, DurationCommit)
	waitForWaiters(t, lm, 1)

	// a new S request must queue behind the waiting X
	if ok, _ := lm.Lock(3, rowKey(20), ModeShared, false, DurationCommit); ok {
		t.Fatal("S jumped ahead of a queued X")
	}
	lm.ReleaseAll(1)
	waitForWaiters(t, lm, 0)
	if m, ok := lm.Holds(2, rowKey(20)); !ok || m != ModeExclusive {
		t.Fatal("queued X not granted after release")
	}
}

func TestTableIntentModes(t *testing.T) {
	lm := NewLockManager(time.Second, true, nil)
	tbl := TableKey(9)

	if ok, _ := lm.Lock(1, tbl, ModeIntentExclusive, false, DurationCommit); !ok {
		t.Fatal("IX refused")
	}
	if ok, _ := lm.Lock(2, tbl, ModeIntentExclusive, false, DurationCommit); !ok {
		t.Fatal("IX should coexist with IX")
	}
	if ok, _ := lm.Lock(3, tbl, ModeTableShared, false, DurationCommit); ok {
		t.Fatal("TS granted over IX")
	}
	if ok, _ := lm.Lock(3, tbl, ModeIntentShared, false, DurationCommit); !ok {
		t.Fatal("IS should coexist with IX")
	}
}

func TestInsertPrevKeyVersusReaders(t *testing.T) {
	lm := NewLockManager(time.Second, true, nil)

	if ok, _ := lm.Lock(1, rowKey(30), ModeSharedReadCommitted, false, DurationManual); !ok {
		t.Fatal("SR refused")
	}
	ok, err := lm.Lock(2, rowKey(30), ModeInsertPrevKey, false, DurationInstant)
	if err != nil || !ok {
		t.Fatalf("IP should be granted over a read-committed reader: ok=%v err=%v", ok, err)
	}
	if ok, _ := lm.Lock(3, rowKey(30), ModeExclusive, false, DurationCommit); ok {
		t.Fatal("X granted over SR")
	}

	if ok, _ := lm.Lock(1, rowKey(31), ModeShared, false, DurationCommit); !ok {
		t.Fatal("S refused")
	}
	if ok, _ := lm.Lock(2, rowKey(31), ModeInsertPrevKey, false, DurationInstant); ok {
		t.Fatal("IP granted over a repeatable reader")
	}

	lm.UnlockAfterRead(1, 7, types.RowPointer{FileID: 7, PageNumber: 1, SlotIndex: 30})
	if ok, _ := lm.Lock(3, rowKey(30), ModeExclusive, false, DurationCommit); !ok {
		t.Fatal("X refused after the read-committed lock was dropped")
	}
	if m, ok := lm.Holds(1, rowKey(31)); !ok || m != ModeShared {
		t.Fatalf("UnlockAfterRead must keep S, holds %v %v", m, ok)
	}
}

func TestUnlockManual(t *testing.T) {
	lm := NewLockManager(time.Second, true, nil)
	k := PreviousToFirstKey(3)

	lm.Lock(1, k, ModeShared, false, DurationManual)
	lm.Unlock(1, k, ModeShared)
	if lm.HeldCount(1) != 0 {
		t.Fatal("manual lock not released by Unlock")
	}
	if lm.Stats().Objects != 0 {
		t.Fatal("empty entry left behind")
	}
}

func waitForWaiters(t *testing.T, lm *LockManager, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if lm.Stats().Waiters == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d waiters", n)
}
