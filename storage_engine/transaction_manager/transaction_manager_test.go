package txn

import (
	lockmgr "DaemonIndex/storage_engine/lock_manager"
	"DaemonIndex/storage_engine/page"
	"DaemonIndex/types"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

type memLog struct {
	mu    sync.Mutex
	ops   []types.OperationType
	syncs int
}

func (l *memLog) AppendOperation(op *types.Operation) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op.Type)
	return uint64(len(l.ops)), nil
}

func (l *memLog) Sync() error {
	l.mu.Lock()
	l.syncs++
	l.mu.Unlock()
	return nil
}

type countingReleaser struct{ n *int32 }

func (r countingReleaser) Release() { atomic.AddInt32(r.n, 1) }

type recordingUndo struct{ seen []UndoKind }

func (u *recordingUndo) Undo(tx *Transaction, rec UndoRecord) error {
	u.seen = append(u.seen, rec.Kind)
	return nil
}

func newTestManager(t *testing.T, log *memLog) *TxnManager {
	t.Helper()
	lm := lockmgr.NewLockManager(time.Second, true, nil)
	var w LogWriter
	if log != nil {
		w = log
	}
	tm, err := NewTxnManager(lm, w, Options{SyncOnCommit: true, Workers: 2})
	if err != nil {
		t.Fatalf("Failed to create txn manager: %v", err)
	}
	t.Cleanup(tm.Close)
	return tm
}

func TestCommitReleasesLocksAndForcesLog(t *testing.T) {
	log := &memLog{}
	tm := newTestManager(t, log)

	tx, err := tm.Begin(Serializable)
	if err != nil {
		t.Fatalf("Failed to begin: %v", err)
	}
	row := types.RowPointer{FileID: 1, PageNumber: 2, SlotIndex: 3}
	if ok, _ := tm.Locks().LockRow(tx.Owner(), 1, row, lockmgr.ModeExclusive, false, lockmgr.DurationCommit); !ok {
		t.Fatal("lock refused")
	}
	var released int32
	tx.HoldUntilEnd(countingReleaser{&released})

	if err := tm.Commit(tx); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	if released != 1 {
		t.Fatalf("held resource released %d times", released)
	}
	if tm.Locks().HeldCount(tx.Owner()) != 0 {
		t.Fatal("locks survive commit")
	}
	if log.syncs != 1 {
		t.Fatalf("expected one log force, got %d", log.syncs)
	}
	if tm.IsActive(tx.ID) {
		t.Fatal("committed transaction still active")
	}
	if err := tm.Commit(tx); !errors.Is(err, ErrTxnNotActive) {
		t.Fatalf("second commit should fail, got %v", err)
	}
}

func TestAbortRunsUndoInReverse(t *testing.T) {
	tm := newTestManager(t, nil)
	undo := &recordingUndo{}
	tm.RegisterUndoHandler(5, undo)

	tx, _ := tm.Begin(Serializable)
	tx.RecordUndo(UndoRecord{Kind: UndoInsert, FileID: 5})
	tx.RecordUndo(UndoRecord{Kind: UndoDelete, FileID: 5})
	tx.RecordUndo(UndoRecord{Kind: UndoResurrect, FileID: 5})

	if err := tm.Abort(tx); err != nil {
		t.Fatalf("Failed to abort: %v", err)
	}
	want := []UndoKind{UndoResurrect, UndoDelete, UndoInsert}
	if len(undo.seen) != len(want) {
		t.Fatalf("undo ran %d records, want %d", len(undo.seen), len(want))
	}
	for i := range want {
		if undo.seen[i] != want[i] {
			t.Fatalf("undo order: got %v want %v", undo.seen, want)
		}
	}
	if tx.State != TxnAborted {
		t.Fatalf("state after abort: %s", tx.State)
	}
}

func TestInternalAbortRestoresPages(t *testing.T) {
	tm := newTestManager(t, nil)
	user, _ := tm.Begin(Serializable)
	itx, err := tm.BeginInternal(user)
	if err != nil {
		t.Fatalf("Failed to begin internal: %v", err)
	}
	if itx.Owner() == user.Owner() {
		t.Fatal("internal transaction shares the parent's lock space")
	}

	pg := &page.Page{ID: 9, Data: make([]byte, page.PageSize)}
	pg.Data[100] = 1
	pg.Latch()
	itx.CaptureBeforeImage(pg)
	pg.Data[100] = 2
	itx.CaptureBeforeImage(pg) // second capture keeps the first image
	pg.Data[100] = 3
	v := pg.Version()

	if err := tm.Abort(itx); err != nil {
		t.Fatalf("Failed to abort: %v", err)
	}
	pg.Unlatch()
	if pg.Data[100] != 1 {
		t.Fatalf("page not restored, byte = %d", pg.Data[100])
	}
	if !pg.IsRepositionNeeded(v) {
		t.Fatal("restored page should force cursors to search again")
	}
}

func TestInternalCommitKeepsTransactionUsable(t *testing.T) {
	tm := newTestManager(t, nil)
	user, _ := tm.Begin(Serializable)
	itx, _ := tm.BeginInternal(user)

	pg := &page.Page{ID: 3, Data: make([]byte, page.PageSize)}
	itx.CaptureBeforeImage(pg)
	pg.Data[40] = 8
	if err := tm.Commit(itx); err != nil {
		t.Fatalf("Failed to commit internal: %v", err)
	}
	if !itx.IsActive() {
		t.Fatal("internal transaction ended by commit")
	}

	// work after the commit is rolled back by Destroy, work before is kept
	itx.CaptureBeforeImage(pg)
	pg.Data[41] = 9
	if err := tm.Destroy(itx); err != nil {
		t.Fatalf("Failed to destroy: %v", err)
	}
	if pg.Data[40] != 8 || pg.Data[41] != 0 {
		t.Fatalf("unexpected page bytes %d %d", pg.Data[40], pg.Data[41])
	}
}

func TestPostCommitWorkRunsOnlyAfterCommit(t *testing.T) {
	tm := newTestManager(t, nil)
	var ran int32
	work := PostCommitWork{Name: "count", Run: func() error {
		atomic.AddInt32(&ran, 1)
		return nil
	}}

	aborted, _ := tm.Begin(Serializable)
	aborted.AddPostCommitWork(work)
	tm.Abort(aborted)

	committed, _ := tm.Begin(Serializable)
	committed.AddPostCommitWork(work)
	committed.AddPostCommitWork(work)
	if err := tm.Commit(committed); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	tm.WaitForPostCommit()

	if got := atomic.LoadInt32(&ran); got != 2 {
		t.Fatalf("post-commit work ran %d times, want 2", got)
	}
}
