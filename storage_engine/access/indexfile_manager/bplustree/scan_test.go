package bplus

import (
	"testing"
	"time"

	lockmgr "DaemonIndex/storage_engine/lock_manager"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
)

func keys(from, to, step int64) []types.Row {
	var rows []types.Row
	for k := from; k <= to; k += step {
		rows = append(rows, keyRow(k))
	}
	return rows
}

func TestForwardScanRanges(t *testing.T) {
	e := newTestTree(t, intSchema(2))
	e.insertCommitted(t, keys(1, 9, 1)...)

	key := func(k int64) types.Row { return types.Row{types.IntValue(k)} }
	tests := []struct {
		name string
		spec ScanSpec
		want []int64
	}{
		{"all", ScanSpec{}, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"from 3", ScanSpec{StartKey: key(3)}, []int64{3, 4, 5, 6, 7, 8, 9}},
		{"after 3", ScanSpec{StartKey: key(3), StartOp: types.OpGreaterThan}, []int64{4, 5, 6, 7, 8, 9}},
		{"through 5", ScanSpec{StopKey: key(5)}, []int64{1, 2, 3, 4, 5}},
		{"before 5", ScanSpec{StopKey: key(5), StopOp: types.OpGreaterOrEquals}, []int64{1, 2, 3, 4}},
		{"3 to 5", ScanSpec{StartKey: key(3), StopKey: key(5)}, []int64{3, 4, 5}},
		{"equal 7", ScanSpec{StartKey: key(7), StopKey: key(7)}, []int64{7}},
		{"missing start", ScanSpec{StartKey: key(20)}, nil},
		{"empty range", ScanSpec{StartKey: key(6), StopKey: key(4)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.scanKeys(t, tt.spec); !sameKeys(got, tt.want...) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
	e.assertNoLatches(t)
}

func TestForwardScanEmptyTree(t *testing.T) {
	e := newTestTree(t, intSchema(0))
	if got := e.scanKeys(t, ScanSpec{}); len(got) != 0 {
		t.Fatalf("expected nothing, got %v", got)
	}
	e.assertNoLatches(t)
}

func TestScanQualifiers(t *testing.T) {
	e := newTestTree(t, intSchema(3))
	e.insertCommitted(t, keys(1, 9, 1)...)

	quals := Qualifiers{
		{{ColumnID: 0, Operator: types.OpGreaterThan, Value: types.IntValue(2)}},
		{
			{ColumnID: 0, Operator: types.OpEquals, Value: types.IntValue(3)},
			{ColumnID: 0, Operator: types.OpGreaterOrEquals, Value: types.IntValue(8)},
		},
	}
	if got := e.scanKeys(t, ScanSpec{Qualifiers: quals}); !sameKeys(got, 3, 8, 9) {
		t.Fatalf("got %v", got)
	}

	tx := e.begin(t, txn.ReadCommitted)
	defer e.commit(t, tx)
	s, err := e.tree.OpenScan(tx, LockRecord, 0, ScanSpec{Qualifiers: quals})
	if err != nil {
		t.Fatalf("Failed to open scan: %v", err)
	}
	defer s.Close()
	for {
		ok, err := s.Next()
		if err != nil {
			t.Fatalf("Failed to fetch: %v", err)
		}
		if !ok {
			break
		}
	}
	info := s.Info()
	if info.RowsVisited != 9 || info.RowsQualified != 3 {
		t.Fatalf("unexpected scan info: %s", info)
	}
}

func TestScanSkipsDeletedRows(t *testing.T) {
	e := newTestTree(t, intSchema(3))
	e.insertCommitted(t, keys(1, 9, 1)...)
	e.deleteCommitted(t, keyRow(2), keyRow(5), keyRow(9))

	if got := e.scanKeys(t, ScanSpec{}); !sameKeys(got, 1, 3, 4, 6, 7, 8) {
		t.Fatalf("got %v", got)
	}
}

func TestScanFetchNextGroup(t *testing.T) {
	e := newTestTree(t, intSchema(2))
	e.insertCommitted(t, keys(1, 5, 1)...)

	tx := e.begin(t, txn.ReadCommitted)
	defer e.commit(t, tx)
	s, err := e.tree.OpenScan(tx, LockRecord, 0, ScanSpec{})
	if err != nil {
		t.Fatalf("Failed to open scan: %v", err)
	}
	defer s.Close()

	rows := make([]types.Row, 3)
	locs := make([]types.RowPointer, 3)
	n, err := s.FetchNextGroup(rows, locs)
	if err != nil {
		t.Fatalf("Failed to fetch group: %v", err)
	}
	if n != 3 || rows[2][0].I != 3 || locs[2] != loc(3) {
		t.Fatalf("first group: n=%d rows=%v locs=%v", n, rows, locs)
	}
	n, err = s.FetchNextGroup(rows, locs)
	if err != nil {
		t.Fatalf("Failed to fetch group: %v", err)
	}
	if n != 2 || rows[0][0].I != 4 || rows[1][0].I != 5 {
		t.Fatalf("second group: n=%d rows=%v", n, rows[:n])
	}
	e.assertNoLatches(t)
}

func TestScanRepositionsAfterConcurrentChanges(t *testing.T) {
	e := newTestTree(t, intSchema(3))
	e.insertCommitted(t, keys(10, 100, 10)...)

	reader := e.begin(t, txn.ReadCommitted)
	s, err := e.tree.OpenScan(reader, LockRecord, 0, ScanSpec{})
	if err != nil {
		t.Fatalf("Failed to open scan: %v", err)
	}
	defer s.Close()

	var got []int64
	row := e.tree.Conglomerate().TemplateRow()
	next := func() bool {
		ok, err := s.FetchNext(row)
		if err != nil {
			t.Fatalf("Failed to fetch: %v", err)
		}
		if ok {
			got = append(got, row[0].I)
		}
		return ok
	}
	for i := 0; i < 3; i++ {
		next()
	}
	e.assertNoLatches(t)

	// rows move between pages while the scan holds nothing
	writer := e.begin(t, txn.ReadCommitted)
	c := e.controller(t, writer)
	if _, err := c.Delete(keyRow(40)); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	for _, k := range []int64{35, 36, 15, 12, 14, 16} {
		if _, err := c.Insert(keyRow(k)); err != nil {
			t.Fatalf("Failed to insert %d: %v", k, err)
		}
	}
	e.commit(t, writer)
	e.tm.WaitForPostCommit()

	for next() {
	}
	e.commit(t, reader)

	if !sameKeys(got, 10, 20, 30, 35, 36, 50, 60, 70, 80, 90, 100) {
		t.Fatalf("got %v", got)
	}
	e.check(t)
	e.assertNoLatches(t)
}

func TestScanStartWaitsForPreviousKeyLock(t *testing.T) {
	e := newTestTree(t, intSchema(2))
	e.insertCommitted(t, keys(1, 6, 1)...)

	blocker := e.begin(t, txn.Serializable)
	key := lockmgr.PreviousToFirstKey(testBaseFileID)
	if ok, err := e.tm.Locks().Lock(blocker.Owner(), key, lockmgr.ModeExclusive, false, lockmgr.DurationCommit); err != nil || !ok {
		t.Fatalf("Failed to lock the previous key: ok=%v err=%v", ok, err)
	}
	done := make(chan error, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		done <- e.tm.Commit(blocker)
	}()

	tx := e.begin(t, txn.Serializable)
	s, err := e.tree.OpenScan(tx, LockRecord, 0, ScanSpec{})
	if err != nil {
		t.Fatalf("Failed to open scan: %v", err)
	}
	var got []int64
	row := e.tree.Conglomerate().TemplateRow()
	for {
		ok, err := s.FetchNext(row)
		if err != nil {
			t.Fatalf("Failed to fetch: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, row[0].I)
	}
	s.Close()
	e.commit(t, tx)
	if err := <-done; err != nil {
		t.Fatalf("Failed to commit blocker: %v", err)
	}

	if !sameKeys(got, 1, 2, 3, 4, 5, 6) {
		t.Fatalf("got %v", got)
	}
	if e.tree.Stats().Restarts == 0 {
		t.Fatal("expected the scan start to wait and restart")
	}
	e.assertNoLatches(t)
}

func TestScanCurrentRowDeletedUnderneath(t *testing.T) {
	e := newTestTree(t, intSchema(0))
	e.insertCommitted(t, keys(1, 3, 1)...)

	reader := e.begin(t, txn.ReadUncommitted)
	s, err := e.tree.OpenScan(reader, LockRecord, 0, ScanSpec{})
	if err != nil {
		t.Fatalf("Failed to open scan: %v", err)
	}
	defer s.Close()

	row := e.tree.Conglomerate().TemplateRow()
	if ok, err := s.FetchNext(row); err != nil || !ok {
		t.Fatalf("Failed to fetch: %v", err)
	}
	if ok, err := s.FetchNext(row); err != nil || !ok || row[0].I != 2 {
		t.Fatalf("Failed to fetch 2: %v %s", err, row)
	}
	if err := s.Fetch(row); err != nil {
		t.Fatalf("Failed to refetch current row: %v", err)
	}

	e.deleteCommitted(t, keyRow(2))

	deleted, err := s.IsCurrentPositionDeleted()
	if err != nil {
		t.Fatalf("Failed to check position: %v", err)
	}
	if !deleted {
		t.Fatal("current row should read as deleted")
	}
	if err := s.Fetch(row); !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("fetch of deleted row: got %v", err)
	}
	if ok, err := s.FetchNext(row); err != nil || !ok || row[0].I != 3 {
		t.Fatalf("expected 3 after the deleted row: %v %s", err, row)
	}
	e.commit(t, reader)
	e.assertNoLatches(t)
}

func TestScanReturnsResurrectedRow(t *testing.T) {
	for _, checkFirst := range []bool{false, true} {
		name := "next"
		if checkFirst {
			name = "after deleted check"
		}
		t.Run(name, func(t *testing.T) {
			schema := intSchema(0)
			schema.Unique = true
			e := newTestTree(t, schema)
			e.insertCommitted(t, keys(1, 3, 1)...)

			reader := e.begin(t, txn.ReadUncommitted)
			s, err := e.tree.OpenScan(reader, LockRecord, 0, ScanSpec{})
			if err != nil {
				t.Fatalf("Failed to open scan: %v", err)
			}
			defer s.Close()

			row := e.tree.Conglomerate().TemplateRow()
			for i := 0; i < 2; i++ {
				if ok, err := s.FetchNext(row); err != nil || !ok {
					t.Fatalf("Failed to fetch: %v", err)
				}
			}

			// key 2 comes back as another base row in the same slot
			e.deleteCommitted(t, keyRow(2))
			e.insertCommitted(t, types.Row{types.IntValue(2), types.PointerValue(loc(20))})
			if n := e.tree.Stats().Undeletes; n != 1 {
				t.Fatalf("expected the row resurrected, %d undeletes", n)
			}

			if checkFirst {
				deleted, err := s.IsCurrentPositionDeleted()
				if err != nil {
					t.Fatalf("Failed to check position: %v", err)
				}
				if !deleted {
					t.Fatal("the row the scan returned is gone")
				}
			}
			if ok, err := s.FetchNext(row); err != nil || !ok {
				t.Fatalf("Failed to fetch the resurrected row: %v", err)
			}
			if row[0].I != 2 || row[1].P != loc(20) {
				t.Fatalf("expected key 2 at %s, got %s", loc(20), row)
			}
			if ok, err := s.FetchNext(row); err != nil || !ok || row[0].I != 3 {
				t.Fatalf("expected 3 next: %v %s", err, row)
			}
			e.commit(t, reader)
			e.assertNoLatches(t)
		})
	}
}

func TestScanDeleteForUpdate(t *testing.T) {
	e := newTestTree(t, intSchema(2))
	e.insertCommitted(t, keys(1, 8, 1)...)

	tx := e.begin(t, txn.Serializable)
	s, err := e.tree.OpenScan(tx, LockRecord, OpenForUpdate, ScanSpec{})
	if err != nil {
		t.Fatalf("Failed to open scan: %v", err)
	}
	row := e.tree.Conglomerate().TemplateRow()
	for {
		ok, err := s.FetchNext(row)
		if err != nil {
			t.Fatalf("Failed to fetch: %v", err)
		}
		if !ok {
			break
		}
		if row[0].I%2 == 0 {
			deleted, err := s.Delete()
			if err != nil {
				t.Fatalf("Failed to delete %d: %v", row[0].I, err)
			}
			if !deleted {
				t.Fatalf("row %d was not deleted", row[0].I)
			}
		}
	}
	if s.Info().RowsDeleted != 4 {
		t.Fatalf("expected 4 deletes, got %s", s.Info())
	}
	s.Close()
	e.commit(t, tx)

	if got := e.scanKeys(t, ScanSpec{}); !sameKeys(got, 1, 3, 5, 7) {
		t.Fatalf("got %v", got)
	}
	e.assertNoLatches(t)
}

func TestScanDeleteNeedsUpdateMode(t *testing.T) {
	e := newTestTree(t, intSchema(0))
	e.insertCommitted(t, keyRow(1))

	tx := e.begin(t, txn.ReadCommitted)
	defer e.commit(t, tx)
	s, err := e.tree.OpenScan(tx, LockRecord, 0, ScanSpec{})
	if err != nil {
		t.Fatalf("Failed to open scan: %v", err)
	}
	defer s.Close()

	if _, err := s.Delete(); !errors.Is(err, ErrScanNotPositioned) {
		t.Fatalf("delete before fetch: got %v", err)
	}
	if ok, err := s.Next(); err != nil || !ok {
		t.Fatalf("Failed to fetch: %v", err)
	}
	if _, err := s.Delete(); !errors.Is(err, ErrNotForUpdate) {
		t.Fatalf("delete on read-only scan: got %v", err)
	}
}

func TestHeldScanSurvivesCommit(t *testing.T) {
	e := newTestTree(t, intSchema(2))
	e.insertCommitted(t, keys(1, 5, 1)...)

	tx := e.begin(t, txn.ReadCommitted)
	s, err := e.tree.OpenScan(tx, LockRecord, OpenHoldCursor, ScanSpec{})
	if err != nil {
		t.Fatalf("Failed to open scan: %v", err)
	}
	defer s.Close()

	row := e.tree.Conglomerate().TemplateRow()
	for i := 0; i < 2; i++ {
		if ok, err := s.FetchNext(row); err != nil || !ok {
			t.Fatalf("Failed to fetch: %v", err)
		}
	}
	closed, err := s.CloseForEndTransaction(false)
	if err != nil {
		t.Fatalf("Failed to end transaction for scan: %v", err)
	}
	if closed {
		t.Fatal("held scan was closed")
	}
	e.commit(t, tx)

	if _, err := s.Next(); err == nil {
		t.Fatal("held scan should need resuming")
	}

	tx = e.begin(t, txn.ReadCommitted)
	if err := s.ResumeInTransaction(tx, LockRecord); err != nil {
		t.Fatalf("Failed to resume: %v", err)
	}
	var rest []int64
	for {
		ok, err := s.FetchNext(row)
		if err != nil {
			t.Fatalf("Failed to fetch: %v", err)
		}
		if !ok {
			break
		}
		rest = append(rest, row[0].I)
	}
	e.commit(t, tx)
	if !sameKeys(rest, 3, 4, 5) {
		t.Fatalf("got %v after resume", rest)
	}
}

func TestReopenScan(t *testing.T) {
	e := newTestTree(t, intSchema(0))
	e.insertCommitted(t, keys(1, 5, 1)...)

	tx := e.begin(t, txn.ReadCommitted)
	defer e.commit(t, tx)
	s, err := e.tree.OpenScan(tx, LockRecord, 0, ScanSpec{StartKey: types.Row{types.IntValue(4)}})
	if err != nil {
		t.Fatalf("Failed to open scan: %v", err)
	}
	defer s.Close()

	row := e.tree.Conglomerate().TemplateRow()
	if ok, err := s.FetchNext(row); err != nil || !ok || row[0].I != 4 {
		t.Fatalf("first open: %v %s", err, row)
	}
	if err := s.ReopenScan(ScanSpec{StopKey: types.Row{types.IntValue(1)}}); err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	if ok, err := s.FetchNext(row); err != nil || !ok || row[0].I != 1 {
		t.Fatalf("after reopen: %v %s", err, row)
	}
	if ok, err := s.FetchNext(row); err != nil || ok {
		t.Fatalf("expected end of range: %v %v", ok, err)
	}
	s.Close()
	if _, err := s.Next(); !errors.Is(err, ErrScanClosed) {
		t.Fatalf("closed scan: got %v", err)
	}
}

func TestFetchMax(t *testing.T) {
	e := newTestTree(t, intSchema(2))

	tx := e.begin(t, txn.ReadCommitted)
	if _, ok, err := e.tree.FetchMax(tx, LockRecord, 0); err != nil || ok {
		t.Fatalf("max of empty tree: %v %v", ok, err)
	}
	e.commit(t, tx)

	e.insertCommitted(t, keys(1, 6, 1)...)
	// NULL sorts after every value but is not a max
	e.insertCommitted(t, types.Row{types.NullValue(types.KindInt), types.PointerValue(loc(100))})
	e.deleteCommitted(t, keyRow(6))

	tx = e.begin(t, txn.ReadCommitted)
	row, ok, err := e.tree.FetchMax(tx, LockRecord, 0)
	if err != nil {
		t.Fatalf("Failed to fetch max: %v", err)
	}
	if !ok || row[0].I != 5 {
		t.Fatalf("expected max 5, got %v %s", ok, row)
	}
	e.commit(t, tx)
	e.assertNoLatches(t)
}

func TestMaxScanWithQualifiers(t *testing.T) {
	e := newTestTree(t, intSchema(2))
	e.insertCommitted(t, keys(1, 9, 1)...)

	tx := e.begin(t, txn.ReadCommitted)
	defer e.commit(t, tx)
	quals := Qualifiers{{{ColumnID: 0, Operator: types.OpLessThan, Value: types.IntValue(4)}}}
	s, err := e.tree.OpenMaxScan(tx, LockRecord, 0, quals)
	if err != nil {
		t.Fatalf("Failed to open max scan: %v", err)
	}
	defer s.Close()

	row := e.tree.Conglomerate().TemplateRow()
	ok, err := s.FetchMax(row)
	if err != nil || !ok {
		t.Fatalf("Failed to fetch max: %v", err)
	}
	if row[0].I != 3 {
		t.Fatalf("expected 3, got %s", row)
	}
	rowLoc, err := s.FetchLocation()
	if err != nil || rowLoc != loc(3) {
		t.Fatalf("location: %s %v", rowLoc, err)
	}
	if _, err := s.Next(); err == nil {
		t.Fatal("Next on a max scan should fail")
	}
	// a max scan returns one row
	if ok, err := s.FetchMax(row); err != nil || ok {
		t.Fatalf("second FetchMax: %v %v", ok, err)
	}
	e.assertNoLatches(t)
}

func TestMaxScanAllDeleted(t *testing.T) {
	e := newTestTree(t, intSchema(2))
	e.insertCommitted(t, keys(1, 4, 1)...)

	tx := e.begin(t, txn.Serializable)
	c := e.controller(t, tx)
	for k := int64(1); k <= 4; k++ {
		if _, err := c.Delete(keyRow(k)); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
	}
	if _, ok, err := e.tree.FetchMax(tx, LockRecord, 0); err != nil || ok {
		t.Fatalf("max over deleted rows: %v %v", ok, err)
	}
	e.commit(t, tx)
	e.assertNoLatches(t)
}
