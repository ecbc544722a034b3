package wal_manager

import (
	"os"
	"path/filepath"
	"testing"

	"DaemonIndex/types"
)

func TestAppendSyncReplay(t *testing.T) {
	dir := t.TempDir()
	wal, err := OpenWAL(dir, nil)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}

	for i := 0; i < 5; i++ {
		lsn, err := wal.AppendOperation(&types.Operation{Type: types.OpIndexInsert, TxnID: 9, PageNo: int64(i)})
		if err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
		if lsn != uint64(i+1) {
			t.Errorf("LSN mismatch: expected %d, got %d", i+1, lsn)
		}
	}
	if wal.GetFlushedLSN() != 0 {
		t.Errorf("expected nothing flushed before Sync, got %d", wal.GetFlushedLSN())
	}
	if err := wal.Sync(); err != nil {
		t.Fatalf("Failed to sync: %v", err)
	}
	if wal.GetFlushedLSN() != 5 {
		t.Errorf("flushed LSN mismatch: expected 5, got %d", wal.GetFlushedLSN())
	}
	if err := wal.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	reopened, err := OpenWAL(dir, nil)
	if err != nil {
		t.Fatalf("Failed to reopen WAL: %v", err)
	}
	defer reopened.Close()
	if reopened.GetCurrentLSN() != 5 {
		t.Errorf("recovered LSN mismatch: expected 5, got %d", reopened.GetCurrentLSN())
	}

	var pages []int64
	err = reopened.ReplayFromLSN(3, func(lsn uint64, op *types.Operation) error {
		pages = append(pages, op.PageNo)
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to replay: %v", err)
	}
	if len(pages) != 3 || pages[0] != 2 || pages[2] != 4 {
		t.Errorf("unexpected replay: %v", pages)
	}
}

func countRecords(t *testing.T, wal *WALManager) int {
	t.Helper()
	count := 0
	err := wal.ReplayFromLSN(0, func(uint64, *types.Operation) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to replay: %v", err)
	}
	return count
}

func TestTornTailTruncated(t *testing.T) {
	dir := t.TempDir()
	wal, err := OpenWAL(dir, nil)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	if _, err := wal.AppendOperation(&types.Operation{Type: types.OpTxnCommit, TxnID: 1}); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	wal.Close()

	// half a header at the end of the segment
	path := filepath.Join(dir, segmentFileName(0))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("Failed to open segment: %v", err)
	}
	f.Write([]byte{0, 0, 0, 0, 0, 0, 0})
	f.Close()

	reopened, err := OpenWAL(dir, nil)
	if err != nil {
		t.Fatalf("Failed to reopen WAL: %v", err)
	}
	if n := countRecords(t, reopened); n != 1 {
		t.Fatalf("expected 1 record, got %d", n)
	}

	// records appended after recovery follow the last valid one
	lsn, err := reopened.AppendOperation(&types.Operation{Type: types.OpTxnBegin, TxnID: 2})
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if lsn != 2 {
		t.Errorf("LSN mismatch: expected 2, got %d", lsn)
	}
	reopened.Close()

	again, err := OpenWAL(dir, nil)
	if err != nil {
		t.Fatalf("Failed to reopen WAL: %v", err)
	}
	defer again.Close()
	if n := countRecords(t, again); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}

func TestSegmentFileNames(t *testing.T) {
	name := segmentFileName(26)
	if name != "wal_000000000000001a.log" {
		t.Fatalf("unexpected name %s", name)
	}
	if id, ok := parseSegmentFileName(name); !ok || id != 26 {
		t.Fatalf("parse %s: %d %v", name, id, ok)
	}
	for _, bad := range []string{"wal_zz.log", "segment_01.log", "wal_01.txt"} {
		if _, ok := parseSegmentFileName(bad); ok {
			t.Errorf("%s parsed as a segment", bad)
		}
	}
}
