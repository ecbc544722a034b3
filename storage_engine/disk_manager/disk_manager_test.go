package diskmanager

import (
	"DaemonIndex/types"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
)

func openTestFile(t *testing.T, opts Options) (*DiskManager, string) {
	t.Helper()
	dm, err := NewDiskManager(opts)
	if err != nil {
		t.Fatalf("Failed to create disk manager: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.idx")
	if _, err := dm.OpenFileWithID(path, 3); err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	return dm, path
}

func TestWriteReadRoundTrip(t *testing.T) {
	dm, _ := openTestFile(t, Options{CacheBytes: 1 << 20})
	defer dm.CloseAll()

	id, err := dm.AllocatePage(3, types.PageTypeIndex)
	if err != nil {
		t.Fatalf("Failed to allocate page: %v", err)
	}
	if id != int64(3)<<32 {
		t.Errorf("global id mismatch: expected %d, got %d", int64(3)<<32, id)
	}

	pg := NewPage(id, 3, types.PageTypeIndex)
	copy(pg.Data[100:], []byte("hello index"))
	pg.LSN = 42
	pg.SetVersion(7)
	if err := dm.WritePage(pg); err != nil {
		t.Fatalf("Failed to write page: %v", err)
	}

	got, err := dm.ReadPage(id)
	if err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	if string(got.Data[100:111]) != "hello index" {
		t.Errorf("data mismatch: got %q", got.Data[100:111])
	}
	if got.LSN != 42 || got.Version() != 7 || got.PageType != types.PageTypeIndex {
		t.Errorf("header mismatch: lsn=%d version=%d type=%s", got.LSN, got.Version(), got.PageType)
	}
}

func TestChecksumMismatchDetected(t *testing.T) {
	dm, path := openTestFile(t, Options{})

	id, _ := dm.AllocatePage(3, types.PageTypeIndex)
	pg := NewPage(id, 3, types.PageTypeIndex)
	pg.Data[200] = 0xAB
	if err := dm.WritePage(pg); err != nil {
		t.Fatalf("Failed to write page: %v", err)
	}
	if err := dm.CloseAll(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// flip one byte behind the disk manager's back
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("Failed to open raw file: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xCD}, 200); err != nil {
		t.Fatalf("Failed to corrupt file: %v", err)
	}
	f.Close()

	dm2, err := NewDiskManager(Options{})
	if err != nil {
		t.Fatalf("Failed to create disk manager: %v", err)
	}
	defer dm2.CloseAll()
	if _, err := dm2.OpenFileWithID(path, 3); err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	if _, err := dm2.ReadPage(id); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected checksum mismatch, got %v", err)
	}
}

func TestExclusiveFileLock(t *testing.T) {
	dm, path := openTestFile(t, Options{LockFiles: true})
	defer dm.CloseAll()

	other, err := NewDiskManager(Options{LockFiles: true})
	if err != nil {
		t.Fatalf("Failed to create disk manager: %v", err)
	}
	defer other.CloseAll()
	if _, err := other.OpenFileWithID(path, 3); !errors.Is(err, ErrFileLocked) {
		t.Errorf("expected ErrFileLocked, got %v", err)
	}
}

func TestTruncateFile(t *testing.T) {
	dm, _ := openTestFile(t, Options{})
	defer dm.CloseAll()

	for i := 0; i < 4; i++ {
		id, _ := dm.AllocatePage(3, types.PageTypeIndex)
		if err := dm.WritePage(NewPage(id, 3, types.PageTypeIndex)); err != nil {
			t.Fatalf("Failed to write page: %v", err)
		}
	}
	if err := dm.TruncateFile(3, 1); err != nil {
		t.Fatalf("Failed to truncate: %v", err)
	}
	n, _ := dm.NumPages(3)
	if n != 1 {
		t.Errorf("page count mismatch: expected 1, got %d", n)
	}
	if _, err := dm.ReadPage(int64(3)<<32 | 2); err == nil {
		t.Errorf("expected truncated page to be unknown")
	}
	if dm.Stats().Writes != 4 {
		t.Errorf("writes mismatch: expected 4, got %d", dm.Stats().Writes)
	}
}
