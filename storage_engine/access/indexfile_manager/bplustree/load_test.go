package bplus

import (
	"testing"

	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
)

func TestLoadBuildsTree(t *testing.T) {
	e := newTestTree(t, intSchema(4))

	tx := e.begin(t, txn.Serializable)
	n, err := e.tree.Load(tx, NewSliceRowSource(keys(1, 100, 1)))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	e.commit(t, tx)
	if n != 100 {
		t.Fatalf("loaded %d rows", n)
	}
	if n := len(e.tm.ActiveTransactions()); n != 0 {
		t.Fatalf("%d transactions left active after the load", n)
	}

	report := e.check(t)
	if report.Rows != 100 {
		t.Fatalf("expected 100 rows, got %s", report)
	}
	// every leaf but the last keeps all rows except the one moved out
	if report.LeafPages < 25 || report.LeafPages > 34 {
		t.Fatalf("unexpected leaf count %d", report.LeafPages)
	}
	if report.Height < 3 {
		t.Fatalf("expected at least 3 levels, got %d", report.Height)
	}
	if e.tree.Stats().RowsLoaded != 100 {
		t.Fatalf("stats: %+v", e.tree.Stats())
	}

	got := e.scanKeys(t, ScanSpec{})
	if len(got) != 100 || got[0] != 1 || got[99] != 100 {
		t.Fatalf("scan after load returned %d rows", len(got))
	}

	// the loaded tree takes ordinary inserts
	e.insertCommitted(t, keyRow(1000), types.Row{types.IntValue(50), types.PointerValue(loc(500))})
	if report := e.check(t); report.Rows != 102 {
		t.Fatalf("expected 102 rows, got %s", report)
	}
	e.assertNoLatches(t)
}

func TestLoadNeedsEmptyTree(t *testing.T) {
	e := newTestTree(t, intSchema(0))
	e.insertCommitted(t, keyRow(1))

	tx := e.begin(t, txn.Serializable)
	defer e.commit(t, tx)
	_, err := e.tree.Load(tx, NewSliceRowSource(keys(2, 3, 1)))
	if !errors.Is(err, ErrLoadNotEmpty) {
		t.Fatalf("expected ErrLoadNotEmpty, got %v", err)
	}
	e.assertNoLatches(t)
}

func TestLoadOutOfOrderIsUndone(t *testing.T) {
	e := newTestTree(t, intSchema(2))

	rows := append(keys(1, 10, 1), keyRow(5))
	tx := e.begin(t, txn.Serializable)
	_, err := e.tree.Load(tx, NewSliceRowSource(rows))
	if !errors.Is(err, ErrLoadOutOfOrder) {
		t.Fatalf("expected ErrLoadOutOfOrder, got %v", err)
	}
	e.commit(t, tx)

	report := e.check(t)
	if report.Rows != 0 || report.Height != 1 {
		t.Fatalf("failed load left %s", report)
	}
	e.insertCommitted(t, keyRow(7))
	if got := e.scanKeys(t, ScanSpec{}); !sameKeys(got, 7) {
		t.Fatalf("got %v", got)
	}
	e.assertNoLatches(t)
}

type failingSource struct {
	n   int
	err error
}

func (s *failingSource) Next() (types.Row, bool, error) {
	if s.n == 0 {
		return nil, false, s.err
	}
	s.n--
	return keyRow(int64(100 - s.n)), true, nil
}

func TestLoadSourceError(t *testing.T) {
	e := newTestTree(t, intSchema(2))
	boom := errors.New("source broke")

	tx := e.begin(t, txn.Serializable)
	_, err := e.tree.Load(tx, &failingSource{n: 7, err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the source error, got %v", err)
	}
	e.commit(t, tx)

	if report := e.check(t); report.Rows != 0 {
		t.Fatalf("failed load left %s", report)
	}
}
