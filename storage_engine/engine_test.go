package storageengine

import (
	"testing"
	"time"

	"DaemonIndex/config"
	bplus "DaemonIndex/storage_engine/access/indexfile_manager/bplustree"
	"DaemonIndex/storage_engine/catalog"
	txn "DaemonIndex/storage_engine/transaction_manager"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.LockContainers = false
	cfg.Storage.PageCacheMB = 1
	cfg.BufferPool.Capacity = 32
	cfg.Locking.Timeout = time.Second
	cfg.BTree.MaxRowsPerPage = 4
	cfg.BTree.Debug = true
	return cfg
}

func openEngine(t *testing.T, cfg *config.Config, db string, create bool) *StorageEngine {
	t.Helper()
	se, err := NewStorageEngine(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if create {
		if err := se.CreateDatabase(db); err != nil {
			t.Fatalf("Failed to create database: %v", err)
		}
	}
	if err := se.UseDatabase(db); err != nil {
		t.Fatalf("Failed to use database: %v", err)
	}
	return se
}

func usersSchema() types.IndexSchema {
	return types.IndexSchema{
		IndexName: "users_age",
		BaseTable: "users",
		Columns: []types.ColumnDef{
			{Name: "age", Type: "INT"},
			{Name: "name", Type: "STRING"},
		},
	}
}

// autocommit runs fn in its own transaction.
func autocommit(t *testing.T, se *StorageEngine, fn func(tx *txn.Transaction) error) {
	t.Helper()
	tx, err := se.BeginTransaction(txn.ReadCommitted)
	if err != nil {
		t.Fatalf("Failed to begin: %v", err)
	}
	if err := fn(tx); err != nil {
		se.AbortTransaction(tx)
		t.Fatalf("statement failed: %v", err)
	}
	if err := se.CommitTransaction(tx); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
}

func scanAll(t *testing.T, se *StorageEngine, index string, req ScanRequest) []types.Row {
	t.Helper()
	var rows []types.Row
	autocommit(t, se, func(tx *txn.Transaction) error {
		var err error
		rows, _, err = se.Scan(tx, index, req)
		return err
	})
	return rows
}

func at(page uint32, slot uint16) *types.RowPointer {
	return &types.RowPointer{PageNumber: page, SlotIndex: slot}
}

func TestEngineIndexLifecycle(t *testing.T) {
	cfg := testConfig(t)
	se := openEngine(t, cfg, "shop", true)

	if _, err := se.CreateIndex(usersSchema()); err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}

	people := []struct {
		age  string
		name string
	}{{"31", "ann"}, {"25", "bob"}, {"40", "cid"}, {"25", "dan"}, {"52", "eve"}, {"19", "fay"}}
	autocommit(t, se, func(tx *txn.Transaction) error {
		for i, p := range people {
			res, err := se.Insert(tx, "users_age", KeyRow{Values: []string{p.age, p.name}, At: at(1, uint16(i))})
			if err != nil {
				return err
			}
			if res != bplus.InsertOK {
				return errors.Newf("insert of %s: %s", p.name, res)
			}
		}
		return nil
	})

	rows := scanAll(t, se, "users_age", ScanRequest{From: []string{"25"}, To: []string{"40"}, ToExclusive: true})
	if len(rows) != 3 || rows[0][1].S != "bob" || rows[1][1].S != "dan" || rows[2][1].S != "ann" {
		t.Fatalf("range scan returned %v", rows)
	}
	if got := rows[0][2].P; got.FileID == 0 || got.SlotIndex != 1 {
		t.Fatalf("row location not carried: %v", got)
	}

	rows = scanAll(t, se, "users_age", ScanRequest{Where: [][]Predicate{
		{{Column: "age", Op: types.OpGreaterThan, Value: "20"}},
		{{Column: "name", Op: types.OpEquals, Value: "eve"}, {Column: "name", Op: types.OpEquals, Value: "cid"}},
	}})
	if len(rows) != 2 || rows[0][1].S != "cid" || rows[1][1].S != "eve" {
		t.Fatalf("qualified scan returned %v", rows)
	}

	autocommit(t, se, func(tx *txn.Transaction) error {
		row, ok, err := se.Max(tx, "users_age", nil)
		if err != nil {
			return err
		}
		if !ok || row[1].S != "eve" {
			return errors.Newf("max returned %v", row)
		}
		return nil
	})

	// the same key at the same location is a duplicate
	autocommit(t, se, func(tx *txn.Transaction) error {
		res, err := se.Insert(tx, "users_age", KeyRow{Values: []string{"31", "ann"}, At: at(1, 0)})
		if err != nil {
			return err
		}
		if res != bplus.InsertDuplicate {
			return errors.Newf("expected a duplicate, got %s", res)
		}
		return nil
	})

	autocommit(t, se, func(tx *txn.Transaction) error {
		n, err := se.DeleteWhere(tx, "users_age", ScanRequest{To: []string{"25"}})
		if err != nil {
			return err
		}
		if n != 3 {
			return errors.Newf("deleted %d rows", n)
		}
		ok, err := se.Delete(tx, "users_age", KeyRow{Values: []string{"52", "eve"}, At: at(1, 4)})
		if err != nil || !ok {
			return errors.Newf("delete of eve: %v %v", ok, err)
		}
		return nil
	})
	if rows := scanAll(t, se, "users_age", ScanRequest{}); len(rows) != 2 {
		t.Fatalf("expected 2 rows after deletes, got %v", rows)
	}

	report, err := se.CheckIndex("users_age")
	if err != nil {
		t.Fatalf("Failed consistency check: %v", err)
	}
	if report.Rows-report.DeletedRows != 2 {
		t.Fatalf("check report %s", report)
	}
	if _, err := se.Stats(); err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if err := se.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// everything survives a reopen
	se = openEngine(t, cfg, "shop", false)
	defer se.Close()
	rows = scanAll(t, se, "users_age", ScanRequest{})
	if len(rows) != 2 || rows[0][1].S != "ann" || rows[1][1].S != "cid" {
		t.Fatalf("after reopen: %v", rows)
	}
	summary, err := se.ScanLog()
	if err != nil {
		t.Fatalf("Failed to scan log: %v", err)
	}
	if len(summary.Unfinished) != 0 {
		t.Fatalf("unexpected unfinished transactions %v", summary.Unfinished)
	}
}

func TestEngineRollback(t *testing.T) {
	se := openEngine(t, testConfig(t), "db", true)
	defer se.Close()
	if _, err := se.CreateIndex(usersSchema()); err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}

	tx, err := se.BeginTransaction(txn.Serializable)
	if err != nil {
		t.Fatalf("Failed to begin: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := se.Insert(tx, "users_age", KeyRow{Values: []string{"30", "x"}, At: at(2, uint16(i))}); err != nil {
			t.Fatalf("Failed to insert: %v", err)
		}
	}
	if err := se.AbortTransaction(tx); err != nil {
		t.Fatalf("Failed to abort: %v", err)
	}
	if rows := scanAll(t, se, "users_age", ScanRequest{}); len(rows) != 0 {
		t.Fatalf("rolled back rows are visible: %v", rows)
	}
}

func TestEngineLoadRange(t *testing.T) {
	se := openEngine(t, testConfig(t), "db", true)
	defer se.Close()

	schema := types.IndexSchema{
		IndexName: "ids",
		BaseTable: "orders",
		Columns:   []types.ColumnDef{{Name: "id", Type: "INT", Descending: true}},
		Unique:    true,
	}
	if _, err := se.CreateIndex(schema); err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}
	autocommit(t, se, func(tx *txn.Transaction) error {
		n, err := se.LoadRange(tx, "ids", 1, 50)
		if err == nil && n != 50 {
			err = errors.Newf("loaded %d rows", n)
		}
		return err
	})

	rows := scanAll(t, se, "ids", ScanRequest{Limit: 3})
	if len(rows) != 3 || rows[0][0].I != 50 || rows[2][0].I != 48 {
		t.Fatalf("descending scan returned %v", rows)
	}
	report, err := se.CheckIndex("ids")
	if err != nil || report.Rows != 50 {
		t.Fatalf("check: %s, %v", report, err)
	}

	// a unique index rejects the same key at another location
	autocommit(t, se, func(tx *txn.Transaction) error {
		res, err := se.Insert(tx, "ids", KeyRow{Values: []string{"7"}, At: at(9, 9)})
		if err == nil && res != bplus.InsertDuplicate {
			err = errors.Newf("expected a duplicate, got %s", res)
		}
		return err
	})
}

func TestEngineDropIndex(t *testing.T) {
	se := openEngine(t, testConfig(t), "db", true)
	defer se.Close()

	if _, err := se.CreateIndex(usersSchema()); err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}
	if err := se.DropIndex("users_age"); err != nil {
		t.Fatalf("Failed to drop index: %v", err)
	}
	if _, _, err := se.Scan(nil, "users_age", ScanRequest{}); !errors.Is(err, catalog.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
	// the name can be used again
	if _, err := se.CreateIndex(usersSchema()); err != nil {
		t.Fatalf("Failed to recreate index: %v", err)
	}
	if rows := scanAll(t, se, "users_age", ScanRequest{}); len(rows) != 0 {
		t.Fatalf("recreated index is not empty: %v", rows)
	}
}

func TestEngineNeedsDatabase(t *testing.T) {
	se, err := NewStorageEngine(testConfig(t), nil)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if _, err := se.CreateIndex(usersSchema()); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("expected ErrNoDatabase, got %v", err)
	}
	if err := se.UseDatabase("missing"); err == nil {
		t.Fatal("using a missing database should fail")
	}
	if err := se.CreateDatabase("a"); err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := se.CreateDatabase("a"); err == nil {
		t.Fatal("creating a database twice should fail")
	}
	dbs, err := se.ShowDatabases()
	if err != nil || len(dbs) != 1 || dbs[0] != "a" {
		t.Fatalf("ShowDatabases: %v, %v", dbs, err)
	}
}
