package catalog

import (
	"testing"

	types "DaemonIndex/types"

	"github.com/cockroachdb/errors"
)

func schema(name, table string) types.IndexSchema {
	return types.IndexSchema{
		IndexName: name,
		BaseTable: table,
		Columns:   []types.ColumnDef{{Name: "id", Type: "INT"}},
	}
}

func TestRegisterAssignsIds(t *testing.T) {
	root := t.TempDir()
	cm, err := NewCatalogManager(root, nil)
	if err != nil {
		t.Fatalf("Failed to create catalog: %v", err)
	}
	if _, err := cm.RegisterNewIndex(schema("a", "t")); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("expected ErrNoDatabase, got %v", err)
	}
	if err := cm.SetCurrentDatabase("db"); err != nil {
		t.Fatalf("Failed to set database: %v", err)
	}

	a, err := cm.RegisterNewIndex(schema("a", "T"))
	if err != nil {
		t.Fatalf("Failed to register a: %v", err)
	}
	b, err := cm.RegisterNewIndex(schema("b", "t"))
	if err != nil {
		t.Fatalf("Failed to register b: %v", err)
	}
	if a.BaseTable != "t" || a.BaseFileID != b.BaseFileID {
		t.Fatalf("indexes on one table should share its file id: %+v %+v", a, b)
	}
	if a.IndexFileID == b.IndexFileID || a.IndexFileID == a.BaseFileID || a.ConglomID == b.ConglomID {
		t.Fatalf("ids must be distinct: %+v %+v", a, b)
	}
	if _, err := cm.RegisterNewIndex(schema("a", "t")); !errors.Is(err, ErrIndexExists) {
		t.Fatalf("expected ErrIndexExists, got %v", err)
	}
}

func TestCatalogSurvivesReload(t *testing.T) {
	root := t.TempDir()
	cm, _ := NewCatalogManager(root, nil)
	if err := cm.SetCurrentDatabase("db"); err != nil {
		t.Fatalf("Failed to set database: %v", err)
	}
	a, err := cm.RegisterNewIndex(schema("a", "t"))
	if err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	if _, err := cm.RegisterNewIndex(schema("b", "u")); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	if err := cm.UnregisterIndex("b"); err != nil {
		t.Fatalf("Failed to unregister: %v", err)
	}

	reloaded, _ := NewCatalogManager(root, nil)
	if err := reloaded.SetCurrentDatabase("db"); err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	got, err := reloaded.GetIndexSchema("a")
	if err != nil {
		t.Fatalf("Failed to get schema: %v", err)
	}
	if got.IndexFileID != a.IndexFileID || got.Columns[0].Name != "id" {
		t.Fatalf("reloaded schema differs: %+v", got)
	}
	if _, err := reloaded.GetIndexSchema("b"); !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
	if _, ok := reloaded.BaseTableToFileId["u"]; ok {
		t.Fatal("mapping of an unused base table should be gone")
	}

	// dropped ids stay used
	c, err := reloaded.RegisterNewIndex(schema("c", "t"))
	if err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	if c.IndexFileID <= a.IndexFileID+2 || c.ConglomID != 3 {
		t.Fatalf("ids were reused: %+v", c)
	}
	if names := reloaded.ListIndexes(); len(names) != 2 || names[0].IndexName != "a" || names[1].IndexName != "c" {
		t.Fatalf("ListIndexes: %+v", names)
	}
}
