package executor

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"DaemonIndex/config"
	storageengine "DaemonIndex/storage_engine"

	"github.com/cockroachdb/errors"
)

func newTestVM(t *testing.T) (*VM, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.LockContainers = false
	cfg.Storage.PageCacheMB = 1
	cfg.BufferPool.Capacity = 32
	cfg.Locking.Timeout = time.Second
	cfg.BTree.MaxRowsPerPage = 4

	se, err := storageengine.NewStorageEngine(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	var out bytes.Buffer
	vm := NewVM(se, &out, nil)
	t.Cleanup(func() {
		if err := vm.Close(); err != nil {
			t.Errorf("Failed to close vm: %v", err)
		}
		if err := se.Close(); err != nil {
			t.Errorf("Failed to close engine: %v", err)
		}
	})
	return vm, &out
}

// run executes each line and returns the output of the last one.
func run(t *testing.T, vm *VM, out *bytes.Buffer, lines ...string) string {
	t.Helper()
	for _, line := range lines {
		out.Reset()
		if err := vm.ExecuteLine(line); err != nil {
			t.Fatalf("Failed to execute %q: %v", line, err)
		}
	}
	return out.String()
}

func TestVMIndexCommands(t *testing.T) {
	vm, out := newTestVM(t)

	run(t, vm, out,
		"create database shop",
		"use shop",
		"create index by_age on people (age int, name string)",
	)
	if got := run(t, vm, out, "show indexes"); !strings.Contains(got, "by_age") || !strings.Contains(got, "non-unique") {
		t.Fatalf("show indexes: %q", got)
	}

	got := run(t, vm, out, "insert by_age (31, 'ann'), (25, 'bob'), (40, 'cy'), (19, 'di'), (52, 'ed')")
	if !strings.Contains(got, "5 row(s) inserted") {
		t.Fatalf("insert: %q", got)
	}
	got = run(t, vm, out, "insert by_age (31, 'ann')")
	if !strings.Contains(got, "0 row(s) inserted, 1 duplicate(s)") {
		t.Fatalf("duplicate insert: %q", got)
	}

	got = run(t, vm, out, "scan by_age from (25) to (40)")
	for _, name := range []string{"bob", "ann", "cy"} {
		if !strings.Contains(got, name) {
			t.Fatalf("scan missing %s: %q", name, got)
		}
	}
	if !strings.Contains(got, "(3 row(s);") {
		t.Fatalf("scan count: %q", got)
	}

	if got := run(t, vm, out, "max by_age"); !strings.Contains(got, "52") {
		t.Fatalf("max: %q", got)
	}
	if got := run(t, vm, out, "max by_age where age < 50"); !strings.Contains(got, "40") {
		t.Fatalf("qualified max: %q", got)
	}

	if got := run(t, vm, out, "delete by_age where age >= 40"); !strings.Contains(got, "2 row(s) deleted") {
		t.Fatalf("delete where: %q", got)
	}
	if got := run(t, vm, out, "check by_age"); !strings.Contains(got, "by_age: ok") {
		t.Fatalf("check: %q", got)
	}
	if got := run(t, vm, out, "stats by_age"); !strings.Contains(got, "inserts 5") {
		t.Fatalf("stats: %q", got)
	}
}

func TestVMExplicitTransaction(t *testing.T) {
	vm, out := newTestVM(t)
	run(t, vm, out,
		"create database shop",
		"use shop",
		"create index ids on orders (id int) unique",
		"insert ids (1), (2)",
	)

	got := run(t, vm, out, "begin serializable")
	if !strings.Contains(got, "(serializable)") {
		t.Fatalf("begin: %q", got)
	}
	if err := vm.ExecuteLine("begin"); !errors.Is(err, ErrTxnInProgress) {
		t.Fatalf("expected ErrTxnInProgress, got %v", err)
	}
	run(t, vm, out, "insert ids (3)", "delete ids (1)", "rollback")

	got = run(t, vm, out, "scan ids")
	if !strings.Contains(got, "(2 row(s);") {
		t.Fatalf("rollback left %q", got)
	}

	if err := vm.ExecuteLine("commit"); !errors.Is(err, ErrNoTxn) {
		t.Fatalf("expected ErrNoTxn, got %v", err)
	}

	run(t, vm, out, "begin", "insert ids (3)", "commit")
	if got := run(t, vm, out, "scan ids"); !strings.Contains(got, "(3 row(s);") {
		t.Fatalf("commit lost rows: %q", got)
	}
}

func TestVMLoadAndLog(t *testing.T) {
	vm, out := newTestVM(t)
	run(t, vm, out,
		"create database shop",
		"use shop",
		"create index ids on orders (id int) unique maxrows 8",
	)
	if got := run(t, vm, out, "load ids range 1 500"); !strings.Contains(got, "500 row(s) loaded") {
		t.Fatalf("load: %q", got)
	}
	if got := run(t, vm, out, "scan ids from (100) to (110) exclusive limit 5"); !strings.Contains(got, "(5 row(s);") {
		t.Fatalf("limited scan: %q", got)
	}
	if got := run(t, vm, out, "checkpoint"); !strings.Contains(got, "Checkpoint saved") {
		t.Fatalf("checkpoint: %q", got)
	}
	run(t, vm, out, "insert ids (1000)")
	got := run(t, vm, out, "show log")
	if !strings.Contains(got, "INSERT") || !strings.Contains(got, "1 commit(s)") {
		t.Fatalf("show log: %q", got)
	}
}

func TestVMErrors(t *testing.T) {
	vm, out := newTestVM(t)

	if err := vm.ExecuteLine("scan ids"); !errors.Is(err, storageengine.ErrNoDatabase) {
		t.Fatalf("expected ErrNoDatabase, got %v", err)
	}
	run(t, vm, out, "create database shop", "use shop")
	if err := vm.ExecuteLine("create index bad on t (a widget)"); err == nil {
		t.Fatal("expected an error for an unknown column type")
	}
	if err := vm.ExecuteLine("scan ids where"); err == nil {
		t.Fatal("expected a parse error")
	}
	if got := run(t, vm, out, "help"); !strings.Contains(got, "create index") {
		t.Fatalf("help: %q", got)
	}
}
