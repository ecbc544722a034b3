package bplus

import (
	"bytes"
	"strings"
	"testing"

	txn "DaemonIndex/storage_engine/transaction_manager"
)

func TestInspectDumpsEveryLevel(t *testing.T) {
	e := newTestTree(t, intSchema(4))
	e.insertCommitted(t, keys(1, 20, 1)...)

	tx := e.begin(t, txn.Serializable)
	c := e.controller(t, tx)
	if ok, err := c.Delete(keyRow(5)); err != nil || !ok {
		t.Fatalf("Failed to delete: %v", err)
	}

	var buf bytes.Buffer
	if err := e.tree.Inspect(&buf); err != nil {
		t.Fatalf("Failed to inspect: %v", err)
	}
	report := e.check(t)
	e.commit(t, tx)

	out := buf.String()
	for _, want := range []string{"Index idx_k", "Level 0:", "BRANCH", "LEAF", " root", "*[5, "} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump lacks %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "LEAF"); got != report.LeafPages {
		t.Fatalf("dump shows %d leaves, check found %d", got, report.LeafPages)
	}
	e.assertNoLatches(t)
}
