package checkpoint

import "testing"

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cm, err := NewCheckpointManager(dir, nil)
	if err != nil {
		t.Fatalf("Failed to create checkpoint manager: %v", err)
	}

	cp, err := cm.LoadCheckpoint()
	if err != nil || cp.LSN != 0 {
		t.Fatalf("missing checkpoint should load as LSN 0, got %+v, %v", cp, err)
	}

	if err := cm.SaveCheckpoint(Checkpoint{LSN: 42, Database: "db", Indexes: 3}); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}
	cp, err = cm.LoadCheckpoint()
	if err != nil {
		t.Fatalf("Failed to load checkpoint: %v", err)
	}
	if cp.LSN != 42 || cp.Database != "db" || cp.Indexes != 3 || cp.Timestamp == 0 {
		t.Fatalf("unexpected checkpoint %+v", cp)
	}

	if err := cm.DeleteCheckpoint(); err != nil {
		t.Fatalf("Failed to delete checkpoint: %v", err)
	}
	if cp, _ := cm.LoadCheckpoint(); cp.LSN != 0 {
		t.Fatalf("deleted checkpoint still loads: %+v", cp)
	}
}
