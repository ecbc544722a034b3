package checkpoint

import (
	"sync"

	"go.uber.org/zap"
)

// CheckpointManager records the log position up to which every index page
// is known to be on disk.
type CheckpointManager struct {
	checkpointPath string
	mu             sync.RWMutex
	logger         *zap.Logger
}

// Checkpoint is the on-disk checkpoint record.
type Checkpoint struct {
	LSN       uint64 `json:"lsn"`
	Timestamp int64  `json:"timestamp"` // informational only
	Database  string `json:"database"`
	Indexes   int    `json:"indexes"`
}
