package catalog

import (
	"sync"

	types "DaemonIndex/types"

	"go.uber.org/zap"
)

type CatalogManager struct {
	mu     sync.RWMutex
	dbRoot string
	currDb string

	// BaseTableToFileId hands every base table named by an index a stable
	// container id, the one row locations of its rows point into.
	BaseTableToFileId map[string]uint32
	nextFileID        uint32
	nextConglomID     uint64
	indexSchemas      map[string]types.IndexSchema

	logger *zap.Logger
}

// counters is the on-disk form of the id allocators.
type counters struct {
	NextFileID    uint32 `json:"next_file_id"`
	NextConglomID uint64 `json:"next_conglom_id"`
}
