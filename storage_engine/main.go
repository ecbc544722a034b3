package storageengine

import (
	"os"

	"DaemonIndex/config"
	"DaemonIndex/logging"
	"DaemonIndex/storage_engine/catalog"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
The main file of the storage engine. It initializes the engine and the
catalog manager; USE does the actual disk loading afterwards.
*/

var ErrNoDatabase = errors.New("no database selected, use 'use <database>' first")

func NewStorageEngine(cfg *config.Config, logger *zap.Logger) (*StorageEngine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dbRoot := cfg.Storage.DataDir
	if err := os.MkdirAll(dbRoot, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create db root")
	}

	logger = logging.OrNop(logger)
	catalogManager, err := catalog.NewCatalogManager(dbRoot, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init catalog manager")
	}

	return &StorageEngine{
		DbRoot:         dbRoot,
		CatalogManager: catalogManager,
		cfg:            cfg,
		logger:         logger.Named("engine"),
	}, nil
}

func (se *StorageEngine) RequireDatabase() error {
	if se.currDb == "" || se.IndexManager == nil || se.TxnManager == nil {
		return ErrNoDatabase
	}
	return nil
}

func (se *StorageEngine) CurrentDatabase() string {
	return se.currDb
}

// Close checkpoints and closes the current database.
func (se *StorageEngine) Close() error {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.closeCurrentDatabase()
}
