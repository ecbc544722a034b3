package storageengine

import (
	bplus "DaemonIndex/storage_engine/access/indexfile_manager/bplustree"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// CreateIndex registers schema in the catalog and builds an empty index
// for it. The ids in schema are assigned by the catalog.
func (se *StorageEngine) CreateIndex(schema types.IndexSchema) (types.IndexSchema, error) {
	if err := se.RequireDatabase(); err != nil {
		return types.IndexSchema{}, err
	}
	if schema.MaxRowsPerPage == 0 {
		schema.MaxRowsPerPage = se.cfg.BTree.MaxRowsPerPage
	}
	// reject a bad schema before it reaches the catalog
	if _, err := bplus.NewConglomerate(schema); err != nil {
		return types.IndexSchema{}, err
	}

	registered, err := se.CatalogManager.RegisterNewIndex(schema)
	if err != nil {
		return types.IndexSchema{}, err
	}
	path := se.CatalogManager.IndexPath(registered.IndexName)
	if _, err := se.IndexManager.CreateIndex(registered, path); err != nil {
		if uerr := se.CatalogManager.UnregisterIndex(registered.IndexName); uerr != nil {
			se.logger.Error("failed to unregister index after failed create", zap.Error(uerr))
		}
		return types.IndexSchema{}, errors.Wrapf(err, "create index %s", registered.IndexName)
	}

	se.logger.Info("index created",
		zap.String("index", registered.IndexName),
		zap.String("table", registered.BaseTable),
		zap.Uint32("fileID", registered.IndexFileID))
	return registered, nil
}

// DropIndex deletes an index and its file. Work queued for it after
// earlier commits is drained first.
func (se *StorageEngine) DropIndex(name string) error {
	if err := se.RequireDatabase(); err != nil {
		return err
	}
	if _, err := se.CatalogManager.GetIndexSchema(name); err != nil {
		return err
	}
	se.TxnManager.WaitForPostCommit()
	if err := se.IndexManager.DropIndex(name); err != nil {
		return err
	}
	return se.CatalogManager.UnregisterIndex(name)
}

func (se *StorageEngine) ListIndexes() ([]types.IndexSchema, error) {
	if err := se.RequireDatabase(); err != nil {
		return nil, err
	}
	return se.CatalogManager.ListIndexes(), nil
}

// index returns the schema and the open tree of an index.
func (se *StorageEngine) index(name string) (types.IndexSchema, *bplus.BTree, error) {
	if err := se.RequireDatabase(); err != nil {
		return types.IndexSchema{}, nil, err
	}
	schema, err := se.CatalogManager.GetIndexSchema(name)
	if err != nil {
		return types.IndexSchema{}, nil, err
	}
	tree, err := se.IndexManager.GetIndex(name)
	if err != nil {
		return types.IndexSchema{}, nil, err
	}
	return schema, tree, nil
}
