package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"DaemonIndex/logging"
	types "DaemonIndex/types"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

/*
This file is the main access of the Catalog Manager.
The catalog keeps the metadata of the current database and persists it:
  - one <index>_schema.json per index under <db>/indexes
  - the base table to file id mapping and the id counters under <db>/metadata

Everything is loaded when USE is executed.
*/

var (
	ErrNoDatabase    = errors.New("no database selected")
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")
)

const (
	schemaSuffix    = "_schema.json"
	mappingFileName = "table_file_mapping.json"
	countersName    = "next_file_id.json"
)

func NewCatalogManager(dbRoot string, logger *zap.Logger) (*CatalogManager, error) {
	if dbRoot == "" {
		return nil, errors.New("catalog needs a data directory")
	}
	return &CatalogManager{
		dbRoot:            dbRoot,
		nextFileID:        1,
		nextConglomID:     1,
		BaseTableToFileId: make(map[string]uint32),
		indexSchemas:      make(map[string]types.IndexSchema),
		logger:            logging.OrNop(logger).Named("catalog"),
	}, nil
}

// SetCurrentDatabase switches the catalog to name and loads its metadata.
func (cm *CatalogManager) SetCurrentDatabase(name string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.logger.Debug("switching database", zap.String("from", cm.currDb), zap.String("to", name))
	cm.currDb = name
	cm.BaseTableToFileId = make(map[string]uint32)
	cm.indexSchemas = make(map[string]types.IndexSchema)
	cm.nextFileID = 1
	cm.nextConglomID = 1

	if err := cm.loadMetadataLocked(); err != nil {
		return err
	}
	return cm.loadIndexSchemasLocked()
}

func (cm *CatalogManager) CurrentDatabase() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.currDb
}

// IndexPath is where the container of an index lives.
func (cm *CatalogManager) IndexPath(indexName string) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return filepath.Join(cm.dbRoot, cm.currDb, "indexes", indexName+".idx")
}

func (cm *CatalogManager) IndexExists(name string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.indexSchemas[name]
	return ok
}

func (cm *CatalogManager) GetIndexSchema(name string) (types.IndexSchema, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.currDb == "" {
		return types.IndexSchema{}, ErrNoDatabase
	}
	schema, ok := cm.indexSchemas[name]
	if !ok {
		return types.IndexSchema{}, errors.Wrapf(ErrIndexNotFound, "%q", name)
	}
	return schema, nil
}

// ListIndexes returns the schemas of all indexes ordered by name.
func (cm *CatalogManager) ListIndexes() []types.IndexSchema {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]types.IndexSchema, 0, len(cm.indexSchemas))
	for _, s := range cm.indexSchemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IndexName < out[j].IndexName })
	return out
}

// RegisterNewIndex assigns the index its container id, its conglomerate
// id and the file id of its base table, then persists everything. The
// completed schema is returned.
func (cm *CatalogManager) RegisterNewIndex(schema types.IndexSchema) (types.IndexSchema, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.currDb == "" {
		return types.IndexSchema{}, ErrNoDatabase
	}
	if schema.IndexName == "" {
		return types.IndexSchema{}, errors.New("index name cannot be empty")
	}
	if _, ok := cm.indexSchemas[schema.IndexName]; ok {
		return types.IndexSchema{}, errors.Wrapf(ErrIndexExists, "%q", schema.IndexName)
	}

	baseTable := strings.ToLower(schema.BaseTable)
	baseFileID, ok := cm.BaseTableToFileId[baseTable]
	if !ok {
		baseFileID = cm.nextFileID
		cm.nextFileID++
		cm.BaseTableToFileId[baseTable] = baseFileID
	}
	schema.BaseTable = baseTable
	schema.BaseFileID = baseFileID
	schema.IndexFileID = cm.nextFileID
	cm.nextFileID++
	schema.ConglomID = cm.nextConglomID
	cm.nextConglomID++

	if err := cm.persistSchemaLocked(schema); err != nil {
		return types.IndexSchema{}, err
	}
	if err := cm.persistMetadataLocked(); err != nil {
		return types.IndexSchema{}, err
	}
	cm.indexSchemas[schema.IndexName] = schema

	cm.logger.Info("index registered",
		zap.String("index", schema.IndexName),
		zap.Uint32("fileID", schema.IndexFileID),
		zap.Uint64("conglomID", schema.ConglomID))
	return schema, nil
}

// UnregisterIndex forgets an index. The ids it used are not reused; the
// base table mapping stays while another index still points at it.
func (cm *CatalogManager) UnregisterIndex(name string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.currDb == "" {
		return ErrNoDatabase
	}
	schema, ok := cm.indexSchemas[name]
	if !ok {
		return errors.Wrapf(ErrIndexNotFound, "%q", name)
	}
	delete(cm.indexSchemas, name)

	stillUsed := false
	for _, s := range cm.indexSchemas {
		if s.BaseTable == schema.BaseTable {
			stillUsed = true
			break
		}
	}
	if !stillUsed {
		delete(cm.BaseTableToFileId, schema.BaseTable)
	}

	schemaPath := filepath.Join(cm.dbRoot, cm.currDb, "indexes", name+schemaSuffix)
	if err := os.Remove(schemaPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete schema file")
	}
	return cm.persistMetadataLocked()
}

func (cm *CatalogManager) persistSchemaLocked(schema types.IndexSchema) error {
	dir := filepath.Join(cm.dbRoot, cm.currDb, "indexes")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create indexes directory")
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, schema.IndexName+schemaSuffix), data)
}

func (cm *CatalogManager) persistMetadataLocked() error {
	metaDir := filepath.Join(cm.dbRoot, cm.currDb, "metadata")
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create metadata directory")
	}

	data, err := json.MarshalIndent(cm.BaseTableToFileId, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(metaDir, mappingFileName), data); err != nil {
		return err
	}

	data, err = json.MarshalIndent(counters{NextFileID: cm.nextFileID, NextConglomID: cm.nextConglomID}, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(metaDir, countersName), data)
}

func (cm *CatalogManager) loadMetadataLocked() error {
	metaDir := filepath.Join(cm.dbRoot, cm.currDb, "metadata")

	data, err := os.ReadFile(filepath.Join(metaDir, mappingFileName))
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return errors.Wrap(err, "failed to read mapping file")
	}
	if err := json.Unmarshal(data, &cm.BaseTableToFileId); err != nil {
		return errors.Wrap(err, "failed to unmarshal mapping")
	}

	data, err = os.ReadFile(filepath.Join(metaDir, countersName))
	if err != nil {
		return errors.Wrap(err, "failed to read id counters")
	}
	var c counters
	if err := json.Unmarshal(data, &c); err != nil {
		return errors.Wrap(err, "failed to unmarshal id counters")
	}
	cm.nextFileID = c.NextFileID
	cm.nextConglomID = c.NextConglomID
	return nil
}

func (cm *CatalogManager) loadIndexSchemasLocked() error {
	dir := filepath.Join(cm.dbRoot, cm.currDb, "indexes")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read indexes directory")
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, schemaSuffix) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read schema file %s", path)
		}
		var schema types.IndexSchema
		if err := json.Unmarshal(data, &schema); err != nil {
			return errors.Wrapf(err, "invalid schema in file %s", path)
		}
		// a crash between the schema write and the counter write must not
		// hand the same ids out twice
		if schema.IndexFileID >= cm.nextFileID {
			cm.nextFileID = schema.IndexFileID + 1
		}
		if schema.ConglomID >= cm.nextConglomID {
			cm.nextConglomID = schema.ConglomID + 1
		}
		cm.indexSchemas[schema.IndexName] = schema
	}
	return nil
}

// writeFileAtomic writes through a temp file and a rename, the same way
// checkpoints are saved.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "failed to rename %s", tmp)
	}
	return nil
}
