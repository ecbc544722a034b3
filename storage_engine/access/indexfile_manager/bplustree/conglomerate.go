package bplus

import (
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
)

// Conglomerate is the persistent descriptor of one B-tree index. It is
// stored in the catalog as JSON and never changes after creation.
type Conglomerate struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	BaseTable  string `json:"base_table"`
	FileID     uint32 `json:"file_id"`
	BaseFileID uint32 `json:"base_file_id"`

	// ColumnKinds describes a leaf row: key columns then the row location.
	ColumnKinds []types.Kind `json:"column_kinds"`
	Ascending   []bool       `json:"ascending"`

	// NKeyFields is the number of columns of a leaf row, row location
	// included. NUniqueColumns is how many leading columns make a row
	// unique: NKeyFields for non-unique indexes (the row location breaks
	// ties) and NKeyFields-1 for unique ones.
	NKeyFields     int `json:"n_key_fields"`
	NUniqueColumns int `json:"n_unique_columns"`

	AllowDuplicates bool `json:"allow_duplicates"`
	// UniqueWithDuplicateNulls marks an almost-unique index: keys must be
	// unique unless one of their columns is NULL.
	UniqueWithDuplicateNulls bool `json:"unique_with_duplicate_nulls"`

	MaxRowsPerPage int `json:"max_rows_per_page,omitempty"`
}

// NewConglomerate derives an index descriptor from its catalog schema.
func NewConglomerate(schema types.IndexSchema) (*Conglomerate, error) {
	if len(schema.Columns) == 0 {
		return nil, errors.Newf("index %q has no key columns", schema.IndexName)
	}
	kinds, ok := schema.KeyKinds()
	if !ok {
		return nil, errors.Newf("index %q has a column of unknown type", schema.IndexName)
	}
	if schema.MaxRowsPerPage == 1 || schema.MaxRowsPerPage < 0 {
		return nil, errors.Newf("index %q: max rows per page must be 0 or at least 2, got %d",
			schema.IndexName, schema.MaxRowsPerPage)
	}

	asc := make([]bool, len(kinds))
	for i := range asc {
		asc[i] = true
	}
	for i, c := range schema.Columns {
		asc[i] = !c.Descending
	}

	c := &Conglomerate{
		ID:             schema.ConglomID,
		Name:           schema.IndexName,
		BaseTable:      schema.BaseTable,
		FileID:         schema.IndexFileID,
		BaseFileID:     schema.BaseFileID,
		ColumnKinds:    kinds,
		Ascending:      asc,
		NKeyFields:     len(kinds),
		NUniqueColumns: len(kinds),
		MaxRowsPerPage: schema.MaxRowsPerPage,
	}
	switch {
	case schema.UniqueWithDuplicateNulls:
		// rows stay unique through the row location, the duplicate check
		// looks at the key columns
		c.UniqueWithDuplicateNulls = true
	case schema.Unique:
		c.NUniqueColumns = len(kinds) - 1
	default:
		c.AllowDuplicates = true
	}
	return c, nil
}

func (c *Conglomerate) descending(col int) bool {
	return col < len(c.Ascending) && !c.Ascending[col]
}

// rowLocationColumn is the index of the trailing row location.
func (c *Conglomerate) rowLocationColumn() int {
	return c.NKeyFields - 1
}

// validateRow checks a leaf row against the descriptor.
func (c *Conglomerate) validateRow(row types.Row) error {
	if len(row) != c.NKeyFields {
		return errors.Wrapf(ErrInvalidRow, "index %s: %d columns, want %d", c.Name, len(row), c.NKeyFields)
	}
	for i, v := range row {
		if v.Null {
			if i == c.rowLocationColumn() {
				return errors.Wrapf(ErrInvalidRow, "index %s: NULL row location", c.Name)
			}
			continue
		}
		want := c.ColumnKinds[i]
		if v.Kind != want && !(isNumericKind(v.Kind) && isNumericKind(want)) {
			return errors.Wrapf(ErrInvalidRow, "index %s: column %d is %s, want %s", c.Name, i, v.Kind, want)
		}
	}
	return nil
}

// TemplateRow is an all-NULL leaf row of the index's shape.
func (c *Conglomerate) TemplateRow() types.Row {
	return types.NewRow(c.ColumnKinds)
}

func isNumericKind(k types.Kind) bool {
	return k == types.KindInt || k == types.KindFloat
}
