package types

// ColumnDef describes one key column of an index.
type ColumnDef struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Descending bool   `json:"descending,omitempty"`
}

// IndexSchema is the catalog entry of a B-tree index. The trailing row
// location column is implicit and not listed in Columns.
type IndexSchema struct {
	IndexName                string      `json:"index_name"`
	BaseTable                string      `json:"base_table"`
	Columns                  []ColumnDef `json:"columns"`
	Unique                   bool        `json:"unique"`
	UniqueWithDuplicateNulls bool        `json:"unique_with_duplicate_nulls,omitempty"`
	MaxRowsPerPage           int         `json:"max_rows_per_page,omitempty"`
	IndexFileID              uint32      `json:"index_file_id"`
	BaseFileID               uint32      `json:"base_file_id"`
	ConglomID                uint64      `json:"conglom_id"`
}

// KeyKinds returns the column kinds of a leaf row, row location included.
func (s IndexSchema) KeyKinds() ([]Kind, bool) {
	kinds := make([]Kind, 0, len(s.Columns)+1)
	for _, c := range s.Columns {
		k, ok := ParseKind(c.Type)
		if !ok {
			return nil, false
		}
		kinds = append(kinds, k)
	}
	return append(kinds, KindRowPointer), true
}
