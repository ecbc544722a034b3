package storageengine

import (
	"strings"

	bplus "DaemonIndex/storage_engine/access/indexfile_manager/bplustree"
	"DaemonIndex/types"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

/*
This file converts between the textual values the shell hands over and the
typed rows the index stores. A leaf row is the key columns followed by the
row location.
*/

// keyValues parses texts against the leading key columns of schema. With
// prefix set fewer values than columns are allowed.
func keyValues(schema types.IndexSchema, texts []string, prefix bool) (types.Row, error) {
	n := len(schema.Columns)
	if len(texts) > n || (!prefix && len(texts) != n) {
		return nil, errors.Newf("index %s has %d key columns, got %d values", schema.IndexName, n, len(texts))
	}

	row := make(types.Row, len(texts))
	for i, text := range texts {
		col := schema.Columns[i]
		kind, ok := types.ParseKind(col.Type)
		if !ok {
			return nil, errors.Newf("column %s has unknown type %s", col.Name, col.Type)
		}
		v, err := types.ParseValue(kind, text)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", col.Name)
		}
		row[i] = v
	}
	return row, nil
}

// leafRow builds the full leaf row of kr.
func leafRow(schema types.IndexSchema, kr KeyRow) (types.Row, error) {
	key, err := keyValues(schema, kr.Values, false)
	if err != nil {
		return nil, err
	}
	loc := defaultLocation(schema, key)
	if kr.At != nil {
		loc = *kr.At
		loc.FileID = schema.BaseFileID
	}
	return append(key, types.PointerValue(loc)), nil
}

// defaultLocation derives a stable row location from the key, for rows
// inserted without one.
func defaultLocation(schema types.IndexSchema, key types.Row) types.RowPointer {
	h := xxhash.Sum64(types.EncodeRow(key))
	return types.RowPointer{
		FileID:     schema.BaseFileID,
		PageNumber: uint32(h >> 32),
		SlotIndex:  uint16(h),
	}
}

func columnIndex(schema types.IndexSchema, name string) (int, error) {
	for i, c := range schema.Columns {
		if strings.EqualFold(c.Name, name) {
			return i, nil
		}
	}
	return 0, errors.Newf("index %s has no column %q", schema.IndexName, name)
}

// qualifiers resolves where into the column positions and types of schema.
func qualifiers(schema types.IndexSchema, where [][]Predicate) (bplus.Qualifiers, error) {
	if len(where) == 0 {
		return nil, nil
	}
	quals := make(bplus.Qualifiers, 0, len(where))
	for _, group := range where {
		terms := make([]bplus.Qualifier, 0, len(group))
		for _, p := range group {
			col, err := columnIndex(schema, p.Column)
			if err != nil {
				return nil, err
			}
			kind, _ := types.ParseKind(schema.Columns[col].Type)
			v, err := types.ParseValue(kind, p.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "column %s", p.Column)
			}
			terms = append(terms, bplus.Qualifier{
				ColumnID:     col,
				Operator:     p.Op,
				Value:        v,
				NegateResult: p.Negate,
			})
		}
		quals = append(quals, terms)
	}
	return quals, nil
}

// FormatRow renders a leaf row as text, the row location last.
func FormatRow(row types.Row) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if v.Kind == types.KindString && !v.Null {
			out[i] = v.S
			continue
		}
		out[i] = v.String()
	}
	return out
}
