package types

import (
	"fmt"
	"strings"
)

// Row is a positional index row. Leaf rows end with a KindRowPointer column,
// branch rows additionally end with the child page number.
type Row []Value

// RowPointer points to a specific row in a base table file.
type RowPointer struct {
	FileID     uint32 `json:"file_id"`
	PageNumber uint32 `json:"page_number"`
	SlotIndex  uint16 `json:"slot_index"` // Index in the slot directory
}

func (rp RowPointer) Compare(o RowPointer) int {
	switch {
	case rp.FileID != o.FileID:
		return cmpUint(uint64(rp.FileID), uint64(o.FileID))
	case rp.PageNumber != o.PageNumber:
		return cmpUint(uint64(rp.PageNumber), uint64(o.PageNumber))
	default:
		return cmpUint(uint64(rp.SlotIndex), uint64(o.SlotIndex))
	}
}

func (rp RowPointer) String() string {
	return fmt.Sprintf("(%d,%d,%d)", rp.FileID, rp.PageNumber, rp.SlotIndex)
}

func cmpUint(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// NewRow builds an empty row shaped after the given column kinds, all NULL.
func NewRow(kinds []Kind) Row {
	r := make(Row, len(kinds))
	for i, k := range kinds {
		r[i] = NullValue(k)
	}
	return r
}

func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for i, v := range r {
		out[i] = v.Clone()
	}
	return out
}

// CopyFrom copies the leading len(r) columns of src into r.
func (r Row) CopyFrom(src Row) {
	n := len(r)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		r[i] = src[i].Clone()
	}
}

func (r Row) String() string {
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
