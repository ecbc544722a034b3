package types

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

/*
Row record format (little-endian), as stored in an index page slot:

	ncols   uvarint
	per column:
	    tag     uint8    Kind in the low 7 bits, 0x80 = NULL
	    payload          absent for NULL
	        INT, BOOL   varint
	        FLOAT       8 bytes IEEE-754
	        STRING      uvarint length + bytes
	        BYTES       uvarint length + bytes
	        ROWPTR      FileID(4) PageNumber(4) SlotIndex(2)
*/

const nullTag = 0x80

var ErrCorruptRecord = errors.New("corrupt row record")

func EncodeRow(r Row) []byte {
	buf := make([]byte, 0, EncodedSize(r))
	buf = binary.AppendUvarint(buf, uint64(len(r)))
	for _, v := range r {
		buf = appendValue(buf, v)
	}
	return buf
}

// EncodedSize returns the exact byte length EncodeRow would produce.
func EncodedSize(r Row) int {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(r)))
	for _, v := range r {
		n++
		if v.Null {
			continue
		}
		switch v.Kind {
		case KindInt, KindBool:
			n += binary.PutVarint(tmp[:], v.I)
		case KindFloat:
			n += 8
		case KindString:
			n += binary.PutUvarint(tmp[:], uint64(len(v.S))) + len(v.S)
		case KindBytes:
			n += binary.PutUvarint(tmp[:], uint64(len(v.B))) + len(v.B)
		case KindRowPointer:
			n += 10
		}
	}
	return n
}

func appendValue(buf []byte, v Value) []byte {
	if v.Null {
		return append(buf, byte(v.Kind)|nullTag)
	}
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case KindInt, KindBool:
		buf = binary.AppendVarint(buf, v.I)
	case KindFloat:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.F))
	case KindString:
		buf = binary.AppendUvarint(buf, uint64(len(v.S)))
		buf = append(buf, v.S...)
	case KindBytes:
		buf = binary.AppendUvarint(buf, uint64(len(v.B)))
		buf = append(buf, v.B...)
	case KindRowPointer:
		buf = binary.LittleEndian.AppendUint32(buf, v.P.FileID)
		buf = binary.LittleEndian.AppendUint32(buf, v.P.PageNumber)
		buf = binary.LittleEndian.AppendUint16(buf, v.P.SlotIndex)
	}
	return buf
}

func DecodeRow(data []byte) (Row, error) {
	ncols, n := binary.Uvarint(data)
	if n <= 0 || ncols > uint64(len(data)) {
		return nil, errors.Wrap(ErrCorruptRecord, "bad column count")
	}
	data = data[n:]
	row := make(Row, ncols)
	for i := range row {
		v, used, err := decodeValue(data)
		if err != nil {
			return nil, errors.Wrapf(err, "column %d", i)
		}
		row[i] = v
		data = data[used:]
	}
	return row, nil
}

// DecodeColumn decodes only column col of an encoded row.
func DecodeColumn(data []byte, col int) (Value, error) {
	ncols, n := binary.Uvarint(data)
	if n <= 0 {
		return Value{}, errors.Wrap(ErrCorruptRecord, "bad column count")
	}
	if col < 0 || uint64(col) >= ncols {
		return Value{}, errors.Newf("column %d out of range (ncols=%d)", col, ncols)
	}
	data = data[n:]
	for i := 0; ; i++ {
		v, used, err := decodeValue(data)
		if err != nil {
			return Value{}, errors.Wrapf(err, "column %d", i)
		}
		if i == col {
			return v, nil
		}
		data = data[used:]
	}
}

func decodeValue(data []byte) (Value, int, error) {
	if len(data) == 0 {
		return Value{}, 0, ErrCorruptRecord
	}
	tag := data[0]
	kind := Kind(tag &^ nullTag)
	if tag&nullTag != 0 {
		return NullValue(kind), 1, nil
	}
	v := Value{Kind: kind}
	body := data[1:]
	switch kind {
	case KindInt, KindBool:
		x, n := binary.Varint(body)
		if n <= 0 {
			return Value{}, 0, ErrCorruptRecord
		}
		v.I = x
		return v, 1 + n, nil
	case KindFloat:
		if len(body) < 8 {
			return Value{}, 0, ErrCorruptRecord
		}
		v.F = math.Float64frombits(binary.LittleEndian.Uint64(body))
		return v, 9, nil
	case KindString, KindBytes:
		l, n := binary.Uvarint(body)
		if n <= 0 || uint64(len(body)-n) < l {
			return Value{}, 0, ErrCorruptRecord
		}
		raw := body[n : n+int(l)]
		if kind == KindString {
			v.S = string(raw)
		} else {
			v.B = append([]byte(nil), raw...)
		}
		return v, 1 + n + int(l), nil
	case KindRowPointer:
		if len(body) < 10 {
			return Value{}, 0, ErrCorruptRecord
		}
		v.P = RowPointer{
			FileID:     binary.LittleEndian.Uint32(body[0:]),
			PageNumber: binary.LittleEndian.Uint32(body[4:]),
			SlotIndex:  binary.LittleEndian.Uint16(body[8:]),
		}
		return v, 11, nil
	}
	return Value{}, 0, errors.Wrapf(ErrCorruptRecord, "unknown kind %d", kind)
}
