package types

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

/*
Value is the comparable column value used by the index.
Every comparison the B-tree makes (search, qualifiers, duplicate checks) goes
through Compare / CompareWith so NULL handling is decided in one place.

NULL ordering: NULL sorts higher than every non-NULL value, two NULLs compare
equal. Qualifiers that are not "ordered nulls" return their unknown result
instead of comparing when either side is NULL.
*/

type Kind uint8

const (
	KindInt Kind = iota + 1
	KindFloat
	KindString
	KindBytes
	KindBool
	KindRowPointer
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	case KindString:
		return "STRING"
	case KindBytes:
		return "BYTES"
	case KindBool:
		return "BOOL"
	case KindRowPointer:
		return "ROWPTR"
	default:
		return "UNKNOWN"
	}
}

// ParseKind maps a column type name to its Kind.
func ParseKind(name string) (Kind, bool) {
	switch strings.ToUpper(name) {
	case "INT", "INTEGER", "BIGINT":
		return KindInt, true
	case "FLOAT", "DOUBLE", "REAL":
		return KindFloat, true
	case "STRING", "VARCHAR", "TEXT", "CHAR":
		return KindString, true
	case "BYTES", "BLOB", "VARBINARY":
		return KindBytes, true
	case "BOOL", "BOOLEAN":
		return KindBool, true
	case "ROWPTR":
		return KindRowPointer, true
	}
	return 0, false
}

// Operator is a qualifier comparison operator.
type Operator uint8

const (
	OpLessThan Operator = iota + 1
	OpEquals
	OpLessOrEquals
	OpGreaterThan
	OpGreaterOrEquals
)

func (op Operator) String() string {
	switch op {
	case OpLessThan:
		return "<"
	case OpEquals:
		return "="
	case OpLessOrEquals:
		return "<="
	case OpGreaterThan:
		return ">"
	case OpGreaterOrEquals:
		return ">="
	default:
		return "?"
	}
}

type Value struct {
	Kind Kind
	Null bool
	I    int64
	F    float64
	S    string
	B    []byte
	P    RowPointer
}

func IntValue(v int64) Value { return Value{Kind: KindInt, I: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, F: v} }
func StringValue(v string) Value { return Value{Kind: KindString, S: v} }
func BytesValue(v []byte) Value { return Value{Kind: KindBytes, B: v} }
func PointerValue(p RowPointer) Value { return Value{Kind: KindRowPointer, P: p} }
func NullValue(k Kind) Value { return Value{Kind: k, Null: true} }
func BoolValue(v bool) Value {
	if v {
		return Value{Kind: KindBool, I: 1}
	}
	return Value{Kind: KindBool}
}

func (v Value) IsNull() bool { return v.Null }

func (v Value) Clone() Value {
	if v.B != nil {
		b := make([]byte, len(v.B))
		copy(b, v.B)
		v.B = b
	}
	return v
}

// Compare orders v against o. NULL sorts high.
func (v Value) Compare(o Value) int {
	if v.Null || o.Null {
		switch {
		case v.Null && o.Null:
			return 0
		case v.Null:
			return 1
		default:
			return -1
		}
	}

	if v.Kind != o.Kind {
		// INT and FLOAT compare numerically, anything else by kind.
		if isNumeric(v.Kind) && isNumeric(o.Kind) {
			return cmpFloat(v.asFloat(), o.asFloat())
		}
		return cmpUint(uint64(v.Kind), uint64(o.Kind))
	}

	switch v.Kind {
	case KindInt, KindBool:
		switch {
		case v.I < o.I:
			return -1
		case v.I > o.I:
			return 1
		}
		return 0
	case KindFloat:
		return cmpFloat(v.F, o.F)
	case KindString:
		return strings.Compare(v.S, o.S)
	case KindBytes:
		return bytes.Compare(v.B, o.B)
	case KindRowPointer:
		return v.P.Compare(o.P)
	}
	return 0
}

// CompareWith evaluates "v op o". When orderedNulls is false and either
// side is NULL the result is unknownRV.
func (v Value) CompareWith(op Operator, o Value, orderedNulls, unknownRV bool) bool {
	if !orderedNulls && (v.Null || o.Null) {
		return unknownRV
	}
	c := v.Compare(o)
	switch op {
	case OpLessThan:
		return c < 0
	case OpEquals:
		return c == 0
	case OpLessOrEquals:
		return c <= 0
	case OpGreaterThan:
		return c > 0
	case OpGreaterOrEquals:
		return c >= 0
	}
	return false
}

func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.S)
	case KindBytes:
		return fmt.Sprintf("x'%x'", v.B)
	case KindBool:
		return strconv.FormatBool(v.I != 0)
	case KindRowPointer:
		return v.P.String()
	}
	return "?"
}

// ParseValue converts text into a Value of kind k. "NULL" yields a NULL.
func ParseValue(k Kind, text string) (Value, error) {
	if strings.EqualFold(text, "null") {
		return NullValue(k), nil
	}
	switch k {
	case KindInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, errors.Wrapf(err, "invalid INT %q", text)
		}
		return IntValue(n), nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, errors.Wrapf(err, "invalid FLOAT %q", text)
		}
		return FloatValue(f), nil
	case KindString:
		return StringValue(strings.Trim(text, "'\"")), nil
	case KindBytes:
		return BytesValue([]byte(text)), nil
	case KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, errors.Wrapf(err, "invalid BOOL %q", text)
		}
		return BoolValue(b), nil
	}
	return Value{}, errors.Newf("cannot parse values of kind %s", k)
}

func isNumeric(k Kind) bool { return k == KindInt || k == KindFloat }

func (v Value) asFloat() float64 {
	if v.Kind == KindInt {
		return float64(v.I)
	}
	return v.F
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	}
	// NaN sorts after numbers
	if math.IsNaN(a) && math.IsNaN(b) {
		return 0
	}
	if math.IsNaN(a) {
		return 1
	}
	return -1
}
