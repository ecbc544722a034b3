package types

import (
	"testing"
)

func TestValueCompareNullsSortHigh(t *testing.T) {
	if IntValue(5).Compare(NullValue(KindInt)) >= 0 {
		t.Errorf("expected non-null < null")
	}
	if NullValue(KindInt).Compare(IntValue(5)) <= 0 {
		t.Errorf("expected null > non-null")
	}
	if NullValue(KindInt).Compare(NullValue(KindInt)) != 0 {
		t.Errorf("expected null == null")
	}
	if IntValue(3).Compare(FloatValue(3.5)) >= 0 {
		t.Errorf("expected 3 < 3.5")
	}
}

func TestValueCompareWithUnknownResult(t *testing.T) {
	null := NullValue(KindInt)
	if !null.CompareWith(OpEquals, IntValue(1), false, true) {
		t.Errorf("expected unknownRV=true to be returned for NULL operand")
	}
	if null.CompareWith(OpEquals, IntValue(1), false, false) {
		t.Errorf("expected unknownRV=false to be returned for NULL operand")
	}
	if !null.CompareWith(OpGreaterThan, IntValue(1), true, false) {
		t.Errorf("ordered nulls: NULL should be greater than 1")
	}

	cases := []struct {
		op   Operator
		a, b int64
		want bool
	}{
		{OpLessThan, 1, 2, true},
		{OpLessThan, 2, 2, false},
		{OpLessOrEquals, 2, 2, true},
		{OpEquals, 2, 2, true},
		{OpGreaterThan, 3, 2, true},
		{OpGreaterOrEquals, 1, 2, false},
	}
	for _, c := range cases {
		if got := IntValue(c.a).CompareWith(c.op, IntValue(c.b), false, false); got != c.want {
			t.Errorf("%d %s %d: expected %v, got %v", c.a, c.op, c.b, c.want, got)
		}
	}
}

func TestRowCodec(t *testing.T) {
	row := Row{
		IntValue(-42),
		StringValue("daemon"),
		NullValue(KindString),
		FloatValue(2.5),
		BytesValue([]byte{1, 2, 3}),
		BoolValue(true),
		PointerValue(RowPointer{FileID: 7, PageNumber: 11, SlotIndex: 3}),
	}

	data := EncodeRow(row)
	if len(data) != EncodedSize(row) {
		t.Fatalf("EncodedSize mismatch: expected %d, got %d", len(data), EncodedSize(row))
	}

	decoded, err := DecodeRow(data)
	if err != nil {
		t.Fatalf("Failed to decode row: %v", err)
	}
	if len(decoded) != len(row) {
		t.Fatalf("column count mismatch: expected %d, got %d", len(row), len(decoded))
	}
	for i := range row {
		if row[i].Compare(decoded[i]) != 0 || row[i].Null != decoded[i].Null {
			t.Errorf("column %d mismatch: expected %s, got %s", i, row[i], decoded[i])
		}
	}

	col, err := DecodeColumn(data, 6)
	if err != nil {
		t.Fatalf("Failed to decode column: %v", err)
	}
	if col.P.PageNumber != 11 {
		t.Errorf("row pointer page mismatch: expected 11, got %d", col.P.PageNumber)
	}

	if _, err := DecodeRow(data[:len(data)-3]); err == nil {
		t.Errorf("expected error decoding truncated record")
	}
}
