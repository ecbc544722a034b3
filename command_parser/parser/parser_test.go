package parser

import (
	"reflect"
	"testing"

	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
)

func TestParseStatement_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  Statement
	}{
		{"create database shop", &CreateDatabaseStmt{DbName: "shop"}},
		{"SHOW DATABASES;", &ShowDatabasesStmt{}},
		{"use shop", &UseDatabaseStmt{DbName: "shop"}},
		{
			"create index by_age on users (age int desc, name string) unique nulls maxrows 8",
			&CreateIndexStmt{
				Name:  "by_age",
				Table: "users",
				Columns: []ColumnDef{
					{Name: "age", Type: "int", Descending: true},
					{Name: "name", Type: "string"},
				},
				Unique:      true,
				UniqueNulls: true,
				MaxRows:     8,
			},
		},
		{"drop index by_age", &DropIndexStmt{Name: "by_age"}},
		{"show indexes", &ShowIndexesStmt{}},
		{
			`insert by_age (31, "ann") at 1:0, (null, 'bob')`,
			&InsertStmt{Index: "by_age", Rows: []RowLiteral{
				{Values: []string{"31", "ann"}, At: &Location{Page: 1, Slot: 0}},
				{Values: []string{"null", "bob"}},
			}},
		},
		{
			"delete by_age (31, 'ann') at 1:0",
			&DeleteStmt{Index: "by_age", Row: &RowLiteral{Values: []string{"31", "ann"}, At: &Location{Page: 1}}},
		},
		{
			"delete by_age to (20) exclusive",
			&DeleteStmt{Index: "by_age", Range: &RangeClause{To: []string{"20"}, ToExclusive: true}},
		},
		{
			"scan by_age from (25) exclusive to (40) where age > 1 and (name = 'a' or not name = 'b') limit 5",
			&ScanStmt{Index: "by_age", RangeClause: RangeClause{
				From:          []string{"25"},
				FromExclusive: true,
				To:            []string{"40"},
				Where: [][]Predicate{
					{{Column: "age", Op: types.OpGreaterThan, Value: "1"}},
					{{Column: "name", Op: types.OpEquals, Value: "a"}, {Column: "name", Op: types.OpEquals, Value: "b", Negate: true}},
				},
				Limit: 5,
			}},
		},
		{"scan by_age", &ScanStmt{Index: "by_age"}},
		{
			"max by_age where age <= -2.5",
			&MaxStmt{Index: "by_age", Where: [][]Predicate{{{Column: "age", Op: types.OpLessOrEquals, Value: "-2.5"}}}},
		},
		{"load ids range 1 1000", &LoadStmt{Index: "ids", Generate: true, From: 1, Count: 1000}},
		{"load ids (1), (2) at 0:2", &LoadStmt{Index: "ids", Rows: []RowLiteral{
			{Values: []string{"1"}},
			{Values: []string{"2"}, At: &Location{Slot: 2}},
		}}},
		{"check ids", &CheckStmt{Index: "ids"}},
		{"stats", &StatsStmt{}},
		{"stats ids", &StatsStmt{Index: "ids"}},
		{"begin", &BeginStmt{}},
		{"begin read committed", &BeginStmt{Isolation: "committed"}},
		{"BEGIN repeatable read", &BeginStmt{Isolation: "repeatable"}},
		{"commit", &CommitStmt{}},
		{"rollback", &RollbackStmt{}},
		{"checkpoint", &CheckpointStmt{}},
		{"show log", &ShowLogStmt{}},
		{"help", &HelpStmt{}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Parse(%q)\n got: %#v\nwant: %#v", tt.input, got, tt.want)
			}
		})
	}
}

// TestParseStatement_Invalid ensures malformed input returns an error
// instead of a statement.
func TestParseStatement_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"create without object", "create shop"},
		{"use with number", "use 123"},
		{"insert without parens", "insert ids 1, 2"},
		{"insert bad location", "insert ids (1) at 1"},
		{"location out of range", "insert ids (1) at 1:70000"},
		{"index without columns", "create index i on t ()"},
		{"column without type", "create index i on t (a)"},
		{"where without value", "scan ids where id ="},
		{"where without operator", "scan ids where id 3"},
		{"unclosed or group", "scan ids where (id = 1 or id = 2"},
		{"zero limit", "scan ids limit 0"},
		{"trailing tokens", "commit now"},
		{"bad isolation", "begin sometimes"},
		{"load range without count", "load ids range 1"},
		{"unknown command", "select * from t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Parse(tt.input)
			if err == nil {
				t.Fatalf("Parse(%q) expected error, got %#v", tt.input, stmt)
			}
		})
	}

	if _, err := Parse("  ;"); !errors.Is(err, ErrEmptyStatement) {
		t.Fatalf("expected ErrEmptyStatement, got %v", err)
	}
}
