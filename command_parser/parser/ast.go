package parser

import "DaemonIndex/types"

// Statement is one shell command.
type Statement interface {
	statement()
}

type CreateDatabaseStmt struct {
	DbName string
}

type ShowDatabasesStmt struct{}

type UseDatabaseStmt struct {
	DbName string
}

type ColumnDef struct {
	Name       string
	Type       string
	Descending bool
}

// CreateIndexStmt: create index <name> on <table> (<col> <type> [asc|desc], ...)
// [unique [nulls]] [maxrows <n>]
type CreateIndexStmt struct {
	Name    string
	Table   string
	Columns []ColumnDef
	Unique  bool
	// UniqueNulls allows duplicate keys that hold a NULL.
	UniqueNulls bool
	MaxRows     int
}

type DropIndexStmt struct {
	Name string
}

type ShowIndexesStmt struct{}

// Location is the "at <page>:<slot>" row location of a row literal.
type Location struct {
	Page uint32
	Slot uint16
}

type RowLiteral struct {
	Values []string
	At     *Location
}

type InsertStmt struct {
	Index string
	Rows  []RowLiteral
}

// DeleteStmt deletes one row, or every row of Range when Row is nil.
type DeleteStmt struct {
	Index string
	Row   *RowLiteral
	Range *RangeClause
}

type Predicate struct {
	Column string
	Op     types.Operator
	Value  string
	Negate bool
}

// RangeClause is the from/to/where/limit tail shared by scan and delete.
type RangeClause struct {
	From          []string
	FromExclusive bool
	To            []string
	ToExclusive   bool
	// Where is in conjunctive normal form.
	Where [][]Predicate
	Limit int
}

type ScanStmt struct {
	Index string
	RangeClause
}

type MaxStmt struct {
	Index string
	Where [][]Predicate
}

// LoadStmt loads either the listed rows or Count generated rows starting
// at From.
type LoadStmt struct {
	Index    string
	Rows     []RowLiteral
	Generate bool
	From     int64
	Count    int64
}

type CheckStmt struct {
	Index string
}

// StatsStmt reports one index, or the engine when Index is empty.
type StatsStmt struct {
	Index string
}

type BeginStmt struct {
	Isolation string
}

type CommitStmt struct{}

type RollbackStmt struct{}

type CheckpointStmt struct{}

type ShowLogStmt struct{}

type HelpStmt struct{}

func (*CreateDatabaseStmt) statement() {}
func (*ShowDatabasesStmt) statement()  {}
func (*UseDatabaseStmt) statement()    {}
func (*CreateIndexStmt) statement()    {}
func (*DropIndexStmt) statement()      {}
func (*ShowIndexesStmt) statement()    {}
func (*InsertStmt) statement()         {}
func (*DeleteStmt) statement()         {}
func (*ScanStmt) statement()           {}
func (*MaxStmt) statement()            {}
func (*LoadStmt) statement()           {}
func (*CheckStmt) statement()          {}
func (*StatsStmt) statement()          {}
func (*BeginStmt) statement()          {}
func (*CommitStmt) statement()         {}
func (*RollbackStmt) statement()       {}
func (*CheckpointStmt) statement()     {}
func (*ShowLogStmt) statement()        {}
func (*HelpStmt) statement()           {}
