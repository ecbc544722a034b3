package parser

import (
	"strings"

	lex "DaemonIndex/command_parser/lexer"
	"DaemonIndex/types"

	"github.com/cockroachdb/errors"
)

// --- INSERT ---
// insert <index> (<v>, ...) [at <page>:<slot>] [, (<v>, ...) ...]
func (p *Parser) parseInsert() (Statement, error) {
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	rows, err := p.parseRowList()
	if err != nil {
		return nil, err
	}
	return &InsertStmt{Index: name, Rows: rows}, nil
}

// --- DELETE ---
// delete <index> (<v>, ...) [at <page>:<slot>]
// delete <index> [from ...] [to ...] [where ...] [limit n]
func (p *Parser) parseDelete() (Statement, error) {
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	if p.curToken.Kind == lex.OPENROUNDED {
		row, err := p.parseRow()
		if err != nil {
			return nil, err
		}
		return &DeleteStmt{Index: name, Row: &row}, nil
	}
	rc, err := p.parseRangeClause()
	if err != nil {
		return nil, err
	}
	return &DeleteStmt{Index: name, Range: &rc}, nil
}

// --- LOAD ---
// load <index> range <from> <count>
// load <index> (<v>, ...) [at <page>:<slot>] [, ...]
func (p *Parser) parseLoad() (Statement, error) {
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	stmt := &LoadStmt{Index: name}
	if p.accept(lex.RANGE) {
		stmt.Generate = true
		if stmt.From, err = p.parseInt("range start"); err != nil {
			return nil, err
		}
		if stmt.Count, err = p.parseInt("row count"); err != nil {
			return nil, err
		}
		if stmt.Count < 0 {
			return nil, errors.Newf("row count must not be negative, got %d", stmt.Count)
		}
		return stmt, nil
	}
	if stmt.Rows, err = p.parseRowList(); err != nil {
		return nil, err
	}
	return stmt, nil
}

// --- SCAN ---
func (p *Parser) parseScan() (Statement, error) {
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	rc, err := p.parseRangeClause()
	if err != nil {
		return nil, err
	}
	return &ScanStmt{Index: name, RangeClause: rc}, nil
}

// --- MAX ---
func (p *Parser) parseMax() (Statement, error) {
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	stmt := &MaxStmt{Index: name}
	if p.accept(lex.WHERE) {
		if stmt.Where, err = p.parseWhere(); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseRangeClause() (RangeClause, error) {
	var rc RangeClause
	var err error
	if p.accept(lex.FROM) {
		if rc.From, err = p.parseValueList(); err != nil {
			return rc, err
		}
		rc.FromExclusive = p.accept(lex.EXCLUSIVE)
	}
	if p.accept(lex.TO) {
		if rc.To, err = p.parseValueList(); err != nil {
			return rc, err
		}
		rc.ToExclusive = p.accept(lex.EXCLUSIVE)
	}
	if p.accept(lex.WHERE) {
		if rc.Where, err = p.parseWhere(); err != nil {
			return rc, err
		}
	}
	if p.accept(lex.LIMIT) {
		n, err := p.parseInt("limit")
		if err != nil {
			return rc, err
		}
		if n <= 0 {
			return rc, errors.Newf("limit must be positive, got %d", n)
		}
		rc.Limit = int(n)
	}
	return rc, nil
}

// parseWhere: <term> {and <term>} where a term is a predicate or a
// parenthesized list of predicates joined by or.
func (p *Parser) parseWhere() ([][]Predicate, error) {
	var where [][]Predicate
	for {
		var group []Predicate
		if p.accept(lex.OPENROUNDED) {
			for {
				pred, err := p.parsePredicate()
				if err != nil {
					return nil, err
				}
				group = append(group, pred)
				if !p.accept(lex.OR) {
					break
				}
			}
			if _, err := p.expect(lex.CLOSEDROUNDED); err != nil {
				return nil, err
			}
		} else {
			pred, err := p.parsePredicate()
			if err != nil {
				return nil, err
			}
			group = []Predicate{pred}
		}
		where = append(where, group)
		if !p.accept(lex.AND) {
			return where, nil
		}
	}
}

// parsePredicate: [not] <column> <op> <value>
func (p *Parser) parsePredicate() (Predicate, error) {
	var pred Predicate
	pred.Negate = p.accept(lex.NOT)
	var err error
	if pred.Column, err = p.name(); err != nil {
		return pred, err
	}
	switch p.curToken.Kind {
	case lex.EQUAL:
		pred.Op = types.OpEquals
	case lex.LESS:
		pred.Op = types.OpLessThan
	case lex.LESSEQUAL:
		pred.Op = types.OpLessOrEquals
	case lex.GREATER:
		pred.Op = types.OpGreaterThan
	case lex.GREATEREQUAL:
		pred.Op = types.OpGreaterOrEquals
	default:
		return pred, p.unexpected("a comparison operator")
	}
	p.nextToken()
	pred.Value, err = p.parseValue()
	return pred, err
}

func (p *Parser) parseRowList() ([]RowLiteral, error) {
	var rows []RowLiteral
	for {
		row, err := p.parseRow()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if !p.accept(lex.COMMA) {
			return rows, nil
		}
	}
}

// parseRow: (<v>, ...) [at <page>:<slot>]
func (p *Parser) parseRow() (RowLiteral, error) {
	var row RowLiteral
	var err error
	if row.Values, err = p.parseValueList(); err != nil {
		return row, err
	}
	if !p.accept(lex.AT) {
		return row, nil
	}
	page, err := p.parseInt("page number")
	if err != nil {
		return row, err
	}
	if _, err := p.expect(lex.COLON); err != nil {
		return row, err
	}
	slot, err := p.parseInt("slot")
	if err != nil {
		return row, err
	}
	if page < 0 || page > 1<<32-1 || slot < 0 || slot > 1<<16-1 {
		return row, errors.Newf("row location %d:%d out of range", page, slot)
	}
	row.At = &Location{Page: uint32(page), Slot: uint16(slot)}
	return row, nil
}

// parseValueList: (<v>, ...)
func (p *Parser) parseValueList() ([]string, error) {
	if _, err := p.expect(lex.OPENROUNDED); err != nil {
		return nil, err
	}
	var values []string
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if !p.accept(lex.COMMA) {
			break
		}
	}
	if _, err := p.expect(lex.CLOSEDROUNDED); err != nil {
		return nil, err
	}
	return values, nil
}

// parseValue accepts numbers, strings and the bare words null, true and
// false.
func (p *Parser) parseValue() (string, error) {
	tok := p.curToken
	switch tok.Kind {
	case lex.INT, lex.FLOAT, lex.STRING:
		p.nextToken()
		return tok.Value, nil
	case lex.IDENT:
		switch strings.ToLower(tok.Value) {
		case "null", "true", "false":
			p.nextToken()
			return strings.ToLower(tok.Value), nil
		}
	}
	return "", p.unexpected("a value")
}
