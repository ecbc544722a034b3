package parser

import (
	lex "DaemonIndex/command_parser/lexer"

	"github.com/cockroachdb/errors"
)

// --- CREATE INDEX ---
func (p *Parser) parseCreateIndex() (Statement, error) {
	stmt := &CreateIndexStmt{}
	var err error
	if stmt.Name, err = p.name(); err != nil {
		return nil, err
	}
	if _, err := p.expect(lex.ON); err != nil {
		return nil, err
	}
	if stmt.Table, err = p.name(); err != nil {
		return nil, err
	}
	if _, err := p.expect(lex.OPENROUNDED); err != nil {
		return nil, err
	}
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, col)
		if !p.accept(lex.COMMA) {
			break
		}
	}
	if _, err := p.expect(lex.CLOSEDROUNDED); err != nil {
		return nil, err
	}

	for {
		switch {
		case p.accept(lex.UNIQUE):
			stmt.Unique = true
			if p.accept(lex.NULLS) {
				stmt.UniqueNulls = true
			}
		case p.accept(lex.MAXROWS):
			n, err := p.parseInt("maxrows")
			if err != nil {
				return nil, err
			}
			if n < 0 {
				return nil, errors.Newf("maxrows must not be negative, got %d", n)
			}
			stmt.MaxRows = int(n)
		default:
			return stmt, nil
		}
	}
}

// parseColumnDef: <name> <type> [asc|desc]
func (p *Parser) parseColumnDef() (ColumnDef, error) {
	var col ColumnDef
	var err error
	if col.Name, err = p.name(); err != nil {
		return col, err
	}
	if col.Type, err = p.name(); err != nil {
		return col, err
	}
	switch {
	case p.accept(lex.DESC):
		col.Descending = true
	case p.accept(lex.ASC):
	}
	return col, nil
}
