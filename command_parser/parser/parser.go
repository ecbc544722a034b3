package parser

import (
	"strconv"
	"strings"

	lex "DaemonIndex/command_parser/lexer"

	"github.com/cockroachdb/errors"
)

var (
	ErrUnexpectedToken = errors.New("unexpected token")
	ErrEmptyStatement  = errors.New("empty statement")
)

type Parser struct {
	l         *lex.Lexer
	curToken  lex.Token
	peekToken lex.Token
}

func New(l *lex.Lexer) *Parser {
	p := &Parser{l: l}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses one statement from input.
func Parse(input string) (Statement, error) {
	return New(lex.New(input)).ParseStatement()
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) unexpected(want string) error {
	if p.curToken.Kind == lex.END {
		return errors.Wrapf(ErrUnexpectedToken, "expected %s, got end of input", want)
	}
	return errors.Wrapf(ErrUnexpectedToken, "expected %s, got %s (%q)", want, p.curToken.Kind, p.curToken.Value)
}

// expect consumes the current token if it has kind.
func (p *Parser) expect(kind lex.TokenKind) (lex.Token, error) {
	tok := p.curToken
	if tok.Kind != kind {
		return tok, p.unexpected(kind.String())
	}
	p.nextToken()
	return tok, nil
}

// accept consumes the current token if it has kind and reports whether it
// did.
func (p *Parser) accept(kind lex.TokenKind) bool {
	if p.curToken.Kind != kind {
		return false
	}
	p.nextToken()
	return true
}

func (p *Parser) name() (string, error) {
	tok, err := p.expect(lex.IDENT)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// ParseStatement parses one statement, optionally ended by a semicolon,
// and requires the input to end there.
func (p *Parser) ParseStatement() (Statement, error) {
	if p.curToken.Kind == lex.END || p.curToken.Kind == lex.SEMICOLON {
		return nil, ErrEmptyStatement
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	p.accept(lex.SEMICOLON)
	if p.curToken.Kind != lex.END {
		return nil, p.unexpected("end of statement")
	}
	return stmt, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	tok := p.curToken
	p.nextToken()

	switch tok.Kind {
	case lex.CREATE:
		switch {
		case p.accept(lex.DATABASE):
			name, err := p.name()
			return &CreateDatabaseStmt{DbName: name}, err
		case p.accept(lex.INDEX):
			return p.parseCreateIndex()
		}
		return nil, p.unexpected("DATABASE or INDEX")
	case lex.SHOW:
		switch {
		case p.accept(lex.DATABASES):
			return &ShowDatabasesStmt{}, nil
		case p.accept(lex.INDEXES):
			return &ShowIndexesStmt{}, nil
		case p.accept(lex.LOG):
			return &ShowLogStmt{}, nil
		}
		return nil, p.unexpected("DATABASES, INDEXES or LOG")
	case lex.USE:
		name, err := p.name()
		return &UseDatabaseStmt{DbName: name}, err
	case lex.DROP:
		if _, err := p.expect(lex.INDEX); err != nil {
			return nil, err
		}
		name, err := p.name()
		return &DropIndexStmt{Name: name}, err
	case lex.INSERT:
		return p.parseInsert()
	case lex.DELETE:
		return p.parseDelete()
	case lex.SCAN:
		return p.parseScan()
	case lex.MAX:
		return p.parseMax()
	case lex.LOAD:
		return p.parseLoad()
	case lex.CHECK:
		name, err := p.name()
		return &CheckStmt{Index: name}, err
	case lex.STATS:
		if p.curToken.Kind == lex.IDENT {
			name, _ := p.name()
			return &StatsStmt{Index: name}, nil
		}
		return &StatsStmt{}, nil
	case lex.BEGIN:
		return p.parseBegin()
	case lex.COMMIT:
		return &CommitStmt{}, nil
	case lex.ROLLBACK:
		return &RollbackStmt{}, nil
	case lex.CHECKPOINT:
		return &CheckpointStmt{}, nil
	case lex.LOG:
		return &ShowLogStmt{}, nil
	case lex.HELP:
		return &HelpStmt{}, nil
	}
	return nil, errors.Wrapf(ErrUnexpectedToken, "unknown command %q", tok.Value)
}

// parseBegin: begin [read] [uncommitted|committed|repeatable [read]|serializable]
func (p *Parser) parseBegin() (Statement, error) {
	stmt := &BeginStmt{}
	if p.curToken.Kind == lex.IDENT && strings.EqualFold(p.curToken.Value, "read") {
		p.nextToken()
	}
	if p.curToken.Kind != lex.IDENT {
		return stmt, nil
	}
	switch level := strings.ToLower(p.curToken.Value); level {
	case "uncommitted", "committed", "serializable":
		stmt.Isolation = level
	case "repeatable":
		stmt.Isolation = level
		if p.peekToken.Kind == lex.IDENT && strings.EqualFold(p.peekToken.Value, "read") {
			p.nextToken()
		}
	default:
		return nil, p.unexpected("an isolation level")
	}
	p.nextToken()
	return stmt, nil
}

func (p *Parser) parseInt(what string) (int64, error) {
	tok, err := p.expect(lex.INT)
	if err != nil {
		return 0, errors.Wrap(err, what)
	}
	n, err := strconv.ParseInt(tok.Value, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "%s %q", what, tok.Value)
	}
	return n, nil
}
