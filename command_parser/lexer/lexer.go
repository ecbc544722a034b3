package lex

import (
	"strings"
)

type Lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

func New(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) NextToken() Token {
	l.skipWhiteSpaces()

	switch l.ch {
	case ',':
		return l.single(COMMA)
	case ':':
		return l.single(COLON)
	case ';':
		return l.single(SEMICOLON)
	case '(':
		return l.single(OPENROUNDED)
	case ')':
		return l.single(CLOSEDROUNDED)
	case '=':
		return l.single(EQUAL)
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Kind: LESSEQUAL, Value: "<="}
		}
		return l.single(LESS)
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Kind: GREATEREQUAL, Value: ">="}
		}
		return l.single(GREATER)
	case '"', '\'':
		str, ok := l.readString()
		if !ok {
			return Token{Kind: INVALID, Value: str}
		}
		return Token{Kind: STRING, Value: str}
	case '-':
		if isNumber(l.peekChar()) {
			return l.readNumber()
		}
		return l.single(INVALID)
	case 0:
		return Token{Kind: END, Value: ""}
	default:
		if isLetter(l.ch) {
			str := l.keyIdentLookup() // str could be a keyword or an identifier
			return Token{Kind: KeyIdentKind(str), Value: str}
		} else if isNumber(l.ch) {
			return l.readNumber()
		}
		return l.single(INVALID)
	}
}

// Tokens lexes the whole input, END included.
func (l *Lexer) Tokens() []Token {
	var out []Token
	for {
		tok := l.NextToken()
		out = append(out, tok)
		if tok.Kind == END {
			return out
		}
	}
}

func (l *Lexer) single(kind TokenKind) Token {
	tok := Token{Kind: kind, Value: string(l.ch)}
	l.readChar()
	return tok
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) skipWhiteSpaces() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

func isLetter(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
}

func isNumber(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func (l *Lexer) keyIdentLookup() string {
	start := l.pos
	for isLetter(l.ch) || isNumber(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads an optionally negative integer or decimal.
func (l *Lexer) readNumber() Token {
	start := l.pos
	if l.ch == '-' {
		l.readChar()
	}
	for isNumber(l.ch) {
		l.readChar()
	}
	kind := INT
	if l.ch == '.' && isNumber(l.peekChar()) {
		kind = FLOAT
		l.readChar()
		for isNumber(l.ch) {
			l.readChar()
		}
	}
	return Token{Kind: kind, Value: l.input[start:l.pos]}
}

// readString reads a string quoted with the current character. A doubled
// quote stands for itself. ok is false when the input ends first.
func (l *Lexer) readString() (string, bool) {
	quote := l.ch
	l.readChar() // opening quote
	var sb strings.Builder
	for {
		switch {
		case l.ch == 0:
			return sb.String(), false
		case l.ch == quote && l.peekChar() == quote:
			sb.WriteByte(quote)
			l.readChar()
			l.readChar()
		case l.ch == quote:
			l.readChar() // closing quote
			return sb.String(), true
		default:
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
}

func KeyIdentKind(str string) TokenKind {
	if kind, ok := keywords[strings.ToUpper(str)]; ok {
		return kind
	}
	return IDENT
}
