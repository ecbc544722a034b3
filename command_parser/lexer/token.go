package lex

type TokenKind int

const (
	// identifier
	IDENT TokenKind = iota

	// literals
	INT
	FLOAT
	STRING

	// punctuation and operators
	COMMA
	COLON
	SEMICOLON
	OPENROUNDED
	CLOSEDROUNDED
	EQUAL
	LESS
	LESSEQUAL
	GREATER
	GREATEREQUAL

	// keywords
	CREATE
	DROP
	SHOW
	USE
	DATABASE
	DATABASES
	INDEX
	INDEXES
	ON
	UNIQUE
	NULLS
	ASC
	DESC
	MAXROWS
	INSERT
	DELETE
	SCAN
	MAX
	LOAD
	RANGE
	CHECK
	STATS
	BEGIN
	COMMIT
	ROLLBACK
	CHECKPOINT
	LOG
	AT
	FROM
	TO
	EXCLUSIVE
	WHERE
	AND
	OR
	NOT
	LIMIT
	HELP

	END
	INVALID
)

type Token struct {
	Kind  TokenKind
	Value string
}

var kindNames = map[TokenKind]string{
	IDENT:         "IDENT",
	INT:           "INT",
	FLOAT:         "FLOAT",
	STRING:        "STRING",
	COMMA:         "COMMA",
	COLON:         "COLON",
	SEMICOLON:     "SEMICOLON",
	OPENROUNDED:   "OPENROUNDED",
	CLOSEDROUNDED: "CLOSEDROUNDED",
	EQUAL:         "EQUAL",
	LESS:          "LESS",
	LESSEQUAL:     "LESSEQUAL",
	GREATER:       "GREATER",
	GREATEREQUAL:  "GREATEREQUAL",
	END:           "END",
	INVALID:       "INVALID",
}

// keywords maps the upper-cased spelling of every keyword to its kind.
var keywords = map[string]TokenKind{
	"CREATE":     CREATE,
	"DROP":       DROP,
	"SHOW":       SHOW,
	"USE":        USE,
	"DATABASE":   DATABASE,
	"DATABASES":  DATABASES,
	"INDEX":      INDEX,
	"INDEXES":    INDEXES,
	"ON":         ON,
	"UNIQUE":     UNIQUE,
	"NULLS":      NULLS,
	"ASC":        ASC,
	"DESC":       DESC,
	"MAXROWS":    MAXROWS,
	"INSERT":     INSERT,
	"DELETE":     DELETE,
	"SCAN":       SCAN,
	"MAX":        MAX,
	"LOAD":       LOAD,
	"RANGE":      RANGE,
	"CHECK":      CHECK,
	"STATS":      STATS,
	"BEGIN":      BEGIN,
	"COMMIT":     COMMIT,
	"ROLLBACK":   ROLLBACK,
	"CHECKPOINT": CHECKPOINT,
	"LOG":        LOG,
	"AT":         AT,
	"FROM":       FROM,
	"TO":         TO,
	"EXCLUSIVE":  EXCLUSIVE,
	"WHERE":      WHERE,
	"AND":        AND,
	"OR":         OR,
	"NOT":        NOT,
	"LIMIT":      LIMIT,
	"HELP":       HELP,
}

func init() {
	for name, kind := range keywords {
		kindNames[kind] = name
	}
}

func (tk TokenKind) String() string {
	if name, ok := kindNames[tk]; ok {
		return name
	}
	return "UNKNOWN"
}
