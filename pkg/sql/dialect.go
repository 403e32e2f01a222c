package sql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dialect names.
const (
	DialectPostgres  = "postgres"
	DialectSQLServer = "sqlserver"
	DialectMySQL     = "mysql"
	DialectSQLite    = "sqlite"
)

// Dialect captures the syntax differences the converter has to respect.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the parameter at position (1-based).
	Placeholder(position int) string
	QuoteIdentifier(name string) string
	// TopClause is emitted right after SELECT; LimitClause at the end.
	// Exactly one of them is non-empty for n > 0.
	TopClause(n int) string
	LimitClause(n int) string
}

type dialect struct {
	name        string
	placeholder func(int) string
	openQuote   string
	closeQuote  string
	useTop      bool
}

func (d *dialect) Name() string { return d.name }

func (d *dialect) Placeholder(position int) string { return d.placeholder(position) }

var simpleIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// QuoteIdentifier leaves simple lower-case identifiers bare and quotes
// everything else, doubling any embedded closing quote.
func (d *dialect) QuoteIdentifier(name string) string {
	if name == "*" || (simpleIdentifier.MatchString(name) && !reservedWords[name]) {
		return name
	}
	return d.openQuote + strings.ReplaceAll(name, d.closeQuote, d.closeQuote+d.closeQuote) + d.closeQuote
}

func (d *dialect) TopClause(n int) string {
	if !d.useTop || n <= 0 {
		return ""
	}
	return fmt.Sprintf("TOP (%d)", n)
}

func (d *dialect) LimitClause(n int) string {
	if d.useTop || n <= 0 {
		return ""
	}
	return "LIMIT " + strconv.Itoa(n)
}

func questionMark(int) string { return "?" }

var dialects = map[string]*dialect{
	DialectPostgres: {
		name:        DialectPostgres,
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		openQuote:   `"`,
		closeQuote:  `"`,
	},
	DialectSQLServer: {
		name:        DialectSQLServer,
		placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
		openQuote:   "[",
		closeQuote:  "]",
		useTop:      true,
	},
	DialectMySQL: {
		name:        DialectMySQL,
		placeholder: questionMark,
		openQuote:   "`",
		closeQuote:  "`",
	},
	DialectSQLite: {
		name:        DialectSQLite,
		placeholder: questionMark,
		openQuote:   `"`,
		closeQuote:  `"`,
	},
}

var dialectAliases = map[string]string{
	"postgresql": DialectPostgres,
	"pg":         DialectPostgres,
	"mssql":      DialectSQLServer,
	"sqlite3":    DialectSQLite,
	"mariadb":    DialectMySQL,
}

// DialectFor looks up a dialect by name or common alias.
func DialectFor(name string) (Dialect, error) {
	key := strings.ToLower(name)
	if alias, ok := dialectAliases[key]; ok {
		key = alias
	}
	d, ok := dialects[key]
	if !ok {
		return nil, fmt.Errorf("unsupported SQL dialect %q", name)
	}
	return d, nil
}

var reservedWords = map[string]bool{
	"all": true, "and": true, "any": true, "as": true, "asc": true, "between": true,
	"by": true, "case": true, "check": true, "column": true, "create": true,
	"default": true, "delete": true, "desc": true, "distinct": true, "drop": true,
	"else": true, "end": true, "foreign": true, "from": true, "grant": true,
	"group": true, "having": true, "in": true, "index": true, "insert": true,
	"into": true, "is": true, "join": true, "key": true, "like": true, "limit": true,
	"not": true, "null": true, "offset": true, "on": true, "or": true, "order": true,
	"primary": true, "references": true, "select": true, "table": true, "then": true,
	"to": true, "top": true, "union": true, "update": true, "user": true,
	"values": true, "when": true, "where": true, "with": true,
}
