// Package sql renders query models into parameterized SQL and guards the
// statements and parameter values handed to a data source.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyStatement indicates there is nothing to execute.
	ErrEmptyStatement = errors.New("empty SQL statement")

	// ErrMultipleStatements indicates the SQL holds more than one statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

// NormalizeStatement trims whitespace and one trailing semicolon, then
// rejects the statement if another semicolon appears outside string
// literals, quoted identifiers and comments.
func NormalizeStatement(stmt string) (string, error) {
	stmt = strings.TrimSpace(stmt)
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	if stmt == "" {
		return "", ErrEmptyStatement
	}
	if hasStatementSeparator(stmt) {
		return "", ErrMultipleStatements
	}
	return stmt, nil
}

// hasStatementSeparator scans stmt for a semicolon in code position.
func hasStatementSeparator(stmt string) bool {
	const (
		stateCode = iota
		stateSingleQuote
		stateDoubleQuote
		stateBacktick
		stateBracket
		stateLineComment
		stateBlockComment
	)

	runes := []rune(stmt)
	state := stateCode
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch state {
		case stateCode:
			switch {
			case c == ';':
				return true
			case c == '\'':
				state = stateSingleQuote
			case c == '"':
				state = stateDoubleQuote
			case c == '`':
				state = stateBacktick
			case c == '[':
				state = stateBracket
			case c == '-' && next == '-':
				state = stateLineComment
				i++
			case c == '/' && next == '*':
				state = stateBlockComment
				i++
			}
		case stateSingleQuote:
			// '' is an escaped quote inside the literal; \' is the MySQL form
			if c == '\\' {
				i++
			} else if c == '\'' {
				if next == '\'' {
					i++
				} else {
					state = stateCode
				}
			}
		case stateDoubleQuote:
			if c == '"' {
				if next == '"' {
					i++
				} else {
					state = stateCode
				}
			}
		case stateBacktick:
			if c == '`' {
				state = stateCode
			}
		case stateBracket:
			if c == ']' {
				state = stateCode
			}
		case stateLineComment:
			if c == '\n' {
				state = stateCode
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateCode
				i++
			}
		}
	}
	return false
}
