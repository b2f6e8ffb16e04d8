// Package safety implements the SQL safety gate described in spec §4.8.
// The self-correction budget is tracked on the saga record, not here.
package safety

import (
	"errors"
	"regexp"
	"strings"
)

// ErrUnsafeStatement is returned when a generated statement fails the
// safety gate: it is not a single read-only SELECT/WITH statement, or it
// contains a banned keyword at a statement boundary.
var ErrUnsafeStatement = errors.New("unsafe statement")

// bannedKeywords must never appear as the leading keyword of any statement
// in the input, including statements chained after a semicolon.
var bannedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER",
	"TRUNCATE", "GRANT", "REVOKE", "CREATE",
}

var leadingKeywordRe = regexp.MustCompile(`(?i)^\s*([A-Za-z]+)`)

// Check implements the safety gate: parse the produced statement and reject
// unless the first top-level keyword is SELECT or WITH (whose terminating
// statement must itself be a SELECT), and none of the banned keywords
// appear at a statement boundary.
func Check(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return ErrUnsafeStatement
	}

	statements := splitStatements(trimmed)
	if len(statements) == 0 {
		return ErrUnsafeStatement
	}

	for _, stmt := range statements {
		keyword := leadingKeyword(stmt)
		for _, banned := range bannedKeywords {
			if strings.EqualFold(keyword, banned) {
				return ErrUnsafeStatement
			}
		}
	}

	first := leadingKeyword(statements[0])
	switch strings.ToUpper(first) {
	case "SELECT":
		return nil
	case "WITH":
		// The main statement is the first DML keyword outside the CTE bodies.
		depth, main := 0, ""
		for _, w := range strings.Fields(strings.NewReplacer("(", " ( ", ")", " ) ").Replace(strings.ToUpper(statements[0]))) {
			switch {
			case w == "(":
				depth++
			case w == ")":
				depth--
			case depth == 0 && main == "" && (w == "SELECT" || w == "INSERT" || w == "UPDATE" || w == "DELETE"):
				main = w
			}
		}
		if main != "SELECT" {
			return ErrUnsafeStatement
		}
		return nil
	default:
		return ErrUnsafeStatement
	}
}

// splitStatements splits on statement-terminating semicolons, dropping
// empty trailing fragments (a trailing semicolon is common and harmless).
func splitStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func leadingKeyword(stmt string) string {
	m := leadingKeywordRe.FindStringSubmatch(stmt)
	if len(m) < 2 {
		return ""
	}
	return strings.ToUpper(m[1])
}

