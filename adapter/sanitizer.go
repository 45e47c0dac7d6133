package adapter

import (
	"regexp"
	"strings"

	"github.com/opsdata-io/gateway/errs"
)

// selectRE matches a single SELECT or WITH...SELECT statement, anchored at
// the start after optional leading whitespace (spec §8 invariant 2).
var selectRE = regexp.MustCompile(`(?is)^\s*(WITH\s.*?\bSELECT\b.*|SELECT\b.*)$`)

var forbiddenKeywords = []string{
	"insert ", "update ", "delete ", "drop ", "alter ", "truncate ",
	"create ", "grant ", "revoke ", "pg_catalog.", "copy ", "vacuum ",
	"call ", "do $",
}

// SanitizeSQL enforces the relational adapter's read-only contract: at
// most one statement, only SELECT/WITH...SELECT bodies, and no dangerous
// identifiers. information_schema is explicitly allowed; pg_catalog
// writes are not (spec §4.3.1).
func SanitizeSQL(sql string) (string, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return "", errs.New(errs.QueryInvalid, "empty query", nil).WithRawText(sql)
	}

	if statementCount(trimmed) > 1 {
		return "", errs.New(errs.QueryInvalid, "multiple SQL statements are not permitted", nil).WithRawText(sql)
	}

	// Strip a single trailing semicolon before matching/forbidden-keyword
	// checks so "SELECT 1;" is treated the same as "SELECT 1".
	body := strings.TrimSuffix(trimmed, ";")

	if !selectRE.MatchString(body) {
		return "", errs.New(errs.QueryInvalid, "only SELECT / WITH...SELECT statements are permitted", nil).WithRawText(sql)
	}

	lower := strings.ToLower(body)
	for _, kw := range forbiddenKeywords {
		if strings.Contains(lower, kw) {
			return "", errs.New(errs.QueryInvalid, "query contains a disallowed keyword: "+strings.TrimSpace(kw), nil).WithRawText(sql)
		}
	}

	return body, nil
}

// statementCount splits sql on top-level ';' separators (ignoring any
// inside single- or double-quoted string literals) and returns the number
// of non-empty resulting statements.
func statementCount(sql string) int {
	inSingle, inDouble := false, false
	var parts []string
	start := 0

	for i, r := range sql {
		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case ';':
			if !inSingle && !inDouble {
				parts = append(parts, sql[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, sql[start:])

	count := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			count++
		}
	}
	return count
}
