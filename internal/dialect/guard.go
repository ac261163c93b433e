package dialect

import (
	"fmt"
	"regexp"
	"strings"
)

// lexRules describes how a dialect quotes strings and writes comments, so the
// guard can blank them out before looking for keywords.
type lexRules struct {
	hashComments     bool // # starts a line comment (MySQL)
	backslashEscapes bool // \x escapes inside quoted strings (MySQL)
	doubleQuoteText  bool // "..." is a string literal, not an identifier (MySQL)
	dollarQuotes     bool // $tag$...$tag$ strings (PostgreSQL)
	bracketIdents    bool // [name] identifiers (SQLite)
}

type guardRule struct {
	re *regexp.Regexp
	// raw rules match the statement as written; the rest match the
	// statement with strings and comments removed.
	raw bool
	msg string
}

// Guard rejects statements that are not single read-only queries. It is a
// lexical filter, not a parser.
type Guard struct {
	lex   lexRules
	rules []guardRule
}

var allowedPrefixes = []string{"SELECT ", "SHOW ", "DESCRIBE ", "DESC ", "EXPLAIN ", "WITH "}

var commonKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE", "GRANT", "REVOKE", "MERGE",
}

var setStatement = regexp.MustCompile(`(?i)(?:^|;)\s*SET\b`)

func keywordRule(word string) guardRule {
	return guardRule{
		re:  regexp.MustCompile(`(?i)(?:^|[^a-zA-Z_])` + word + `(?:[^a-zA-Z_]|$)`),
		msg: "query contains forbidden keyword: " + word,
	}
}

func functionRule(name string) guardRule {
	return guardRule{
		re:  regexp.MustCompile(`(?i)\b` + name + `\s*\(`),
		raw: true,
		msg: "query contains forbidden function: " + name + "()",
	}
}

func patternRule(pattern, desc string) guardRule {
	return guardRule{
		re:  regexp.MustCompile(pattern),
		raw: true,
		msg: "query contains forbidden pattern: " + desc,
	}
}

func cleanedRule(pattern, msg string) guardRule {
	return guardRule{re: regexp.MustCompile(pattern), msg: msg}
}

func newGuard(lex lexRules, keywords []string, extra ...guardRule) *Guard {
	g := &Guard{lex: lex}
	for _, kw := range commonKeywords {
		g.rules = append(g.rules, keywordRule(kw))
	}
	for _, kw := range keywords {
		g.rules = append(g.rules, keywordRule(kw))
	}
	g.rules = append(g.rules, extra...)
	return g
}

// Validate returns an error describing the first reason stmt is not allowed.
func (g *Guard) Validate(stmt string) error {
	trimmed := strings.TrimSpace(stmt)
	if trimmed == "" {
		return fmt.Errorf("empty query")
	}

	upper := strings.ToUpper(trimmed)
	allowed := false
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(upper, prefix) || upper == strings.TrimSpace(prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("only SELECT, WITH, SHOW, DESCRIBE, and EXPLAIN queries are allowed")
	}

	cleaned := g.Strip(stmt)
	if _, rest, found := strings.Cut(cleaned, ";"); found && strings.TrimSpace(rest) != "" {
		return fmt.Errorf("multiple statements are not allowed")
	}
	if setStatement.MatchString(cleaned) {
		return fmt.Errorf("SET statements are not allowed")
	}

	for _, r := range g.rules {
		target := cleaned
		if r.raw {
			target = stmt
		}
		if r.re.MatchString(target) {
			return fmt.Errorf("%s", r.msg)
		}
	}
	return nil
}

// Strip blanks out string literals and comments. Identifiers are kept.
func (g *Guard) Strip(sql string) string {
	var out strings.Builder
	n := len(sql)

	for i := 0; i < n; {
		c := sql[i]
		switch {
		case c == '-' && i+1 < n && sql[i+1] == '-', c == '#' && g.lex.hashComments:
			for i < n && sql[i] != '\n' {
				i++
			}
			out.WriteByte(' ')

		case c == '/' && i+1 < n && sql[i+1] == '*':
			i += 2
			for i+1 < n && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i += 2
			out.WriteByte(' ')

		case c == '$' && g.lex.dollarQuotes && dollarTag(sql[i:]) != "":
			tag := dollarTag(sql[i:])
			if end := strings.Index(sql[i+len(tag):], tag); end >= 0 {
				i += len(tag) + end + len(tag)
				out.WriteString("''")
			} else {
				out.WriteByte(c)
				i++
			}

		case c == '\'':
			i = g.skipQuoted(sql, i, '\'')
			out.WriteString("''")

		case c == '"' && g.lex.doubleQuoteText:
			i = g.skipQuoted(sql, i, '"')
			out.WriteString(`""`)

		case c == '"':
			i = copyQuoted(&out, sql, i, '"', '"')

		case c == '`':
			i = copyQuoted(&out, sql, i, '`', '`')

		case c == '[' && g.lex.bracketIdents:
			i = copyQuoted(&out, sql, i, '[', ']')

		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// skipQuoted returns the index just past the literal opened at sql[start].
func (g *Guard) skipQuoted(sql string, start int, quote byte) int {
	n := len(sql)
	i := start + 1
	for i < n {
		switch {
		case sql[i] == quote && i+1 < n && sql[i+1] == quote:
			i += 2
		case sql[i] == quote:
			return i + 1
		case sql[i] == '\\' && g.lex.backslashEscapes && i+1 < n:
			i += 2
		default:
			i++
		}
	}
	return n
}

// copyQuoted copies an identifier including its delimiters.
func copyQuoted(out *strings.Builder, sql string, start int, open, close byte) int {
	n := len(sql)
	out.WriteByte(open)
	i := start + 1
	for i < n {
		if sql[i] == close {
			if open == close && i+1 < n && sql[i+1] == close {
				out.WriteByte(close)
				out.WriteByte(close)
				i += 2
				continue
			}
			out.WriteByte(close)
			return i + 1
		}
		out.WriteByte(sql[i])
		i++
	}
	return n
}

// dollarTag returns "$tag$" when s starts with a dollar-quote opener.
func dollarTag(s string) string {
	for j := 1; j < len(s); j++ {
		c := s[j]
		if c == '$' {
			return s[:j+1]
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || j > 1 && c >= '0' && c <= '9') {
			return ""
		}
	}
	return ""
}
