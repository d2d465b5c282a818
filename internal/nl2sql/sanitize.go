package nl2sql

import (
	"strings"
	"unicode/utf8"
)

// Sanitize double-quotes the collection named by the primary FROM clause of a
// generated query. The primary clause is the first FROM outside string
// literals, comments and parentheses that is followed by a plain name; nested
// clauses are only considered when the top level has none. Quoted, qualified
// and function-call references are left alone, so Sanitize is idempotent.
func Sanitize(queryText string) string {
	candidates := fromClauses(queryText)
	best := -1
	for i, candidate := range candidates {
		if candidate.target == targetNone {
			continue
		}
		if best == -1 || candidate.depth < candidates[best].depth {
			best = i
		}
	}
	if best == -1 {
		return queryText
	}
	chosen := candidates[best]
	if chosen.target != targetBare {
		return queryText
	}
	name := queryText[chosen.start:chosen.end]
	return queryText[:chosen.start] + `"` + name + `"` + queryText[chosen.end:]
}

type targetKind int

const (
	targetNone targetKind = iota
	targetBare
	targetQuoted
)

type fromClause struct {
	depth  int
	target targetKind
	start  int
	end    int
}

// fromClauses lists FROM keywords in source order with their nesting depth and
// the kind of reference that follows each.
func fromClauses(text string) []fromClause {
	var clauses []fromClause
	depth := 0
	for i := 0; i < len(text); {
		switch {
		case text[i] == '\'':
			i = skipQuoted(text, i, '\'')
		case text[i] == '"':
			i = skipQuoted(text, i, '"')
		case strings.HasPrefix(text[i:], "--"):
			if end := strings.IndexByte(text[i:], '\n'); end >= 0 {
				i += end + 1
			} else {
				i = len(text)
			}
		case strings.HasPrefix(text[i:], "/*"):
			if end := strings.Index(text[i+2:], "*/"); end >= 0 {
				i += end + 4
			} else {
				i = len(text)
			}
		case text[i] == '(':
			depth++
			i++
		case text[i] == ')':
			if depth > 0 {
				depth--
			}
			i++
		case isKeywordAt(text, i, "from"):
			clause := inspectTarget(text, i+len("from"))
			clause.depth = depth
			clauses = append(clauses, clause)
			i += len("from")
		case isIdentByte(text[i]):
			for i < len(text) && isIdentByte(text[i]) {
				i++
			}
		default:
			i++
		}
	}
	return clauses
}

func inspectTarget(text string, pos int) fromClause {
	start := pos
	for start < len(text) && isSpace(text[start]) {
		start++
	}
	if start == pos || start >= len(text) {
		return fromClause{target: targetNone}
	}
	if text[start] == '"' {
		return fromClause{target: targetQuoted, start: start, end: skipQuoted(text, start, '"')}
	}
	if !isIdentStart(text[start]) {
		return fromClause{target: targetNone}
	}
	end := start
	for end < len(text) && isNameByte(text[end]) && !strings.HasPrefix(text[end:], "--") {
		end++
	}
	next := end
	for next < len(text) && isSpace(text[next]) {
		next++
	}
	if next < len(text) && (text[next] == '.' || text[next] == '(') {
		return fromClause{target: targetNone}
	}
	if end < len(text) && text[end] == '.' {
		return fromClause{target: targetNone}
	}
	return fromClause{target: targetBare, start: start, end: end}
}

// skipQuoted returns the index just past the closing quote; doubled quotes
// are escapes.
func skipQuoted(text string, start int, quote byte) int {
	i := start + 1
	for i < len(text) {
		if text[i] == quote {
			if i+1 < len(text) && text[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(text)
}

func isKeywordAt(text string, i int, keyword string) bool {
	if len(text)-i < len(keyword) || !strings.EqualFold(text[i:i+len(keyword)], keyword) {
		return false
	}
	if i > 0 && isIdentByte(text[i-1]) {
		return false
	}
	end := i + len(keyword)
	return end == len(text) || !isIdentByte(text[end])
}

// isIdentStart accepts any byte of a multi-byte UTF-8 sequence, so names such as
// ventes_été scan as one identifier.
func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b >= utf8.RuneSelf
}

func isIdentByte(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9') || b == '$'
}

// isNameByte also accepts '-', which collection names may contain but bare SQL
// identifiers may not.
func isNameByte(b byte) bool {
	return isIdentByte(b) || b == '-'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}
