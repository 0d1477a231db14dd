package db

import (
	"strings"
)

// SplitStatements splits a SQL script into individual statements.
//
// Semicolons inside quoted strings, quoted identifiers, comments, dollar-quoted
// bodies and CREATE TRIGGER ... BEGIN ... END blocks do not end a statement.
// Comments are dropped and empty statements are skipped.
func SplitStatements(script string) []string {
	var (
		out       []string
		buf       strings.Builder
		word      strings.Builder
		lead      []string
		depth     int
		isTrigger bool
	)

	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		w := strings.ToLower(word.String())
		word.Reset()
		if len(lead) < 3 {
			lead = append(lead, w)
			if len(lead) >= 2 && lead[0] == "create" {
				switch {
				case lead[1] == "trigger":
					isTrigger = true
				case len(lead) == 3 && (lead[1] == "temp" || lead[1] == "temporary") && lead[2] == "trigger":
					isTrigger = true
				}
			}
		}
		if !isTrigger {
			return
		}
		switch w {
		case "begin", "case":
			depth++
		case "end":
			if depth > 0 {
				depth--
			}
		}
	}
	emit := func() {
		flushWord()
		if stmt := strings.TrimSpace(buf.String()); stmt != "" {
			out = append(out, stmt)
		}
		buf.Reset()
		lead = lead[:0]
		depth = 0
		isTrigger = false
	}

	runes := []rune(script)
	n := len(runes)
	for i := 0; i < n; i++ {
		r := runes[i]
		switch {
		case r == '-' && i+1 < n && runes[i+1] == '-':
			flushWord()
			for i < n && runes[i] != '\n' {
				i++
			}
			buf.WriteRune('\n')
		case r == '/' && i+1 < n && runes[i+1] == '*':
			flushWord()
			i += 2
			for i < n && !(runes[i] == '*' && i+1 < n && runes[i+1] == '/') {
				i++
			}
			i++
			buf.WriteRune(' ')
		case r == '\'' || r == '"':
			flushWord()
			end := scanQuoted(runes, i, r)
			buf.WriteString(string(runes[i:end]))
			i = end - 1
		case r == '$' && word.Len() == 0:
			tag, ok := dollarTag(runes, i)
			if !ok {
				buf.WriteRune(r)
				continue
			}
			tagRunes := []rune(tag)
			end := indexRunes(runes, tagRunes, i+len(tagRunes))
			if end < 0 {
				buf.WriteString(string(runes[i:]))
				i = n
				continue
			}
			bodyEnd := end + len(tagRunes)
			buf.WriteString(string(runes[i:bodyEnd]))
			i = bodyEnd - 1
		case r == ';':
			flushWord()
			if isTrigger && depth > 0 {
				buf.WriteRune(r)
				continue
			}
			emit()
		case isWordRune(r):
			word.WriteRune(r)
			buf.WriteRune(r)
		default:
			flushWord()
			buf.WriteRune(r)
		}
	}
	emit()
	return out
}

// scanQuoted returns the index just past the closing quote starting at start.
// A doubled quote character is an escaped quote.
func scanQuoted(runes []rune, start int, quote rune) int {
	for i := start + 1; i < len(runes); i++ {
		if runes[i] != quote {
			continue
		}
		if i+1 < len(runes) && runes[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(runes)
}

// dollarTag reports the $tag$ opener at start, if any.
func dollarTag(runes []rune, start int) (string, bool) {
	for i := start + 1; i < len(runes); i++ {
		r := runes[i]
		if r == '$' {
			return string(runes[start : i+1]), true
		}
		if i == start+1 && !(r == '_' || isLetter(r)) {
			return "", false
		}
		if !isWordRune(r) {
			return "", false
		}
	}
	return "", false
}

// indexRunes returns the first index at or after from where needle occurs.
func indexRunes(haystack, needle []rune, from int) int {
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isWordRune(r rune) bool {
	return isLetter(r) || (r >= '0' && r <= '9') || r == '_'
}
