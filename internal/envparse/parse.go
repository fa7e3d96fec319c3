// Package envparse reads blocks of secret definitions written either as
// dotenv lines (KEY=value) or as shell export statements (export KEY=value).
//
// The grammar is a set of small rules, each a pure function that takes an
// input view and returns the view advanced past what it consumed. Nothing is
// shared between calls, so Parse is safe to call concurrently.
//
// Parsing is all-or-nothing: either every byte of the input is consumed as a
// sequence of entries, or an error is returned and no entries are.
package envparse

import (
	"strings"
	"unicode"
)

// Entry is one key/value pair in the order it appeared in the input.
// Keys are not unique across a single parse.
type Entry struct {
	Key   string
	Value string
}

// input is an immutable view over the source text.
type input struct {
	src string
	pos int
}

func (in input) rest() string { return in.src[in.pos:] }

func (in input) done() bool { return in.pos >= len(in.src) }

func (in input) advance(n int) input { return input{src: in.src, pos: in.pos + n} }

// failure is where a rule stopped matching and why.
type failure struct {
	pos    int
	reason string
}

// Parse reads every entry in src. When no entry matches at the start of src
// it returns a *GrammarError. When some entries matched but text remains,
// it returns a *TrailingInputError holding that text.
func Parse(src string) ([]Entry, error) {
	in := input{src: src}

	var entries []Entry
	for {
		next, e, f := entry(in)
		if f != nil {
			if len(entries) == 0 {
				return nil, newGrammarError(src, f)
			}
			break
		}
		entries = append(entries, e)
		in = next
	}

	if !in.done() {
		return nil, &TrailingInputError{Remainder: in.rest(), Offset: in.pos}
	}
	return entries, nil
}

// entry matches one definition, including the whitespace before it and the
// line break after it.
func entry(in input) (input, Entry, *failure) {
	in = leadingSpace(in)
	in = exportKeyword(in)

	in, k := key(in)

	in, f := equalSign(in)
	if f != nil {
		return in, Entry{}, f
	}

	in, raw, f := value(in)
	if f != nil {
		return in, Entry{}, f
	}

	in = lineBreaks(in)
	return in, Entry{Key: k, Value: Unescape(raw)}, nil
}

func leadingSpace(in input) input {
	rest := in.rest()
	return in.advance(len(rest) - len(strings.TrimLeftFunc(rest, unicode.IsSpace)))
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

func blanks(in input) input {
	rest := in.rest()
	n := 0
	for n < len(rest) && isBlank(rest[n]) {
		n++
	}
	return in.advance(n)
}

// exportKeyword consumes "export" only when at least one space or tab
// follows it; otherwise the word is left for the key rule.
func exportKeyword(in input) input {
	const keyword = "export"
	if !strings.HasPrefix(in.rest(), keyword) {
		return in
	}
	after := in.advance(len(keyword))
	next := blanks(after)
	if next.pos == after.pos {
		return in
	}
	return next
}

func isKeyByte(c byte) bool {
	return c == '_' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9')
}

// key matches a possibly empty run of ASCII letters, digits and underscores.
func key(in input) (input, string) {
	rest := in.rest()
	n := 0
	for n < len(rest) && isKeyByte(rest[n]) {
		n++
	}
	return in.advance(n), rest[:n]
}

func equalSign(in input) (input, *failure) {
	next := blanks(in)
	if !strings.HasPrefix(next.rest(), "=") {
		if next.done() {
			return in, &failure{pos: next.pos, reason: "unexpected end of input, expected '='"}
		}
		return in, &failure{pos: next.pos, reason: "expected '='"}
	}
	return blanks(next.advance(1)), nil
}

// value tries the double-quoted, single-quoted and unquoted forms in that
// order and returns the raw text before unescaping.
func value(in input) (input, string, *failure) {
	// An opening quote rules out every later alternative, so its failure is
	// the one worth reporting.
	for _, q := range []byte{'"', '\''} {
		next, raw, f := quoted(in, q)
		if f == nil {
			return next, raw, nil
		}
		if strings.HasPrefix(in.rest(), string(q)) {
			return in, "", f
		}
	}
	if next, raw, ok := unquoted(in); ok {
		return next, raw, nil
	}
	if in.done() {
		return in, "", &failure{pos: in.pos, reason: "unexpected end of input, expected a value"}
	}
	return in, "", &failure{pos: in.pos, reason: "expected a value"}
}

// quoted matches text between two quote characters. A backslash may only
// escape the quote character itself.
func quoted(in input, quote byte) (input, string, *failure) {
	name := "double-quoted"
	if quote == '\'' {
		name = "single-quoted"
	}

	rest := in.rest()
	if rest == "" || rest[0] != quote {
		return in, "", &failure{pos: in.pos, reason: "expected " + name + " value"}
	}

	for i := 1; i < len(rest); i++ {
		switch rest[i] {
		case quote:
			return in.advance(i + 1), rest[1:i], nil
		case '\\':
			if i+1 >= len(rest) || rest[i+1] != quote {
				return in, "", &failure{pos: in.pos + i, reason: "invalid escape in " + name + " value"}
			}
			i++
		}
	}
	return in, "", &failure{pos: in.pos, reason: "unterminated " + name + " value"}
}

// unquoted matches one or more characters other than quotes, space, CR and LF.
func unquoted(in input) (input, string, bool) {
	rest := in.rest()
	n := strings.IndexAny(rest, "'\" \r\n")
	if n < 0 {
		n = len(rest)
	}
	if n == 0 {
		return in, "", false
	}
	return in.advance(n), rest[:n], true
}

func lineBreaks(in input) input {
	rest := in.rest()
	n := 0
	for n < len(rest) && (rest[n] == '\r' || rest[n] == '\n') {
		n++
	}
	return in.advance(n)
}
