package envparse

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// nearLimit caps the excerpt of input quoted in a GrammarError.
const nearLimit = 24

// TrailingInputError reports text left over after one or more entries
// parsed successfully. Remainder is the unconsumed text, verbatim.
type TrailingInputError struct {
	Remainder string
	Offset    int
}

func (e *TrailingInputError) Error() string {
	return fmt.Sprintf("unparsed trailing content: %q", e.Remainder)
}

// GrammarError reports that no entry could be matched at the start of the
// input. Line and Column are 1-based; Column counts runes.
type GrammarError struct {
	Offset int
	Line   int
	Column int
	Reason string
	Near   string
}

func (e *GrammarError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("grammar failure at line %d, column %d: %s", e.Line, e.Column, e.Reason)
	}
	return fmt.Sprintf("grammar failure at line %d, column %d: %s near %q", e.Line, e.Column, e.Reason, e.Near)
}

func newGrammarError(src string, f *failure) *GrammarError {
	before := src[:f.pos]
	lineStart := strings.LastIndexByte(before, '\n') + 1

	return &GrammarError{
		Offset: f.pos,
		Line:   strings.Count(before, "\n") + 1,
		Column: utf8.RuneCountInString(before[lineStart:]) + 1,
		Reason: f.reason,
		Near:   excerpt(src[f.pos:]),
	}
}

// excerpt returns the start of s up to the first line break, at most
// nearLimit runes long.
func excerpt(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	if utf8.RuneCountInString(s) <= nearLimit {
		return s
	}
	n := 0
	for i := range s {
		if n == nearLimit {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
