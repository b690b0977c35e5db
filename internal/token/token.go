// Package token splits plain text into addressable units.
//
// A line is cut at runs of separator characters (whitespace and ". ? , !").
// The text between runs becomes selectable tokens that can be labeled; the
// runs themselves are kept as non-selectable tokens so that joining every
// token of a line reproduces the line exactly.
package token

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// LineSeparator joins lines of a multi-line text.
const LineSeparator = "\n"

// Token is a contiguous slice of one line of text.
type Token struct {
	Text         string `json:"text"`
	IsSelectable bool   `json:"is_selectable"`
	// StartCharIndex is the byte offset of the token within its line.
	StartCharIndex int `json:"start_char_index"`
	// TokenIndex is unique across the whole text and is not reset per line.
	TokenIndex int `json:"token_index"`
}

// End returns the byte offset just past the token within its line.
func (t Token) End() int {
	return t.StartCharIndex + len(t.Text)
}

// IsSeparator reports whether r belongs to the separator class.
func IsSeparator(r rune) bool {
	switch r {
	case '.', '?', ',', '!':
		return true
	}
	return unicode.IsSpace(r)
}

// Tokenize splits one line into tokens, numbering them from start.
// It returns the tokens and the index to use for the next line.
//
// Separator runs are collapsed into a single non-selectable token. The text
// before each run is emitted as a selectable token even when empty, except
// for a line made only of separators, which yields the single run. A
// trailing empty remainder is never emitted.
func Tokenize(line string, start int) ([]Token, int) {
	if line == "" {
		return nil, start
	}

	var tokens []Token
	next := start
	emit := func(text string, selectable bool, at int) {
		tokens = append(tokens, Token{
			Text:           text,
			IsSelectable:   selectable,
			StartCharIndex: at,
			TokenIndex:     next,
		})
		next++
	}

	last := 0
	i := 0
	for i < len(line) {
		r, size := utf8.DecodeRuneInString(line[i:])
		if !IsSeparator(r) {
			i += size
			continue
		}

		runStart := i
		for i < len(line) {
			r, size = utf8.DecodeRuneInString(line[i:])
			if !IsSeparator(r) {
				break
			}
			i += size
		}

		if runStart != 0 || i != len(line) {
			emit(line[last:runStart], true, last)
		}
		emit(line[runStart:i], false, runStart)
		last = i
	}

	if last < len(line) {
		emit(line[last:], true, last)
	}

	return tokens, next
}

// TokenizeLines tokenizes each line with numbering that continues across lines.
func TokenizeLines(lines []string, start int) ([][]Token, int) {
	out := make([][]Token, len(lines))
	next := start
	for i, line := range lines {
		out[i], next = Tokenize(line, next)
	}
	return out, next
}

// SplitLines splits text on the line separator. It always returns at least one line.
func SplitLines(text string) []string {
	return strings.Split(text, LineSeparator)
}

// Join concatenates token texts in order.
func Join(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// Flatten concatenates per-line token slices into one stream.
func Flatten(lines [][]Token) []Token {
	n := 0
	for _, l := range lines {
		n += len(l)
	}
	out := make([]Token, 0, n)
	for _, l := range lines {
		out = append(out, l...)
	}
	return out
}

// Selectable returns only the selectable tokens.
func Selectable(tokens []Token) []Token {
	var out []Token
	for _, t := range tokens {
		if t.IsSelectable {
			out = append(out, t)
		}
	}
	return out
}
