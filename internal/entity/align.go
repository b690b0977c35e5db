package entity

import "github.com/dgallion1/entlabel/internal/token"

// Align merges entities into a token stream, replacing each covered run of
// tokens with one placeholder.
//
// Entity indices are token indices, so positions are taken relative to
// tokens[0].TokenIndex; the stream may be a whole text or any contiguous
// part of one. Entities must already be validated with Resolve. Spans that
// still fall outside the stream or overlap an earlier span are clamped, so
// no token is ever dropped or duplicated.
//
// Simplified:
//
//	[t0 t1 t2 t3 t4 t5 t6], [{start:1 len:3}]
//	[t0 [t1 t2 t3] t4 t5 t6]
func Align[T any](tokens []token.Token, entities []Entity[T]) []Item[T] {
	items := make([]Item[T], 0, len(tokens))
	if len(entities) == 0 {
		return appendTokens(items, tokens)
	}

	base := 0
	if len(tokens) > 0 {
		base = tokens[0].TokenIndex
	}
	pos := func(i int) int {
		return clamp(i-base, 0, len(tokens))
	}

	cursor := 0
	for _, e := range SortByStart(entities) {
		start := max(pos(e.StartTokenIndex), cursor)
		end := max(pos(e.End()), start)
		if start == end {
			continue
		}
		items = appendTokens(items, tokens[cursor:start])
		items = append(items, EntityItem(e, tokens[start:end]))
		cursor = end
	}

	return appendTokens(items, tokens[cursor:])
}

// AlignLines aligns a multi-line token stream in one pass and splits the
// result back into lines. An entity whose tokens cross a line boundary is
// emitted as one placeholder fragment per line, each carrying the entity.
func AlignLines[T any](lines [][]token.Token, entities []Entity[T]) [][]Item[T] {
	lineOf := make(map[int]int)
	for l, toks := range lines {
		for _, t := range toks {
			lineOf[t.TokenIndex] = l
		}
	}

	out := make([][]Item[T], len(lines))
	for _, it := range Align(token.Flatten(lines), entities) {
		if it.Kind == ItemToken {
			l := lineOf[it.Token.TokenIndex]
			out[l] = append(out[l], it)
			continue
		}

		toks := it.Placeholder.Tokens
		from := 0
		for i := 1; i <= len(toks); i++ {
			if i < len(toks) && lineOf[toks[i].TokenIndex] == lineOf[toks[from].TokenIndex] {
				continue
			}
			l := lineOf[toks[from].TokenIndex]
			out[l] = append(out[l], EntityItem(it.Placeholder.Entity, toks[from:i]))
			from = i
		}
	}
	return out
}

func appendTokens[T any](items []Item[T], tokens []token.Token) []Item[T] {
	for _, t := range tokens {
		items = append(items, TokenItem[T](t))
	}
	return items
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
