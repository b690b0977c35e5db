// Package entity aligns labeled token spans with a token stream.
package entity

import (
	"sort"

	"github.com/dgallion1/entlabel/internal/token"
)

// Entity is a label over the half-open token range [StartTokenIndex, StartTokenIndex+TokenLength).
type Entity[T any] struct {
	ID              string `json:"id"`
	StartTokenIndex int    `json:"start_token_index"`
	TokenLength     int    `json:"token_length"`
	Data            T      `json:"data"`
}

// End returns the exclusive end token index.
func (e Entity[T]) End() int {
	return e.StartTokenIndex + e.TokenLength
}

// Contains reports whether token index i falls inside the entity.
func (e Entity[T]) Contains(i int) bool {
	return i >= e.StartTokenIndex && i < e.End()
}

// Overlaps reports whether the two ranges share at least one token.
// Ranges that only touch (one ends where the other starts) do not overlap.
func (e Entity[T]) Overlaps(other Entity[T]) bool {
	return e.StartTokenIndex < other.End() && other.StartTokenIndex < e.End()
}

// Placeholder is the alignment result for one entity: the entity and the
// exact slice of the token stream it covers.
type Placeholder[T any] struct {
	Entity Entity[T]     `json:"entity"`
	Tokens []token.Token `json:"tokens"`
}

// ItemKind discriminates Item.
type ItemKind int

const (
	ItemToken ItemKind = iota
	ItemEntity
)

func (k ItemKind) String() string {
	switch k {
	case ItemToken:
		return "token"
	case ItemEntity:
		return "entity"
	}
	return "unknown"
}

// Item is either a bare token or an entity placeholder.
type Item[T any] struct {
	Kind        ItemKind
	Token       token.Token
	Placeholder *Placeholder[T]
}

// TokenItem wraps a bare token.
func TokenItem[T any](t token.Token) Item[T] {
	return Item[T]{Kind: ItemToken, Token: t}
}

// EntityItem wraps the tokens covered by e.
func EntityItem[T any](e Entity[T], tokens []token.Token) Item[T] {
	covered := make([]token.Token, len(tokens))
	copy(covered, tokens)
	return Item[T]{Kind: ItemEntity, Placeholder: &Placeholder[T]{Entity: e, Tokens: covered}}
}

// Tokens returns the tokens an item stands for.
func (it Item[T]) Tokens() []token.Token {
	switch it.Kind {
	case ItemEntity:
		return it.Placeholder.Tokens
	default:
		return []token.Token{it.Token}
	}
}

// CountTokens returns the number of tokens across items.
func CountTokens[T any](items []Item[T]) int {
	n := 0
	for _, it := range items {
		n += len(it.Tokens())
	}
	return n
}

// SortByStart returns a copy of entities stably sorted by StartTokenIndex.
func SortByStart[T any](entities []Entity[T]) []Entity[T] {
	sorted := make([]Entity[T], len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTokenIndex < sorted[j].StartTokenIndex
	})
	return sorted
}
