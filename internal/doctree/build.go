package doctree

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dgallion1/entlabel/internal/entity"
	"github.com/dgallion1/entlabel/internal/token"
)

// Build turns aligned lines into a tree with one paragraph per line.
//
// Entity placeholders become entity nodes wrapping one token node per
// covered token; selectable tokens become token nodes; separators become
// bare text leaves. A line with nothing in it still gets a paragraph with
// an empty text leaf.
func Build[T any](lines [][]entity.Item[T]) Tree {
	if len(lines) == 0 {
		return Default()
	}

	tree := make(Tree, 0, len(lines))
	for _, items := range lines {
		var children []Node
		for _, it := range items {
			switch it.Kind {
			case entity.ItemEntity:
				children = append(children, entityNode(it.Placeholder))
			case entity.ItemToken:
				if it.Token.IsSelectable {
					children = append(children, tokenNode(it.Token))
				} else {
					children = append(children, TextLeaf(it.Token.Text))
				}
			}
		}
		tree = append(tree, paragraph(children))
	}
	return tree
}

func tokenNode(t token.Token) Node {
	return Node{
		Type:       TypeToken,
		TokenIndex: t.TokenIndex,
		Children:   []Node{TextLeaf(t.Text)},
	}
}

func entityNode[T any](p *entity.Placeholder[T]) Node {
	children := make([]Node, 0, len(p.Tokens))
	for _, t := range p.Tokens {
		children = append(children, tokenNode(t))
	}
	if len(children) == 0 {
		children = []Node{TextLeaf("")}
	}
	return Node{
		Type:     TypeEntity,
		EntityID: p.Entity.ID,
		Data:     p.Entity.Data,
		Children: children,
	}
}

// Serialize flattens a tree to plain text: the leaf text of each paragraph,
// joined by the line separator. Entity and token wrapping is ignored.
func Serialize(t Tree) string {
	var sb strings.Builder
	for i, n := range t {
		if i > 0 {
			sb.WriteString(token.LineSeparator)
		}
		n.writeText(&sb)
	}
	return sb.String()
}

// Deserialize builds the free-edit tree for text: one paragraph per line,
// each holding the whole line as a single text leaf. No tokenization.
func Deserialize(text string) Tree {
	lines := token.SplitLines(text)
	tree := make(Tree, 0, len(lines))
	for _, line := range lines {
		tree = append(tree, paragraph([]Node{TextLeaf(line)}))
	}
	return tree
}

// Span is an entity range recovered from a tree.
type Span struct {
	ID              string `json:"id"`
	StartTokenIndex int    `json:"start_token_index"`
	TokenLength     int    `json:"token_length"`
	Data            any    `json:"data"`
}

// Entities collects the entity nodes of a tree as token spans, ordered by
// start. Fragments of one entity split across paragraphs are merged: by id,
// or for entities without an id, when a fragment ends its paragraph and the
// next one starts a later paragraph at the following token index.
func (t Tree) Entities() []Span {
	type bounds struct {
		span   Span
		lo, hi int
	}
	byKey := make(map[string]*bounds)
	var order []string

	var anon *bounds // last fragment without an id
	anonEndsLine := false
	anonCount := 0

	t.Walk(func(l Located) bool {
		if l.Node.Type != TypeEntity {
			return true
		}
		lo, hi, ok := tokenRange(l.Node)
		if !ok {
			return false
		}

		key := l.Node.EntityID
		if key == "" {
			first := l.Path[len(l.Path)-1] == 0
			if anon == nil || !anonEndsLine || !first || lo != anon.hi+1 {
				anonCount++
			}
			key = "\x00" + strconv.Itoa(anonCount)
		}
		b, found := byKey[key]
		if !found {
			b = &bounds{span: Span{ID: l.Node.EntityID, Data: l.Node.Data}, lo: lo, hi: hi}
			byKey[key] = b
			order = append(order, key)
		}
		b.lo = min(b.lo, lo)
		b.hi = max(b.hi, hi)

		if l.Node.EntityID == "" {
			anon = b
			siblings := t[l.Path[0]].Children
			anonEndsLine = len(l.Path) == 2 && l.Path[1] == len(siblings)-1
		}
		return false
	})

	spans := make([]Span, 0, len(order))
	for _, key := range order {
		b := byKey[key]
		b.span.StartTokenIndex = b.lo
		b.span.TokenLength = b.hi - b.lo + 1
		spans = append(spans, b.span)
	}
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].StartTokenIndex < spans[j].StartTokenIndex
	})
	return spans
}

// tokenRange returns the lowest and highest token index under an entity node.
func tokenRange(n Node) (lo, hi int, ok bool) {
	for _, c := range n.Children {
		if c.Type != TypeToken {
			continue
		}
		if !ok || c.TokenIndex < lo {
			lo = c.TokenIndex
		}
		if !ok || c.TokenIndex > hi {
			hi = c.TokenIndex
		}
		ok = true
	}
	return lo, hi, ok
}
