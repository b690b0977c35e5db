// Package doctree builds and flattens the document tree shown to users:
// paragraphs holding entity, token and text nodes. Trees are values; every
// change produces a new tree from text and entities.
package doctree

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NodeType tags the kind of a Node.
type NodeType string

const (
	TypeParagraph NodeType = "paragraph" // one per line of text
	TypeEntity    NodeType = "entity"    // groups the tokens of one labeled entity
	TypeToken     NodeType = "token"     // a selectable token; holds one Text leaf
	TypeText      NodeType = "text"      // leaf carrying content
)

// Node is one element of a document tree. Which fields are meaningful
// depends on Type:
//
//	paragraph: Children
//	entity:    EntityID, Data, Children (token nodes)
//	token:     TokenIndex, Children (one text leaf)
//	text:      Text
type Node struct {
	Type       NodeType
	Text       string
	TokenIndex int
	EntityID   string
	Data       any
	Children   []Node
}

// Tree is the ordered list of paragraphs making up a document.
type Tree []Node

// Path addresses a node: the first element is the paragraph index, each
// following one a child index.
type Path []int

// Point is a byte offset inside the text leaf at Path.
type Point struct {
	Path   Path `json:"path"`
	Offset int  `json:"offset"`
}

// Located pairs a node with its path.
type Located struct {
	Node Node
	Path Path
}

// TextLeaf returns a text node.
func TextLeaf(s string) Node {
	return Node{Type: TypeText, Text: s}
}

// IsLeaf reports whether the node carries text rather than children.
func (n Node) IsLeaf() bool {
	return n.Type == TypeText
}

// String returns the concatenated text of all leaves under n.
func (n Node) String() string {
	if n.IsLeaf() {
		return n.Text
	}
	var sb strings.Builder
	n.writeText(&sb)
	return sb.String()
}

func (n Node) writeText(sb *strings.Builder) {
	if n.IsLeaf() {
		sb.WriteString(n.Text)
		return
	}
	for _, c := range n.Children {
		c.writeText(sb)
	}
}

// Default is the tree used when there is nothing to show: one paragraph
// holding one empty text leaf.
func Default() Tree {
	return Tree{paragraph(nil)}
}

func paragraph(children []Node) Node {
	if len(children) == 0 {
		children = []Node{TextLeaf("")}
	}
	return Node{Type: TypeParagraph, Children: children}
}

// At returns the node at path.
func (t Tree) At(path Path) (Node, bool) {
	if len(path) == 0 || path[0] < 0 || path[0] >= len(t) {
		return Node{}, false
	}
	n := t[path[0]]
	for _, i := range path[1:] {
		if i < 0 || i >= len(n.Children) {
			return Node{}, false
		}
		n = n.Children[i]
	}
	return n, true
}

// Ancestors returns the node at path followed by each of its ancestors,
// innermost first and the paragraph last. It returns nil for an invalid path.
func (t Tree) Ancestors(path Path) []Located {
	if _, ok := t.At(path); !ok {
		return nil
	}
	out := make([]Located, 0, len(path))
	for depth := len(path); depth >= 1; depth-- {
		p := append(Path(nil), path[:depth]...)
		n, _ := t.At(p)
		out = append(out, Located{Node: n, Path: p})
	}
	return out
}

// Walk visits every node in document order. Returning false from fn skips
// the node's children.
func (t Tree) Walk(fn func(Located) bool) {
	var walk func(n Node, p Path)
	walk = func(n Node, p Path) {
		if !fn(Located{Node: n, Path: p}) {
			return
		}
		for i, c := range n.Children {
			walk(c, append(append(Path(nil), p...), i))
		}
	}
	for i, n := range t {
		walk(n, Path{i})
	}
}

// IsEntityAt reports whether the node at path is, or sits inside, an entity.
func (t Tree) IsEntityAt(path Path) bool {
	for _, a := range t.Ancestors(path) {
		if a.Node.Type == TypeEntity {
			return true
		}
	}
	return false
}

// Validate checks the structural rules every tree must satisfy: the top
// level holds only paragraphs, branch nodes have children, and text leaves
// have none.
func (t Tree) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("tree has no paragraphs")
	}
	var err error
	t.Walk(func(l Located) bool {
		if err != nil {
			return false
		}
		n := l.Node
		switch {
		case len(l.Path) == 1 && n.Type != TypeParagraph:
			err = fmt.Errorf("node %v: expected paragraph at top level, got %s", l.Path, n.Type)
		case len(l.Path) > 1 && n.Type == TypeParagraph:
			err = fmt.Errorf("node %v: nested paragraph", l.Path)
		case n.IsLeaf() && len(n.Children) > 0:
			err = fmt.Errorf("node %v: text leaf has children", l.Path)
		case !n.IsLeaf() && len(n.Children) == 0:
			err = fmt.Errorf("node %v: %s has no children", l.Path, n.Type)
		}
		return err == nil
	})
	return err
}

// ComparePaths orders paths in document order, returning -1, 0 or 1. An
// ancestor sorts before its descendants.
func ComparePaths(a, b Path) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// ComparePoints orders points in document order.
func ComparePoints(a, b Point) int {
	if c := ComparePaths(a.Path, b.Path); c != 0 {
		return c
	}
	switch {
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	}
	return 0
}

type nodeJSON struct {
	Type       NodeType `json:"type"`
	Text       *string  `json:"text,omitempty"`
	TokenIndex *int     `json:"token_index,omitempty"`
	EntityID   string   `json:"entity_id,omitempty"`
	Data       any      `json:"data,omitempty"`
	Children   []Node   `json:"children,omitempty"`
}

// MarshalJSON emits only the fields meaningful for the node's type.
func (n Node) MarshalJSON() ([]byte, error) {
	v := nodeJSON{Type: n.Type, Children: n.Children}
	switch n.Type {
	case TypeText:
		text := n.Text
		v.Text = &text
	case TypeToken:
		idx := n.TokenIndex
		v.TokenIndex = &idx
	case TypeEntity:
		v.EntityID = n.EntityID
		v.Data = n.Data
	}
	return json.Marshal(v)
}

// UnmarshalJSON accepts the form written by MarshalJSON.
func (n *Node) UnmarshalJSON(b []byte) error {
	var v nodeJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Node{Type: v.Type, EntityID: v.EntityID, Data: v.Data, Children: v.Children}
	if v.Text != nil {
		n.Text = *v.Text
	}
	if v.TokenIndex != nil {
		n.TokenIndex = *v.TokenIndex
	}
	return nil
}
