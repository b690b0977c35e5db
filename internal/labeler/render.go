// Package labeler runs the text-to-tree pipeline and holds per-document
// editing sessions that switch between free text editing and labeling.
package labeler

import (
	"github.com/dgallion1/entlabel/internal/doctree"
	"github.com/dgallion1/entlabel/internal/entity"
	"github.com/dgallion1/entlabel/internal/token"
)

// Mode is the editing mode of a session.
type Mode string

const (
	ModeEditText Mode = "EditText"
	ModeLabel    Mode = "Label"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeEditText || m == ModeLabel
}

// EntityData is the label payload used by the service.
type EntityData struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Result is the outcome of rendering text with a set of entities.
type Result[T any] struct {
	Tree       doctree.Tree
	Lines      [][]token.Token
	Accepted   []entity.Entity[T]
	Rejected   []*entity.RejectedError
	TokenCount int
}

// Render tokenizes text, resolves entities against the token stream, and
// builds the labeling tree.
func Render[T any](text string, entities []entity.Entity[T]) Result[T] {
	lines, count := token.TokenizeLines(token.SplitLines(text), 0)
	accepted, rejected := entity.Resolve(entities, 0, count)
	return Result[T]{
		Tree:       doctree.Build(entity.AlignLines(lines, accepted)),
		Lines:      lines,
		Accepted:   accepted,
		Rejected:   rejected,
		TokenCount: count,
	}
}
