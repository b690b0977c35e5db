// Package selection snaps arbitrary selections in a document tree to whole
// tokens, so that only complete tokens can be labeled.
package selection

import (
	"github.com/dgallion1/entlabel/internal/doctree"
)

// Range is a selection between two points. After Snap, Anchor is at or
// before Focus in document order.
type Range struct {
	Anchor doctree.Point `json:"anchor"`
	Focus  doctree.Point `json:"focus"`
}

// IsCollapsed reports whether the range selects nothing.
func (r Range) IsCollapsed() bool {
	return doctree.ComparePoints(r.Anchor, r.Focus) == 0
}

// Snap expands the selection between start and end to cover whole tokens.
//
// Each point is resolved to its nearest enclosing token node. When only one
// side lands in a token (the other in separator text, say) the snap
// collapses onto that single token. When neither does, ok is false and the
// selection should be left alone. The snapped range starts at the beginning
// of the first token and ends at the end of the last one; backward
// selections come out forward.
func Snap(tree doctree.Tree, start, end doctree.Point) (r Range, ok bool) {
	s, okStart := nearestToken(tree, start.Path)
	e, okEnd := nearestToken(tree, end.Path)
	switch {
	case !okStart && !okEnd:
		return Range{}, false
	case !okStart:
		s = e
	case !okEnd:
		e = s
	}

	if doctree.ComparePaths(s.Path, e.Path) > 0 {
		s, e = e, s
	}
	return Range{Anchor: startOf(s), Focus: endOf(e)}, true
}

// TokenSpan converts a snapped range into the token range it covers.
func TokenSpan(tree doctree.Tree, r Range) (start, length int, ok bool) {
	s, okStart := nearestToken(tree, r.Anchor.Path)
	e, okEnd := nearestToken(tree, r.Focus.Path)
	if !okStart || !okEnd {
		return 0, 0, false
	}
	lo, hi := s.Node.TokenIndex, e.Node.TokenIndex
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi - lo + 1, true
}

func nearestToken(tree doctree.Tree, path doctree.Path) (doctree.Located, bool) {
	for _, a := range tree.Ancestors(path) {
		if a.Node.Type == doctree.TypeToken {
			return a, true
		}
	}
	return doctree.Located{}, false
}

func leafPath(token doctree.Located) doctree.Path {
	return append(append(doctree.Path(nil), token.Path...), 0)
}

func startOf(token doctree.Located) doctree.Point {
	return doctree.Point{Path: leafPath(token), Offset: 0}
}

func endOf(token doctree.Located) doctree.Point {
	return doctree.Point{Path: leafPath(token), Offset: len(token.Node.String())}
}
