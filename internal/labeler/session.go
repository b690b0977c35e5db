package labeler

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/entlabel/internal/doctree"
	"github.com/dgallion1/entlabel/internal/entity"
	"github.com/dgallion1/entlabel/internal/selection"
	"github.com/dgallion1/entlabel/internal/token"
)

var (
	// ErrReadOnly is returned when text is edited outside EditText mode.
	ErrReadOnly = errors.New("text is read-only in label mode")
	// ErrWrongMode is returned when a labeling operation runs in EditText mode.
	ErrWrongMode = errors.New("operation requires label mode")
	// ErrNoSelection is returned when a selection touches no token.
	ErrNoSelection = errors.New("selection does not cover any token")
)

// Session is the editing state of one document.
//
// In EditText mode the tree holds one plain text leaf per line. In Label
// mode it is the tokenized tree with entities. Entities are kept across a
// round trip through EditText mode only if the text comes back unchanged;
// any edit invalidates their token indices and drops them.
type Session[T any] struct {
	mu sync.Mutex

	id       string
	title    string
	mode     Mode
	tree     doctree.Tree
	lines    [][]token.Token // label mode only
	count    int
	entities []entity.Entity[T]

	// labeledText is the text the entities were resolved against.
	labeledText string
	updatedAt   time.Time
}

// NewSession starts a session over text. Entities that fail to resolve
// against the text are returned and not kept.
func NewSession[T any](id, text string, entities []entity.Entity[T], mode Mode) (*Session[T], []*entity.RejectedError) {
	if id == "" {
		id = uuid.NewString()
	}
	if !mode.Valid() {
		mode = ModeLabel
	}
	s := &Session[T]{id: id, mode: mode}
	rejected := s.relabel(text, entities)
	if mode == ModeEditText {
		s.tree = doctree.Deserialize(text)
		s.lines = nil
	}
	return s, rejected
}

// relabel renders text with entities and installs the result. Callers hold mu
// or own the session exclusively.
func (s *Session[T]) relabel(text string, entities []entity.Entity[T]) []*entity.RejectedError {
	res := Render(text, entities)
	s.tree = res.Tree
	s.lines = res.Lines
	s.count = res.TokenCount
	s.entities = res.Accepted
	s.labeledText = text
	s.updatedAt = time.Now()
	return res.Rejected
}

func (s *Session[T]) ID() string {
	return s.id
}

func (s *Session[T]) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session[T]) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

func (s *Session[T]) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Text returns the serialized text of the current tree.
func (s *Session[T]) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return doctree.Serialize(s.tree)
}

func (s *Session[T]) Tree() doctree.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// Entities returns a copy of the retained entities, ordered by start.
func (s *Session[T]) Entities() []entity.Entity[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Entity[T](nil), s.entities...)
}

// UpdatedAt returns the time of the last change.
func (s *Session[T]) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// SetText replaces the document text. Only allowed in EditText mode.
func (s *Session[T]) SetText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeEditText {
		return ErrReadOnly
	}
	s.tree = doctree.Deserialize(text)
	s.updatedAt = time.Now()
	return nil
}

// ToLabel switches to Label mode, tokenizing the current text. It is a
// no-op in Label mode.
func (s *Session[T]) ToLabel() []*entity.RejectedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeLabel {
		return nil
	}
	text := doctree.Serialize(s.tree)
	entities := s.entities
	if text != s.labeledText {
		entities = nil
	}
	s.mode = ModeLabel
	return s.relabel(text, entities)
}

// ToEditText switches to EditText mode. It is a no-op in EditText mode.
func (s *Session[T]) ToEditText() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeEditText {
		return
	}
	text := doctree.Serialize(s.tree)
	s.tree = doctree.Deserialize(text)
	s.lines = nil
	s.labeledText = text
	s.mode = ModeEditText
	s.updatedAt = time.Now()
}

// Toggle flips the mode and returns the new one.
func (s *Session[T]) Toggle() Mode {
	if s.Mode() == ModeLabel {
		s.ToEditText()
		return ModeEditText
	}
	s.ToLabel()
	return ModeLabel
}

// Snap snaps a selection to whole tokens and returns the range, the token
// span it covers and the covered text.
func (s *Session[T]) Snap(anchor, focus doctree.Point) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapLocked(anchor, focus)
}

// Selection is a selection snapped to whole tokens.
type Selection struct {
	Range           selection.Range `json:"range"`
	StartTokenIndex int             `json:"start_token_index"`
	TokenLength     int             `json:"token_length"`
	Text            string          `json:"text"`
}

func (s *Session[T]) snapLocked(anchor, focus doctree.Point) (Selection, error) {
	if s.mode != ModeLabel {
		return Selection{}, ErrWrongMode
	}
	r, ok := selection.Snap(s.tree, anchor, focus)
	if !ok {
		return Selection{}, ErrNoSelection
	}
	start, length, ok := selection.TokenSpan(s.tree, r)
	if !ok {
		return Selection{}, ErrNoSelection
	}
	return Selection{
		Range:           r,
		StartTokenIndex: start,
		TokenLength:     length,
		Text:            spanText(s.lines, start, length),
	}, nil
}

// Label snaps the selection and labels it with data. The new entity is
// rejected with an *entity.RejectedError if it overlaps an existing one.
func (s *Session[T]) Label(anchor, focus doctree.Point, data T) (entity.Entity[T], error) {
	return s.LabelWith(anchor, focus, func(Selection) T { return data })
}

// LabelWith is Label with the payload computed from the snapped selection.
func (s *Session[T]) LabelWith(anchor, focus doctree.Point, data func(Selection) T) (entity.Entity[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, err := s.snapLocked(anchor, focus)
	if err != nil {
		return entity.Entity[T]{}, err
	}
	e := entity.Entity[T]{
		ID:              uuid.NewString(),
		StartTokenIndex: sel.StartTokenIndex,
		TokenLength:     sel.TokenLength,
		Data:            data(sel),
	}
	for _, existing := range s.entities {
		if existing.Overlaps(e) {
			return entity.Entity[T]{}, &entity.RejectedError{
				ID:         e.ID,
				Start:      e.StartTokenIndex,
				Length:     e.TokenLength,
				ConflictID: existing.ID,
				Err:        entity.ErrOverlapRejected,
			}
		}
	}

	entities := append(append([]entity.Entity[T](nil), s.entities...), e)
	s.relabel(s.labeledText, entities)
	return e, nil
}

// Unlabel removes the entity with id. It reports whether one was removed.
func (s *Session[T]) Unlabel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]entity.Entity[T], 0, len(s.entities))
	for _, e := range s.entities {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(s.entities) {
		return false
	}
	if s.mode == ModeLabel {
		s.relabel(s.labeledText, kept)
	} else {
		s.entities = kept
		s.updatedAt = time.Now()
	}
	return true
}

// Snapshot is a read-only, JSON-safe copy of session state.
type Snapshot[T any] struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Mode       Mode               `json:"mode"`
	Text       string             `json:"text"`
	Tree       doctree.Tree       `json:"tree"`
	Entities   []entity.Entity[T] `json:"entities"`
	TokenCount int                `json:"token_count"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the session state. While the text
// is being edited away from what the entities were resolved against, the
// snapshot carries no entities. TokenCount is only reported in Label mode.
func (s *Session[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := doctree.Serialize(s.tree)
	entities := []entity.Entity[T]{}
	if s.mode == ModeLabel || text == s.labeledText {
		entities = append(entities, s.entities...)
	}
	count := 0
	if s.mode == ModeLabel {
		count = s.count
	}
	return Snapshot[T]{
		ID:         s.id,
		Title:      s.title,
		Mode:       s.mode,
		Text:       text,
		Tree:       s.tree,
		Entities:   entities,
		TokenCount: count,
		UpdatedAt:  s.updatedAt,
	}
}

// spanText returns the text of tokens [start, start+length), with lines
// joined by the line separator.
func spanText(lines [][]token.Token, start, length int) string {
	var sb strings.Builder
	end := start + length
	wrote := false
	for _, line := range lines {
		lineHit := false
		for _, t := range line {
			if t.TokenIndex < start || t.TokenIndex >= end {
				continue
			}
			if !lineHit && wrote {
				sb.WriteString(token.LineSeparator)
			}
			lineHit = true
			wrote = true
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}
