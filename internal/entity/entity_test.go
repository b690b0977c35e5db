package entity

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/dgallion1/entlabel/internal/token"
)

type label struct {
	Name string
}

func span(id string, start, length int) Entity[label] {
	return Entity[label]{ID: id, StartTokenIndex: start, TokenLength: length, Data: label{Name: id}}
}

func TestAlign_NoEntitiesIsIdentity(t *testing.T) {
	tokens, _ := token.Tokenize("one two, three", 0)
	items := Align[label](tokens, nil)
	if len(items) != len(tokens) {
		t.Fatalf("expected %d items, got %d", len(tokens), len(items))
	}
	for i, it := range items {
		if it.Kind != ItemToken || it.Token != tokens[i] {
			t.Errorf("item[%d]: expected token %+v, got %+v", i, tokens[i], it)
		}
	}
}

func TestAlign_ConcreteScenario(t *testing.T) {
	tokens, _ := token.Tokenize("OK test this", 0)
	items := Align(tokens, []Entity[label]{span("demo", 2, 1)})

	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	if items[2].Kind != ItemEntity {
		t.Fatalf("expected item[2] to be an entity, got %s", items[2].Kind)
	}
	p := items[2].Placeholder
	if len(p.Tokens) != 1 || p.Tokens[0].Text != "test" {
		t.Errorf("expected placeholder over %q, got %+v", "test", p.Tokens)
	}
	if items[0].Token.Text != "OK" || items[4].Token.Text != "this" {
		t.Errorf("expected flanking tokens OK/this, got %q/%q", items[0].Token.Text, items[4].Token.Text)
	}
}

func TestAlign_SortsEntitiesAndPreservesCoverage(t *testing.T) {
	tokens, _ := token.Tokenize("a b c d e f g", 0)
	entities := []Entity[label]{span("late", 8, 3), span("early", 0, 3), span("mid", 4, 1)}
	items := Align(tokens, entities)

	if got := CountTokens(items); got != len(tokens) {
		t.Fatalf("expected %d tokens after alignment, got %d", len(tokens), got)
	}
	var order []string
	for _, it := range items {
		if it.Kind == ItemEntity {
			order = append(order, it.Placeholder.Entity.ID)
		}
	}
	if strings.Join(order, ",") != "early,mid,late" {
		t.Errorf("expected entities in start order, got %v", order)
	}
}

func TestAlign_ClampsOutOfRangeAndOverlap(t *testing.T) {
	tokens, _ := token.Tokenize("a b c", 0)
	items := Align(tokens, []Entity[label]{span("x", 0, 3), span("y", 2, 10)})
	if got := CountTokens(items); got != len(tokens) {
		t.Fatalf("expected coverage %d, got %d", len(tokens), got)
	}
}

func TestAlign_RelativeToFirstTokenIndex(t *testing.T) {
	tokens, _ := token.Tokenize("x y z", 100)
	items := Align(tokens, []Entity[label]{span("y", 102, 1)})
	if items[2].Kind != ItemEntity || items[2].Placeholder.Tokens[0].Text != "y" {
		t.Errorf("expected entity over %q, got %+v", "y", items[2])
	}
}

func TestAlignLines_SplitsByLine(t *testing.T) {
	lines, _ := token.TokenizeLines(token.SplitLines("alpha beta\n\ngamma delta"), 0)
	// tokens: alpha(0) ' '(1) beta(2) | | gamma(3) ' '(4) delta(5)
	got := AlignLines(lines, []Entity[label]{span("g", 3, 1)})

	if len(got) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(got))
	}
	if len(got[0]) != 3 || len(got[1]) != 0 || len(got[2]) != 3 {
		t.Fatalf("unexpected line sizes %d/%d/%d", len(got[0]), len(got[1]), len(got[2]))
	}
	if got[2][0].Kind != ItemEntity || got[2][0].Placeholder.Tokens[0].Text != "gamma" {
		t.Errorf("expected gamma wrapped, got %+v", got[2][0])
	}
}

func TestAlignLines_CrossLineEntityIsFragmented(t *testing.T) {
	lines, _ := token.TokenizeLines(token.SplitLines("one two\nthree four"), 0)
	// one(0) ' '(1) two(2) | three(3) ' '(4) four(5)
	got := AlignLines(lines, []Entity[label]{span("x", 2, 2)})

	last := got[0][len(got[0])-1]
	first := got[1][0]
	if last.Kind != ItemEntity || first.Kind != ItemEntity {
		t.Fatalf("expected fragments on both lines, got %+v / %+v", last, first)
	}
	if last.Placeholder.Entity.ID != "x" || first.Placeholder.Entity.ID != "x" {
		t.Errorf("expected both fragments to carry entity x")
	}
	if last.Placeholder.Tokens[0].Text != "two" || first.Placeholder.Tokens[0].Text != "three" {
		t.Errorf("unexpected fragment tokens %+v / %+v", last.Placeholder.Tokens, first.Placeholder.Tokens)
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Entity[label]
		want bool
	}{
		{"partial", span("a", 0, 3), span("b", 2, 2), true},
		{"adjacent", span("a", 0, 2), span("b", 2, 2), false},
		{"adjacent reversed", span("a", 2, 2), span("b", 0, 2), false},
		{"contained", span("a", 0, 10), span("b", 3, 1), true},
		{"container", span("a", 3, 1), span("b", 0, 10), true},
		{"identical", span("a", 4, 2), span("b", 4, 2), true},
		{"disjoint", span("a", 0, 1), span("b", 5, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := len(Overlaps([]Entity[label]{tt.a, tt.b})) > 0
			if got != tt.want {
				t.Errorf("expected overlap=%v, got %v", tt.want, got)
			}
		})
	}
}

func TestHasOverlap_ReportsEachPair(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	entities := []Entity[label]{span("a", 0, 3), span("b", 2, 2), span("c", 1, 1)}
	if !HasOverlap(log, entities) {
		t.Fatal("expected overlap")
	}
	if n := strings.Count(buf.String(), "entities overlap"); n != 2 {
		t.Errorf("expected 2 reported pairs, got %d: %s", n, buf.String())
	}
	if entities[1].ID != "b" || len(entities) != 3 {
		t.Error("expected entities to be left untouched")
	}
	if HasOverlap(nil, []Entity[label]{span("a", 0, 2), span("b", 2, 2)}) {
		t.Error("expected adjacent spans not to overlap")
	}
}

func TestResolve_Policy(t *testing.T) {
	entities := []Entity[label]{
		span("b", 2, 2),
		span("a", 0, 3),
		span("out", 8, 5),
		span("neg", -1, 1),
		span("empty", 3, 0),
		span("c", 4, 1),
		span("a", 6, 1),
		span("huge", 2, math.MaxInt),
		span("past", 10, 1),
	}
	accepted, rejected := Resolve(entities, 0, 10)

	var ids []string
	for _, e := range accepted {
		ids = append(ids, e.ID)
	}
	if strings.Join(ids, ",") != "a,c" {
		t.Errorf("expected accepted a,c; got %v", ids)
	}

	reasons := map[string]error{}
	for _, r := range rejected {
		reasons[r.ID+"@"+strconv.Itoa(r.Start)] = r.Err
	}
	checks := map[string]error{
		"b@2":     ErrOverlapRejected,
		"out@8":   ErrSpanOutOfRange,
		"neg@-1":  ErrSpanOutOfRange,
		"empty@3": ErrSpanOutOfRange,
		"a@6":     ErrDuplicateID,
		"huge@2":  ErrSpanOutOfRange,
		"past@10": ErrSpanOutOfRange,
	}
	for key, want := range checks {
		if !errors.Is(reasons[key], want) {
			t.Errorf("%s: expected %v, got %v", key, want, reasons[key])
		}
	}
}

func TestResolve_RejectedErrorUnwraps(t *testing.T) {
	_, rejected := Resolve([]Entity[label]{span("a", 0, 2), span("b", 1, 2)}, 0, 5)
	if len(rejected) != 1 {
		t.Fatalf("expected 1 rejection, got %d", len(rejected))
	}
	var err error = rejected[0]
	var re *RejectedError
	if !errors.As(err, &re) || re.ConflictID != "a" {
		t.Errorf("expected conflict with a, got %v", err)
	}
	if !errors.Is(err, ErrOverlapRejected) {
		t.Errorf("expected ErrOverlapRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), `conflicts with "a"`) {
		t.Errorf("unexpected message %q", err.Error())
	}
}
