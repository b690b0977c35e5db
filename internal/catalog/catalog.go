// Package catalog holds the set of entity types a user can label with and
// searches it for the picker.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Option is one selectable entity type.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Segment is a run of an option name, marked when it matched the query.
type Segment struct {
	Text    string `json:"text"`
	Matched bool   `json:"matched"`
}

// Match is a search hit with its name split into highlighted segments.
type Match struct {
	Option   Option    `json:"option"`
	Segments []Segment `json:"segments"`
}

// Catalog is an immutable list of options.
type Catalog struct {
	options []Option
	names   []string // NFC names, parallel to options
}

// New builds a catalog. Names are normalized to NFC; options with a blank
// name are dropped and missing ids are derived from the name.
func New(options []Option) *Catalog {
	c := &Catalog{}
	seen := make(map[string]bool)
	for _, o := range options {
		o.Name = norm.NFC.String(strings.TrimSpace(o.Name))
		if o.Name == "" {
			continue
		}
		if o.ID == "" {
			o.ID = Slugify(o.Name)
		}
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		c.options = append(c.options, o)
		c.names = append(c.names, o.Name)
	}
	return c
}

// FromNames builds a catalog from bare names.
func FromNames(names []string) *Catalog {
	options := make([]Option, 0, len(names))
	for _, n := range names {
		options = append(options, Option{Name: n})
	}
	return New(options)
}

// Load reads a JSON array of options from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var options []Option
	if err := json.Unmarshal(data, &options); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return New(options), nil
}

// Options returns a copy of all options in catalog order.
func (c *Catalog) Options() []Option {
	return append([]Option(nil), c.options...)
}

func (c *Catalog) Len() int {
	return len(c.options)
}

// Get looks an option up by id.
func (c *Catalog) Get(id string) (Option, bool) {
	for _, o := range c.options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Search returns at most limit options matching query, best first. A blank
// query lists options in catalog order with nothing highlighted. A limit of
// zero or less means no limit.
func (c *Catalog) Search(query string, limit int) []Match {
	query = norm.NFC.String(strings.TrimSpace(query))
	if query == "" {
		n := len(c.options)
		if limit > 0 && limit < n {
			n = limit
		}
		out := make([]Match, 0, n)
		for _, o := range c.options[:n] {
			out = append(out, Match{Option: o, Segments: []Segment{{Text: o.Name}}})
		}
		return out
	}

	found := fuzzy.Find(query, c.names)
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	out := make([]Match, 0, len(found))
	for _, m := range found {
		out = append(out, Match{
			Option:   c.options[m.Index],
			Segments: segments(m.Str, m.MatchedIndexes),
		})
	}
	return out
}

// segments splits s into alternating matched and unmatched runs. matched
// holds the byte offsets of matched runes.
func segments(s string, matched []int) []Segment {
	hit := make(map[int]bool, len(matched))
	for _, i := range matched {
		hit[i] = true
	}

	var out []Segment
	start := 0
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		if i > start && hit[i] != hit[start] {
			out = append(out, Segment{Text: s[start:i], Matched: hit[start]})
			start = i
		}
		i += size
	}
	if start < len(s) {
		out = append(out, Segment{Text: s[start:], Matched: hit[start]})
	}
	return out
}

var (
	nonSlug   = regexp.MustCompile(`[^a-z0-9-]`)
	dashRun   = regexp.MustCompile(`-+`)
	lowerCase = cases.Lower(language.Und)
)

// Slugify converts a name to an id-safe slug. Accents are stripped before
// anything outside [a-z0-9-] is replaced.
func Slugify(s string) string {
	s = lowerCase.String(strings.TrimSpace(s))
	s = stripMarks(s)
	s = nonSlug.ReplaceAllString(s, "-")
	s = dashRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 64 {
		s = strings.TrimRight(s[:64], "-")
	}
	return s
}

func stripMarks(s string) string {
	var sb strings.Builder
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return norm.NFC.String(sb.String())
}
