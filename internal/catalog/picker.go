package catalog

// Picker tracks a query and a highlighted match over a catalog.
// It is not safe for concurrent use.
type Picker struct {
	cat       *Catalog
	limit     int
	query     string
	matches   []Match
	highlight int
}

// NewPicker returns a picker showing at most limit matches.
func NewPicker(cat *Catalog, limit int) *Picker {
	p := &Picker{cat: cat, limit: limit}
	p.SetQuery("")
	return p
}

// SetQuery reruns the search. The highlight stays put unless the list
// shrank below it, in which case it moves to the last match.
func (p *Picker) SetQuery(q string) {
	p.query = q
	p.matches = p.cat.Search(q, p.limit)
	if p.highlight > len(p.matches)-1 {
		p.highlight = len(p.matches) - 1
	}
	if p.highlight < 0 {
		p.highlight = 0
	}
}

func (p *Picker) Query() string { return p.query }

func (p *Picker) Matches() []Match { return p.matches }

func (p *Picker) Highlight() int { return p.highlight }

func (p *Picker) ResetHighlight() { p.highlight = 0 }

// Down moves the highlight forward, wrapping to the first match.
func (p *Picker) Down() {
	if len(p.matches) == 0 {
		return
	}
	p.highlight = (p.highlight + 1) % len(p.matches)
}

// Up moves the highlight back, wrapping to the last match.
func (p *Picker) Up() {
	if len(p.matches) == 0 {
		return
	}
	p.highlight = (p.highlight - 1 + len(p.matches)) % len(p.matches)
}

// Selected returns the highlighted option.
func (p *Picker) Selected() (Option, bool) {
	if p.highlight < 0 || p.highlight >= len(p.matches) {
		return Option{}, false
	}
	return p.matches[p.highlight].Option, true
}
