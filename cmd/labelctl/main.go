// Command labelctl tokenizes, renders and checks labeled documents from the
// command line.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/dgallion1/entlabel/internal/catalog"
	"github.com/dgallion1/entlabel/internal/doctree"
	"github.com/dgallion1/entlabel/internal/entity"
	"github.com/dgallion1/entlabel/internal/labeler"
	"github.com/dgallion1/entlabel/internal/parser"
	"github.com/dgallion1/entlabel/internal/token"
)

// CLI defines the command-line interface for labelctl.
var CLI struct {
	Verbose bool `name:"verbose" short:"v" help:"Log at debug level"`

	Tokenize  TokenizeCmd  `cmd:"" help:"Split a document into tokens"`
	Render    RenderCmd    `cmd:"" help:"Render a document with entities into a labeling tree"`
	Check     CheckCmd     `cmd:"" help:"Report overlapping entities (exit 1 if any)"`
	Roundtrip RoundtripCmd `cmd:"" help:"Verify that rendering and serializing reproduces the text"`
	Catalog   CatalogCmd   `cmd:"" help:"Search an entity catalog"`
}

// TokenizeCmd prints the tokens of a document.
type TokenizeCmd struct {
	File  string `arg:"" help:"Document to read (- for stdin)"`
	Start int    `name:"start" default:"0" help:"Index of the first token"`
	JSON  bool   `name:"json" help:"Print tokens as JSON"`
}

func (c *TokenizeCmd) Run(log *slog.Logger) error {
	text, err := readDocument(c.File)
	if err != nil {
		return err
	}
	if c.Start < 0 {
		return fmt.Errorf("start must not be negative")
	}
	lines, next := token.TokenizeLines(token.SplitLines(text), c.Start)
	log.Debug("tokenized", "file", c.File, "lines", len(lines), "tokens", next-c.Start)

	if c.JSON {
		return printJSON(lines)
	}
	for i, line := range lines {
		for _, t := range line {
			mark := " "
			if t.IsSelectable {
				mark = "*"
			}
			fmt.Printf("%d\t%d\t%s\t%d\t%q\n", i, t.TokenIndex, mark, t.StartCharIndex, t.Text)
		}
	}
	return nil
}

// RenderCmd prints the labeling tree of a document.
type RenderCmd struct {
	File     string `arg:"" help:"Document to read (- for stdin)"`
	Entities string `name:"entities" short:"e" type:"existingfile" help:"JSON array of entities"`
}

func (c *RenderCmd) Run(log *slog.Logger) error {
	text, err := readDocument(c.File)
	if err != nil {
		return err
	}
	entities, err := loadEntities(c.Entities)
	if err != nil {
		return err
	}

	res := labeler.Render(text, entities)
	for _, r := range res.Rejected {
		log.Warn("entity rejected", "entity_id", r.ID, "error", r.Err, "conflict_id", r.ConflictID)
	}
	return printJSON(map[string]any{
		"tree":        res.Tree,
		"entities":    res.Accepted,
		"token_count": res.TokenCount,
	})
}

// CheckCmd reports overlapping entities.
type CheckCmd struct {
	Entities string `arg:"" type:"existingfile" help:"JSON array of entities"`
}

var errOverlap = errors.New("entities overlap")

func (c *CheckCmd) Run(log *slog.Logger) error {
	entities, err := loadEntities(c.Entities)
	if err != nil {
		return err
	}
	if entity.HasOverlap(log, entities) {
		return errOverlap
	}
	fmt.Printf("%d entities, no overlaps\n", len(entities))
	return nil
}

// RoundtripCmd renders a document and checks the tree serializes back to
// the same text, in both editing modes.
type RoundtripCmd struct {
	File     string `arg:"" help:"Document to read (- for stdin)"`
	Entities string `name:"entities" short:"e" type:"existingfile" help:"JSON array of entities"`
}

func (c *RoundtripCmd) Run(log *slog.Logger) error {
	text, err := readDocument(c.File)
	if err != nil {
		return err
	}
	entities, err := loadEntities(c.Entities)
	if err != nil {
		return err
	}

	res := labeler.Render(text, entities)
	if got := doctree.Serialize(res.Tree); got != text {
		return fmt.Errorf("label tree does not reproduce text: %q", firstDiff(text, got))
	}
	if got := doctree.Serialize(doctree.Deserialize(text)); got != text {
		return fmt.Errorf("text tree does not reproduce text: %q", firstDiff(text, got))
	}
	if err := res.Tree.Validate(); err != nil {
		return fmt.Errorf("invalid label tree: %w", err)
	}

	sess, _ := labeler.NewSession("", text, res.Accepted, labeler.ModeLabel)
	sess.Toggle()
	sess.Toggle()
	if got := len(sess.Entities()); got != len(res.Accepted) {
		return fmt.Errorf("mode round trip kept %d of %d entities", got, len(res.Accepted))
	}

	log.Debug("roundtrip ok", "file", c.File, "tokens", res.TokenCount)
	fmt.Printf("ok: %d lines, %d tokens, %d entities\n", len(res.Lines), res.TokenCount, len(res.Accepted))
	return nil
}

// CatalogCmd searches an entity catalog.
type CatalogCmd struct {
	Query string   `arg:"" optional:"" help:"Search query"`
	File  string   `name:"file" short:"f" type:"existingfile" help:"JSON catalog file"`
	Names []string `name:"names" short:"n" default:"Person,Organization,Location,Date" help:"Catalog entries when no file is given"`
	Limit int      `name:"limit" default:"10" help:"Maximum matches"`
}

func (c *CatalogCmd) Run() error {
	cat := catalog.FromNames(c.Names)
	if c.File != "" {
		var err error
		if cat, err = catalog.Load(c.File); err != nil {
			return err
		}
	}
	for _, m := range cat.Search(c.Query, c.Limit) {
		var sb strings.Builder
		for _, seg := range m.Segments {
			if seg.Matched {
				sb.WriteString("[" + seg.Text + "]")
			} else {
				sb.WriteString(seg.Text)
			}
		}
		fmt.Printf("%s\t%s\n", m.Option.ID, sb.String())
	}
	return nil
}

// readDocument reads path as plain text, or through a document parser when
// the extension is one of the importable formats.
func readDocument(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	if !parser.IsSupportedExtension(path) {
		data, err := io.ReadAll(f)
		if err != nil {
			return "", fmt.Errorf("read document: %w", err)
		}
		return string(data), nil
	}
	p, err := parser.ForFile(path)
	if err != nil {
		return "", err
	}
	src, err := p.Parse(f, path)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	return src.Text(), nil
}

func loadEntities(path string) ([]entity.Entity[labeler.EntityData], error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}
	var entities []entity.Entity[labeler.EntityData]
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("decode entities %s: %w", path, err)
	}
	return entities, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// firstDiff returns a short excerpt of want around the first byte where got
// differs.
func firstDiff(want, got string) string {
	i := 0
	for i < len(want) && i < len(got) && want[i] == got[i] {
		i++
	}
	end := min(i+20, len(want))
	return want[i:end]
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("labelctl"),
		kong.Description("Tokenize and label plain text documents"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	level := slog.LevelInfo
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	err := ctx.Run(log)
	ctx.FatalIfErrorf(err)
}
