package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/entlabel/internal/token"
)

// Parser extracts labelable text from raw document bytes.
type Parser interface {
	Parse(r io.Reader, filename string) (*Source, error)
}

// Source is the text of an imported document, one entry per line.
type Source struct {
	Title string
	Lines []string
}

// Text joins the lines into the document text.
func (s *Source) Text() string {
	return strings.Join(s.Lines, token.LineSeparator)
}

// addBlock appends each line of a block, trimming trailing whitespace and
// dropping blank lines.
func (s *Source) addBlock(block string) {
	for _, line := range strings.Split(normalizeNewlines(block), "\n") {
		line = strings.TrimRightFunc(line, isSpace)
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.Lines = append(s.Lines, line)
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\f' || r == '\v'
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
