// Package document extracts and normalises the reference document that every
// answer is grounded on.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	log "github.com/sirupsen/logrus"
)

// Clean lower-cases text, trims it and collapses every whitespace run to one space.
func Clean(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Loader extracts a document once and serves the cleaned text afterwards.
type Loader struct {
	path   string
	source document.Loader

	once sync.Once
	text string
	err  error
}

// NewLoader builds a loader for path backed by the eino file loader. PDFs go
// through the PDF parser, anything else is read as plain text.
func NewLoader(ctx context.Context, path string) (*Loader, error) {
	pdfParser, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	if err != nil {
		return nil, fmt.Errorf("init pdf parser: %w", err)
	}
	extParser, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		Parsers:        map[string]parser.Parser{".pdf": pdfParser},
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init document parser: %w", err)
	}
	fileLoader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      extParser,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return NewLoaderWithSource(path, fileLoader), nil
}

// NewLoaderWithSource wires an arbitrary eino document loader.
func NewLoaderWithSource(path string, source document.Loader) *Loader {
	return &Loader{path: path, source: source}
}

// Path returns the document location.
func (l *Loader) Path() string {
	return l.path
}

// Load returns the cleaned document text. Extraction happens on the first
// call only; the result (or the error) is cached for the loader's lifetime.
func (l *Loader) Load(ctx context.Context) (string, error) {
	l.once.Do(func() {
		l.text, l.err = l.extract(ctx)
	})
	return l.text, l.err
}

func (l *Loader) extract(ctx context.Context) (string, error) {
	if l.source == nil {
		return "", errors.New("document source not configured")
	}
	docs, err := l.source.Load(ctx, document.Source{URI: l.path})
	if err != nil {
		return "", fmt.Errorf("load document %s: %w", l.path, err)
	}
	var builder strings.Builder
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		builder.WriteString(doc.Content)
		builder.WriteString("\n")
	}
	text := Clean(builder.String())
	log.WithFields(log.Fields{
		"path":  l.path,
		"parts": len(docs),
		"chars": len(text),
	}).Info("reference document loaded")
	return text, nil
}
