package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Engine picks an extractor by content type
type Engine struct {
	extractors map[string]Extractor
}

// Extractor turns a document into the raw text handed to the pipeline
type Extractor interface {
	Extract(ctx context.Context, content []byte) (string, map[string]string, error)
}

func NewEngine() *Engine {
	text := &TextExtractor{}
	htmlExtractor := NewHTMLExtractor()
	return &Engine{
		extractors: map[string]Extractor{
			"text":     text,
			"txt":      text,
			"md":       text,
			"markdown": text,
			"json":     text,
			"html":     htmlExtractor,
			"htm":      htmlExtractor,
			"pdf":      &PDFExtractor{MaxPages: 200},
			"docx":     &DOCXExtractor{},
		},
	}
}

// Types lists the content types the engine understands
func (e *Engine) Types() []string {
	types := make([]string, 0, len(e.extractors))
	for t := range e.extractors {
		types = append(types, t)
	}
	return types
}

// Extract reads content of the given type. Unknown types are read as text.
func (e *Engine) Extract(ctx context.Context, content []byte, contentType string) (string, map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	extractor, ok := e.extractors[strings.ToLower(strings.TrimPrefix(contentType, "."))]
	if !ok {
		// Default to text extraction
		extractor = e.extractors["text"]
	}

	return extractor.Extract(ctx, content)
}

// ExtractFile reads a file and extracts it by extension
func (e *Engine) ExtractFile(ctx context.Context, path string) (string, map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	text, metadata, err := e.Extract(ctx, content, TypeFromFilename(path))
	if metadata != nil {
		metadata["filename"] = filepath.Base(path)
	}
	return text, metadata, err
}

// TypeFromFilename maps a file name to a content type, defaulting to text
func TypeFromFilename(name string) string {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")); ext {
	case "pdf", "docx", "html", "htm", "json", "md", "markdown", "txt":
		return ext
	}
	return "text"
}

// TextExtractor handles plain text, markdown and raw JSON
type TextExtractor struct{}

func (t *TextExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	if !utf8.Valid(content) {
		return "", map[string]string{"type": "text"}, &ExtractionError{
			Format:  "text",
			Message: "content is not valid UTF-8",
		}
	}
	text := string(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf")))
	metadata := map[string]string{
		"type":       "text",
		"characters": fmt.Sprintf("%d", utf8.RuneCountInString(text)),
		"lines":      fmt.Sprintf("%d", strings.Count(text, "\n")+1),
	}
	return text, metadata, nil
}

// TypeFromContentType maps a MIME type such as "text/html; charset=utf-8" to a content type
func TypeFromContentType(contentType string) string {
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch mime {
	case "application/pdf":
		return "pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "text/html", "application/xhtml+xml":
		return "html"
	case "application/json":
		return "json"
	case "text/markdown":
		return "md"
	}
	if _, known := NewEngine().extractors[mime]; known {
		return mime
	}
	return "text"
}
