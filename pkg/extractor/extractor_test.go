package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		expected string
	}{
		{"PDF", "quiz.PDF", "pdf"},
		{"DOCX", "week3/quiz.docx", "docx"},
		{"HTML", "chat-export.htm", "htm"},
		{"JSON", "questions.json", "json"},
		{"Markdown", "notes.md", "md"},
		{"NoExtension", "README", "text"},
		{"Unknown", "quiz.rtf", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TypeFromFilename(tt.filename))
		})
	}
}

func TestTypeFromContentType(t *testing.T) {
	tests := []struct {
		contentType string
		expected    string
	}{
		{"text/html; charset=utf-8", "html"},
		{"application/pdf", "pdf"},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "docx"},
		{"application/json", "json"},
		{"text/plain", "text"},
		{"docx", "docx"},
		{"", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.expected, TypeFromContentType(tt.contentType))
		})
	}
}

func TestExtractText(t *testing.T) {
	engine := NewEngine()

	text, metadata, err := engine.Extract(context.Background(), []byte("\xef\xbb\xbf{\"questions\": []}\n"), "json")
	require.NoError(t, err)
	assert.Equal(t, "{\"questions\": []}\n", text)
	assert.Equal(t, "text", metadata["type"])
	assert.Equal(t, "2", metadata["lines"])

	// unknown types fall back to text
	text, _, err = engine.Extract(context.Background(), []byte("plain"), "rtf")
	require.NoError(t, err)
	assert.Equal(t, "plain", text)

	_, _, err = engine.Extract(context.Background(), []byte{0xff, 0xfe, 0x00}, "text")
	var extractionErr *ExtractionError
	assert.True(t, errors.As(err, &extractionErr))
}

func TestExtractHTMLKeepsCodeBlocks(t *testing.T) {
	page := `<html><head><title>Chat export</title><script>var x = 1;</script></head>
<body>
  <nav>Home | Settings</nav>
  <div class="message"><p>Here   is your <b>quiz</b>:</p>
  <pre><code class="language-json">{
  "questions": [
    {"type": "essay", "question_text": "Compare  R &amp; C"}
  ]
}</code></pre>
  <p>Good luck!</p></div>
</body></html>`

	text, metadata, err := NewHTMLExtractor().Extract(context.Background(), []byte(page))
	require.NoError(t, err)

	assert.Equal(t, "Chat export", metadata["title"])
	assert.Equal(t, "1", metadata["code_blocks"])
	assert.Contains(t, text, "Here is your quiz :")
	assert.Contains(t, text, "```\n{\n  \"questions\": [\n")
	// whitespace inside code is preserved and entities are decoded
	assert.Contains(t, text, `"Compare  R & C"`)
	assert.Contains(t, text, "Good luck!")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "Settings")
}

func TestExtractPDFErrors(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"Empty", []byte{}},
		{"Nil", nil},
		{"NotPDF", []byte("This is not a PDF file")},
		{"BrokenPDF", []byte("%PDF-1.4 truncated")},
	}

	extractor := &PDFExtractor{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, metadata, err := extractor.Extract(context.Background(), tt.content)
			assert.Error(t, err)
			assert.Empty(t, text)
			// Metadata may still be returned even on error
			assert.Equal(t, "pdf", metadata["type"])

			var extractionErr *ExtractionError
			assert.True(t, errors.As(err, &extractionErr), "Expected ExtractionError, got %T", err)
		})
	}
}

func TestExtractDOCXErrors(t *testing.T) {
	extractor := &DOCXExtractor{}

	_, metadata, err := extractor.Extract(context.Background(), []byte("nope"))
	require.Error(t, err)
	assert.Equal(t, "docx", metadata["type"])
	assert.Contains(t, err.Error(), "docx extraction failed")

	// ZIP signature but no archive behind it
	_, _, err = extractor.Extract(context.Background(), []byte("PK\x03\x04garbage"))
	var extractionErr *ExtractionError
	assert.True(t, errors.As(err, &extractionErr))
}

func TestXMLToText(t *testing.T) {
	xml := `<w:document><w:body><w:p><w:r><w:t>{"questions": [</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">  {&quot;type&quot;: &quot;essay&quot;}</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>]}</w:t><w:br/></w:r></w:p></w:body></w:document>`

	assert.Equal(t, "{\"questions\": [\n  {\"type\": \"essay\"}\n]}", xmlToText(xml))
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quiz.md")
	require.NoError(t, os.WriteFile(path, []byte("# Quiz\n{}"), 0o644))

	text, metadata, err := NewEngine().ExtractFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "# Quiz\n{}", text)
	assert.Equal(t, "quiz.md", metadata["filename"])

	_, _, err = NewEngine().ExtractFile(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewEngine().Extract(ctx, []byte("x"), "text")
	assert.ErrorIs(t, err, context.Canceled)
}
