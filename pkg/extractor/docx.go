package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// DOCXExtractor handles quizzes pasted into Word documents
type DOCXExtractor struct{}

// Extract extracts text and metadata from DOCX content
func (d *DOCXExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	metadata := map[string]string{
		"type": "docx",
		"size": fmt.Sprintf("%d", len(content)),
	}

	// DOCX files are ZIP files, check for ZIP signature
	if len(content) < 4 || content[0] != 0x50 || content[1] != 0x4B {
		return "", metadata, &ExtractionError{
			Format:  "docx",
			Message: "not a valid DOCX file, missing ZIP signature",
		}
	}

	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", metadata, &ExtractionError{
			Format:  "docx",
			Message: fmt.Sprintf("failed to parse DOCX: %v", err),
		}
	}
	defer doc.Close()

	// GetContent returns document XML; keep paragraph breaks and drop the markup
	text := xmlToText(doc.Editable().GetContent())
	metadata["text_length"] = fmt.Sprintf("%d", len(text))
	metadata["word_count"] = fmt.Sprintf("%d", len(strings.Fields(text)))

	if text == "" {
		return "", metadata, &ExtractionError{
			Format:  "docx",
			Message: "DOCX document contains no extractable text",
		}
	}
	return text, metadata, nil
}

var xmlEntities = strings.NewReplacer(
	"&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&#39;", "'", "&amp;", "&",
)

// xmlToText strips WordprocessingML tags, turning paragraph and break elements into newlines
func xmlToText(content string) string {
	var b strings.Builder
	for len(content) > 0 {
		open := strings.IndexByte(content, '<')
		if open < 0 {
			b.WriteString(content)
			break
		}
		b.WriteString(content[:open])
		end := strings.IndexByte(content[open:], '>')
		if end < 0 {
			break
		}
		tag := content[open+1 : open+end]
		switch {
		case tag == "/w:p", strings.HasPrefix(tag, "w:br"), strings.HasPrefix(tag, "w:cr"):
			b.WriteByte('\n')
		case strings.HasPrefix(tag, "w:tab"):
			b.WriteByte('\t')
		}
		content = content[open+end+1:]
	}

	text := xmlEntities.Replace(b.String())
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}
