package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// HTMLExtractor reads chat transcripts saved as HTML. Preformatted blocks are kept verbatim
// and re-fenced so the normalizer can find the structured block inside the prose.
type HTMLExtractor struct{}

func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

type htmlBlock struct {
	text string
	code bool
}

func (h *HTMLExtractor) Extract(ctx context.Context, content []byte) (string, map[string]string, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", map[string]string{"type": "html"}, &ExtractionError{
			Format:  "html",
			Message: fmt.Sprintf("failed to parse HTML: %v", err),
		}
	}

	var blocks []htmlBlock
	var prose strings.Builder
	var title string
	codeBlocks := 0

	flush := func() {
		if s := strings.Join(strings.Fields(prose.String()), " "); s != "" {
			blocks = append(blocks, htmlBlock{text: s})
		}
		prose.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "header", "footer", "aside", "button":
				return
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case "pre":
				flush()
				blocks = append(blocks, htmlBlock{text: rawText(n), code: true})
				codeBlocks++
				return
			}
			if isBlockElement(n.Data) {
				flush()
			}
		}

		if n.Type == html.TextNode {
			prose.WriteString(n.Data)
			prose.WriteByte(' ')
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && isBlockElement(n.Data) {
			flush()
		}
	}
	walk(doc)
	flush()

	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.code {
			parts = append(parts, "```\n"+strings.Trim(b.text, "\n")+"\n```")
		} else {
			parts = append(parts, b.text)
		}
	}
	text := strings.Join(parts, "\n\n")

	metadata := map[string]string{
		"type":        "html",
		"characters":  fmt.Sprintf("%d", len(text)),
		"title":       title,
		"code_blocks": fmt.Sprintf("%d", codeBlocks),
	}
	return text, metadata, nil
}

// rawText concatenates every descendant text node without touching whitespace
func rawText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "blockquote",
		"article", "section", "main", "td", "th", "dt", "dd", "br", "tr":
		return true
	}
	return false
}
