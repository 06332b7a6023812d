package processing

import (
	"regexp"
	"strings"

	"github.com/Caia-Tech/caia-quizcheck/internal/jsontext"
)

var (
	fenceOpenRegex    = regexp.MustCompile("```[A-Za-z0-9_+-]*[ \t]*\r?\n?")
	commentLineRegex  = regexp.MustCompile(`(?m)^[ \t]*(?://|#).*(?:\r?\n|$)`)
	invisibleReplacer = strings.NewReplacer(
		"\uFEFF", "", // BOM
		"\u200B", "", // zero-width space
		"\u200C", "",
		"\u200D", "",
		"\u2060", "",
	)
)

// FencedBlockRule extracts the interior of the first fenced code block
type FencedBlockRule struct{}

func (r *FencedBlockRule) Name() string {
	return "fenced_block"
}

func (r *FencedBlockRule) Description() string {
	return "Extracts the first fenced code block when it opens before the structured data"
}

func (r *FencedBlockRule) Apply(content string) string {
	loc := fenceOpenRegex.FindStringIndex(content)
	if loc == nil {
		return content
	}
	// A fence that only appears after the object starts lives inside the data
	if brace := strings.Index(content, "{"); brace >= 0 && brace < loc[0] {
		return content
	}
	body := content[loc[1]:]
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}

// BraceSpanRule cuts leading and trailing prose around the outermost object
type BraceSpanRule struct{}

func (r *BraceSpanRule) Name() string {
	return "brace_span"
}

func (r *BraceSpanRule) Description() string {
	return "Slices text from the first opening brace to the last closing brace"
}

func (r *BraceSpanRule) Apply(content string) string {
	start := strings.Index(content, "{")
	if start < 0 {
		return strings.TrimSpace(content)
	}
	end := strings.LastIndex(content, "}")
	if end < start {
		return strings.TrimSpace(content[start:])
	}
	return content[start : end+1]
}

// SmartQuoteRule replaces typographic quotes with ASCII ones
type SmartQuoteRule struct{}

func (r *SmartQuoteRule) Name() string {
	return "smart_quotes"
}

func (r *SmartQuoteRule) Description() string {
	return "Normalizes curly quotes and apostrophes to ASCII and drops invisible characters"
}

func (r *SmartQuoteRule) Apply(content string) string {
	content = invisibleReplacer.Replace(content)
	if !strings.ContainsAny(content, "“”„‟″‘’‚‛′") {
		return content
	}

	runes := []rune(content)
	var b strings.Builder
	b.Grow(len(content))

	inString, smartDelimited, escaped := false, false, false
	for i, ch := range runes {
		if isSmartSingle(ch) {
			b.WriteByte('\'')
			escaped = false
			continue
		}
		if !inString {
			switch {
			case ch == '"':
				inString = true
			case isSmartDouble(ch):
				inString, smartDelimited = true, true
				b.WriteByte('"')
				continue
			}
			b.WriteRune(ch)
			continue
		}

		if escaped {
			escaped = false
			if isSmartDouble(ch) {
				// \“ is already escaped, only the glyph needs fixing
				b.WriteByte('"')
				continue
			}
			b.WriteRune(ch)
			continue
		}
		switch {
		case ch == '\\':
			escaped = true
			b.WriteRune(ch)
		case ch == '"' && !smartDelimited:
			inString = false
			b.WriteRune(ch)
		case ch == '"':
			// ASCII quote inside a curly-delimited string closes it only at a structural boundary
			if closesString(runes, i+1) {
				inString, smartDelimited = false, false
				b.WriteRune(ch)
			} else {
				b.WriteString(`\"`)
			}
		case isSmartDouble(ch) && (smartDelimited || closesString(runes, i+1)):
			inString, smartDelimited = false, false
			b.WriteByte('"')
		case isSmartDouble(ch):
			b.WriteString(`\"`)
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func isSmartDouble(ch rune) bool {
	switch ch {
	case '“', '”', '„', '‟', '″':
		return true
	}
	return false
}

func isSmartSingle(ch rune) bool {
	switch ch {
	case '‘', '’', '‚', '‛', '′':
		return true
	}
	return false
}

// closesString reports whether a quote at runes[from-1] sits on a structural boundary:
// followed by ':', '}' or ']', by the end of text, or by a comma that starts another value.
func closesString(runes []rune, from int) bool {
	j := skipSpace(runes, from)
	if j >= len(runes) {
		return true
	}
	switch runes[j] {
	case ':', '}', ']':
		return true
	case ',':
		k := skipSpace(runes, j+1)
		if k >= len(runes) {
			return true
		}
		switch c := runes[k]; {
		case c == '"' || isSmartDouble(c) || c == '{' || c == '[' || c == '-':
			return true
		case c >= '0' && c <= '9':
			return true
		}
	}
	return false
}

func skipSpace(runes []rune, from int) int {
	for from < len(runes) {
		switch runes[from] {
		case ' ', '\t', '\r', '\n':
			from++
			continue
		}
		break
	}
	return from
}

// LineCommentRule drops comment lines that JSON does not allow
type LineCommentRule struct{}

func (r *LineCommentRule) Name() string {
	return "line_comments"
}

func (r *LineCommentRule) Description() string {
	return "Removes lines starting with // or # comment markers"
}

func (r *LineCommentRule) Apply(content string) string {
	return commentLineRegex.ReplaceAllString(content, "")
}

// DelimiterBalanceRule closes arrays and objects left open by truncated output.
// All missing brackets are appended before any missing brace.
type DelimiterBalanceRule struct{}

func (r *DelimiterBalanceRule) Name() string {
	return "delimiter_balance"
}

func (r *DelimiterBalanceRule) Description() string {
	return "Appends missing closing brackets, then missing closing braces"
}

func (r *DelimiterBalanceRule) Apply(content string) string {
	brackets, braces, unterminated, trailingEscape := jsontext.Depth(content)
	if brackets == 0 && braces == 0 && !unterminated {
		return content
	}
	if unterminated {
		if trailingEscape {
			content = content[:len(content)-1]
		}
		content += `"`
	}
	return content + strings.Repeat("]", brackets) + strings.Repeat("}", braces)
}
