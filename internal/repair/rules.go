package repair

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"github.com/Caia-Tech/caia-quizcheck/internal/jsontext"
)

// Rule is one named text rewrite. Every rule is idempotent and only touches constructs that
// JSON does not allow, so it leaves well-formed documents unchanged.
type Rule struct {
	Name        string
	Description string
	Apply       func(text string) string
}

var (
	objectStartRegex   = regexp.MustCompile(`\{\s*["}]`)
	keyedStartRegex    = regexp.MustCompile(`^\s*\{\s*['"]?[A-Za-z_][A-Za-z0-9_\-]*['"]?\s*:`)
	leakedTurnRegex    = regexp.MustCompile(`^[ \t]*(?:User|Human|Assistant|System|AI):`)
	bareKeyRegex       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_\-]*)(\s*):`)
	singleQuotedKey    = regexp.MustCompile(`'([^'"\\\n]*)'(\s*):`)
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	hexDigits          = "0123456789abcdefABCDEF"
)

// Rules returns every known rule in canonical application order
func Rules() []Rule {
	return []Rule{
		{
			Name:        "strip_preamble",
			Description: "Removes apology, refusal or introduction prose before the real object start",
			Apply:       stripPreamble,
		},
		{
			Name:        "strip_leaked_context",
			Description: "Removes conversation turns (User:, Assistant:, ...) that leaked between fields",
			Apply:       stripLeakedContext,
		},
		{
			Name:        "collapse_block_math",
			Description: "Rewrites unescaped block math delimiters \\[ \\] as inline \\\\( \\\\)",
			Apply:       collapseBlockMath,
		},
		{
			Name:        "strip_markdown_escapes",
			Description: "Drops markdown escapes before _ * # ~ > inside strings",
			Apply:       stripMarkdownEscapes,
		},
		{
			Name:        "escape_stray_backslashes",
			Description: "Doubles backslashes that do not start a valid escape sequence",
			Apply:       escapeStrayBackslashes,
		},
		{
			Name:        "quote_bare_keys",
			Description: "Quotes unquoted and single-quoted object keys",
			Apply:       quoteBareKeys,
		},
		{
			Name:        "remove_trailing_commas",
			Description: "Removes commas directly before a closing bracket or brace",
			Apply:       removeTrailingCommas,
		},
		{
			Name:        "trim_trailing_content",
			Description: "Drops text after the first complete top-level value",
			Apply:       trimTrailingContent,
		},
	}
}

func stripPreamble(text string) string {
	loc := objectStartRegex.FindStringIndex(text)
	if loc == nil || loc[0] == 0 {
		return text
	}
	// text that already opens an object with a key has no preamble, quoted or not
	if strings.TrimSpace(text[:loc[0]]) == "" || keyedStartRegex.MatchString(text) {
		return text
	}
	// an enclosing array or a complete scalar is data, not prose
	if json.Valid([]byte(text)) {
		return text
	}
	prefix := strings.TrimSpace(text[:loc[0]])
	if strings.IndexFunc(prefix, unicode.IsLetter) < 0 && strings.IndexByte(`["0123456789`, prefix[0]) >= 0 {
		return text
	}
	return text[loc[0]:]
}

func stripLeakedContext(text string) string {
	lines := strings.SplitAfter(text, "\n")
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	for _, line := range lines {
		if !inString && leakedTurnRegex.MatchString(line) {
			continue
		}
		b.WriteString(line)
		inString = jsontext.EndsInString(line, inString)
	}
	return b.String()
}

// rewriteEscapes walks the body of every string and hands each backslash escape to fn.
// fn returns the replacement for the two-byte sequence and whether it handled it.
func rewriteEscapes(text string, fn func(next byte, rest string) (string, bool)) string {
	return jsontext.MapStrings(text, func(body string) string {
		if !strings.Contains(body, `\`) {
			return body
		}
		var b strings.Builder
		b.Grow(len(body) + 8)
		for i := 0; i < len(body); i++ {
			c := body[i]
			if c != '\\' || i+1 >= len(body) {
				b.WriteByte(c)
				continue
			}
			next := body[i+1]
			if out, ok := fn(next, body[i+2:]); ok {
				b.WriteString(out)
			} else {
				b.WriteByte(c)
				b.WriteByte(next)
			}
			i++
		}
		return b.String()
	})
}

func collapseBlockMath(text string) string {
	return rewriteEscapes(text, func(next byte, _ string) (string, bool) {
		switch next {
		case '[':
			return `\\(`, true
		case ']':
			return `\\)`, true
		}
		return "", false
	})
}

func stripMarkdownEscapes(text string) string {
	return rewriteEscapes(text, func(next byte, _ string) (string, bool) {
		switch next {
		case '_', '*', '#', '~', '>':
			return string(next), true
		}
		return "", false
	})
}

func escapeStrayBackslashes(text string) string {
	return rewriteEscapes(text, func(next byte, rest string) (string, bool) {
		if next == 'u' && !isUnicodeEscape(rest) {
			return `\\u`, true
		}
		if jsontext.ValidEscape(next) {
			return "", false
		}
		return `\\` + string(next), true
	})
}

func isUnicodeEscape(rest string) bool {
	if len(rest) < 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if !strings.ContainsRune(hexDigits, rune(rest[i])) {
			return false
		}
	}
	return true
}

func quoteBareKeys(text string) string {
	return jsontext.MapStructural(text, func(segment string) string {
		segment = bareKeyRegex.ReplaceAllString(segment, `$1"$2"$3:`)
		return singleQuotedKey.ReplaceAllString(segment, `"$1"$2:`)
	})
}

func removeTrailingCommas(text string) string {
	return jsontext.MapStructural(text, func(segment string) string {
		for {
			next := trailingCommaRegex.ReplaceAllString(segment, "$1")
			if next == segment {
				return segment
			}
			segment = next
		}
	})
}

func trimTrailingContent(text string) string {
	end := jsontext.ValueEnd(text)
	if end < 0 || strings.TrimSpace(text[end:]) == "" {
		return text
	}
	return text[:end]
}
