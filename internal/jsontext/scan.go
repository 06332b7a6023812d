// Package jsontext holds small string-aware scanners over JSON-like text that may not parse.
package jsontext

import "strings"

// Segment is a run of text either inside or outside a double-quoted string.
// String segments include their delimiting quotes.
type Segment struct {
	Text     string
	InString bool
}

// Split cuts text into alternating structural and string segments. An unterminated string
// runs to the end of the text.
func Split(text string) []Segment {
	var segments []Segment
	start := 0
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				segments = append(segments, Segment{Text: text[start : i+1], InString: true})
				start = i + 1
				inString = false
			}
			continue
		}
		if c == '"' {
			if i > start {
				segments = append(segments, Segment{Text: text[start:i]})
			}
			start = i
			inString = true
		}
	}
	if start < len(text) {
		segments = append(segments, Segment{Text: text[start:], InString: inString})
	}
	return segments
}

// MapStructural applies fn to every segment outside strings and reassembles the text
func MapStructural(text string, fn func(string) string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, seg := range Split(text) {
		if seg.InString {
			b.WriteString(seg.Text)
			continue
		}
		b.WriteString(fn(seg.Text))
	}
	return b.String()
}

// MapStrings applies fn to the body of every string segment (without its quotes)
func MapStrings(text string, fn func(string) string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, seg := range Split(text) {
		if !seg.InString {
			b.WriteString(seg.Text)
			continue
		}
		body := seg.Text[1:]
		closed := strings.HasSuffix(body, `"`) && !endsEscaped(body[:len(body)-1])
		if closed {
			body = body[:len(body)-1]
		}
		b.WriteByte('"')
		b.WriteString(fn(body))
		if closed {
			b.WriteByte('"')
		}
	}
	return b.String()
}

// Depth counts unmatched opening brackets and braces outside strings. Stray closers are ignored.
// unterminated reports whether the text ends inside a string; trailingEscape whether it ends on
// a lone escape character inside that string.
func Depth(text string) (brackets, braces int, unterminated, trailingEscape bool) {
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			brackets++
		case ']':
			if brackets > 0 {
				brackets--
			}
		case '{':
			braces++
		case '}':
			if braces > 0 {
				braces--
			}
		}
	}
	return brackets, braces, inString, escaped
}

// endsEscaped reports whether s ends with an odd run of backslashes
func endsEscaped(s string) bool {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

// ValidEscape reports whether c may follow a backslash inside a JSON string
func ValidEscape(c byte) bool {
	switch c {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
		return true
	}
	return false
}

// EndsInString reports whether a scan that starts with the given string state finishes inside a string
func EndsInString(text string, inString bool) bool {
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			continue
		}
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = false
		}
	}
	return inString
}

// ValueEnd returns the index just past the first complete top-level object or array, or -1 when the
// text does not start with one or it never closes.
func ValueEnd(text string) int {
	start := 0
	for start < len(text) && isSpace(text[start]) {
		start++
	}
	if start == len(text) || (text[start] != '{' && text[start] != '[') {
		return -1
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
