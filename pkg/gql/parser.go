// Package gql implements a small query language over stored question sets, e.g.
//
//	SELECT FROM sets WHERE status = "warning" AND questions > 5 ORDER BY created_at DESC LIMIT 20
package gql

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DefaultLimit applies when a query has no LIMIT clause
const DefaultLimit = 100

// Query represents a parsed query
type Query struct {
	Type       QueryType
	Filters    []Filter
	Limit      int
	OrderBy    string
	Descending bool
}

// QueryType selects what a query returns
type QueryType string

const (
	// QuerySets returns stored set summaries
	QuerySets QueryType = "sets"
	// QueryProviders aggregates stored sets per provider
	QueryProviders QueryType = "providers"
	// QuerySources aggregates stored sets per submission source
	QuerySources QueryType = "sources"
)

// Filter represents one WHERE condition
type Filter struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Operator defines filter operators
type Operator string

const (
	OpEquals       Operator = "="
	OpNotEquals    Operator = "!="
	OpContains     Operator = "~"
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpExists       Operator = "exists"
	OpNotExists    Operator = "not exists"
)

// Parser parses queries
type Parser struct {
	tokens []token
	pos    int
}

type token struct {
	typ   tokenType
	value string
	pos   int
}

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenKeyword
	tokenIdentifier
	tokenOperator
	tokenString
	tokenNumber
)

var keywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true,
	"ORDER": true, "BY": true, "DESC": true, "ASC": true, "LIMIT": true,
	"NOT": true, "EXISTS": true,
	"SETS": true, "PROVIDERS": true, "SOURCES": true,
}

// NewParser creates a new parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses a query string
func (p *Parser) Parse(query string) (*Query, error) {
	tokens, err := tokenize(query)
	if err != nil {
		return nil, fmt.Errorf("tokenization error: %w", err)
	}

	p.tokens = tokens
	p.pos = 0

	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if tok := p.current(); tok.typ != tokenEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", tok.value, tok.pos)
	}
	return q, nil
}

func tokenize(query string) ([]token, error) {
	var tokens []token

	i := 0
	for i < len(query) {
		c := query[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '"' || c == '\'':
			var sb strings.Builder
			j := i + 1
			for j < len(query) && query[j] != c {
				if query[j] == '\\' && j+1 < len(query) {
					j++
				}
				sb.WriteByte(query[j])
				j++
			}
			if j >= len(query) {
				return nil, fmt.Errorf("unterminated string at position %d", i)
			}
			tokens = append(tokens, token{typ: tokenString, value: sb.String(), pos: i})
			i = j + 1

		case c >= '0' && c <= '9':
			j := i
			for j < len(query) && (query[j] >= '0' && query[j] <= '9' || query[j] == '.' || query[j] == '-' || query[j] == ':' || query[j] == 'T' || query[j] == 'Z') {
				j++
			}
			tokens = append(tokens, token{typ: tokenNumber, value: query[i:j], pos: i})
			i = j

		case unicode.IsLetter(rune(c)) || c == '_':
			j := i
			for j < len(query) && (unicode.IsLetter(rune(query[j])) || unicode.IsDigit(rune(query[j])) || query[j] == '_' || query[j] == '.') {
				j++
			}
			word := query[i:j]
			if keywords[strings.ToUpper(word)] {
				tokens = append(tokens, token{typ: tokenKeyword, value: strings.ToUpper(word), pos: i})
			} else {
				tokens = append(tokens, token{typ: tokenIdentifier, value: word, pos: i})
			}
			i = j

		case i+1 < len(query) && (query[i:i+2] == "!=" || query[i:i+2] == ">=" || query[i:i+2] == "<="):
			tokens = append(tokens, token{typ: tokenOperator, value: query[i : i+2], pos: i})
			i += 2

		case c == '=' || c == '>' || c == '<' || c == '~':
			tokens = append(tokens, token{typ: tokenOperator, value: string(c), pos: i})
			i++

		default:
			return nil, fmt.Errorf("unexpected character '%c' at position %d", c, i)
		}
	}

	tokens = append(tokens, token{typ: tokenEOF, pos: len(query)})
	return tokens, nil
}

func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{Limit: DefaultLimit}

	if !p.matchKeyword("SELECT") {
		return nil, fmt.Errorf("expected SELECT keyword")
	}
	if !p.matchKeyword("FROM") {
		return nil, fmt.Errorf("expected FROM keyword")
	}

	typ := p.current()
	switch {
	case typ.typ != tokenKeyword:
		return nil, fmt.Errorf("expected sets, providers or sources after FROM")
	case typ.value == "SETS":
		q.Type = QuerySets
	case typ.value == "PROVIDERS":
		q.Type = QueryProviders
	case typ.value == "SOURCES":
		q.Type = QuerySources
	default:
		return nil, fmt.Errorf("unknown query type: %s", typ.value)
	}
	p.advance()

	if p.matchKeyword("WHERE") {
		for {
			filter, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			q.Filters = append(q.Filters, filter)
			if !p.matchKeyword("AND") {
				break
			}
		}
	}

	if p.matchKeyword("ORDER") {
		if !p.matchKeyword("BY") {
			return nil, fmt.Errorf("expected BY after ORDER")
		}
		orderBy, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		q.OrderBy = orderBy

		if p.matchKeyword("DESC") {
			q.Descending = true
		} else {
			p.matchKeyword("ASC")
		}
	}

	if p.matchKeyword("LIMIT") {
		tok := p.current()
		limit, err := strconv.Atoi(tok.value)
		if tok.typ != tokenNumber || err != nil || limit <= 0 {
			return nil, fmt.Errorf("expected a positive LIMIT, got %q", tok.value)
		}
		p.advance()
		q.Limit = limit
	}

	return q, nil
}

// parseFilter parses "field op value", "field EXISTS" or "field NOT EXISTS"
func (p *Parser) parseFilter() (Filter, error) {
	field, err := p.parseIdentifier()
	if err != nil {
		return Filter{}, fmt.Errorf("expected field name: %w", err)
	}

	if p.matchKeyword("EXISTS") {
		return Filter{Field: field, Operator: OpExists}, nil
	}
	if p.matchKeyword("NOT") {
		if !p.matchKeyword("EXISTS") {
			return Filter{}, fmt.Errorf("expected EXISTS after NOT")
		}
		return Filter{Field: field, Operator: OpNotExists}, nil
	}

	op := p.current()
	if op.typ != tokenOperator {
		return Filter{}, fmt.Errorf("expected operator after field %s", field)
	}
	p.advance()

	value, err := p.parseValue()
	if err != nil {
		return Filter{}, err
	}

	return Filter{Field: field, Operator: Operator(op.value), Value: value}, nil
}

func (p *Parser) current() token {
	if p.pos >= len(p.tokens) {
		return token{typ: tokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *Parser) matchKeyword(keyword string) bool {
	tok := p.current()
	if tok.typ == tokenKeyword && tok.value == keyword {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) parseIdentifier() (string, error) {
	tok := p.current()
	switch {
	case tok.typ == tokenIdentifier:
	case tok.typ == tokenKeyword && (tok.value == "SETS" || tok.value == "PROVIDERS" || tok.value == "SOURCES"):
		// group fields share names with query types
		tok.value = strings.ToLower(tok.value)
	default:
		return "", fmt.Errorf("expected identifier, got %q", tok.value)
	}
	p.advance()
	return tok.value, nil
}

// parseValue returns a string, float64, bool or time.Time
func (p *Parser) parseValue() (interface{}, error) {
	tok := p.current()
	switch tok.typ {
	case tokenString:
		p.advance()
		return tok.value, nil
	case tokenNumber:
		p.advance()
		if t, ok := parseDate(tok.value); ok {
			return t, nil
		}
		num, err := strconv.ParseFloat(tok.value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", tok.value)
		}
		return num, nil
	case tokenIdentifier:
		p.advance()
		switch tok.value {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return tok.value, nil
	default:
		return nil, fmt.Errorf("expected value, got %q", tok.value)
	}
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
