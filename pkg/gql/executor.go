package gql

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/report"
	"github.com/Caia-Tech/caia-quizcheck/internal/storage"
)

// SetLister is the part of a store the executor reads
type SetLister interface {
	List(ctx context.Context) ([]storage.Summary, error)
}

// Executor runs queries against stored set summaries
type Executor struct {
	store SetLister
}

// NewExecutor creates a new query executor
func NewExecutor(store SetLister) *Executor {
	return &Executor{store: store}
}

// Result represents query results
type Result struct {
	Type    QueryType     `json:"type"`
	Count   int           `json:"count"`
	Total   int           `json:"total"`
	Items   []interface{} `json:"items"`
	Elapsed time.Duration `json:"elapsed_ms"`
}

// GroupResult aggregates the sets sharing a provider or source
type GroupResult struct {
	Name      string                `json:"name"`
	Sets      int                   `json:"sets"`
	Questions int                   `json:"questions"`
	Statuses  map[report.Status]int `json:"statuses"`
	FirstSeen time.Time             `json:"first_seen"`
	LastSeen  time.Time             `json:"last_seen"`
}

// Execute parses and runs a query
func (e *Executor) Execute(ctx context.Context, query string) (*Result, error) {
	q, err := NewParser().Parse(query)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return e.Run(ctx, q)
}

// Run executes an already parsed query
func (e *Executor) Run(ctx context.Context, q *Query) (*Result, error) {
	start := time.Now()

	summaries, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sets: %w", err)
	}

	var rows []row
	switch q.Type {
	case QuerySets:
		rows = make([]row, 0, len(summaries))
		for i := range summaries {
			rows = append(rows, summaryRow{summaries[i]})
		}
	case QueryProviders:
		rows = groupBy(summaries, func(s storage.Summary) string { return s.Provider })
	case QuerySources:
		rows = groupBy(summaries, func(s storage.Summary) string { return s.Source })
	default:
		return nil, fmt.Errorf("unsupported query type: %s", q.Type)
	}

	var matched []row
	for _, r := range rows {
		ok, err := matchesFilters(r, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, r)
		}
	}

	if q.OrderBy != "" {
		if err := sortRows(matched, q.OrderBy, q.Descending); err != nil {
			return nil, err
		}
	}

	total := len(matched)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	items := make([]interface{}, len(matched))
	for i, r := range matched {
		items[i] = r.item()
	}

	return &Result{
		Type:    q.Type,
		Count:   len(items),
		Total:   total,
		Items:   items,
		Elapsed: time.Since(start),
	}, nil
}

// row exposes named fields to filters and ordering
type row interface {
	field(name string) (interface{}, bool)
	item() interface{}
}

type summaryRow struct {
	s storage.Summary
}

func (r summaryRow) field(name string) (interface{}, bool) {
	switch name {
	case "id":
		return r.s.ID, true
	case "run_id":
		return r.s.RunID, true
	case "provider":
		return r.s.Provider, true
	case "source":
		if r.s.Source == "" {
			return nil, false
		}
		return r.s.Source, true
	case "questions":
		return float64(r.s.Questions), true
	case "status":
		return string(r.s.Status), true
	case "created_at":
		return r.s.CreatedAt, true
	}
	if key, ok := strings.CutPrefix(name, "metadata."); ok {
		if v, found := r.s.Metadata[key]; found {
			return v, true
		}
	}
	return nil, false
}

func (r summaryRow) item() interface{} { return r.s }

type groupRow struct {
	g *GroupResult
}

func (r groupRow) field(name string) (interface{}, bool) {
	switch name {
	case "name", "provider", "source":
		return r.g.Name, true
	case "sets":
		return float64(r.g.Sets), true
	case "questions":
		return float64(r.g.Questions), true
	case "first_seen":
		return r.g.FirstSeen, true
	case "last_seen":
		return r.g.LastSeen, true
	}
	if status, ok := strings.CutPrefix(name, "statuses."); ok {
		return float64(r.g.Statuses[report.Status(status)]), true
	}
	return nil, false
}

func (r groupRow) item() interface{} { return *r.g }

// groupBy aggregates summaries by key in order of first appearance
func groupBy(summaries []storage.Summary, key func(storage.Summary) string) []row {
	groups := make(map[string]*GroupResult)
	var rows []row
	for _, s := range summaries {
		name := key(s)
		g, ok := groups[name]
		if !ok {
			g = &GroupResult{
				Name:      name,
				Statuses:  make(map[report.Status]int),
				FirstSeen: s.CreatedAt,
				LastSeen:  s.CreatedAt,
			}
			groups[name] = g
			rows = append(rows, groupRow{g})
		}
		g.Sets++
		g.Questions += s.Questions
		g.Statuses[s.Status]++
		if s.CreatedAt.Before(g.FirstSeen) {
			g.FirstSeen = s.CreatedAt
		}
		if s.CreatedAt.After(g.LastSeen) {
			g.LastSeen = s.CreatedAt
		}
	}
	return rows
}

func matchesFilters(r row, filters []Filter) (bool, error) {
	for _, filter := range filters {
		value, exists := r.field(filter.Field)

		switch filter.Operator {
		case OpExists:
			if !exists {
				return false, nil
			}
			continue
		case OpNotExists:
			if exists {
				return false, nil
			}
			continue
		}
		if !exists {
			if filter.Operator != OpNotEquals {
				return false, nil
			}
			continue
		}

		if filter.Operator == OpContains {
			str, ok1 := value.(string)
			want, ok2 := filter.Value.(string)
			if !ok1 || !ok2 {
				return false, fmt.Errorf("operator ~ needs text, field %s", filter.Field)
			}
			if !strings.Contains(strings.ToLower(str), strings.ToLower(want)) {
				return false, nil
			}
			continue
		}

		cmp, err := compare(value, filter.Value)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", filter.Field, err)
		}

		var ok bool
		switch filter.Operator {
		case OpEquals:
			ok = cmp == 0
		case OpNotEquals:
			ok = cmp != 0
		case OpGreater:
			ok = cmp > 0
		case OpGreaterEqual:
			ok = cmp >= 0
		case OpLess:
			ok = cmp < 0
		case OpLessEqual:
			ok = cmp <= 0
		default:
			return false, fmt.Errorf("unknown operator: %s", filter.Operator)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// compare orders a field value against a query value. Strings compare case-insensitively.
func compare(value, want interface{}) (int, error) {
	switch v := value.(type) {
	case string:
		w, ok := want.(string)
		if !ok {
			w = fmt.Sprint(want)
		}
		return strings.Compare(strings.ToLower(v), strings.ToLower(w)), nil
	case float64:
		w, ok := want.(float64)
		if !ok {
			return 0, fmt.Errorf("expected a number, got %v", want)
		}
		switch {
		case v < w:
			return -1, nil
		case v > w:
			return 1, nil
		}
		return 0, nil
	case time.Time:
		w, ok := want.(time.Time)
		if !ok {
			return 0, fmt.Errorf("expected a date, got %v", want)
		}
		return v.Compare(w), nil
	}
	return 0, fmt.Errorf("cannot compare %T", value)
}

func sortRows(rows []row, field string, desc bool) error {
	for _, r := range rows {
		if _, ok := r.field(field); !ok {
			if _, isSummary := r.(summaryRow); isSummary && (field == "source" || strings.HasPrefix(field, "metadata.")) {
				continue
			}
			return fmt.Errorf("unknown order field: %s", field)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := rows[i].field(field)
		b, _ := rows[j].field(field)
		if a == nil || b == nil {
			// missing values sort last
			return a != nil
		}
		cmp, _ := compare(a, b)
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return nil
}
