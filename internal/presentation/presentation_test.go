package presentation_test

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/consistency"
	"github.com/Caia-Tech/caia-quizcheck/internal/notation"
	"github.com/Caia-Tech/caia-quizcheck/internal/presentation"
	"github.com/Caia-Tech/caia-quizcheck/internal/report"
	"github.com/Caia-Tech/caia-quizcheck/internal/storage"
	"github.com/Caia-Tech/caia-quizcheck/internal/validation"
	"github.com/Caia-Tech/caia-quizcheck/pkg/question"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// warningRecord has one clean question, one with a structural warning and one with a fix and a contradiction
func warningRecord() *storage.Record {
	set := &question.QuestionSet{Questions: []question.Question{
		{Kind: question.KindMultipleChoice, PromptText: "Unit of resistance?", Choices: []string{"volt", "ohm", "ampere", "watt"}, DeclaredAnswer: "B"},
		{Kind: question.KindTrueFalse, PromptText: "Current is measured in amperes.", DeclaredAnswer: "true"},
		{Kind: question.KindNumerical, Title: "Ohm", PromptText: `Find \(I\) in mA`, DeclaredAnswer: "4.0", FeedbackCorrect: "I = 5 mA here"},
	}}
	issues := []validation.Issue{
		{QuestionIndex: 1, Field: "feedback_correct", Message: "question 2: feedback_correct is empty", Severity: validation.SeverityWarning},
	}
	corrections := [][]notation.Correction{nil, nil, {
		{RuleID: "inline_math_paren", Description: "convert \\( \\) to $", Count: 1, Field: "prompt_text"},
	}}
	contradictions := []consistency.Contradiction{
		{QuestionIndex: 2, DeclaredValue: 4, FoundValue: 5, PercentDifference: 25, Severity: consistency.SeverityMajor, Pattern: "equals", Context: "I = 5 mA here"},
	}
	return &storage.Record{
		Summary: storage.Summary{ID: "qs_warning", RunID: "run-1", Provider: "openai", Source: "week1.txt", CreatedAt: base},
		Set:     set,
		Report:  report.Build(set, issues, corrections, contradictions),
	}
}

// errorRecord declares an answer that matches no choice
func errorRecord() *storage.Record {
	set := &question.QuestionSet{Questions: []question.Question{
		{Kind: question.KindMultipleChoice, PromptText: "Pick one", Choices: []string{"a", "b", "c", "d"}, DeclaredAnswer: "Z"},
	}}
	issues := []validation.Issue{
		{QuestionIndex: 0, Field: "correct_answer", Message: "question 1: correct_answer does not match any choice", Severity: validation.SeverityError},
	}
	return &storage.Record{
		Summary: storage.Summary{ID: "qs_error", RunID: "run-2", Provider: "anthropic", CreatedAt: base.Add(time.Hour)},
		Set:     set,
		Report:  report.Build(set, issues, nil, nil),
	}
}

func newTestAPI(t *testing.T) (http.Handler, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore(nil)
	for _, rec := range []*storage.Record{warningRecord(), errorRecord()} {
		_, err := store.Save(context.Background(), rec)
		require.NoError(t, err)
	}
	api := presentation.NewAPI(presentation.NewRenderer(nil), store, nil)
	return api.Handler(), store
}

func get(t *testing.T, h http.Handler, path string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestRenderer(t *testing.T) {
	renderer := presentation.NewRenderer(nil)

	t.Run("JSON", func(t *testing.T) {
		rendered, err := renderer.RenderReport(warningRecord(), nil)
		require.NoError(t, err)
		assert.Equal(t, "qs_warning", rendered.ID)
		assert.Equal(t, "Question set qs_warning (week1.txt)", rendered.Title)
		assert.Equal(t, report.StatusWarning, rendered.Status)
		assert.Equal(t, presentation.FormatJSON, rendered.Format)
		require.NotNil(t, rendered.Report)
		assert.Empty(t, rendered.Content)
		assert.Contains(t, rendered.Summary, "3 questions checked")
	})

	t.Run("Text", func(t *testing.T) {
		rendered, err := renderer.RenderReport(warningRecord(), &presentation.RenderOptions{Format: presentation.FormatText})
		require.NoError(t, err)
		assert.Nil(t, rendered.Report)

		content := rendered.Content
		assert.Contains(t, content, "Provider: openai  Status: warning  Questions: 3")
		assert.Contains(t, content, "question 1 [valid] multiple_choice")
		assert.Contains(t, content, "! feedback_correct: question 2: feedback_correct is empty")
		assert.Contains(t, content, "~ inline_math_paren x1 in prompt_text")
		assert.Contains(t, content, "≠ declared 4, feedback shows 5 (25.0%, major)")
		assert.Contains(t, content, `near "I = 5 mA here"`)
	})

	t.Run("TextOnlyProblems", func(t *testing.T) {
		rendered, err := renderer.RenderReport(warningRecord(), &presentation.RenderOptions{Format: presentation.FormatText, OnlyProblems: true})
		require.NoError(t, err)
		assert.NotContains(t, rendered.Content, "question 1 [valid]")
		assert.Contains(t, rendered.Content, "question 2 [warning]")
	})

	t.Run("TruncatesContext", func(t *testing.T) {
		rendered, err := renderer.RenderReport(warningRecord(), &presentation.RenderOptions{Format: presentation.FormatText, MaxContextLength: 5})
		require.NoError(t, err)
		assert.Contains(t, rendered.Content, `near "I = 5..."`)
	})

	t.Run("Markdown", func(t *testing.T) {
		rendered, err := renderer.RenderReport(errorRecord(), &presentation.RenderOptions{Format: presentation.FormatMarkdown})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(rendered.Content, "# Question set qs_error\n"))
		assert.Contains(t, rendered.Content, "## Question 1 (multiple_choice): error")
		assert.Contains(t, rendered.Content, "- **error** `correct_answer`")
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := renderer.RenderReport(nil, nil)
		assert.Error(t, err)

		rec := warningRecord()
		rec.Report = nil
		_, err = renderer.RenderReport(rec, nil)
		assert.Error(t, err)

		_, err = renderer.RenderReport(warningRecord(), &presentation.RenderOptions{Format: "pdf"})
		assert.Error(t, err)
	})
}

func TestRenderCollection(t *testing.T) {
	renderer := presentation.NewRenderer(&presentation.RendererConfig{DefaultPageSize: 2, MaxPageSize: 3})

	summaries := make([]storage.Summary, 0, 5)
	for i := 0; i < 5; i++ {
		status := report.StatusValid
		provider := "openai"
		if i%2 == 1 {
			status = report.StatusError
			provider = "anthropic"
		}
		summaries = append(summaries, storage.Summary{
			ID:        fmt.Sprintf("qs_%d", i),
			Provider:  provider,
			Questions: i + 1,
			Status:    status,
			CreatedAt: base.Add(-time.Duration(i) * time.Hour),
		})
	}

	tests := []struct {
		name     string
		options  *presentation.CollectionOptions
		ids      []string
		total    int
		pageSize int
	}{
		{"DefaultPage", nil, []string{"qs_0", "qs_1"}, 5, 2},
		{"SecondPage", &presentation.CollectionOptions{PageSize: 2, PageNumber: 2}, []string{"qs_2", "qs_3"}, 5, 2},
		{"PastEnd", &presentation.CollectionOptions{PageSize: 2, PageNumber: 9}, []string{}, 5, 2},
		{"ClampedPageSize", &presentation.CollectionOptions{PageSize: 50}, []string{"qs_0", "qs_1", "qs_2"}, 5, 3},
		{"StatusFilter", &presentation.CollectionOptions{Status: report.StatusError}, []string{"qs_1", "qs_3"}, 2, 2},
		{"ProviderFilter", &presentation.CollectionOptions{Provider: "OpenAI", PageSize: 3}, []string{"qs_0", "qs_2", "qs_4"}, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collection := renderer.RenderCollection(summaries, tt.options)
			ids := make([]string, 0, len(collection.Sets))
			for _, s := range collection.Sets {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.ids, ids)
			assert.Equal(t, tt.total, collection.TotalCount)
			assert.Equal(t, tt.pageSize, collection.PageSize)
			assert.Nil(t, collection.Statistics)
		})
	}

	t.Run("Statistics", func(t *testing.T) {
		collection := renderer.RenderCollection(summaries, &presentation.CollectionOptions{ShowStatistics: true})
		stats := collection.Statistics
		require.NotNil(t, stats)
		assert.Equal(t, 5, stats.TotalSets)
		assert.Equal(t, 15, stats.TotalQuestions)
		assert.InDelta(t, 3.0, stats.AverageQuestions, 1e-9)
		assert.Equal(t, 3, stats.StatusDistribution[report.StatusValid])
		assert.Equal(t, 2, stats.ProviderDistribution["anthropic"])
		require.NotNil(t, stats.DateRange)
		assert.Equal(t, base.Add(-4*time.Hour), stats.DateRange.Start)
		assert.Equal(t, base, stats.DateRange.End)
	})
}

func TestListSets(t *testing.T) {
	h, _ := newTestAPI(t)

	tests := []struct {
		name   string
		path   string
		status int
		ids    []string
	}{
		{"All", "/api/v1/sets", http.StatusOK, []string{"qs_error", "qs_warning"}},
		{"ByStatus", "/api/v1/sets?status=warning", http.StatusOK, []string{"qs_warning"}},
		{"ByProvider", "/api/v1/sets?provider=anthropic", http.StatusOK, []string{"qs_error"}},
		{"Paged", "/api/v1/sets?page_size=1&page=2", http.StatusOK, []string{"qs_warning"}},
		{"BadStatus", "/api/v1/sets?status=broken", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, h, tt.path)
			require.Equal(t, tt.status, resp.StatusCode, body)
			if tt.status != http.StatusOK {
				assert.Contains(t, body, `"error"`)
				return
			}

			var collection presentation.RenderedCollection
			require.NoError(t, json.Unmarshal([]byte(body), &collection))
			ids := make([]string, 0, len(collection.Sets))
			for _, s := range collection.Sets {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}

	resp, body := get(t, h, "/api/v1/sets?statistics=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var collection presentation.RenderedCollection
	require.NoError(t, json.Unmarshal([]byte(body), &collection))
	require.NotNil(t, collection.Statistics)
	assert.Equal(t, 4, collection.Statistics.TotalQuestions)
}

func TestQuerySets(t *testing.T) {
	h, _ := newTestAPI(t)

	query := func(q string) (*http.Response, string) {
		return get(t, h, "/api/v1/sets/query?q="+url.QueryEscape(q))
	}

	resp, body := query(`SELECT FROM sets WHERE status != valid ORDER BY created_at DESC`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var result struct {
		Type  string            `json:"type"`
		Count int               `json:"count"`
		Items []storage.Summary `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &result))
	assert.Equal(t, "sets", result.Type)
	require.Equal(t, 2, result.Count)
	assert.Equal(t, "qs_error", result.Items[0].ID)
	assert.Equal(t, "qs_warning", result.Items[1].ID)

	resp, body = query(`SELECT FROM providers WHERE questions > 2`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"name":"openai"`)
	assert.NotContains(t, body, `"name":"anthropic"`)

	resp, body = query(`SELECT FROM documents`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Invalid query")

	resp, body = query(`SELECT FROM sets ORDER BY color`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "unknown order field")

	resp, _ = get(t, h, "/api/v1/sets/query")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSet(t *testing.T) {
	h, _ := newTestAPI(t)

	resp, body := get(t, h, "/api/v1/sets/qs_warning")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var payload struct {
		Summary storage.Summary       `json:"summary"`
		Set     question.QuestionSet `json:"set"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, "openai", payload.Summary.Provider)
	assert.Equal(t, report.StatusWarning, payload.Summary.Status)
	assert.Equal(t, 3, payload.Set.Len())

	resp, body = get(t, h, "/api/v1/sets/qs_missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "question set not found")
}

func TestGetReport(t *testing.T) {
	h, _ := newTestAPI(t)

	tests := []struct {
		name        string
		path        string
		status      int
		contentType string
		contains    string
	}{
		{"DefaultJSON", "/api/v1/sets/qs_warning/report", http.StatusOK, "application/json", `"corrections_by_rule"`},
		{"Text", "/api/v1/sets/qs_warning/report?format=text", http.StatusOK, "text/plain; charset=utf-8", "question 3 (Ohm) [warning] numerical"},
		{"Markdown", "/api/v1/sets/qs_error/report?format=md", http.StatusOK, "text/markdown; charset=utf-8", "## Question 1"},
		{"BadFormat", "/api/v1/sets/qs_warning/report?format=pdf", http.StatusBadRequest, "application/json", "Invalid report format"},
		{"Missing", "/api/v1/sets/qs_missing/report", http.StatusNotFound, "application/json", "Question set not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, h, tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			assert.Contains(t, body, tt.contains)
		})
	}
}

func TestExportSet(t *testing.T) {
	h, _ := newTestAPI(t)

	resp, body := get(t, h, "/api/v1/sets/qs_warning/export")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="qs_warning.xml"`, resp.Header.Get("Content-Disposition"))

	var quiz struct {
		Questions []struct {
			Type string `xml:"type,attr"`
		} `xml:"question"`
	}
	require.NoError(t, xml.Unmarshal([]byte(body), &quiz))
	require.Len(t, quiz.Questions, 3)
	assert.Equal(t, "numerical", quiz.Questions[2].Type)

	resp, body = get(t, h, "/api/v1/sets/qs_warning/export?format=json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="qs_warning.json"`, resp.Header.Get("Content-Disposition"))
	var set question.QuestionSet
	require.NoError(t, json.Unmarshal([]byte(body), &set))
	assert.Equal(t, 3, set.Len())

	resp, _ = get(t, h, "/api/v1/sets/qs_warning/export?format=gift")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = get(t, h, "/api/v1/sets/qs_error/export")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "matches no choice")
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) Get(ctx context.Context, id string) (*storage.Record, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*storage.Record)
	return rec, args.Error(1)
}

func (m *mockReader) List(ctx context.Context) ([]storage.Summary, error) {
	args := m.Called(ctx)
	summaries, _ := args.Get(0).([]storage.Summary)
	return summaries, args.Error(1)
}

func (m *mockReader) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestHealthCheck(t *testing.T) {
	h, _ := newTestAPI(t)
	resp, body := get(t, h, "/api/v1/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"healthy"`)

	reader := new(mockReader)
	reader.On("Health", mock.Anything).Return(errors.New("repository unavailable"))
	reader.On("List", mock.Anything).Return(nil, errors.New("repository unavailable"))
	reader.On("Get", mock.Anything, "qs_1").Return(nil, errors.New("disk failure"))

	degraded := presentation.NewAPI(nil, reader, nil).Handler()

	resp, body = get(t, degraded, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, `"status":"degraded"`)
	assert.Contains(t, body, "repository unavailable")

	resp, _ = get(t, degraded, "/api/v1/sets")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, body = get(t, degraded, "/api/v1/sets/qs_1")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "disk failure")

	reader.AssertExpectations(t)
}

func TestMiddleware(t *testing.T) {
	h, _ := newTestAPI(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/v1/sets", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	noCORS := presentation.NewAPI(nil, storage.NewMemoryStore(nil), &presentation.APIConfig{BasePath: "/v2"}).Handler()
	resp, _ := get(t, noCORS, "/v2/sets")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = get(t, noCORS, "/api/v1/sets")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected presentation.OutputFormat
		ok       bool
	}{
		{"", presentation.FormatJSON, true},
		{"json", presentation.FormatJSON, true},
		{"plain", presentation.FormatText, true},
		{"md", presentation.FormatMarkdown, true},
		{"html", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f, ok := presentation.ParseOutputFormat(tt.input, presentation.FormatJSON)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, f)
		})
	}
}
