package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/pipeline"
	"github.com/Caia-Tech/caia-quizcheck/internal/report"
	"github.com/Caia-Tech/caia-quizcheck/pkg/config"
	"github.com/Caia-Tech/caia-quizcheck/pkg/question"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testRecord(prompt string) *Record {
	set := &question.QuestionSet{Questions: []question.Question{
		{Kind: question.KindNumerical, PromptText: prompt, DeclaredAnswer: "4", Tolerance: 0.1},
	}}
	return &Record{
		Summary: Summary{RunID: "run-1", Provider: "auto", Source: "test"},
		Text:    "```json\n{}\n```",
		Set:     set,
		Report:  report.Build(set, nil, nil, nil),
	}
}

func TestStores(t *testing.T) {
	factories := []struct {
		name string
		new  func(t *testing.T) Store
	}{
		{"Memory", func(t *testing.T) Store { return NewMemoryStore(nil) }},
		{"Git", func(t *testing.T) Store {
			s, err := NewGitStore(filepath.Join(t.TempDir(), "sets-repo"), Author{}, NewSimpleMetricsCollector())
			require.NoError(t, err)
			return s
		}},
	}

	for _, f := range factories {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.new(t)
			require.NoError(t, store.Health(ctx))

			id, err := store.Save(ctx, testRecord("What is 2 + 2?"))
			require.NoError(t, err)
			assert.True(t, ValidID(id))

			rec, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, id, rec.ID)
			assert.Equal(t, "run-1", rec.RunID)
			assert.Equal(t, 1, rec.Questions)
			assert.Equal(t, report.StatusValid, rec.Status)
			assert.Equal(t, "What is 2 + 2?", rec.Set.Questions[0].PromptText)
			assert.Equal(t, "```json\n{}\n```", rec.Text)
			require.NotNil(t, rec.Report)
			assert.Equal(t, 1, rec.Report.Totals.Valid)

			time.Sleep(time.Millisecond)
			second, err := store.Save(ctx, testRecord("What is 3 + 3?"))
			require.NoError(t, err)

			summaries, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, summaries, 2)
			assert.Equal(t, second, summaries[0].ID, "newest first")

			_, err = store.Get(ctx, "missing")
			assert.True(t, errors.Is(err, ErrNotFound))

			_, err = store.Save(ctx, &Record{Set: &question.QuestionSet{}})
			assert.Error(t, err)

			dup := testRecord("dup")
			dup.ID = id
			_, err = store.Save(ctx, dup)
			assert.Error(t, err)

			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err = store.Save(cancelled, testRecord("late"))
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	rec := testRecord("original")
	id, err := store.Save(ctx, rec)
	require.NoError(t, err)
	assert.Empty(t, rec.ID, "caller record is not modified")

	rec.Set.Questions[0].PromptText = "changed"
	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Set.Questions[0].PromptText)

	got.Set.Questions[0].PromptText = "changed again"
	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Set.Questions[0].PromptText)
	assert.Equal(t, 1, store.Len())
}

func TestGitStoreLayoutAndCommits(t *testing.T) {
	ctx := context.Background()
	repoPath := filepath.Join(t.TempDir(), "repo")

	store, err := NewGitStore(repoPath, Author{Name: "Quiz Bot", Email: "bot@example.com"}, nil)
	require.NoError(t, err)

	rec := testRecord("layout")
	rec.CreatedAt = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rec.ID = "qs_layout"
	id, err := store.Save(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "qs_layout", id)

	dir := filepath.Join(repoPath, "sets", "2026", "03", "qs_layout")
	for _, name := range []string{"questions.json", "report.json", "source.txt", "metadata.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	repo, err := git.PlainOpen(repoPath)
	require.NoError(t, err)
	iter, err := repo.Log(&git.LogOptions{})
	require.NoError(t, err)
	var messages []string
	require.NoError(t, iter.ForEach(func(c *object.Commit) error {
		messages = append(messages, c.Message)
		assert.Equal(t, "Quiz Bot", c.Author.Name)
		return nil
	}))
	assert.Equal(t, []string{"Add question set qs_layout (1 questions)"}, messages)
	require.NoError(t, store.Health(ctx))

	// Reopening rebuilds the index from the working tree
	reopened, err := NewGitStore(repoPath, Author{}, nil)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "qs_layout")
	require.NoError(t, err)
	assert.Equal(t, "layout", got.Set.Questions[0].PromptText)
	assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
}

func TestGitStoreRejectsUnsafeIDs(t *testing.T) {
	ctx := context.Background()
	store, err := NewGitStore(filepath.Join(t.TempDir(), "repo"), Author{}, nil)
	require.NoError(t, err)

	for _, id := range []string{"../etc", "a/b", "", "with space"} {
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}

	rec := testRecord("unsafe")
	rec.ID = "../escape"
	_, err = store.Save(ctx, rec)
	assert.Error(t, err)
}

func TestNewRecord(t *testing.T) {
	p := pipeline.NewDefault()
	raw := `{"questions":[{"type":"numerical","question_text":"2+2?","correct_answer":"4"}]}`
	result, err := p.Process(context.Background(), pipeline.Submission{Text: raw, Source: "unit"})
	require.NoError(t, err)
	require.True(t, result.Success, "diagnostics: %v", result.Diagnostics)

	rec, err := NewRecord(result, raw)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, rec.RunID)
	assert.Equal(t, "unit", rec.Source)
	assert.Equal(t, raw, rec.Text)

	failed, err := p.Process(context.Background(), pipeline.Submission{Text: "no structure here"})
	require.NoError(t, err)
	_, err = NewRecord(failed, "no structure here")
	assert.Error(t, err)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Save(ctx context.Context, rec *Record) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Get(ctx context.Context, id string) (*Record, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*Record)
	return rec, args.Error(1)
}

func (m *mockStore) List(ctx context.Context) ([]Summary, error) {
	args := m.Called(ctx)
	summaries, _ := args.Get(0).([]Summary)
	return summaries, args.Error(1)
}

func (m *mockStore) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestHybridStoreFallback(t *testing.T) {
	ctx := context.Background()
	primary := &mockStore{}
	primary.On("Save", mock.Anything, mock.Anything).Return("", errors.New("disk full"))
	primary.On("Get", mock.Anything, mock.Anything).Return(nil, ErrNotFound)
	primary.On("List", mock.Anything).Return([]Summary{}, nil)
	primary.On("Health", mock.Anything).Return(errors.New("disk full"))

	metrics := NewSimpleMetricsCollector()
	fallback := NewMemoryStore(nil)
	store, err := NewHybridStore(primary, fallback, &HybridConfig{EnableFallback: true, OperationTimeout: time.Second}, metrics)
	require.NoError(t, err)

	id, err := store.Save(ctx, testRecord("fallback"))
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.Len())

	rec, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "fallback", rec.Set.Questions[0].PromptText)

	summaries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)

	assert.NoError(t, store.Health(ctx))

	summary := metrics.GetMetricsSummary()
	require.Contains(t, summary.ByBackend, "hybrid_fallback_success")
	assert.Equal(t, 2, summary.ByBackend["hybrid_fallback_success"]["save"].Count+summary.ByBackend["hybrid_fallback_success"]["get"].Count)
	primary.AssertExpectations(t)
}

func TestHybridStoreWithoutFallback(t *testing.T) {
	primary := &mockStore{}
	primary.On("Save", mock.Anything, mock.Anything).Return("", errors.New("disk full"))

	store, err := NewHybridStore(primary, nil, &HybridConfig{}, nil)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), testRecord("x"))
	assert.EqualError(t, err, "disk full")

	_, err = NewHybridStore(primary, nil, DefaultHybridConfig(), nil)
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	cfg.RepoPath = filepath.Join(t.TempDir(), "repo")

	store, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &HybridStore{}, store)

	cfg.Fallback = false
	store, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &GitStore{}, store)

	cfg.Backend = "memory"
	store, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	cfg.Backend = "s3"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestMetricsCollector(t *testing.T) {
	c := NewSimpleMetricsCollector()
	c.RecordMetric(StorageMetrics{OperationType: "save", Backend: "git", Duration: 10, Success: true})
	c.RecordMetric(StorageMetrics{OperationType: "save", Backend: "git", Duration: 30, Success: false, Error: errors.New("boom")})
	c.RecordMetric(StorageMetrics{OperationType: "get", Backend: "memory", Duration: 5, Success: true})

	summary := c.GetMetricsSummary()
	assert.Equal(t, 3, summary.TotalOperations)

	save := summary.ByBackend["git"]["save"]
	require.NotNil(t, save)
	assert.Equal(t, 2, save.Count)
	assert.Equal(t, int64(10), save.MinDuration)
	assert.Equal(t, int64(30), save.MaxDuration)
	assert.Equal(t, int64(20), save.AvgDuration)
	assert.Equal(t, 50.0, save.GetSuccessRate())

	assert.Len(t, c.GetMetrics(), 3)
	c.ClearMetrics()
	assert.Empty(t, c.GetMetrics())
}

func TestSetIDFromPath(t *testing.T) {
	assert.Equal(t, "qs_1", setIDFromPath("sets/2026/03/qs_1/metadata.json"))
	assert.Equal(t, "", setIDFromPath("sets/2026/03/qs_1/questions.json"))
}
