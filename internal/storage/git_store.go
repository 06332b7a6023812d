package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/report"
	"github.com/Caia-Tech/caia-quizcheck/pkg/logging"
	"github.com/Caia-Tech/caia-quizcheck/pkg/question"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog/log"
)

const (
	questionsFile = "questions.json"
	reportFile    = "report.json"
	sourceFile    = "source.txt"
	metadataFile  = "metadata.json"
)

// Author signs the commits of a GitStore
type Author struct {
	Name  string
	Email string
}

// GitStore keeps accepted question sets in a git repository, one commit per set
type GitStore struct {
	mu       sync.Mutex
	repo     *git.Repository
	repoPath string
	author   Author
	index    *SetIndex
	metrics  MetricsCollector
}

// NewGitStore opens the repository at repoPath, initializing it when missing
func NewGitStore(repoPath string, author Author, metrics MetricsCollector) (*GitStore, error) {
	repo, err := git.PlainOpen(repoPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(repoPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", repoPath, err)
		}
		repo, err = git.PlainInit(repoPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repository: %w", err)
		}
		log.Info().Str("path", repoPath).Msg("Initialized question set repository")
	} else if err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}

	if author.Name == "" {
		author.Name = "quizcheck"
	}
	if author.Email == "" {
		author.Email = "quizcheck@localhost"
	}

	g := &GitStore{
		repo:     repo,
		repoPath: repoPath,
		author:   author,
		index:    NewSetIndex(),
		metrics:  metrics,
	}
	if err := g.rebuildIndex(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GitStore) Save(ctx context.Context, rec *Record) (string, error) {
	start := time.Now()
	id, err := g.save(ctx, rec)

	g.recordMetric("save", start, err)
	return id, err
}

func (g *GitStore) Get(ctx context.Context, id string) (*Record, error) {
	start := time.Now()
	rec, err := g.get(ctx, id)

	g.recordMetric("get", start, err)
	return rec, err
}

func (g *GitStore) List(ctx context.Context) ([]Summary, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		g.recordMetric("list", start, err)
		return nil, err
	}
	summaries := g.index.Summaries()

	g.recordMetric("list", start, nil)
	return summaries, nil
}

func (g *GitStore) Health(ctx context.Context) error {
	start := time.Now()
	err := ctx.Err()
	if err == nil {
		_, err = g.repo.Head()
		// A fresh repository has no HEAD until the first set is committed
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			err = nil
		}
	}

	g.recordMetric("health", start, err)
	return err
}

func (g *GitStore) save(ctx context.Context, rec *Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("record validation failed: %w", err)
	}
	rec = rec.clone()
	rec.prepare()

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.index.Get(rec.ID); exists {
		return "", fmt.Errorf("question set %s already exists", rec.ID)
	}

	w, err := g.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}

	// Create set directory
	dir := setDir(rec)
	absDir := filepath.Join(g.repoPath, dir)
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", absDir, err)
	}

	if err := writeJSON(filepath.Join(absDir, questionsFile), rec.Set); err != nil {
		return "", err
	}
	if rec.Report != nil {
		if err := writeJSON(filepath.Join(absDir, reportFile), rec.Report); err != nil {
			return "", err
		}
	}
	if rec.Text != "" {
		if err := os.WriteFile(filepath.Join(absDir, sourceFile), []byte(rec.Text), 0644); err != nil {
			return "", fmt.Errorf("failed to write source text: %w", err)
		}
	}
	if err := writeJSON(filepath.Join(absDir, metadataFile), rec.Summary); err != nil {
		return "", err
	}

	// Add files to git
	if _, err := w.Add(filepath.ToSlash(dir)); err != nil {
		return "", fmt.Errorf("failed to add files: %w", err)
	}

	commit, err := w.Commit(fmt.Sprintf("Add question set %s (%d questions)", rec.ID, rec.Questions), &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.author.Name,
			Email: g.author.Email,
			When:  rec.CreatedAt,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	g.index.Add(dir, rec.Summary)

	logger := logging.GetStorageLogger("save", "git")
	logger.Info().
		Str("set_id", rec.ID).
		Str("commit", commit.String()).
		Int("questions", rec.Questions).
		Msg("Question set committed")
	return rec.ID, nil
}

func (g *GitStore) get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	dir, ok := g.index.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	absDir := filepath.Join(g.repoPath, dir)

	rec := &Record{Set: &question.QuestionSet{}}
	if err := readJSON(filepath.Join(absDir, metadataFile), &rec.Summary); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(absDir, questionsFile), rec.Set); err != nil {
		return nil, err
	}

	var rpt report.ValidationReport
	switch err := readJSON(filepath.Join(absDir, reportFile), &rpt); {
	case err == nil:
		rec.Report = &rpt
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	text, err := os.ReadFile(filepath.Join(absDir, sourceFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read source text: %w", err)
	}
	rec.Text = string(text)
	return rec, nil
}

// rebuildIndex scans the working tree for stored sets
func (g *GitStore) rebuildIndex() error {
	matches, err := filepath.Glob(filepath.Join(g.repoPath, "sets", "*", "*", "*", metadataFile))
	if err != nil {
		return fmt.Errorf("failed to scan repository: %w", err)
	}

	for _, match := range matches {
		var s Summary
		if err := readJSON(match, &s); err != nil {
			log.Warn().Err(err).Str("path", match).Msg("Skipping unreadable question set")
			continue
		}
		if s.ID != setIDFromPath(match) {
			log.Warn().Str("path", match).Str("set_id", s.ID).Msg("Skipping question set stored under another ID")
			continue
		}
		dir, err := filepath.Rel(g.repoPath, filepath.Dir(match))
		if err != nil {
			continue
		}
		g.index.Add(dir, s)
	}

	log.Debug().Int("sets", g.index.Size()).Str("path", g.repoPath).Msg("Question set index rebuilt")
	return nil
}

func (g *GitStore) recordMetric(operation string, start time.Time, err error) {
	if g.metrics != nil {
		g.metrics.RecordMetric(StorageMetrics{
			OperationType: operation,
			Duration:      time.Since(start).Nanoseconds(),
			Success:       err == nil,
			Backend:       "git",
			Error:         err,
		})
	}
}

// setDir returns sets/{YYYY}/{MM}/{id}
func setDir(rec *Record) string {
	return filepath.Join("sets", rec.CreatedAt.Format("2006"), rec.CreatedAt.Format("01"), rec.ID)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
