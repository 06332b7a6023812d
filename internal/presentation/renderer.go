package presentation

import (
	"fmt"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/report"
	"github.com/Caia-Tech/caia-quizcheck/internal/storage"
	"github.com/Caia-Tech/caia-quizcheck/internal/validation"
	"github.com/Caia-Tech/caia-quizcheck/pkg/export"
	"github.com/rs/zerolog/log"
)

// Renderer formats stored sets and their validation reports for display
type Renderer struct {
	config *RendererConfig
}

// RendererConfig configures the renderer
type RendererConfig struct {
	DefaultFormat    OutputFormat `json:"default_format"`
	DefaultPageSize  int          `json:"default_page_size"`
	MaxPageSize      int          `json:"max_page_size"`
	MaxContextLength int          `json:"max_context_length"`
}

// DefaultRendererConfig returns the settings used by the presentation API
func DefaultRendererConfig() *RendererConfig {
	return &RendererConfig{
		DefaultFormat:    FormatJSON,
		DefaultPageSize:  20,
		MaxPageSize:      100,
		MaxContextLength: 80,
	}
}

// NewRenderer creates a new report renderer
func NewRenderer(config *RendererConfig) *Renderer {
	if config == nil {
		config = DefaultRendererConfig()
	}
	return &Renderer{config: config}
}

// RenderReport renders the validation report of a stored set
func (r *Renderer) RenderReport(rec *storage.Record, options *RenderOptions) (*RenderedReport, error) {
	if rec == nil {
		return nil, fmt.Errorf("record is nil")
	}
	if rec.Report == nil {
		return nil, fmt.Errorf("set %s has no validation report", rec.ID)
	}

	if options == nil {
		options = &RenderOptions{
			Format:           r.config.DefaultFormat,
			MaxContextLength: r.config.MaxContextLength,
		}
	}
	if options.Format == "" {
		options.Format = r.config.DefaultFormat
	}

	log.Debug().
		Str("set_id", rec.ID).
		Str("format", string(options.Format)).
		Msg("Rendering report")

	rendered := &RenderedReport{
		ID:         rec.ID,
		Title:      title(rec),
		Status:     rec.Report.Status,
		Summary:    rec.Report.Summary(),
		Format:     options.Format,
		RenderTime: time.Now(),
	}

	switch options.Format {
	case FormatJSON:
		rendered.Report = rec.Report
	case FormatText:
		rendered.Content = r.renderText(rec, options)
	case FormatMarkdown:
		rendered.Content = r.renderMarkdown(rec, options)
	default:
		return nil, fmt.Errorf("unsupported output format %q", options.Format)
	}
	return rendered, nil
}

// RenderCollection filters and paginates set summaries. summaries are expected newest first.
func (r *Renderer) RenderCollection(summaries []storage.Summary, options *CollectionOptions) *RenderedCollection {
	if options == nil {
		options = &CollectionOptions{}
	}
	if options.PageSize <= 0 {
		options.PageSize = r.config.DefaultPageSize
	}
	if r.config.MaxPageSize > 0 && options.PageSize > r.config.MaxPageSize {
		options.PageSize = r.config.MaxPageSize
	}
	if options.PageNumber <= 0 {
		options.PageNumber = 1
	}

	matched := make([]storage.Summary, 0, len(summaries))
	for _, s := range summaries {
		if options.Status != "" && s.Status != options.Status {
			continue
		}
		if options.Provider != "" && !strings.EqualFold(s.Provider, options.Provider) {
			continue
		}
		matched = append(matched, s)
	}

	totalCount := len(matched)
	startIdx := (options.PageNumber - 1) * options.PageSize
	endIdx := startIdx + options.PageSize
	if endIdx > totalCount {
		endIdx = totalCount
	}

	page := []storage.Summary{}
	if startIdx < totalCount {
		page = matched[startIdx:endIdx]
	}

	collection := &RenderedCollection{
		Sets:       page,
		TotalCount: totalCount,
		PageSize:   options.PageSize,
		PageNumber: options.PageNumber,
		RenderTime: time.Now(),
	}
	if options.ShowStatistics {
		collection.Statistics = r.calculateStatistics(matched)
	}
	return collection
}

// ExportSet writes the question set of a record in an import format
func (r *Renderer) ExportSet(rec *storage.Record, format export.Format) ([]byte, error) {
	if rec == nil || rec.Set == nil {
		return nil, fmt.Errorf("record has no question set")
	}
	return export.Write(rec.Set, format)
}

func (r *Renderer) renderText(rec *storage.Record, options *RenderOptions) string {
	var b strings.Builder
	rep := rec.Report

	fmt.Fprintf(&b, "%s\n", title(rec))
	fmt.Fprintf(&b, "Provider: %s  Status: %s  Questions: %d\n", rec.Provider, rep.Status, rep.Totals.Questions)
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Stored: %s\n", rec.CreatedAt.Format(time.RFC3339))
	}
	b.WriteString("\n")
	b.WriteString(rep.Summary())
	b.WriteString("\n")

	for _, qr := range rep.Questions {
		if options.OnlyProblems && qr.Status == report.StatusValid {
			continue
		}
		fmt.Fprintf(&b, "\n%s [%s] %s\n", qr.Label, qr.Status, qr.Kind)
		for _, issue := range qr.Issues {
			fmt.Fprintf(&b, "  %s %s: %s\n", issueMarker(issue.Severity), issue.Field, issue.Message)
		}
		for _, c := range qr.Corrections {
			fmt.Fprintf(&b, "  ~ %s x%d", c.RuleID, c.Count)
			if c.Field != "" {
				fmt.Fprintf(&b, " in %s", c.Field)
			}
			fmt.Fprintf(&b, ": %s\n", c.Description)
		}
		for _, c := range qr.Contradictions {
			fmt.Fprintf(&b, "  ≠ declared %g, feedback shows %g (%.1f%%, %s)", c.DeclaredValue, c.FoundValue, c.PercentDifference, c.Severity)
			if ctx := truncate(c.Context, options.MaxContextLength); ctx != "" {
				fmt.Fprintf(&b, " near %q", ctx)
			}
			b.WriteString("\n")
		}
	}

	for _, issue := range rep.Unattributed {
		fmt.Fprintf(&b, "\n%s %s: %s\n", issueMarker(issue.Severity), issue.Field, issue.Message)
	}
	return b.String()
}

func (r *Renderer) renderMarkdown(rec *storage.Record, options *RenderOptions) string {
	var b strings.Builder
	rep := rec.Report

	fmt.Fprintf(&b, "# %s\n\n", title(rec))
	fmt.Fprintf(&b, "- **Provider**: %s\n", rec.Provider)
	fmt.Fprintf(&b, "- **Status**: %s\n", rep.Status)
	fmt.Fprintf(&b, "- **Questions**: %d\n\n", rep.Totals.Questions)
	b.WriteString(rep.Summary())
	b.WriteString("\n")

	for _, qr := range rep.Questions {
		if options.OnlyProblems && qr.Status == report.StatusValid {
			continue
		}
		fmt.Fprintf(&b, "\n## %s (%s): %s\n\n", capitalize(qr.Label), qr.Kind, qr.Status)
		if len(qr.Issues)+len(qr.Corrections)+len(qr.Contradictions) == 0 {
			b.WriteString("No findings.\n")
			continue
		}
		for _, issue := range qr.Issues {
			fmt.Fprintf(&b, "- **%s** `%s`: %s\n", issue.Severity, issue.Field, issue.Message)
		}
		for _, c := range qr.Corrections {
			fmt.Fprintf(&b, "- **fixed** `%s` x%d: %s\n", c.RuleID, c.Count, c.Description)
		}
		for _, c := range qr.Contradictions {
			fmt.Fprintf(&b, "- **%s contradiction**: declared %g, feedback shows %g (%.1f%%)\n",
				c.Severity, c.DeclaredValue, c.FoundValue, c.PercentDifference)
		}
	}
	return b.String()
}

func (r *Renderer) calculateStatistics(summaries []storage.Summary) *CollectionStatistics {
	stats := &CollectionStatistics{
		TotalSets:            len(summaries),
		StatusDistribution:   make(map[report.Status]int),
		ProviderDistribution: make(map[string]int),
	}

	var minDate, maxDate time.Time
	for _, s := range summaries {
		stats.TotalQuestions += s.Questions
		stats.StatusDistribution[s.Status]++
		if s.Provider != "" {
			stats.ProviderDistribution[s.Provider]++
		}
		if s.CreatedAt.IsZero() {
			continue
		}
		if minDate.IsZero() || s.CreatedAt.Before(minDate) {
			minDate = s.CreatedAt
		}
		if maxDate.IsZero() || s.CreatedAt.After(maxDate) {
			maxDate = s.CreatedAt
		}
	}

	if len(summaries) > 0 {
		stats.AverageQuestions = float64(stats.TotalQuestions) / float64(len(summaries))
	}
	if !minDate.IsZero() {
		stats.DateRange = &DateRange{Start: minDate, End: maxDate}
	}
	return stats
}

func title(rec *storage.Record) string {
	if rec.Source != "" {
		return fmt.Sprintf("Question set %s (%s)", rec.ID, rec.Source)
	}
	return fmt.Sprintf("Question set %s", rec.ID)
}

func issueMarker(s validation.Severity) string {
	if s == validation.SeverityError {
		return "✗"
	}
	return "!"
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n <= 0 || len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
