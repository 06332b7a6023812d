// Command quizcheck validates, corrects and exports LLM-generated quizzes from the command line
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/pipeline"
	"github.com/Caia-Tech/caia-quizcheck/internal/report"
	"github.com/Caia-Tech/caia-quizcheck/pkg/config"
	"github.com/Caia-Tech/caia-quizcheck/pkg/export"
	"github.com/Caia-Tech/caia-quizcheck/pkg/extractor"
	"github.com/Caia-Tech/caia-quizcheck/pkg/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	closer, err := logging.SetupLogger(logging.CLILogConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	code := run(os.Args[1:], os.Stdout)
	closer.Close()
	os.Exit(code)
}

// cli carries what every command needs
type cli struct {
	out      io.Writer
	pipeline *pipeline.Pipeline
	engine   *extractor.Engine
	timeout  time.Duration
}

func run(args []string, out io.Writer) int {
	if len(args) < 1 {
		showHelp(out)
		return 1
	}

	c, err := newCLI(out)
	if err != nil {
		fmt.Fprintf(out, "❌ %v\n", err)
		return 1
	}

	switch args[0] {
	case "validate":
		if len(args) < 2 {
			fmt.Fprintln(out, "❌ Usage: quizcheck validate <file> [provider]")
			return 1
		}
		return c.validate(args[1], optional(args, 2))

	case "correct":
		if len(args) < 2 {
			fmt.Fprintln(out, "❌ Usage: quizcheck correct <file> [provider]")
			return 1
		}
		return c.correct(args[1], optional(args, 2))

	case "export":
		if len(args) < 3 {
			fmt.Fprintln(out, "❌ Usage: quizcheck export <file> <out.xml|out.json> [provider]")
			return 1
		}
		return c.export(args[1], args[2], optional(args, 3))

	case "batch":
		if len(args) < 2 {
			fmt.Fprintln(out, "❌ Usage: quizcheck batch <file> [file...]")
			return 1
		}
		return c.batch(args[1:])

	case "help", "-h", "--help":
		showHelp(out)
		return 0

	default:
		showHelp(out)
		return 1
	}
}

// newCLI builds the pipeline from QUIZCHECK_CONFIG when set, otherwise from defaults
func newCLI(out io.Writer) (*cli, error) {
	cfg := config.DefaultConfig()
	if path := getEnv("QUIZCHECK_CONFIG", ""); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cli{
		out:      out,
		pipeline: pipeline.New(pipeline.OptionsFromConfig(cfg.Pipeline, nil)),
		engine:   extractor.NewEngine(),
		timeout:  2 * time.Minute,
	}, nil
}

func (c *cli) process(path, provider string) (*pipeline.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	text, metadata, err := c.engine.ExtractFile(ctx, path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("file", path).Interface("metadata", metadata).Msg("Extracted submission")

	return c.pipeline.Process(ctx, pipeline.Submission{
		Text:     text,
		Provider: provider,
		Source:   filepath.Base(path),
	})
}

func (c *cli) validate(path, provider string) int {
	fmt.Fprintf(c.out, "🔄 Validating %s\n", path)

	result, err := c.process(path, provider)
	if err != nil {
		fmt.Fprintf(c.out, "❌ %v\n", err)
		return 1
	}

	c.printResult(result)
	if !result.Success {
		return 1
	}
	return 0
}

func (c *cli) correct(path, provider string) int {
	result, err := c.process(path, provider)
	if err != nil {
		fmt.Fprintf(c.out, "❌ %v\n", err)
		return 1
	}
	if result.Set == nil {
		c.printFailure(result)
		return 1
	}

	data, err := export.JSON(result.Set)
	if err != nil {
		fmt.Fprintf(c.out, "❌ Failed to encode questions: %v\n", err)
		return 1
	}
	c.out.Write(data)

	if !result.Success {
		return 1
	}
	return 0
}

func (c *cli) export(path, dest, provider string) int {
	format := export.FormatMoodle
	if strings.EqualFold(filepath.Ext(dest), ".json") {
		format = export.FormatJSON
	}

	fmt.Fprintf(c.out, "🔄 Exporting %s as %s\n", path, format)
	result, err := c.process(path, provider)
	if err != nil {
		fmt.Fprintf(c.out, "❌ %v\n", err)
		return 1
	}
	if !result.Success {
		c.printFailure(result)
		return 1
	}

	data, err := export.Write(result.Set, format)
	if err != nil {
		fmt.Fprintf(c.out, "❌ Export failed: %v\n", err)
		return 1
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		fmt.Fprintf(c.out, "❌ Failed to write %s: %v\n", dest, err)
		return 1
	}

	fmt.Fprintf(c.out, "✅ Wrote %d questions to %s\n", result.Set.Len(), dest)
	if result.Report.Status != report.StatusValid {
		fmt.Fprintf(c.out, "⚠️  Report status is %s, review before importing\n", result.Report.Status)
	}
	return 0
}

func (c *cli) batch(paths []string) int {
	fmt.Fprintf(c.out, "🔄 Validating %d files\n", len(paths))

	failed := 0
	for _, path := range paths {
		result, err := c.process(path, "")
		switch {
		case err != nil:
			failed++
			fmt.Fprintf(c.out, "❌ %s: %v\n", path, err)
		case !result.Success:
			failed++
			fmt.Fprintf(c.out, "❌ %s: failed at %s\n", path, result.Stage)
		default:
			fmt.Fprintf(c.out, "%s %s: %d questions, %s\n", statusIcon(result.Report.Status), path, result.Set.Len(), result.Report.Status)
		}
	}

	fmt.Fprintf(c.out, "\n📊 %d succeeded, %d failed\n", len(paths)-failed, failed)
	if failed > 0 {
		return 1
	}
	return 0
}

func (c *cli) printResult(result *pipeline.Result) {
	if result.Report == nil {
		c.printFailure(result)
		return
	}

	if result.Repaired {
		fmt.Fprintf(c.out, "🔧 Repaired with the %s recipe: %s\n", result.Recipe, strings.Join(result.RulesApplied, ", "))
	}
	fmt.Fprintf(c.out, "%s %s\n", statusIcon(result.Report.Status), result.Report.Summary())

	for _, qr := range result.Report.Questions {
		if qr.Status == report.StatusValid {
			continue
		}
		fmt.Fprintf(c.out, "\n   %s (%s): %s\n", qr.Label, qr.Kind, qr.Status)
		for _, issue := range qr.Issues {
			fmt.Fprintf(c.out, "     - %s: %s\n", issue.Severity, issue.Message)
		}
		for _, corr := range qr.Corrections {
			fmt.Fprintf(c.out, "     - fixed: %s x%d\n", corr.Description, corr.Count)
		}
		for _, contradiction := range qr.Contradictions {
			fmt.Fprintf(c.out, "     - %s\n", contradiction)
		}
	}

	if !result.Success {
		fmt.Fprintf(c.out, "\n❌ Run failed at %s\n", result.Stage)
		return
	}
	fmt.Fprintf(c.out, "\n🎉 Run %s complete in %s\n", result.RunID, result.Duration.Round(time.Millisecond))
}

func (c *cli) printFailure(result *pipeline.Result) {
	fmt.Fprintf(c.out, "❌ Run failed at %s\n", result.Stage)
	for _, d := range result.Diagnostics {
		fmt.Fprintf(c.out, "   %s\n", d)
	}
}

func statusIcon(s report.Status) string {
	switch s {
	case report.StatusValid:
		return "✅"
	case report.StatusWarning:
		return "⚠️ "
	}
	return "❌"
}

func optional(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func showHelp(out io.Writer) {
	fmt.Fprintln(out, "🔧 quizcheck")
	fmt.Fprintln(out, "============")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Usage: quizcheck [command] [options]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  validate <file> [provider]     - Validate a quiz and print the report")
	fmt.Fprintln(out, "  correct <file> [provider]      - Print the corrected questions as JSON")
	fmt.Fprintln(out, "  export <file> <out> [provider] - Write Moodle XML (.xml) or JSON (.json)")
	fmt.Fprintln(out, "  batch <file> [file...]         - Validate several files")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Input files may be .txt, .md, .json, .html, .pdf or .docx.")
	fmt.Fprintln(out, "Set QUIZCHECK_CONFIG to a YAML or JSON config file to change thresholds.")
}
