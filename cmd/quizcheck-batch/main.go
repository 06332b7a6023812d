// Command quizcheck-batch submits batches of quizzes to the Temporal batch validation workflow
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/report"
	"github.com/Caia-Tech/caia-quizcheck/internal/temporal/workflows"
	"github.com/Caia-Tech/caia-quizcheck/pkg/extractor"
	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	if len(args) < 1 {
		showHelp(out)
		return 1
	}

	switch args[0] {
	case "submit":
		store, sources := parseSubmitArgs(args[1:])
		if len(sources) == 0 {
			fmt.Fprintln(out, "❌ Usage: quizcheck-batch submit [--store] <file|url>[,<file|url>...] [provider]")
			return 1
		}
		input, err := buildBatchInput(sources, store)
		if err != nil {
			fmt.Fprintf(out, "❌ %v\n", err)
			return 1
		}
		return withClient(out, func(c client.Client) int {
			return submitBatch(c, input, out)
		})

	case "show":
		if len(args) < 2 {
			fmt.Fprintln(out, "❌ Usage: quizcheck-batch show <workflow-id>")
			return 1
		}
		return withClient(out, func(c client.Client) int {
			return showBatch(c, args[1], out)
		})

	case "help", "-h", "--help":
		showHelp(out)
		return 0

	default:
		showHelp(out)
		return 1
	}
}

func withClient(out io.Writer, fn func(client.Client) int) int {
	temporalClient, err := client.Dial(client.Options{
		HostPort:  getEnv("TEMPORAL_HOST", "localhost:7233"),
		Namespace: getEnv("TEMPORAL_NAMESPACE", "default"),
	})
	if err != nil {
		fmt.Fprintf(out, "❌ Failed to connect to Temporal: %v\n", err)
		return 1
	}
	defer temporalClient.Close()
	return fn(temporalClient)
}

// parseSubmitArgs splits the --store flag from a comma separated source list and an optional provider
func parseSubmitArgs(args []string) (store bool, sources []submissionSource) {
	var rest []string
	for _, arg := range args {
		if arg == "--store" {
			store = true
			continue
		}
		rest = append(rest, arg)
	}
	if len(rest) == 0 {
		return store, nil
	}

	provider := ""
	if len(rest) > 1 {
		provider = rest[1]
	}
	for _, item := range strings.Split(rest[0], ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			sources = append(sources, submissionSource{location: trimmed, provider: provider})
		}
	}
	return store, sources
}

type submissionSource struct {
	location string
	provider string
}

func (s submissionSource) isURL() bool {
	return strings.HasPrefix(s.location, "http://") || strings.HasPrefix(s.location, "https://")
}

// buildBatchInput reads local files into the batch and leaves URLs to the fetch activity
func buildBatchInput(sources []submissionSource, store bool) (workflows.BatchInput, error) {
	input := workflows.BatchInput{Store: store}
	for _, src := range sources {
		sub := workflows.SubmissionInput{Provider: src.provider}
		if src.isURL() {
			sub.URL = src.location
			sub.Source = src.location
		} else {
			content, err := os.ReadFile(src.location)
			if err != nil {
				return workflows.BatchInput{}, fmt.Errorf("failed to read %s: %w", src.location, err)
			}
			sub.Content = content
			sub.ContentType = extractor.TypeFromFilename(src.location)
			sub.Source = filepath.Base(src.location)
		}
		input.Submissions = append(input.Submissions, sub)
	}
	return input, nil
}

func submitBatch(c client.Client, input workflows.BatchInput, out io.Writer) int {
	fmt.Fprintf(out, "🔄 Starting batch validation of %d submissions\n", len(input.Submissions))

	workflowID := fmt.Sprintf("cli-batch-%s", uuid.New().String())
	workflowRun, err := c.ExecuteWorkflow(
		context.Background(),
		client.StartWorkflowOptions{
			ID:        workflowID,
			TaskQueue: getEnv("QUIZCHECK_TASK_QUEUE", "quizcheck-batch"),
		},
		workflows.BatchValidationWorkflow,
		input,
	)
	if err != nil {
		fmt.Fprintf(out, "❌ Failed to start batch workflow: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "✅ Batch workflow started: %s\n", workflowRun.GetID())
	fmt.Fprintf(out, "   Waiting for completion...\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var result workflows.BatchResult
	if err := workflowRun.Get(ctx, &result); err != nil {
		fmt.Fprintf(out, "❌ Batch workflow failed: %v\n", err)
		return 1
	}

	printBatchResult(out, result)
	if result.Failed > 0 {
		return 1
	}
	return 0
}

func showBatch(c client.Client, workflowID string, out io.Writer) int {
	fmt.Fprintf(out, "🔍 Batch details: %s\n", workflowID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var result workflows.BatchResult
	if err := c.GetWorkflow(ctx, workflowID, "").Get(ctx, &result); err != nil {
		fmt.Fprintf(out, "❌ Failed to get batch result: %v\n", err)
		fmt.Fprintf(out, "   (Use 'temporal workflow show --workflow-id %s' for full details)\n", workflowID)
		return 1
	}

	printBatchResult(out, result)
	return 0
}

func printBatchResult(out io.Writer, result workflows.BatchResult) {
	for _, item := range result.Items {
		name := item.Source
		if name == "" {
			name = fmt.Sprintf("#%d", item.Index+1)
		}
		switch {
		case item.Error != "":
			fmt.Fprintf(out, "❌ %s: %s\n", name, item.Error)
		case !item.Success:
			fmt.Fprintf(out, "❌ %s: failed at %s\n", name, item.Stage)
			for _, d := range item.Diagnostics {
				fmt.Fprintf(out, "   %s\n", d)
			}
		default:
			line := fmt.Sprintf("%s %s: %d questions, %s", statusIcon(item.Status), name, item.Questions, item.Status)
			if item.SetID != "" {
				line += fmt.Sprintf(" (stored as %s)", item.SetID)
			}
			fmt.Fprintln(out, line)
		}
	}

	fmt.Fprintf(out, "\n📊 %d of %d succeeded, %d failed, %d stored\n", result.Succeeded, result.Total, result.Failed, result.Stored)
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

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func showHelp(out io.Writer) {
	fmt.Fprintln(out, "🔧 quizcheck-batch")
	fmt.Fprintln(out, "==================")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Usage: quizcheck-batch [command] [options]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  submit [--store] <sources> [provider] - Validate comma separated files or URLs")
	fmt.Fprintln(out, "  show <workflow-id>                    - Show the result of a batch")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Environment: TEMPORAL_HOST, TEMPORAL_NAMESPACE, QUIZCHECK_TASK_QUEUE")
}
