package workflows_test

import (
	"errors"
	"testing"

	"github.com/Caia-Tech/caia-quizcheck/internal/pipeline"
	"github.com/Caia-Tech/caia-quizcheck/internal/storage"
	"github.com/Caia-Tech/caia-quizcheck/internal/temporal/activities"
	"github.com/Caia-Tech/caia-quizcheck/internal/temporal/workflows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

const validQuiz = `{"questions":[{"type":"numerical","question_text":"What is 2 + 2?","correct_answer":"4"}]}`

func TestBatchValidationWorkflow(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	store := storage.NewMemoryStore(nil)
	env.RegisterActivity(activities.NewActivities(pipeline.NewDefault(), store))

	input := workflows.BatchInput{
		Store:         true,
		MaxConcurrent: 2,
		Submissions: []workflows.SubmissionInput{
			{Text: "```json\n" + validQuiz + "\n```", Source: "plain"},
			{Content: []byte("<p>Here it is</p><pre>" + validQuiz + "</pre>"), ContentType: "text/html", Source: "html"},
			{Text: "Sorry, I cannot help with that.", Source: "refusal"},
			{Source: "empty"},
			{Content: []byte("%PDX broken"), ContentType: "application/pdf", Source: "pdf"},
		},
	}

	env.ExecuteWorkflow(workflows.BatchValidationWorkflow, input)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result workflows.BatchResult
	require.NoError(t, env.GetWorkflowResult(&result))

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, 2, result.Stored)
	assert.Equal(t, 2, store.Len())

	require.Len(t, result.Items, 5)
	for i, item := range result.Items {
		assert.Equal(t, i, item.Index)
	}
	assert.True(t, result.Items[0].Success)
	assert.NotEmpty(t, result.Items[0].SetID)
	assert.Equal(t, 1, result.Items[0].Questions)

	assert.True(t, result.Items[1].Success, "diagnostics: %v", result.Items[1].Diagnostics)
	assert.Equal(t, "html", result.Items[1].Source)

	assert.False(t, result.Items[2].Success)
	assert.Empty(t, result.Items[2].SetID)
	assert.Empty(t, result.Items[2].Error)
	assert.NotEmpty(t, result.Items[2].Diagnostics)

	assert.Equal(t, "submission has no text, content or URL", result.Items[3].Error)
	assert.Contains(t, result.Items[4].Error, "extraction failed")
}

func TestBatchValidationWorkflowWithoutStore(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterActivity(activities.NewActivities(nil, nil))

	env.ExecuteWorkflow(workflows.BatchValidationWorkflow, workflows.BatchInput{
		Submissions: []workflows.SubmissionInput{{Text: validQuiz}},
	})
	require.NoError(t, env.GetWorkflowError())

	var result workflows.BatchResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, result.Stored)
}

func TestBatchValidationWorkflowRejectsEmptyBatch(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterActivity(activities.NewActivities(nil, nil))

	env.ExecuteWorkflow(workflows.BatchValidationWorkflow, workflows.BatchInput{})
	require.True(t, env.IsWorkflowCompleted())

	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, workflows.InvalidInputErrorType, appErr.Type())
}
