package taskboard_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pactline/internal/domain"
	"pactline/internal/taskboard"
)

func clauseTasks(vid string, status domain.TaskStatus, result string) map[string]domain.VersionTasks {
	t := domain.AITask{Status: status}
	if result != "" {
		t.Result = json.RawMessage(result)
	}
	return map[string]domain.VersionTasks{vid: {domain.KindClauseExtraction: t}}
}

const threeClauses = `[
	{"type":"Termination","text":"Either party may terminate.","page":1,"confidence":0.9},
	{"type":"Payment","text":"Net 30.","page":2,"confidence":0.75},
	{"type":"Confidentiality","text":"Keep it secret.","page":4,"confidence":1}
]`

func TestTaskAbsentIsNotPending(t *testing.T) {
	b := taskboard.New()
	b.Observe("v1", clauseTasks("v1", domain.TaskPending, ""))
	task, ok := b.Task("v1", domain.KindClauseExtraction)
	require.True(t, ok)
	assert.Equal(t, domain.TaskPending, task.Status)
	_, ok = b.Task("v1", domain.KindRiskAssessment)
	assert.False(t, ok)
	_, ok = b.Task("v9", domain.KindClauseExtraction)
	assert.False(t, ok)
}

func TestSelectToggles(t *testing.T) {
	b := taskboard.New()
	sel := b.Select("v1", domain.KindRiskAssessment)
	assert.Equal(t, domain.KindRiskAssessment, sel.Kind)
	sel = b.Select("v1", domain.KindDiff)
	assert.Equal(t, domain.KindDiff, sel.Kind)
	sel = b.Select("v1", domain.KindDiff)
	assert.True(t, sel.Empty())
	_, ok := b.Selection()
	assert.False(t, ok)
}

func TestAutoSelectFiresOnce(t *testing.T) {
	b := taskboard.New()
	assert.False(t, b.Observe("v2", clauseTasks("v2", domain.TaskPending, "")))
	assert.False(t, b.Observe("v2", clauseTasks("v2", domain.TaskRunning, "")))
	assert.True(t, b.Observe("v2", clauseTasks("v2", domain.TaskCompleted, threeClauses)))

	sel, ok := b.Selection()
	require.True(t, ok)
	assert.Equal(t, taskboard.Selection{VersionID: "v2", Kind: domain.KindClauseExtraction}, sel)

	b.Select("v2", domain.KindClauseExtraction)
	_, ok = b.Selection()
	require.False(t, ok)

	assert.False(t, b.Observe("v2", clauseTasks("v2", domain.TaskCompleted, threeClauses)))
	_, ok = b.Selection()
	assert.False(t, ok)
}

func TestAutoSelectSkippedWhenSomethingSelected(t *testing.T) {
	b := taskboard.New()
	b.Observe("v1", clauseTasks("v1", domain.TaskRunning, ""))
	b.Select("v1", domain.KindRiskAssessment)
	assert.False(t, b.Observe("v1", clauseTasks("v1", domain.TaskCompleted, threeClauses)))
	sel, _ := b.Selection()
	assert.Equal(t, domain.KindRiskAssessment, sel.Kind)

	b.ClearSelection()
	assert.False(t, b.Observe("v1", clauseTasks("v1", domain.TaskCompleted, threeClauses)))
}

func TestAutoSelectFirstObservedCompleted(t *testing.T) {
	b := taskboard.New()
	assert.True(t, b.Observe("v1", clauseTasks("v1", domain.TaskCompleted, threeClauses)))
}

func TestAutoSelectIgnoresRerun(t *testing.T) {
	b := taskboard.New()
	require.True(t, b.Observe("v1", clauseTasks("v1", domain.TaskCompleted, threeClauses)))
	b.ClearSelection()
	b.Observe("v1", clauseTasks("v1", domain.TaskPending, ""))
	assert.False(t, b.Observe("v1", clauseTasks("v1", domain.TaskCompleted, threeClauses)))
}

func TestNewLatestClearsSelection(t *testing.T) {
	b := taskboard.New()
	b.Observe("v1", clauseTasks("v1", domain.TaskCompleted, threeClauses))
	_, ok := b.Selection()
	require.True(t, ok)

	b.Observe("v2", clauseTasks("v2", domain.TaskPending, ""))
	_, ok = b.Selection()
	assert.False(t, ok)
	assert.Equal(t, "v2", b.Latest())

	assert.True(t, b.Observe("v2", clauseTasks("v2", domain.TaskCompleted, threeClauses)))
}

func TestAnalysisRendersClauses(t *testing.T) {
	b := taskboard.New()
	b.Observe("v2", clauseTasks("v2", domain.TaskCompleted, threeClauses))
	b.ClearSelection()
	b.Select("v2", domain.KindClauseExtraction)

	a, ok := b.SelectedAnalysis()
	require.True(t, ok)
	require.NoError(t, a.Err)
	assert.Equal(t, "Clause Analysis", a.Label)
	view := taskboard.BuildView(a.Result)
	assert.Len(t, view.Clauses, 3)
	assert.Equal(t, "Payment", view.Clauses[1].Type)
}

func TestAnalysisMalformedIsInline(t *testing.T) {
	b := taskboard.New()
	b.Observe("v1", map[string]domain.VersionTasks{"v1": {
		domain.KindClauseExtraction: {Status: domain.TaskCompleted, Result: json.RawMessage(`[{"type":"X","text":"t","page":0,"confidence":0.5}]`)},
		domain.KindRiskAssessment:   {Status: domain.TaskCompleted, Result: json.RawMessage(`[]`)},
		domain.KindDiff:             {Status: domain.TaskRunning},
	}})

	bad := b.Analysis("v1", domain.KindClauseExtraction)
	assert.True(t, bad.Present)
	assert.ErrorIs(t, bad.Err, taskboard.ErrMalformedResult)

	good := b.Analysis("v1", domain.KindRiskAssessment)
	require.NoError(t, good.Err)
	assert.Equal(t, "No risks found.", taskboard.BuildView(good.Result).Message)

	running := b.Analysis("v1", domain.KindDiff)
	assert.NoError(t, running.Err)
	assert.Nil(t, running.Result)

	absent := b.Analysis("v1", domain.KindChat)
	assert.False(t, absent.Present)
}

func TestTasksInBoardOrder(t *testing.T) {
	b := taskboard.New()
	b.Observe("v1", map[string]domain.VersionTasks{"v1": {
		domain.KindDiff:             {Status: domain.TaskPending},
		domain.KindClauseExtraction: {Status: domain.TaskRunning},
	}})
	tasks := b.Tasks("v1")
	require.Len(t, tasks, 2)
	assert.Equal(t, domain.KindClauseExtraction, tasks[0].Kind)
	assert.Equal(t, domain.KindDiff, tasks[1].Kind)
}

func TestMarkConsumedSuppressesAutoSelect(t *testing.T) {
	b := taskboard.New()
	b.MarkConsumed("v1")
	assert.True(t, b.Consumed("v1"))
	assert.False(t, b.Observe("v1", clauseTasks("v1", domain.TaskCompleted, threeClauses)))
	assert.False(t, b.Consumed("v2"))
}
