package taskboard_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pactline/internal/domain"
	"pactline/internal/taskboard"
)

func TestDecodeClauseEncodings(t *testing.T) {
	list := `[{"type":"Payment","text":"Net 30","page":2,"confidence":0.8}]`
	wrapped := `{"clauses":` + list + `}`
	quoted, err := json.Marshal(wrapped)
	require.NoError(t, err)

	for name, raw := range map[string]string{"list": list, "wrapped": wrapped, "string": string(quoted)} {
		t.Run(name, func(t *testing.T) {
			res, err := taskboard.Decode(domain.KindClauseExtraction, json.RawMessage(raw))
			require.NoError(t, err)
			cr, ok := res.(taskboard.ClauseResult)
			require.True(t, ok)
			require.Len(t, cr.Clauses, 1)
			assert.Equal(t, 2, cr.Clauses[0].Page)
		})
	}
}

func TestDecodeClauseRejectsBadShape(t *testing.T) {
	cases := map[string]string{
		"confidence above one": `[{"type":"A","text":"t","page":1,"confidence":1.2}]`,
		"negative confidence":  `[{"type":"A","text":"t","page":1,"confidence":-0.1}]`,
		"missing text":         `[{"type":"A","page":1,"confidence":0.5}]`,
		"page zero":            `[{"type":"A","text":"t","page":0,"confidence":0.5}]`,
		"wrong wrapper":        `{"risks":[]}`,
		"not a list":           `42`,
		"null":                 `null`,
		"string garbage":       `"not json"`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := taskboard.Decode(domain.KindClauseExtraction, json.RawMessage(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, taskboard.ErrMalformedResult)
			var me *taskboard.MalformedResultError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, domain.KindClauseExtraction, me.Kind)
		})
	}
}

func TestDecodeRiskNormalisesSeverity(t *testing.T) {
	raw := `{"risks":[{"severity":"High","description":"d","risky_text":"r","recommendation":"fix","page":3}]}`
	res, err := taskboard.Decode(domain.KindRiskAssessment, json.RawMessage(raw))
	require.NoError(t, err)
	rr := res.(taskboard.RiskResult)
	assert.Equal(t, taskboard.SeverityHigh, rr.Risks[0].Severity)

	_, err = taskboard.Decode(domain.KindRiskAssessment,
		json.RawMessage(`[{"severity":"critical","description":"d","risky_text":"r","recommendation":"x","page":1}]`))
	assert.ErrorIs(t, err, taskboard.ErrMalformedResult)

	_, err = taskboard.Decode(domain.KindRiskAssessment,
		json.RawMessage(`[{"severity":"low","description":"d","recommendation":"x","page":1}]`))
	assert.ErrorIs(t, err, taskboard.ErrMalformedResult)
}

func TestDecodeDiff(t *testing.T) {
	res, err := taskboard.Decode(domain.KindDiff,
		json.RawMessage(`{"summary":"one change","diffs":[{"section":"2.1","old":"30 days","new":"60 days"}]}`))
	require.NoError(t, err)
	view := taskboard.BuildView(res)
	require.NotNil(t, view.Diff)
	assert.Equal(t, "one change", view.Diff.Summary)
	assert.Equal(t, "Version Comparison", view.Title)

	_, err = taskboard.Decode(domain.KindDiff, json.RawMessage(`{"summary":"x"}`))
	assert.ErrorIs(t, err, taskboard.ErrMalformedResult)
	_, err = taskboard.Decode(domain.KindDiff, json.RawMessage(`{"summary":"x","diffs":[{"section":"a"}]}`))
	assert.ErrorIs(t, err, taskboard.ErrMalformedResult)
}

func TestDecodeOpaqueKinds(t *testing.T) {
	res, err := taskboard.Decode(domain.KindEmbedding, json.RawMessage(`{"chunks":12}`))
	require.NoError(t, err)
	assert.Equal(t, domain.KindEmbedding, res.Kind())
	assert.NotEmpty(t, taskboard.BuildView(res).Message)

	_, err = taskboard.Decode("Summarize", json.RawMessage(`{}`))
	assert.Error(t, err)
}
