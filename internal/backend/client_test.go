package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pactline/internal/backend"
	"pactline/internal/backend/backendtest"
	"pactline/internal/domain"
)

var pdf = []byte("%PDF-1.4\n%fake\n")

func newClient(t *testing.T) (*backend.Client, *backendtest.Backend) {
	t.Helper()
	fake := backendtest.New(t)
	fake.Token = "secret"
	return backend.New(fake.URL(), "secret"), fake
}

func TestListContractsFiltersByStatus(t *testing.T) {
	c, fake := newClient(t)
	fake.AddContract(domain.Contract{ID: "a", Title: "NDA"})
	fake.AddContract(domain.Contract{ID: "b", Title: "MSA", Status: domain.StatusSigned})

	all, err := c.ListContracts(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	signed, err := c.ListContracts(context.Background(), domain.StatusSigned)
	require.NoError(t, err)
	require.Len(t, signed, 1)
	assert.Equal(t, "b", signed[0].ID)
}

func TestGetContractDetail(t *testing.T) {
	c, fake := newClient(t)
	v1 := fake.AddContract(domain.Contract{ID: "a"}, domain.Participant{UserID: "u1", Role: domain.RoleManager})

	d, err := c.GetContract(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, d.Versions, 1)
	assert.Equal(t, 1, d.Versions[0].Number)
	assert.Equal(t, domain.TaskPending, d.AITasks[v1.ID][domain.KindClauseExtraction].Status)
	_, hasDiff := d.AITasks[v1.ID][domain.KindDiff]
	assert.False(t, hasDiff)
	require.Len(t, d.Participants, 1)

	_, err = c.GetContract(context.Background(), "missing")
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Contract not found", apiErr.Detail)
}

func TestUnauthorized(t *testing.T) {
	c, fake := newClient(t)
	fake.AddContract(domain.Contract{ID: "a"})
	_, err := c.WithToken("wrong").GetContract(context.Background(), "a")
	assert.ErrorIs(t, err, backend.ErrUnauthorized)
}

func TestCreateVersion(t *testing.T) {
	c, fake := newClient(t)
	fake.AddContract(domain.Contract{ID: "a"})

	v, err := c.CreateVersion(context.Background(), "a", "contract-v2.pdf", pdf)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Number)

	d, err := c.GetContract(context.Background(), "a")
	require.NoError(t, err)
	_, hasDiff := d.AITasks[v.ID][domain.KindDiff]
	assert.True(t, hasDiff)

	_, err = c.CreateVersion(context.Background(), "a", "notes.txt", []byte("x"))
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Only PDF files are allowed", apiErr.Detail)

	_, err = c.CreateVersion(context.Background(), "a", "empty.pdf", nil)
	assert.ErrorIs(t, err, backend.ErrEmptyUpload)
}

func TestAsk(t *testing.T) {
	c, fake := newClient(t)
	v1 := fake.AddContract(domain.Contract{ID: "a"})

	ans, err := c.Ask(context.Background(), "a", v1.ID, "termination?")
	require.NoError(t, err)
	assert.Equal(t, "Answer to: termination?", ans.Answer)
	require.Len(t, ans.Citations, 1)
	assert.Equal(t, 1, fake.Hits("POST /contracts/{id}/versions/{vid}/chat"))

	_, err = c.Ask(context.Background(), "a", "", "termination?")
	assert.ErrorIs(t, err, backend.ErrNoVersion)
	assert.Equal(t, 1, fake.Hits("POST /contracts/{id}/versions/{vid}/chat"))

	fake.FailChat(http.StatusBadGateway)
	_, err = c.Ask(context.Background(), "a", v1.ID, "again")
	var apiErr *backend.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestAdvanceEnforcesTaskMachine(t *testing.T) {
	_, fake := newClient(t)
	v1 := fake.AddContract(domain.Contract{ID: "a"})
	result := json.RawMessage(`[]`)
	assert.Error(t, fake.Advance("a", v1.ID, domain.KindClauseExtraction, domain.TaskCompleted, result))
	require.NoError(t, fake.Complete("a", v1.ID, domain.KindClauseExtraction, result))
	assert.Error(t, fake.Advance("a", v1.ID, domain.KindClauseExtraction, domain.TaskRunning, nil))
	assert.Error(t, fake.Advance("a", v1.ID, domain.KindChat, domain.TaskRunning, nil))
}
