package versions_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pactline/internal/domain"
	"pactline/internal/versions"
)

func version(n int) domain.ContractVersion {
	return domain.ContractVersion{ID: fmt.Sprintf("v%d", n), ContractID: "c1", Number: n}
}

func TestLatestPicksHighestNumber(t *testing.T) {
	h, err := versions.New([]domain.ContractVersion{version(2), version(7), version(1), version(4)})
	require.NoError(t, err)
	latest, err := h.Latest()
	require.NoError(t, err)
	assert.Equal(t, 7, latest.Number)
	assert.Equal(t, "v7", h.LatestID())
}

func TestLatestEmpty(t *testing.T) {
	h, err := versions.New(nil)
	require.NoError(t, err)
	_, err = h.Latest()
	assert.ErrorIs(t, err, versions.ErrEmptyHistory)
	assert.Equal(t, "", h.LatestID())
}

func TestNewRejectsDuplicateNumbers(t *testing.T) {
	dup := version(3)
	dup.ID = "other"
	_, err := versions.New([]domain.ContractVersion{version(3), dup})
	assert.Error(t, err)
	_, err = versions.New([]domain.ContractVersion{version(0)})
	assert.Error(t, err)
}

func TestInsertKeepsOrder(t *testing.T) {
	h, err := versions.New([]domain.ContractVersion{version(1), version(2)})
	require.NoError(t, err)
	require.NoError(t, h.Insert(version(3)))
	assert.Equal(t, "v3", h.LatestID())
	assert.Error(t, h.Insert(version(3)))
	assert.Error(t, h.Insert(version(2)))
	assert.Equal(t, 3, h.Len())
}

func TestListWithLimit(t *testing.T) {
	var in []domain.ContractVersion
	for i := 1; i <= 6; i++ {
		in = append(in, version(i))
	}
	h, err := versions.New(in)
	require.NoError(t, err)

	listing := h.List(versions.DefaultDisplayLimit)
	require.Len(t, listing.Versions, 4)
	assert.Equal(t, 2, listing.Remaining)
	assert.Equal(t, []int{6, 5, 4, 3}, numbers(listing.Versions))

	all := h.List(0)
	assert.Len(t, all.Versions, 6)
	assert.Equal(t, 0, all.Remaining)

	assert.Equal(t, 0, h.List(10).Remaining)
}

func TestGet(t *testing.T) {
	h, err := versions.New([]domain.ContractVersion{version(1)})
	require.NoError(t, err)
	v, err := h.Get("v1")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Number)
	_, err = h.Get("missing")
	assert.ErrorIs(t, err, versions.ErrNotFound)
}

func numbers(vs []domain.ContractVersion) []int {
	out := make([]int, len(vs))
	for i, v := range vs {
		out[i] = v.Number
	}
	return out
}
