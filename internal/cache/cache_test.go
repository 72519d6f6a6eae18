package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pactline/internal/cache"
	"pactline/internal/domain"
)

func detail(id string) domain.ContractDetail {
	return domain.ContractDetail{Contract: domain.Contract{ID: id, Status: domain.StatusDraft}}
}

func TestPutGetInvalidate(t *testing.T) {
	c := cache.New(0, 0)
	c.Put("alice", detail("c1"))
	got, ok := c.Get("alice", "c1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusDraft, got.Status)

	assert.Equal(t, 1, c.Invalidate("c1"))
	_, ok = c.Get("alice", "c1")
	assert.False(t, ok)
	assert.Zero(t, c.Invalidate("c1"))
}

func TestEntriesAreScopedPerActor(t *testing.T) {
	c := cache.New(0, 0)
	cm := detail("c1")
	cm.Role = domain.RoleManager
	c.Put("alice", cm)

	_, ok := c.Get("mallory", "c1")
	assert.False(t, ok)

	c.Put("bob", detail("c1"))
	c.Put("bob", detail("c2"))
	got, ok := c.Get("alice", "c1")
	require.True(t, ok)
	assert.Equal(t, domain.RoleManager, got.Role)

	assert.Equal(t, 2, c.Invalidate("c1"))
	_, ok = c.Get("bob", "c2")
	assert.True(t, ok)
}

func TestEntriesExpire(t *testing.T) {
	c := cache.New(4, 20*time.Millisecond)
	c.Put("alice", detail("c1"))
	time.Sleep(60 * time.Millisecond)
	_, ok := c.Get("alice", "c1")
	assert.False(t, ok)
}

func TestSizeBound(t *testing.T) {
	c := cache.New(2, time.Minute)
	c.Put("alice", detail("a"))
	c.Put("alice", detail("b"))
	c.Put("alice", detail("c"))
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("alice", "a")
	assert.False(t, ok)
	c.Purge()
	assert.Equal(t, 0, c.Len())
}
