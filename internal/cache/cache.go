// Package cache holds backend reads for a short freshness window.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"pactline/internal/domain"
)

const (
	DefaultSize      = 128
	DefaultFreshness = 2 * time.Minute
)

// Contracts caches contract detail reads per actor. The backend answers with the
// caller's role and may refuse a contract to another caller, so one actor's read
// is never served to another. Entries expire after the freshness window; writers
// that change a contract call Invalidate instead of waiting for expiry.
type Contracts struct {
	lru *expirable.LRU[key, domain.ContractDetail]
}

type key struct {
	actorID    string
	contractID string
}

func New(size int, freshness time.Duration) *Contracts {
	if size <= 0 {
		size = DefaultSize
	}
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &Contracts{lru: expirable.NewLRU[key, domain.ContractDetail](size, nil, freshness)}
}

func (c *Contracts) Get(actorID, contractID string) (domain.ContractDetail, bool) {
	return c.lru.Get(key{actorID, contractID})
}

func (c *Contracts) Put(actorID string, detail domain.ContractDetail) {
	c.lru.Add(key{actorID, detail.ID}, detail)
}

// Invalidate drops every actor's copy of a contract so the next read goes to the
// backend. It returns how many entries were dropped.
func (c *Contracts) Invalidate(contractID string) int {
	n := 0
	for _, k := range c.lru.Keys() {
		if k.contractID == contractID && c.lru.Remove(k) {
			n++
		}
	}
	return n
}

func (c *Contracts) Purge() {
	c.lru.Purge()
}

func (c *Contracts) Len() int {
	return c.lru.Len()
}
