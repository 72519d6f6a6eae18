package chat

import (
	"context"
	"sync"

	"pactline/internal/domain"
)

// MemoryStore keeps snapshots in process memory. The CLI uses it for one-shot
// commands run with --no-cache.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[memKey]domain.ChatSnapshot
}

type memKey struct{ actor, contract string }

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: map[memKey]domain.ChatSnapshot{}}
}

func (m *MemoryStore) LoadChat(_ context.Context, actorID, contractID string) (domain.ChatSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[memKey{actorID, contractID}]
	if !ok {
		return domain.ChatSnapshot{}, false, nil
	}
	snap.Messages = append([]domain.ChatMessage(nil), snap.Messages...)
	return snap, true, nil
}

func (m *MemoryStore) SaveChat(_ context.Context, snap domain.ChatSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.Messages = append([]domain.ChatMessage(nil), snap.Messages...)
	m.snaps[memKey{snap.ActorID, snap.ContractID}] = snap
	return nil
}

func (m *MemoryStore) DeleteChat(_ context.Context, actorID, contractID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, memKey{actorID, contractID})
	return nil
}
