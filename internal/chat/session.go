// Package chat keeps a bounded conversation pinned to one contract version.
package chat

import (
	"time"

	"pactline/internal/domain"
)

// DefaultRetention is how many messages a session keeps.
const DefaultRetention = 5

// Session is the conversation state of one actor on one contract. It is a plain
// value with no locking; Chat serializes access and persistence.
type Session struct {
	ActorID    string
	ContractID string
	VersionID  string
	Messages   []domain.ChatMessage
	Retention  int
}

func NewSession(actorID, contractID string, retention int) *Session {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Session{ActorID: actorID, ContractID: contractID, Retention: retention}
}

// FromSnapshot restores a persisted session. Messages are re-clamped and deduplicated
// in case the stored copy was written with a larger retention.
func FromSnapshot(snap domain.ChatSnapshot, retention int) *Session {
	s := NewSession(snap.ActorID, snap.ContractID, retention)
	s.VersionID = snap.VersionID
	for _, m := range snap.Messages {
		s.push(m)
	}
	return s
}

// Pin points the session at a version. A different version clears the history.
// Returns true when the history was reset.
func (s *Session) Pin(versionID string) bool {
	if s.VersionID == versionID {
		return false
	}
	s.VersionID = versionID
	s.Messages = nil
	return true
}

// Reset clears history but keeps the pin.
func (s *Session) Reset() {
	s.Messages = nil
}

// AppendUser appends a user message stamped no earlier than at.
func (s *Session) AppendUser(text string, at time.Time) domain.ChatMessage {
	return s.push(domain.ChatMessage{Role: domain.ChatUser, Text: text, CreatedAt: s.stamp(at)})
}

// AppendAssistant appends an answer with its citations.
func (s *Session) AppendAssistant(answer domain.ChatAnswer, at time.Time) domain.ChatMessage {
	cites := make([]domain.Citation, len(answer.Citations))
	copy(cites, answer.Citations)
	return s.push(domain.ChatMessage{
		Role:      domain.ChatAssistant,
		Text:      answer.Answer,
		Citations: cites,
		CreatedAt: s.stamp(at),
	})
}

func (s *Session) Snapshot(now time.Time) domain.ChatSnapshot {
	msgs := make([]domain.ChatMessage, len(s.Messages))
	copy(msgs, s.Messages)
	return domain.ChatSnapshot{
		ActorID:    s.ActorID,
		ContractID: s.ContractID,
		VersionID:  s.VersionID,
		Messages:   msgs,
		UpdatedAt:  now.UTC().Format(time.RFC3339),
	}
}

// stamp keeps CreatedAt strictly increasing so it can serve as an ordering key.
func (s *Session) stamp(at time.Time) int64 {
	ms := at.UnixMilli()
	if n := len(s.Messages); n > 0 && ms <= s.Messages[n-1].CreatedAt {
		ms = s.Messages[n-1].CreatedAt + 1
	}
	return ms
}

func (s *Session) push(m domain.ChatMessage) domain.ChatMessage {
	if m.Role != domain.ChatAssistant {
		m.Citations = nil
	}
	for _, existing := range s.Messages {
		if existing.CreatedAt == m.CreatedAt {
			return existing
		}
	}
	s.Messages = append(s.Messages, m)
	if over := len(s.Messages) - s.Retention; over > 0 {
		s.Messages = append([]domain.ChatMessage(nil), s.Messages[over:]...)
	}
	return m
}
