package server

import (
	"encoding/json"

	"pactline/internal/domain"
	"pactline/internal/engine"
	"pactline/internal/roster"
	"pactline/internal/taskboard"
)

// Request payloads

type SelectRequest struct {
	Kind domain.TaskKind `json:"kind" enum:"ClauseExtraction,RiskAssessment,Embedding,Diff,Chat"`
}

type ChatSendRequest struct {
	Text string `json:"text"`
}

type DevTokenRequest struct {
	Subject    string `json:"subject"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

// Response payloads

type ContractView struct {
	Contract          domain.Contract          `json:"contract"`
	StatusLabel       string                   `json:"status_label"`
	Role              domain.Role              `json:"role,omitempty"`
	RoleLabel         string                   `json:"role_label,omitempty"`
	LatestVersionID   string                   `json:"latest_version_id"`
	Versions          []domain.ContractVersion `json:"versions"`
	VersionsRemaining int                      `json:"versions_remaining"`
	Tasks             []TaskResponse           `json:"tasks"`
	Selection         *taskboard.Selection     `json:"selection,omitempty"`
	Participants      roster.Groups            `json:"participants"`
	SigningSequence   []roster.Step            `json:"signing_sequence"`
	UploadGate        engine.UploadGate        `json:"upload"`
	Chat              ChatSummary              `json:"chat"`
}

type TaskResponse struct {
	Kind      domain.TaskKind   `json:"kind"`
	Label     string            `json:"label"`
	Status    domain.TaskStatus `json:"status"`
	UpdatedAt string            `json:"updated_at,omitempty"`
	Selected  bool              `json:"selected"`
}

type ChatSummary struct {
	VersionID string `json:"version_id"`
	Messages  int    `json:"messages"`
	Sending   bool   `json:"sending"`
}

type AnalysisResponse struct {
	VersionID string            `json:"version_id"`
	Kind      domain.TaskKind   `json:"kind"`
	Label     string            `json:"label"`
	Present   bool              `json:"present"`
	Status    domain.TaskStatus `json:"status,omitempty"`
	UpdatedAt string            `json:"updated_at,omitempty"`
	// Error is set when a completed result could not be decoded.
	Error string          `json:"error,omitempty"`
	View  *taskboard.View `json:"view,omitempty"`
}

type SelectionResponse struct {
	Selected  bool                 `json:"selected"`
	Selection *taskboard.Selection `json:"selection,omitempty"`
	Analysis  *AnalysisResponse    `json:"analysis,omitempty"`
}

type ChatHistoryResponse struct {
	ContractID string               `json:"contract_id"`
	VersionID  string               `json:"version_id"`
	Messages   []domain.ChatMessage `json:"messages"`
	UpdatedAt  string               `json:"updated_at,omitempty"`
	Sending    bool                 `json:"sending"`
}

type ChatSendResponse struct {
	Message domain.ChatMessage  `json:"message"`
	History ChatHistoryResponse `json:"history"`
}

type UploadResponse struct {
	Version  domain.ContractVersion `json:"version"`
	Contract ContractView           `json:"contract"`
}

type DevTokenResponse struct {
	Token string `json:"token"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	UID        string          `json:"uid"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	ContractID string          `json:"contract_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor int64           `json:"next_cursor,omitempty"`
}

func contractView(c *engine.Contract, versionLimit int) ContractView {
	detail := c.Detail()
	listing := c.Versions(versionLimit)
	role := c.Role()
	sel, selected := c.Selection()
	snap := c.ChatHistory()

	view := ContractView{
		Contract:          detail.Contract,
		StatusLabel:       detail.Status.Label(),
		Role:              role,
		RoleLabel:         role.Label(),
		Versions:          nonNilSlice(listing.Versions),
		VersionsRemaining: listing.Remaining,
		Tasks:             []TaskResponse{},
		Participants:      c.Roster(),
		SigningSequence:   nonNilSlice(c.SigningSequence()),
		UploadGate:        c.UploadGate(),
		Chat: ChatSummary{
			VersionID: snap.VersionID,
			Messages:  len(snap.Messages),
			Sending:   c.ChatSending(),
		},
	}
	if latest, err := c.Latest(); err == nil {
		view.LatestVersionID = latest.ID
	}
	if selected {
		view.Selection = &sel
	}
	for _, kt := range c.Tasks() {
		view.Tasks = append(view.Tasks, TaskResponse{
			Kind:      kt.Kind,
			Label:     kt.Kind.DisplayName(),
			Status:    kt.Task.Status,
			UpdatedAt: kt.Task.UpdatedAt,
			Selected:  selected && sel.Kind == kt.Kind && sel.VersionID == view.LatestVersionID,
		})
	}
	return view
}

func chatHistoryResponse(c *engine.Contract) ChatHistoryResponse {
	snap := c.ChatHistory()
	return ChatHistoryResponse{
		ContractID: snap.ContractID,
		VersionID:  snap.VersionID,
		Messages:   nonNilSlice(snap.Messages),
		UpdatedAt:  snap.UpdatedAt,
		Sending:    c.ChatSending(),
	}
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage(e.Payload)
	}
	return EventResponse{
		ID:         e.ID,
		UID:        e.UID,
		TS:         e.TS,
		Type:       e.Type,
		ContractID: e.ContractID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func contractStatus(s string) domain.ContractStatus { return domain.ContractStatus(s) }

func taskKind(s string) domain.TaskKind { return domain.TaskKind(s) }

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
