package domain

import "encoding/json"

type Contract struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Status     ContractStatus `json:"status" enum:"Draft,NeedsRevision,AwaitingSignatures,Signed,ExpiringSoon,Expired"`
	ExpiryDate *string        `json:"expiry_date,omitempty" format:"date"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
	UpdatedAt  string         `json:"updated_at" format:"date-time"`
	Role       Role           `json:"role,omitempty" enum:"CM,AS,CO"`
}

type ContractVersion struct {
	ID         string `json:"id"`
	ContractID string `json:"contract_id"`
	Number     int    `json:"version_num"`
	FileURL    string `json:"file_url"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// AITask is one unit of asynchronous analysis for a (version, kind) pair.
// Result stays raw until a caller decodes it for its kind.
type AITask struct {
	Status    TaskStatus      `json:"status" enum:"Pending,Running,Completed,Failed"`
	Result    json.RawMessage `json:"result,omitempty"`
	UpdatedAt string          `json:"updated_at" format:"date-time"`
}

// VersionTasks maps a task kind to its task for one version. A kind that was never
// requested is simply absent.
type VersionTasks map[TaskKind]AITask

type Participant struct {
	ID           string            `json:"id"`
	ContractID   string            `json:"contract_id"`
	UserID       string            `json:"user_id"`
	Role         Role              `json:"role" enum:"CM,AS,CO"`
	SigningOrder *int              `json:"signing_order,omitempty"`
	Status       ParticipantStatus `json:"status" enum:"Invited,Signed,Declined,Withdrawn"`
	Email        string            `json:"email,omitempty"`
	Name         string            `json:"name,omitempty"`
}

// ContractDetail is the payload of a contract detail read.
type ContractDetail struct {
	Contract
	Versions     []ContractVersion       `json:"versions"`
	Participants []Participant           `json:"participants"`
	AITasks      map[string]VersionTasks `json:"ai_tasks"`
}

type Citation struct {
	Text string `json:"text"`
	Page int    `json:"page"`
}

type ChatMessage struct {
	Role      ChatRole   `json:"role" enum:"user,assistant"`
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
	// CreatedAt is unix milliseconds and doubles as ordering and dedup key.
	CreatedAt int64 `json:"created_at"`
}

// ChatSnapshot is the persisted form of a chat session.
type ChatSnapshot struct {
	ActorID    string        `json:"actor_id"`
	ContractID string        `json:"contract_id"`
	VersionID  string        `json:"version_id"`
	Messages   []ChatMessage `json:"messages"`
	UpdatedAt  string        `json:"updated_at" format:"date-time"`
}

type ChatAnswer struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

type Event struct {
	ID         int64  `json:"id"`
	UID        string `json:"uid"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ContractID string `json:"contract_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
