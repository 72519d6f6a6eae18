package domain

import "fmt"

type ContractStatus string

const (
	StatusDraft              ContractStatus = "Draft"
	StatusNeedsRevision      ContractStatus = "NeedsRevision"
	StatusAwaitingSignatures ContractStatus = "AwaitingSignatures"
	StatusSigned             ContractStatus = "Signed"
	StatusExpiringSoon       ContractStatus = "ExpiringSoon"
	StatusExpired            ContractStatus = "Expired"
)

// ContractStatuses lists every status in dashboard order.
var ContractStatuses = []ContractStatus{
	StatusDraft,
	StatusNeedsRevision,
	StatusAwaitingSignatures,
	StatusSigned,
	StatusExpiringSoon,
	StatusExpired,
}

func (s ContractStatus) Valid() bool {
	for _, known := range ContractStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// AllowsNewVersion reports whether the upload action is offered. The backend still
// rejects uploads on its own; this only mirrors its machine.
func (s ContractStatus) AllowsNewVersion() bool {
	return s != StatusSigned && s != StatusExpired
}

func (s ContractStatus) Label() string {
	switch s {
	case StatusNeedsRevision:
		return "Needs Revision"
	case StatusAwaitingSignatures:
		return "Awaiting Signatures"
	case StatusExpiringSoon:
		return "Expiring Soon"
	default:
		return string(s)
	}
}

// StatusGroup is one dashboard tile.
type StatusGroup struct {
	Status    ContractStatus `json:"status"`
	Label     string         `json:"label"`
	Count     int            `json:"count"`
	Contracts []Contract     `json:"contracts"`
}

// GroupByStatus buckets a contract list as received, one group per known status in
// dashboard order. Contracts with an unknown status are dropped from the groups.
func GroupByStatus(contracts []Contract) []StatusGroup {
	idx := make(map[ContractStatus]int, len(ContractStatuses))
	groups := make([]StatusGroup, len(ContractStatuses))
	for i, s := range ContractStatuses {
		idx[s] = i
		groups[i] = StatusGroup{Status: s, Label: s.Label(), Contracts: []Contract{}}
	}
	for _, c := range contracts {
		i, ok := idx[c.Status]
		if !ok {
			continue
		}
		groups[i].Contracts = append(groups[i].Contracts, c)
		groups[i].Count++
	}
	return groups
}

type Role string

const (
	RoleManager   Role = "CM"
	RoleSignatory Role = "AS"
	RoleObserver  Role = "CO"
)

func (r Role) Valid() bool {
	return r == RoleManager || r == RoleSignatory || r == RoleObserver
}

func (r Role) Label() string {
	switch r {
	case RoleManager:
		return "Contract Manager"
	case RoleSignatory:
		return "Authorised Signatory"
	case RoleObserver:
		return "Contract Observer"
	default:
		return string(r)
	}
}

type ParticipantStatus string

const (
	ParticipantInvited   ParticipantStatus = "Invited"
	ParticipantSigned    ParticipantStatus = "Signed"
	ParticipantDeclined  ParticipantStatus = "Declined"
	ParticipantWithdrawn ParticipantStatus = "Withdrawn"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "Pending"
	TaskRunning   TaskStatus = "Running"
	TaskCompleted TaskStatus = "Completed"
	TaskFailed    TaskStatus = "Failed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskRunning, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// EnsureTaskTransition checks a forward move of one task occurrence.
// Terminal states are immutable; a re-run is a new occurrence, not a transition.
func EnsureTaskTransition(oldStatus, newStatus TaskStatus) error {
	switch oldStatus {
	case TaskPending:
		if newStatus == TaskRunning {
			return nil
		}
	case TaskRunning:
		if newStatus == TaskCompleted || newStatus == TaskFailed {
			return nil
		}
	}
	return fmt.Errorf("invalid task status transition %s -> %s", oldStatus, newStatus)
}

type TaskKind string

const (
	KindClauseExtraction TaskKind = "ClauseExtraction"
	KindRiskAssessment   TaskKind = "RiskAssessment"
	KindEmbedding        TaskKind = "Embedding"
	KindDiff             TaskKind = "Diff"
	KindChat             TaskKind = "Chat"
)

// TaskKinds lists every kind in board order.
var TaskKinds = []TaskKind{
	KindClauseExtraction,
	KindRiskAssessment,
	KindEmbedding,
	KindDiff,
	KindChat,
}

func (k TaskKind) Valid() bool {
	for _, known := range TaskKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k TaskKind) DisplayName() string {
	switch k {
	case KindClauseExtraction:
		return "Clause Analysis"
	case KindRiskAssessment:
		return "Risk Assessment"
	case KindEmbedding:
		return "Document Embedding"
	case KindDiff:
		return "Version Comparison"
	case KindChat:
		return "Chat Analysis"
	default:
		return string(k)
	}
}

type ChatRole string

const (
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
)

// Check enforces the result/status pairing of a task record.
func (t AITask) Check() error {
	if !t.Status.Valid() {
		return fmt.Errorf("unknown task status %q", t.Status)
	}
	hasResult := len(t.Result) > 0 && string(t.Result) != "null"
	if t.Status == TaskCompleted && !hasResult {
		return fmt.Errorf("completed task missing result")
	}
	if t.Status != TaskCompleted && hasResult {
		return fmt.Errorf("%s task carries a result", t.Status)
	}
	return nil
}
