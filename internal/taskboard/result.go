package taskboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pactline/internal/domain"
)

var ErrMalformedResult = errors.New("malformed task result")

// MalformedResultError describes why a completed task's result failed shape checks.
type MalformedResultError struct {
	Kind   domain.TaskKind
	Reason string
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("malformed %s result: %s", e.Kind, e.Reason)
}

func (e *MalformedResultError) Is(target error) bool { return target == ErrMalformedResult }

func malformed(kind domain.TaskKind, format string, args ...any) error {
	return &MalformedResultError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

type Clause struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Page       int     `json:"page"`
	Confidence float64 `json:"confidence"`
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Risk struct {
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	RiskyText      string   `json:"risky_text"`
	Recommendation string   `json:"recommendation"`
	Page           int      `json:"page"`
}

type DiffEntry struct {
	Section string `json:"section"`
	Old     string `json:"old"`
	New     string `json:"new"`
}

// Result is a decoded task result. Every kind has exactly one implementation, and
// callers consume it through Handler so a new kind cannot be added without every
// handler growing a method for it.
type Result interface {
	Kind() domain.TaskKind
	Accept(h Handler)
}

// Handler receives a decoded result by kind.
type Handler interface {
	ClauseExtraction(ClauseResult)
	RiskAssessment(RiskResult)
	Embedding(EmbeddingResult)
	Diff(DiffResult)
	Chat(ChatResult)
}

type ClauseResult struct {
	Clauses []Clause `json:"clauses"`
}

type RiskResult struct {
	Risks []Risk `json:"risks"`
}

// EmbeddingResult carries no renderable content.
type EmbeddingResult struct {
	Raw json.RawMessage `json:"raw,omitempty"`
}

type DiffResult struct {
	Summary string      `json:"summary"`
	Diffs   []DiffEntry `json:"diffs"`
}

// ChatResult carries no renderable content.
type ChatResult struct {
	Raw json.RawMessage `json:"raw,omitempty"`
}

func (ClauseResult) Kind() domain.TaskKind    { return domain.KindClauseExtraction }
func (RiskResult) Kind() domain.TaskKind      { return domain.KindRiskAssessment }
func (EmbeddingResult) Kind() domain.TaskKind { return domain.KindEmbedding }
func (DiffResult) Kind() domain.TaskKind      { return domain.KindDiff }
func (ChatResult) Kind() domain.TaskKind      { return domain.KindChat }

func (r ClauseResult) Accept(h Handler)    { h.ClauseExtraction(r) }
func (r RiskResult) Accept(h Handler)      { h.RiskAssessment(r) }
func (r EmbeddingResult) Accept(h Handler) { h.Embedding(r) }
func (r DiffResult) Accept(h Handler)      { h.Diff(r) }
func (r ChatResult) Accept(h Handler)      { h.Chat(r) }

// Decode validates a completed task's raw result against its kind's shape.
func Decode(kind domain.TaskKind, raw json.RawMessage) (Result, error) {
	payload, err := unwrapString(kind, raw)
	if err != nil {
		return nil, err
	}
	if isNull(payload) {
		return nil, malformed(kind, "result is empty")
	}
	switch kind {
	case domain.KindClauseExtraction:
		return decodeClauses(payload)
	case domain.KindRiskAssessment:
		return decodeRisks(payload)
	case domain.KindDiff:
		return decodeDiff(payload)
	case domain.KindEmbedding:
		return EmbeddingResult{Raw: payload}, nil
	case domain.KindChat:
		return ChatResult{Raw: payload}, nil
	default:
		return nil, fmt.Errorf("unknown task kind %q", kind)
	}
}

// unwrapString accepts results that were stored as a JSON string holding JSON.
func unwrapString(kind domain.TaskKind, raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, malformed(kind, "invalid string payload: %v", err)
	}
	inner := bytes.TrimSpace([]byte(s))
	if !json.Valid(inner) {
		return nil, malformed(kind, "string payload is not JSON")
	}
	return inner, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// listPayload returns the list either given directly or wrapped as {field: [...]}.
func listPayload(kind domain.TaskKind, raw json.RawMessage, field string) ([]json.RawMessage, error) {
	if raw[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, malformed(kind, "invalid object: %v", err)
		}
		inner, ok := wrapper[field]
		if !ok {
			return nil, malformed(kind, "missing %q list", field)
		}
		raw = bytes.TrimSpace(inner)
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, malformed(kind, "expected a list")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, malformed(kind, "invalid list: %v", err)
	}
	return items, nil
}

type clauseWire struct {
	Type       *string  `json:"type"`
	Text       *string  `json:"text"`
	Page       *int     `json:"page"`
	Confidence *float64 `json:"confidence"`
}

func decodeClauses(raw json.RawMessage) (Result, error) {
	kind := domain.KindClauseExtraction
	items, err := listPayload(kind, raw, "clauses")
	if err != nil {
		return nil, err
	}
	out := ClauseResult{Clauses: make([]Clause, 0, len(items))}
	for i, item := range items {
		var w clauseWire
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, malformed(kind, "clause %d: %v", i, err)
		}
		switch {
		case w.Type == nil || strings.TrimSpace(*w.Type) == "":
			return nil, malformed(kind, "clause %d: type required", i)
		case w.Text == nil:
			return nil, malformed(kind, "clause %d: text required", i)
		case w.Page == nil || *w.Page < 1:
			return nil, malformed(kind, "clause %d: page must be >= 1", i)
		case w.Confidence == nil || *w.Confidence < 0 || *w.Confidence > 1:
			return nil, malformed(kind, "clause %d: confidence must be within [0,1]", i)
		}
		out.Clauses = append(out.Clauses, Clause{Type: *w.Type, Text: *w.Text, Page: *w.Page, Confidence: *w.Confidence})
	}
	return out, nil
}

type riskWire struct {
	Severity       *string `json:"severity"`
	Description    *string `json:"description"`
	RiskyText      *string `json:"risky_text"`
	Recommendation *string `json:"recommendation"`
	Page           *int    `json:"page"`
}

func parseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	}
	return "", false
}

func decodeRisks(raw json.RawMessage) (Result, error) {
	kind := domain.KindRiskAssessment
	items, err := listPayload(kind, raw, "risks")
	if err != nil {
		return nil, err
	}
	out := RiskResult{Risks: make([]Risk, 0, len(items))}
	for i, item := range items {
		var w riskWire
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, malformed(kind, "risk %d: %v", i, err)
		}
		if w.Severity == nil {
			return nil, malformed(kind, "risk %d: severity required", i)
		}
		sev, ok := parseSeverity(*w.Severity)
		switch {
		case !ok:
			return nil, malformed(kind, "risk %d: unknown severity %q", i, *w.Severity)
		case w.Description == nil:
			return nil, malformed(kind, "risk %d: description required", i)
		case w.RiskyText == nil:
			return nil, malformed(kind, "risk %d: risky_text required", i)
		case w.Recommendation == nil:
			return nil, malformed(kind, "risk %d: recommendation required", i)
		case w.Page == nil || *w.Page < 1:
			return nil, malformed(kind, "risk %d: page must be >= 1", i)
		}
		out.Risks = append(out.Risks, Risk{
			Severity:       sev,
			Description:    *w.Description,
			RiskyText:      *w.RiskyText,
			Recommendation: *w.Recommendation,
			Page:           *w.Page,
		})
	}
	return out, nil
}

type diffWire struct {
	Summary *string `json:"summary"`
	Diffs   *[]struct {
		Section *string `json:"section"`
		Old     *string `json:"old"`
		New     *string `json:"new"`
	} `json:"diffs"`
}

func decodeDiff(raw json.RawMessage) (Result, error) {
	kind := domain.KindDiff
	if raw[0] != '{' {
		return nil, malformed(kind, "expected an object")
	}
	var w diffWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, malformed(kind, "%v", err)
	}
	if w.Summary == nil {
		return nil, malformed(kind, "summary required")
	}
	if w.Diffs == nil {
		return nil, malformed(kind, "diffs required")
	}
	out := DiffResult{Summary: *w.Summary, Diffs: make([]DiffEntry, 0, len(*w.Diffs))}
	for i, d := range *w.Diffs {
		if d.Section == nil || d.Old == nil || d.New == nil {
			return nil, malformed(kind, "diff %d: section, old and new required", i)
		}
		out.Diffs = append(out.Diffs, DiffEntry{Section: *d.Section, Old: *d.Old, New: *d.New})
	}
	return out, nil
}
