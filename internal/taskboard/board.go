// Package taskboard tracks AI task state per version and the task selected for display.
package taskboard

import (
	"pactline/internal/domain"
)

// Selection is the task currently shown. The zero value means nothing is selected.
type Selection struct {
	VersionID string          `json:"version_id"`
	Kind      domain.TaskKind `json:"kind"`
}

func (s Selection) Empty() bool { return s.VersionID == "" && s.Kind == "" }

// Board is not safe for concurrent use; the owning contract session serializes access.
type Board struct {
	tasks     map[string]domain.VersionTasks
	latest    string
	selection Selection
	// clauseSeen is the last observed ClauseExtraction status per version.
	clauseSeen map[string]domain.TaskStatus
	// fired marks versions whose clause completion edge has been consumed.
	fired map[string]bool
}

func New() *Board {
	return &Board{
		tasks:      map[string]domain.VersionTasks{},
		clauseSeen: map[string]domain.TaskStatus{},
		fired:      map[string]bool{},
	}
}

// Observe replaces the board with a fresh backend read and applies auto-selection.
// ClauseExtraction of the latest version is selected when its status first becomes
// Completed and nothing is selected. The edge is consumed even when something else is
// selected, so later reads of the same version never re-select. A change of latest
// version clears the selection. Returns true when auto-selection happened.
func (b *Board) Observe(latestVersionID string, tasks map[string]domain.VersionTasks) bool {
	next := make(map[string]domain.VersionTasks, len(tasks))
	for vid, vt := range tasks {
		cp := make(domain.VersionTasks, len(vt))
		for k, t := range vt {
			cp[k] = t
		}
		next[vid] = cp
	}
	b.tasks = next

	if b.latest != latestVersionID {
		if b.latest != "" {
			b.selection = Selection{}
		}
		b.latest = latestVersionID
	}
	if latestVersionID == "" {
		return false
	}

	prev := b.clauseSeen[latestVersionID]
	cur := domain.TaskStatus("")
	if t, ok := next[latestVersionID][domain.KindClauseExtraction]; ok {
		cur = t.Status
	}
	b.clauseSeen[latestVersionID] = cur

	if cur != domain.TaskCompleted || prev == domain.TaskCompleted || b.fired[latestVersionID] {
		return false
	}
	b.fired[latestVersionID] = true
	if !b.selection.Empty() {
		return false
	}
	b.selection = Selection{VersionID: latestVersionID, Kind: domain.KindClauseExtraction}
	return true
}

// Consumed reports whether the clause completion edge of a version already fired.
func (b *Board) Consumed(versionID string) bool { return b.fired[versionID] }

// MarkConsumed restores auto-selection history recorded by an earlier session.
func (b *Board) MarkConsumed(versionIDs ...string) {
	for _, id := range versionIDs {
		b.fired[id] = true
	}
}

// Latest is the version id passed to the last Observe.
func (b *Board) Latest() string { return b.latest }

// Task reports the task of kind for a version. A kind never requested is absent,
// which is distinct from Pending.
func (b *Board) Task(versionID string, kind domain.TaskKind) (domain.AITask, bool) {
	t, ok := b.tasks[versionID][kind]
	return t, ok
}

// Tasks returns the tasks present for a version in board order.
func (b *Board) Tasks(versionID string) []KindTask {
	out := []KindTask{}
	for _, k := range domain.TaskKinds {
		if t, ok := b.tasks[versionID][k]; ok {
			out = append(out, KindTask{Kind: k, Task: t})
		}
	}
	return out
}

type KindTask struct {
	Kind domain.TaskKind `json:"kind"`
	Task domain.AITask   `json:"task"`
}

// Select toggles the selection: selecting the current selection clears it.
// Returns the resulting selection.
func (b *Board) Select(versionID string, kind domain.TaskKind) Selection {
	want := Selection{VersionID: versionID, Kind: kind}
	if b.selection == want {
		b.selection = Selection{}
	} else {
		b.selection = want
	}
	return b.selection
}

func (b *Board) Selection() (Selection, bool) {
	return b.selection, !b.selection.Empty()
}

func (b *Board) ClearSelection() { b.selection = Selection{} }

// Invalidate forgets all task state and the selection, keeping per-version
// auto-selection history.
func (b *Board) Invalidate() {
	b.tasks = map[string]domain.VersionTasks{}
	b.selection = Selection{}
}

// Analysis is the display state of one task. Err carries a malformed result inline
// so one bad task never prevents rendering the others.
type Analysis struct {
	VersionID string            `json:"version_id"`
	Kind      domain.TaskKind   `json:"kind"`
	Label     string            `json:"label"`
	Present   bool              `json:"present"`
	Status    domain.TaskStatus `json:"status,omitempty"`
	UpdatedAt string            `json:"updated_at,omitempty"`
	Result    Result            `json:"result,omitempty"`
	Err       error             `json:"-"`
}

func (b *Board) Analysis(versionID string, kind domain.TaskKind) Analysis {
	a := Analysis{VersionID: versionID, Kind: kind, Label: kind.DisplayName()}
	t, ok := b.Task(versionID, kind)
	if !ok {
		return a
	}
	a.Present = true
	a.Status = t.Status
	a.UpdatedAt = t.UpdatedAt
	if err := t.Check(); err != nil {
		a.Err = &MalformedResultError{Kind: kind, Reason: err.Error()}
		return a
	}
	if t.Status != domain.TaskCompleted {
		return a
	}
	res, err := Decode(kind, t.Result)
	if err != nil {
		a.Err = err
		return a
	}
	a.Result = res
	return a
}

// SelectedAnalysis is Analysis for the current selection.
func (b *Board) SelectedAnalysis() (Analysis, bool) {
	sel, ok := b.Selection()
	if !ok {
		return Analysis{}, false
	}
	return b.Analysis(sel.VersionID, sel.Kind), true
}
