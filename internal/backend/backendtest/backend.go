// Package backendtest runs an in-memory contract backend for tests.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pactline/internal/domain"
)

// Backend serves the contract endpoints from memory. New versions get Pending tasks;
// tests move them forward with Advance, which enforces the task status machine.
type Backend struct {
	Server *httptest.Server
	// Token, when set, is the only accepted bearer token.
	Token string

	mu        sync.Mutex
	contracts map[string]*domain.ContractDetail
	order     []string
	hits      map[string]int
	chatFail  int
	chatHold  chan struct{}
	now       func() time.Time
}

func New(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		contracts: map[string]*domain.ContractDetail{},
		hits:      map[string]int{},
		now:       time.Now,
	}
	b.Server = httptest.NewServer(b.routes())
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) URL() string { return b.Server.URL }

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.auth)
	r.Get("/contracts/me", b.listContracts)
	r.Get("/contracts/{id}", b.getContract)
	r.Post("/contracts/{id}/versions", b.createVersion)
	r.Post("/contracts/{id}/versions/{vid}/chat", b.chat)
	return r
}

func (b *Backend) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Token != "" && r.Header.Get("Authorization") != "Bearer "+b.Token {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AddContract registers a contract with a first version and returns that version.
func (b *Backend) AddContract(c domain.Contract, participants ...domain.Participant) domain.ContractVersion {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = domain.StatusDraft
	}
	ts := b.ts()
	c.CreatedAt, c.UpdatedAt = ts, ts
	for i := range participants {
		participants[i].ContractID = c.ID
		if participants[i].ID == "" {
			participants[i].ID = uuid.NewString()
		}
	}
	d := &domain.ContractDetail{
		Contract:     c,
		Versions:     []domain.ContractVersion{},
		Participants: participants,
		AITasks:      map[string]domain.VersionTasks{},
	}
	b.contracts[c.ID] = d
	b.order = append(b.order, c.ID)
	return b.addVersionLocked(d)
}

// SetStatus moves a contract to another lifecycle status.
func (b *Backend) SetStatus(contractID string, status domain.ContractStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.contracts[contractID]; ok {
		d.Status = status
		d.UpdatedAt = b.ts()
	}
}

// Advance moves one task forward. Result is only stored for Completed.
func (b *Backend) Advance(contractID, versionID string, kind domain.TaskKind, status domain.TaskStatus, result json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.contracts[contractID]
	if !ok {
		return fmt.Errorf("contract %s not found", contractID)
	}
	vt, ok := d.AITasks[versionID]
	if !ok {
		return fmt.Errorf("version %s has no tasks", versionID)
	}
	cur, ok := vt[kind]
	if !ok {
		return fmt.Errorf("task %s not requested for version %s", kind, versionID)
	}
	if err := domain.EnsureTaskTransition(cur.Status, status); err != nil {
		return err
	}
	next := domain.AITask{Status: status, UpdatedAt: b.ts()}
	if status == domain.TaskCompleted {
		next.Result = result
	}
	vt[kind] = next
	return nil
}

// Complete runs a Pending task through Running to Completed.
func (b *Backend) Complete(contractID, versionID string, kind domain.TaskKind, result json.RawMessage) error {
	if err := b.Advance(contractID, versionID, kind, domain.TaskRunning, nil); err != nil {
		return err
	}
	return b.Advance(contractID, versionID, kind, domain.TaskCompleted, result)
}

// Hits counts requests by route pattern, e.g. "GET /contracts/{id}".
func (b *Backend) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

// FailChat makes the next chat request fail with status.
func (b *Backend) FailChat(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatFail = status
}

// HoldChat blocks chat answers until the returned function is called.
func (b *Backend) HoldChat() (release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan struct{})
	b.chatHold = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (b *Backend) hit(r *http.Request) {
	pattern := chi.RouteContext(r.Context()).RoutePattern()
	b.hits[r.Method+" "+pattern]++
}

func (b *Backend) ts() string {
	return b.now().UTC().Format(time.RFC3339)
}

func (b *Backend) addVersionLocked(d *domain.ContractDetail) domain.ContractVersion {
	num := 1
	for _, v := range d.Versions {
		if v.Number >= num {
			num = v.Number + 1
		}
	}
	v := domain.ContractVersion{
		ID:         uuid.NewString(),
		ContractID: d.ID,
		Number:     num,
		FileURL:    fmt.Sprintf("contracts/%s/v%d.pdf", d.ID, num),
		Status:     "Uploaded",
		CreatedAt:  b.ts(),
	}
	d.Versions = append(d.Versions, v)
	tasks := domain.VersionTasks{
		domain.KindClauseExtraction: {Status: domain.TaskPending, UpdatedAt: v.CreatedAt},
		domain.KindRiskAssessment:   {Status: domain.TaskPending, UpdatedAt: v.CreatedAt},
		domain.KindEmbedding:        {Status: domain.TaskPending, UpdatedAt: v.CreatedAt},
	}
	if num > 1 {
		tasks[domain.KindDiff] = domain.AITask{Status: domain.TaskPending, UpdatedAt: v.CreatedAt}
	}
	d.AITasks[v.ID] = tasks
	return v
}

func (b *Backend) listContracts(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hit(r)
	status := domain.ContractStatus(r.URL.Query().Get("status"))
	out := []domain.Contract{}
	for _, id := range b.order {
		c := b.contracts[id].Contract
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"contracts": out})
}

func (b *Backend) getContract(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hit(r)
	d, ok := b.contracts[chi.URLParam(r, "id")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Contract not found")
		return
	}
	// Versions are served oldest first; clients do their own ordering.
	versions := append([]domain.ContractVersion(nil), d.Versions...)
	sort.SliceStable(versions, func(i, j int) bool { return versions[i].Number < versions[j].Number })
	out := *d
	out.Versions = versions
	out.AITasks = make(map[string]domain.VersionTasks, len(d.AITasks))
	for vid, vt := range d.AITasks {
		cp := domain.VersionTasks{}
		for k, t := range vt {
			cp[k] = t
		}
		out.AITasks[vid] = cp
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createVersion(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.hit(r)
	d, ok := b.contracts[chi.URLParam(r, "id")]
	b.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Contract not found")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(hdr.Filename), ".pdf") {
		writeDetail(w, http.StatusBadRequest, "Only PDF files are allowed")
		return
	}
	if _, err := io.Copy(io.Discard, file); err != nil {
		writeDetail(w, http.StatusBadRequest, "could not read file")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !d.Status.AllowsNewVersion() {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Cannot upload a new version to a %s contract", d.Status))
		return
	}
	v := b.addVersionLocked(d)
	d.UpdatedAt = v.CreatedAt
	writeJSON(w, http.StatusCreated, v)
}

func (b *Backend) chat(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.hit(r)
	d, ok := b.contracts[chi.URLParam(r, "id")]
	fail := b.chatFail
	b.chatFail = 0
	hold := b.chatHold
	found := false
	if ok {
		vid := chi.URLParam(r, "vid")
		for _, v := range d.Versions {
			if v.ID == vid {
				found = true
			}
		}
	}
	b.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Contract not found")
		return
	}
	if hold != nil {
		<-hold
	}
	if fail != 0 {
		writeDetail(w, fail, "Chat service unavailable")
		return
	}
	if !found {
		writeDetail(w, http.StatusNotFound, "Version not found")
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Text) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "text is required")
		return
	}
	writeJSON(w, http.StatusOK, domain.ChatAnswer{
		Answer:    "Answer to: " + body.Text,
		Citations: []domain.Citation{{Text: body.Text, Page: 1}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
