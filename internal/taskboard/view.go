package taskboard

import "pactline/internal/domain"

// View is the renderable form of a decoded result. Exactly one of the kind specific
// fields is set; Message holds the text for kinds without renderable content.
type View struct {
	Kind    domain.TaskKind `json:"kind"`
	Title   string          `json:"title"`
	Clauses []Clause        `json:"clauses,omitempty"`
	Risks   []Risk          `json:"risks,omitempty"`
	Diff    *DiffResult     `json:"diff,omitempty"`
	Message string          `json:"message,omitempty"`
}

type viewBuilder struct{ v View }

func (b *viewBuilder) ClauseExtraction(r ClauseResult) {
	b.v.Clauses = r.Clauses
	if len(r.Clauses) == 0 {
		b.v.Message = "No clauses found."
	}
}

func (b *viewBuilder) RiskAssessment(r RiskResult) {
	b.v.Risks = r.Risks
	if len(r.Risks) == 0 {
		b.v.Message = "No risks found."
	}
}

func (b *viewBuilder) Embedding(EmbeddingResult) {
	b.v.Message = "Document indexed for chat."
}

func (b *viewBuilder) Diff(r DiffResult) {
	d := r
	b.v.Diff = &d
}

func (b *viewBuilder) Chat(ChatResult) {
	b.v.Message = "Chat analysis completed."
}

// BuildView turns a decoded result into its view.
func BuildView(r Result) View {
	b := &viewBuilder{v: View{Kind: r.Kind(), Title: r.Kind().DisplayName()}}
	r.Accept(b)
	return b.v
}
