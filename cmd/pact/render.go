package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"

	"pactline/internal/domain"
	"pactline/internal/engine"
	"pactline/internal/roster"
	"pactline/internal/taskboard"
)

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printDashboard(dash engine.Dashboard) {
	tiles := newTable()
	tiles.AppendHeader(table.Row{"Status", "Contracts"})
	for _, g := range dash.Groups {
		tiles.AppendRow(table.Row{g.Label, g.Count})
	}
	tiles.Render()

	if len(dash.Contracts) == 0 {
		fmt.Println("no contracts")
		return
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Role", "Expires", "Updated"})
	for _, c := range dash.Contracts {
		expiry := ""
		if c.ExpiryDate != nil {
			expiry = *c.ExpiryDate
		}
		tw.AppendRow(table.Row{c.ID, c.Title, c.Status.Label(), c.Role.Label(), expiry, c.UpdatedAt})
	}
	tw.Render()
}

type summary struct {
	Contract        domain.Contract          `json:"contract"`
	Role            domain.Role              `json:"role,omitempty"`
	Versions        []domain.ContractVersion `json:"versions"`
	MoreVersions    int                      `json:"more_versions"`
	Tasks           []taskboard.KindTask     `json:"tasks"`
	Participants    roster.Groups            `json:"participants"`
	SigningSequence []roster.Step            `json:"signing_sequence"`
	Upload          engine.UploadGate        `json:"upload"`
}

func contractSummary(c *engine.Contract, versions int) summary {
	listing := c.Versions(versions)
	return summary{
		Contract:        c.Detail().Contract,
		Role:            c.Role(),
		Versions:        listing.Versions,
		MoreVersions:    listing.Remaining,
		Tasks:           c.Tasks(),
		Participants:    c.Roster(),
		SigningSequence: c.SigningSequence(),
		Upload:          c.UploadGate(),
	}
}

func printContract(c *engine.Contract, versions int) {
	s := contractSummary(c, versions)
	fmt.Printf("%s  [%s]\n", s.Contract.Title, s.Contract.Status.Label())
	if s.Role != "" {
		fmt.Printf("your role: %s\n", s.Role.Label())
	}
	if s.Upload.Allowed {
		fmt.Println("upload: allowed")
	} else {
		fmt.Printf("upload: %s\n", s.Upload.Reason)
	}

	vt := newTable()
	vt.SetTitle("Versions")
	vt.AppendHeader(table.Row{"#", "ID", "Status", "Uploaded"})
	for _, v := range s.Versions {
		vt.AppendRow(table.Row{v.Number, v.ID, v.Status, v.CreatedAt})
	}
	if s.MoreVersions > 0 {
		vt.AppendFooter(table.Row{"", fmt.Sprintf("+%d more", s.MoreVersions)})
	}
	vt.Render()

	tt := newTable()
	tt.SetTitle("AI tasks (latest version)")
	tt.AppendHeader(table.Row{"Task", "Status", "Updated"})
	for _, kt := range s.Tasks {
		tt.AppendRow(table.Row{kt.Kind.DisplayName(), kt.Task.Status, kt.Task.UpdatedAt})
	}
	tt.Render()

	pt := newTable()
	pt.SetTitle("Participants")
	pt.AppendHeader(table.Row{"Role", "Name", "Email", "Status", "Signs"})
	labels := map[string]string{}
	for _, step := range s.SigningSequence {
		labels[step.Participant.ID] = step.Label
	}
	appendParticipants := func(ps []domain.Participant) {
		for _, p := range ps {
			pt.AppendRow(table.Row{p.Role.Label(), p.Name, p.Email, p.Status, labels[p.ID]})
		}
	}
	appendParticipants(s.Participants.Managers)
	appendParticipants(s.Participants.Signatories)
	appendParticipants(s.Participants.Observers)
	pt.Render()
}

func printAnalysis(a taskboard.Analysis) error {
	if viper.GetBool("json") {
		return printJSON(analysisOutput(a))
	}
	if !a.Present {
		fmt.Printf("%s was not run for this version\n", a.Label)
		return nil
	}
	if a.Err != nil {
		fmt.Printf("%s: %v\n", a.Label, a.Err)
		return nil
	}
	if a.Result == nil {
		fmt.Printf("%s: %s\n", a.Label, a.Status)
		return nil
	}
	v := taskboard.BuildView(a.Result)
	fmt.Println(v.Title)
	if v.Message != "" {
		fmt.Println(v.Message)
	}
	switch {
	case len(v.Clauses) > 0:
		tw := newTable()
		tw.AppendHeader(table.Row{"Type", "Page", "Confidence", "Text"})
		for _, c := range v.Clauses {
			tw.AppendRow(table.Row{c.Type, c.Page, fmt.Sprintf("%.0f%%", c.Confidence*100), c.Text})
		}
		tw.Render()
	case len(v.Risks) > 0:
		tw := newTable()
		tw.AppendHeader(table.Row{"Severity", "Page", "Description", "Recommendation"})
		for _, r := range v.Risks {
			tw.AppendRow(table.Row{strings.ToUpper(string(r.Severity)), r.Page, r.Description, r.Recommendation})
		}
		tw.Render()
	case v.Diff != nil:
		if v.Diff.Summary != "" {
			fmt.Println(v.Diff.Summary)
		}
		tw := newTable()
		tw.AppendHeader(table.Row{"Section", "Old", "New"})
		for _, d := range v.Diff.Diffs {
			tw.AppendRow(table.Row{d.Section, d.Old, d.New})
		}
		tw.Render()
	}
	return nil
}

type analysisJSON struct {
	taskboard.Analysis
	Error string          `json:"error,omitempty"`
	View  *taskboard.View `json:"view,omitempty"`
}

func analysisOutput(a taskboard.Analysis) analysisJSON {
	out := analysisJSON{Analysis: a}
	if a.Err != nil {
		out.Error = a.Err.Error()
	}
	if a.Result != nil {
		v := taskboard.BuildView(a.Result)
		out.View = &v
	}
	return out
}

func printChatMessage(m domain.ChatMessage) {
	who := "you"
	if m.Role == domain.ChatAssistant {
		who = "assistant"
	}
	fmt.Printf("%s: %s\n", who, m.Text)
	for _, c := range m.Citations {
		fmt.Printf("    p.%d  %q\n", c.Page, c.Text)
	}
}

func printEvents(evts []domain.Event) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Time", "Type", "Contract", "Entity", "Actor"})
	for _, e := range evts {
		entity := e.EntityKind
		if e.EntityID != "" {
			entity += ":" + e.EntityID
		}
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.ContractID, entity, e.ActorID})
	}
	tw.Render()
}
