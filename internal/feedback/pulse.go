package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// PulseFacilitator 不依賴外部模型的主持人，根據參與程度給出回饋
type PulseFacilitator struct{}

func NewPulseFacilitator() *PulseFacilitator {
	return &PulseFacilitator{}
}

// Pulse 最近發言的參與程度
type Pulse struct {
	TotalStatements int
	UniqueSpeakers  int
	Stage           string // just_started | warming_up | active
	Participation   string // high | moderate
	Silent          []string
}

// AnalyzePulse 統計發言與沉默的參與者
func AnalyzePulse(statements []Statement, participants []string) Pulse {
	p := Pulse{TotalStatements: len(statements)}
	if len(statements) == 0 {
		p.Stage = "just_started"
		p.Participation = "moderate"
		p.Silent = participants
		return p
	}

	speakers := lo.Uniq(lo.Map(statements, func(s Statement, _ int) string { return s.Speaker }))
	p.UniqueSpeakers = len(speakers)

	p.Stage = "warming_up"
	if len(statements) > 3 {
		p.Stage = "active"
	}
	p.Participation = "moderate"
	if float64(p.UniqueSpeakers) > float64(len(statements))*0.6 {
		p.Participation = "high"
	}
	p.Silent = lo.Without(participants, speakers...)
	return p
}

func (f *PulseFacilitator) Generate(_ context.Context, req Request) (Response, error) {
	if req.Purpose == PurposeSummary {
		return Response{Text: summarize(req)}, nil
	}
	if len(req.Statements) == 0 {
		return Response{Text: EmptyHistoryText}, nil
	}

	pulse := AnalyzePulse(req.Statements, req.Participants)

	var b strings.Builder
	fmt.Fprintf(&b, "I notice the conversation on %q is %s: %d recent statements from %d participant(s).",
		req.Topic, strings.ReplaceAll(pulse.Stage, "_", " "), pulse.TotalStatements, pulse.UniqueSpeakers)

	if pulse.Participation == "high" {
		b.WriteString(" Participation is well balanced.")
	} else {
		b.WriteString(" A few voices are carrying the conversation.")
	}

	if len(pulse.Silent) > 0 {
		fmt.Fprintf(&b, " Perhaps we could hear from %s next?", strings.Join(pulse.Silent, " and "))
	}

	if req.RoomKind == "debate" {
		b.WriteString(" What is the strongest point of disagreement so far, and what evidence supports each side?")
	} else {
		b.WriteString(" It seems there may be common ground here; what could everyone agree on?")
	}
	return Response{Text: b.String()}, nil
}

func summarize(req Request) string {
	counts := lo.CountValuesBy(req.Statements, func(s Statement) string { return s.Speaker })

	var b strings.Builder
	fmt.Fprintf(&b, "Summary of the %s on %q (%d statements).", req.RoomKind, req.Topic, len(req.Statements))
	for _, name := range req.Participants {
		fmt.Fprintf(&b, "\n- %s: %d statement(s)", name, counts[name])
		if notes := req.Notes[name]; len(notes) > 0 {
			fmt.Fprintf(&b, ", %d language note(s)", len(notes))
		}
	}
	b.WriteString("\nThank you all for a thoughtful conversation.")
	return b.String()
}
