package engine

import (
	"math"
	"testing"

	"github.com/hivecmu/hive/internal/domain"
)

func scoreNear(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func channelNames(p domain.StructureProposal) []string {
	names := make([]string, 0, len(p.Channels))
	for _, c := range p.Channels {
		names = append(names, c.Name)
	}
	return names
}

func TestNormalizeKeepsExistingGeneral(t *testing.T) {
	in := domain.StructureProposal{Channels: []domain.ProposedChannel{
		{Name: "general", Type: "core"},
		{Name: "random", Type: "social"},
	}}
	out := NormalizeProposal(in)
	if len(out.Channels) != 2 || out.Channels[0].Name != "general" {
		t.Fatalf("unexpected channels: %v", channelNames(out))
	}
}

func TestNormalizeRenamesCaseVariantGeneral(t *testing.T) {
	in := domain.StructureProposal{Channels: []domain.ProposedChannel{
		{Name: "General", Type: "core"},
	}}
	out := NormalizeProposal(in)
	if len(out.Channels) != 1 || out.Channels[0].Name != "general" {
		t.Fatalf("case variant must be renamed to the literal name: %v", channelNames(out))
	}
	if in.Channels[0].Name != "General" {
		t.Fatalf("input mutated: %v", channelNames(in))
	}
}

func TestNormalizeRenamesGeneralPrefix(t *testing.T) {
	in := domain.StructureProposal{Channels: []domain.ProposedChannel{
		{Name: "welcome", Type: "core"},
		{Name: "general-discussion", Type: "core"},
		{Name: "general-chat", Type: "social"},
	}}
	out := NormalizeProposal(in)
	if out.Channels[1].Name != "general" {
		t.Fatalf("expected first prefix match renamed, got %v", channelNames(out))
	}
	if out.Channels[2].Name != "general-chat" {
		t.Fatalf("only the first prefix match should be renamed, got %v", channelNames(out))
	}
	// input must not be mutated
	if in.Channels[1].Name != "general-discussion" {
		t.Fatalf("input mutated: %v", channelNames(in))
	}
}

func TestNormalizeInsertsGeneralFirst(t *testing.T) {
	in := domain.StructureProposal{Channels: []domain.ProposedChannel{
		{Name: "projects", Type: "topic"},
	}}
	out := NormalizeProposal(in)
	if len(out.Channels) != 2 {
		t.Fatalf("expected inserted channel, got %v", channelNames(out))
	}
	if out.Channels[0].Name != "general" || out.Channels[0].Type != "core" {
		t.Fatalf("general must be inserted at the front as core, got %+v", out.Channels[0])
	}
}

func TestScoreProposalFullMarks(t *testing.T) {
	p := domain.StructureProposal{
		Channels: []domain.ProposedChannel{
			{Name: "general"},
			{Name: "announcements"},
		},
		Rationale: "A focused layout that keeps discussion central while separating official updates.",
	}
	intake := domain.IntakeForm{ChannelBudget: 5}
	if got := ScoreProposal(p, intake); !scoreNear(got, 1.0) || got > 1.0 {
		t.Fatalf("expected 1.0, got %v", got)
	}
}

func TestScoreProposalBaseOnly(t *testing.T) {
	p := domain.StructureProposal{
		Channels: []domain.ProposedChannel{
			{Name: "a"}, {Name: "b"}, {Name: "c"},
		},
		Rationale: "short",
	}
	intake := domain.IntakeForm{ChannelBudget: 2}
	if got := ScoreProposal(p, intake); !scoreNear(got, 0.5) {
		t.Fatalf("expected 0.5, got %v", got)
	}
}

func TestScoreProposalPartial(t *testing.T) {
	p := domain.StructureProposal{
		Channels:  []domain.ProposedChannel{{Name: "general"}},
		Rationale: "short",
	}
	intake := domain.IntakeForm{ChannelBudget: 3}
	// base 0.5 + budget 0.2 + general 0.1
	if got := ScoreProposal(p, intake); !scoreNear(got, 0.8) {
		t.Fatalf("expected 0.8, got %v", got)
	}
}

func TestJobTransitionGraph(t *testing.T) {
	valid := [][2]string{
		{domain.JobStatusCreated, domain.JobStatusProposed},
		{domain.JobStatusProposed, domain.JobStatusProposed},
		{domain.JobStatusProposed, domain.JobStatusValidated},
		{domain.JobStatusProposed, domain.JobStatusApplying},
		{domain.JobStatusValidated, domain.JobStatusApplying},
		{domain.JobStatusApplying, domain.JobStatusApplied},
		{domain.JobStatusCreated, domain.JobStatusFailed},
		{domain.JobStatusApplying, domain.JobStatusFailed},
	}
	for _, pair := range valid {
		if err := EnsureJobTransition(pair[0], pair[1]); err != nil {
			t.Fatalf("%s -> %s should be valid: %v", pair[0], pair[1], err)
		}
	}
	invalid := [][2]string{
		{domain.JobStatusCreated, domain.JobStatusValidated},
		{domain.JobStatusCreated, domain.JobStatusApplied},
		{domain.JobStatusApplied, domain.JobStatusProposed},
		{domain.JobStatusApplied, domain.JobStatusFailed},
		{domain.JobStatusFailed, domain.JobStatusProposed},
	}
	for _, pair := range invalid {
		if err := EnsureJobTransition(pair[0], pair[1]); err == nil {
			t.Fatalf("%s -> %s should be rejected", pair[0], pair[1])
		}
	}
}
