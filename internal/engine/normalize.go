package engine

import (
	"strings"

	"github.com/hivecmu/hive/internal/domain"
)

const (
	canonicalChannelName        = "general"
	canonicalChannelDescription = "General discussion for the whole workspace"
	announcementsChannelName    = "announcements"
)

// NormalizeProposal guarantees a channel literally named "general" exists.
// Generators tend to emit "General" or "general-discussion"; the first channel
// whose lowercased name starts with "general" is renamed to exactly "general",
// and if there is none a core "general" channel is inserted at the front.
// Pure: the input is not mutated.
func NormalizeProposal(p domain.StructureProposal) domain.StructureProposal {
	out := p
	out.Channels = make([]domain.ProposedChannel, len(p.Channels))
	copy(out.Channels, p.Channels)

	for _, c := range out.Channels {
		if c.Name == canonicalChannelName {
			return out
		}
	}
	for i, c := range out.Channels {
		if strings.HasPrefix(strings.ToLower(c.Name), canonicalChannelName) {
			out.Channels[i].Name = canonicalChannelName
			return out
		}
	}
	general := domain.ProposedChannel{
		Name:        canonicalChannelName,
		Description: canonicalChannelDescription,
		Type:        "core",
	}
	out.Channels = append([]domain.ProposedChannel{general}, out.Channels...)
	return out
}

// ScoreProposal rates a normalized proposal against the intake. Base 0.5,
// +0.2 when the channel count fits the budget, +0.1 each for a literal
// "general" channel, a literal "announcements" channel, and a rationale
// longer than 50 characters; clamped to [0, 1]. Pure and deterministic.
func ScoreProposal(p domain.StructureProposal, intake domain.IntakeForm) float64 {
	score := 0.5
	if len(p.Channels) <= intake.ChannelBudget {
		score += 0.2
	}
	if hasChannelNamed(p, canonicalChannelName) {
		score += 0.1
	}
	if hasChannelNamed(p, announcementsChannelName) {
		score += 0.1
	}
	if len(p.Rationale) > 50 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	return score
}

func hasChannelNamed(p domain.StructureProposal, name string) bool {
	for _, c := range p.Channels {
		if c.Name == name {
			return true
		}
	}
	return false
}
