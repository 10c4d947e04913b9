package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hivecmu/hive/internal/config"
	"github.com/hivecmu/hive/internal/domain"
)

// Heuristic is a deterministic offline generator. It proposes the core
// channels from the workspace config plus one topic channel per core
// activity, within the channel budget, and committees sized to the declared
// moderation capacity. Used when no AI provider is configured and in tests.
type Heuristic struct {
	Core map[string]config.CoreChannel
}

func NewHeuristic(cfg *config.Config) Heuristic {
	var core map[string]config.CoreChannel
	if cfg != nil {
		core = cfg.Channels.Core
	}
	return Heuristic{Core: core}
}

func (h Heuristic) Generate(_ context.Context, in IntakeContext) (domain.StructureProposal, error) {
	if in.ChannelBudget < 1 {
		return domain.StructureProposal{}, failf("channel budget must be positive, got %d", in.ChannelBudget)
	}

	var channels []domain.ProposedChannel
	coreNames := make([]string, 0, len(h.Core))
	for name := range h.Core {
		coreNames = append(coreNames, name)
	}
	sort.Strings(coreNames)
	for _, name := range coreNames {
		if len(channels) >= in.ChannelBudget {
			break
		}
		entry := h.Core[name]
		channels = append(channels, domain.ProposedChannel{
			Name:        name,
			Description: entry.Description,
			Type:        "core",
			IsPrivate:   entry.IsPrivate,
		})
	}
	for _, activity := range in.CoreActivities {
		if len(channels) >= in.ChannelBudget {
			break
		}
		name := Slug(activity)
		if name == "" || hasChannel(channels, name) {
			continue
		}
		channels = append(channels, domain.ProposedChannel{
			Name:        name,
			Description: fmt.Sprintf("Discussion and coordination for %s", activity),
			Type:        "topic",
		})
	}

	var committees []domain.ProposedCommittee
	switch in.ModerationCapacity {
	case "heavy":
		committees = append(committees,
			domain.ProposedCommittee{Name: "moderation", Description: "Handles reports and keeps conversations healthy"},
			domain.ProposedCommittee{Name: "onboarding", Description: "Welcomes and orients new members"},
		)
	case "moderate":
		committees = append(committees,
			domain.ProposedCommittee{Name: "moderation", Description: "Handles reports and keeps conversations healthy"},
		)
	}

	return domain.StructureProposal{
		Channels:            channels,
		Committees:          committees,
		Rationale:           h.rationale(in, len(channels)),
		EstimatedComplexity: complexityFor(len(channels), len(committees)),
	}, nil
}

func (h Heuristic) rationale(in IntakeContext, channelCount int) string {
	activities := strings.Join(in.CoreActivities, ", ")
	if activities == "" {
		activities = "general collaboration"
	}
	return fmt.Sprintf("Proposed %d channels for a %s community focused on %s, within the requested budget of %d.",
		channelCount, in.CommunitySize, activities, in.ChannelBudget)
}

func hasChannel(channels []domain.ProposedChannel, name string) bool {
	for _, c := range channels {
		if c.Name == name {
			return true
		}
	}
	return false
}

func complexityFor(channels, committees int) string {
	switch {
	case channels+committees > 12:
		return "high"
	case channels+committees > 6:
		return "medium"
	default:
		return "low"
	}
}

// Slug lowercases a label and collapses non-alphanumerics to single dashes.
func Slug(label string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
