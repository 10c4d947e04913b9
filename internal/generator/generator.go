package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/hivecmu/hive/internal/domain"
)

// IntakeContext is the questionnaire context handed to a generator.
type IntakeContext struct {
	WorkspaceName      string
	CommunitySize      string
	CoreActivities     []string
	ModerationCapacity string
	ChannelBudget      int
	AdditionalContext  string
}

// Generator produces a candidate communication structure for a workspace.
// Implementations may be slow (seconds); callers bound the context.
type Generator interface {
	Generate(ctx context.Context, in IntakeContext) (domain.StructureProposal, error)
}

// GenerationError carries the generator's issue list unchanged to the caller.
type GenerationError struct {
	Issues []string
}

func (e *GenerationError) Error() string {
	if len(e.Issues) == 0 {
		return "generation failed"
	}
	return "generation failed: " + strings.Join(e.Issues, "; ")
}

func failf(format string, args ...any) *GenerationError {
	return &GenerationError{Issues: []string{fmt.Sprintf(format, args...)}}
}
