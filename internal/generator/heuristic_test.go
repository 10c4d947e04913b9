package generator

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hivecmu/hive/internal/config"
)

func testIntake() IntakeContext {
	return IntakeContext{
		WorkspaceName:      "Hive Test",
		CommunitySize:      "medium",
		CoreActivities:     []string{"Project Work", "Social Events"},
		ModerationCapacity: "moderate",
		ChannelBudget:      10,
	}
}

func TestHeuristicIsDeterministic(t *testing.T) {
	h := NewHeuristic(config.Default("ws"))
	ctx := context.Background()
	first, err := h.Generate(ctx, testIntake())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := h.Generate(ctx, testIntake())
	if err != nil {
		t.Fatalf("generate again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same intake must yield the same proposal:\n%+v\n%+v", first, second)
	}
}

func TestHeuristicProposesCoreAndActivityChannels(t *testing.T) {
	h := NewHeuristic(config.Default("ws"))
	p, err := h.Generate(context.Background(), testIntake())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	names := make(map[string]string, len(p.Channels))
	for _, c := range p.Channels {
		names[c.Name] = c.Type
	}
	if names["general"] != "core" || names["announcements"] != "core" {
		t.Fatalf("core channels missing or mistyped: %v", names)
	}
	if names["project-work"] != "topic" || names["social-events"] != "topic" {
		t.Fatalf("activity channels missing or mistyped: %v", names)
	}
	if len(p.Committees) != 1 || p.Committees[0].Name != "moderation" {
		t.Fatalf("moderate capacity should yield one committee, got %+v", p.Committees)
	}
	if p.Rationale == "" || p.EstimatedComplexity == "" {
		t.Fatalf("rationale and complexity must be set: %+v", p)
	}
}

func TestHeuristicRespectsBudget(t *testing.T) {
	h := NewHeuristic(config.Default("ws"))
	in := testIntake()
	in.ChannelBudget = 2
	p, err := h.Generate(context.Background(), in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(p.Channels) != 2 {
		t.Fatalf("expected 2 channels within budget, got %d", len(p.Channels))
	}
}

func TestHeuristicSkipsDuplicateActivities(t *testing.T) {
	h := NewHeuristic(config.Default("ws"))
	in := testIntake()
	in.CoreActivities = []string{"General", "general", "Project Work"}
	p, err := h.Generate(context.Background(), in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	count := 0
	for _, c := range p.Channels {
		if c.Name == "general" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected a single general channel, got %d", count)
	}
}

func TestHeuristicHeavyModeration(t *testing.T) {
	h := NewHeuristic(config.Default("ws"))
	in := testIntake()
	in.ModerationCapacity = "heavy"
	p, err := h.Generate(context.Background(), in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(p.Committees) != 2 {
		t.Fatalf("heavy capacity should yield two committees, got %+v", p.Committees)
	}
}

func TestHeuristicRejectsNonPositiveBudget(t *testing.T) {
	h := NewHeuristic(config.Default("ws"))
	in := testIntake()
	in.ChannelBudget = 0
	_, err := h.Generate(context.Background(), in)
	var genErr *GenerationError
	if !errors.As(err, &genErr) || len(genErr.Issues) == 0 {
		t.Fatalf("expected generation error with issues, got %v", err)
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Project Work":     "project-work",
		"  Social Events ": "social-events",
		"Q&A":              "q-a",
		"---":              "",
		"AlreadySlugged":   "alreadyslugged",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}
