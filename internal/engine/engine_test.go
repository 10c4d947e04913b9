package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hivecmu/hive/internal/config"
	"github.com/hivecmu/hive/internal/db"
	"github.com/hivecmu/hive/internal/domain"
	"github.com/hivecmu/hive/internal/generator"
	"github.com/hivecmu/hive/internal/migrate"
)

const testWorkspace = "hive-ws"

type stubGenerator struct {
	proposal domain.StructureProposal
	err      error
}

func (g stubGenerator) Generate(context.Context, generator.IntakeContext) (domain.StructureProposal, error) {
	if g.err != nil {
		return domain.StructureProposal{}, g.err
	}
	return g.proposal, nil
}

func stubProposal() domain.StructureProposal {
	return domain.StructureProposal{
		Channels: []domain.ProposedChannel{
			{Name: "general", Description: "General discussion", Type: "core"},
			{Name: "announcements", Description: "Official updates", Type: "core"},
			{Name: "projects", Type: "topic"},
		},
		Committees: []domain.ProposedCommittee{
			{Name: "events-committee", Description: "Plans recurring events"},
		},
		Rationale:           "Keeps discussion central, separates official updates, and gives project work its own space.",
		EstimatedComplexity: "low",
	}
}

func validIntake() domain.IntakeForm {
	return domain.IntakeForm{
		CommunitySize:      "medium",
		CoreActivities:     []string{"projects", "events"},
		ModerationCapacity: "moderate",
		ChannelBudget:      10,
	}
}

func newTestEnv(t *testing.T, gen generator.Generator) Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default(testWorkspace)
	eng := New(conn, cfg, gen)
	eng.Now = func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) }
	if _, err := eng.InitWorkspace(context.Background(), testWorkspace, "Hive Test", "tester"); err != nil {
		t.Fatalf("init workspace: %v", err)
	}
	return eng
}

func createJob(t *testing.T, eng Engine) domain.StructureJob {
	t.Helper()
	job, err := eng.CreateJob(context.Background(), JobCreateOptions{
		WorkspaceID: testWorkspace,
		ActorID:     "tester",
		Intake:      validIntake(),
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestCreateJobValidatesIntake(t *testing.T) {
	eng := newTestEnv(t, stubGenerator{proposal: stubProposal()})
	ctx := context.Background()

	cases := []domain.IntakeForm{
		{CommunitySize: "medium", ModerationCapacity: "moderate", ChannelBudget: 0},
		{CommunitySize: "gigantic", ModerationCapacity: "moderate", ChannelBudget: 5},
		{CommunitySize: "medium", ModerationCapacity: "none", ChannelBudget: 5},
		{CommunitySize: "medium", ModerationCapacity: "moderate", ChannelBudget: 500},
	}
	for i, intake := range cases {
		_, err := eng.CreateJob(ctx, JobCreateOptions{WorkspaceID: testWorkspace, ActorID: "tester", Intake: intake})
		var engErr *Error
		if !errors.As(err, &engErr) || engErr.Kind != KindValidation {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestCreateJobUnknownWorkspace(t *testing.T) {
	eng := newTestEnv(t, stubGenerator{proposal: stubProposal()})
	_, err := eng.CreateJob(context.Background(), JobCreateOptions{WorkspaceID: "nope", ActorID: "tester", Intake: validIntake()})
	var engErr *Error
	if !errors.As(err, &engErr) || engErr.Kind != KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestGenerateProposalVersionsAreSequential(t *testing.T) {
	eng := newTestEnv(t, stubGenerator{proposal: stubProposal()})
	ctx := context.Background()
	job := createJob(t, eng)

	for want := 1; want <= 3; want++ {
		record, err := eng.GenerateProposal(ctx, job.ID)
		if err != nil {
			t.Fatalf("generate %d: %v", want, err)
		}
		if record.Version != want {
			t.Fatalf("expected version %d, got %d", want, record.Version)
		}
		if record.Score == nil || *record.Score < 0 || *record.Score > 1 {
			t.Fatalf("score missing or out of range: %v", record.Score)
		}
	}

	got, err := eng.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != domain.JobStatusProposed {
		t.Fatalf("expected proposed, got %s", got.Status)
	}

	latest, err := eng.LatestProposal(ctx, job.ID)
	if err != nil {
		t.Fatalf("latest proposal: %v", err)
	}
	if latest.Version != 3 {
		t.Fatalf("expected latest version 3, got %d", latest.Version)
	}
}

func TestGenerateProposalNormalizesOutput(t *testing.T) {
	eng := newTestEnv(t, stubGenerator{proposal: domain.StructureProposal{
		Channels:  []domain.ProposedChannel{{Name: "projects", Type: "topic"}},
		Rationale: "minimal",
	}})
	ctx := context.Background()
	job := createJob(t, eng)

	record, err := eng.GenerateProposal(ctx, job.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(record.Proposal.Channels) != 2 || record.Proposal.Channels[0].Name != "general" {
		t.Fatalf("expected general inserted at front, got %+v", record.Proposal.Channels)
	}
}

func TestGeneratorFailureMarksJobFailed(t *testing.T) {
	genErr := &generator.GenerationError{Issues: []string{"model returned invalid json", "missing channels"}}
	eng := newTestEnv(t, stubGenerator{err: genErr})
	ctx := context.Background()
	job := createJob(t, eng)

	_, err := eng.GenerateProposal(ctx, job.ID)
	var engErr *Error
	if !errors.As(err, &engErr) || engErr.Kind != KindExternal {
		t.Fatalf("expected external error, got %v", err)
	}
	if len(engErr.Issues) != 2 || engErr.Issues[0] != "model returned invalid json" {
		t.Fatalf("generator issues must propagate unchanged, got %v", engErr.Issues)
	}

	got, err := eng.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}

	// failed is terminal: regeneration is refused
	_, err = eng.GenerateProposal(ctx, job.ID)
	if !errors.As(err, &engErr) || engErr.Kind != KindValidation {
		t.Fatalf("expected validation error on terminal job, got %v", err)
	}
}

func TestMarkJobValidatedRequiresProposal(t *testing.T) {
	eng := newTestEnv(t, stubGenerator{proposal: stubProposal()})
	ctx := context.Background()
	job := createJob(t, eng)

	_, err := eng.MarkJobValidated(ctx, job.ID, "tester")
	var engErr *Error
	if !errors.As(err, &engErr) || engErr.Kind != KindValidation {
		t.Fatalf("expected validation error before any proposal, got %v", err)
	}

	if _, err := eng.GenerateProposal(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}
	got, err := eng.MarkJobValidated(ctx, job.ID, "tester")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.Status != domain.JobStatusValidated {
		t.Fatalf("expected validated, got %s", got.Status)
	}
}

func TestApplyProposalCreatesEntities(t *testing.T) {
	eng := newTestEnv(t, stubGenerator{proposal: stubProposal()})
	ctx := context.Background()
	job := createJob(t, eng)
	if _, err := eng.GenerateProposal(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	result, err := eng.ApplyProposal(ctx, job.ID, testWorkspace, "tester")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Job.Status != domain.JobStatusApplied {
		t.Fatalf("expected applied, got %s", result.Job.Status)
	}
	if result.CreatedCount != 4 {
		t.Fatalf("expected 4 created entities, got %d", result.CreatedCount)
	}

	channels, err := eng.Repo.ListChannels(ctx, testWorkspace)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	names := make(map[string]bool, len(channels))
	for _, c := range channels {
		names[c.Name] = true
	}
	for _, want := range []string{"general", "announcements", "projects"} {
		if !names[want] {
			t.Fatalf("missing channel %q, have %v", want, names)
		}
	}

	committees, err := eng.Repo.ListCommittees(ctx, testWorkspace)
	if err != nil {
		t.Fatalf("list committees: %v", err)
	}
	if len(committees) != 1 || committees[0].Name != "events-committee" {
		t.Fatalf("unexpected committees: %+v", committees)
	}

	blueprint, err := eng.Repo.GetBlueprint(ctx, job.ID)
	if err != nil {
		t.Fatalf("get blueprint: %v", err)
	}
	if len(blueprint.Proposal.Channels) != 3 {
		t.Fatalf("blueprint should hold the applied proposal, got %+v", blueprint.Proposal)
	}

	ws, err := eng.Repo.GetWorkspace(ctx, testWorkspace)
	if err != nil {
		t.Fatalf("get workspace: %v", err)
	}
	if !ws.BlueprintApproved {
		t.Fatal("workspace should be marked blueprint-approved after apply")
	}
}

func TestApplyIsIdempotentByName(t *testing.T) {
	eng := newTestEnv(t, stubGenerator{proposal: stubProposal()})
	ctx := context.Background()

	first := createJob(t, eng)
	if _, err := eng.GenerateProposal(ctx, first.ID); err != nil {
		t.Fatalf("generate first: %v", err)
	}
	if _, err := eng.ApplyProposal(ctx, first.ID, testWorkspace, "tester"); err != nil {
		t.Fatalf("apply first: %v", err)
	}

	// a second job proposing the same names creates nothing new
	second := createJob(t, eng)
	if _, err := eng.GenerateProposal(ctx, second.ID); err != nil {
		t.Fatalf("generate second: %v", err)
	}
	result, err := eng.ApplyProposal(ctx, second.ID, testWorkspace, "tester")
	if err != nil {
		t.Fatalf("apply second: %v", err)
	}
	if result.CreatedCount != 0 {
		t.Fatalf("expected no new entities, got %d", result.CreatedCount)
	}
	if result.Job.Status != domain.JobStatusApplied {
		t.Fatalf("expected applied, got %s", result.Job.Status)
	}

	channels, err := eng.Repo.ListChannels(ctx, testWorkspace)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(channels) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(channels))
	}
}

func TestReapplySameJobIsIdempotent(t *testing.T) {
	eng := newTestEnv(t, stubGenerator{proposal: stubProposal()})
	ctx := context.Background()
	job := createJob(t, eng)
	if _, err := eng.GenerateProposal(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	first, err := eng.ApplyProposal(ctx, job.ID, testWorkspace, "tester")
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if first.CreatedCount == 0 {
		t.Fatalf("first apply should create entities, got %+v", first)
	}

	second, err := eng.ApplyProposal(ctx, job.ID, testWorkspace, "tester")
	if err != nil {
		t.Fatalf("second apply must succeed: %v", err)
	}
	if second.CreatedCount != 0 {
		t.Fatalf("second apply should create nothing, got %d", second.CreatedCount)
	}
	if second.CreatedCount > first.CreatedCount {
		t.Fatalf("created count must not grow on re-apply: %d > %d", second.CreatedCount, first.CreatedCount)
	}
	if second.Job.Status != domain.JobStatusApplied {
		t.Fatalf("expected applied, got %s", second.Job.Status)
	}

	blueprint, err := eng.Repo.GetBlueprint(ctx, job.ID)
	if err != nil {
		t.Fatalf("get blueprint: %v", err)
	}
	if len(blueprint.Proposal.Channels) != 3 {
		t.Fatalf("blueprint should survive re-apply, got %+v", blueprint.Proposal)
	}

	channels, err := eng.Repo.ListChannels(ctx, testWorkspace)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(channels) != 3 {
		t.Fatalf("re-apply must not duplicate channels, got %d", len(channels))
	}
}

func TestApplyRejectsMismatchedWorkspace(t *testing.T) {
	eng := newTestEnv(t, stubGenerator{proposal: stubProposal()})
	ctx := context.Background()
	job := createJob(t, eng)
	if _, err := eng.GenerateProposal(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}

	var engErr *Error
	_, err := eng.ApplyProposal(ctx, job.ID, "other-ws", "tester")
	if !errors.As(err, &engErr) || engErr.Kind != KindValidation {
		t.Fatalf("expected validation error for workspace mismatch, got %v", err)
	}
}

func TestApplyRejectsFailedJob(t *testing.T) {
	eng := newTestEnv(t, stubGenerator{err: &generator.GenerationError{Issues: []string{"boom"}}})
	ctx := context.Background()
	job := createJob(t, eng)
	if _, err := eng.GenerateProposal(ctx, job.ID); err == nil {
		t.Fatal("generate should fail")
	}

	var engErr *Error
	_, err := eng.ApplyProposal(ctx, job.ID, testWorkspace, "tester")
	if !errors.As(err, &engErr) || engErr.Kind != KindValidation {
		t.Fatalf("expected validation error for failed job, got %v", err)
	}
}

func TestApplyEmptyProposal(t *testing.T) {
	eng := newTestEnv(t, stubGenerator{proposal: stubProposal()})
	ctx := context.Background()
	job := createJob(t, eng)

	// a stored proposal with no channels or committees at all
	tx, err := eng.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	version, err := eng.Repo.NextProposalVersionTx(ctx, tx, job.ID)
	if err != nil {
		t.Fatalf("next version: %v", err)
	}
	record := domain.ProposalRecord{
		JobID:     job.ID,
		Version:   version,
		Proposal:  domain.StructureProposal{Rationale: "nothing to add"},
		CreatedAt: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC).Format(time.RFC3339),
	}
	if err := eng.Repo.InsertProposalTx(ctx, tx, record); err != nil {
		t.Fatalf("insert proposal: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	result, err := eng.ApplyProposal(ctx, job.ID, testWorkspace, "tester")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.CreatedCount != 0 {
		t.Fatalf("empty proposal should create nothing, got %d", result.CreatedCount)
	}
	if result.Job.Status != domain.JobStatusApplied {
		t.Fatalf("expected applied, got %s", result.Job.Status)
	}

	blueprint, err := eng.Repo.GetBlueprint(ctx, job.ID)
	if err != nil {
		t.Fatalf("blueprint must still be written: %v", err)
	}
	if len(blueprint.Proposal.Channels) != 0 || len(blueprint.Proposal.Committees) != 0 {
		t.Fatalf("blueprint should hold the empty proposal, got %+v", blueprint.Proposal)
	}
}

func TestEventsAreRecordedThroughWorkflow(t *testing.T) {
	eng := newTestEnv(t, stubGenerator{proposal: stubProposal()})
	ctx := context.Background()
	job := createJob(t, eng)
	if _, err := eng.GenerateProposal(ctx, job.ID); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := eng.ApplyProposal(ctx, job.ID, testWorkspace, "tester"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	evts, err := eng.Repo.LatestEvents(ctx, 50, testWorkspace, "", "", "")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	seen := make(map[string]bool, len(evts))
	for _, evt := range evts {
		seen[evt.Type] = true
	}
	for _, want := range []string{"workspace.created", "job.created", "proposal.generated", "structure.applied"} {
		if !seen[want] {
			t.Fatalf("missing event %q, have %v", want, seen)
		}
	}
}
