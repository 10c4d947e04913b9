package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hivecmu/hive/internal/config"
	"github.com/hivecmu/hive/internal/domain"
	"github.com/hivecmu/hive/internal/events"
	"github.com/hivecmu/hive/internal/generator"
	"github.com/hivecmu/hive/internal/repo"
)

// Engine is the structure-proposal workflow: intake to versioned proposal to
// transactional apply. It holds no per-job state; operations for different
// jobs run concurrently.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Generator generator.Generator
	Config    *config.Config
	Log       *zap.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config, gen generator.Generator) Engine {
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Generator: gen,
		Config:    cfg,
		Log:       zap.NewNop(),
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

// InitWorkspace creates a workspace row with its config seeded.
func (e Engine) InitWorkspace(ctx context.Context, workspaceID, name, actorID string) (domain.Workspace, error) {
	if name == "" {
		name = workspaceID
	}
	w := domain.Workspace{
		ID:        workspaceID,
		Name:      name,
		Status:    "active",
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workspace{}, internalErr(err)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkspaceTx(ctx, tx, w); err != nil {
		return domain.Workspace{}, internalErr(err)
	}
	cfg := e.Config
	if cfg == nil || cfg.Workspace.ID != workspaceID {
		cfg = config.Default(workspaceID)
	}
	if err := e.Repo.UpsertWorkspaceConfigTx(ctx, tx, workspaceID, cfg); err != nil {
		return domain.Workspace{}, internalErr(err)
	}
	if err := e.Events.Append(ctx, tx, "workspace.created", w.ID, "workspace", w.ID, actorID, events.EventPayload{"name": w.Name}); err != nil {
		return domain.Workspace{}, internalErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, internalErr(err)
	}
	return w, nil
}

// JobCreateOptions are parameters for starting a structure job.
type JobCreateOptions struct {
	WorkspaceID string
	ActorID     string
	Intake      domain.IntakeForm
}

// CreateJob inserts the job row and its intake form in one transaction. The
// intake is written once and never updated.
func (e Engine) CreateJob(ctx context.Context, opts JobCreateOptions) (domain.StructureJob, error) {
	if opts.WorkspaceID == "" {
		return domain.StructureJob{}, validationErr("workspace is required")
	}
	if err := e.validateIntake(opts.Intake); err != nil {
		return domain.StructureJob{}, err
	}
	if _, err := e.Repo.GetWorkspace(ctx, opts.WorkspaceID); err != nil {
		return domain.StructureJob{}, wrapStorage(err, "workspace "+opts.WorkspaceID)
	}
	now := e.now().UTC().Format(time.RFC3339)
	j := domain.StructureJob{
		ID:          uuid.New().String(),
		WorkspaceID: opts.WorkspaceID,
		Status:      domain.JobStatusCreated,
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	intake := opts.Intake
	intake.JobID = j.ID

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StructureJob{}, internalErr(err)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertJobTx(ctx, tx, j); err != nil {
		return domain.StructureJob{}, internalErr(err)
	}
	if err := e.Repo.InsertIntakeTx(ctx, tx, intake); err != nil {
		return domain.StructureJob{}, internalErr(err)
	}
	if err := e.Events.Append(ctx, tx, "job.created", j.WorkspaceID, "job", j.ID, opts.ActorID, events.EventPayload{
		"community_size": intake.CommunitySize,
		"channel_budget": intake.ChannelBudget,
	}); err != nil {
		return domain.StructureJob{}, internalErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.StructureJob{}, internalErr(err)
	}
	return j, nil
}

func (e Engine) validateIntake(f domain.IntakeForm) error {
	if f.ChannelBudget < 1 {
		return validationErr("channel budget must be a positive integer")
	}
	if e.Config != nil {
		if min := e.Config.Intake.MinChannelBudget; min > 0 && f.ChannelBudget < min {
			return validationErr("channel budget %d is below the minimum of %d", f.ChannelBudget, min)
		}
		if max := e.Config.Intake.MaxChannelBudget; max > 0 && f.ChannelBudget > max {
			return validationErr("channel budget %d exceeds the maximum of %d", f.ChannelBudget, max)
		}
	}
	switch f.CommunitySize {
	case "small", "medium", "large":
	default:
		return validationErr("community size must be small, medium, or large")
	}
	switch f.ModerationCapacity {
	case "light", "moderate", "heavy":
	default:
		return validationErr("moderation capacity must be light, moderate, or heavy")
	}
	return nil
}

// GenerateProposal runs the generator for a job and appends the next proposal
// version. Generator failures flip the job to failed (best-effort) and the
// generator's issues propagate unchanged. Version allocation and insert share
// one transaction; the status transition deliberately does not.
func (e Engine) GenerateProposal(ctx context.Context, jobID string) (domain.ProposalRecord, error) {
	if e.Generator == nil {
		return domain.ProposalRecord{}, internalErr(errors.New("no generator configured"))
	}
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return domain.ProposalRecord{}, wrapStorage(err, "job "+jobID)
	}
	if IsTerminalStatus(job.Status) {
		return domain.ProposalRecord{}, validationErr("job %s is %s and cannot be regenerated", jobID, job.Status)
	}
	intake, err := e.Repo.GetIntake(ctx, jobID)
	if err != nil {
		return domain.ProposalRecord{}, wrapStorage(err, "intake for job "+jobID)
	}
	workspace, err := e.Repo.GetWorkspace(ctx, job.WorkspaceID)
	if err != nil {
		return domain.ProposalRecord{}, wrapStorage(err, "workspace "+job.WorkspaceID)
	}

	raw, err := e.Generator.Generate(ctx, generator.IntakeContext{
		WorkspaceName:      workspace.Name,
		CommunitySize:      intake.CommunitySize,
		CoreActivities:     intake.CoreActivities,
		ModerationCapacity: intake.ModerationCapacity,
		ChannelBudget:      intake.ChannelBudget,
		AdditionalContext:  intake.AdditionalContext,
	})
	if err != nil {
		e.Transition(ctx, jobID, domain.JobStatusFailed)
		var genErr *generator.GenerationError
		if errors.As(err, &genErr) {
			return domain.ProposalRecord{}, externalErr(genErr.Issues)
		}
		return domain.ProposalRecord{}, externalErr([]string{err.Error()})
	}

	normalized := NormalizeProposal(raw)
	score := ScoreProposal(normalized, intake)
	record := domain.ProposalRecord{
		JobID:     jobID,
		Score:     &score,
		Rationale: normalized.Rationale,
		Proposal:  normalized,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProposalRecord{}, internalErr(err)
	}
	defer tx.Rollback()
	version, err := e.Repo.NextProposalVersionTx(ctx, tx, jobID)
	if err != nil {
		return domain.ProposalRecord{}, internalErr(err)
	}
	record.Version = version
	if err := e.Repo.InsertProposalTx(ctx, tx, record); err != nil {
		return domain.ProposalRecord{}, internalErr(err)
	}
	if err := e.Events.Append(ctx, tx, "proposal.generated", job.WorkspaceID, "job", jobID, job.CreatedBy, events.EventPayload{
		"version":  version,
		"score":    score,
		"channels": len(normalized.Channels),
	}); err != nil {
		return domain.ProposalRecord{}, internalErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.ProposalRecord{}, internalErr(err)
	}

	e.Transition(ctx, jobID, domain.JobStatusProposed)
	return record, nil
}

// MarkJobValidated records that a human reviewed the latest proposal.
func (e Engine) MarkJobValidated(ctx context.Context, jobID, actorID string) (domain.StructureJob, error) {
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return domain.StructureJob{}, wrapStorage(err, "job "+jobID)
	}
	if err := EnsureJobTransition(job.Status, domain.JobStatusValidated); err != nil {
		return domain.StructureJob{}, validationErr("%s", err.Error())
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StructureJob{}, internalErr(err)
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateJobStatusTx(ctx, tx, jobID, domain.JobStatusValidated, now); err != nil {
		return domain.StructureJob{}, internalErr(err)
	}
	if err := e.Events.Append(ctx, tx, "job.validated", job.WorkspaceID, "job", jobID, actorID, nil); err != nil {
		return domain.StructureJob{}, internalErr(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.StructureJob{}, internalErr(err)
	}
	job.Status = domain.JobStatusValidated
	job.UpdatedAt = now
	return job, nil
}

// GetJob is a pure read.
func (e Engine) GetJob(ctx context.Context, jobID string) (domain.StructureJob, error) {
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return domain.StructureJob{}, wrapStorage(err, "job "+jobID)
	}
	return job, nil
}

// LatestProposal returns the highest proposal version for a job.
func (e Engine) LatestProposal(ctx context.Context, jobID string) (domain.ProposalRecord, error) {
	record, err := e.Repo.LatestProposal(ctx, jobID)
	if err != nil {
		return domain.ProposalRecord{}, wrapStorage(err, "proposal for job "+jobID)
	}
	return record, nil
}
