package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hivecmu/hive/internal/domain"
	"github.com/hivecmu/hive/internal/events"
)

// ApplyResult reports what an apply actually created. Re-applying the same
// proposal yields a zero CreatedCount.
type ApplyResult struct {
	Job               domain.StructureJob `json:"job"`
	CreatedChannels   []domain.Channel    `json:"created_channels"`
	CreatedCommittees []domain.Committee  `json:"created_committees"`
	CreatedCount      int                 `json:"created_count"`
}

// ApplyProposal materializes the latest proposal version as real channels and
// committees in one transaction. Entities are matched by (workspace, name):
// anything already present is skipped, so apply is idempotent — re-applying an
// already applied job succeeds with a zero CreatedCount and a refreshed
// blueprint. Only failed jobs are rejected. The final applied status and
// blueprint write commit atomically with the entities; on any in-transaction
// failure the job flips to failed best-effort and nothing is half-created.
func (e Engine) ApplyProposal(ctx context.Context, jobID, workspaceID, actorID string) (ApplyResult, error) {
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return ApplyResult{}, wrapStorage(err, "job "+jobID)
	}
	if workspaceID != "" && job.WorkspaceID != workspaceID {
		return ApplyResult{}, validationErr("job %s belongs to workspace %s", jobID, job.WorkspaceID)
	}
	if job.Status == domain.JobStatusFailed {
		return ApplyResult{}, validationErr("job %s is failed and cannot be applied", jobID)
	}
	record, err := e.Repo.LatestProposal(ctx, jobID)
	if err != nil {
		return ApplyResult{}, wrapStorage(err, "proposal for job "+jobID)
	}

	e.Transition(ctx, jobID, domain.JobStatusApplying)

	now := e.now().UTC().Format(time.RFC3339)
	result := ApplyResult{}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ApplyResult{}, internalErr(err)
	}
	defer tx.Rollback()

	for _, pc := range record.Proposal.Channels {
		exists, err := e.Repo.ChannelExistsTx(ctx, tx, job.WorkspaceID, pc.Name)
		if err != nil {
			return e.failApply(ctx, jobID, err)
		}
		if exists {
			continue
		}
		ch := domain.Channel{
			ID:          uuid.New().String(),
			WorkspaceID: job.WorkspaceID,
			Name:        pc.Name,
			Description: pc.Description,
			Type:        channelType(pc.Type),
			IsPrivate:   pc.IsPrivate,
			CreatedBy:   actorID,
			CreatedAt:   now,
		}
		if err := e.Repo.InsertChannelTx(ctx, tx, ch); err != nil {
			return e.failApply(ctx, jobID, err)
		}
		if actorID != "" {
			if err := e.Repo.AddChannelMemberTx(ctx, tx, ch.ID, actorID, now); err != nil {
				return e.failApply(ctx, jobID, err)
			}
		}
		result.CreatedChannels = append(result.CreatedChannels, ch)
	}

	for _, pc := range record.Proposal.Committees {
		exists, err := e.Repo.CommitteeExistsTx(ctx, tx, job.WorkspaceID, pc.Name)
		if err != nil {
			return e.failApply(ctx, jobID, err)
		}
		if exists {
			continue
		}
		cm := domain.Committee{
			ID:          uuid.New().String(),
			WorkspaceID: job.WorkspaceID,
			Name:        pc.Name,
			Description: pc.Description,
			CreatedAt:   now,
		}
		if err := e.Repo.InsertCommitteeTx(ctx, tx, cm); err != nil {
			return e.failApply(ctx, jobID, err)
		}
		result.CreatedCommittees = append(result.CreatedCommittees, cm)
	}

	blueprint := domain.Blueprint{JobID: jobID, Proposal: record.Proposal, AppliedAt: now}
	if err := e.Repo.UpsertBlueprintTx(ctx, tx, blueprint); err != nil {
		return e.failApply(ctx, jobID, err)
	}
	if err := e.Repo.MarkBlueprintApprovedTx(ctx, tx, job.WorkspaceID); err != nil {
		return e.failApply(ctx, jobID, err)
	}
	// The applied flip must land with the entities it describes, so it is
	// written in the same transaction without re-reading the status: the
	// best-effort applying transition above may not have stuck.
	if err := e.Repo.UpdateJobStatusTx(ctx, tx, jobID, domain.JobStatusApplied, now); err != nil {
		return e.failApply(ctx, jobID, err)
	}
	result.CreatedCount = len(result.CreatedChannels) + len(result.CreatedCommittees)
	if err := e.Events.Append(ctx, tx, "structure.applied", job.WorkspaceID, "job", jobID, actorID, events.EventPayload{
		"version":            record.Version,
		"created_channels":   len(result.CreatedChannels),
		"created_committees": len(result.CreatedCommittees),
	}); err != nil {
		return e.failApply(ctx, jobID, err)
	}
	if err := tx.Commit(); err != nil {
		return e.failApply(ctx, jobID, err)
	}

	job.Status = domain.JobStatusApplied
	job.UpdatedAt = now
	result.Job = job
	return result, nil
}

// failApply marks the job failed (best-effort, outside the dead transaction)
// and wraps the underlying error.
func (e Engine) failApply(ctx context.Context, jobID string, err error) (ApplyResult, error) {
	e.Transition(ctx, jobID, domain.JobStatusFailed)
	return ApplyResult{}, internalErr(err)
}

func channelType(t string) string {
	switch t {
	case "core", "topic", "social":
		return t
	}
	return "topic"
}
