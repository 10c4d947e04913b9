package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hivecmu/hive/internal/domain"
)

// EnsureJobTransition enforces the forward-only job status graph:
// created -> proposed -> validated -> applying -> applied, with failed
// reachable from any non-terminal state. Re-generating an already proposed
// job keeps it in proposed.
func EnsureJobTransition(oldStatus, newStatus string) error {
	if newStatus == domain.JobStatusFailed && !IsTerminalStatus(oldStatus) {
		return nil
	}
	switch oldStatus {
	case domain.JobStatusCreated:
		if newStatus == domain.JobStatusProposed {
			return nil
		}
	case domain.JobStatusProposed:
		switch newStatus {
		case domain.JobStatusProposed, domain.JobStatusValidated, domain.JobStatusApplying:
			return nil
		}
	case domain.JobStatusValidated:
		if newStatus == domain.JobStatusApplying {
			return nil
		}
	case domain.JobStatusApplying:
		if newStatus == domain.JobStatusApplied {
			return nil
		}
	}
	return fmt.Errorf("invalid job status transition %s -> %s", oldStatus, newStatus)
}

// IsTerminalStatus reports whether a job can no longer move.
func IsTerminalStatus(status string) bool {
	return status == domain.JobStatusApplied || status == domain.JobStatusFailed
}

// Transition moves a job's status with a single status+updated_at update,
// best-effort: a failed write is logged and swallowed. The workflow must not
// abort an already-completed side effect because a status flag could not be
// written; apply writes its final status through UpdateJobStatusTx instead.
func (e Engine) Transition(ctx context.Context, jobID, newStatus string) {
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		e.log().Warn("job status transition skipped", zap.String("job_id", jobID), zap.String("to", newStatus), zap.Error(err))
		return
	}
	if err := EnsureJobTransition(job.Status, newStatus); err != nil {
		e.log().Warn("job status transition rejected", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateJobStatus(ctx, jobID, newStatus, now); err != nil {
		e.log().Warn("job status write failed", zap.String("job_id", jobID), zap.String("to", newStatus), zap.Error(err))
	}
}
