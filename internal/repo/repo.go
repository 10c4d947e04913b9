package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hivecmu/hive/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertJobTx(ctx context.Context, tx *sql.Tx, j domain.StructureJob) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO structure_jobs(id,workspace_id,status,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		j.ID, j.WorkspaceID, j.Status, j.CreatedBy, j.CreatedAt, j.UpdatedAt)
	return err
}

func scanJob(row *sql.Row) (domain.StructureJob, error) {
	var j domain.StructureJob
	err := row.Scan(&j.ID, &j.WorkspaceID, &j.Status, &j.CreatedBy, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	return j, err
}

func (r Repo) GetJob(ctx context.Context, id string) (domain.StructureJob, error) {
	return scanJob(r.DB.QueryRowContext(ctx, `SELECT id,workspace_id,status,created_by,created_at,updated_at FROM structure_jobs WHERE id=?`, id))
}

func (r Repo) ListJobs(ctx context.Context, workspaceID string) ([]domain.StructureJob, error) {
	clauses := []string{"1=1"}
	var args []any
	if workspaceID != "" {
		clauses = append(clauses, "workspace_id=?")
		args = append(args, workspaceID)
	}
	query := `SELECT id,workspace_id,status,created_by,created_at,updated_at FROM structure_jobs WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StructureJob
	for rows.Next() {
		var j domain.StructureJob
		if err := rows.Scan(&j.ID, &j.WorkspaceID, &j.Status, &j.CreatedBy, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

// UpdateJobStatus writes status and updated_at in a single statement. Used by
// the best-effort transitions that run outside any apply transaction.
func (r Repo) UpdateJobStatus(ctx context.Context, id, status, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE structure_jobs SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatusTx is the in-transaction variant used by apply so the final
// status commits atomically with the created entities.
func (r Repo) UpdateJobStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE structure_jobs SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertIntakeTx(ctx context.Context, tx *sql.Tx, f domain.IntakeForm) error {
	activities, err := json.Marshal(f.CoreActivities)
	if err != nil {
		return fmt.Errorf("marshal core activities: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO intake_forms(job_id,community_size,core_activities_json,moderation_capacity,channel_budget,additional_context) VALUES (?,?,?,?,?,?)`,
		f.JobID, f.CommunitySize, string(activities), f.ModerationCapacity, f.ChannelBudget, nullable(f.AdditionalContext))
	return err
}

func (r Repo) GetIntake(ctx context.Context, jobID string) (domain.IntakeForm, error) {
	var f domain.IntakeForm
	var activities string
	var extra sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT job_id,community_size,core_activities_json,moderation_capacity,channel_budget,additional_context FROM intake_forms WHERE job_id=?`, jobID).
		Scan(&f.JobID, &f.CommunitySize, &activities, &f.ModerationCapacity, &f.ChannelBudget, &extra)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal([]byte(activities), &f.CoreActivities); err != nil {
		return f, fmt.Errorf("decode core activities: %w", err)
	}
	if extra.Valid {
		f.AdditionalContext = extra.String
	}
	return f, nil
}

// NextProposalVersionTx allocates the next version for a job. It must run in
// the same transaction as the subsequent InsertProposalTx so two concurrent
// generations for one job cannot allocate the same version.
func (r Repo) NextProposalVersionTx(ctx context.Context, tx *sql.Tx, jobID string) (int, error) {
	var max sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(version) FROM proposals WHERE job_id=?`, jobID).Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}

func (r Repo) InsertProposalTx(ctx context.Context, tx *sql.Tx, p domain.ProposalRecord) error {
	payload, err := json.Marshal(p.Proposal)
	if err != nil {
		return fmt.Errorf("marshal proposal: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO proposals(job_id,version,score,rationale,proposal_json,created_at) VALUES (?,?,?,?,?,?)`,
		p.JobID, p.Version, nullableFloatPtr(p.Score), nullable(p.Rationale), string(payload), p.CreatedAt)
	return err
}

func scanProposal(scan func(dest ...any) error) (domain.ProposalRecord, error) {
	var p domain.ProposalRecord
	var score sql.NullFloat64
	var rationale sql.NullString
	var payload string
	err := scan(&p.JobID, &p.Version, &score, &rationale, &payload, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if score.Valid {
		p.Score = &score.Float64
	}
	if rationale.Valid {
		p.Rationale = rationale.String
	}
	if err := json.Unmarshal([]byte(payload), &p.Proposal); err != nil {
		return p, fmt.Errorf("decode proposal %s v%d: %w", p.JobID, p.Version, err)
	}
	return p, nil
}

// LatestProposal returns the highest-version proposal for a job.
func (r Repo) LatestProposal(ctx context.Context, jobID string) (domain.ProposalRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT job_id,version,score,rationale,proposal_json,created_at FROM proposals WHERE job_id=? ORDER BY version DESC LIMIT 1`, jobID)
	return scanProposal(row.Scan)
}

func (r Repo) GetProposal(ctx context.Context, jobID string, version int) (domain.ProposalRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT job_id,version,score,rationale,proposal_json,created_at FROM proposals WHERE job_id=? AND version=?`, jobID, version)
	return scanProposal(row.Scan)
}

func (r Repo) ListProposals(ctx context.Context, jobID string) ([]domain.ProposalRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT job_id,version,score,rationale,proposal_json,created_at FROM proposals WHERE job_id=? ORDER BY version ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProposalRecord
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpsertBlueprintTx stores the applied proposal snapshot. Blueprints are
// keyed by job and overwritten on re-apply, never versioned.
func (r Repo) UpsertBlueprintTx(ctx context.Context, tx *sql.Tx, b domain.Blueprint) error {
	payload, err := json.Marshal(b.Proposal)
	if err != nil {
		return fmt.Errorf("marshal blueprint: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO blueprints(job_id,blueprint_json,applied_at) VALUES (?,?,?)
ON CONFLICT(job_id) DO UPDATE SET blueprint_json=excluded.blueprint_json, applied_at=excluded.applied_at`,
		b.JobID, string(payload), b.AppliedAt)
	return err
}

func (r Repo) GetBlueprint(ctx context.Context, jobID string) (domain.Blueprint, error) {
	var b domain.Blueprint
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT job_id,blueprint_json,applied_at FROM blueprints WHERE job_id=?`, jobID).
		Scan(&b.JobID, &payload, &b.AppliedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal([]byte(payload), &b.Proposal); err != nil {
		return b, fmt.Errorf("decode blueprint %s: %w", b.JobID, err)
	}
	return b, nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, workspaceID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if workspaceID != "" {
		clauses = append(clauses, "workspace_id=?")
		args = append(args, workspaceID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,workspace_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// LatestEventsFrom pages newest-first: events with IDs below the cursor.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, workspaceID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	if workspaceID != "" {
		clauses = append(clauses, "workspace_id=?")
		args = append(args, workspaceID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,workspace_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, workspaceID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if workspaceID != "" {
		clauses = append(clauses, "workspace_id=?")
		args = append(args, workspaceID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,workspace_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE %s ORDER BY id ASC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// LatestEventID returns the most recent event ID for a workspace.
func (r Repo) LatestEventID(ctx context.Context, workspaceID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE workspace_id=?`, workspaceID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var workspaceID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &workspaceID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if workspaceID.Valid {
			e.WorkspaceID = workspaceID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
