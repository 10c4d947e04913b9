package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hivecmu/hive/internal/config"
	"github.com/hivecmu/hive/internal/domain"
)

func (r Repo) InsertWorkspaceTx(ctx context.Context, tx *sql.Tx, w domain.Workspace) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workspaces(id,name,status,blueprint_approved,created_at) VALUES (?,?,?,?,?)`,
		w.ID, w.Name, w.Status, boolToInt(w.BlueprintApproved), w.CreatedAt)
	return err
}

func (r Repo) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	var w domain.Workspace
	var approved int
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,blueprint_approved,created_at FROM workspaces WHERE id=?`, id).
		Scan(&w.ID, &w.Name, &w.Status, &approved, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	w.BlueprintApproved = approved != 0
	return w, err
}

func (r Repo) ListWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,blueprint_approved,created_at FROM workspaces ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workspace
	for rows.Next() {
		var w domain.Workspace
		var approved int
		if err := rows.Scan(&w.ID, &w.Name, &w.Status, &approved, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.BlueprintApproved = approved != 0
		res = append(res, w)
	}
	return res, rows.Err()
}

// SingleWorkspace returns the only workspace when exactly one exists. Used by
// the CLI so --workspace can be omitted in single-workspace databases.
func (r Repo) SingleWorkspace(ctx context.Context) (domain.Workspace, error) {
	all, err := r.ListWorkspaces(ctx)
	if err != nil {
		return domain.Workspace{}, err
	}
	if len(all) != 1 {
		return domain.Workspace{}, ErrNotFound
	}
	return all[0], nil
}

// MarkBlueprintApprovedTx flags the workspace as having an applied blueprint.
func (r Repo) MarkBlueprintApprovedTx(ctx context.Context, tx *sql.Tx, workspaceID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE workspaces SET blueprint_approved=1 WHERE id=?`, workspaceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ChannelExistsTx checks by (workspace, name) inside the apply transaction so
// the check and the insert observe the same snapshot. The UNIQUE constraint
// on (workspace_id, name) is the backstop.
func (r Repo) ChannelExistsTx(ctx context.Context, tx *sql.Tx, workspaceID, name string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM channels WHERE workspace_id=? AND name=? LIMIT 1`, workspaceID, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) InsertChannelTx(ctx context.Context, tx *sql.Tx, c domain.Channel) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO channels(id,workspace_id,name,description,type,is_private,created_by,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.WorkspaceID, c.Name, nullable(c.Description), c.Type, boolToInt(c.IsPrivate), c.CreatedBy, c.CreatedAt)
	return err
}

func (r Repo) AddChannelMemberTx(ctx context.Context, tx *sql.Tx, channelID, userID, addedAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO channel_members(channel_id,user_id,added_at) VALUES (?,?,?)`,
		channelID, userID, addedAt)
	return err
}

func (r Repo) ListChannels(ctx context.Context, workspaceID string) ([]domain.Channel, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,workspace_id,name,description,type,is_private,created_by,created_at FROM channels WHERE workspace_id=? ORDER BY created_at ASC, name ASC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Channel
	for rows.Next() {
		var c domain.Channel
		var desc sql.NullString
		var private int
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Name, &desc, &c.Type, &private, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			c.Description = desc.String
		}
		c.IsPrivate = private != 0
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) CommitteeExistsTx(ctx context.Context, tx *sql.Tx, workspaceID, name string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM committees WHERE workspace_id=? AND name=? LIMIT 1`, workspaceID, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) InsertCommitteeTx(ctx context.Context, tx *sql.Tx, c domain.Committee) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO committees(id,workspace_id,name,description,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.WorkspaceID, c.Name, nullable(c.Description), c.CreatedAt)
	return err
}

func (r Repo) ListCommittees(ctx context.Context, workspaceID string) ([]domain.Committee, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,workspace_id,name,description,created_at FROM committees WHERE workspace_id=? ORDER BY created_at ASC, name ASC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Committee
	for rows.Next() {
		var c domain.Committee
		var desc sql.NullString
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Name, &desc, &c.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			c.Description = desc.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpsertWorkspaceConfig(ctx context.Context, workspaceID string, cfg *config.Config) error {
	return upsertWorkspaceConfig(ctx, r.DB, nil, workspaceID, cfg)
}

func (r Repo) UpsertWorkspaceConfigTx(ctx context.Context, tx *sql.Tx, workspaceID string, cfg *config.Config) error {
	return upsertWorkspaceConfig(ctx, nil, tx, workspaceID, cfg)
}

func upsertWorkspaceConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, workspaceID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Workspace.ID = workspaceID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO workspace_configs(workspace_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(workspace_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, workspaceID, string(payload), now, now)
	return err
}

func (r Repo) GetWorkspaceConfig(ctx context.Context, workspaceID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM workspace_configs WHERE workspace_id=?`, workspaceID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Workspace.ID == "" {
		cfg.Workspace.ID = workspaceID
	}
	return &cfg, cfg.Validate()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
