package server

import (
	"encoding/json"

	"github.com/hivecmu/hive/internal/domain"
	"github.com/hivecmu/hive/internal/engine"
)

type CreateWorkspaceRequest struct {
	ID   string `json:"id" example:"acm-chapter"`
	Name string `json:"name,omitempty" example:"ACM Chapter"`
}

type WorkspaceResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Status            string `json:"status"`
	BlueprintApproved bool   `json:"blueprint_approved"`
	CreatedAt         string `json:"created_at"`
}

type IntakeRequest struct {
	CommunitySize      string   `json:"community_size" enum:"small,medium,large"`
	CoreActivities     []string `json:"core_activities"`
	ModerationCapacity string   `json:"moderation_capacity" enum:"light,moderate,heavy"`
	ChannelBudget      int      `json:"channel_budget" example:"10"`
	AdditionalContext  string   `json:"additional_context,omitempty"`
}

type CreateJobRequest struct {
	Intake IntakeRequest `json:"intake"`
}

type JobResponse struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Status      string `json:"status"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type ProposalResponse struct {
	JobID     string                   `json:"job_id"`
	Version   int                      `json:"version"`
	Score     *float64                 `json:"score,omitempty"`
	Rationale string                   `json:"rationale,omitempty"`
	Proposal  domain.StructureProposal `json:"proposal"`
	CreatedAt string                   `json:"created_at"`
}

type BlueprintResponse struct {
	JobID     string                   `json:"job_id"`
	Proposal  domain.StructureProposal `json:"proposal"`
	AppliedAt string                   `json:"applied_at"`
}

type ApplyRequest struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
}

type ApplyResponse struct {
	Job               JobResponse         `json:"job"`
	CreatedChannels   []ChannelResponse   `json:"created_channels"`
	CreatedCommittees []CommitteeResponse `json:"created_committees"`
	CreatedCount      int                 `json:"created_count"`
}

type ChannelResponse struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	IsPrivate   bool   `json:"is_private"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

type CommitteeResponse struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type EventResponse struct {
	ID          int64           `json:"id"`
	TS          string          `json:"ts"`
	Type        string          `json:"type"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	EntityKind  string          `json:"entity_kind"`
	EntityID    string          `json:"entity_id,omitempty"`
	ActorID     string          `json:"actor_id"`
	Payload     json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WorkspaceConfigResponse struct {
	WorkspaceID string          `json:"workspace_id"`
	Config      json.RawMessage `json:"config"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type CreateAPIKeyResponse struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	// Key is returned once at creation; only its hash is stored.
	Key       string `json:"key"`
	CreatedAt string `json:"created_at"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
	Source  string   `json:"source"`
}

func workspaceResponse(w domain.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:                w.ID,
		Name:              w.Name,
		Status:            w.Status,
		BlueprintApproved: w.BlueprintApproved,
		CreatedAt:         w.CreatedAt,
	}
}

func mapWorkspaces(items []domain.Workspace) []WorkspaceResponse {
	res := make([]WorkspaceResponse, 0, len(items))
	for _, w := range items {
		res = append(res, workspaceResponse(w))
	}
	return res
}

func jobResponse(j domain.StructureJob) JobResponse {
	return JobResponse{
		ID:          j.ID,
		WorkspaceID: j.WorkspaceID,
		Status:      j.Status,
		CreatedBy:   j.CreatedBy,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func mapJobs(items []domain.StructureJob) []JobResponse {
	res := make([]JobResponse, 0, len(items))
	for _, j := range items {
		res = append(res, jobResponse(j))
	}
	return res
}

func proposalResponse(p domain.ProposalRecord) ProposalResponse {
	return ProposalResponse{
		JobID:     p.JobID,
		Version:   p.Version,
		Score:     p.Score,
		Rationale: p.Rationale,
		Proposal:  p.Proposal,
		CreatedAt: p.CreatedAt,
	}
}

func mapProposals(items []domain.ProposalRecord) []ProposalResponse {
	res := make([]ProposalResponse, 0, len(items))
	for _, p := range items {
		res = append(res, proposalResponse(p))
	}
	return res
}

func channelResponse(c domain.Channel) ChannelResponse {
	return ChannelResponse{
		ID:          c.ID,
		WorkspaceID: c.WorkspaceID,
		Name:        c.Name,
		Description: c.Description,
		Type:        c.Type,
		IsPrivate:   c.IsPrivate,
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt,
	}
}

func mapChannels(items []domain.Channel) []ChannelResponse {
	res := make([]ChannelResponse, 0, len(items))
	for _, c := range items {
		res = append(res, channelResponse(c))
	}
	return res
}

func committeeResponse(c domain.Committee) CommitteeResponse {
	return CommitteeResponse{
		ID:          c.ID,
		WorkspaceID: c.WorkspaceID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
	}
}

func mapCommittees(items []domain.Committee) []CommitteeResponse {
	res := make([]CommitteeResponse, 0, len(items))
	for _, c := range items {
		res = append(res, committeeResponse(c))
	}
	return res
}

func applyResponse(r engine.ApplyResult) ApplyResponse {
	return ApplyResponse{
		Job:               jobResponse(r.Job),
		CreatedChannels:   mapChannels(r.CreatedChannels),
		CreatedCommittees: mapCommittees(r.CreatedCommittees),
		CreatedCount:      r.CreatedCount,
	}
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage([]byte("{}"))
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage([]byte(evt.Payload))
	}
	return EventResponse{
		ID:          evt.ID,
		TS:          evt.TS,
		Type:        evt.Type,
		WorkspaceID: evt.WorkspaceID,
		EntityKind:  evt.EntityKind,
		EntityID:    evt.EntityID,
		ActorID:     evt.ActorID,
		Payload:     payload,
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		ActorID:   k.ActorID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

func domainIntake(in IntakeRequest) domain.IntakeForm {
	return domain.IntakeForm{
		CommunitySize:      in.CommunitySize,
		CoreActivities:     in.CoreActivities,
		ModerationCapacity: in.ModerationCapacity,
		ChannelBudget:      in.ChannelBudget,
		AdditionalContext:  in.AdditionalContext,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
