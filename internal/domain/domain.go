package domain

// Job statuses form a forward-only graph; see engine.EnsureJobTransition.
const (
	JobStatusCreated   = "created"
	JobStatusProposed  = "proposed"
	JobStatusValidated = "validated"
	JobStatusApplying  = "applying"
	JobStatusApplied   = "applied"
	JobStatusFailed    = "failed"
)

type Workspace struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Status            string `json:"status"`
	BlueprintApproved bool   `json:"blueprint_approved"`
	CreatedAt         string `json:"created_at" format:"date-time"`
}

// StructureJob is one run of the structure-generation workflow for a workspace.
type StructureJob struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Status      string `json:"status" enum:"created,proposed,validated,applying,applied,failed"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// IntakeForm holds the questionnaire answers for a job. One per job, immutable.
type IntakeForm struct {
	JobID              string   `json:"job_id"`
	CommunitySize      string   `json:"community_size" enum:"small,medium,large"`
	CoreActivities     []string `json:"core_activities"`
	ModerationCapacity string   `json:"moderation_capacity" enum:"light,moderate,heavy"`
	ChannelBudget      int      `json:"channel_budget"`
	AdditionalContext  string   `json:"additional_context,omitempty"`
}

type ProposedChannel struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type" enum:"core,topic,social"`
	IsPrivate   bool   `json:"is_private"`
}

type ProposedCommittee struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// StructureProposal is the generator output after normalization. Persisted as
// an opaque JSON document but always handled as this typed value.
type StructureProposal struct {
	Channels            []ProposedChannel   `json:"channels"`
	Committees          []ProposedCommittee `json:"committees"`
	Rationale           string              `json:"rationale,omitempty"`
	EstimatedComplexity string              `json:"estimated_complexity,omitempty" enum:"low,medium,high"`
}

// ProposalRecord is one immutable proposal version for a job.
type ProposalRecord struct {
	JobID     string            `json:"job_id"`
	Version   int               `json:"version"`
	Score     *float64          `json:"score,omitempty" minimum:"0" maximum:"1"`
	Rationale string            `json:"rationale,omitempty"`
	Proposal  StructureProposal `json:"proposal"`
	CreatedAt string            `json:"created_at" format:"date-time"`
}

// Blueprint is the proposal version that was actually applied. One per job,
// overwritten on re-apply.
type Blueprint struct {
	JobID     string            `json:"job_id"`
	Proposal  StructureProposal `json:"proposal"`
	AppliedAt string            `json:"applied_at" format:"date-time"`
}

type Channel struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	IsPrivate   bool   `json:"is_private"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Committee struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
