package hivesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Hive HTTP API client.
type Client struct {
	BaseURL     string
	WorkspaceID string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, workspaceID string) *Client {
	return &Client{
		BaseURL:     baseURL,
		WorkspaceID: workspaceID,
		Timeout:     10 * time.Second,
	}
}

// Intake holds the questionnaire answers for a new job.
type Intake struct {
	CommunitySize      string   `json:"community_size"`
	CoreActivities     []string `json:"core_activities"`
	ModerationCapacity string   `json:"moderation_capacity"`
	ChannelBudget      int      `json:"channel_budget"`
	AdditionalContext  string   `json:"additional_context,omitempty"`
}

// Job represents the API structure-job model.
type Job struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Status      string `json:"status"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ProposedChannel is one channel in a proposal.
type ProposedChannel struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	IsPrivate   bool   `json:"is_private"`
}

// ProposedCommittee is one committee in a proposal.
type ProposedCommittee struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// StructureProposal is the generated layout inside a proposal version.
type StructureProposal struct {
	Channels            []ProposedChannel   `json:"channels"`
	Committees          []ProposedCommittee `json:"committees"`
	Rationale           string              `json:"rationale,omitempty"`
	EstimatedComplexity string              `json:"estimated_complexity,omitempty"`
}

// Proposal is one immutable proposal version.
type Proposal struct {
	JobID     string            `json:"job_id"`
	Version   int               `json:"version"`
	Score     *float64          `json:"score,omitempty"`
	Rationale string            `json:"rationale,omitempty"`
	Proposal  StructureProposal `json:"proposal"`
	CreatedAt string            `json:"created_at"`
}

// Channel is a materialized workspace channel.
type Channel struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	IsPrivate   bool   `json:"is_private"`
}

// Committee is a materialized workspace committee.
type Committee struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ApplyResult reports what an apply created.
type ApplyResult struct {
	Job               Job         `json:"job"`
	CreatedChannels   []Channel   `json:"created_channels"`
	CreatedCommittees []Committee `json:"created_committees"`
	CreatedCount      int         `json:"created_count"`
}

// Event represents a log entry.
type Event struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts"`
	Type        string         `json:"type"`
	WorkspaceID string         `json:"workspace_id"`
	EntityID    string         `json:"entity_id"`
	EntityKind  string         `json:"entity_kind"`
	Payload     map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateJob starts a structure job from intake answers.
func (c *Client) CreateJob(ctx context.Context, intake Intake) (Job, error) {
	body := map[string]any{"intake": intake}
	var resp Job
	err := c.do(ctx, http.MethodPost, c.workspacePath("jobs"), body, &resp)
	return resp, err
}

// GetJob fetches a job by id.
func (c *Client) GetJob(ctx context.Context, jobID string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodGet, c.jobPath(jobID, ""), nil, &resp)
	return resp, err
}

// GenerateProposal runs the generator and returns the new proposal version.
func (c *Client) GenerateProposal(ctx context.Context, jobID string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, c.jobPath(jobID, "generate"), nil, &resp)
	return resp, err
}

// LatestProposal returns the highest proposal version for a job.
func (c *Client) LatestProposal(ctx context.Context, jobID string) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodGet, c.jobPath(jobID, "proposals/latest"), nil, &resp)
	return resp, err
}

// ValidateJob marks the latest proposal as reviewed.
func (c *Client) ValidateJob(ctx context.Context, jobID string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, c.jobPath(jobID, "validate"), nil, &resp)
	return resp, err
}

// ApplyProposal materializes the latest proposal.
func (c *Client) ApplyProposal(ctx context.Context, jobID string) (ApplyResult, error) {
	body := map[string]any{"workspace_id": c.WorkspaceID}
	var resp ApplyResult
	err := c.do(ctx, http.MethodPost, c.jobPath(jobID, "apply"), body, &resp)
	return resp, err
}

// Channels lists the workspace's channels.
func (c *Client) Channels(ctx context.Context) ([]Channel, error) {
	var resp []Channel
	err := c.do(ctx, http.MethodGet, c.workspacePath("channels"), nil, &resp)
	return resp, err
}

// Committees lists the workspace's committees.
func (c *Client) Committees(ctx context.Context) ([]Committee, error) {
	var resp []Committee
	err := c.do(ctx, http.MethodGet, c.workspacePath("committees"), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.workspacePath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) workspacePath(p string) string {
	workspace := url.PathEscape(c.WorkspaceID)
	return fmt.Sprintf("v0/workspaces/%s/%s", workspace, strings.TrimLeft(p, "/"))
}

func (c *Client) jobPath(jobID, p string) string {
	endpoint := fmt.Sprintf("v0/jobs/%s", url.PathEscape(jobID))
	if p != "" {
		endpoint += "/" + strings.TrimLeft(p, "/")
	}
	return endpoint
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
