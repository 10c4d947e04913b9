package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/hivecmu/hive/internal/config"
	"github.com/hivecmu/hive/internal/db"
	"github.com/hivecmu/hive/internal/engine"
	"github.com/hivecmu/hive/internal/generator"
	"github.com/hivecmu/hive/internal/migrate"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("hq")
	eng := engine.New(conn, cfg, generator.NewHeuristic(cfg))

	handler, err := New(Config{
		Engine: eng,
		Auth: AuthConfig{
			JWTSecret:              testJWTSecret,
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type errEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (ts *testServer) doJSON(t *testing.T, method, path string, body any, headers map[string]string, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func actorHeaders(actor string) map[string]string {
	return map[string]string{"X-Actor-Id": actor}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	ts := newTestServer(t)
	var body map[string]string
	if status := ts.doJSON(t, http.MethodGet, "/v0/health", nil, nil, &body); status != http.StatusOK {
		t.Fatalf("health status: %d", status)
	}
	if body["status"] != "ok" {
		t.Fatalf("health body: %v", body)
	}
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	ts := newTestServer(t)
	var env errEnvelope
	if status := ts.doJSON(t, http.MethodGet, "/v0/workspaces", nil, nil, &env); status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if env.Error.Code != "unauthorized" {
		t.Fatalf("error code: %+v", env.Error)
	}
}

func TestDevLoginAndWhoAmI(t *testing.T) {
	ts := newTestServer(t)
	var login DevLoginResponse
	status := ts.doJSON(t, http.MethodPost, "/v0/auth/dev/login",
		map[string]any{"actor_id": "alice", "roles": []string{"admin"}}, nil, &login)
	if status != http.StatusOK || login.Token == "" {
		t.Fatalf("dev login: status=%d token=%q", status, login.Token)
	}

	var me WhoAmIResponse
	status = ts.doJSON(t, http.MethodGet, "/v0/me", nil,
		map[string]string{"Authorization": "Bearer " + login.Token}, &me)
	if status != http.StatusOK {
		t.Fatalf("me status: %d", status)
	}
	if me.ActorID != "alice" || me.Source != "jwt" || len(me.Roles) != 1 {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	ts := newTestServer(t)
	var created CreateAPIKeyResponse
	status := ts.doJSON(t, http.MethodPost, "/v0/apikeys",
		map[string]any{"actor_id": "service-bot", "name": "ci"}, actorHeaders("admin"), &created)
	if status != http.StatusCreated || created.Key == "" {
		t.Fatalf("create api key: status=%d key=%q", status, created.Key)
	}

	var me WhoAmIResponse
	status = ts.doJSON(t, http.MethodGet, "/v0/me", nil,
		map[string]string{"X-Api-Key": created.Key}, &me)
	if status != http.StatusOK {
		t.Fatalf("me status: %d", status)
	}
	if me.ActorID != "service-bot" || me.Source != "api_key" {
		t.Fatalf("unexpected principal: %+v", me)
	}

	var keys []APIKeyResponse
	status = ts.doJSON(t, http.MethodGet, "/v0/apikeys?actor_id=service-bot", nil, actorHeaders("admin"), &keys)
	if status != http.StatusOK || len(keys) != 1 {
		t.Fatalf("list keys: status=%d keys=%+v", status, keys)
	}
}

func TestStructureWorkflowEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	headers := actorHeaders("alice")

	var ws WorkspaceResponse
	status := ts.doJSON(t, http.MethodPost, "/v0/workspaces",
		map[string]any{"id": "hq", "name": "Hive HQ"}, headers, &ws)
	if status != http.StatusCreated || ws.ID != "hq" {
		t.Fatalf("create workspace: status=%d body=%+v", status, ws)
	}

	var job JobResponse
	status = ts.doJSON(t, http.MethodPost, "/v0/workspaces/hq/jobs", map[string]any{
		"intake": map[string]any{
			"community_size":      "medium",
			"core_activities":     []string{"Projects", "Social Events"},
			"moderation_capacity": "moderate",
			"channel_budget":      10,
		},
	}, headers, &job)
	if status != http.StatusCreated || job.Status != "created" {
		t.Fatalf("create job: status=%d body=%+v", status, job)
	}

	var proposal ProposalResponse
	status = ts.doJSON(t, http.MethodPost, "/v0/jobs/"+job.ID+"/generate", nil, headers, &proposal)
	if status != http.StatusOK || proposal.Version != 1 {
		t.Fatalf("generate: status=%d body=%+v", status, proposal)
	}
	hasGeneral := false
	for _, c := range proposal.Proposal.Channels {
		if c.Name == "general" {
			hasGeneral = true
		}
	}
	if !hasGeneral {
		t.Fatalf("proposal missing general channel: %+v", proposal.Proposal.Channels)
	}
	if proposal.Score == nil {
		t.Fatalf("proposal missing score: %+v", proposal)
	}

	status = ts.doJSON(t, http.MethodPost, "/v0/jobs/"+job.ID+"/validate", nil, headers, &job)
	if status != http.StatusOK || job.Status != "validated" {
		t.Fatalf("validate: status=%d body=%+v", status, job)
	}

	var applied ApplyResponse
	status = ts.doJSON(t, http.MethodPost, "/v0/jobs/"+job.ID+"/apply",
		map[string]any{"workspace_id": "hq"}, headers, &applied)
	if status != http.StatusOK || applied.Job.Status != "applied" {
		t.Fatalf("apply: status=%d body=%+v", status, applied)
	}
	if applied.CreatedCount == 0 || applied.CreatedCount != len(applied.CreatedChannels)+len(applied.CreatedCommittees) {
		t.Fatalf("apply counts: %+v", applied)
	}

	var channels []ChannelResponse
	status = ts.doJSON(t, http.MethodGet, "/v0/workspaces/hq/channels", nil, headers, &channels)
	if status != http.StatusOK {
		t.Fatalf("list channels: %d", status)
	}
	names := map[string]bool{}
	for _, c := range channels {
		names[c.Name] = true
	}
	if !names["general"] || !names["announcements"] {
		t.Fatalf("channels missing core entries: %v", names)
	}

	var blueprint BlueprintResponse
	status = ts.doJSON(t, http.MethodGet, "/v0/jobs/"+job.ID+"/blueprint", nil, headers, &blueprint)
	if status != http.StatusOK || blueprint.JobID != job.ID {
		t.Fatalf("blueprint: status=%d body=%+v", status, blueprint)
	}

	var events paginatedEvents
	status = ts.doJSON(t, http.MethodGet, "/v0/workspaces/hq/events", nil, headers, &events)
	if status != http.StatusOK || len(events.Items) == 0 {
		t.Fatalf("events: status=%d body=%+v", status, events)
	}
	types := map[string]bool{}
	for _, evt := range events.Items {
		types[evt.Type] = true
	}
	for _, want := range []string{"workspace.created", "job.created", "proposal.generated", "structure.applied"} {
		if !types[want] {
			t.Fatalf("missing event %q in %v", want, types)
		}
	}
}

func TestEventPagination(t *testing.T) {
	ts := newTestServer(t)
	headers := actorHeaders("alice")

	var ws WorkspaceResponse
	if status := ts.doJSON(t, http.MethodPost, "/v0/workspaces",
		map[string]any{"id": "hq"}, headers, &ws); status != http.StatusCreated {
		t.Fatalf("create workspace: %d", status)
	}
	for i := 0; i < 3; i++ {
		var job JobResponse
		status := ts.doJSON(t, http.MethodPost, "/v0/workspaces/hq/jobs", map[string]any{
			"intake": map[string]any{
				"community_size":      "small",
				"core_activities":     []string{fmt.Sprintf("topic-%d", i)},
				"moderation_capacity": "light",
				"channel_budget":      5,
			},
		}, headers, &job)
		if status != http.StatusCreated {
			t.Fatalf("create job %d: %d", i, status)
		}
	}

	var first paginatedEvents
	status := ts.doJSON(t, http.MethodGet, "/v0/workspaces/hq/events?limit=2", nil, headers, &first)
	if status != http.StatusOK || len(first.Items) != 2 || first.NextCursor == "" {
		t.Fatalf("first page: status=%d body=%+v", status, first)
	}

	var second paginatedEvents
	status = ts.doJSON(t, http.MethodGet, "/v0/workspaces/hq/events?limit=2&cursor="+first.NextCursor, nil, headers, &second)
	if status != http.StatusOK || len(second.Items) == 0 {
		t.Fatalf("second page: status=%d body=%+v", status, second)
	}
	if second.Items[0].ID >= first.Items[len(first.Items)-1].ID {
		t.Fatalf("pages overlap: first=%+v second=%+v", first.Items, second.Items)
	}
}

func TestErrorEnvelopes(t *testing.T) {
	ts := newTestServer(t)
	headers := actorHeaders("alice")

	var env errEnvelope
	status := ts.doJSON(t, http.MethodGet, "/v0/jobs/does-not-exist", nil, headers, &env)
	if status != http.StatusNotFound || env.Error.Code != "not_found" {
		t.Fatalf("missing job: status=%d error=%+v", status, env.Error)
	}

	var ws WorkspaceResponse
	if status := ts.doJSON(t, http.MethodPost, "/v0/workspaces",
		map[string]any{"id": "hq"}, headers, &ws); status != http.StatusCreated {
		t.Fatalf("create workspace: %d", status)
	}

	// over the configured max budget: engine validation, not schema validation
	env = errEnvelope{}
	status = ts.doJSON(t, http.MethodPost, "/v0/workspaces/hq/jobs", map[string]any{
		"intake": map[string]any{
			"community_size":      "medium",
			"core_activities":     []string{"projects"},
			"moderation_capacity": "moderate",
			"channel_budget":      500,
		},
	}, headers, &env)
	if status != http.StatusUnprocessableEntity || env.Error.Code != "validation_failed" {
		t.Fatalf("budget overflow: status=%d error=%+v", status, env.Error)
	}

	env = errEnvelope{}
	status = ts.doJSON(t, http.MethodPost, "/v0/workspaces", nil, headers, &env)
	if status != http.StatusBadRequest {
		t.Fatalf("empty body: status=%d error=%+v", status, env.Error)
	}
}
