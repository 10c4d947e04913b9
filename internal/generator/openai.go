package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hivecmu/hive/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAI calls an OpenAI-compatible chat-completions endpoint and asks the
// model for a JSON structure proposal. Any transport, quota, or malformed
// output problem surfaces as a GenerationError.
type OpenAI struct {
	client  *http.Client
	log     *zap.Logger
	apiKey  string
	baseURL string
	model   string
}

type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Log     *zap.Logger
}

func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai generator: api key is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("openai generator: model is required")
	}
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenAI{
		client:  &http.Client{Timeout: timeout},
		log:     log.With(zap.String("component", "generator.openai")),
		apiKey:  opts.APIKey,
		baseURL: baseURL,
		model:   opts.Model,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float32           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

const systemPrompt = `You design communication structures for team workspaces.
Reply with a single JSON object, no prose, matching this shape:
{"channels":[{"name":"","description":"","type":"core|topic|social","is_private":false}],
"committees":[{"name":"","description":""}],
"rationale":"","estimated_complexity":"low|medium|high"}
Channel names are lowercase kebab-case. Stay within the channel budget.`

func (g *OpenAI) Generate(ctx context.Context, in IntakeContext) (domain.StructureProposal, error) {
	user := fmt.Sprintf(
		"Workspace: %s\nCommunity size: %s\nCore activities: %s\nModeration capacity: %s\nChannel budget: %d\nAdditional context: %s",
		in.WorkspaceName, in.CommunitySize, strings.Join(in.CoreActivities, ", "),
		in.ModerationCapacity, in.ChannelBudget, in.AdditionalContext)

	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return domain.StructureProposal{}, failf("encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.StructureProposal{}, failf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	res, err := g.client.Do(req)
	if err != nil {
		return domain.StructureProposal{}, failf("call model: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return domain.StructureProposal{}, failf("read response: %v", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return domain.StructureProposal{}, failf("decode response: %v", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		g.log.Warn("model call failed", zap.Int("status", res.StatusCode))
		return domain.StructureProposal{}, failf("model returned status %d: %s", res.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return domain.StructureProposal{}, failf("model returned no choices")
	}

	var proposal domain.StructureProposal
	content := parsed.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &proposal); err != nil {
		return domain.StructureProposal{}, failf("model output is not a valid proposal: %v", err)
	}
	if len(proposal.Channels) == 0 {
		return domain.StructureProposal{}, failf("model proposed no channels")
	}
	return proposal, nil
}
