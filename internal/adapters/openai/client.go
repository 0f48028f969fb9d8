package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/config"
)

type Client struct {
	key   string
	model string
	cli   openai.Client
	log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	model := cfg.OpenAIModel
	if strings.TrimSpace(model) == "" { model = "gpt-4.1-mini" }
	cli := openai.NewClient(option.WithAPIKey(cfg.OpenAIKey), option.WithRequestTimeout(cfg.OpenAITimeout))
	return &Client{key: cfg.OpenAIKey, model: model, cli: cli, log: log}
}

// Enabled reports whether an API key was configured. The digest runs without
// a narrative when it is not.
func (c *Client) Enabled() bool { return strings.TrimSpace(c.key) != "" }

// SprintNarrative turns the digest numbers into a short prose summary for
// the notification channel.
func (c *Client) SprintNarrative(ctx context.Context, payload any) (string, error) {
	if !c.Enabled() { return "", errors.New("openai: missing key") }
	c.log.Info().Str("model", c.model).Msg("openai SprintNarrative call")
	userContent := ""
	if b, err := json.Marshal(payload); err == nil { userContent = string(b) }
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a delivery lead. Given sprint burndown, health buckets, at-risk items and scope changes, write a short plain-text status update (max 6 sentences). Call out scope growth, underestimated work and items at risk. No markdown."),
			openai.UserMessage(userContent),
		},
	}
	resp, err := c.cli.Chat.Completions.New(ctx, params)
	if err != nil { return "", err }
	if len(resp.Choices) == 0 { return "", errors.New("openai: no choices") }
	return resp.Choices[0].Message.Content, nil
}
