package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrFlagged is returned when user-authored text is rejected upstream.
var ErrFlagged = errors.New("input flagged by moderation")

// Moderator checks user-authored text before it reaches the model.
type Moderator interface {
	Check(ctx context.Context, text string) error
}

// Noop accepts everything.
type Noop struct{}

func (Noop) Check(context.Context, string) error { return nil }

type moderationClient interface {
	Moderations(ctx context.Context, req openai.ModerationRequest) (openai.ModerationResponse, error)
}

// OpenAIModerator calls the OpenAI moderation endpoint.
type OpenAIModerator struct {
	client moderationClient
	model  string
}

func NewOpenAIModerator(apiKey, baseURL, model string) *OpenAIModerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIModerator{client: openai.NewClientWithConfig(cfg), model: model}
}

// Check returns ErrFlagged when any result is flagged. Blank text is not sent.
func (m *OpenAIModerator) Check(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	resp, err := m.client.Moderations(ctx, openai.ModerationRequest{Input: text, Model: m.model})
	if err != nil {
		return fmt.Errorf("moderation request: %w", err)
	}
	for _, r := range resp.Results {
		if r.Flagged {
			return ErrFlagged
		}
	}
	return nil
}
