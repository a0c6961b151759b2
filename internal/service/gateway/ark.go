package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-tarot/backend/internal/model/chat"
)

// ArkBackend is the secondary provider, driven through an eino chat model.
type ArkBackend struct {
	chatModel model.BaseChatModel
	name      string
}

func NewArkBackend(chatModel model.BaseChatModel, modelName string) *ArkBackend {
	return &ArkBackend{chatModel: chatModel, name: "ark:" + modelName}
}

func (b *ArkBackend) Name() string { return b.name }

// Complete treats every failure as retryable.
func (b *ArkBackend) Complete(ctx context.Context, messages []chat.Turn) (Completion, error) {
	resp, err := b.chatModel.Generate(ctx, toSchemaMessages(messages),
		model.WithTemperature(0.2),
		model.WithTopP(1.0),
		model.WithMaxTokens(2048),
	)
	if err != nil {
		return Completion{}, Transient(fmt.Errorf("ark generate: %w", err))
	}
	if resp == nil {
		return Completion{}, Transient(ErrBlankReply)
	}

	completion := Completion{Text: strings.TrimSpace(resp.Content)}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		completion.TotalTokens = resp.ResponseMeta.Usage.TotalTokens
	}
	return completion, nil
}

func toSchemaMessages(messages []chat.Turn) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case chat.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}
