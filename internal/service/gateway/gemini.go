package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	genai "google.golang.org/genai"

	"github.com/zhouzirui/z-tarot/backend/internal/model/chat"
)

// contentGenerator is the slice of genai.Models the backend uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiBackend is the primary provider. It receives the transcript flattened
// into a single prompt.
type GeminiBackend struct {
	models contentGenerator
	model  string
}

func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiBackend{models: cli.Models, model: model}, nil
}

func (b *GeminiBackend) Name() string { return "gemini:" + b.model }

func (b *GeminiBackend) Complete(ctx context.Context, messages []chat.Turn) (Completion, error) {
	prompt := FlattenPrompt(messages)
	resp, err := b.models.GenerateContent(ctx, b.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		geminiConfig(),
	)
	if err != nil {
		return Completion{}, classifyGeminiError(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return Completion{}, Transient(fmt.Errorf("%w (%s)", ErrBlankReply, reason))
	}

	completion := Completion{Text: text}
	if resp.UsageMetadata != nil {
		completion.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return completion, nil
}

func geminiConfig() *genai.GenerateContentConfig {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
		genai.HarmCategoryCivicIntegrity,
	}
	safety := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		safety = append(safety, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return &genai.GenerateContentConfig{
		SafetySettings: safety,
		Temperature:    genai.Ptr[float32](1.0),
		TopK:           genai.Ptr[float32](300),
		TopP:           genai.Ptr[float32](1.0),
	}
}

// classifyGeminiError treats API errors as retryable, except client errors
// that no retry can fix. Anything else abandons the backend.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		return classifyStatus(apiErr.Code, err)
	case errors.As(err, &apiErrPtr):
		return classifyStatus(apiErrPtr.Code, err)
	default:
		return Permanent(err)
	}
}

func classifyStatus(code int, err error) error {
	switch {
	case code == http.StatusBadRequest, code == http.StatusUnauthorized,
		code == http.StatusForbidden, code == http.StatusNotFound:
		return Permanent(err)
	default:
		return Transient(err)
	}
}
