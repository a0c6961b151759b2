package gateway

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-tarot/backend/internal/config"
)

// Slot names used when a provider has no credentials.
const (
	SlotGemini = "gemini"
	SlotArk    = "ark"
	SlotOpenAI = "openai"
)

// Tiers builds the three-slot chain in fixed order: Gemini, Ark, then the
// OpenAI-compatible endpoint. A provider without credentials keeps its slot
// as Unconfigured.
func Tiers(ctx context.Context, cfg config.GatewayConfig, log logrus.FieldLogger) ([]Tier, error) {
	policy := func(attempts int) Policy {
		return Policy{MaxAttempts: attempts, Delay: cfg.Retry.Delay}
	}

	var primary Backend = Unconfigured(SlotGemini)
	if cfg.Gemini.Enabled() {
		b, err := NewGeminiBackend(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		primary = b
	} else {
		log.Warn("GEMINI_API_KEY not set, primary backend disabled")
	}

	var secondary Backend = Unconfigured(SlotArk)
	if cfg.Ark.Enabled() {
		cm, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("create ark chat model: %w", err)
		}
		secondary = NewArkBackend(cm, cfg.Ark.Model)
	} else {
		log.Warn("Ark 凭证未配置，secondary backend disabled")
	}

	var tertiary Backend = Unconfigured(SlotOpenAI)
	if cfg.OpenAI.Enabled() {
		tertiary = NewOpenAIBackend(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
	} else {
		log.Warn("OPENAI_API_KEY not set, tertiary backend disabled")
	}

	return []Tier{
		{Backend: primary, Policy: policy(cfg.Retry.PrimaryAttempts)},
		{Backend: secondary, Policy: policy(cfg.Retry.SecondaryAttempts)},
		{Backend: tertiary, Policy: policy(cfg.Retry.TertiaryAttempts)},
	}, nil
}

// NewFromConfig builds a gateway over the configured providers.
func NewFromConfig(ctx context.Context, cfg config.GatewayConfig, prompts Prompts, log logrus.FieldLogger) (*Gateway, error) {
	tiers, err := Tiers(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return New(prompts, tiers, WithLogger(log))
}
