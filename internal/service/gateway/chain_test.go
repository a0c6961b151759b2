package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tarot/backend/internal/config"
	"github.com/zhouzirui/z-tarot/backend/internal/logging"
)

func TestTiersKeepThreeSlotsWithoutCredentials(t *testing.T) {
	cfg := config.GatewayConfig{
		OpenAI: config.OpenAIConfig{APIKey: "sk-test", BaseURL: "http://localhost:1/v1", Model: "deepseek"},
		Retry:  config.RetryConfig{Delay: 2 * time.Second, PrimaryAttempts: 4, SecondaryAttempts: 4, TertiaryAttempts: 3},
	}

	tiers, err := Tiers(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	require.Len(t, tiers, 3)

	assert.Equal(t, Unconfigured(SlotGemini), tiers[0].Backend)
	assert.Equal(t, Unconfigured(SlotArk), tiers[1].Backend)
	assert.Equal(t, "openai:deepseek", tiers[2].Backend.Name())

	assert.Equal(t, Policy{MaxAttempts: 4, Delay: 2 * time.Second}, tiers[0].Policy)
	assert.Equal(t, Policy{MaxAttempts: 3, Delay: 2 * time.Second}, tiers[2].Policy)
}
