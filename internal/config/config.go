package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Gateway    GatewayConfig
	Store      StoreConfig
	Moderation ModerationConfig
	Assets     AssetsConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	gateway, err := loadGatewayConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	moderation, err := loadModerationConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Log:        logCfg,
		Gateway:    gateway,
		Store:      store,
		Moderation: moderation,
		Assets:     AssetsConfig{ImageDir: getEnvOrDefault("IMAGE_DIR", "images")},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 描述日志级别与输出格式。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text"))
	if format != "text" && format != "json" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q: want text or json", format)
	}
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: format,
	}, nil
}

// GatewayConfig 描述三级模型后端及重试策略。
type GatewayConfig struct {
	Gemini GeminiConfig
	Ark    ArkConfig
	OpenAI OpenAIConfig
	Retry  RetryConfig
}

// GeminiConfig 是首选后端的配置。
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Enabled 表示是否提供了必需的密钥。
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// ArkConfig 是第二后端（火山方舟）的配置。
type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。采样参数在每次调用时单独传入。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	})
}

// OpenAIConfig 是兜底后端（OpenAI 兼容接口，默认 DeepSeek）的配置。
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Enabled 表示是否提供了必需的密钥。
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// RetryConfig 描述每个后端的尝试次数和线性退避基数。
type RetryConfig struct {
	Delay             time.Duration
	PrimaryAttempts   int
	SecondaryAttempts int
	TertiaryAttempts  int
}

func loadGatewayConfig() (GatewayConfig, error) {
	delay, err := parseDurationEnv("GATEWAY_RETRY_DELAY", 8*time.Second)
	if err != nil {
		return GatewayConfig{}, err
	}

	primary, err := parseAttemptsEnv("GATEWAY_PRIMARY_ATTEMPTS", 4)
	if err != nil {
		return GatewayConfig{}, err
	}
	secondary, err := parseAttemptsEnv("GATEWAY_SECONDARY_ATTEMPTS", 4)
	if err != nil {
		return GatewayConfig{}, err
	}
	tertiary, err := parseAttemptsEnv("GATEWAY_TERTIARY_ATTEMPTS", 3)
	if err != nil {
		return GatewayConfig{}, err
	}

	return GatewayConfig{
		Gemini: GeminiConfig{
			APIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Ark: ArkConfig{
			APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:     strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			BaseURL: getEnvOrDefault("OPENAI_BASE_URL", "https://api.kluster.ai/v1"),
			Model:   getEnvOrDefault("OPENAI_MODEL", "deepseek-ai/DeepSeek-V3-0324"),
		},
		Retry: RetryConfig{
			Delay:             delay,
			PrimaryAttempts:   primary,
			SecondaryAttempts: secondary,
			TertiaryAttempts:  tertiary,
		},
	}, nil
}

// StoreConfig 描述会话持久化后端。
type StoreConfig struct {
	Driver      string
	Dir         string
	PostgresDSN string
	S3          S3Config
	CacheSize   int
}

// S3Config 描述 S3 兼容对象存储。
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("SESSION_STORE", "file"))
	switch driver {
	case "file", "postgres", "s3", "memory":
	default:
		return StoreConfig{}, fmt.Errorf("invalid SESSION_STORE value %q", driver)
	}

	useSSL, err := parseBoolEnv("SESSION_S3_USE_SSL", true)
	if err != nil {
		return StoreConfig{}, err
	}

	cacheSize := 256
	if override, err := parseOptionalIntEnv("SESSION_CACHE_SIZE"); err != nil {
		return StoreConfig{}, err
	} else if override != nil {
		cacheSize = *override
	}

	dir := strings.TrimSpace(os.Getenv("SESSION_DIR"))
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = home + string(os.PathSeparator) + ".tarot_sessions"
	}

	cfg := StoreConfig{
		Driver:      driver,
		Dir:         dir,
		PostgresDSN: strings.TrimSpace(os.Getenv("SESSION_PG_DSN")),
		S3: S3Config{
			Endpoint:  strings.TrimSpace(os.Getenv("SESSION_S3_ENDPOINT")),
			Bucket:    getEnvOrDefault("SESSION_S3_BUCKET", "tarot-sessions"),
			AccessKey: strings.TrimSpace(os.Getenv("SESSION_S3_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("SESSION_S3_SECRET_KEY")),
			Region:    strings.TrimSpace(os.Getenv("SESSION_S3_REGION")),
			UseSSL:    useSSL,
		},
		CacheSize: cacheSize,
	}

	if driver == "postgres" && cfg.PostgresDSN == "" {
		return StoreConfig{}, fmt.Errorf("SESSION_PG_DSN is required when SESSION_STORE=postgres")
	}
	if driver == "s3" && cfg.S3.Endpoint == "" {
		return StoreConfig{}, fmt.Errorf("SESSION_S3_ENDPOINT is required when SESSION_STORE=s3")
	}
	return cfg, nil
}

// ModerationConfig 描述用户输入审核。
type ModerationConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
}

func loadModerationConfig() (ModerationConfig, error) {
	enabled, err := parseBoolEnv("MODERATION_ENABLED", false)
	if err != nil {
		return ModerationConfig{}, err
	}
	cfg := ModerationConfig{
		Enabled: enabled,
		APIKey:  getEnvOrDefault("MODERATION_API_KEY", strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))),
		BaseURL: getEnvOrDefault("MODERATION_BASE_URL", "https://api.openai.com/v1"),
		Model:   getEnvOrDefault("MODERATION_MODEL", "omni-moderation-latest"),
	}
	if cfg.Enabled && cfg.APIKey == "" {
		return ModerationConfig{}, fmt.Errorf("MODERATION_API_KEY or OPENAI_API_KEY is required when MODERATION_ENABLED=true")
	}
	return cfg, nil
}

// AssetsConfig 描述静态图片资源位置。
type AssetsConfig struct {
	ImageDir string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseAttemptsEnv(key string, defaultValue int) (int, error) {
	override, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if override == nil {
		return defaultValue, nil
	}
	if *override < 1 {
		return 0, fmt.Errorf("invalid %s value %d: must be at least 1", key, *override)
	}
	return *override, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}
