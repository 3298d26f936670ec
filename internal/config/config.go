package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port             string
	Env              string
	LogLevel         string
	LogFormat        string
	WebhookDebugLogs bool

	// WhatsApp Cloud API
	VerifyToken       string
	WhatsAppToken     string
	WhatsAppAppSecret string
	GraphVersion      string
	GraphBaseURL      string
	SendTimeout       time.Duration

	TenantsFile string

	// Conversation store
	StateBackend   string
	StoreTimeout   time.Duration
	HistoryLimit   int
	DedupeCapacity int
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	StateTable     string

	// Generative fallback
	LLMProvider    string
	LLMSecondary   string
	LLMTemperature float32
	LLMMaxTokens   int
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	BedrockModelID string
	GeminiAPIKey   string
	GeminiModel    string

	// Queueing
	QueueBackend         string
	ConversationQueueURL string
	WorkerCount          int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	AdminJWTSecret string

	// Operator email notifications
	EmailProvider  string
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "3000"),
		Env:              getEnv("ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		WebhookDebugLogs: getEnvAsBool("WEBHOOK_DEBUG_LOGS", false),

		VerifyToken:       getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken:     getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppAppSecret: getEnv("WHATSAPP_APP_SECRET", ""),
		GraphVersion:      getEnv("GRAPH_VERSION", "v22.0"),
		GraphBaseURL:      getEnv("GRAPH_BASE_URL", "https://graph.facebook.com"),
		SendTimeout:       getEnvAsDuration("WHATSAPP_SEND_TIMEOUT", 15*time.Second),

		TenantsFile: getEnv("TENANTS_FILE", ""),

		StateBackend:   strings.ToLower(strings.TrimSpace(getEnv("STATE_BACKEND", "memory"))),
		StoreTimeout:   getEnvAsDuration("STORE_TIMEOUT", 2*time.Second),
		HistoryLimit:   getEnvAsInt("HISTORY_LIMIT", 12),
		DedupeCapacity: getEnvAsInt("DEDUPE_CAPACITY", 5000),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		StateTable:     getEnv("CONVERSATION_STATE_TABLE", "whatsapp_conversations"),

		LLMProvider:    strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMSecondary:   strings.ToLower(strings.TrimSpace(getEnv("LLM_SECONDARY_PROVIDER", ""))),
		LLMTemperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.4),
		LLMMaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 400),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		QueueBackend:         strings.ToLower(strings.TrimSpace(getEnv("QUEUE_BACKEND", "memory"))),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "WhatsApp Concierge"),
	}
}

// LoadDotEnv populates the environment from the given files (".env" when
// none are given). Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 32); err == nil {
		return float32(value)
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
