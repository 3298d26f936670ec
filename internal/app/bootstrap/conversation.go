package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

const memoryQueueBuffer = 256

// BuildLLMClient returns the generative backend named by LLM_PROVIDER,
// chained to LLM_SECONDARY_PROVIDER when one is set. A nil client with a nil
// error means generation is disabled.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsLoader *AWSLoader, logger *logging.Logger) (conversation.LLMClient, string, func(), error) {
	if cfg == nil {
		return nil, "", nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	primary, closePrimary, err := buildProvider(ctx, cfg, cfg.LLMProvider, awsLoader, logger)
	if err != nil {
		return nil, "", nil, err
	}
	if primary == nil {
		logger.Warn("no LLM provider configured; free-form messages will fail with a configuration error")
		return nil, "", closePrimary, nil
	}
	if cfg.LLMSecondary == "" || cfg.LLMSecondary == "none" || cfg.LLMSecondary == cfg.LLMProvider {
		return primary.Client, primary.Model, closePrimary, nil
	}

	secondary, closeSecondary, err := buildProvider(ctx, cfg, cfg.LLMSecondary, awsLoader, logger)
	if err != nil {
		closePrimary()
		return nil, "", nil, err
	}
	if secondary == nil {
		return primary.Client, primary.Model, closePrimary, nil
	}
	logger.Info("llm failover enabled", "primary", primary.Name, "secondary", secondary.Name)
	closer := func() {
		closeSecondary()
		closePrimary()
	}
	return conversation.NewFailoverLLMClient(*primary, secondary, logger), primary.Model, closer, nil
}

func buildProvider(ctx context.Context, cfg *appconfig.Config, provider string, awsLoader *AWSLoader, logger *logging.Logger) (*conversation.ProviderLeg, func(), error) {
	noop := func() {}

	switch provider {
	case "", "none":
		return nil, noop, nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			logger.Warn("OPENAI_API_KEY missing; provider disabled", "provider", provider)
			return nil, noop, nil
		}
		client, err := conversation.NewOpenAIClientFromConfig(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: openai client: %w", err)
		}
		logger.Info("using openai for fallback replies", "model", cfg.OpenAIModel)
		return &conversation.ProviderLeg{Name: provider, Model: cfg.OpenAIModel, Client: conversation.NewOpenAILLMClient(client)}, noop, nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			logger.Warn("BEDROCK_MODEL_ID missing; provider disabled", "provider", provider)
			return nil, noop, nil
		}
		awsCfg, err := awsLoader.Load(ctx)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using bedrock for fallback replies", "model", cfg.BedrockModelID)
		return &conversation.ProviderLeg{Name: provider, Model: cfg.BedrockModelID, Client: conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))}, noop, nil
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			logger.Warn("GEMINI_API_KEY missing; provider disabled", "provider", provider)
			return nil, noop, nil
		}
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		logger.Info("using gemini for fallback replies", "model", cfg.GeminiModel)
		return &conversation.ProviderLeg{Name: provider, Model: cfg.GeminiModel, Client: client}, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown LLM provider %q", provider)
	}
}

// BuildGenerator wraps the configured LLM client in the fallback generator.
// It returns a nil generator when generation is disabled.
func BuildGenerator(ctx context.Context, cfg *appconfig.Config, awsLoader *AWSLoader, store conversation.Store, logger *logging.Logger, m *metrics.ConversationMetrics) (conversation.ReplyGenerator, func(), error) {
	client, model, closer, err := BuildLLMClient(ctx, cfg, awsLoader, logger)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return nil, closer, nil
	}
	gen := conversation.NewFallbackGenerator(client, store, conversation.FallbackConfig{
		Provider:    cfg.LLMProvider,
		Model:       model,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   int32(cfg.LLMMaxTokens),
	}, logger, m)
	return gen, closer, nil
}

// BuildQueue returns the inbound queue named by QUEUE_BACKEND.
func BuildQueue(ctx context.Context, cfg *appconfig.Config, awsLoader *AWSLoader, logger *logging.Logger) (conversation.Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.QueueBackend {
	case "", "memory":
		logger.Info("using in-memory conversation queue")
		return conversation.NewMemoryQueue(memoryQueueBuffer), nil
	case "sqs":
		if strings.TrimSpace(cfg.ConversationQueueURL) == "" {
			return nil, fmt.Errorf("bootstrap: CONVERSATION_QUEUE_URL required for sqs queue")
		}
		awsCfg, err := awsLoader.Load(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqs conversation queue", "queue_url", cfg.ConversationQueueURL)
		return conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}
}
