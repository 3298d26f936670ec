package conversation

import (
	"context"

	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// ProviderLeg is one generative backend in a failover chain. Model, when
// set, replaces the request model for that backend.
type ProviderLeg struct {
	Name   string
	Model  string
	Client LLMClient
}

// FailoverLLMClient sends a request to the primary backend and, when that
// fails, retries once on the secondary.
type FailoverLLMClient struct {
	primary   ProviderLeg
	secondary *ProviderLeg
	logger    *logging.Logger
}

// NewFailoverLLMClient chains primary and secondary. A nil secondary means
// the client only uses the primary.
func NewFailoverLLMClient(primary ProviderLeg, secondary *ProviderLeg, logger *logging.Logger) *FailoverLLMClient {
	if primary.Client == nil {
		panic("conversation: primary llm client cannot be nil")
	}
	if secondary != nil && secondary.Client == nil {
		secondary = nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverLLMClient{primary: primary, secondary: secondary, logger: logger}
}

func (c *FailoverLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	// A cancelled turn is not a provider failure.
	if ctx.Err() != nil || c.secondary == nil {
		return LLMResponse{}, err
	}

	c.logger.Warn("primary LLM failed, attempting secondary",
		"primary", c.primary.Name,
		"secondary", c.secondary.Name,
		"error", err,
	)
	resp, secondaryErr := c.secondary.complete(ctx, req)
	if secondaryErr != nil {
		c.logger.Error("secondary LLM also failed",
			"primary_error", err,
			"secondary_error", secondaryErr,
		)
		return LLMResponse{}, secondaryErr
	}
	c.logger.Info("secondary LLM succeeded after primary failure", "secondary", c.secondary.Name)
	return resp, nil
}

func (l ProviderLeg) complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if l.Model != "" {
		req.Model = l.Model
	}
	return l.Client.Complete(ctx, req)
}
