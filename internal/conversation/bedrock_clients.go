package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var bedrockTracer = otel.Tracer("whatsapp.internal.conversation.bedrock")

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockLLMClient implements LLMClient on the Bedrock Converse API.
type BedrockLLMClient struct {
	api bedrockConverseAPI
}

func NewBedrockLLMClient(api bedrockConverseAPI) *BedrockLLMClient {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	input, err := converseInput(req)
	if err != nil {
		return LLMResponse{}, err
	}

	ctx, span := bedrockTracer.Start(ctx, "conversation.bedrock")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(input.Messages)),
	)

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		span.RecordError(err)
		return LLMResponse{}, bedrockError(err)
	}
	resp := converseResponse(out)
	span.SetAttributes(attribute.Int("llm.output_tokens", int(resp.Usage.OutputTokens)))
	return resp, nil
}

// converseInput maps a request onto Converse. System-role history entries
// become extra system blocks; blank turns are dropped.
func converseInput(req LLMRequest) (*bedrockruntime.ConverseInput, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("conversation: bedrock model id is required")
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		InferenceConfig: converseInference(req),
	}
	addSystem := func(text string) {
		if strings.TrimSpace(text) != "" {
			input.System = append(input.System, &brtypes.SystemContentBlockMemberText{Value: text})
		}
	}
	for _, block := range req.System {
		addSystem(block)
	}

	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		var role brtypes.ConversationRole
		switch msg.Role {
		case ChatRoleSystem:
			addSystem(content)
			continue
		case ChatRoleUser:
			role = brtypes.ConversationRoleUser
		case ChatRoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return nil, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
		input.Messages = append(input.Messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: content}},
		})
	}
	return input, nil
}

func converseInference(req LLMRequest) *brtypes.InferenceConfiguration {
	cfg := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(req.MaxTokens)
	}
	// Negative means "model default".
	if req.Temperature >= 0 {
		cfg.Temperature = aws.Float32(req.Temperature)
	}
	if req.TopP > 0 {
		cfg.TopP = aws.Float32(req.TopP)
	}
	return cfg
}

func converseResponse(out *bedrockruntime.ConverseOutput) LLMResponse {
	if out == nil {
		return LLMResponse{}
	}
	var resp LLMResponse
	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		var b strings.Builder
		for _, block := range msg.Value.Content {
			if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
				b.WriteString(text.Value)
			}
		}
		resp.Text = strings.TrimSpace(b.String())
	}
	resp.StopReason = string(out.StopReason)
	if u := out.Usage; u != nil {
		resp.Usage = TokenUsage{
			InputTokens:  aws.ToInt32(u.InputTokens),
			OutputTokens: aws.ToInt32(u.OutputTokens),
			TotalTokens:  aws.ToInt32(u.TotalTokens),
		}
	}
	return resp
}

func bedrockError(err error) error {
	pe := &ProviderError{Provider: "bedrock", Err: err}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		pe.StatusCode = respErr.HTTPStatusCode()
		pe.Body = respErr.Err.Error()
	}
	return pe
}
