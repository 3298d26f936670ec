package conversation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

var geminiTracer = otel.Tracer("whatsapp.internal.conversation.gemini")

// GeminiLLMClient implements LLMClient on Google's Gemini API.
type GeminiLLMClient struct {
	client *genai.Client
	model  string
}

func NewGeminiLLMClient(ctx context.Context, apiKey, model string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: gemini client: %w", err)
	}
	return &GeminiLLMClient{client: client, model: cmp.Or(strings.TrimSpace(model), defaultGeminiModel)}, nil
}

func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	history, prompt := geminiTurns(req.Messages)
	if prompt == "" {
		return LLMResponse{}, errors.New("conversation: gemini requires a non-empty final message")
	}

	name := cmp.Or(req.Model, c.model)
	ctx, span := geminiTracer.Start(ctx, "conversation.gemini")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", name), attribute.Int("llm.history", len(history)))

	model := c.client.GenerativeModel(name)
	applyGeminiSettings(model, req)

	chat := model.StartChat()
	chat.History = history
	resp, err := chat.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		span.RecordError(err)
		return LLMResponse{}, geminiError(err)
	}
	return geminiResponse(resp), nil
}

func (c *GeminiLLMClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func applyGeminiSettings(model *genai.GenerativeModel, req LLMRequest) {
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	var system []string
	for _, s := range req.System {
		if s = strings.TrimSpace(s); s != "" {
			system = append(system, s)
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = genai.NewUserContent(genai.Text(strings.Join(system, "\n\n")))
	}
}

// geminiTurns splits messages into chat history and the prompt to send.
// Gemini rejects two consecutive turns from one role, so adjacent turns
// from the same side are merged.
func geminiTurns(msgs []ChatMessage) (history []*genai.Content, prompt string) {
	type turn struct {
		role string
		text []string
	}
	var turns []turn
	for _, m := range msgs {
		text := strings.TrimSpace(m.Content)
		if text == "" || m.Role == ChatRoleSystem {
			continue
		}
		role := "user"
		if m.Role == ChatRoleAssistant {
			role = "model"
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].text = append(turns[n-1].text, text)
			continue
		}
		turns = append(turns, turn{role: role, text: []string{text}})
	}
	if len(turns) == 0 {
		return nil, ""
	}
	last := turns[len(turns)-1]
	if last.role != "user" {
		// Nothing to answer.
		return nil, ""
	}
	for _, t := range turns[:len(turns)-1] {
		history = append(history, &genai.Content{Role: t.role, Parts: []genai.Part{genai.Text(strings.Join(t.text, "\n"))}})
	}
	return history, strings.Join(last.text, "\n")
}

func geminiResponse(resp *genai.GenerateContentResponse) LLMResponse {
	var out LLMResponse
	if resp == nil {
		return out
	}
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		out.StopReason = cand.FinishReason.String()
		if cand.Content != nil {
			var b strings.Builder
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					b.WriteString(string(t))
				}
			}
			out.Text = strings.TrimSpace(b.String())
		}
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = TokenUsage{
			InputTokens:  u.PromptTokenCount,
			OutputTokens: u.CandidatesTokenCount,
			TotalTokens:  u.TotalTokenCount,
		}
	}
	return out
}

func geminiError(err error) error {
	pe := &ProviderError{Provider: "gemini", Err: err}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		pe.StatusCode = apiErr.Code
		pe.Body = apiErr.Body
	}
	return pe
}
