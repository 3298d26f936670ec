// Command llmtest sends one message through the configured fallback LLM
// using a tenant's system prompt, for checking provider credentials.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/wolfman30/whatsapp-concierge/cmd/mainconfig"
	"github.com/wolfman30/whatsapp-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/tenant"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

func main() {
	tenantID := flag.String("tenant", "", "tenant id whose prompt to use (default: first tenant)")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Parse()

	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to read .env:", err)
	}
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, "text", os.Stderr)

	text := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if text == "" {
		text = "Quais serviços vocês oferecem?"
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	awsLoader := bootstrap.NewAWSLoader(func(ctx context.Context) (aws.Config, error) {
		return mainconfig.LoadAWSConfig(ctx, cfg)
	})
	loader, err := bootstrap.BuildTenantLoader(ctx, cfg, awsLoader)
	if err != nil {
		logger.Error("tenant loader", "error", err)
		os.Exit(1)
	}
	tenants, err := loader.Fetch(ctx)
	if err != nil {
		logger.Error("load tenants", "error", err, "source", loader.String())
		os.Exit(1)
	}
	tc, err := pickTenant(tenants, *tenantID)
	if err != nil {
		logger.Error("select tenant", "error", err)
		os.Exit(1)
	}

	client, model, closer, err := bootstrap.BuildLLMClient(ctx, cfg, awsLoader, logger)
	if err != nil {
		logger.Error("build llm client", "error", err)
		os.Exit(1)
	}
	defer closer()
	if client == nil {
		logger.Error("no LLM provider configured", "provider", cfg.LLMProvider)
		os.Exit(1)
	}

	start := time.Now()
	resp, err := probe(ctx, client, tc, model, cfg, text)
	if err != nil {
		logger.Error("completion failed", "provider", cfg.LLMProvider, "error", err)
		os.Exit(1)
	}
	fmt.Printf("%s (%s, %v, in=%d out=%d)\n%s\n",
		cfg.LLMProvider, model, time.Since(start).Round(time.Millisecond),
		resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Text)
}

func pickTenant(tenants []tenant.Config, id string) (tenant.Config, error) {
	if len(tenants) == 0 {
		return tenant.Config{}, fmt.Errorf("no tenants configured")
	}
	if id == "" {
		return tenants[0], nil
	}
	for _, t := range tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return tenant.Config{}, fmt.Errorf("tenant %q not found", id)
}

func probe(ctx context.Context, client conversation.LLMClient, tc tenant.Config, model string, cfg *appconfig.Config, text string) (conversation.LLMResponse, error) {
	return client.Complete(ctx, conversation.LLMRequest{
		Model:       model,
		System:      []string{conversation.SystemPrompt(tc)},
		Messages:    []conversation.ChatMessage{{Role: conversation.ChatRoleUser, Content: text}},
		MaxTokens:   int32(cfg.LLMMaxTokens),
		Temperature: cfg.LLMTemperature,
	})
}
