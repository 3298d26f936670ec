package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/wolfman30/whatsapp-concierge/cmd/mainconfig"
	"github.com/wolfman30/whatsapp-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

type sqsHandler func(ctx context.Context, evt events.SQSEvent) error

func newSQSHandler(engine conversation.MessageHandler, logger *logging.Logger) sqsHandler {
	return func(ctx context.Context, evt events.SQSEvent) error {
		logger.Debug("sqs batch received", "records", len(evt.Records))
		return conversation.HandleSQSEvent(ctx, engine, logger, evt)
	}
}

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	// Built once per cold start.
	ctx := context.Background()
	awsLoader := bootstrap.NewAWSLoader(func(ctx context.Context) (aws.Config, error) {
		return mainconfig.LoadAWSConfig(ctx, cfg)
	})
	rt, err := bootstrap.NewRuntime(ctx, cfg, logger, bootstrap.Options{AWS: awsLoader})
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	lambda.Start(newSQSHandler(rt.Engine, logger))
}
