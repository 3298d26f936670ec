package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	appconfig "github.com/wolfman30/whatsapp-concierge/internal/config"
	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-concierge/internal/tenant"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// Options carries process-level dependencies into NewRuntime.
type Options struct {
	Registerer prometheus.Registerer
	AWS        *AWSLoader
}

// Runtime is the fully wired conversation engine shared by every binary.
type Runtime struct {
	Config    *appconfig.Config
	Logger    *logging.Logger
	Metrics   *metrics.ConversationMetrics
	Registry  *tenant.Registry
	Resolver  *tenant.Resolver
	Reloader  *tenant.Reloader
	Store     conversation.Store
	Queue     conversation.Queue
	Publisher *conversation.Publisher
	Engine    *conversation.Engine

	closers []func()
}

// NewRuntime builds tenants, store, generator, messenger, notifier, queue
// and engine from cfg.
func NewRuntime(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewConversationMetrics(opts.Registerer),
	}

	loader, err := BuildTenantLoader(ctx, cfg, opts.AWS)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: tenant loader: %w", err)
	}
	cfgs, err := loader.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load tenants: %w", err)
	}
	rt.Registry, err = tenant.NewRegistry(cfgs)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: tenant registry: %w", err)
	}
	rt.Resolver = tenant.NewResolver(rt.Registry)
	rt.Reloader = tenant.NewReloader(loader, rt.Registry, rt.Resolver)
	logger.Info("tenants loaded", "count", len(cfgs), "source", loader.String())

	store, closeStore, err := BuildStore(ctx, cfg, opts.AWS, logger, rt.Metrics)
	if err != nil {
		return nil, err
	}
	rt.Store = store
	rt.closers = append(rt.closers, closeStore)

	generator, closeGen, err := BuildGenerator(ctx, cfg, opts.AWS, store, logger, rt.Metrics)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, closeGen)

	messenger, reason := BuildOutboundMessenger(cfg, logger)
	if messenger == nil {
		logger.Warn("outbound messenger disabled; replies will fail with a configuration error", "reason", reason)
	}

	notifier, err := BuildNotifier(ctx, cfg, opts.AWS, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Queue, err = BuildQueue(ctx, cfg, opts.AWS, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Publisher = conversation.NewPublisher(rt.Queue, logger)

	engineOpts := []conversation.EngineOption{
		conversation.WithLedger(conversation.NewLedger(cfg.DedupeCapacity)),
		conversation.WithEngineMetrics(rt.Metrics),
		conversation.WithDebugText(cfg.WebhookDebugLogs),
	}
	if notifier != nil {
		engineOpts = append(engineOpts, conversation.WithNotifier(notifier))
	}
	rt.Engine = conversation.NewEngine(rt.Resolver, rt.Registry, store, generator, messenger, logger, engineOpts...)
	return rt, nil
}

// Close releases backend connections in reverse order of creation.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if rt.closers[i] != nil {
			rt.closers[i]()
		}
	}
	rt.closers = nil
}
