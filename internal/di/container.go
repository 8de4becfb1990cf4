package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hogtech/orderflow/internal/notifications"
	"github.com/hogtech/orderflow/internal/payments"
	"github.com/hogtech/orderflow/internal/platform/auth"
	"github.com/hogtech/orderflow/internal/platform/cache"
	"github.com/hogtech/orderflow/internal/platform/config"
	"github.com/hogtech/orderflow/internal/platform/jobs"
	"github.com/hogtech/orderflow/internal/platform/observability"
	"github.com/hogtech/orderflow/internal/platform/requestctx"
	"github.com/hogtech/orderflow/internal/platform/storage"
	"github.com/hogtech/orderflow/internal/repositories"
	"github.com/hogtech/orderflow/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders    services.OrderService
	Discounts services.DiscountService
	Payments  services.PaymentService
	Webhooks  services.WebhookReconciler
	System    services.SystemService
}

// Infrastructure carries the optional clients created by the entrypoint. Any of them may be nil;
// the container falls back to in-process implementations or skips the concern.
type Infrastructure struct {
	Redis   *redis.Client
	PubSub  *pubsub.Client
	Storage *gcs.Client
	// WebhookSecrets resolves the Paystack webhook signing secret. Defaults to the API secret key.
	WebhookSecrets auth.SecretProvider
	Logger         *zap.Logger
	Build          services.BuildInfo
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Payments     *payments.Manager
	Services     Services

	topics []*pubsub.Topic
}

// NewContainer constructs the runtime dependencies. Production wiring provides the Firestore
// registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Logger == nil {
		infra.Logger = zap.NewNop()
	}

	c := &Container{Config: cfg, Repositories: reg}

	manager, err := buildPaymentManager(cfg, infra)
	if err != nil {
		return nil, err
	}
	c.Payments = manager

	svc, err := c.buildServices(ctx, infra)
	if err != nil {
		c.stopTopics()
		return nil, err
	}
	c.Services = svc
	return c, nil
}

// Close flushes Pub/Sub publishers and releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.stopTopics()
	if c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

// SignatureHeader names the webhook signature header for provider, or "" when unsupported.
func (c *Container) SignatureHeader(provider string) string {
	if c == nil || c.Payments == nil {
		return ""
	}
	webhook, err := c.Payments.Webhook(provider)
	if err != nil {
		return ""
	}
	return webhook.SignatureHeader()
}

func (c *Container) stopTopics() {
	for _, topic := range c.topics {
		topic.Stop()
	}
	c.topics = nil
}

func buildPaymentManager(cfg config.Config, infra Infrastructure) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider, 2)
	paymentsLogger := infra.Logger.Named("payments")

	if key := strings.TrimSpace(cfg.Payments.PaystackSecretKey); key != "" {
		secrets := infra.WebhookSecrets
		if secrets == nil {
			secrets = auth.StaticSecret(key)
		}
		verifier := auth.NewBodySignatureVerifier(secrets, "paystack",
			auth.WithSignatureLogger(observability.NewPrintfAdapter(infra.Logger.Named("webhooks"))),
		)
		paystack, err := payments.NewPaystackProvider(payments.PaystackProviderConfig{
			SecretKey:       key,
			BaseURL:         cfg.Payments.PaystackBaseURL,
			CallbackURL:     cfg.Payments.PaystackCallbackURL,
			SignatureHeader: cfg.Payments.PaystackSignatureHeader,
			Verifier:        verifier,
			Logger:          eventLogger(paymentsLogger, "paystack"),
		})
		if err != nil {
			return nil, fmt.Errorf("build paystack provider: %w", err)
		}
		providers[payments.ProviderPaystack] = paystack
	}

	if key := strings.TrimSpace(cfg.Payments.StripeAPIKey); key != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:     key,
			SuccessURL: cfg.Payments.PaystackCallbackURL,
			CancelURL:  cfg.Payments.PaystackCallbackURL,
			Logger:     eventLogger(paymentsLogger, "stripe"),
			Clock:      time.Now,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		providers[payments.ProviderStripe] = stripeProvider
	}

	if len(providers) == 0 {
		return nil, errors.New("at least one payment provider must be configured")
	}
	opts := []payments.ManagerOption{}
	if def := strings.TrimSpace(cfg.Payments.DefaultProvider); def != "" {
		opts = append(opts, payments.WithDefaultProvider(def))
	}
	manager, err := payments.NewManager(providers, opts...)
	if err != nil {
		return nil, fmt.Errorf("build payment manager: %w", err)
	}
	return manager, nil
}

func (c *Container) buildServices(ctx context.Context, infra Infrastructure) (Services, error) {
	cfg := c.Config
	reg := c.Repositories
	logger := infra.Logger

	settingsOpts := []cache.SettingsOption{
		cache.WithTTL(cfg.Redis.SettingsTTL),
		cache.WithLogger(logger.Named("settings")),
	}
	if infra.Redis != nil {
		settingsOpts = append(settingsOpts, cache.WithRedis(infra.Redis))
	}
	settings, err := cache.NewSettingsCache(reg.Settings(), settingsOpts...)
	if err != nil {
		return Services{}, fmt.Errorf("build settings cache: %w", err)
	}

	var locker services.WebhookLocker
	if infra.Redis != nil {
		redisLocker, err := cache.NewRedisLocker(infra.Redis, cfg.Redis.WebhookLockTTL)
		if err != nil {
			return Services{}, fmt.Errorf("build webhook locker: %w", err)
		}
		locker = redisLocker
	} else {
		locker = cache.NewMemoryLocker(cfg.Redis.WebhookLockTTL)
	}

	var (
		events   services.OrderEventPublisher
		emails   services.EmailNotifier
		admin    services.AdminNotifier
		probes   []services.HealthProbe
		archiver services.WebhookArchiver
	)
	if infra.PubSub != nil {
		eventsTopic := c.topic(infra.PubSub, cfg.PubSub.OrderEventsTopic)
		notificationsTopic := c.topic(infra.PubSub, cfg.PubSub.NotificationsTopic)
		publisher, err := jobs.NewPubSubPublisher(eventsTopic, notificationsTopic)
		if err != nil {
			return Services{}, fmt.Errorf("build pubsub publisher: %w", err)
		}
		if eventsTopic != nil {
			events = publisher
			probes = append(probes, topicProbe{topic: eventsTopic})
		}
		if notificationsTopic != nil {
			notifier, err := notifications.New(publisher, notifications.WithLogger(logger.Named("notifications")))
			if err != nil {
				return Services{}, fmt.Errorf("build notifier: %w", err)
			}
			emails = notifier
			admin = notifier
		}
	}
	if infra.Redis != nil {
		probes = append(probes, redisProbe{client: infra.Redis})
	}
	if infra.Storage != nil && strings.TrimSpace(cfg.Storage.WebhookArchiveBucket) != "" {
		webhookArchiver, err := storage.NewWebhookArchiver(infra.Storage, cfg.Storage.WebhookArchiveBucket)
		if err != nil {
			return Services{}, fmt.Errorf("build webhook archiver: %w", err)
		}
		archiver = webhookArchiver
	}

	customers, err := services.NewCustomerResolver(services.CustomerResolverDeps{
		Customers: reg.Customers(),
		Clock:     time.Now,
		Logger:    eventLogger(logger.Named("customers"), "customer"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build customer resolver: %w", err)
	}

	policy := services.DiscountPolicy(strings.ToLower(strings.TrimSpace(cfg.Orders.DiscountPolicy)))

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:            reg.Orders(),
		Transactions:      reg.Transactions(),
		Discounts:         reg.Discounts(),
		Products:          reg.Products(),
		Deals:             reg.Deals(),
		Inventory:         reg.Inventory(),
		Counters:          reg.Counters(),
		Customers:         customers,
		Settings:          settings,
		UnitOfWork:        reg,
		Emails:            emails,
		Admin:             admin,
		Events:            events,
		DiscountPolicy:    policy,
		TotalTolerance:    cfg.Orders.TotalTolerance,
		OrderNumberPrefix: cfg.Orders.OrderNumberPrefix,
		DefaultCurrency:   cfg.Payments.DefaultCurrency,
		AdminEmail:        cfg.Orders.AdminEmail,
		Clock:             time.Now,
		Logger:            eventLogger(logger.Named("orders"), "order"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	discountSvc, err := services.NewDiscountService(services.DiscountServiceDeps{
		Discounts: reg.Discounts(),
		Clock:     time.Now,
		Logger:    eventLogger(logger.Named("discounts"), "discount"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build discount service: %w", err)
	}

	reconciler, err := services.NewWebhookReconciler(services.WebhookReconcilerDeps{
		Gateway:      c.Payments,
		Orders:       orderSvc,
		OrderReader:  reg.Orders(),
		Transactions: reg.Transactions(),
		Locker:       locker,
		Archiver:     archiver,
		Clock:        time.Now,
		Logger:       eventLogger(logger.Named("webhooks"), "webhook"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build webhook reconciler: %w", err)
	}

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Gateway:         c.Payments,
		Transactions:    reg.Transactions(),
		Orders:          reg.Orders(),
		Discounts:       reg.Discounts(),
		Settings:        settings,
		Reconciler:      reconciler,
		DiscountPolicy:  policy,
		TotalTolerance:  cfg.Orders.TotalTolerance,
		DefaultCurrency: cfg.Payments.DefaultCurrency,
		CallbackURL:     cfg.Payments.PaystackCallbackURL,
		Clock:           time.Now,
		Logger:          eventLogger(logger.Named("payments"), "payment"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}

	build := infra.Build
	if build.Environment == "" {
		build.Environment = cfg.Security.Environment
	}
	if build.StartedAt.IsZero() {
		build.StartedAt = time.Now().UTC()
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Probes:           probes,
		Clock:            time.Now,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return Services{
		Orders:    orderSvc,
		Discounts: discountSvc,
		Payments:  paymentSvc,
		Webhooks:  reconciler,
		System:    systemSvc,
	}, nil
}

func (c *Container) topic(client *pubsub.Client, name string) *pubsub.Topic {
	name = strings.TrimSpace(name)
	if client == nil || name == "" {
		return nil
	}
	topic := client.Topic(name)
	c.topics = append(c.topics, topic)
	return topic
}

// eventLogger adapts a zap logger to the event/fields logging hook services accept.
func eventLogger(logger *zap.Logger, component string) func(context.Context, string, map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		l := logger
		if reqLogger := observability.FromContext(ctx); reqLogger != requestctx.NoopLogger() {
			l = reqLogger.Named(component)
		}
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		if _, failed := fields["error"]; failed {
			l.Warn(component+" log", zFields...)
			return
		}
		l.Debug(component+" log", zFields...)
	}
}

type redisProbe struct {
	client *redis.Client
}

func (p redisProbe) Name() string { return "redis" }

func (p redisProbe) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

type topicProbe struct {
	topic *pubsub.Topic
}

func (p topicProbe) Name() string { return "pubsub" }

func (p topicProbe) Ping(ctx context.Context) error {
	ok, err := p.topic.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("topic %s does not exist", p.topic.ID())
	}
	return nil
}
