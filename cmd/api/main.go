package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/crumbline/orders-api/internal/handlers"
	"github.com/crumbline/orders-api/internal/platform/auth"
	"github.com/crumbline/orders-api/internal/platform/config"
	pfirestore "github.com/crumbline/orders-api/internal/platform/firestore"
	"github.com/crumbline/orders-api/internal/platform/idempotency"
	"github.com/crumbline/orders-api/internal/platform/jobs"
	"github.com/crumbline/orders-api/internal/platform/observability"
	"github.com/crumbline/orders-api/internal/platform/secrets"
	"github.com/crumbline/orders-api/internal/repositories"
	firestoreRepo "github.com/crumbline/orders-api/internal/repositories/firestore"
	"github.com/crumbline/orders-api/internal/repositories/memory"
	"github.com/crumbline/orders-api/internal/services"
)

const (
	serviceName      = "orders-api"
	meterName        = "github.com/crumbline/orders-api"
	closeTimeout     = 5 * time.Second
	dependencyBudget = 2 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(serviceName, envValues["API_BUILD_VERSION"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	resolver, err := newSecretResolver(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(resolver),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := services.BuildInfo{
		Version:     cfg.Build.Version,
		CommitSHA:   cfg.Build.CommitSHA,
		Environment: cfg.Build.Environment,
		StartedAt:   startedAt,
	}

	checks := []repositories.DependencyCheck{{
		Name:    "secrets",
		Timeout: dependencyBudget,
		Check:   resolver.Check,
	}}

	var (
		orderRepo   repositories.OrderRepository
		replayStore idempotency.Store
	)
	switch cfg.Orders.Store {
	case config.StoreFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := provider.Close(closeCtx); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()

		repo, err := firestoreRepo.NewOrderRepository(provider)
		if err != nil {
			logger.Fatal("failed to initialise order repository", zap.Error(err))
		}
		orderRepo = repo
		replayStore = idempotency.NewFirestoreStore(provider)
		checks = append(checks, repositories.DependencyCheck{
			Name:     "firestore",
			Timeout:  dependencyBudget,
			Critical: true,
			Check:    repo.Ping,
		})
	default:
		logger.Warn("orders are kept in memory; data is lost on restart", zap.String("store", cfg.Orders.Store))
		orderRepo = memory.NewOrderRepository()
		replayStore = idempotency.NewMemoryStore()
	}

	var events services.OrderEventPublisher
	if topicName := strings.TrimSpace(cfg.PubSub.NotificationsTopic); topicName != "" {
		pubsubClient, err := jobs.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		topic := pubsubClient.Topic(topicName)
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		defer publisher.Stop()
		events = publisher
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: dependencyBudget,
			Check: func(ctx context.Context) error {
				return jobs.TopicExists(ctx, topic)
			},
		})
	} else {
		logger.Info("order notifications disabled; no pubsub topic configured")
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}
	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Build:            buildInfo,
	})
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	authenticator := newAuthenticator(ctx, logger, cfg)

	meter := otel.GetMeterProvider().Meter(meterName)
	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:             orderRepo,
		Clock:              time.Now,
		Events:             events,
		Meter:              meter,
		Logger:             observability.NewEventLogger(baseLogger.Named("orders")),
		DefaultPageSize:    cfg.Orders.DefaultPageSize,
		MaxPageSize:        cfg.Orders.MaxPageSize,
		GuestOrdersEnabled: cfg.Orders.GuestOrdersEnabled,
		EventTimeout:       cfg.PubSub.PublishTimeout,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	paymentReplay := idempotency.Middleware(replayStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithOptionalKey(),
		idempotency.WithLogger(baseLogger.Named("idempotency")),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService,
		handlers.WithPaymentReplay(paymentReplay),
		handlers.WithIdempotencyHeader(cfg.Idempotency.Header),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		idempotency.RunCleanup(cleanupCtx, replayStore,
			cfg.Idempotency.CleanupInterval,
			cfg.Idempotency.CleanupBatchSize,
			baseLogger.Named("idempotency"),
		)
	}()

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(baseLogger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(baseLogger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		observability.MetricsMiddleware(meter),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := baseLogger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("orders api listening", zap.String("store", cfg.Orders.Store))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := orderService.DrainEvents(shutdownCtx); err != nil {
		logger.Warn("order notifications still pending at shutdown", zap.Error(err))
	}
}

// newAuthenticator returns nil when no Firebase project is configured. Protected routes then see
// an anonymous caller and the order service rejects them as unauthenticated.
func newAuthenticator(ctx context.Context, logger *zap.Logger, cfg config.Config) *auth.Authenticator {
	if strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
		if cfg.Orders.Store == config.StoreFirestore {
			logger.Fatal("firebase project id is required when orders are stored in firestore")
		}
		logger.Warn("firebase auth disabled; only guest order flows are available")
		return nil
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	return auth.NewAuthenticator(verifier)
}

func newSecretResolver(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Resolver, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(defaultProject),
	}
	if path := lookup("API_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewResolver(ctx, opts...)
}

// requiredSecretNames lists config fields whose raw value is a secret reference; those must
// resolve to something non-empty.
func requiredSecretNames(env map[string]string) []string {
	fields := map[string]string{
		"Firebase.CredentialsJSON":  "API_FIREBASE_CREDENTIALS_JSON",
		"PubSub.NotificationsTopic": "API_PUBSUB_NOTIFICATIONS_TOPIC",
	}
	var names []string
	for name, key := range fields {
		if config.IsSecretReference(env[key]) {
			names = append(names, name)
		}
	}
	return names
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
