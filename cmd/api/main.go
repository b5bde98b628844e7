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

	"cloud.google.com/go/pubsub"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"

	"github.com/Bashir-Janbalat/store-app-be/internal/di"
	"github.com/Bashir-Janbalat/store-app-be/internal/handlers"
	"github.com/Bashir-Janbalat/store-app-be/internal/notifications"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/config"
	pfirestore "github.com/Bashir-Janbalat/store-app-be/internal/platform/firestore"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/idempotency"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/jobs"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/observability"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/postgres"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/secrets"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

// Set with -ldflags at build time.
var (
	version   = "dev"
	commitSHA = ""
)

const (
	idempotencyCollection = "idempotency_keys"
	localSecretPrefix     = "STORE_SECRET_"
	shutdownTimeout       = 15 * time.Second
	jobTimeout            = time.Minute
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	resolver, err := secrets.NewResolver(ctx,
		secrets.WithProject(os.Getenv("STORE_SECRETS_PROJECT_ID")),
		secrets.WithLocalValues(localSecretsFromEnv(os.Environ())),
		secrets.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	stripe.DefaultLeveledLogger = observability.NewPrintfAdapter(logger.Named("stripe"))

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	catalogDB, err := postgres.Open(cfg.Postgres, logger.Named("postgres"))
	if err != nil {
		logger.Fatal("failed to open catalog database", zap.Error(err))
	}

	registry, err := di.NewRegistry(firestoreProvider, catalogDB)
	if err != nil {
		logger.Fatal("failed to build repositories", zap.Error(err))
	}

	eventLogger := services.Logger(observability.EventLogger(logger.Named("services")))
	containerOpts := []di.Option{
		di.WithLogger(eventLogger),
		di.WithIdempotencyStore(idempotency.NewFirestoreStore(firestoreProvider, idempotencyCollection)),
	}

	var pubsubClient *pubsub.Client
	var topics []*pubsub.Topic
	if cfg.PubSub.OrderEventsTopic != "" || cfg.PubSub.MailTopic != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
	}
	if pubsubClient != nil && cfg.PubSub.OrderEventsTopic != "" {
		topic := pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
		topic.EnableMessageOrdering = true
		topics = append(topics, topic)
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithOrderEvents(publisher))
	}
	if pubsubClient != nil && cfg.PubSub.MailTopic != "" {
		topic := pubsubClient.Topic(cfg.PubSub.MailTopic)
		topics = append(topics, topic)
		mailer, err := jobs.NewPubSubMailer(topic)
		if err != nil {
			logger.Fatal("failed to initialise mail publisher", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithMailer(mailer))
	} else {
		containerOpts = append(containerOpts, di.WithMailer(notifications.NewLogMailer(logger.Named("mail"))))
	}
	defer func() {
		for _, topic := range topics {
			topic.Stop()
		}
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()
	svc := container.Services

	authenticator := auth.NewAuthenticator(container.Tokens,
		auth.WithCookieName(cfg.Auth.CookieName),
		auth.WithSessionCookieName(cfg.Auth.SessionCookieName),
		auth.WithSessionHeader(cfg.Auth.SessionHeader),
		auth.WithSecureCookies(cfg.Server.Environment != "local"),
		auth.WithRevocations(container.Revocations),
	)
	idempotencyMiddleware := idempotency.Middleware(
		container.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	jwks := auth.NewJWKSCache(cfg.OIDC.JWKSURL, &http.Client{Timeout: 5 * time.Second}, time.Now)
	oidcMiddleware := auth.NewOIDCValidator(jwks, logger.Named("auth"), time.Now).
		RequireOIDC(cfg.OIDC.Audience, cfg.OIDC.Issuers)

	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(handlers.BuildInfo{
			Version:     version,
			CommitSHA:   commitSHA,
			Environment: cfg.Server.Environment,
			StartedAt:   startedAt,
		}),
		handlers.WithHealthReporter(registry.Health()),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithAuthRoutes(handlers.NewAuthHandlers(authenticator, svc.Auth).Routes),
		handlers.WithCartRoutes(handlers.NewCartHandlers(authenticator, svc.Cart).Routes),
		handlers.WithWishlistRoutes(handlers.NewWishlistHandlers(authenticator, svc.Wishlist).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(authenticator, svc.Orders, idempotencyMiddleware).Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(authenticator, svc.Checkout, idempotencyMiddleware).Routes),
		handlers.WithMeRoutes(handlers.NewAddressHandlers(authenticator, svc.Addresses).Routes),
		handlers.WithProductRoutes(handlers.NewReviewHandlers(authenticator, svc.Reviews).Routes),
		handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(svc.Webhooks).Routes),
		handlers.WithInternalRoutes(handlers.NewMaintenanceHandlers(svc.Cleanup).Routes, oidcMiddleware),
	)

	jobsCtx, stopJobs := context.WithCancel(context.Background())
	var jobsWG sync.WaitGroup
	runPeriodically(jobsCtx, &jobsWG, cfg.Cleanup.Interval, func(ctx context.Context) {
		result, err := svc.Cleanup.SweepAnonymous(ctx)
		if err != nil {
			logger.Error("anonymous cleanup failed", zap.Error(err))
			return
		}
		logger.Info("anonymous cleanup finished",
			zap.Time("cutoff", result.Cutoff),
			zap.Int("carts", result.Carts),
			zap.Int("wishlists", result.Wishlists),
		)
	})
	runPeriodically(jobsCtx, &jobsWG, cfg.Idempotency.CleanupInterval, func(ctx context.Context) {
		removed, err := container.Idempotency.CleanupExpired(ctx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
		if err != nil {
			logger.Error("idempotency cleanup error", zap.Error(err))
			return
		}
		if removed > 0 {
			logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
		}
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting store api server", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err, ok := <-serverErr:
		if ok && err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	stopJobs()
	jobsWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

// runPeriodically runs fn every interval until ctx is cancelled. A non-positive interval
// disables the job.
func runPeriodically(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, jobTimeout)
				fn(runCtx)
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// localSecretsFromEnv maps STORE_SECRET_STRIPE_API=value to the secret name stripe_api.
func localSecretsFromEnv(environ []string) map[string]string {
	values := make(map[string]string)
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, localSecretPrefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, localSecretPrefix))
		if name == "" || value == "" {
			continue
		}
		values[name] = value
	}
	return values
}
