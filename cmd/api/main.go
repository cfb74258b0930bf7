package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/silkthread/api/internal/handlers"
	"github.com/silkthread/api/internal/payments"
	"github.com/silkthread/api/internal/platform/auth"
	"github.com/silkthread/api/internal/platform/config"
	pfirestore "github.com/silkthread/api/internal/platform/firestore"
	"github.com/silkthread/api/internal/platform/idempotency"
	"github.com/silkthread/api/internal/platform/jobs"
	"github.com/silkthread/api/internal/platform/observability"
	"github.com/silkthread/api/internal/platform/secrets"
	"github.com/silkthread/api/internal/repositories"
	firestoreRepo "github.com/silkthread/api/internal/repositories/firestore"
	"github.com/silkthread/api/internal/services"
	"github.com/silkthread/api/internal/supplier"
)

func main() {
	ctx := context.Background()

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

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.ResolveSecret)),
	)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}

	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)

	supplierHTTP := &http.Client{Timeout: cfg.Supplier.HTTPTimeout}
	authAPI, err := supplier.NewAuthAPI(cfg.Supplier.BaseURL, cfg.Supplier.Email, cfg.Supplier.APIKey, supplierHTTP)
	if err != nil {
		logger.Fatal("failed to initialise supplier auth api", zap.Error(err))
	}
	tokenStore, err := supplier.NewFileTokenStore(cfg.Supplier.TokenPath)
	if err != nil {
		logger.Fatal("failed to initialise supplier token store", zap.Error(err))
	}
	tokenCache, err := supplier.NewTokenCache(authAPI, tokenStore,
		supplier.WithTokenTTL(cfg.Supplier.TokenTTL),
		supplier.WithTokenLogger(observability.EventLogger(logger.Named("supplier.token"))),
	)
	if err != nil {
		logger.Fatal("failed to initialise supplier token cache", zap.Error(err))
	}
	supplierClient, err := supplier.NewClient(cfg.Supplier.BaseURL, tokenCache,
		supplier.WithHTTPClient(supplierHTTP),
		supplier.WithCallInterval(cfg.Supplier.CallInterval),
		supplier.WithClientLogger(observability.EventLogger(logger.Named("supplier.client"))),
	)
	if err != nil {
		logger.Fatal("failed to initialise supplier client", zap.Error(err))
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.Notifications.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	emailTopic := pubsubClient.Topic(cfg.Notifications.EmailTopic)
	defer emailTopic.Stop()

	emailPublisher, err := jobs.NewPubSubEmailPublisher(emailTopic)
	if err != nil {
		logger.Fatal("failed to initialise email publisher", zap.Error(err))
	}

	notifier, err := services.NewNotificationService(services.NotificationServiceDeps{
		Publisher: emailPublisher,
		FromEmail: cfg.Notifications.FromEmail,
		Logger:    observability.EventLogger(logger.Named("notifications")),
	})
	if err != nil {
		logger.Fatal("failed to initialise notification service", zap.Error(err))
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Logger:        observability.EventLogger(logger.Named("stripe")),
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}

	conversionService, err := services.NewConversionService(services.ConversionServiceDeps{
		Orders:          orderRepo,
		Products:        productRepo,
		Gateway:         supplierClient,
		FromCountryCode: cfg.Fulfillment.ShipFromCountry,
		LogisticsName:   cfg.Fulfillment.LogisticsType,
		Logger:          observability.EventLogger(logger.Named("conversion")),
	})
	if err != nil {
		logger.Fatal("failed to initialise conversion service", zap.Error(err))
	}

	paymentWebhookService, err := services.NewPaymentWebhookService(services.PaymentWebhookServiceDeps{
		Verifier:  stripeProvider,
		Orders:    orderRepo,
		Converter: conversionService,
		Notifier:  notifier,
		Logger:    observability.EventLogger(logger.Named("payments.webhook")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment webhook service", zap.Error(err))
	}

	supplierWebhookService, err := services.NewSupplierWebhookService(services.SupplierWebhookServiceDeps{
		Orders:   orderRepo,
		Notifier: notifier,
		Gateway:  supplierClient,
		Logger:   observability.EventLogger(logger.Named("supplier.webhook")),
	})
	if err != nil {
		logger.Fatal("failed to initialise supplier webhook service", zap.Error(err))
	}

	catalogService, err := services.NewCatalogSyncService(services.CatalogSyncServiceDeps{
		Gateway:         supplierClient,
		Products:        productRepo,
		ShipFromCountry: cfg.Fulfillment.ShipFromCountry,
		DestCountry:     cfg.Fulfillment.DestCountryDefault,
		RateBackoff:     cfg.Supplier.RateBackoff,
		FreightFallback: cfg.Fulfillment.FreightFallback,
		Logger:          observability.EventLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog sync service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Provider:   stripeProvider,
		Orders:     orderRepo,
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
		Logger:     observability.EventLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	healthRepo, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "firestore", Check: firestorePing(firestoreClient)},
		{Name: "pubsub", Check: topicPing(emailTopic)},
	})
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}
	systemService, err := services.NewSystemService(services.SystemServiceDeps{Health: healthRepo})
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	webhookHandlers, err := handlers.NewWebhookHandlers(handlers.WebhookHandlersDeps{
		Payments:              paymentWebhookService,
		Supplier:              supplierWebhookService,
		SupplierWebhookSecret: cfg.Supplier.WebhookSecret,
	})
	if err != nil {
		logger.Fatal("failed to initialise webhook handlers", zap.Error(err))
	}
	adminHandlers, err := handlers.NewAdminHandlers(handlers.AdminHandlersDeps{
		Converter: conversionService,
		Catalog:   catalogService,
		Webhooks:  supplierWebhookService,
	})
	if err != nil {
		logger.Fatal("failed to initialise admin handlers", zap.Error(err))
	}
	checkoutHandlers, err := handlers.NewCheckoutHandlers(checkoutService)
	if err != nil {
		logger.Fatal("failed to initialise checkout handlers", zap.Error(err))
	}
	publicHandlers, err := handlers.NewPublicHandlers(catalogService)
	if err != nil {
		logger.Fatal("failed to initialise public handlers", zap.Error(err))
	}
	healthHandlers := handlers.NewHealthHandlers(handlers.HealthHandlersDeps{System: systemService})

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	checkoutIdempotency := idempotency.Middleware(idempotencyStore,
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(zap.NewStdLog(logger.Named("idempotency"))),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID)),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(publicHandlers.Routes()),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes()),
		handlers.WithCheckoutMiddlewares(checkoutIdempotency),
		handlers.WithAdminRoutes(adminHandlers.Routes()),
		handlers.WithAdminMiddlewares(authenticator.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff)),
		handlers.WithWebhookRoutes(webhookHandlers.Routes()),
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

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("silkthread api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if project := strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	if fallback := strings.TrimSpace(os.Getenv("API_SECRETS_FALLBACK_FILE")); fallback != "" {
		opts = append(opts, secrets.WithFallbackFile(fallback))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// firestorePing reads a sentinel document; a missing document still proves
// connectivity, so NotFound counts as healthy.
func firestorePing(client *firestore.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := client.Collection("orders").Doc("healthcheck").Get(ctx)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		return nil
	}
}

func topicPing(topic *pubsub.Topic) func(context.Context) error {
	return func(ctx context.Context) error {
		ok, err := topic.Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("pubsub topic %s does not exist", topic.ID())
		}
		return nil
	}
}
