package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"course-ledger-go/internal/api"
	"course-ledger-go/internal/certificate"
	"course-ledger-go/internal/database"
	"course-ledger-go/internal/enrollment"
	"course-ledger-go/internal/listener"
	"course-ledger-go/internal/models"
	"course-ledger-go/internal/outbox"
	"course-ledger-go/internal/payments"
	"course-ledger-go/internal/progress"
	"course-ledger-go/internal/provider"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService    *database.Service
	Providers    *provider.Registry
	Sandbox      *provider.Sandbox
	Enrollments  *enrollment.Materializer
	Payments     *payments.Service
	Progress     *progress.Engine
	Certificates *certificate.Evaluator
	Poller       *listener.PaymentPoller
	Reconciler   *listener.Reconciler
	// Publisher is nil when no Kafka brokers are configured
	Publisher *outbox.Publisher
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	registry, sandbox, err := InitializeProviders(cfg.Provider)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	materializer := enrollment.NewMaterializer(dbService)
	paymentService := payments.NewService(dbService, registry, materializer, cfg.Provider)

	svc := &Services{
		DbService:    dbService,
		Providers:    registry,
		Sandbox:      sandbox,
		Enrollments:  materializer,
		Payments:     paymentService,
		Progress:     progress.NewEngine(dbService),
		Certificates: certificate.NewEvaluator(dbService, cfg.Assessment.Reviewers...),
		Poller: listener.NewPaymentPoller(listener.PaymentPollerConfig{
			Payments:        paymentService,
			DbService:       dbService,
			PollingInterval: cfg.Poller.PollingInterval,
			MinPendingAge:   cfg.Poller.MinPendingAge,
			CleanupInterval: cfg.Poller.CleanupInterval,
			BatchSize:       cfg.Poller.BatchSize,
		}),
		Reconciler: listener.NewReconciler(listener.ReconcilerConfig{
			DbService:    dbService,
			Materializer: materializer,
			Schedule:     cfg.Reconcile.Schedule,
			BatchSize:    cfg.Reconcile.BatchSize,
		}),
	}

	if len(cfg.Outbox.KafkaBrokers) > 0 {
		svc.Publisher = outbox.NewPublisher(outbox.PublisherConfig{
			DbService:    dbService,
			Producer:     outbox.NewKafkaProducer(cfg.Outbox.KafkaBrokers, cfg.Provider.Timeout),
			Topic:        cfg.Outbox.Topic,
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
		})
		zap.L().Info("Outbox publishing enabled", zap.Strings("brokers", cfg.Outbox.KafkaBrokers))
	} else {
		zap.L().Warn("No Kafka brokers configured, outbox events will accumulate unpublished")
	}

	return svc, nil
}

// InitializeProviders registers every provider that has credentials.
// Method routing: paypal goes to PayPal, card to the gateway, and sandbox to
// the in-process provider. The sandbox also serves card when no gateway is
// configured.
func InitializeProviders(cfg models.ProviderConfig) (*provider.Registry, *provider.Sandbox, error) {
	registry := provider.NewRegistry()

	httpClient, err := provider.NewHTTPClient(cfg.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build provider http client: %w", err)
	}

	if cfg.PayPalClientID != "" && cfg.PayPalClientSecret != "" {
		pp, err := provider.NewPayPal(provider.PayPalConfig{
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			APIBase:      cfg.PayPalAPIBase,
			WebhookID:    cfg.PayPalWebhookID,
			ReturnURL:    cfg.PayPalReturnURL,
			CancelURL:    cfg.PayPalCancelURL,
		}, httpClient)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize paypal provider: %w", err)
		}
		registry.Register(pp, "paypal")
	}

	gatewayConfigured := cfg.GatewayBaseURL != "" && cfg.GatewayAPIKey != ""
	if gatewayConfigured {
		gw, err := provider.NewGateway(provider.GatewayConfig{
			BaseURL:       cfg.GatewayBaseURL,
			APIKey:        cfg.GatewayAPIKey,
			WebhookSecret: cfg.GatewayWebhookSecret,
			Timeout:       cfg.Timeout,
		}, httpClient)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize gateway provider: %w", err)
		}
		registry.Register(gw, "card")
	}

	var sandbox *provider.Sandbox
	if cfg.SandboxEnabled {
		sandbox = provider.NewSandbox(cfg.SandboxSecret, "")
		methods := []string{"sandbox"}
		if !gatewayConfigured {
			methods = append(methods, "card")
		}
		registry.Register(sandbox, methods...)
	}

	methods := registry.Methods()
	if len(methods) == 0 {
		return nil, nil, fmt.Errorf("no payment provider configured: set PayPal or gateway credentials, or SANDBOX_PROVIDER_ENABLED")
	}
	zap.L().Info("Payment providers ready", zap.Strings("methods", methods))
	return registry, sandbox, nil
}

// InitializeDatabaseOnly initializes just the database service without providers.
// Useful for catalog sync and read-only reports.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// API builds the HTTP surface over the initialized services
func (cs *Services) API() *api.LedgerService {
	return api.NewLedgerService(api.Services{
		Store:        cs.DbService,
		Payments:     cs.Payments,
		Progress:     cs.Progress,
		Certificates: cs.Certificates,
		Enrollments:  cs.Enrollments,
	})
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
