package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nomadpass/checkout-api/internal/domain"
	"github.com/nomadpass/checkout-api/internal/handlers"
	"github.com/nomadpass/checkout-api/internal/payments"
	"github.com/nomadpass/checkout-api/internal/platform/config"
	"github.com/nomadpass/checkout-api/internal/platform/observability"
	"github.com/nomadpass/checkout-api/internal/platform/sessions"
	"github.com/nomadpass/checkout-api/internal/services"
)

const sessionCleanupInterval = 5 * time.Minute

func main() {
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

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	converter := services.NewCurrencyConverter(services.ExchangeRates{
		EURToRUB:  cfg.Rates.EURToRUB,
		EURToUSDT: cfg.Rates.EURToUSDT,
	})

	engine := services.NewPricingEngine(services.PricingEngineDeps{
		Rules: domain.DefaultDiscountRules(),
		Now:   time.Now,
	})

	paymentsLogger := observability.EventLogger(logger.Named("payments"))

	stripeProvider := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.Stripe.APIKey,
		Origin: cfg.Checkout.Origin,
		Logger: payments.StripeLogger(paymentsLogger),
	})

	robokassaProvider := payments.NewRoboKassaProvider(payments.RoboKassaConfig{
		MerchantLogin: cfg.PSP.RoboKassa.MerchantLogin,
		Password1:     cfg.PSP.RoboKassa.Password1,
		Password2:     cfg.PSP.RoboKassa.Password2,
		BaseURL:       cfg.PSP.RoboKassa.BaseURL,
		TestMode:      cfg.PSP.RoboKassa.TestMode,
		Logger:        paymentsLogger,
	})

	nowpaymentsProvider := payments.NewNOWPaymentsProvider(payments.NOWPaymentsConfig{
		APIKey:      cfg.PSP.NOWPayments.APIKey,
		PublicKey:   cfg.PSP.NOWPayments.PublicKey,
		BaseURL:     cfg.PSP.NOWPayments.BaseURL,
		Origin:      cfg.Checkout.Origin,
		PayCurrency: cfg.PSP.NOWPayments.PayCurrency,
		Logger:      paymentsLogger,
	})

	dispatcher, err := payments.NewDispatcher(map[string]payments.Route{
		"eur":    {Provider: stripeProvider, Currency: payments.CurrencyEUR},
		"rub":    {Provider: robokassaProvider, Currency: payments.CurrencyRUB},
		"crypto": {Provider: nowpaymentsProvider, Currency: payments.CurrencyUSDT},
	}, converter, payments.WithLogger(paymentsLogger))
	if err != nil {
		logger.Fatal("failed to initialise payment dispatcher", zap.Error(err))
	}

	checkoutLogger := observability.EventLogger(logger.Named("checkout"))
	newFlow := func() (*services.CheckoutFlow, error) {
		return services.NewCheckoutFlow(services.CheckoutFlowDeps{
			Catalog:    domain.DefaultCatalog(),
			Engine:     engine,
			Dispatcher: dispatcher,
			Logger:     checkoutLogger,
		})
	}

	sessionStore := sessions.NewStore(cfg.Checkout.SessionTTL, time.Now)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(sessionCleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("sessions")
		for {
			select {
			case <-cleanupTicker.C:
				if removed := sessionStore.CleanupExpired(0); removed > 0 {
					cleanupLogger.Info("expired checkout sessions removed", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	sessionHandlers, err := handlers.NewSessionHandlers(sessionStore, newFlow)
	if err != nil {
		logger.Fatal("failed to initialise session handlers", zap.Error(err))
	}
	paymentHandlers := handlers.NewPaymentHandlers(dispatcher, converter, stripeProvider, nowpaymentsProvider)
	webhookHandlers := handlers.NewWebhookHandlers(robokassaProvider, paymentsLogger)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthStartedAt(startedAt),
		handlers.WithReadinessCheck("nowpayments", func(ctx context.Context) error {
			probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return nowpaymentsProvider.CheckStatus(probeCtx)
		}),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
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
		serverLogger.Info("checkout api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
