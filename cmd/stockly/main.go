package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketmitra/stockly/internal/auth"
	"github.com/marketmitra/stockly/internal/config"
	"github.com/marketmitra/stockly/internal/db"
	"github.com/marketmitra/stockly/internal/notify"
	"github.com/marketmitra/stockly/internal/order"
	"github.com/marketmitra/stockly/internal/payment"
	"github.com/marketmitra/stockly/internal/product"
	"github.com/marketmitra/stockly/internal/scheduler"
	"github.com/marketmitra/stockly/internal/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "stockly").Logger()

	log.Info().Msg("Stockly starting...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	productRepo := product.NewRepository(database.Pool)
	orderRepo := order.NewRepository(database.Pool, productRepo)
	gateway := payment.NewRazorpayClient(cfg.Razorpay)

	var notifier order.ConfirmationSender = notify.NoopNotifier{}
	if cfg.SMTP.Host != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTP)
	}

	orderSvc := order.NewService(orderRepo, productRepo, gateway, notifier,
		cfg.Jobs.PendingStaleAfter, cfg.Jobs.FailedRetention)
	productSvc := product.NewService(productRepo)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret)

	jobs := scheduler.New(
		scheduler.Job{
			Name:     "reconcile-pending-orders",
			Interval: cfg.Jobs.ReconcileInterval,
			Run:      orderSvc.ReconcilePendingOrders,
		},
		scheduler.Job{
			Name:     "advance-delivery-statuses",
			Interval: cfg.Jobs.DeliveryInterval,
			Run:      orderSvc.AdvanceDeliveryStatuses,
		},
		scheduler.Job{
			Name:     "purge-failed-orders",
			Interval: cfg.Jobs.CleanupInterval,
			Run: func(ctx context.Context, now time.Time) error {
				_, err := orderSvc.PurgeFailedOrders(ctx, now)
				return err
			},
		},
	)
	jobs.Start(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      transport.NewRouter(orderSvc, productSvc, tokenManager),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	cancel()
	jobs.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
