package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "github.com/livebid/auction-engine/internal/biddingService"
	"github.com/livebid/auction-engine/internal/config"
	model "github.com/livebid/auction-engine/internal/models"
	"github.com/livebid/auction-engine/internal/notify"
	"github.com/livebid/auction-engine/internal/payment"
	"github.com/livebid/auction-engine/internal/repository"
	"github.com/livebid/auction-engine/internal/scheduler"
	"github.com/livebid/auction-engine/internal/server"
	settlement "github.com/livebid/auction-engine/internal/settlementService"
	"github.com/livebid/auction-engine/utils"

	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		utils.Fatal("failed to load config", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLogLevel(cfg.LogLevel); err != nil {
		utils.Fatal("failed to set log level", map[string]any{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		utils.Fatal("failed to open repository", map[string]any{"driver": cfg.StoreDriver, "error": err.Error()})
	}
	defer closeRepo()

	queue := scheduler.NewMemoryQueue(scheduler.Options{
		Concurrency:  cfg.SchedulerConcurrency,
		PollInterval: cfg.SchedulerPollInterval,
		MaxAttempts:  cfg.SchedulerMaxAttempts,
		RetryBackoff: 2 * time.Second,
	})

	rules := bidding.DefaultRules()
	rules.SoftCloseWindow = cfg.SoftCloseWindow
	rules.SoftCloseExtension = cfg.SoftCloseExtension
	rules.DefaultMaxTimerExtensions = cfg.DefaultMaxTimerExtensions

	notifier := notify.NewStoreNotifier(repo)
	biddingSvc := bidding.NewBiddingService(repo, queue,
		bidding.WithRules(rules),
		bidding.WithNotifier(notifier),
	)

	settlementOpts := []settlement.Option{
		settlement.WithNotifier(notifier),
		settlement.WithMailer(notify.LogMailer{From: cfg.MailFrom}),
		settlement.WithCurrency(cfg.PaymentCurrency),
	}
	var parser payment.WebhookParser
	if cfg.PaymentsEnabled() {
		gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		settlementOpts = append(settlementOpts, settlement.WithGateway(gateway))
		parser = gateway
	} else {
		utils.Warn("payments disabled, orders stay pending until paid out of band", nil)
	}
	settlementSvc := settlement.NewSettlementService(repo, queue, settlementOpts...)

	queue.Handle(scheduler.TaskStartAuction, biddingSvc.HandleStartTask)
	queue.Handle(scheduler.TaskEndAuction, settlementSvc.HandleEndTask)

	recovered, err := biddingSvc.RecoverTimers(ctx)
	if err != nil {
		utils.Fatal("failed to recover auction timers", map[string]any{"error": err.Error()})
	}
	utils.Info("auction timers recovered", map[string]any{"count": recovered})

	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		queue.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           server.SetupRouter(biddingSvc, settlementSvc, parser),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		utils.Info("starting auction server", map[string]any{"address": cfg.ServerAddress, "store": cfg.StoreDriver})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error("server stopped unexpectedly", map[string]any{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	utils.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("graceful shutdown failed", map[string]any{"error": err.Error()})
	}
	<-queueDone
}

// openRepository builds the configured store and returns its cleanup func.
func openRepository(ctx context.Context, cfg config.Config) (repository.AuctionDB, func(), error) {
	if cfg.StoreDriver == "postgres" {
		if err := repository.RunMigrations(cfg.PostgresConn); err != nil {
			return nil, nil, err
		}
		pool, err := repository.NewPostgresPool(ctx, cfg.PostgresConn)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresRepo(pool), pool.Close, nil
	}

	repo := repository.NewMemoryRepo()
	prepopulate(repo)
	return repo, func() {}, nil
}

// prepopulate adds sample sellers, buyers and products to the in-memory repo
func prepopulate(repo *repository.MemoryRepo) {
	users := []model.User{
		{UserID: "seller1", Username: "seller1", Email: "seller1@example.com"},
		{UserID: "buyer1", Username: "buyer1", Email: "buyer1@example.com"},
		{UserID: "buyer2", Username: "buyer2", Email: "buyer2@example.com"},
	}
	for _, u := range users {
		repo.AddUser(u)
	}

	products := []model.Product{
		{ProductID: "product1", SellerID: "seller1", Title: "Vintage film camera", ShippingCost: decimal.NewFromInt(8), Quantity: 1},
		{ProductID: "product2", SellerID: "seller1", Title: "Signed vinyl record", ShippingCost: decimal.NewFromInt(5), Quantity: 1},
		{ProductID: "product3", SellerID: "seller1", Title: "Mechanical watch", ShippingCost: decimal.RequireFromString("12.50"), Quantity: 1},
	}
	for _, p := range products {
		repo.AddProduct(p)
	}
}
