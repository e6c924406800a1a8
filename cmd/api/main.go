package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agrinetwork/auth"
	"agrinetwork/config"
	"agrinetwork/db"
	"agrinetwork/dispute"
	"agrinetwork/logging"
	"agrinetwork/mediation"
	"agrinetwork/metrics"
	"agrinetwork/order"
	"agrinetwork/outbox"
	"agrinetwork/product"
	"agrinetwork/wallet"
)

const outboxMaxAttempts = 10

func main() {
	configPath := flag.String("config", "", "path to a config file (defaults to ./configs/config.yaml)")
	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if *migrateOnly {
		if err := db.Migrate(cfg.Database.URL); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		logger.Info("migrations applied")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
}

// run wires the service graph and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Database.MigrateOnRun {
		if err := db.Migrate(cfg.Database.URL); err != nil {
			return err
		}
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	m := metrics.New()
	m.RegisterPool(pool)

	users := auth.NewRepository(pool)
	chatRepo := dispute.NewRepository(pool)
	walletRepo := wallet.NewRepository(pool)
	productRepo := product.NewRepository(pool)
	outboxRepo := outbox.NewRepository()
	mediator := mediation.NewClient(cfg.Mediation, nil)

	if cfg.Mediation.APIKey == "" {
		logger.Warn("mediation api key not set; disputes and KYC submissions will escalate to staff")
	}

	srv := &Server{
		orderService: order.NewService(order.Deps{
			Pool:             pool,
			Orders:           order.NewRepository(pool),
			Wallets:          walletRepo,
			Chat:             chatRepo,
			Outbox:           outboxRepo,
			Users:            users,
			Products:         productRepo,
			Mediator:         mediator,
			MediationTimeout: cfg.Mediation.Timeout,
			Metrics:          m,
			Logger:           logger.Named("order"),
		}),
		chatService:    dispute.NewService(chatRepo),
		authService:    auth.NewService(users, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		kycService:     auth.NewKYCService(users, mediator, logger.Named("kyc")),
		productService: product.NewService(productRepo, users),
		walletService:  wallet.NewService(pool, walletRepo, users),
		metrics:        m,
		logger:         logger.Named("http"),
		limiter:        newIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		requireToken:   cfg.Auth.RequireToken,
		ready:          pool.Ping,
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	var relay *outbox.Relay
	if cfg.Broker.URL != "" {
		publisher, err := outbox.DialAMQP(cfg.Broker.URL, cfg.Broker.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()

		relay = outbox.NewRelay(pool, outboxRepo, publisher, outbox.RelayConfig{
			BatchSize:    cfg.Broker.BatchSize,
			PollInterval: cfg.Broker.PollInterval,
			MaxAttempts:  outboxMaxAttempts,
		}, logger.Named("outbox"), m)
	} else {
		logger.Info("broker url not set; outbox relay disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		srv.limiter.runSweeper(gctx, time.Minute)
		return nil
	})

	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}

	return g.Wait()
}
