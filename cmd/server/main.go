package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"salon-service/config"
	"salon-service/internal/api"
	"salon-service/internal/broker"
	"salon-service/internal/notify"
	"salon-service/internal/onboarding"
	"salon-service/internal/redisclient"
	"salon-service/internal/service"
	"salon-service/internal/store"
	"salon-service/internal/util"
	"salon-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting salon service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("salon-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, store.Options{
		MaxOpenConns:  cfg.Database.MaxOpenConns,
		MaxIdleConns:  cfg.Database.MaxIdleConns,
		RunMigrations: cfg.Database.RunMigrations,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer orderProducer.Close()
	reviewProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReview)
	defer reviewProducer.Close()
	eventPublisher := broker.NewEventPublisher(orderProducer, reviewProducer)

	orderService := service.NewOrderService(
		db,
		service.NewInventoryClient(db),
		db,
		redisClient,
		redisClient,
		eventPublisher,
		service.OrderConfig{
			LockTTL:         cfg.Business.OrderLockTTL,
			DefaultCurrency: cfg.Business.DefaultCurrency,
		},
	)
	ratingService := service.NewRatingService(db, redisClient, eventPublisher, service.RatingConfig{
		AutoApprove: cfg.Business.ReviewAutoApprove,
		Async:       cfg.Business.RatingRecomputeAsync,
		LockTTL:     cfg.Business.RatingLockTTL,
	})
	commissionService := service.NewCommissionService(db)

	var mailer notify.Mailer = notify.NewLogMailer()
	if cfg.Mail.SMTPAddr != "" {
		mailer = notify.NewSMTPMailer(cfg.Mail.SMTPAddr, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From)
	}

	var progress onboarding.ProgressClient = db.NewProgressStore()
	if cfg.Onboarding.APIURL != "" {
		progress = onboarding.NewHTTPClient(cfg.Onboarding.APIURL, cfg.Onboarding.Timeout, cfg.Onboarding.Retries, logger)
		logger.Info("Using remote onboarding progress API", zap.String("url", cfg.Onboarding.APIURL))
	}

	notificationWorker := worker.NewNotificationWorker(
		broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.NotificationGroup),
		db,
		mailer,
	)
	ratingWorker := worker.NewRatingWorker(
		broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicReview, cfg.Kafka.RatingGroup),
		db,
		ratingService,
	)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Orders:      orderService,
		Ratings:     ratingService,
		Commissions: commissionService,
		Progress:    progress,
		Steps:       onboarding.DefaultCatalogue(),
		Auth:        api.NewActorAuth(cfg.Auth.Secret, cfg.Auth.TokenTTL),
		Checks: map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return notificationWorker.Start(gctx)
	})
	g.Go(func() error {
		return ratingWorker.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server forced to shutdown", zap.Error(err))
		}

		if err := notificationWorker.Stop(); err != nil {
			logger.Warn("Failed to stop notification worker", zap.Error(err))
		}
		if err := ratingWorker.Stop(); err != nil {
			logger.Warn("Failed to stop rating worker", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Service stopped with error", zap.Error(err))
	}

	logger.Info("Server exited")
}
