package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bike-marketplace/config"
	"bike-marketplace/internal/api"
	"bike-marketplace/internal/broker"
	"bike-marketplace/internal/redisclient"
	"bike-marketplace/internal/service"
	"bike-marketplace/internal/store"
	"bike-marketplace/internal/store/memstore"
	"bike-marketplace/internal/util"
	"bike-marketplace/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// keyValue is served by Redis, or by an in-process map when DATABASE_DRIVER=memory
type keyValue interface {
	service.Locker
	service.Cache
	service.IdempotencyGuard
	api.SessionResolver
}

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting bike marketplace", zap.String("env", cfg.Server.Env), zap.String("driver", cfg.Database.Driver))

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	var (
		repo   service.Repository
		kv     keyValue
		checks = map[string]api.Pinger{}
	)

	memory := cfg.Database.Driver == "memory"
	if memory {
		repo = memstore.New()
		sessions := memstore.NewKV()
		for token, p := range cfg.Auth.DevSessions {
			sessions.PutSession(token, p)
		}
		kv = sessions
		logger.Warn("Using in-memory storage; data is lost on restart", zap.Int("dev_sessions", len(cfg.Auth.DevSessions)))
	} else {
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if cfg.Database.MigrateOnStart {
			if err := db.Migrate(context.Background()); err != nil {
				logger.Fatal("Failed to run migrations", zap.Error(err))
			}
		}
		logger.Info("Database connected")

		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected")

		repo, kv = db, redisClient
		checks["postgres"] = db
		checks["redis"] = redisClient
	}

	notifications := service.NewNotificationService(repo)

	var eventPublisher *broker.EventPublisher
	if memory {
		eventPublisher = broker.NewEventPublisher(broker.NewLocalSink(worker.NotificationRouter(notifications).HandleMessage))
	} else {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		eventPublisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))
	}

	biz := cfg.Business
	escrow, err := service.NewEscrowLedger(biz.PlatformFeePercent)
	if err != nil {
		logger.Fatal("Invalid platform fee", zap.Error(err))
	}

	orderService := service.NewOrderService(repo, escrow, kv, eventPublisher, time.Duration(biz.PayoutLockSeconds)*time.Second)
	inspectionService := service.NewInspectionService(repo, orderService, eventPublisher, biz.InspectionQueueMaxItems)
	listingService := service.NewListingService(repo, kv, eventPublisher, time.Duration(biz.FacetCacheSeconds)*time.Second)
	walletService := service.NewWalletService(repo, kv, eventPublisher, service.WithdrawalRules{
		MinAmount:   biz.WithdrawMinAmount,
		FeeFreeFrom: biz.WithdrawFeeFreeFrom,
		FlatFee:     biz.WithdrawFlatFee,
	}, time.Duration(biz.IdempotencyTTLHours)*time.Hour, biz.AllowSelfDeposit || memory)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var notificationWorker *worker.NotificationWorker
	if !memory {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		notificationWorker = worker.NewNotificationWorker(consumer, notifications)
		go func() {
			if err := notificationWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Notification worker error", zap.Error(err))
			}
		}()
	}

	slaWorker := worker.NewModerationSLAWorker(listingService, time.Duration(biz.ModerationScanSeconds)*time.Second)
	go func() {
		if err := slaWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Moderation SLA worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	handler := api.NewHandler(api.Services{
		Orders:        orderService,
		Inspections:   inspectionService,
		Listings:      listingService,
		Wallets:       walletService,
		Notifications: notifications,
	}, kv, checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if notificationWorker != nil {
		if err := notificationWorker.Stop(); err != nil {
			logger.Error("Error stopping notification worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
