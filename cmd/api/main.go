package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/chatpay-service/internal/api/http/handlers"
	"github.com/spec-kit/chatpay-service/internal/auth"
	"github.com/spec-kit/chatpay-service/internal/broadcast"
	"github.com/spec-kit/chatpay-service/internal/config"
	"github.com/spec-kit/chatpay-service/internal/events"
	"github.com/spec-kit/chatpay-service/internal/observability"
	"github.com/spec-kit/chatpay-service/internal/payment"
	"github.com/spec-kit/chatpay-service/internal/persistence"
	"github.com/spec-kit/chatpay-service/internal/repository"
	"github.com/spec-kit/chatpay-service/internal/service"
	"github.com/spec-kit/chatpay-service/internal/worker"

	httptransport "github.com/spec-kit/chatpay-service/internal/api/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	gate := payment.NewGate(cfg.Payment)

	scheme := broadcast.NewChannelScheme(cfg.Chat.ChannelPrefix)
	authorizer := broadcast.NewAuthorizer(scheme)
	broker := broadcast.NewBroker(redis.Client)
	broadcaster := broadcast.NewBroadcaster(scheme, broker, dispatcher, logger, metrics, cfg.Chat.BroadcastQueueSize)
	worker.StartBroadcastWorker(ctx, broadcaster)

	authService := service.NewAuthService(cfg.Auth, userRepo)
	messageService := service.NewMessageService(cfg.Chat, service.MessageDependencies{
		MessageRepo: messageRepo,
		UserRepo:    userRepo,
		Gate:        gate,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	conversationService := service.NewConversationService(cfg.Chat, messageRepo, userRepo)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService, userRepo),
		Messages:       handlers.NewMessagesHandler(messageService, conversationService),
		WS:             handlers.NewWSHandler(authMiddleware, authorizer, scheme, broker, logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
