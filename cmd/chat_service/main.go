package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace_service/internal/chat/app"
	"marketplace_service/internal/chat/domain"
	"marketplace_service/internal/chat/hub"
	"marketplace_service/internal/chat/repository"
	"marketplace_service/internal/chat/router"
	"marketplace_service/pkg/config"
	"marketplace_service/pkg/database"
	"marketplace_service/pkg/logger"
	testtool "marketplace_service/pkg/test_tool"
	"marketplace_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	defer logger.Log.Sync()
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath).WithDefaults()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Auth.JWTSecret != "" {
		token.SetSecret(cfg.Auth.JWTSecret)
	}

	// 1. 建立 PostgreSQL 連線 (對話與訊息)
	dsn := database.PostgresDSN(cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database)
	db, err := database.NewPGConnection(database.Connection{
		ConnectStr:    dsn,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to postgreSQL database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.PostgreSQL.Host, cfg.PostgreSQL.Port)),
			zap.Error(err),
		)
	}
	if err := repository.AutoMigrate(ctx, db); err != nil {
		logger.Log.Fatal("migrate message store failed", zap.Error(err))
	}

	// 2. 建立 Redis 連線 (presence 鏡像)
	redisConn := database.RedisConnection{
		Addr:       cfg.Redis.Addr,
		MasterName: cfg.Redis.MasterName,
		Sentinels:  cfg.Redis.Sentinels,
		DB:         cfg.Redis.RedisDB,
	}
	if redisConn.Addr == "" && len(redisConn.Sentinels) == 0 {
		redisConn.MasterName, redisConn.Sentinels = config.GetRedisSetting()
	}
	redisClient, err := database.NewRedisClient(redisConn)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	defer redisClient.Close()

	// 3. 初始化 Repository
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	presenceRepo := repository.NewPresenceRepository(
		database.NewRedisRepository[domain.PresenceRecord](redisClient),
		cfg.Redis.PresenceTTL,
	)

	// 4. Connection manager 與 UseCases
	manager := hub.NewManager(hub.Options{
		SendTimeout:       cfg.Websocket.SendTimeout,
		LockTimeout:       cfg.Websocket.LockTimeout,
		FanoutConcurrency: cfg.Websocket.FanoutConcurrency,
	}, presenceRepo)
	defer manager.Close()
	messageUC := app.NewMessageUseCase(convRepo, msgRepo, manager)
	notificationUC := app.NewNotificationUseCase(manager)

	// 5. 訂單/商品服務事件
	if cfg.Kafka.Enabled {
		reader, err := database.NewKafkaReaderWithRetry(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			GroupID:       cfg.Kafka.GroupID,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("connect kafka failed", zap.Strings("brokers", cfg.Kafka.Brokers), zap.Error(err))
		}
		go app.NewEventConsumer(reader, notificationUC).StartConsumer(ctx)
	}

	testtool.StartPprof()

	// 6. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	// 注册路由
	router.RegisterRoutes(ctx, r,
		app.NewChatWebsocketHandler(manager, app.Keepalive{
			PingPeriod: cfg.Websocket.PingPeriod,
			PongWait:   cfg.Websocket.PongWait,
		}),
		app.NewChatRESTHandler(messageUC, manager, presenceRepo),
		cfg.Auth.Enabled,
	)

	go func() {
		<-ctx.Done()
		logger.Log.Info("shutting down chat service")
		if err := r.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.Error("fiber shutdown", zap.Error(err))
		}
	}()

	// Listen
	port := ":" + cfg.Port
	logger.Log.Info("Chat Service listening", zap.String("port", port))
	if err := r.Listen(port); err != nil {
		logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
	}
}
