package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"collabService/backend/internal/cache"
	"collabService/backend/internal/collab"
	"collabService/backend/internal/httpapi/handlers"
	"collabService/backend/internal/httpapi/middleware"
	"collabService/backend/internal/store"
	"collabService/backend/internal/ws"
)

type CollabConfig struct {
	Running struct {
		Port int `mapstructure:"Port"`
	} `mapstructure:"Running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"Mysql"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"Redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"Kafka"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"Auth"`
	Collab struct {
		SessionTTLSeconds      int `mapstructure:"sessionTtlSeconds"`
		JanitorIntervalSeconds int `mapstructure:"janitorIntervalSeconds"`
		AutosaveSeconds        int `mapstructure:"autosaveSeconds"`
		PresenceTTLSeconds     int `mapstructure:"presenceTtlSeconds"`
	} `mapstructure:"Collab"`
}

func initConfig() (*CollabConfig, error) {
	cfg := &CollabConfig{}
	v := viper.New()
	v.SetConfigName("collabConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := initConfig()
	if err != nil {
		logger.Fatal("init config failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("connect redis failed", zap.Error(err))
	}
	defer rdb.Close()

	gdb, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		logger.Fatal("connect mysql failed", zap.Error(err))
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		logger.Fatal("unwrap sql db failed", zap.Error(err))
	}
	defer sqlDB.Close()

	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		logger.Fatal("connect kafka failed", zap.Error(err))
	}
	defer producer.Close()

	dispatcher := collab.NewKafkaDispatcher(
		producer,
		cfg.Kafka.Topic,
		collab.NewSemaphore(100),
		collab.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
			Logger:      logger,
		},
	)
	defer dispatcher.Close()

	documentStore := store.NewDocumentStore(gdb)
	snapshotStore := store.NewSnapshotStore(sqlDB)
	presenceCache := cache.NewRedisPresence(rdb)

	hub := ws.NewHub()
	coordinator := collab.NewCoordinator(hub, collab.CoordinatorOptions{
		Loader:          documentStore,
		Mirror:          presenceCache,
		Publisher:       dispatcher,
		Logger:          logger,
		SessionTTL:      time.Duration(cfg.Collab.SessionTTLSeconds) * time.Second,
		JanitorInterval: time.Duration(cfg.Collab.JanitorIntervalSeconds) * time.Second,
		PresenceTTL:     time.Duration(cfg.Collab.PresenceTTLSeconds) * time.Second,
	})
	go coordinator.RunJanitor(ctx)

	autoSaver := collab.NewAutoSaver(
		coordinator,
		store.NewAutoSaveSink(snapshotStore, documentStore),
		time.Duration(cfg.Collab.AutosaveSeconds)*time.Second,
		logger,
	)
	go autoSaver.Run(ctx)

	manager := ws.NewManager(hub, coordinator, logger)
	sessionHandlers := handlers.NewSessionHandlers(coordinator)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	collabGroup := r.Group("/collab")
	collabGroup.GET("/healthz", handlers.Healthz)
	collabGroup.Use(middleware.AuthMiddleware([]byte(cfg.Auth.Secret)))
	collabGroup.GET("/ws", manager.WebSocketConnect)
	collabGroup.GET("/sessions", sessionHandlers.ListSessions)
	collabGroup.GET("/sessions/:documentID", sessionHandlers.GetSession)

	logger.Info("collab server listening", zap.Int("port", cfg.Running.Port))
	_ = r.Run(fmt.Sprintf(":%d", cfg.Running.Port))
}
