package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"relay-service/backend/config"
	"relay-service/backend/internal/cache"
	"relay-service/backend/internal/httpapi/handlers"
	"relay-service/backend/internal/httpapi/middleware"
	"relay-service/backend/internal/notify"
	"relay-service/backend/internal/relay"
	"relay-service/backend/internal/store"
	"relay-service/backend/internal/ws"
)

func initConfig() (*config.Config, error) {
	cfg := &config.Config{}
	v := viper.New()
	v.SetConfigName("relayConfig")
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
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: %+v", cfg)

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	db, err := sql.Open("mysql", cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	gormDB, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to init gorm: %v", err)
	}
	if err := gormDB.AutoMigrate(&store.Page{}, &store.Block{}); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	// === 初始化 Kafka Producer（可选：没配 brokers 就只做进程内广播）===
	var dispatcher *notify.KafkaDispatcher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		// SyncProducer 必须开启 Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			log.Fatalf("Failed to connect kafka: %v", err)
		}
		defer producer.Close()

		dispatcher = notify.NewKafkaDispatcher(
			producer,
			cfg.Kafka.Topic,
			notify.KafkaDispatcherOptions{
				QueueSize:   10_000,
				Workers:     4,
				MaxRetry:    3,
				BaseBackoff: 50 * time.Millisecond,
				MaxBackoff:  1 * time.Second,
			},
		)
	}

	notifier := notify.NewNotifier(dispatcher)

	snapshotTTL := time.Duration(cfg.Snapshot.TTLDays) * 24 * time.Hour
	snapshots := cache.NewRedisSnapshot(rdb, snapshotTTL)
	archive := store.NewSnapshotArchiveStore(db)

	hub := ws.NewHub()
	rly := relay.New(hub, snapshots, archive)
	manager := ws.NewManager(hub, rly)

	pagesHandler := handlers.NewPagesHandler(store.NewPageStore(gormDB), notifier)
	invitationsHandler := handlers.NewInvitationsHandler(store.NewInvitationStore(db), notifier)

	r := gin.New()
	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 协作会话（WebSocket）
	collab := r.Group("/collab")
	collab.Use(middleware.AuthMiddleware())
	collab.GET("/ws", manager.WebSocketConnect)

	// REST + SSE
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	v1.POST("/pages", pagesHandler.CreatePage)
	v1.PATCH("/pages/:pageId", pagesHandler.RenamePage)
	v1.DELETE("/pages/:pageId", pagesHandler.DeletePage)
	v1.POST("/pages/:pageId/blocks", pagesHandler.AddBlock)
	v1.GET("/pages/:pageId/blocks", pagesHandler.ListBlocks)
	v1.GET("/orgs/:orgId/pages/events", pagesHandler.SubscribePageEvents)
	v1.POST("/orgs/:orgId/invitations", invitationsHandler.CreateInvitation)
	v1.GET("/invitations/events", invitationsHandler.SubscribeInvitations)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	port := cfg.Running.Port
	_ = r.Run(fmt.Sprintf(":%d", port))
}
