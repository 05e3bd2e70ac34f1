package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pc_store/internal/catalog"
	"pc_store/internal/config"
	"pc_store/internal/database"
	"pc_store/internal/inventory"
	"pc_store/internal/logger"
	"pc_store/internal/order"
	"pc_store/internal/payment"
	"pc_store/internal/queue"
	"pc_store/internal/router"
	"pc_store/internal/wompi"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger 还没初始化，用默认的开发配置输出
		logger.Initialize("development")
		logger.Log.Fatal("config load failed", zap.Error(err))
	}
	logger.Initialize(cfg.AppEnv)
	log := logger.Log
	defer func() { _ = log.Sync() }()

	// 1. 数据库：建表
	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("db migrate failed", zap.Error(err))
	}

	// 2. Redis：限流、下单锁、事件 outbox
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// 限流与下单锁会降级放行，事件发布失败只记日志
		log.Warn("redis unavailable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	cancelPing()

	// 3. 事件链路：Redis Stream → Relay → Kafka → Consumer → order_events
	outbox := queue.NewStreamOutbox(rdb, cfg.OrderEventStream)
	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	relay := queue.NewRelay(rdb, producer, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer, log)
	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, db, log)

	// 4. 业务服务
	gateway := wompi.NewClient(wompi.ClientConfig{
		BaseURL:    cfg.Wompi.APIURL,
		PublicKey:  cfg.Wompi.PublicKey,
		PrivateKey: cfg.Wompi.PrivateKey,
		Timeout:    cfg.Wompi.Timeout,
		RPS:        cfg.Wompi.RPS,
	})
	session := wompi.SessionConfig{
		CheckoutURL:     cfg.Wompi.CheckoutURL,
		PublicKey:       cfg.Wompi.PublicKey,
		IntegritySecret: cfg.Wompi.IntegritySecret,
		Currency:        cfg.Wompi.Currency,
		RedirectURL:     cfg.Wompi.RedirectURL,
	}
	ledger := inventory.NewLedger(log)
	products := catalog.NewService(db, log)
	orders := order.NewService(db, products, ledger, outbox, log)
	payments := payment.NewService(db, ledger, gateway, session, outbox, log)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	router.Setup(r, router.Deps{
		Catalog:            products,
		Orders:             orders,
		Payments:           payments,
		Redis:              rdb,
		JWTSecret:          cfg.JWTSecret,
		EventsSecret:       cfg.Wompi.EventsSecret,
		Production:         cfg.Production(),
		CheckoutRateLimit:  cfg.CheckoutRateLimit,
		CheckoutRateWindow: cfg.CheckoutRateWindow,
		CheckoutLockTTL:    cfg.CheckoutLockTTL,
	})

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		relay.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		consumer.Run(workerCtx)
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown：先停 HTTP，再停后台 worker，最后关连接
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	stopWorkers()
	wg.Wait()

	if err := consumer.Close(); err != nil {
		log.Warn("kafka consumer close failed", zap.Error(err))
	}
	if err := producer.Close(); err != nil {
		log.Warn("kafka producer close failed", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		log.Warn("redis close failed", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("shutdown complete")
}
