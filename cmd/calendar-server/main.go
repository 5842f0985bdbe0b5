// Package main 是价格日历服务入口
//
// @title Stay Calendar API
// @version 1.0
// @description 房源价格日历生成、失效重算与可订查询服务
// @BasePath /
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/stay-calendar-backend/internal/common/cache"
	"github.com/dumeirei/stay-calendar-backend/internal/common/config"
	"github.com/dumeirei/stay-calendar-backend/internal/common/database"
	"github.com/dumeirei/stay-calendar-backend/internal/common/logger"
	"github.com/dumeirei/stay-calendar-backend/internal/common/metrics"
	"github.com/dumeirei/stay-calendar-backend/internal/common/tracing"
	"github.com/dumeirei/stay-calendar-backend/internal/repository"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "配置文件路径，默认查找 ./configs/config.yaml")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.GetLogger()

	log.Info("Starting Stay Calendar Backend",
		zap.String("version", version),
		zap.String("env", cfg.Server.Mode),
		zap.String("calendar_store", cfg.Calendar.Store),
	)

	// 初始化监控与追踪
	metrics.Init(cfg.Metrics.Namespace)
	tracer, err := tracing.Init(&tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Server.Mode,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}

	// 初始化数据库连接
	db, err := database.Init(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully")

	if cfg.Database.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// 初始化 Redis 连接
	redisClient, err := cache.Init(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() { _ = cache.Close() }()
	log.Info("Redis connected successfully")

	// 组装业务组件
	application, err := newApp(cfg, log, db, redisClient)
	if err != nil {
		log.Fatal("Failed to build application", zap.Error(err))
	}
	if err := application.start(); err != nil {
		log.Fatal("Failed to start background workers", zap.Error(err))
	}

	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "production", "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	setupRouter(engine, cfg, log, application)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("HTTP server starting",
			zap.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 先停止接收 HTTP 事件，再停后台组件
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	application.shutdown(ctx)

	if err := tracer.Shutdown(ctx); err != nil {
		log.Warn("Failed to flush traces", zap.Error(err))
	}
	if err := database.Close(); err != nil {
		log.Warn("Failed to close database", zap.Error(err))
	}

	log.Info("Server exited")
}
