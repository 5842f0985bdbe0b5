//go:build integration

// Package integration 基于 testcontainers-go 的端到端集成测试
package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcMongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 容器镜像
const (
	postgresImage = "postgres:15-alpine"
	redisImage    = "redis:7-alpine"
	mongoImage    = "mongo:7"
)

// Containers 管理测试容器
type Containers struct {
	Postgres testcontainers.Container
	Redis    testcontainers.Container
	Mongo    testcontainers.Container

	PostgresDSN string
	RedisURL    string
	MongoURI    string

	ctx context.Context
}

// NewContainers 创建测试容器管理器
func NewContainers(ctx context.Context) *Containers {
	return &Containers{ctx: ctx}
}

// StartPostgres 启动 Postgres 容器
func (c *Containers) StartPostgres() error {
	container, err := tcPostgres.Run(c.ctx, postgresImage,
		tcPostgres.WithDatabase("stay_calendar_test"),
		tcPostgres.WithUsername("test_user"),
		tcPostgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}
	c.Postgres = container

	dsn, err := container.ConnectionString(c.ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get postgres dsn: %w", err)
	}
	c.PostgresDSN = dsn
	return nil
}

// StartRedis 启动 Redis 容器
func (c *Containers) StartRedis() error {
	container, err := tcRedis.Run(c.ctx, redisImage,
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start redis container: %w", err)
	}
	c.Redis = container

	url, err := container.ConnectionString(c.ctx)
	if err != nil {
		return fmt.Errorf("failed to get redis url: %w", err)
	}
	c.RedisURL = url
	return nil
}

// StartMongo 启动 MongoDB 容器
func (c *Containers) StartMongo() error {
	container, err := tcMongo.Run(c.ctx, mongoImage)
	if err != nil {
		return fmt.Errorf("failed to start mongo container: %w", err)
	}
	c.Mongo = container

	uri, err := container.ConnectionString(c.ctx)
	if err != nil {
		return fmt.Errorf("failed to get mongo uri: %w", err)
	}
	c.MongoURI = uri
	return nil
}

// PostgresDB 获取 GORM 连接
func (c *Containers) PostgresDB() (*gorm.DB, error) {
	if c.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres container not started")
	}
	return gorm.Open(postgres.Open(c.PostgresDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// RedisClient 获取 Redis 客户端
func (c *Containers) RedisClient() (*redis.Client, error) {
	if c.RedisURL == "" {
		return nil, fmt.Errorf("redis container not started")
	}
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// MongoClient 获取 MongoDB 客户端
func (c *Containers) MongoClient() (*mongo.Client, error) {
	if c.MongoURI == "" {
		return nil, fmt.Errorf("mongo container not started")
	}
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	return mongo.Connect(ctx, options.Client().ApplyURI(c.MongoURI))
}

// Cleanup 清理所有容器
func (c *Containers) Cleanup() error {
	var errs []error
	for name, container := range map[string]testcontainers.Container{
		"postgres": c.Postgres,
		"redis":    c.Redis,
		"mongo":    c.Mongo,
	} {
		if container == nil {
			continue
		}
		if err := container.Terminate(c.ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// StartAll 启动所有容器
func (c *Containers) StartAll() error {
	if err := c.StartPostgres(); err != nil {
		return err
	}
	if err := c.StartRedis(); err != nil {
		return err
	}
	return c.StartMongo()
}
