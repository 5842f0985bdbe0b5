package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dumeirei/stay-calendar-backend/internal/common/config"
	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/logger"
	"github.com/dumeirei/stay-calendar-backend/internal/service/invalidation"
)

// EventSink 事件接收方
type EventSink interface {
	HandleRuleMutation(ctx context.Context, source string, ev invalidation.RuleMutation) ([]string, error)
	HandleBookingStatusChange(ctx context.Context, source string, ev invalidation.BookingStatusChange) ([]string, error)
}

// Consumer asynq 事件消费端
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewConsumer 创建消费端
func NewConsumer(redisOpt asynq.RedisClientOpt, cfg *config.QueueConfig, sink EventSink, log *zap.Logger) *Consumer {
	queue := cfg.Name
	if queue == "" {
		queue = "default"
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("events")

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      log.Sugar(),
	})
	return &Consumer{
		server: server,
		mux:    NewServeMux(sink, log),
		logger: log,
	}
}

// Start 后台启动消费
func (c *Consumer) Start() error {
	c.logger.Info("Event consumer starting")
	return c.server.Start(c.mux)
}

// Shutdown 停止消费，等待进行中的任务结束
func (c *Consumer) Shutdown() {
	c.server.Shutdown()
	c.logger.Info("Event consumer stopped")
}

// NewServeMux 注册事件处理函数
func NewServeMux(sink EventSink, log *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRuleMutation, handleRuleMutation(sink, log))
	mux.HandleFunc(TypeBookingStatus, handleBookingStatus(sink, log))
	return mux
}

func handleRuleMutation(sink EventSink, log *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p RuleMutationPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			log.Warn("Invalid rule mutation payload", zap.Error(err))
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		ev, err := p.Event()
		if err != nil {
			return skipInvalid(log, task, err)
		}
		_, err = sink.HandleRuleMutation(ctx, invalidation.SourceQueue, ev)
		return classify(log, task, err)
	}
}

func handleBookingStatus(sink EventSink, log *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p BookingStatusPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			log.Warn("Invalid booking status payload", zap.Error(err))
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		ev, err := p.Event()
		if err != nil {
			return skipInvalid(log, task, err)
		}
		_, err = sink.HandleBookingStatusChange(ctx, invalidation.SourceQueue, ev)
		return classify(log, task, err)
	}
}

func skipInvalid(log *zap.Logger, task *asynq.Task, err error) error {
	log.Warn("Event rejected", logger.String("type", task.Type()), zap.Error(err))
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}

// classify 参数错误不再重试，其余错误（如协调器停机）交给 asynq 重试
func classify(log *zap.Logger, task *asynq.Task, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errors.ErrInvalidParams) || errors.Is(err, errors.ErrInvalidDateRange) {
		return skipInvalid(log, task, err)
	}
	return err
}
