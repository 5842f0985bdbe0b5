package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dumeirei/stay-calendar-backend/internal/common/config"
)

// asynq 任务类型
const (
	TypeRuleMutation  = "calendar:rule_mutation"
	TypeBookingStatus = "calendar:booking_status"
)

// RedisClientOpt 由 redis 配置构造 asynq 连接参数，队列使用独立的 db
func RedisClientOpt(redisCfg *config.RedisConfig, queueCfg *config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:         redisCfg.Addr(),
		Password:     redisCfg.Password,
		DB:           queueCfg.RedisDB,
		DialTimeout:  time.Duration(redisCfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(redisCfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(redisCfg.WriteTimeout) * time.Second,
	}
}

// NewRuleMutationTask 创建规则变更任务
func NewRuleMutationTask(payload RuleMutationPayload) (*asynq.Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRuleMutation, b), nil
}

// NewBookingStatusTask 创建预订状态变更任务
func NewBookingStatusTask(payload BookingStatusPayload) (*asynq.Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBookingStatus, b), nil
}

// Publisher 事件发布端，供管理后台和预订模块使用
type Publisher struct {
	client *asynq.Client
	opts   []asynq.Option
}

// NewPublisher 创建发布端
func NewPublisher(client *asynq.Client, cfg *config.QueueConfig) *Publisher {
	return &Publisher{
		client: client,
		opts:   taskOptions(cfg),
	}
}

func taskOptions(cfg *config.QueueConfig) []asynq.Option {
	opts := make([]asynq.Option, 0, 2)
	if cfg.Name != "" {
		opts = append(opts, asynq.Queue(cfg.Name))
	}
	if cfg.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(cfg.MaxRetry))
	}
	return opts
}

// PublishRuleMutation 发布规则变更事件
func (p *Publisher) PublishRuleMutation(ctx context.Context, payload RuleMutationPayload) (string, error) {
	task, err := NewRuleMutationTask(payload)
	if err != nil {
		return "", err
	}
	return p.enqueue(ctx, task)
}

// PublishBookingStatus 发布预订状态变更事件
func (p *Publisher) PublishBookingStatus(ctx context.Context, payload BookingStatusPayload) (string, error) {
	task, err := NewBookingStatusTask(payload)
	if err != nil {
		return "", err
	}
	return p.enqueue(ctx, task)
}

func (p *Publisher) enqueue(ctx context.Context, task *asynq.Task) (string, error) {
	info, err := p.client.EnqueueContext(ctx, task, p.opts...)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return info.ID, nil
}
