package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// 主题名，实际主题会加上配置的前缀
const (
	TopicRuleMutation       = "calendar/events/rule-mutation"
	TopicBookingStatus      = "calendar/events/booking-status"
	TopicRegenerationFailed = "calendar/alerts/regeneration-failed"
)

// RuleMutationMessage 规则变更消息
type RuleMutationMessage struct {
	PropertyID int64  `json:"property_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

// BookingStatusMessage 预订状态变更消息
type BookingStatusMessage struct {
	PropertyID int64  `json:"property_id"`
	BookingNo  string `json:"booking_no,omitempty"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	Status     string `json:"status"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

// AlertMessage 日历生成失败告警
type AlertMessage struct {
	JobID      string `json:"job_id"`
	PropertyID int64  `json:"property_id"`
	Month      string `json:"month"`
	Kind       string `json:"kind"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error"`
	Timestamp  int64  `json:"timestamp"`
}

// CalendarEventHandler 日历事件处理器接口
type CalendarEventHandler interface {
	OnRuleMutation(ctx context.Context, msg *RuleMutationMessage) error
	OnBookingStatus(ctx context.Context, msg *BookingStatusMessage) error
}

type subscriber interface {
	SubscribeMultiple(topics map[string]MessageHandler) error
	Unsubscribe(topics ...string) error
}

type publisher interface {
	PublishWithContext(ctx context.Context, topic string, payload interface{}) error
}

// EventSubscriber 日历事件订阅
type EventSubscriber struct {
	client  subscriber
	handler CalendarEventHandler
	topics  map[string]MessageHandler
	logger  *zap.Logger
	timeout time.Duration
}

// NewEventSubscriber 创建事件订阅，cfg 提供主题前缀
func NewEventSubscriber(client subscriber, cfg *Config, handler CalendarEventHandler, log *zap.Logger) *EventSubscriber {
	if log == nil {
		log = zap.NewNop()
	}
	s := &EventSubscriber{
		client:  client,
		handler: handler,
		logger:  log.Named("mqtt-events"),
		timeout: 5 * time.Second,
	}
	s.topics = map[string]MessageHandler{
		cfg.Topic(TopicRuleMutation):  s.handleRuleMutation,
		cfg.Topic(TopicBookingStatus): s.handleBookingStatus,
	}
	return s
}

// Start 启动消息处理
func (s *EventSubscriber) Start() error {
	if err := s.client.SubscribeMultiple(s.topics); err != nil {
		return fmt.Errorf("subscribe calendar topics error: %w", err)
	}
	s.logger.Info("Started listening for calendar events")
	return nil
}

// Stop 停止消息处理
func (s *EventSubscriber) Stop() error {
	topics := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		topics = append(topics, topic)
	}
	if err := s.client.Unsubscribe(topics...); err != nil {
		return fmt.Errorf("unsubscribe calendar topics error: %w", err)
	}
	s.logger.Info("Stopped listening for calendar events")
	return nil
}

// handleRuleMutation 处理规则变更消息
func (s *EventSubscriber) handleRuleMutation(topic string, payload []byte) {
	var msg RuleMutationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("Parse rule mutation error", zap.String("topic", topic), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.handler.OnRuleMutation(ctx, &msg); err != nil {
		s.logger.Warn("Handle rule mutation error", zap.Int64("property_id", msg.PropertyID), zap.Error(err))
	}
}

// handleBookingStatus 处理预订状态消息
func (s *EventSubscriber) handleBookingStatus(topic string, payload []byte) {
	var msg BookingStatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("Parse booking status error", zap.String("topic", topic), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.handler.OnBookingStatus(ctx, &msg); err != nil {
		s.logger.Warn("Handle booking status error", zap.Int64("property_id", msg.PropertyID), zap.Error(err))
	}
}

// AlertPublisher 告警发布
type AlertPublisher struct {
	client publisher
	topic  string
}

// NewAlertPublisher 创建告警发布
func NewAlertPublisher(client publisher, cfg *Config) *AlertPublisher {
	return &AlertPublisher{client: client, topic: cfg.Topic(TopicRegenerationFailed)}
}

// PublishRegenerationFailed 发布日历生成失败告警
func (p *AlertPublisher) PublishRegenerationFailed(ctx context.Context, msg *AlertMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	return p.client.PublishWithContext(ctx, p.topic, msg)
}
