// Package mqtt 提供 MQTT 客户端封装
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dumeirei/stay-calendar-backend/internal/common/config"
)

// Config MQTT 配置
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	CleanSession   bool
	QoS            byte
	KeepAlive      int
	AutoReconnect  bool
	ConnectTimeout int
	TopicPrefix    string
}

// ConfigFrom 由应用配置构造，ClientID 为前缀加随机后缀，多实例互不踢线
func ConfigFrom(cfg *config.MQTTConfig) *Config {
	return &Config{
		Broker:         cfg.Broker,
		ClientID:       cfg.ClientIDPrefix + uuid.New().String()[:8],
		Username:       cfg.Username,
		Password:       cfg.Password,
		CleanSession:   true,
		QoS:            cfg.QoS,
		KeepAlive:      cfg.KeepAlive,
		AutoReconnect:  cfg.AutoReconnect,
		ConnectTimeout: cfg.ConnectTimeout,
		TopicPrefix:    cfg.TopicPrefix,
	}
}

// Topic 拼接主题前缀
func (c *Config) Topic(name string) string {
	if c.TopicPrefix == "" {
		return name
	}
	return strings.TrimSuffix(c.TopicPrefix, "/") + "/" + name
}

// Client MQTT 客户端
type Client struct {
	config   *Config
	client   mqtt.Client
	handlers map[string]MessageHandler
	mu       sync.RWMutex
	logger   *zap.Logger
}

// MessageHandler 消息处理器
type MessageHandler func(topic string, payload []byte)

// NewClient 创建 MQTT 客户端
func NewClient(cfg *Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		config:   cfg,
		handlers: make(map[string]MessageHandler),
		logger:   log.Named("mqtt"),
	}
}

// Config 返回客户端配置
func (c *Client) Config() *Config {
	return c.config
}

// Connect 连接 MQTT Broker
func (c *Client) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(c.config.CleanSession)
	opts.SetKeepAlive(time.Duration(c.config.KeepAlive) * time.Second)
	opts.SetAutoReconnect(c.config.AutoReconnect)
	if c.config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(time.Duration(c.config.ConnectTimeout) * time.Second)
	}
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.client = mqtt.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect error: %w", token.Error())
	}

	c.logger.Info("Connected to broker", zap.String("broker", c.config.Broker), zap.String("client_id", c.config.ClientID))
	return nil
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
		c.logger.Info("Disconnected from broker")
	}
}

// IsConnected 检查是否已连接
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// SubscribeMultiple 批量订阅主题，主题可含 + 和 # 通配符
func (c *Client) SubscribeMultiple(topics map[string]MessageHandler) error {
	filters := make(map[string]byte, len(topics))
	for topic := range topics {
		filters[topic] = c.config.QoS
	}

	c.mu.Lock()
	for topic, handler := range topics {
		c.handlers[topic] = handler
	}
	c.mu.Unlock()

	token := c.client.SubscribeMultiple(filters, c.dispatch)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe multiple error: %w", token.Error())
	}

	c.logger.Info("Subscribed", zap.Int("topics", len(topics)))
	return nil
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(topics ...string) error {
	token := c.client.Unsubscribe(topics...)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt unsubscribe error: %w", token.Error())
	}

	c.mu.Lock()
	for _, topic := range topics {
		delete(c.handlers, topic)
	}
	c.mu.Unlock()

	c.logger.Info("Unsubscribed", zap.Strings("topics", topics))
	return nil
}

// PublishWithContext 发布消息（带超时）
func (c *Client) PublishWithContext(ctx context.Context, topic string, payload interface{}) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}

	token := c.client.Publish(topic, c.config.QoS, false, data)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("mqtt publish error: %w", token.Error())
		}
		return nil
	}
}

func encodePayload(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("mqtt marshal payload error: %w", err)
		}
		return data, nil
	}
}

// dispatch 按订阅过滤器分发消息
func (c *Client) dispatch(_ mqtt.Client, msg mqtt.Message) {
	c.mu.RLock()
	var matched []MessageHandler
	for filter, h := range c.handlers {
		if TopicMatches(filter, msg.Topic()) {
			matched = append(matched, h)
		}
	}
	c.mu.RUnlock()

	for _, h := range matched {
		h(msg.Topic(), msg.Payload())
	}
}

// TopicMatches 判断主题是否匹配订阅过滤器
func TopicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		if part == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if part != "+" && part != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

// onConnect 连接成功回调，重连后重新订阅所有主题
func (c *Client) onConnect(client mqtt.Client) {
	c.mu.RLock()
	filters := make(map[string]byte, len(c.handlers))
	for topic := range c.handlers {
		filters[topic] = c.config.QoS
	}
	c.mu.RUnlock()

	if len(filters) == 0 {
		return
	}
	if token := client.SubscribeMultiple(filters, c.dispatch); token.Wait() && token.Error() != nil {
		c.logger.Error("Resubscribe failed", zap.Error(token.Error()))
		return
	}
	c.logger.Info("Resubscribed", zap.Int("topics", len(filters)))
}

// onConnectionLost 连接断开回调
func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Warn("Connection lost", zap.Error(err))
}

// onReconnecting 重连回调
func (c *Client) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	c.logger.Info("Reconnecting to broker")
}
