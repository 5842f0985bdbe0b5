package events

import (
	"context"

	"github.com/dumeirei/stay-calendar-backend/internal/models"
	"github.com/dumeirei/stay-calendar-backend/internal/service/invalidation"
	"github.com/dumeirei/stay-calendar-backend/pkg/mqtt"
)

// MQTTHandler 将 MQTT 日历事件转交协调器
type MQTTHandler struct {
	sink EventSink
}

// NewMQTTHandler 创建 MQTT 事件处理器
func NewMQTTHandler(sink EventSink) *MQTTHandler {
	return &MQTTHandler{sink: sink}
}

// OnRuleMutation 实现 mqtt.CalendarEventHandler
func (h *MQTTHandler) OnRuleMutation(ctx context.Context, msg *mqtt.RuleMutationMessage) error {
	ev, err := RuleMutationPayload{
		PropertyID: msg.PropertyID,
		StartDate:  msg.StartDate,
		EndDate:    msg.EndDate,
	}.Event()
	if err != nil {
		return err
	}
	_, err = h.sink.HandleRuleMutation(ctx, invalidation.SourceMQTT, ev)
	return err
}

// OnBookingStatus 实现 mqtt.CalendarEventHandler
func (h *MQTTHandler) OnBookingStatus(ctx context.Context, msg *mqtt.BookingStatusMessage) error {
	ev, err := BookingStatusPayload{
		PropertyID: msg.PropertyID,
		BookingNo:  msg.BookingNo,
		CheckIn:    msg.CheckIn,
		CheckOut:   msg.CheckOut,
		Status:     msg.Status,
	}.Event()
	if err != nil {
		return err
	}
	_, err = h.sink.HandleBookingStatusChange(ctx, invalidation.SourceMQTT, ev)
	return err
}

// AlertSender 告警发送
type AlertSender interface {
	PublishRegenerationFailed(ctx context.Context, msg *mqtt.AlertMessage) error
}

// MQTTNotifier 通过 MQTT 发布日历生成失败告警
type MQTTNotifier struct {
	sender AlertSender
}

// NewMQTTNotifier 创建 MQTT 告警通道
func NewMQTTNotifier(sender AlertSender) *MQTTNotifier {
	return &MQTTNotifier{sender: sender}
}

// NotifyRegenerationFailed 实现 invalidation.Notifier
func (n *MQTTNotifier) NotifyRegenerationFailed(ctx context.Context, failure *models.CalendarRegenerationFailure) error {
	return n.sender.PublishRegenerationFailed(ctx, &mqtt.AlertMessage{
		JobID:      failure.JobID,
		PropertyID: failure.PropertyID,
		Month:      failure.Month,
		Kind:       failure.Kind,
		Attempts:   failure.Attempts,
		LastError:  failure.LastError,
	})
}
