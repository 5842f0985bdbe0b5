package invalidation

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/dumeirei/stay-calendar-backend/internal/common/logger"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// Notifier 日历生成失败告警通道
type Notifier interface {
	NotifyRegenerationFailed(ctx context.Context, failure *models.CalendarRegenerationFailure) error
}

// LogNotifier 以错误日志输出告警
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志告警
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

// NotifyRegenerationFailed 实现 Notifier
func (n *LogNotifier) NotifyRegenerationFailed(ctx context.Context, failure *models.CalendarRegenerationFailure) error {
	n.logger.Error("ALERT: calendar regeneration failed",
		logger.JobID(failure.JobID),
		logger.PropertyID(failure.PropertyID),
		logger.Month(failure.Month),
		logger.JobKind(failure.Kind),
		logger.Attempt(failure.Attempts),
		zap.String("last_error", failure.LastError),
	)
	return nil
}

// MultiNotifier 依次通知多个通道，单个通道失败不影响其余通道
type MultiNotifier []Notifier

// NotifyRegenerationFailed 实现 Notifier
func (m MultiNotifier) NotifyRegenerationFailed(ctx context.Context, failure *models.CalendarRegenerationFailure) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyRegenerationFailed(ctx, failure); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
