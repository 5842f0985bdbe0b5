package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/stay-calendar-backend/internal/common/cache"
	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/logger"
	"github.com/dumeirei/stay-calendar-backend/internal/service/invalidation"
)

// TaskHorizon 滚动窗口维护任务名
const TaskHorizon = "calendar-horizon"

// horizonLockHold 任务锁持有时长，短于调度间隔，期间其他实例直接跳过
const horizonLockHold = time.Minute

// HorizonRunner 滚动窗口维护
type HorizonRunner interface {
	RunHorizon(ctx context.Context) (invalidation.HorizonReport, error)
}

// Locker 跨实例互斥锁
type Locker interface {
	TryLock(ctx context.Context, name string, hold time.Duration) error
}

// TaskHandler 任务处理器
type TaskHandler struct {
	horizon HorizonRunner
	locker  Locker
	logger  *zap.Logger
}

// NewTaskHandler 创建任务处理器，locker 为空时不做跨实例互斥
func NewTaskHandler(horizon HorizonRunner, locker Locker, log *zap.Logger) *TaskHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskHandler{
		horizon: horizon,
		locker:  locker,
		logger:  log.Named("tasks"),
	}
}

// EnsureHorizon 为所有活跃房源补齐未来月份的日历，多实例部署时只有拿到锁的实例执行
func (h *TaskHandler) EnsureHorizon(ctx context.Context) error {
	if h.locker != nil {
		if err := h.locker.TryLock(ctx, cache.BuildKey("task", TaskHorizon), horizonLockHold); err != nil {
			if errors.Is(err, cache.ErrLockNotAcquired) {
				h.logger.Info("Horizon task running on another instance, skipped", logger.Action(TaskHorizon))
				return nil
			}
			return fmt.Errorf("acquire horizon lock: %w", err)
		}
	}

	report, err := h.horizon.RunHorizon(ctx)
	if err != nil {
		return err
	}
	if report.Errors > 0 {
		return fmt.Errorf("horizon run finished with %d errors", report.Errors)
	}
	return nil
}

// Register 注册所有任务
func (h *TaskHandler) Register(s *Scheduler, horizonSpec string) error {
	return s.AddTask(TaskHorizon, horizonSpec, true, h.EnsureHorizon)
}
