// Package scheduler 提供定时任务调度
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dumeirei/stay-calendar-backend/internal/common/logger"
)

// DefaultTaskTimeout 单次任务执行超时
const DefaultTaskTimeout = 10 * time.Minute

// Scheduler 定时任务调度器，cron 表达式含秒，按 UTC 计算
type Scheduler struct {
	cron    *cron.Cron
	tasks   map[string]*Task
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *zap.Logger
	timeout time.Duration
}

// Task 定时任务
type Task struct {
	Name       string
	Spec       string
	RunOnStart bool
	Handler    func(ctx context.Context) error
	entryID    cron.EntryID
	running    sync.Mutex
}

// NewScheduler 创建调度器
func NewScheduler(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
		),
		tasks:   make(map[string]*Task),
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.Named("scheduler").With(logger.Module("scheduler")),
		timeout: DefaultTaskTimeout,
	}
}

// AddTask 添加任务，runOnStart 为 true 时启动后立即执行一次
func (s *Scheduler) AddTask(name, spec string, runOnStart bool, handler func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("task %q already registered", name)
	}
	task := &Task{Name: name, Spec: spec, RunOnStart: runOnStart, Handler: handler}
	id, err := s.cron.AddFunc(spec, func() { s.executeTask(task) })
	if err != nil {
		return fmt.Errorf("register task %q: %w", name, err)
	}
	task.entryID = id
	s.tasks[name] = task
	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Starting", zap.Int("tasks", len(s.tasks)))
	for _, task := range s.tasks {
		if task.RunOnStart {
			s.wg.Add(1)
			go func(t *Task) {
				defer s.wg.Done()
				s.executeTask(t)
			}(task)
		}
	}
	s.cron.Start()
}

// Stop 停止调度器，等待执行中的任务结束
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping")
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("Stopped")
}

// RunNow 立即执行指定任务
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %q not found", name)
	}
	s.executeTask(task)
	return nil
}

// Next 返回任务的下一次触发时间，调度器未启动时为零值
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(task.entryID).Next, true
}

// executeTask 执行任务，同一任务上一轮未结束时跳过本轮
func (s *Scheduler) executeTask(task *Task) {
	if !task.running.TryLock() {
		s.logger.Warn("Task still running, skipped", logger.String("task", task.Name))
		return
	}
	defer task.running.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := task.Handler(ctx); err != nil {
		s.logger.Error("Task failed", logger.String("task", task.Name), logger.Latency(time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Info("Task completed", logger.String("task", task.Name), logger.Latency(time.Since(start)))
}
