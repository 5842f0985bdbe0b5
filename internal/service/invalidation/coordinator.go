// Package invalidation 实现价格日历失效协调器
// 接收规则变更与预订状态事件，按 (房源, 月份) 串行执行日历更新任务，并负责滚动窗口维护
package invalidation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dumeirei/stay-calendar-backend/internal/common/config"
	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/logger"
	"github.com/dumeirei/stay-calendar-backend/internal/common/metrics"
	"github.com/dumeirei/stay-calendar-backend/internal/common/tracing"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
	"github.com/dumeirei/stay-calendar-backend/internal/repository"
)

// Generator 日历生成器
type Generator interface {
	StrategyVersion() string
	GenerateMonth(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error)
	UpdateRange(ctx context.Context, propertyID int64, rng utils.DateRange) (*models.Calendar, error)
	ApplyAvailability(ctx context.Context, propertyID int64, rng utils.DateRange, unavailable bool) (*models.Calendar, error)
}

// PropertyLister 房源来源
type PropertyLister interface {
	GetByID(ctx context.Context, id int64) (*models.Property, error)
	ListActive(ctx context.Context) ([]*models.Property, error)
}

// BookingRecorder 预订占用区间记录
type BookingRecorder interface {
	Record(ctx context.Context, window *models.BookingWindow) error
}

// FailureRecorder 失败任务记录
type FailureRecorder interface {
	Create(ctx context.Context, failure *models.CalendarRegenerationFailure) error
}

// Config 协调器配置
type Config struct {
	Workers         int
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	HorizonMonths   int
	StaleAfter      time.Duration
}

// ConfigFrom 由日历配置构造协调器配置
func ConfigFrom(cfg *config.CalendarConfig) Config {
	return Config{
		Workers:         cfg.Workers,
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval(),
		MaxInterval:     cfg.Retry.MaxInterval(),
		HorizonMonths:   cfg.HorizonMonths,
		StaleAfter:      cfg.StaleAfterDuration(),
	}
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	if c.HorizonMonths <= 0 {
		c.HorizonMonths = 12
	}
}

// Coordinator 日历失效协调器
//
// 同一 (房源, 月份) 最多只有一个任务在执行、一个任务在等待；
// 等待中的任务被同键新任务合并（被取代），执行中的任务不受影响
type Coordinator struct {
	cfg        Config
	generator  Generator
	calendars  repository.CalendarStore
	properties PropertyLister
	failures   FailureRecorder
	notifier   Notifier
	bookings   BookingRecorder
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[string]*Job
	running map[string]bool
	ready   []string
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option 协调器选项
type Option func(*Coordinator)

// WithNotifier 设置重试耗尽后的告警通道
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// WithBookingRecorder 处理预订事件时同步记录占用区间
func WithBookingRecorder(r BookingRecorder) Option {
	return func(c *Coordinator) {
		c.bookings = r
	}
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator 创建协调器
func NewCoordinator(
	cfg Config,
	generator Generator,
	calendars repository.CalendarStore,
	properties PropertyLister,
	failures FailureRecorder,
	log *zap.Logger,
	opts ...Option,
) *Coordinator {
	cfg.normalize()
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:        cfg,
		generator:  generator,
		calendars:  calendars,
		properties: properties,
		failures:   failures,
		logger:     log.Named("invalidation"),
		now:        time.Now,
		pending:    make(map[string]*Job),
		running:    make(map[string]bool),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.cond = sync.NewCond(&c.mu)
	c.notifier = NewLogNotifier(c.logger)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start 启动工作协程
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true

	c.logger.Info("Coordinator starting", zap.Int("workers", c.cfg.Workers))
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
}

// Stop 停止接收新任务，等待执行中的任务结束；ctx 到期后取消执行中的任务
// 尚未开始的任务直接丢弃，由下一次滚动窗口任务补齐
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	dropped := len(c.pending)
	c.pending = make(map[string]*Job)
	c.ready = nil
	c.cond.Broadcast()
	c.mu.Unlock()

	metrics.GetMetrics().SetJobsPending(0)
	c.logger.Info("Coordinator stopping", zap.Int("dropped", dropped))

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return ctx.Err()
	}
}

// Pending 等待中的任务数
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// idle 没有等待中或执行中的任务
func (c *Coordinator) idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) == 0 && len(c.running) == 0
}

// Enqueue 提交任务，返回实际承载该任务的任务 ID（被合并时为等待中任务的 ID）
func (c *Coordinator) Enqueue(job *Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = c.now()
	}
	if job.Kind == KindFull {
		job.Range = utils.MonthRange(job.Year, job.Month)
	}
	key := job.Key()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return "", errors.ErrCoordinatorStopped
	}

	if existing, ok := c.pending[key]; ok {
		existing.absorb(job)
		metrics.GetMetrics().RecordSuperseded()
		c.logger.Debug("Job superseded",
			logger.JobID(job.ID),
			zap.String("merged_into", existing.ID),
			logger.PropertyID(job.PropertyID),
			logger.Month(job.MonthKey()),
			logger.JobKind(existing.Kind),
		)
		return existing.ID, nil
	}

	c.pending[key] = job
	metrics.GetMetrics().SetJobsPending(float64(len(c.pending)))
	if !c.running[key] {
		c.ready = append(c.ready, key)
		c.cond.Signal()
	}
	return job.ID, nil
}

// worker 逐个取出就绪键执行
func (c *Coordinator) worker() {
	defer c.wg.Done()
	for {
		job, ok := c.next()
		if !ok {
			return
		}
		c.run(job)
		c.finish(job.Key())
	}
}

// next 阻塞等待下一个可执行的任务
func (c *Coordinator) next() (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.stopped {
			return nil, false
		}
		for len(c.ready) > 0 {
			key := c.ready[0]
			c.ready = c.ready[1:]
			job, ok := c.pending[key]
			if !ok || c.running[key] {
				continue
			}
			delete(c.pending, key)
			c.running[key] = true
			metrics.GetMetrics().SetJobsPending(float64(len(c.pending)))
			return job, true
		}
		c.cond.Wait()
	}
}

// finish 释放键；执行期间到达的同键任务重新进入就绪队列
func (c *Coordinator) finish(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, key)
	if _, ok := c.pending[key]; ok && !c.stopped {
		c.ready = append(c.ready, key)
		c.cond.Signal()
	}
}

// run 按退避策略执行任务，失败后记录并告警
func (c *Coordinator) run(job *Job) {
	ctx, span := tracing.GetTracer().StartSpan(c.ctx, "invalidation.Job",
		tracing.WithPropertyID(job.PropertyID),
		tracing.WithMonth(job.MonthKey()),
		tracing.WithJobKind(job.Kind),
	)
	defer span.End()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialInterval
	policy.MaxInterval = c.cfg.MaxInterval
	policy.MaxElapsedTime = 0

	operation := func() error {
		job.Attempts++
		err := c.execute(ctx, job)
		if err == nil {
			return nil
		}
		if !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Calendar job failed, retrying",
			logger.JobID(job.ID),
			logger.PropertyID(job.PropertyID),
			logger.Month(job.MonthKey()),
			logger.JobKind(job.Kind),
			logger.Attempt(job.Attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	retries := backoff.WithMaxRetries(policy, uint64(c.cfg.MaxAttempts-1))
	err := backoff.RetryNotify(operation, backoff.WithContext(retries, ctx), notify)
	if err == nil {
		return
	}
	span.RecordError(err)
	c.fail(job, err)
}

// execute 执行一次任务：先按类型重算价格，再按顺序回放可订状态区间
func (c *Coordinator) execute(ctx context.Context, job *Job) error {
	var err error
	switch job.Kind {
	case KindFull:
		_, err = c.generator.GenerateMonth(ctx, job.PropertyID, job.Year, job.Month)
	case KindRange:
		_, err = c.generator.UpdateRange(ctx, job.PropertyID, job.Range)
	case KindAvailability:
	default:
		return errors.ErrInvalidParams.WithMessage("未知任务类型: " + job.Kind)
	}
	if err != nil {
		return err
	}
	for _, span := range job.Spans {
		if _, err := c.generator.ApplyAvailability(ctx, job.PropertyID, span.Range, span.Unavailable); err != nil {
			return err
		}
	}
	return nil
}

// fail 记录失败任务并告警，旧日历继续对外提供
func (c *Coordinator) fail(job *Job, cause error) {
	retryable := errors.IsRetryable(cause)
	if retryable {
		metrics.GetMetrics().RecordRetryExhausted()
	}
	c.logger.Error("Calendar job failed",
		logger.JobID(job.ID),
		logger.PropertyID(job.PropertyID),
		logger.Month(job.MonthKey()),
		logger.JobKind(job.Kind),
		logger.Attempt(job.Attempts),
		zap.Bool("retry_exhausted", retryable),
		zap.Error(cause),
	)

	failure := &models.CalendarRegenerationFailure{
		JobID:      job.ID,
		PropertyID: job.PropertyID,
		Month:      job.MonthKey(),
		Kind:       job.Kind,
		Attempts:   job.Attempts,
		LastError:  cause.Error(),
	}

	// 停机取消后仍需落库
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.failures != nil {
		if err := c.failures.Create(ctx, failure); err != nil {
			c.logger.Error("Failed to record regeneration failure", logger.JobID(job.ID), zap.Error(err))
		}
	}
	if c.notifier != nil {
		if err := c.notifier.NotifyRegenerationFailed(ctx, failure); err != nil {
			c.logger.Warn("Failed to publish regeneration failure", logger.JobID(job.ID), zap.Error(err))
		}
	}
}

// window 事件接受窗口：当月第一天至滚动窗口最后一天
func (c *Coordinator) window(now time.Time) utils.DateRange {
	endYear, endMonth := utils.AddMonths(now.Year(), now.Month(), c.cfg.HorizonMonths-1)
	return utils.DateRange{
		Start: utils.MonthStart(now.Year(), now.Month()),
		End:   utils.MonthEnd(endYear, endMonth),
	}
}

// propertyNow 房源所在时区的当前时间，与滚动窗口维护使用同一时区
// 房源查询失败时按 UTC 计算
func (c *Coordinator) propertyNow(ctx context.Context, propertyID int64) time.Time {
	property, err := c.properties.GetByID(ctx, propertyID)
	if err != nil {
		c.logger.Warn("Property lookup failed, using UTC window",
			logger.PropertyID(propertyID), zap.Error(err))
		return c.now().UTC()
	}
	return c.now().In(property.Location())
}

// enqueueSpans 将区间裁剪到接受窗口并按月拆分入队
func (c *Coordinator) enqueueSpans(ctx context.Context, propertyID int64, rng utils.DateRange, build func(span utils.MonthSpan) *Job) ([]string, error) {
	clamped, ok := rng.Intersect(c.window(c.propertyNow(ctx, propertyID)))
	if !ok {
		c.logger.Debug("Event outside horizon ignored",
			logger.PropertyID(propertyID), zap.String("range", rng.String()))
		return nil, nil
	}

	ids := make([]string, 0, 2)
	for _, span := range clamped.SplitByMonth() {
		id, err := c.Enqueue(build(span))
		if err != nil {
			return ids, fmt.Errorf("enqueue %s: %w", span.Key(), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
