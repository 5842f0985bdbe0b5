package invalidation

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

var fixedNow = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Workers:         2,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		HorizonMonths:   12,
		StaleAfter:      24 * time.Hour,
	}
}

func newTestCoordinator(t *testing.T, gen Generator, failures FailureRecorder, opts ...Option) *Coordinator {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	c := NewCoordinator(testConfig(), gen, newMemoryCalendars(), staticProperties{}, failures, nil, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Stop(ctx)
	})
	return c
}

func waitIdle(t *testing.T, c *Coordinator) {
	require.Eventually(t, c.idle, 2*time.Second, 2*time.Millisecond)
}

func dateRange(t *testing.T, start, end time.Time) utils.DateRange {
	rng, err := utils.NewDateRange(start, end)
	require.NoError(t, err)
	return rng
}

func pendingJob(t *testing.T, c *Coordinator, propertyID int64, year int, month time.Month) *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.pending[jobKey(propertyID, year, month)]
	require.True(t, ok, "no pending job for %d %s", propertyID, utils.MonthKey(year, month))
	return job
}

// ==================== 事件拆分测试 ====================

func TestCoordinator_RuleMutationSplitsByMonth(t *testing.T) {
	c := newTestCoordinator(t, &MockGenerator{}, nil)
	rng := dateRange(t, utils.Date(2025, time.July, 20), utils.Date(2025, time.September, 10))

	ids, err := c.HandleRuleMutation(context.Background(), SourceHTTP, RuleMutation{PropertyID: 7, Range: rng})
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Equal(t, 3, c.Pending())

	july := pendingJob(t, c, 7, 2025, time.July)
	assert.Equal(t, KindRange, july.Kind)
	assert.Equal(t, utils.Date(2025, time.July, 20), july.Range.Start)
	assert.Equal(t, utils.Date(2025, time.July, 31), july.Range.End)

	august := pendingJob(t, c, 7, 2025, time.August)
	assert.Equal(t, KindFull, august.Kind)

	september := pendingJob(t, c, 7, 2025, time.September)
	assert.Equal(t, KindRange, september.Kind)
	assert.Equal(t, utils.Date(2025, time.September, 10), september.Range.End)
}

func TestCoordinator_EventsClampedToHorizon(t *testing.T) {
	c := newTestCoordinator(t, &MockGenerator{}, nil)
	ctx := context.Background()

	// 当月之前的部分被裁掉
	ids, err := c.HandleRuleMutation(ctx, SourceHTTP, RuleMutation{
		PropertyID: 7,
		Range:      dateRange(t, utils.Date(2025, time.May, 1), utils.Date(2025, time.June, 3)),
	})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	june := pendingJob(t, c, 7, 2025, time.June)
	assert.Equal(t, utils.Date(2025, time.June, 1), june.Range.Start)

	// 完全在窗口之外
	ids, err = c.HandleRuleMutation(ctx, SourceHTTP, RuleMutation{
		PropertyID: 8,
		Range:      dateRange(t, utils.Date(2024, time.January, 1), utils.Date(2024, time.March, 1)),
	})
	require.NoError(t, err)
	assert.Empty(t, ids)

	// 窗口最后一个月为 2026-05
	ids, err = c.HandleRuleMutation(ctx, SourceHTTP, RuleMutation{
		PropertyID: 9,
		Range:      dateRange(t, utils.Date(2026, time.May, 20), utils.Date(2026, time.July, 1)),
	})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	may := pendingJob(t, c, 9, 2026, time.May)
	assert.Equal(t, utils.Date(2026, time.May, 31), may.Range.End)
}

func TestCoordinator_InvalidEvents(t *testing.T) {
	c := newTestCoordinator(t, &MockGenerator{}, nil)
	ctx := context.Background()

	_, err := c.HandleRuleMutation(ctx, SourceHTTP, RuleMutation{PropertyID: 0})
	assert.True(t, errors.Is(err, errors.ErrInvalidParams))

	_, err = c.HandleRuleMutation(ctx, SourceHTTP, RuleMutation{
		PropertyID: 7,
		Range:      utils.DateRange{Start: utils.Date(2025, time.July, 5), End: utils.Date(2025, time.July, 1)},
	})
	assert.True(t, errors.Is(err, errors.ErrInvalidDateRange))

	_, err = c.HandleBookingStatusChange(ctx, SourceHTTP, BookingStatusChange{
		PropertyID: 7,
		CheckIn:    utils.Date(2025, time.July, 5),
		CheckOut:   utils.Date(2025, time.July, 5),
	})
	assert.True(t, errors.Is(err, errors.ErrInvalidDateRange))
}

func TestNewBookingStatusChange(t *testing.T) {
	tests := []struct {
		status      string
		unavailable bool
	}{
		{models.BookingStatusConfirmed, true},
		{models.BookingStatusOnHold, true},
		{models.BookingStatusCancelled, false},
		{models.BookingStatusExpired, false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			ev, err := NewBookingStatusChange(7, "BK1", utils.Date(2025, time.July, 1), utils.Date(2025, time.July, 3), tt.status)
			require.NoError(t, err)
			assert.Equal(t, tt.unavailable, ev.BecomesUnavailable)
		})
	}

	_, err := NewBookingStatusChange(7, "BK1", utils.Date(2025, time.July, 1), utils.Date(2025, time.July, 3), "refunded")
	assert.True(t, errors.Is(err, errors.ErrInvalidParams))
}

type recordingBookings struct {
	windows []*models.BookingWindow
	err     error
}

func (r *recordingBookings) Record(ctx context.Context, window *models.BookingWindow) error {
	if r.err != nil {
		return r.err
	}
	r.windows = append(r.windows, window)
	return nil
}

func TestCoordinator_BookingStatusRecordsWindow(t *testing.T) {
	bookings := &recordingBookings{}
	c := newTestCoordinator(t, &MockGenerator{}, nil, WithBookingRecorder(bookings))
	ctx := context.Background()

	ev, err := NewBookingStatusChange(7, "BK1", utils.Date(2025, time.July, 1), utils.Date(2025, time.July, 3), models.BookingStatusCancelled)
	require.NoError(t, err)
	ids, err := c.HandleBookingStatusChange(ctx, SourceHTTP, ev)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	require.Len(t, bookings.windows, 1)
	w := bookings.windows[0]
	assert.Equal(t, "BK1", w.BookingNo)
	assert.Equal(t, models.BookingStatusCancelled, w.Status)
	assert.Equal(t, utils.Date(2025, time.July, 1), w.CheckIn)
	assert.Equal(t, utils.Date(2025, time.July, 3), w.CheckOut)

	// 未带预订号的事件不落库
	_, err = c.HandleBookingStatusChange(ctx, SourceHTTP, BookingStatusChange{
		PropertyID: 7,
		CheckIn:    utils.Date(2025, time.July, 5),
		CheckOut:   utils.Date(2025, time.July, 6),
	})
	require.NoError(t, err)
	assert.Len(t, bookings.windows, 1)
}

func TestCoordinator_BookingRecordFailure(t *testing.T) {
	bookings := &recordingBookings{err: stderrors.New("db down")}
	c := newTestCoordinator(t, &MockGenerator{}, nil, WithBookingRecorder(bookings))

	ev, err := NewBookingStatusChange(7, "BK1", utils.Date(2025, time.July, 1), utils.Date(2025, time.July, 3), models.BookingStatusConfirmed)
	require.NoError(t, err)
	_, err = c.HandleBookingStatusChange(context.Background(), SourceHTTP, ev)
	assert.True(t, errors.Is(err, errors.ErrDatabaseError))
	assert.Equal(t, 0, c.Pending())
}

// ==================== 任务合并测试 ====================

func TestCoordinator_PendingRangesMerge(t *testing.T) {
	c := newTestCoordinator(t, &MockGenerator{}, nil)

	first, err := c.Enqueue(&Job{PropertyID: 7, Year: 2025, Month: time.July, Kind: KindRange,
		Range: dateRange(t, utils.Date(2025, time.July, 1), utils.Date(2025, time.July, 5))})
	require.NoError(t, err)
	second, err := c.Enqueue(&Job{PropertyID: 7, Year: 2025, Month: time.July, Kind: KindRange,
		Range: dateRange(t, utils.Date(2025, time.July, 10), utils.Date(2025, time.July, 12))})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.Pending())
	job := pendingJob(t, c, 7, 2025, time.July)
	assert.Equal(t, utils.Date(2025, time.July, 1), job.Range.Start)
	assert.Equal(t, utils.Date(2025, time.July, 12), job.Range.End)
}

func TestCoordinator_FullSubsumesRange(t *testing.T) {
	c := newTestCoordinator(t, &MockGenerator{}, nil)

	_, err := c.Enqueue(&Job{PropertyID: 7, Year: 2025, Month: time.July, Kind: KindRange,
		Range: dateRange(t, utils.Date(2025, time.July, 1), utils.Date(2025, time.July, 5))})
	require.NoError(t, err)
	_, err = c.Enqueue(&Job{PropertyID: 7, Year: 2025, Month: time.July, Kind: KindFull})
	require.NoError(t, err)
	_, err = c.Enqueue(&Job{PropertyID: 7, Year: 2025, Month: time.July, Kind: KindRange,
		Range: dateRange(t, utils.Date(2025, time.July, 20), utils.Date(2025, time.July, 21))})
	require.NoError(t, err)

	job := pendingJob(t, c, 7, 2025, time.July)
	assert.Equal(t, KindFull, job.Kind)
	assert.Equal(t, utils.MonthRange(2025, time.July), job.Range)
}

func TestCoordinator_AvailabilitySpansKeepOrder(t *testing.T) {
	c := newTestCoordinator(t, &MockGenerator{}, nil)
	ctx := context.Background()

	book := BookingStatusChange{PropertyID: 7, CheckIn: utils.Date(2025, time.July, 5), CheckOut: utils.Date(2025, time.July, 8), BecomesUnavailable: true}
	_, err := c.HandleBookingStatusChange(ctx, SourceQueue, book)
	require.NoError(t, err)

	book.BecomesUnavailable = false
	_, err = c.HandleBookingStatusChange(ctx, SourceQueue, book)
	require.NoError(t, err)

	_, err = c.HandleRuleMutation(ctx, SourceHTTP, RuleMutation{
		PropertyID: 7,
		Range:      dateRange(t, utils.Date(2025, time.July, 20), utils.Date(2025, time.July, 22)),
	})
	require.NoError(t, err)

	job := pendingJob(t, c, 7, 2025, time.July)
	assert.Equal(t, KindRange, job.Kind)
	assert.Equal(t, utils.Date(2025, time.July, 20), job.Range.Start)
	require.Len(t, job.Spans, 2)
	assert.True(t, job.Spans[0].Unavailable)
	assert.False(t, job.Spans[1].Unavailable)
	assert.Equal(t, utils.Date(2025, time.July, 7), job.Spans[0].Range.End)
}

// ==================== 任务执行测试 ====================

func TestCoordinator_ExecutesRangeJob(t *testing.T) {
	gen := &MockGenerator{}
	rng := dateRange(t, utils.Date(2025, time.July, 10), utils.Date(2025, time.July, 12))
	gen.On("UpdateRange", mock.Anything, int64(7), mock.MatchedBy(func(r utils.DateRange) bool {
		return r.Start.Equal(rng.Start) && r.End.Equal(rng.End)
	})).Return(&models.Calendar{}, nil).Once()

	c := newTestCoordinator(t, gen, &memoryFailures{})
	c.Start()

	_, err := c.HandleRuleMutation(context.Background(), SourceHTTP, RuleMutation{PropertyID: 7, Range: rng})
	require.NoError(t, err)

	waitIdle(t, c)
	gen.AssertExpectations(t)
}

func TestCoordinator_FullJobThenAvailabilitySpans(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("GenerateMonth", mock.Anything, int64(7), 2025, time.July).Return(&models.Calendar{}, nil).Once()
	gen.On("ApplyAvailability", mock.Anything, int64(7), mock.Anything, true).Return(&models.Calendar{}, nil).Once()

	c := newTestCoordinator(t, gen, &memoryFailures{})
	_, err := c.HandleBookingStatusChange(context.Background(), SourceMQTT, BookingStatusChange{
		PropertyID: 7, CheckIn: utils.Date(2025, time.July, 5), CheckOut: utils.Date(2025, time.July, 8), BecomesUnavailable: true,
	})
	require.NoError(t, err)
	_, err = c.Enqueue(&Job{PropertyID: 7, Year: 2025, Month: time.July, Kind: KindFull})
	require.NoError(t, err)

	c.Start()
	waitIdle(t, c)

	gen.AssertExpectations(t)
	require.Len(t, gen.Calls, 2)
	assert.Equal(t, "GenerateMonth", gen.Calls[0].Method)
	assert.Equal(t, "ApplyAvailability", gen.Calls[1].Method)
}

func TestCoordinator_RetriesTransientFailure(t *testing.T) {
	gen := &MockGenerator{}
	transient := errors.ErrRegenerationFailure.WithError(stderrors.New("connection reset"))
	gen.On("GenerateMonth", mock.Anything, int64(7), 2025, time.July).Return(nil, transient).Twice()
	gen.On("GenerateMonth", mock.Anything, int64(7), 2025, time.July).Return(&models.Calendar{}, nil).Once()

	failures := &memoryFailures{}
	c := newTestCoordinator(t, gen, failures)
	c.Start()

	_, err := c.Enqueue(&Job{PropertyID: 7, Year: 2025, Month: time.July, Kind: KindFull})
	require.NoError(t, err)
	waitIdle(t, c)

	gen.AssertNumberOfCalls(t, "GenerateMonth", 3)
	assert.Empty(t, failures.list())
}

func TestCoordinator_RetryExhaustedRecordsAndNotifies(t *testing.T) {
	gen := &MockGenerator{}
	transient := errors.ErrRegenerationFailure.WithError(stderrors.New("mongo unavailable"))
	gen.On("UpdateRange", mock.Anything, int64(7), mock.Anything).Return(nil, transient)

	notifier := &MockNotifier{}
	notifier.On("NotifyRegenerationFailed", mock.Anything, mock.MatchedBy(func(f *models.CalendarRegenerationFailure) bool {
		return f.Attempts == 3 && f.Month == "2025-07"
	})).Return(nil).Once()

	failures := &memoryFailures{}
	c := newTestCoordinator(t, gen, failures, WithNotifier(notifier))
	c.Start()

	jobID, err := c.Enqueue(&Job{PropertyID: 7, Year: 2025, Month: time.July, Kind: KindRange,
		Range: dateRange(t, utils.Date(2025, time.July, 1), utils.Date(2025, time.July, 2))})
	require.NoError(t, err)
	waitIdle(t, c)

	gen.AssertNumberOfCalls(t, "UpdateRange", 3)
	notifier.AssertExpectations(t)

	recorded := failures.list()
	require.Len(t, recorded, 1)
	assert.Equal(t, jobID, recorded[0].JobID)
	assert.Equal(t, KindRange, recorded[0].Kind)
	assert.Equal(t, 3, recorded[0].Attempts)
	assert.Contains(t, recorded[0].LastError, "mongo unavailable")
}

func TestCoordinator_DeterministicFailureNotRetried(t *testing.T) {
	gen := &MockGenerator{}
	calcErr := errors.ErrRegenerationFailure.WithError(errors.ErrCalculationError.WithMessage("季节系数必须为正数"))
	gen.On("GenerateMonth", mock.Anything, int64(7), 2025, time.July).Return(nil, calcErr)

	failures := &memoryFailures{}
	c := newTestCoordinator(t, gen, failures)
	c.Start()

	_, err := c.Enqueue(&Job{PropertyID: 7, Year: 2025, Month: time.July, Kind: KindFull})
	require.NoError(t, err)
	waitIdle(t, c)

	gen.AssertNumberOfCalls(t, "GenerateMonth", 1)
	recorded := failures.list()
	require.Len(t, recorded, 1)
	assert.Equal(t, 1, recorded[0].Attempts)
}

func TestCoordinator_SupersededJobsRunOnce(t *testing.T) {
	gen := newTrackingGenerator(0)
	c := newTestCoordinator(t, gen, nil)

	for i := 1; i <= 5; i++ {
		_, err := c.Enqueue(&Job{PropertyID: 7, Year: 2025, Month: time.July, Kind: KindRange,
			Range: dateRange(t, utils.Date(2025, time.July, i), utils.Date(2025, time.July, i))})
		require.NoError(t, err)
	}
	c.Start()
	waitIdle(t, c)

	assert.Equal(t, int32(1), atomic.LoadInt32(&gen.calls))
}

// ==================== 并发测试 ====================

func TestCoordinator_SerializesPerKey(t *testing.T) {
	gen := newTrackingGenerator(3 * time.Millisecond)
	cfg := testConfig()
	cfg.Workers = 4
	c := NewCoordinator(cfg, gen, newMemoryCalendars(), staticProperties{}, nil, nil,
		WithClock(func() time.Time { return fixedNow }))
	c.Start()
	defer func() { _ = c.Stop(context.Background()) }()

	months := []time.Month{time.July, time.August}
	for i := 0; i < 40; i++ {
		propertyID := int64(i%2 + 1)
		month := months[(i/2)%2]
		_, err := c.Enqueue(&Job{PropertyID: propertyID, Year: 2025, Month: month, Kind: KindFull})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	waitIdle(t, c)

	assert.Equal(t, int32(0), atomic.LoadInt32(&gen.overlap))
	assert.Greater(t, atomic.LoadInt32(&gen.calls), int32(0))
}

func TestCoordinator_DifferentKeysRunInParallel(t *testing.T) {
	gen := newTrackingGenerator(50 * time.Millisecond)
	cfg := testConfig()
	cfg.Workers = 4
	c := NewCoordinator(cfg, gen, newMemoryCalendars(), staticProperties{}, nil, nil)
	c.Start()
	defer func() { _ = c.Stop(context.Background()) }()

	for propertyID := int64(1); propertyID <= 4; propertyID++ {
		_, err := c.Enqueue(&Job{PropertyID: propertyID, Year: 2025, Month: time.July, Kind: KindFull})
		require.NoError(t, err)
	}
	waitIdle(t, c)

	assert.Equal(t, int32(4), atomic.LoadInt32(&gen.calls))
	assert.Greater(t, atomic.LoadInt32(&gen.peak), int32(1))
}

// ==================== 生命周期测试 ====================

func TestCoordinator_StopRejectsNewJobs(t *testing.T) {
	c := newTestCoordinator(t, &MockGenerator{}, nil)
	c.Start()
	require.NoError(t, c.Stop(context.Background()))

	_, err := c.Enqueue(&Job{PropertyID: 7, Year: 2025, Month: time.July, Kind: KindFull})
	assert.True(t, errors.Is(err, errors.ErrCoordinatorStopped))

	_, err = c.HandleRuleMutation(context.Background(), SourceHTTP, RuleMutation{
		PropertyID: 7,
		Range:      dateRange(t, utils.Date(2025, time.July, 1), utils.Date(2025, time.July, 2)),
	})
	assert.True(t, errors.Is(err, errors.ErrCoordinatorStopped))

	// 重复停止
	assert.NoError(t, c.Stop(context.Background()))
}

func TestCoordinator_StopDropsPendingJobs(t *testing.T) {
	c := newTestCoordinator(t, &MockGenerator{}, nil)
	_, err := c.Enqueue(&Job{PropertyID: 7, Year: 2025, Month: time.July, Kind: KindFull})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Pending())

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, 0, c.Pending())
}

// ==================== 告警通道测试 ====================

func TestMultiNotifier(t *testing.T) {
	failing := &MockNotifier{}
	failing.On("NotifyRegenerationFailed", mock.Anything, mock.Anything).Return(stderrors.New("broker down"))
	ok := &MockNotifier{}
	ok.On("NotifyRegenerationFailed", mock.Anything, mock.Anything).Return(nil)

	failure := &models.CalendarRegenerationFailure{JobID: "j1", PropertyID: 7, Month: "2025-07"}
	err := MultiNotifier{failing, nil, ok}.NotifyRegenerationFailed(context.Background(), failure)

	assert.ErrorContains(t, err, "broker down")
	failing.AssertExpectations(t)
	ok.AssertExpectations(t)
}
