package invalidation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// MockGenerator 日历生成器 mock
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) StrategyVersion() string {
	return "v1"
}

func (m *MockGenerator) GenerateMonth(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error) {
	args := m.Called(ctx, propertyID, year, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Calendar), args.Error(1)
}

func (m *MockGenerator) UpdateRange(ctx context.Context, propertyID int64, rng utils.DateRange) (*models.Calendar, error) {
	args := m.Called(ctx, propertyID, rng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Calendar), args.Error(1)
}

func (m *MockGenerator) ApplyAvailability(ctx context.Context, propertyID int64, rng utils.DateRange, unavailable bool) (*models.Calendar, error) {
	args := m.Called(ctx, propertyID, rng, unavailable)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Calendar), args.Error(1)
}

// MockNotifier 告警通道 mock
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyRegenerationFailed(ctx context.Context, failure *models.CalendarRegenerationFailure) error {
	args := m.Called(ctx, failure)
	return args.Error(0)
}

// memoryFailures 内存失败记录
type memoryFailures struct {
	mu    sync.Mutex
	items []*models.CalendarRegenerationFailure
}

func (f *memoryFailures) Create(ctx context.Context, failure *models.CalendarRegenerationFailure) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, failure)
	return nil
}

func (f *memoryFailures) list() []*models.CalendarRegenerationFailure {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.CalendarRegenerationFailure(nil), f.items...)
}

// memoryCalendars 内存日历存储，errs 中的房源读取时返回错误
type memoryCalendars struct {
	mu   sync.Mutex
	data map[string]*models.Calendar
	errs map[int64]error
}

func newMemoryCalendars() *memoryCalendars {
	return &memoryCalendars{data: make(map[string]*models.Calendar), errs: make(map[int64]error)}
}

func (s *memoryCalendars) Get(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[propertyID]; ok {
		return nil, err
	}
	cal, ok := s.data[jobKey(propertyID, year, month)]
	if !ok {
		return nil, errors.ErrCalendarNotFound
	}
	return cal, nil
}

func (s *memoryCalendars) Put(ctx context.Context, cal *models.Calendar) error {
	year, month, err := utils.ParseMonthKey(cal.Month)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[jobKey(cal.PropertyID, year, month)] = cal
	return nil
}

type staticProperties []*models.Property

func (p staticProperties) GetByID(ctx context.Context, id int64) (*models.Property, error) {
	for _, property := range p {
		if property.ID == id {
			return property, nil
		}
	}
	return nil, errors.ErrPropertyNotFound
}

func (p staticProperties) ListActive(ctx context.Context) ([]*models.Property, error) {
	return p, nil
}

// trackingGenerator 统计每个键的并发执行数
type trackingGenerator struct {
	mu       sync.Mutex
	inFlight map[string]int
	overlap  int32
	peak     int32
	active   int32
	calls    int32
	delay    time.Duration
}

func newTrackingGenerator(delay time.Duration) *trackingGenerator {
	return &trackingGenerator{inFlight: make(map[string]int), delay: delay}
}

func (g *trackingGenerator) track(propertyID int64, year int, month time.Month) {
	key := jobKey(propertyID, year, month)
	g.mu.Lock()
	g.inFlight[key]++
	if g.inFlight[key] > 1 {
		atomic.StoreInt32(&g.overlap, 1)
	}
	g.mu.Unlock()

	n := atomic.AddInt32(&g.active, 1)
	for {
		peak := atomic.LoadInt32(&g.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&g.peak, peak, n) {
			break
		}
	}
	atomic.AddInt32(&g.calls, 1)
	time.Sleep(g.delay)
	atomic.AddInt32(&g.active, -1)

	g.mu.Lock()
	g.inFlight[key]--
	g.mu.Unlock()
}

func (g *trackingGenerator) StrategyVersion() string {
	return "v1"
}

func (g *trackingGenerator) GenerateMonth(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error) {
	g.track(propertyID, year, month)
	return &models.Calendar{}, nil
}

func (g *trackingGenerator) UpdateRange(ctx context.Context, propertyID int64, rng utils.DateRange) (*models.Calendar, error) {
	g.track(propertyID, rng.Start.Year(), rng.Start.Month())
	return &models.Calendar{}, nil
}

func (g *trackingGenerator) ApplyAvailability(ctx context.Context, propertyID int64, rng utils.DateRange, unavailable bool) (*models.Calendar, error) {
	g.track(propertyID, rng.Start.Year(), rng.Start.Month())
	return &models.Calendar{}, nil
}
