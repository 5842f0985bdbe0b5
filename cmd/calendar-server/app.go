package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/stay-calendar-backend/internal/common/cache"
	"github.com/dumeirei/stay-calendar-backend/internal/common/config"
	"github.com/dumeirei/stay-calendar-backend/internal/common/database"
	"github.com/dumeirei/stay-calendar-backend/internal/events"
	"github.com/dumeirei/stay-calendar-backend/internal/pricing"
	"github.com/dumeirei/stay-calendar-backend/internal/repository"
	"github.com/dumeirei/stay-calendar-backend/internal/scheduler"
	"github.com/dumeirei/stay-calendar-backend/internal/service/availability"
	"github.com/dumeirei/stay-calendar-backend/internal/service/calendar"
	"github.com/dumeirei/stay-calendar-backend/internal/service/invalidation"
	"github.com/dumeirei/stay-calendar-backend/pkg/mqtt"
)

// 日历存储后端
const (
	storePostgres = "postgres"
	storeMongo    = "mongo"
)

// app 进程内的全部组件
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	redis  *redis.Client
	mongo  *mongo.Client

	properties *repository.PropertyRepository
	failures   *repository.RegenerationFailureRepository

	generator    *calendar.Generator
	coordinator  *invalidation.Coordinator
	availability *availability.Service

	mqttClient *mqtt.Client
	subscriber *mqtt.EventSubscriber
	consumer   *events.Consumer
	scheduler  *scheduler.Scheduler
}

// newApp 组装仓储、服务与事件入口，不启动任何后台协程
func newApp(cfg *config.Config, log *zap.Logger, db *gorm.DB, redisClient *redis.Client) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: log,
		db:     db,
		redis:  redisClient,
	}

	store, err := a.buildCalendarStore()
	if err != nil {
		return nil, err
	}

	strategy, err := pricing.NewStrategy(cfg.Calendar.StrategyVersion, pricing.Options{
		StrictSeasonOverlap: cfg.Calendar.StrictSeasonOverlap,
		DefaultWeekendDays:  weekdays(cfg.Calendar.DefaultWeekendDays),
	})
	if err != nil {
		return nil, fmt.Errorf("%w (available: %v)", err, pricing.Versions())
	}

	a.properties = repository.NewPropertyRepository(db)
	a.failures = repository.NewRegenerationFailureRepository(db)
	rules := repository.NewPricingRuleRepository(db)
	bookings := repository.NewBookingWindowRepository(db)
	locker := cache.NewLocker(redisClient, cfg.Calendar.LockTTLDuration())

	a.generator = calendar.NewGenerator(rules, bookings, store, strategy, log, calendar.WithLocker(locker))

	notifiers := invalidation.MultiNotifier{invalidation.NewLogNotifier(log)}
	if cfg.MQTT.Enabled {
		a.mqttClient = mqtt.NewClient(mqtt.ConfigFrom(&cfg.MQTT), log)
		notifiers = append(notifiers, events.NewMQTTNotifier(mqtt.NewAlertPublisher(a.mqttClient, a.mqttClient.Config())))
	}

	a.coordinator = invalidation.NewCoordinator(
		invalidation.ConfigFrom(&cfg.Calendar),
		a.generator,
		store,
		a.properties,
		a.failures,
		log,
		invalidation.WithNotifier(notifiers),
		invalidation.WithBookingRecorder(bookings),
	)
	a.availability = availability.NewService(a.properties, rules, store, a.generator, log)

	if a.mqttClient != nil {
		a.subscriber = mqtt.NewEventSubscriber(a.mqttClient, a.mqttClient.Config(), events.NewMQTTHandler(a.coordinator), log)
	}
	if cfg.Queue.Enabled {
		a.consumer = events.NewConsumer(events.RedisClientOpt(&cfg.Redis, &cfg.Queue), &cfg.Queue, a.coordinator, log)
	}

	a.scheduler = scheduler.NewScheduler(log)
	if err := scheduler.NewTaskHandler(a.coordinator, locker, log).Register(a.scheduler, cfg.Calendar.HorizonCron); err != nil {
		return nil, err
	}
	return a, nil
}

// buildCalendarStore 按配置选择日历存储，cache_ttl > 0 时叠加 Redis 读穿缓存
func (a *app) buildCalendarStore() (repository.CalendarStore, error) {
	var store repository.CalendarStore
	switch a.cfg.Calendar.Store {
	case "", storePostgres:
		store = repository.NewCalendarRepository(a.db)
	case storeMongo:
		client, err := database.InitMongo(&a.cfg.Mongo)
		if err != nil {
			return nil, err
		}
		a.mongo = client

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoStore, err := repository.NewMongoCalendarStore(ctx, client, a.cfg.Mongo.Database, a.cfg.Mongo.Collection)
		if err != nil {
			return nil, err
		}
		store = mongoStore
	default:
		return nil, fmt.Errorf("unknown calendar store %q", a.cfg.Calendar.Store)
	}

	if ttl := a.cfg.Calendar.CacheTTLDuration(); ttl > 0 {
		store = repository.NewCachedCalendarStore(store, a.redis, ttl, a.logger)
	}
	return store, nil
}

// start 启动协调器、事件入口与定时任务
func (a *app) start() error {
	a.coordinator.Start()

	if a.mqttClient != nil {
		if err := a.mqttClient.Connect(); err != nil {
			return fmt.Errorf("connect mqtt: %w", err)
		}
		if err := a.subscriber.Start(); err != nil {
			return fmt.Errorf("subscribe mqtt: %w", err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start event consumer: %w", err)
		}
	}

	a.scheduler.Start()
	return nil
}

// shutdown 先停事件入口，再停协调器，最后释放连接
func (a *app) shutdown(ctx context.Context) {
	a.scheduler.Stop()

	if a.consumer != nil {
		a.consumer.Shutdown()
	}
	if a.subscriber != nil {
		if err := a.subscriber.Stop(); err != nil {
			a.logger.Warn("Failed to unsubscribe mqtt topics", zap.Error(err))
		}
	}

	if err := a.coordinator.Stop(ctx); err != nil {
		a.logger.Warn("Coordinator stopped with pending work", zap.Error(err))
	}

	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	if a.mongo != nil {
		if err := database.CloseMongo(ctx); err != nil {
			a.logger.Warn("Failed to close mongo", zap.Error(err))
		}
	}
}

// healthChecks 就绪检查依赖
func (a *app) healthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		},
	}
	if a.mongo != nil {
		checks["mongo"] = func(ctx context.Context) error {
			return a.mongo.Ping(ctx, nil)
		}
	}
	if a.mqttClient != nil {
		checks["mqtt"] = func(ctx context.Context) error {
			if !a.mqttClient.IsConnected() {
				return fmt.Errorf("not connected")
			}
			return nil
		}
	}
	return checks
}

func weekdays(days []int) []time.Weekday {
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, time.Weekday(d))
	}
	return out
}
