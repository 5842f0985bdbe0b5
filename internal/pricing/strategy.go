package pricing

import (
	"fmt"
	"sort"
	"time"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// StrategyV1 首个定价策略版本
const StrategyV1 = "v1"

// Strategy 版本化的日价格计算策略
// 生成器构建时选定一次，版本号写入每份日历
type Strategy interface {
	Version() string
	CalculateDay(rules *RuleSet, date time.Time) (models.CalendarDay, error)
}

// strategyFactories 已注册的策略版本
var strategyFactories = map[string]func(Options) Strategy{
	StrategyV1: func(opts Options) Strategy { return &v1Strategy{opts: opts} },
}

// NewStrategy 按版本号创建策略
func NewStrategy(version string, opts Options) (Strategy, error) {
	factory, ok := strategyFactories[version]
	if !ok {
		return nil, errors.ErrUnsupportedStrategy.WithMessage(fmt.Sprintf("不支持的定价策略版本: %q", version))
	}
	return factory(opts), nil
}

// Versions 返回已注册的策略版本
func Versions() []string {
	versions := make([]string, 0, len(strategyFactories))
	for v := range strategyFactories {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// v1Strategy override > season > weekend > base，季节系数与周末系数相乘
type v1Strategy struct {
	opts Options
}

func (s *v1Strategy) Version() string {
	return StrategyV1
}

func (s *v1Strategy) CalculateDay(rules *RuleSet, date time.Time) (models.CalendarDay, error) {
	return CalculateDayPrice(rules, date, s.opts)
}
