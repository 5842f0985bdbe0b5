package pricing

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// DefaultMinimumStay 未配置任何最少入住规则时的晚数
const DefaultMinimumStay = 1

// Options 计算选项，在生成器构建时确定，计算过程中不再变化
type Options struct {
	// StrictSeasonOverlap 为 true 时同一天命中多个季节直接报 RuleConflict
	StrictSeasonOverlap bool
	// DefaultWeekendDays 定价配置未设置周末日时使用
	DefaultWeekendDays []time.Weekday
}

// CalculateDayPrice 计算单日价格
//
// 优先级 override > season > weekend > base：
//   - 周末日乘以周末系数
//   - 命中季节再乘以季节系数，多季节重叠时取系数最高者，其次跨度最短，其次 ID 最小
//   - 日期覆盖直接以 CustomPrice 替换计算结果
//
// 乘法在有理数上进行，最后一次性四舍五入（half-up）到分
func CalculateDayPrice(rules *RuleSet, date time.Time, opts Options) (models.CalendarDay, error) {
	if rules == nil || rules.Config == nil {
		return models.CalendarDay{}, errors.ErrConfigNotFound
	}
	cfg := rules.Config
	if err := validateConfig(cfg); err != nil {
		return models.CalendarDay{}, err
	}

	day := models.CalendarDay{
		Available:   true,
		PriceSource: models.PriceSourceBase,
	}

	price := new(big.Rat).SetInt64(cfg.BasePrice)

	if isWeekend(cfg, date, opts) && cfg.WeekendMultiplier != 1 {
		price.Mul(price, ratFromFloat(cfg.WeekendMultiplier))
		day.PriceSource = models.PriceSourceWeekend
	}

	season, err := pickSeason(rules, date, opts)
	if err != nil {
		return models.CalendarDay{}, err
	}
	if season != nil {
		price.Mul(price, ratFromFloat(season.PriceMultiplier))
		day.PriceSource = models.PriceSourceSeason
		day.SourceDetails = &models.SourceDetails{
			SeasonID:   season.ID,
			SeasonName: season.Name,
			Multiplier: season.PriceMultiplier,
		}
	}

	day.BaseOccupancyPrice = utils.RoundHalfUp(price)
	flatRate := false

	override := rules.OverrideOn(date)
	if override != nil {
		if override.CustomPrice < 0 {
			return models.CalendarDay{}, errors.ErrCalculationError.WithMessage(
				fmt.Sprintf("日期覆盖 %d 的价格不能为负数", override.ID))
		}
		day.BaseOccupancyPrice = override.CustomPrice
		day.Available = override.Available
		day.PriceSource = models.PriceSourceOverride
		day.SourceDetails = &models.SourceDetails{
			OverrideID: override.ID,
			FlatRate:   override.FlatRate,
		}
		flatRate = override.FlatRate
	}

	minStay, err := resolveMinimumStay(rules, date, season, override)
	if err != nil {
		return models.CalendarDay{}, err
	}
	day.MinimumStay = minStay
	day.Prices = occupancyPrices(cfg, day.BaseOccupancyPrice, flatRate)

	return day, nil
}

// validateConfig 校验定价配置中的数值
func validateConfig(cfg *models.PricingConfig) error {
	switch {
	case cfg.BasePrice <= 0:
		return errors.ErrCalculationError.WithMessage("基础价格必须为正数")
	case cfg.BaseOccupancy < 1:
		return errors.ErrCalculationError.WithMessage("基础入住人数至少为 1")
	case cfg.MaxGuests < cfg.BaseOccupancy:
		return errors.ErrCalculationError.WithMessage("最大入住人数不能小于基础入住人数")
	case cfg.ExtraGuestFee < 0:
		return errors.ErrCalculationError.WithMessage("加人费用不能为负数")
	case !validMultiplier(cfg.WeekendMultiplier):
		return errors.ErrCalculationError.WithMessage("周末系数必须为正数")
	}
	return nil
}

func validMultiplier(m float64) bool {
	return m > 0 && !math.IsInf(m, 0) && !math.IsNaN(m)
}

// isWeekend 判断日期是否为周末定价日
func isWeekend(cfg *models.PricingConfig, date time.Time, opts Options) bool {
	if len(cfg.WeekendDays) > 0 {
		return cfg.IsWeekend(date.Weekday())
	}
	for _, d := range opts.DefaultWeekendDays {
		if d == date.Weekday() {
			return true
		}
	}
	return false
}

// pickSeason 选出当日生效的季节
func pickSeason(rules *RuleSet, date time.Time, opts Options) (*models.SeasonalPeriod, error) {
	matched := rules.SeasonsOn(date)
	if len(matched) == 0 {
		return nil, nil
	}
	for _, s := range matched {
		if !validMultiplier(s.PriceMultiplier) {
			return nil, errors.ErrCalculationError.WithMessage(
				fmt.Sprintf("季节 %d 的价格系数必须为正数", s.ID))
		}
	}
	if len(matched) == 1 {
		return matched[0], nil
	}
	if opts.StrictSeasonOverlap {
		ids := make([]string, 0, len(matched))
		for _, s := range matched {
			ids = append(ids, strconv.FormatInt(s.ID, 10))
		}
		return nil, errors.ErrRuleConflict.WithMessage(
			fmt.Sprintf("%s 同时命中季节 %s", utils.FormatDate(date), strings.Join(ids, ",")))
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.PriceMultiplier != b.PriceMultiplier {
			return a.PriceMultiplier > b.PriceMultiplier
		}
		la, lb := seasonLength(a, date), seasonLength(b, date)
		if la != lb {
			return la < lb
		}
		return a.ID < b.ID
	})
	return matched[0], nil
}

// resolveMinimumStay 最少入住晚数：override > 生效季节 > 最少入住规则 > 默认 1 晚
func resolveMinimumStay(rules *RuleSet, date time.Time, season *models.SeasonalPeriod, override *models.DateOverride) (int, error) {
	if override != nil && override.MinimumStay != nil {
		return checkMinimumStay(*override.MinimumStay)
	}
	if season != nil && season.MinimumStay != nil {
		return checkMinimumStay(*season.MinimumStay)
	}
	if n := rules.MinStayRuleOn(date); n > 0 {
		return n, nil
	}
	return DefaultMinimumStay, nil
}

func checkMinimumStay(n int) (int, error) {
	if n < 1 {
		return 0, errors.ErrCalculationError.WithMessage("最少入住晚数至少为 1")
	}
	return n, nil
}

// occupancyPrices 生成人数价格表，键为 baseOccupancy..maxGuests
func occupancyPrices(cfg *models.PricingConfig, basePrice int64, flatRate bool) map[int]int64 {
	prices := make(map[int]int64, cfg.MaxGuests-cfg.BaseOccupancy+1)
	for g := cfg.BaseOccupancy; g <= cfg.MaxGuests; g++ {
		if flatRate {
			prices[g] = basePrice
			continue
		}
		prices[g] = basePrice + int64(g-cfg.BaseOccupancy)*cfg.ExtraGuestFee
	}
	return prices
}

// ratFromFloat 按十进制最短表示转换为有理数，使 1.2 精确等于 6/5
func ratFromFloat(f float64) *big.Rat {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'f', -1, 64))
	if !ok {
		return new(big.Rat).SetFloat64(f)
	}
	return r
}
