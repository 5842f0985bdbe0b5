package invalidation

import (
	"strconv"
	"time"

	"github.com/dumeirei/stay-calendar-backend/internal/common/cache"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/service/calendar"
)

// 任务类型，优先级 full > range > availability
const (
	KindFull         = calendar.KindFull
	KindRange        = calendar.KindRange
	KindAvailability = calendar.KindAvailability
)

var kindRank = map[string]int{
	KindAvailability: 1,
	KindRange:        2,
	KindFull:         3,
}

// AvailabilitySpan 仅可订状态变更的日期区间
type AvailabilitySpan struct {
	Range       utils.DateRange `json:"range"`
	Unavailable bool            `json:"unavailable"`
}

// Job 单个 (房源, 月份) 的日历更新任务
// Full 整月生成；Range 重算 Range 内日期；Spans 在价格重算之后按顺序回放
type Job struct {
	ID         string             `json:"id"`
	PropertyID int64              `json:"property_id"`
	Year       int                `json:"year"`
	Month      time.Month         `json:"month"`
	Kind       string             `json:"kind"`
	Range      utils.DateRange    `json:"range"`
	Spans      []AvailabilitySpan `json:"spans,omitempty"`
	Attempts   int                `json:"attempts"`
	EnqueuedAt time.Time          `json:"enqueued_at"`
}

// Key 串行化键
func (j *Job) Key() string {
	return jobKey(j.PropertyID, j.Year, j.Month)
}

// MonthKey 月份键 YYYY-MM
func (j *Job) MonthKey() string {
	return utils.MonthKey(j.Year, j.Month)
}

func jobKey(propertyID int64, year int, month time.Month) string {
	return cache.BuildKey(cache.KeyPrefixCalendar, strconv.FormatInt(propertyID, 10), utils.MonthKey(year, month))
}

// absorb 将同键的新任务合并进尚未开始的旧任务
// 整月生成吸收区间重算；两个区间取并集外包；可订状态区间按到达顺序追加
func (j *Job) absorb(newer *Job) {
	switch {
	case kindRank[newer.Kind] > kindRank[j.Kind]:
		j.Kind = newer.Kind
		j.Range = newer.Range
	case j.Kind == KindRange && newer.Kind == KindRange:
		j.Range = j.Range.Hull(newer.Range)
	}
	if j.Kind == KindFull {
		j.Range = utils.MonthRange(j.Year, j.Month)
	}
	j.Spans = append(j.Spans, newer.Spans...)
}
