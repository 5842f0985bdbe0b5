package utils

import (
	"fmt"
	"time"
)

// 日期格式
const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// ParseDate 解析 YYYY-MM-DD，结果为 UTC 零点
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDate 格式化为 YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Date 构造 UTC 零点日期
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TruncateDay 截断到当天 UTC 零点（保留原时区下的年月日）
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// MonthKey 生成月份键 YYYY-MM
func MonthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// ParseMonthKey 解析 YYYY-MM
func ParseMonthKey(s string) (int, time.Month, error) {
	t, err := time.ParseInLocation(MonthLayout, s, time.UTC)
	if err != nil {
		return 0, 0, err
	}
	return t.Year(), t.Month(), nil
}

// MonthStart 当月第一天
func MonthStart(year int, month time.Month) time.Time {
	return Date(year, month, 1)
}

// MonthEnd 当月最后一天
func MonthEnd(year int, month time.Month) time.Time {
	return Date(year, month+1, 0)
}

// DaysInMonth 当月天数
func DaysInMonth(year int, month time.Month) int {
	return MonthEnd(year, month).Day()
}

// AddMonths 按月偏移，返回目标月的年和月
func AddMonths(year int, month time.Month, n int) (int, time.Month) {
	t := Date(year, month+time.Month(n), 1)
	return t.Year(), t.Month()
}

// DaysBetween 两个日期相差的天数 (b - a)
func DaysBetween(a, b time.Time) int {
	return int(TruncateDay(b).Sub(TruncateDay(a)).Hours() / 24)
}

// DateRange 闭区间日期范围 [Start, End]
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange 创建日期范围，End 早于 Start 时返回错误
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: TruncateDay(start), End: TruncateDay(end)}
	if r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("end date %s before start date %s", FormatDate(end), FormatDate(start))
	}
	return r, nil
}

// StayRange 将入住/离店（离店日不含）转换为占用的夜晚日期范围
func StayRange(checkIn, checkOut time.Time) (DateRange, error) {
	if !TruncateDay(checkOut).After(TruncateDay(checkIn)) {
		return DateRange{}, fmt.Errorf("check-out %s must be after check-in %s", FormatDate(checkOut), FormatDate(checkIn))
	}
	return DateRange{Start: TruncateDay(checkIn), End: TruncateDay(checkOut).AddDate(0, 0, -1)}, nil
}

// MonthRange 整月范围
func MonthRange(year int, month time.Month) DateRange {
	return DateRange{Start: MonthStart(year, month), End: MonthEnd(year, month)}
}

// Days 区间包含的天数
func (r DateRange) Days() int {
	return DaysBetween(r.Start, r.End) + 1
}

// Contains 判断日期是否在区间内
func (r DateRange) Contains(t time.Time) bool {
	d := TruncateDay(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Intersect 求交集
func (r DateRange) Intersect(o DateRange) (DateRange, bool) {
	start := r.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := r.End
	if o.End.Before(end) {
		end = o.End
	}
	if end.Before(start) {
		return DateRange{}, false
	}
	return DateRange{Start: start, End: end}, true
}

// Hull 返回同时覆盖两个区间的最小区间
func (r DateRange) Hull(o DateRange) DateRange {
	start := r.Start
	if o.Start.Before(start) {
		start = o.Start
	}
	end := r.End
	if o.End.After(end) {
		end = o.End
	}
	return DateRange{Start: start, End: end}
}

// Each 按天遍历区间
func (r DateRange) Each(fn func(day time.Time)) {
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		fn(d)
	}
}

// String 实现 fmt.Stringer
func (r DateRange) String() string {
	return FormatDate(r.Start) + ".." + FormatDate(r.End)
}

// MonthSpan 区间落在某个自然月内的部分
type MonthSpan struct {
	Year  int
	Month time.Month
	Range DateRange
}

// Key 月份键 YYYY-MM
func (s MonthSpan) Key() string {
	return MonthKey(s.Year, s.Month)
}

// FullMonth 是否覆盖整月
func (s MonthSpan) FullMonth() bool {
	return s.Range.Days() == DaysInMonth(s.Year, s.Month)
}

// SplitByMonth 按自然月切分区间
func (r DateRange) SplitByMonth() []MonthSpan {
	var spans []MonthSpan
	for cursor := MonthStart(r.Start.Year(), r.Start.Month()); !cursor.After(r.End); cursor = cursor.AddDate(0, 1, 0) {
		part, ok := MonthRange(cursor.Year(), cursor.Month()).Intersect(r)
		if !ok {
			continue
		}
		spans = append(spans, MonthSpan{Year: cursor.Year(), Month: cursor.Month(), Range: part})
	}
	return spans
}
