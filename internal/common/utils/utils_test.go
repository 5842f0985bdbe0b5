// Package utils 通用工具函数单元测试
package utils

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== 取整测试 ====================

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		name string
		num  int64
		den  int64
		want int64
	}{
		{"exact", 32400, 1, 32400},
		{"below half", 1249, 10, 125},
		{"exactly half rounds up", 1245, 10, 125},
		{"just below half", 12449, 100, 124},
		{"one third", 10, 3, 3},
		{"two thirds", 20, 3, 7},
		{"negative half rounds away from zero", -5, 2, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoundHalfUp(big.NewRat(tt.num, tt.den)))
		})
	}
}

// ==================== 日期测试 ====================

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-07-05")
	require.NoError(t, err)
	assert.Equal(t, Date(2025, time.July, 5), d)
	assert.Equal(t, time.Saturday, d.Weekday())

	_, err = ParseDate("2025/07/05")
	assert.Error(t, err)
}

func TestMonthHelpers(t *testing.T) {
	assert.Equal(t, "2025-07", MonthKey(2025, time.July))
	assert.Equal(t, 31, DaysInMonth(2025, time.July))
	assert.Equal(t, 28, DaysInMonth(2025, time.February))
	assert.Equal(t, 29, DaysInMonth(2024, time.February))
	assert.Equal(t, Date(2024, time.February, 29), MonthEnd(2024, time.February))

	y, m, err := ParseMonthKey("2025-12")
	require.NoError(t, err)
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.December, m)

	_, _, err = ParseMonthKey("2025-13")
	assert.Error(t, err)

	y, m = AddMonths(2025, time.November, 3)
	assert.Equal(t, 2026, y)
	assert.Equal(t, time.February, m)
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 7, DaysBetween(Date(2025, time.July, 1), Date(2025, time.July, 8)))
	assert.Equal(t, 0, DaysBetween(Date(2025, time.July, 1), Date(2025, time.July, 1)))
	assert.Equal(t, 2, DaysBetween(Date(2025, time.December, 31), Date(2026, time.January, 2)))
}

func TestNewDateRange(t *testing.T) {
	r, err := NewDateRange(Date(2025, time.July, 1), Date(2025, time.July, 10))
	require.NoError(t, err)
	assert.Equal(t, 10, r.Days())
	assert.True(t, r.Contains(Date(2025, time.July, 10)))
	assert.False(t, r.Contains(Date(2025, time.July, 11)))

	_, err = NewDateRange(Date(2025, time.July, 10), Date(2025, time.July, 1))
	assert.Error(t, err)
}

func TestStayRange(t *testing.T) {
	r, err := StayRange(Date(2025, time.July, 30), Date(2025, time.August, 2))
	require.NoError(t, err)
	assert.Equal(t, Date(2025, time.July, 30), r.Start)
	assert.Equal(t, Date(2025, time.August, 1), r.End)
	assert.Equal(t, 3, r.Days())

	_, err = StayRange(Date(2025, time.July, 30), Date(2025, time.July, 30))
	assert.Error(t, err)
}

func TestDateRange_IntersectAndHull(t *testing.T) {
	a := DateRange{Start: Date(2025, time.July, 1), End: Date(2025, time.July, 10)}
	b := DateRange{Start: Date(2025, time.July, 8), End: Date(2025, time.July, 20)}
	c := DateRange{Start: Date(2025, time.July, 25), End: Date(2025, time.July, 26)}

	in, ok := a.Intersect(b)
	require.True(t, ok)
	assert.Equal(t, Date(2025, time.July, 8), in.Start)
	assert.Equal(t, Date(2025, time.July, 10), in.End)

	_, ok = a.Intersect(c)
	assert.False(t, ok)

	hull := a.Hull(c)
	assert.Equal(t, Date(2025, time.July, 1), hull.Start)
	assert.Equal(t, Date(2025, time.July, 26), hull.End)
}

func TestDateRange_SplitByMonth(t *testing.T) {
	r := DateRange{Start: Date(2025, time.November, 20), End: Date(2026, time.January, 3)}
	spans := r.SplitByMonth()
	require.Len(t, spans, 3)

	assert.Equal(t, "2025-11", spans[0].Key())
	assert.Equal(t, Date(2025, time.November, 20), spans[0].Range.Start)
	assert.Equal(t, Date(2025, time.November, 30), spans[0].Range.End)
	assert.False(t, spans[0].FullMonth())

	assert.Equal(t, "2025-12", spans[1].Key())
	assert.True(t, spans[1].FullMonth())

	assert.Equal(t, "2026-01", spans[2].Key())
	assert.Equal(t, 3, spans[2].Range.Days())
}

func TestDateRange_Each(t *testing.T) {
	var days []string
	DateRange{Start: Date(2025, time.February, 27), End: Date(2025, time.March, 1)}.Each(func(d time.Time) {
		days = append(days, FormatDate(d))
	})
	assert.Equal(t, []string{"2025-02-27", "2025-02-28", "2025-03-01"}, days)
}
