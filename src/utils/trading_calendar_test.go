package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestFallbackSkipsWeekends(t *testing.T) {
	tc := &TradingCalendar{Fallback: true, Timezone: TaipeiLocation}

	days := tc.TradingDays(date("2023-04-28"), date("2023-05-02"))
	assert.Equal(t, []time.Time{date("2023-04-28"), date("2023-05-01"), date("2023-05-02")}, days)
}

func TestTaiwanCalendarSkipsWeekend(t *testing.T) {
	tc := GetCalendar()
	assert.False(t, tc.IsTradingDay(date("2023-04-29")))
	assert.False(t, tc.IsTradingDay(date("2023-04-30")))
	assert.True(t, tc.IsTradingDay(date("2023-04-26")))
}

func TestTodayInTaipei(t *testing.T) {
	// 17:30 UTC is already the next day in Taipei
	now := time.Date(2023, 4, 26, 17, 30, 0, 0, time.UTC)
	assert.Equal(t, date("2023-04-27"), TodayInTaipei(now))
}
