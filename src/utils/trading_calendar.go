package utils

import (
	"log"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar calculates trading days using scmhub/calendar.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// GetCalendar returns the Taiwan exchange calendar, or a Mon-Fri fallback when
// the library has no entry for it.
func GetCalendar() *TradingCalendar {
	cal := calendar.GetCalendar(TaiwanMIC)
	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC '%s'. Using simple fallback (Mon-Fri).", TaiwanMIC)
		return &TradingCalendar{Fallback: true, Timezone: TaipeiLocation}
	}

	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

// IsTradingDay takes a calendar day (any location; only Y/M/D are read).
func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	loc := tc.Timezone
	if loc == nil {
		loc = TaipeiLocation
	}
	// noon keeps the day intact across zone conversions
	day := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, loc)

	if tc.Fallback {
		weekday := day.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	// Library handles IsHoliday / IsBusinessDay
	return tc.Calendar.IsBusinessDay(day)
}

// -----------------------------------------------------------------------------

// TradingDays lists the trading days in [start, end], oldest first.
func (tc *TradingCalendar) TradingDays(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if tc.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}
