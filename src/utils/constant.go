package utils

import "time"

// -----------------------------------------------------------------------------

const (
	// TaiwanMIC is the ISO 10383 code of the Taiwan Stock Exchange.
	TaiwanMIC = "xtai"

	taipeiZone = "Asia/Taipei"
)

// TaipeiLocation is the exchange's time zone; a fixed UTC+8 when tzdata is missing.
var TaipeiLocation = func() *time.Location {
	loc, err := time.LoadLocation(taipeiZone)
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}()

// -----------------------------------------------------------------------------

// TodayInTaipei returns the exchange's current calendar day as midnight UTC,
// the same form request dates are parsed into.
func TodayInTaipei(now time.Time) time.Time {
	t := now.In(TaipeiLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
