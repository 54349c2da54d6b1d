// Package markethours answers "is the NSE trading right now" so the
// gateway only keeps a live tick stream during the session window
// (9:15 AM to 3:30 PM IST, Mon-Fri, excluding exchange holidays).
package markethours

import (
	"fmt"
	"time"
)

// IST is the exchange timezone (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

const (
	openHour    = 9
	openMinute  = 15
	closeHour   = 15
	closeMinute = 30
)

// IsOpen reports whether t falls inside NSE trading hours.
func IsOpen(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= openHour*60+openMinute && hm < closeHour*60+closeMinute
}

// IsTradingDay reports whether t is a weekday and not an exchange holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	wd := ist.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !isHoliday(ist)
}

// NextOpen returns the next session open at or after t.
func NextOpen(t time.Time) time.Time {
	ist := t.In(IST)
	day := ist
	for i := 0; i < 14; i++ {
		open := time.Date(day.Year(), day.Month(), day.Day(), openHour, openMinute, 0, 0, IST)
		if IsTradingDay(day) && ist.Before(open) {
			return open
		}
		day = day.AddDate(0, 0, 1)
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, IST)
		ist = day
	}
	// Holiday data exhausted; fall back to tomorrow's open.
	next := t.In(IST).AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), openHour, openMinute, 0, 0, IST)
}

// SessionClose returns the close time of the session containing t.
func SessionClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), closeHour, closeMinute, 0, 0, IST)
}

// Status returns a human-readable market status line for logs.
func Status(t time.Time) string {
	if IsOpen(t) {
		return fmt.Sprintf("market open, closes %s", SessionClose(t).Format("15:04"))
	}
	next := NextOpen(t)
	return fmt.Sprintf("market closed, next open %s %s IST",
		next.Weekday().String()[:3], next.Format("2006-01-02 15:04"))
}
