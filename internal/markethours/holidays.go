package markethours

import "time"

// NSE trading holidays, keyed YYYY-MM-DD in IST. Published yearly by
// the exchange; extend when the next calendar comes out.
var holidays = map[string]bool{
	"2026-01-26": true, // Republic Day
	"2026-02-17": true, // Mahashivratri
	"2026-03-14": true, // Holi
	"2026-03-31": true, // Id-ul-Fitr
	"2026-04-02": true, // Ram Navami
	"2026-04-06": true, // Mahavir Jayanti
	"2026-04-10": true, // Good Friday
	"2026-04-14": true, // Ambedkar Jayanti
	"2026-05-01": true, // Maharashtra Day
	"2026-06-07": true, // Bakrid
	"2026-07-06": true, // Muharram
	"2026-08-15": true, // Independence Day
	"2026-08-16": true, // Janmashtami
	"2026-09-05": true, // Milad-un-Nabi
	"2026-10-02": true, // Gandhi Jayanti
	"2026-10-20": true, // Dussehra
	"2026-10-21": true, // Dussehra
	"2026-11-05": true, // Diwali Lakshmi Puja
	"2026-11-06": true, // Diwali Balipratipada
	"2026-11-07": true, // Bhai Dooj
	"2026-11-19": true, // Guru Nanak Jayanti
	"2026-12-25": true, // Christmas
}

func isHoliday(t time.Time) bool {
	return holidays[t.In(IST).Format("2006-01-02")]
}
