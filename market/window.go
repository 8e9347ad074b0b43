package market

import "time"

// Regular US equity session expressed as fixed UTC seconds-of-day. Upstream
// minute bars arrive timestamped in UTC; the session window is applied to
// the time-of-day within the bar's UTC calendar day.
const (
	OpenSecond  = 13*3600 + 30*60 // 13:30 UTC
	CloseSecond = 20 * 3600       // 20:00 UTC

	// TradingMinutesPerDay is the session length; also the empirical
	// bars-per-day constant the progress estimator starts from.
	TradingMinutesPerDay = (CloseSecond - OpenSecond) / 60
)

// OpenTime returns the session open instant for the given day.
func OpenTime(d Date) time.Time {
	return d.Time().Add(OpenSecond * time.Second)
}

// CloseTime returns the session close instant for the given day. The close
// boundary is exclusive: the last tradable minute starts one minute before.
func CloseTime(d Date) time.Time {
	return d.Time().Add(CloseSecond * time.Second)
}

// SecondOfDay returns t's offset within its UTC day.
func SecondOfDay(t time.Time) int32 {
	u := t.UTC()
	return int32(u.Hour()*3600 + u.Minute()*60 + u.Second())
}

// FilterToMarketWindow keeps only bars that fall on the target UTC day and
// inside the regular session, inclusive of open and exclusive of close.
func FilterToMarketWindow(bars []Bar, day Date) []Bar {
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if DateOf(b.Timestamp) != day {
			continue
		}
		sec := SecondOfDay(b.Timestamp)
		if sec < OpenSecond || sec >= CloseSecond {
			continue
		}
		out = append(out, b)
	}
	return out
}
