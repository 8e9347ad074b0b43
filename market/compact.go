package market

import "sort"

// Compact reduces minute bars to ordered (secondOfDay, close) pairs. Minutes
// with no trade are simply absent; gap policy belongs to the simulation
// driver, not the cache.
func Compact(bars []Bar) []PricePoint {
	pts := make([]PricePoint, 0, len(bars))
	for _, b := range bars {
		pts = append(pts, PricePoint{
			SecondOfDay: SecondOfDay(b.Timestamp),
			Close:       b.Close,
		})
	}
	sort.Slice(pts, func(i, j int) bool {
		return pts[i].SecondOfDay < pts[j].SecondOfDay
	})
	return pts
}

// BuildDayBlob filters bars to the day's session, compacts them, and wraps
// the result. Bars are expected to be split-adjusted already. An empty input
// yields an empty (but valid) blob, which the cache records so that
// non-trading days still count as covered.
func BuildDayBlob(symbol string, day Date, bars []Bar) DayBlob {
	windowed := FilterToMarketWindow(bars, day)
	blob := DayBlob{
		Symbol:  symbol,
		Day:     day,
		Points:  Compact(windowed),
		Records: len(windowed),
	}
	if len(windowed) > 0 {
		blob.StartTS = windowed[0].Timestamp.Unix()
		blob.EndTS = windowed[len(windowed)-1].Timestamp.Unix()
		for _, b := range windowed[1:] {
			ts := b.Timestamp.Unix()
			if ts < blob.StartTS {
				blob.StartTS = ts
			}
			if ts > blob.EndTS {
				blob.EndTS = ts
			}
		}
	}
	return blob
}
