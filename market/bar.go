package market

import "time"

// Bar is one raw minute bar as delivered by an upstream data source.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	VWAP      float64
	Volume    float64
}

// SplitInfo records a single stock split. Ratio is new-shares per old-share,
// e.g. 4 for a 4:1 split. Immutable once recorded.
type SplitInfo struct {
	EffectiveDate Date    `json:"effective_date"`
	Ratio         float64 `json:"ratio"`
}

// PricePoint is the compact per-minute representation persisted in a
// DayBlob: the bar's second-of-day offset and its close.
type PricePoint struct {
	SecondOfDay int32
	Close       float64
}

// DayBlob holds one trading day's compacted bars for a symbol. Days with no
// market activity are still recorded (Records == 0) so cache coverage stays
// contiguous. Immutable after creation unless a split recompute regenerates
// the whole symbol.
type DayBlob struct {
	Symbol  string
	Day     Date
	Points  []PricePoint
	Records int
	StartTS int64
	EndTS   int64
}

func (b *DayBlob) Empty() bool { return b.Records == 0 }

// CloseAt returns the close for the given second-of-day, if a bar exists at
// exactly that offset. Points are ordered, so binary search.
func (b *DayBlob) CloseAt(secondOfDay int32) (float64, bool) {
	lo, hi := 0, len(b.Points)
	for lo < hi {
		mid := (lo + hi) / 2
		if b.Points[mid].SecondOfDay < secondOfDay {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(b.Points) && b.Points[lo].SecondOfDay == secondOfDay {
		return b.Points[lo].Close, true
	}
	return 0, false
}
