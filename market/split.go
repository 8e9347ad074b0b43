package market

// ApplySplitAdjustment rescales bars that predate a split so the whole
// series is comparable in post-split terms: prices divide by the ratio,
// volume multiplies. A bar preceding several splits is adjusted by each of
// them; the per-split factors multiply, so application order is irrelevant.
// The input slice is not modified.
func ApplySplitAdjustment(bars []Bar, splits []SplitInfo) []Bar {
	if len(bars) == 0 || len(splits) == 0 {
		return bars
	}

	out := make([]Bar, len(bars))
	copy(out, bars)

	for _, s := range splits {
		if s.Ratio == 0 || s.Ratio == 1 {
			continue
		}
		cutoff := s.EffectiveDate.Time()
		for i := range out {
			if !out[i].Timestamp.Before(cutoff) {
				continue
			}
			out[i].Open /= s.Ratio
			out[i].High /= s.Ratio
			out[i].Low /= s.Ratio
			out[i].Close /= s.Ratio
			out[i].VWAP /= s.Ratio
			out[i].Volume *= s.Ratio
		}
	}
	return out
}
