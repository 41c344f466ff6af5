package domain

// MissingSentinel is the placeholder DWD writes in place of a missing reading.
const MissingSentinel = -999.0

// IsMissing reports whether v carries no usable reading.
func IsMissing(v *float64) bool {
	return v == nil || *v == MissingSentinel
}

// ReplaceSentinels returns a copy of records in which every sentinel
// measurement is nil. The input slice is not modified.
func ReplaceSentinels(records []DailyRecord) []DailyRecord {
	out := make([]DailyRecord, len(records))
	for i, r := range records {
		for _, m := range Measures {
			if IsMissing(r.Get(m)) {
				r.Set(m, nil)
			}
		}
		out[i] = r
	}
	return out
}
