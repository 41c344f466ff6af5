package domain

import (
	"slices"
	"time"
)

// DailyAggregate is the cross-station mean of every measurement for one date.
type DailyAggregate struct {
	Date time.Time `json:"date"`
	Measurements
	Year         int `json:"year"`
	Month        int `json:"month"`
	DayOfYear    int `json:"day_of_year"`
	Contributors int `json:"contributors"`
}

// Series is a regional daily series, sorted ascending by date with unique dates.
type Series []DailyAggregate

// AggregateOptions tunes how overlapping records are reduced.
type AggregateOptions struct {
	// DedupeOverlap keeps a single record per (station, date), preferring the
	// recent phase over the historical one. When false, duplicates are averaged
	// like any other contributing record.
	DedupeOverlap bool
}

type accumulator struct {
	sum          [len(measureLabels)]float64
	n            [len(measureLabels)]int
	contributors int
}

// Aggregate groups records by calendar date and averages each measurement
// over the records where it is present. Missing values, including any
// sentinel that was not replaced upstream, never contribute. Dates with no
// present value at all are left out of the result.
func Aggregate(records []DailyRecord, opts AggregateOptions) Series {
	if opts.DedupeOverlap {
		records = dedupeOverlap(records)
	}

	byDate := make(map[time.Time]*accumulator)
	for _, r := range records {
		day := CalendarDate(r.Date)
		acc, ok := byDate[day]
		if !ok {
			acc = &accumulator{}
			byDate[day] = acc
		}
		present := false
		for _, m := range Measures {
			v := r.Get(m)
			if IsMissing(v) {
				continue
			}
			acc.sum[m] += *v
			acc.n[m]++
			present = true
		}
		if present {
			acc.contributors++
		}
	}

	series := make(Series, 0, len(byDate))
	for day, acc := range byDate {
		if acc.contributors == 0 {
			continue
		}
		agg := DailyAggregate{
			Date:         day,
			Year:         day.Year(),
			Month:        int(day.Month()),
			DayOfYear:    day.YearDay(),
			Contributors: acc.contributors,
		}
		for _, m := range Measures {
			if acc.n[m] == 0 {
				continue
			}
			agg.Set(m, Float(acc.sum[m]/float64(acc.n[m])))
		}
		series = append(series, agg)
	}

	slices.SortFunc(series, func(a, b DailyAggregate) int {
		return a.Date.Compare(b.Date)
	})
	return series
}

type stationDay struct {
	station int
	day     time.Time
}

// dedupeOverlap keeps one record per (station, date). A recent record
// replaces a historical one; within a phase the later record wins.
func dedupeOverlap(records []DailyRecord) []DailyRecord {
	out := make([]DailyRecord, 0, len(records))
	pos := make(map[stationDay]int, len(records))
	for _, r := range records {
		key := stationDay{station: r.StationID, day: CalendarDate(r.Date)}
		i, ok := pos[key]
		if !ok {
			pos[key] = len(out)
			out = append(out, r)
			continue
		}
		if out[i].Phase == PhaseRecent && r.Phase != PhaseRecent {
			continue
		}
		out[i] = r
	}
	return out
}

// DailyTemperature is the temperature-only view of a DailyAggregate.
type DailyTemperature struct {
	Date      time.Time `json:"date"`
	Temp      *float64  `json:"temp"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	DayOfYear int       `json:"day_of_year"`
}

// Temperatures projects the series onto mean temperature and calendar fields.
func (s Series) Temperatures() []DailyTemperature {
	out := make([]DailyTemperature, len(s))
	for i, d := range s {
		out[i] = DailyTemperature{
			Date:      d.Date,
			Temp:      d.TempMean,
			Year:      d.Year,
			Month:     d.Month,
			DayOfYear: d.DayOfYear,
		}
	}
	return out
}

// AnnualMean is the mean of a year's daily mean temperatures.
type AnnualMean struct {
	Year     int     `json:"year"`
	TempMean float64 `json:"temp_mean"`
	Days     int     `json:"days"`
}

// AnnualMeanTemperature averages daily mean temperature per year, ascending by
// year. Years without any temperature value are omitted.
func (s Series) AnnualMeanTemperature() []AnnualMean {
	var out []AnnualMean
	for _, d := range s {
		if d.TempMean == nil {
			continue
		}
		if len(out) == 0 || out[len(out)-1].Year != d.Year {
			out = append(out, AnnualMean{Year: d.Year})
		}
		last := &out[len(out)-1]
		last.TempMean += *d.TempMean
		last.Days++
	}
	for i := range out {
		out[i].TempMean /= float64(out[i].Days)
	}
	return out
}

// Span returns the first and last date of the series.
func (s Series) Span() (first, last time.Time, ok bool) {
	if len(s) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s[0].Date, s[len(s)-1].Date, true
}
