package domain

import "time"

// Phase selects which DWD dataset an archive is drawn from.
type Phase string

const (
	PhaseHistorical Phase = "historical"
	PhaseRecent     Phase = "recent"
)

// Phases lists the fetch phases in the order they are attempted per station.
var Phases = []Phase{PhaseHistorical, PhaseRecent}

// Measure identifies one of the daily measurements carried by a record.
type Measure int

const (
	TempMean Measure = iota
	HumidityMean
	TempMax
	TempMin
	SunshineDuration
	WindSpeed
)

// Measures lists every measurement in output column order.
var Measures = []Measure{TempMean, HumidityMean, TempMax, TempMin, SunshineDuration, WindSpeed}

var measureLabels = [...]string{
	TempMean:         "TempMean",
	HumidityMean:     "HumidityMean",
	TempMax:          "TempMax",
	TempMin:          "TempMin",
	SunshineDuration: "SunshineDuration",
	WindSpeed:        "Windspeed",
}

// Label is the column name used for the measurement in exports.
func (m Measure) Label() string {
	return measureLabels[m]
}

// Measurements holds the daily values of one record or aggregate. A nil
// field is a missing value.
type Measurements struct {
	TempMean         *float64 `json:"temp_mean"`
	HumidityMean     *float64 `json:"humidity_mean"`
	TempMax          *float64 `json:"temp_max"`
	TempMin          *float64 `json:"temp_min"`
	SunshineDuration *float64 `json:"sunshine_duration"`
	WindSpeed        *float64 `json:"wind_speed"`
}

// Get returns the value of m, or nil when missing.
func (ms Measurements) Get(m Measure) *float64 {
	switch m {
	case TempMean:
		return ms.TempMean
	case HumidityMean:
		return ms.HumidityMean
	case TempMax:
		return ms.TempMax
	case TempMin:
		return ms.TempMin
	case SunshineDuration:
		return ms.SunshineDuration
	case WindSpeed:
		return ms.WindSpeed
	}
	return nil
}

// Set stores v as the value of m.
func (ms *Measurements) Set(m Measure, v *float64) {
	switch m {
	case TempMean:
		ms.TempMean = v
	case HumidityMean:
		ms.HumidityMean = v
	case TempMax:
		ms.TempMax = v
	case TempMin:
		ms.TempMin = v
	case SunshineDuration:
		ms.SunshineDuration = v
	case WindSpeed:
		ms.WindSpeed = v
	}
}

// DailyRecord is one station's measurements for one calendar date.
type DailyRecord struct {
	StationID int       `json:"station"`
	Date      time.Time `json:"date"`
	Phase     Phase     `json:"phase"`
	Measurements
}

// Date truncates t to its calendar date at midnight UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// CalendarDate returns t's calendar date at midnight UTC.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Float returns a pointer to v, for building measurements.
func Float(v float64) *float64 {
	return &v
}
