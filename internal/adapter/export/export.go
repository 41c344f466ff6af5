// Package export writes raw station records and regional series as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
)

// Protocol writes the raw records of a run to a gzip-compressed CSV file.
type Protocol struct {
	Path string
}

// WriteProtocol replaces the file at Path with records.
func (p Protocol) WriteProtocol(records []domain.DailyRecord) (err error) {
	f, err := os.Create(p.Path)
	if err != nil {
		return fmt.Errorf("create protocol: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close protocol: %w", cerr)
		}
	}()

	gz := gzip.NewWriter(f)
	if err := WriteRecords(gz, records); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compress protocol: %w", err)
	}
	return nil
}

// ProtocolHeader is the column layout of the raw protocol.
func ProtocolHeader() []string {
	header := []string{"Station", "Datum"}
	for _, m := range domain.Measures {
		header = append(header, m.Label())
	}
	return header
}

// SeriesHeader is the column layout of an exported regional series.
func SeriesHeader() []string {
	header := []string{"Date"}
	for _, m := range domain.Measures {
		header = append(header, m.Label())
	}
	return append(header, "Year", "Month", "DayOfYear", "Contributors")
}

// WriteRecords writes records as CSV in the order given. Missing values
// are empty cells.
func WriteRecords(w io.Writer, records []domain.DailyRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := []string{strconv.Itoa(r.StationID), r.Date.Format(time.DateOnly)}
		rows = append(rows, appendMeasurements(row, r.Measurements))
	}
	return writeTable(w, ProtocolHeader(), rows)
}

// WriteSeries writes a regional series as CSV, one row per date.
func WriteSeries(w io.Writer, s domain.Series) error {
	rows := make([][]string, 0, len(s))
	for _, d := range s {
		row := appendMeasurements([]string{d.Date.Format(time.DateOnly)}, d.Measurements)
		row = append(row,
			strconv.Itoa(d.Year),
			strconv.Itoa(d.Month),
			strconv.Itoa(d.DayOfYear),
			strconv.Itoa(d.Contributors),
		)
		rows = append(rows, row)
	}
	return writeTable(w, SeriesHeader(), rows)
}

func appendMeasurements(row []string, ms domain.Measurements) []string {
	for _, m := range domain.Measures {
		row = append(row, formatValue(ms.Get(m)))
	}
	return row
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// writeTable loads rows into a dataframe with every column kept as text, so
// values are written exactly as formatted.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		cw.Flush()
		return cw.Error()
	}

	df := dataframe.LoadRecords(append([][]string{header}, rows...),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return fmt.Errorf("build table: %w", df.Err)
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
