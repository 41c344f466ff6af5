package dwd

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
)

// productPattern matches the single data file inside a station archive; the
// other members are metadata.
const productPattern = "produkt*.txt"

// Source column headers of a product file, exactly as DWD pads them.
const (
	colStation = "STATIONS_ID"
	colDate    = "MESS_DATUM"
)

var measureColumns = map[domain.Measure]string{
	domain.TempMean:         " TMK",
	domain.HumidityMean:     " UPM",
	domain.TempMax:          " TXK",
	domain.TempMin:          " TNK",
	domain.SunshineDuration: " SDK",
	domain.WindSpeed:        "  FM",
}

// ExtractProduct returns the content of the single product file in a zip archive.
func ExtractProduct(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("%w: open archive: %v", domain.ErrParse, err)
	}

	var product *zip.File
	for _, f := range zr.File {
		ok, _ := path.Match(productPattern, path.Base(f.Name))
		if !ok {
			continue
		}
		if product != nil {
			return nil, fmt.Errorf("%w: archive holds more than one %s", domain.ErrParse, productPattern)
		}
		product = f
	}
	if product == nil {
		return nil, fmt.Errorf("%w: archive holds no %s", domain.ErrParse, productPattern)
	}

	rc, err := product.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrParse, product.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrParse, product.Name, err)
	}
	return data, nil
}

// ParseProduct reads a semicolon-delimited product file, projecting the
// station, date, and measurement columns. Sentinel values are kept as read;
// normalization happens downstream. Empty cells become nil.
func ParseProduct(r io.Reader, phase domain.Phase) ([]domain.DailyRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: product header: %v", domain.ErrParse, err)
	}
	cols, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	var records []domain.DailyRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: product line %d: %v", domain.ErrParse, line, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		rec, err := parseProductRow(row, cols, phase)
		if err != nil {
			return nil, fmt.Errorf("%w: product line %d: %v", domain.ErrParse, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

type columnIndex struct {
	station  int
	date     int
	measures map[domain.Measure]int
	width    int
}

// locateColumns finds the required columns. Header names are compared after
// trimming because the padding differs between dataset revisions.
func locateColumns(header []string) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}

	idx := columnIndex{measures: make(map[domain.Measure]int, len(measureColumns))}
	var missing []string
	lookup := func(name string) int {
		i, ok := pos[strings.TrimSpace(name)]
		if !ok {
			missing = append(missing, strings.TrimSpace(name))
			return -1
		}
		idx.width = max(idx.width, i+1)
		return i
	}

	idx.station = lookup(colStation)
	idx.date = lookup(colDate)
	for _, m := range domain.Measures {
		idx.measures[m] = lookup(measureColumns[m])
	}
	if len(missing) > 0 {
		return columnIndex{}, fmt.Errorf("%w: product header lacks columns %s", domain.ErrParse, strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseProductRow(row []string, cols columnIndex, phase domain.Phase) (domain.DailyRecord, error) {
	if len(row) < cols.width {
		return domain.DailyRecord{}, fmt.Errorf("expected at least %d fields, got %d", cols.width, len(row))
	}

	station, err := strconv.Atoi(strings.TrimSpace(row[cols.station]))
	if err != nil {
		return domain.DailyRecord{}, fmt.Errorf("%s %q: %w", colStation, row[cols.station], err)
	}
	date, err := time.Parse(dateLayout, strings.TrimSpace(row[cols.date]))
	if err != nil {
		return domain.DailyRecord{}, fmt.Errorf("%s %q: %w", colDate, row[cols.date], err)
	}

	rec := domain.DailyRecord{StationID: station, Date: date, Phase: phase}
	for _, m := range domain.Measures {
		cell := strings.TrimSpace(row[cols.measures[m]])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return domain.DailyRecord{}, fmt.Errorf("%s %q: %w", strings.TrimSpace(measureColumns[m]), cell, err)
		}
		rec.Set(m, domain.Float(v))
	}
	return rec, nil
}
